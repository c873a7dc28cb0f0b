package main

import (
	"context"
	"errors"
	"fmt"
	"os"
)

const version = "0.1.1"

func main() {
	cmd, cmdCtx := newRootCommand()
	err := cmd.Execute()
	cmdCtx.close()
	if err != nil {
		if !errors.Is(err, context.Canceled) {
			fmt.Fprintln(os.Stderr, err)
		}
		os.Exit(1)
	}
}
