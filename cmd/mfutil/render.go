package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"github.com/mfutil/mfutil-go/internal/progress"
)

const (
	ansiReset  = "\x1b[0m"
	ansiRed    = "\x1b[31m"
	ansiGreen  = "\x1b[32m"
	ansiYellow = "\x1b[33m"
	ansiBlue   = "\x1b[34m"
)

// renderProgress prints each message on its own line until msgs is closed.
func renderProgress(w io.Writer, msgs <-chan progress.Message, colorize, jsonMode bool) {
	for m := range msgs {
		if jsonMode {
			data, err := progress.MarshalJSON(m)
			if err != nil {
				continue
			}
			fmt.Fprintln(w, string(data))
			continue
		}
		fmt.Fprintln(w, renderLine(m, colorize))
	}
}

func renderLine(m progress.Message, colorize bool) string {
	line := m.Line()
	if !colorize {
		return line
	}
	if color := messageColor(m); color != "" {
		return color + line + ansiReset
	}
	return line
}

func messageColor(m progress.Message) string {
	switch m.(type) {
	case progress.TrackCompleted:
		return ansiGreen
	case progress.TrackError:
		return ansiRed
	case progress.SectorProgress:
		return ansiYellow
	case progress.ImportFinished, progress.TotalTracks:
		return ansiBlue
	default:
		return ""
	}
}

func shouldColorize(writer io.Writer) bool {
	file, ok := writer.(*os.File)
	if !ok {
		return false
	}
	fd := file.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}

// writeJSON encodes v as indented JSON to the command's stdout.
func writeJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
