package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/mfutil/mfutil-go/internal/importer"
	"github.com/mfutil/mfutil-go/internal/progress"
)

func newImportCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "import-cd <device> <music_dir>",
		Short: "Rip, encode and tag an audio CD",
		Long: `Rip every audio track of the disc in <device>, encode it to FLAC and tag it.

Files are written to <music_dir>/Artists/<artist>/<album>/. Release
metadata comes from MusicBrainz when the disc is known; otherwise
placeholder names are used. The command succeeds once the disc has been
processed, even when individual tracks failed.

Interrupt once to stop after the current track, twice to abort it.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			logger := ctx.loggerValue()

			db, err := ctx.openStore()
			if err != nil {
				return err
			}

			orch := buildOrchestrator(cfg, ctx.newDrive(cfg), db, logger)
			return runImport(cmd, ctx, orch, importer.Request{Device: args[0], MusicDir: args[1]}, logger)
		},
	}
}

// runImport runs a single import on the worker, streaming progress to
// stdout until the import returns.
func runImport(cmd *cobra.Command, ctx *commandContext, orch *importer.Orchestrator, req importer.Request, logger *zap.Logger) error {
	out := cmd.OutOrStdout()

	ch := progress.NewChannel()
	req.Progress = progress.Tee{ch, progress.LogSink{Logger: logger}}

	rendered := make(chan struct{})
	go func() {
		defer close(rendered)
		renderProgress(out, ch.Messages(), shouldColorize(out), ctx.JSONMode())
	}()

	worker := importer.NewWorker(func(jobCtx context.Context, job *importer.Job) (*importer.Summary, error) {
		return orch.Run(jobCtx, job.Request)
	}, logger)

	parent := cmd.Context()
	if parent == nil {
		parent = context.Background()
	}
	if err := worker.Start(parent); err != nil {
		ch.Close()
		<-rendered
		return err
	}
	defer worker.Stop()

	job := &importer.Job{ID: uuid.NewString(), Request: req}

	stop := make(chan struct{})
	defer close(stop)
	go handleInterrupts(cmd, worker, orch, job.ID, stop)

	if err := worker.Submit(job); err != nil {
		ch.Close()
		<-rendered
		return err
	}

	var res *importer.Result
	select {
	case res = <-worker.Results():
	case <-parent.Done():
	}
	ch.Close()
	<-rendered

	if res == nil {
		return context.Canceled
	}
	if res.Error != nil {
		return res.Error
	}
	if ctx.JSONMode() {
		return writeJSON(cmd, res.Summary)
	}
	return nil
}

// handleInterrupts turns the first SIGINT or SIGTERM into a graceful stop
// after the current track and the second into cancelling the track itself.
func handleInterrupts(cmd *cobra.Command, worker *importer.Worker, orch *importer.Orchestrator, jobID string, stop <-chan struct{}) {
	sigs := make(chan os.Signal, 2)
	signal.Notify(sigs, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigs)

	count := 0
	for {
		select {
		case <-stop:
			return
		case <-sigs:
			count++
			if count == 1 {
				orch.Cancel()
				fmt.Fprintln(cmd.ErrOrStderr(), "Stopping after the current track; interrupt again to abort it")
				continue
			}
			_ = worker.CancelJob(jobID)
		}
	}
}
