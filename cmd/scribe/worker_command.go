package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"scribe/internal/app"
	"scribe/internal/logging"
	"scribe/internal/workflow"
)

func newWorkerCommand(ctx *commandContext) *cobra.Command {
	var (
		drain   bool
		workers int
	)
	cmd := &cobra.Command{
		Use:   "worker",
		Short: "Process queued import jobs in the foreground",
		Long: "Run queue worker slots until interrupted. Several worker processes may share one queue;\n" +
			"each message is leased to one of them at a time.",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			if workers > 0 {
				cfg.Queue.Workers = workers
			}
			logger, err := logging.NewFromConfig(cfg)
			if err != nil {
				return fmt.Errorf("init logger: %w", err)
			}
			container, err := app.New(cfg, logger)
			if err != nil {
				return err
			}
			defer container.Close()

			worker, err := newCLIWorker(container, drain)
			if err != nil {
				return err
			}
			runCtx, cancel := context.WithCancel(cmd.Context())
			defer cancel()
			sigs := make(chan os.Signal, 2)
			signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)
			defer signal.Stop(sigs)
			done := make(chan struct{})
			defer close(done)
			go stopOnSignal(sigs, done, worker, cancel, cmd.ErrOrStderr())

			if err := worker.Run(runCtx); err != nil {
				return err
			}
			status := worker.Status()
			fmt.Fprintf(cmd.OutOrStdout(), "Processed %d, failed %d, poisoned %d\n",
				status.Processed, status.Failed, status.Poisoned)
			return nil
		},
	}
	cmd.Flags().BoolVar(&drain, "drain", false, "Exit once the queue has no visible messages")
	cmd.Flags().IntVar(&workers, "workers", 0, "Worker slots (defaults to queue.workers)")
	return cmd
}

// newCLIWorker builds the container's worker; with drain it stops at the
// first idle poll instead of sleeping.
func newCLIWorker(c *app.Container, drain bool) (*workflow.QueueWorker, error) {
	var worker *workflow.QueueWorker
	worker, err := c.NewWorker(func(opts *workflow.WorkerOptions) {
		if drain {
			opts.Wait = func(context.Context, time.Duration) { worker.Stop() }
		}
	})
	return worker, err
}

// stopOnSignal ends polling on the first signal and lets running jobs
// finish. A second signal aborts them; their meetings stay PROCESSING and
// are retried once the lease expires.
func stopOnSignal(sigs <-chan os.Signal, done <-chan struct{}, worker *workflow.QueueWorker, cancel context.CancelFunc, out io.Writer) {
	select {
	case <-sigs:
	case <-done:
		return
	}
	fmt.Fprintln(out, "Finishing in-flight jobs; interrupt again to abort them")
	worker.Stop()
	cancel()
	select {
	case <-sigs:
	case <-done:
		return
	}
	fmt.Fprintln(out, "Aborting in-flight jobs")
	worker.Abort()
}
