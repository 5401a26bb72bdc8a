package main

import (
	"errors"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/BarnBuilder412/smsync/pkg/scheduler"
)

func newRunCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Run the sync daemon until interrupted",
		Long: "Resumes syncing when it was previously enabled and keeps polling\n" +
			"for new messages until SIGINT or SIGTERM. When sync is disabled the\n" +
			"daemon idles; use 'smsync enable' first.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := buildApp(opts)
			if err != nil {
				return err
			}
			defer app.Close()

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			if err := app.sched.Restore(ctx); err != nil {
				var serr *scheduler.StartError
				if !errors.As(err, &serr) || serr.Reason != scheduler.ReasonInitialSyncFailed {
					return err
				}
				// Degraded start: the timer retries on schedule.
			}

			if app.sched.State() != scheduler.Running {
				app.logger.Info("sync is disabled; run 'smsync enable' to turn it on")
			}

			<-ctx.Done()
			app.logger.Info("shutting down")
			return nil
		},
	}
}
