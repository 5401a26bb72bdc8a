package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/BarnBuilder412/smsync/pkg/scheduler"
)

func newEnableCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "enable",
		Short: "Turn sync on",
		Long: "Verifies the message source and permission, records sync as enabled,\n" +
			"and runs the first sync. On first-ever activation only messages arriving\n" +
			"from now on are synced; the historical inbox is left alone.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := buildApp(opts)
			if err != nil {
				return err
			}
			defer app.Close()

			err = app.sched.Start(cmd.Context())
			var serr *scheduler.StartError
			if errors.As(err, &serr) && serr.Reason == scheduler.ReasonInitialSyncFailed {
				fmt.Println("sync enabled, but the first sync failed; it will be retried")
				return nil
			}
			if err != nil {
				return err
			}
			fmt.Println("sync enabled")
			return nil
		},
	}
}

func newDisableCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "disable",
		Short: "Turn sync off",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := buildApp(opts)
			if err != nil {
				return err
			}
			defer app.Close()

			if err := app.sched.Stop(); err != nil {
				return err
			}
			fmt.Println("sync disabled")
			return nil
		},
	}
}
