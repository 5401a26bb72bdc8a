package main

import (
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/BarnBuilder412/smsync/pkg/dedup"
	"github.com/BarnBuilder412/smsync/pkg/state"
)

func newStatusCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show the persisted sync state",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := buildApp(opts)
			if err != nil {
				return err
			}
			defer app.Close()

			enabled, err := app.sched.Enabled()
			if err != nil {
				return err
			}
			fmt.Printf("enabled:  %v\n", enabled)

			baseline, _, err := app.store.Get(state.KeyBaseline)
			if err != nil {
				return err
			}
			fmt.Printf("baseline: %v\n", baseline == "true")

			raw, ok, err := app.store.Get(state.KeyCursor)
			if err != nil {
				return err
			}
			if cursor, perr := strconv.ParseInt(raw, 10, 64); ok && perr == nil && cursor > 0 {
				fmt.Printf("cursor:   %s\n", time.UnixMilli(cursor).Local().Format(time.RFC3339))
			} else {
				fmt.Println("cursor:   (unset)")
			}

			cache, err := dedup.Load(app.store, 0)
			if err != nil {
				return err
			}
			fmt.Printf("cached:   %d signatures\n", cache.Len())
			return nil
		},
	}
}
