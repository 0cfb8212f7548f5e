package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Push queued offline work to the service",
	Long: `Drains the offline queue against the service and reconciles staged
tracking sessions. Mutations the service rejects are reported and dropped;
transport failures stay queued for the next run.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(true)
		if err != nil {
			return err
		}
		defer a.Close()

		if !a.online() {
			pending, _ := a.queue.Pending()
			return fmt.Errorf("service unreachable; %d queued mutations remain pending", pending)
		}

		result, err := a.engine.Sync(cmd.Context())
		if err != nil {
			return err
		}

		fmt.Printf("Synced %d of %d queued mutations", result.Succeeded, result.Total)
		if result.TrackingConfirmed > 0 {
			fmt.Printf(", %d tracking sessions confirmed", result.TrackingConfirmed)
		}
		fmt.Println()

		for _, itemErr := range result.Errors {
			fmt.Printf("  failed: %v\n", itemErr)
		}
		if result.Failed > 0 {
			return fmt.Errorf("%d items failed to sync", result.Failed)
		}
		return nil
	},
}
