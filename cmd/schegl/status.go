package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show connectivity, queued work and offline data",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(false)
		if err != nil {
			return err
		}
		defer a.Close()

		if a.client == nil {
			fmt.Println("Service:   not configured")
		} else if a.online() {
			fmt.Println("Service:   reachable")
		} else {
			fmt.Println("Service:   unreachable")
		}

		pending, err := a.queue.Pending()
		if err != nil {
			return err
		}
		fmt.Printf("Queue:     %d pending mutations\n", pending)

		unsynced := a.tracker.Unsynced()
		fmt.Printf("Tracking:  %d staged sessions\n", len(unsynced))
		if open, ok := a.tracker.OpenSession(); ok {
			fmt.Printf("           open %s session since %s\n", open.Kind, open.StartedAt.Format("15:04:05"))
		}

		keys, err := a.cache.Keys()
		if err != nil {
			return err
		}
		fmt.Printf("Cache:     %d datasets\n", len(keys))
		for _, key := range keys {
			entry, err := a.cache.Get(key)
			if err != nil || entry == nil {
				continue
			}
			fmt.Printf("           %s (age %s)\n", key, entry.Age().Round(time.Second))
		}

		bundles, err := a.store.ListFiles()
		if err != nil {
			return err
		}
		fmt.Printf("Bundles:   %d offline documents\n", len(bundles))
		for _, name := range bundles {
			fmt.Printf("           %s\n", name)
		}
		return nil
	},
}
