package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/alexradacina/schegl-app/internal/offline/cache"
)

var (
	downloadFrom string
	downloadTo   string
)

var downloadCmd = &cobra.Command{
	Use:   "download",
	Short: "Download a route plan for offline use",
	Long: `Fetches the assignments, route messages and tracking times for a date
range and stores them as one offline bundle, together with a fresh copy of
the machine-order templates. Defaults to today through four days out.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(true)
		if err != nil {
			return err
		}
		defer a.Close()

		if !a.online() {
			return fmt.Errorf("cannot download route plan: service unreachable")
		}

		from, to := downloadFrom, downloadTo
		if from == "" {
			from = time.Now().Format("2006-01-02")
		}
		if to == "" {
			to = time.Now().AddDate(0, 0, 4).Format("2006-01-02")
		}

		page, err := a.client.FetchAssignments(cmd.Context(), from, to)
		if err != nil {
			return fmt.Errorf("failed to fetch assignments: %w", err)
		}

		plan := &cache.RoutePlan{
			FromDate:      from,
			ToDate:        to,
			Assignments:   page.Assignments,
			Messages:      page.Messages,
			TrackingTimes: page.TrackingTimes,
		}
		if err := a.cache.SaveRoutePlan(plan); err != nil {
			return err
		}

		// Templates ride along so machine orders can be placed offline.
		templates, err := a.client.FetchTemplates(cmd.Context())
		if err != nil {
			fmt.Printf("Warning: failed to refresh templates: %v\n", err)
		} else if err := a.cache.Set("templates", templates); err != nil {
			return err
		}

		fmt.Printf("Downloaded route plan %s to %s: %d assignments, %d messages, %d tracking times\n",
			from, to, len(page.Assignments), len(page.Messages), len(page.TrackingTimes))
		return nil
	},
}

func init() {
	downloadCmd.Flags().StringVar(&downloadFrom, "from", "", "start date (YYYY-MM-DD, default: today)")
	downloadCmd.Flags().StringVar(&downloadTo, "to", "", "end date (YYYY-MM-DD, default: today+4)")
}
