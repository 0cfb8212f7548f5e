// schegl is the offline-first client for the field-service API. It keeps a
// durable local copy of route plans, queues mutations made without
// connectivity, and syncs everything back once the service is reachable.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/alexradacina/schegl-app/internal/config"
)

var (
	cfgFile string
	cfg     *config.Config
)

var rootCmd = &cobra.Command{
	Use:   "schegl",
	Short: "Offline-first field service client",
	Long: `schegl keeps field-service data usable without connectivity.

Route plans are downloaded into a local bundle, work done offline is queued
durably, and a sync pass pushes everything to the service once the
connection is stable. Run 'schegl daemon' to keep syncing in the
background, or 'schegl sync' for a one-shot pass.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		loaded, err := config.Load(cfgFile)
		if err != nil {
			return err
		}

		// Flags beat both file and environment.
		if cmd.Flags().Changed("server-url") {
			loaded.ServerURL, _ = cmd.Flags().GetString("server-url")
		}
		if cmd.Flags().Changed("token") {
			loaded.Token, _ = cmd.Flags().GetString("token")
		}
		if cmd.Flags().Changed("data-dir") {
			loaded.DataDir, _ = cmd.Flags().GetString("data-dir")
		}

		cfg = loaded
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: ./schegl.yaml, ~/.schegl/schegl.yaml)")
	rootCmd.PersistentFlags().String("server-url", "", "base URL of the field-service API")
	rootCmd.PersistentFlags().String("token", "", "bearer token for API calls")
	rootCmd.PersistentFlags().String("data-dir", "", "directory for the local database and offline bundles")

	rootCmd.AddCommand(syncCmd)
	rootCmd.AddCommand(daemonCmd)
	rootCmd.AddCommand(downloadCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(trackCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
