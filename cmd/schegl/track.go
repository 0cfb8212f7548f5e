package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/alexradacina/schegl-app/internal/tracking"
)

var (
	trackAssignment  int64
	trackDescription string
)

var trackCmd = &cobra.Command{
	Use:   "track",
	Short: "Manage time-tracking sessions",
	Long: `Starts, stops and restarts time-tracking sessions. At most one session
is open at a time. Sessions recorded while offline are staged locally and
submitted in one batch on the next sync.`,
}

var trackStartCmd = &cobra.Command{
	Use:       "start {travel|work|pause}",
	Short:     "Start a tracking session",
	Args:      cobra.ExactArgs(1),
	ValidArgs: []string{"travel", "work", "pause"},
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(false)
		if err != nil {
			return err
		}
		defer a.Close()

		session, err := a.tracker.Start(cmd.Context(), tracking.Kind(args[0]), assignmentArg(), trackDescription)
		if err != nil {
			return err
		}
		printSession("Started", session)
		return nil
	},
}

var trackStopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Stop the open tracking session",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(false)
		if err != nil {
			return err
		}
		defer a.Close()

		session, err := a.tracker.Stop(cmd.Context())
		if err != nil {
			return err
		}
		printSession("Stopped", session)
		return nil
	},
}

var trackRestartCmd = &cobra.Command{
	Use:       "restart {travel|work|pause}",
	Short:     "Stop the open session and start a new one",
	Args:      cobra.ExactArgs(1),
	ValidArgs: []string{"travel", "work", "pause"},
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(false)
		if err != nil {
			return err
		}
		defer a.Close()

		session, err := a.tracker.Restart(cmd.Context(), tracking.Kind(args[0]), assignmentArg(), trackDescription)
		if err != nil {
			return err
		}
		printSession("Restarted with", session)
		return nil
	},
}

func assignmentArg() *int64 {
	if trackAssignment == 0 {
		return nil
	}
	id := trackAssignment
	return &id
}

func printSession(verb string, s tracking.Session) {
	synced := "staged offline"
	if s.Synced {
		synced = "confirmed"
	}
	fmt.Printf("%s %s session %s (%s) at %s\n",
		verb, s.Kind, s.ID, synced, time.Now().Format("15:04:05"))
	if strings.HasPrefix(s.ID, "offline_") {
		fmt.Println("Session will be submitted on the next sync")
	}
}

func init() {
	trackCmd.PersistentFlags().Int64Var(&trackAssignment, "assignment", 0, "route assignment the session belongs to")
	trackCmd.PersistentFlags().StringVar(&trackDescription, "description", "", "free-form session description")

	trackCmd.AddCommand(trackStartCmd)
	trackCmd.AddCommand(trackStopCmd)
	trackCmd.AddCommand(trackRestartCmd)
}
