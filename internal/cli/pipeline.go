package cli

import (
	"github.com/spf13/cobra"
)

var ingestCmd = &cobra.Command{
	Use:   "ingest",
	Short: "Fetch current funding rates from all venues once",
	RunE: func(cmd *cobra.Command, args []string) error {
		return getApp().Ingest(cmd.Context())
	},
}

var scoreCmd = &cobra.Command{
	Use:   "score",
	Short: "Recompute scored opportunities from the trailing window",
	RunE: func(cmd *cobra.Command, args []string) error {
		return getApp().Score(cmd.Context())
	},
}

var alertsCmd = &cobra.Command{
	Use:   "alerts",
	Short: "Evaluate alert rules and dispatch fired alerts",
	RunE: func(cmd *cobra.Command, args []string) error {
		return getApp().Alerts(cmd.Context())
	},
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the full pipeline on an interval",
	RunE: func(cmd *cobra.Command, args []string) error {
		return getApp().Run(cmd.Context())
	},
}

var relayCmd = &cobra.Command{
	Use:   "relay",
	Short: "Serve the authenticated venue forwarding relay",
	RunE: func(cmd *cobra.Command, args []string) error {
		return getApp().Relay(cmd.Context())
	},
}
