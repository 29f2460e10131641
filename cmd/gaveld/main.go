package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/gavelbot/gavel/cmd/gaveld/commands"
	"github.com/gavelbot/gavel/logger"
)

var rootCmd = &cobra.Command{
	Use:   "gaveld",
	Short: "gavel - governance automation daemon",
	Long: `gavel - governance automation for DAO spaces.

gavel runs the recurring governance cycle of each configured space:
temperature-check polls in chat, vote submission to the off-chain vote
platform, status bookkeeping for every proposal, and the alerts in
between. All of it is driven by a durable job queue, so a restart
picks up exactly where the daemon left off.

Available commands:
  start     - Run the daemon (scheduler + job workers)
  jobs      - Inspect and manage queued jobs
  spaces    - Manage governance space configuration
  proposals - List and register proposals
  version   - Show version information

Examples:
  gaveld start                     # Run the daemon in the foreground
  gaveld spaces apply juicebox.toml
  gaveld jobs ls --status failed
  gaveld jobs requeue juicebox:voteClose:2026-03-09T00:00:00Z`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		jsonOutput, _ := cmd.Flags().GetBool("json-logs")
		if err := logger.Initialize(jsonOutput); err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().Bool("json-logs", false, "Emit logs as JSON instead of console output")
	rootCmd.PersistentFlags().String("config", "", "Path to a gavel.toml config file")

	rootCmd.AddCommand(commands.StartCmd)
	rootCmd.AddCommand(commands.JobsCmd)
	rootCmd.AddCommand(commands.SpacesCmd)
	rootCmd.AddCommand(commands.ProposalsCmd)
	rootCmd.AddCommand(commands.VersionCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
