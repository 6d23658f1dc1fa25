package cli

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "orgsync",
	Short: "Copy Azure DevOps work items between organizations",
	Long: `orgsync migrates a project's work items, attachments, comments,
area and iteration trees and workflow states from one Azure DevOps
organization to another. Every step is idempotent: re-running a
migration picks up where the last one stopped.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the root command. An interrupt cancels the running migration;
// work already done stays recorded in the journal.
func Execute() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return rootCmd.ExecuteContext(ctx)
}

func init() {
	rootCmd.PersistentFlags().String("config", "", "Path to YAML config file (default ~/.config/orgsync/config.yaml)")
	rootCmd.PersistentFlags().String("journal", "", "Path to run journal database (overrides ORGSYNC_JOURNAL_PATH)")
	rootCmd.PersistentFlags().StringP("output", "o", "", "Output format: table, json, yaml or tsv")
	rootCmd.PersistentFlags().String("log-level", "", "Log level: debug, info, warn or error")
}
