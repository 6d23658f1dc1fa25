package cli

import (
	"github.com/spf13/cobra"

	"github.com/lherron/orgsync/internal/cli/appctx"
	"github.com/lherron/orgsync/internal/syncer"
)

var workitemsCmd = &cobra.Command{
	Use:     "workitems",
	Aliases: []string{"wi"},
	Short:   "Migrate every work item of the source project",
	Long: `Migrates work items from the source project to the target project.

When both process ids are configured the workflow states of every paired
type are aligned first and used to map states. Each record keeps its
parent, attachments, inline images and comments. Records already migrated
are recognized by the tracking field and left alone.`,
	RunE: appctx.WithApp(appctx.DefaultOptions(), runWorkItems),
}

var (
	workitemsWIQLFilter string
	workitemsNoInline   bool
)

func init() {
	rootCmd.AddCommand(workitemsCmd)
	workitemsCmd.Flags().StringVar(&workitemsWIQLFilter, "wiql-filter", "", "Extra WIQL predicate restricting the source records")
	workitemsCmd.Flags().BoolVar(&workitemsNoInline, "no-inline-attachments", false, "Do not copy attachments referenced only from rich text")
}

func runWorkItems(app *appctx.App, cmd *cobra.Command, args []string) error {
	ctx := commandContext(cmd)

	opts := app.SessionOptions()
	if workitemsWIQLFilter != "" {
		opts.WIQLFilter = workitemsWIQLFilter
	}
	if workitemsNoInline {
		opts.MigrateInlineAttachments = false
	}

	run, err := startRun(app, "workitems")
	if err != nil {
		return err
	}
	sess := syncer.NewSession(app.Source, app.Target, opts, app.Log, newJournalRecorder(run, app.Log))

	if app.Config.HasProcesses() {
		if _, err := sess.BuildStateMapForProcesses(ctx, app.Config.Source.ProcessID, app.Config.Target.ProcessID); err != nil {
			app.Log.Warnf("state map unavailable, keeping source state names: %v", err)
		}
	} else {
		app.Log.Infof("process ids not configured; keeping source state names")
	}

	report, runErr := sess.MigrateWorkItems(ctx)
	finishRun(app, run, report.Totals(), runErr)

	if err := renderReport(app, cmd.OutOrStdout(), runReport{RunID: run.ID(), Kind: "workitems", Report: report}); err != nil {
		return err
	}
	return runErr
}
