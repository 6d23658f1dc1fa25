package cli

import (
	"strconv"

	"github.com/spf13/cobra"

	"github.com/lherron/orgsync/internal/cli/appctx"
	"github.com/lherron/orgsync/internal/journal"
)

var runsCmd = &cobra.Command{
	Use:   "runs",
	Short: "Inspect the migration journal",
}

var runsLsCmd = &cobra.Command{
	Use:   "ls",
	Short: "List recent runs",
	Args:  cobra.NoArgs,
	RunE:  appctx.WithApp(appctx.JournalOnly(), runRunsLs),
}

var runsShowCmd = &cobra.Command{
	Use:   "show <run-id>",
	Short: "Show a run and every outcome it recorded",
	Long:  `Shows one run. The id may be abbreviated to any unique prefix.`,
	Args:  cobra.ExactArgs(1),
	RunE:  appctx.WithApp(appctx.JournalOnly(), runRunsShow),
}

var (
	runsLimit      int
	runsErrorsOnly bool
)

func init() {
	rootCmd.AddCommand(runsCmd)
	runsCmd.AddCommand(runsLsCmd, runsShowCmd)
	runsLsCmd.Flags().IntVarP(&runsLimit, "limit", "n", 20, "Maximum number of runs (0 for all)")
	runsShowCmd.Flags().BoolVar(&runsErrorsOnly, "errors", false, "Only show failed outcomes")
}

func runRunsLs(app *appctx.App, cmd *cobra.Command, args []string) error {
	runs, err := app.Journal.ListRuns(runsLimit)
	if err != nil {
		return err
	}
	if runs == nil {
		runs = []journal.Run{}
	}

	rows := make([][]string, 0, len(runs))
	for _, r := range runs {
		rows = append(rows, []string{
			shortID(r.ID), r.Kind, r.Status, r.StartedAt, r.Source, r.Target,
			strconv.Itoa(r.Migrated), strconv.Itoa(r.Existing), strconv.Itoa(r.Skipped), strconv.Itoa(r.Errors),
		})
	}
	rr, err := app.Renderer(cmd.OutOrStdout())
	if err != nil {
		return err
	}
	return rr.Render(runs, []string{"ID", "KIND", "STATUS", "STARTED", "SOURCE", "TARGET", "MIGRATED", "EXISTING", "SKIPPED", "ERRORS"}, rows)
}

type runDetail struct {
	journal.Run `yaml:",inline"`
	Outcomes    []journal.Entry `json:"outcomes" yaml:"outcomes"`
}

func runRunsShow(app *appctx.App, cmd *cobra.Command, args []string) error {
	run, err := app.Journal.GetRun(args[0])
	if err != nil {
		return err
	}
	entries, err := app.Journal.Outcomes(run.ID)
	if err != nil {
		return err
	}

	detail := runDetail{Run: *run, Outcomes: []journal.Entry{}}
	rows := make([][]string, 0, len(entries))
	for _, e := range entries {
		if runsErrorsOnly && e.Status != journal.StatusError {
			continue
		}
		detail.Outcomes = append(detail.Outcomes, e)
		rows = append(rows, []string{e.Unit, e.SourceKey, e.TargetRef, string(e.Status), e.ErrorKind, e.Message})
	}

	rr, err := app.Renderer(cmd.OutOrStdout())
	if err != nil {
		return err
	}
	return rr.Render(detail, []string{"UNIT", "SOURCE", "TARGET", "STATUS", "KIND", "MESSAGE"}, rows)
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
