package cli

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/lherron/orgsync/internal/cli/appctx"
	"github.com/lherron/orgsync/internal/domain"
	"github.com/lherron/orgsync/internal/syncer"
)

var nodesCmd = &cobra.Command{
	Use:   "nodes",
	Short: "Replicate the area and iteration trees",
	Long: `Creates every source area and iteration node missing on the target,
matching nodes by name under the same parent, and copies iteration dates.`,
	RunE: appctx.WithApp(appctx.DefaultOptions(), runNodes),
}

var nodesGroup string

func init() {
	rootCmd.AddCommand(nodesCmd)
	nodesCmd.Flags().StringVar(&nodesGroup, "group", "all", "Tree to replicate: areas, iterations or all")
}

func parseGroups(s string) ([]domain.StructureGroup, error) {
	if strings.EqualFold(strings.TrimSpace(s), "all") || s == "" {
		return []domain.StructureGroup{domain.StructureAreas, domain.StructureIterations}, nil
	}
	g, err := domain.ParseStructureGroup(s)
	if err != nil {
		return nil, err
	}
	return []domain.StructureGroup{g}, nil
}

type nodesReport struct {
	RunID  string                   `json:"run_id" yaml:"run_id"`
	Groups map[string]syncer.Counts `json:"groups" yaml:"groups"`
}

func runNodes(app *appctx.App, cmd *cobra.Command, args []string) error {
	ctx := commandContext(cmd)
	groups, err := parseGroups(nodesGroup)
	if err != nil {
		return err
	}

	run, err := startRun(app, "nodes")
	if err != nil {
		return err
	}
	sess := syncer.NewSession(app.Source, app.Target, app.SessionOptions(), app.Log, newJournalRecorder(run, app.Log))

	out := nodesReport{RunID: run.ID(), Groups: make(map[string]syncer.Counts)}
	var rows [][]string
	var total syncer.Counts
	var errs []error
	for _, g := range groups {
		counts, err := sess.SyncNodeTree(ctx, g)
		if err != nil {
			app.Log.Errorf("%v", err)
			errs = append(errs, err)
			if ctx.Err() != nil {
				break
			}
		}
		out.Groups[string(g)] = counts
		total.Add(counts)
		rows = append(rows, countsRow(string(g), counts))
	}
	runErr := errors.Join(errs...)
	finishRun(app, run, total, runErr)

	r, err := app.Renderer(cmd.OutOrStdout())
	if err != nil {
		return err
	}
	if err := r.Render(out, countsHeaders, rows); err != nil {
		return err
	}
	if runErr != nil {
		return fmt.Errorf("node sync incomplete: %w", runErr)
	}
	return nil
}
