package cli

import (
	"fmt"
	"sort"

	"github.com/spf13/cobra"

	"github.com/lherron/orgsync/internal/cli/appctx"
	"github.com/lherron/orgsync/internal/domain"
	"github.com/lherron/orgsync/internal/syncer"
)

var statesCmd = &cobra.Command{
	Use:   "states",
	Short: "Align workflow states and print the state map",
	Long: `Pairs the work item types of the source and target processes, creates
the states the target is missing at a matching position, and prints how
each source state maps onto the target. With --apply=false nothing is
created and the map shows what the target would look like.`,
	RunE: appctx.WithApp(appctx.DefaultOptions(), runStates),
}

var statesApply bool

func init() {
	rootCmd.AddCommand(statesCmd)
	statesCmd.Flags().BoolVar(&statesApply, "apply", true, "Create missing states on the target")
}

type stateMapping struct {
	Type        string `json:"type" yaml:"type"`
	SourceState string `json:"source_state" yaml:"source_state"`
	TargetState string `json:"target_state" yaml:"target_state"`
}

type statesReport struct {
	RunID    string         `json:"run_id,omitempty" yaml:"run_id,omitempty"`
	Applied  bool           `json:"applied" yaml:"applied"`
	Mappings []stateMapping `json:"mappings" yaml:"mappings"`
	Report   syncer.Report  `json:"report" yaml:"report"`
}

func runStates(app *appctx.App, cmd *cobra.Command, args []string) (runErr error) {
	ctx := commandContext(cmd)
	cfg := app.Config
	if !cfg.HasProcesses() {
		return fmt.Errorf("source.process_id and target.process_id are required")
	}

	target := app.Target
	var recorder syncer.Recorder
	out := statesReport{Applied: statesApply}
	if statesApply {
		run, err := startRun(app, "states")
		if err != nil {
			return err
		}
		out.RunID = run.ID()
		recorder = newJournalRecorder(run, app.Log)
		defer func() { finishRun(app, run, out.Report.Totals(), runErr) }()
	} else {
		target = syncer.PlanOnly(target)
	}

	sess := syncer.NewSession(app.Source, target, app.SessionOptions(), app.Log, recorder)
	m, err := sess.BuildStateMapForProcesses(ctx, cfg.Source.ProcessID, cfg.Target.ProcessID)
	out.Report = sess.Report()
	if err != nil {
		return err
	}
	out.Mappings = sortedMappings(m)

	rows := make([][]string, 0, len(out.Mappings))
	for _, mp := range out.Mappings {
		rows = append(rows, []string{mp.Type, mp.SourceState, mp.TargetState})
	}
	r, err := app.Renderer(cmd.OutOrStdout())
	if err != nil {
		return err
	}
	return r.Render(out, []string{"TYPE", "SOURCE STATE", "TARGET STATE"}, rows)
}

func sortedMappings(m domain.StateMap) []stateMapping {
	out := make([]stateMapping, 0, len(m))
	for k, v := range m {
		out = append(out, stateMapping{Type: k.Type, SourceState: k.State, TargetState: v})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Type != out[j].Type {
			return out[i].Type < out[j].Type
		}
		return out[i].SourceState < out[j].SourceState
	})
	return out
}
