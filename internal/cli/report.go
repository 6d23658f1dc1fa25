package cli

import (
	"context"
	"io"
	"sort"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/lherron/orgsync/internal/cli/appctx"
	"github.com/lherron/orgsync/internal/domain"
	"github.com/lherron/orgsync/internal/journal"
	"github.com/lherron/orgsync/internal/logging"
	"github.com/lherron/orgsync/internal/syncer"
)

// journalRecorder appends every engine outcome to a journal run.
type journalRecorder struct {
	run    *journal.RunWriter
	log    *logging.Logger
	broken bool
}

func newJournalRecorder(run *journal.RunWriter, log *logging.Logger) *journalRecorder {
	return &journalRecorder{run: run, log: log}
}

func (r *journalRecorder) Record(o syncer.Outcome) {
	e := journal.Entry{
		Unit:      string(o.Unit),
		SourceKey: o.SourceKey,
		TargetRef: o.TargetRef,
		Status:    journal.Status(o.Status),
	}
	if o.Err != nil {
		e.ErrorKind = string(domain.Classify(o.Err))
		e.Message = o.Err.Error()
	}
	if err := r.run.Record(e); err != nil && !r.broken {
		// Only the first failure is logged; the migration itself carries on.
		r.broken = true
		r.log.Warnf("journal: %v", err)
	}
}

func totalsOf(c syncer.Counts) journal.Totals {
	return journal.Totals{
		Migrated: c.Migrated,
		Existing: c.Existing,
		Skipped:  c.Skipped,
		Errors:   c.Errors,
	}
}

// startRun opens a journal run for kind between the configured endpoints.
func startRun(app *appctx.App, kind string) (*journal.RunWriter, error) {
	return app.Journal.StartRun(kind, endpointLabel(app.Source), endpointLabel(app.Target))
}

func endpointLabel(ep syncer.Endpoint) string {
	return ep.Organization() + "/" + ep.Project()
}

func finishRun(app *appctx.App, run *journal.RunWriter, totals syncer.Counts, runErr error) {
	if err := run.Finish(totalsOf(totals), runErr); err != nil {
		app.Log.Warnf("journal: %v", err)
	}
}

func commandContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}

// runReport is what migrating commands print.
type runReport struct {
	RunID  string        `json:"run_id" yaml:"run_id"`
	Kind   string        `json:"kind" yaml:"kind"`
	Report syncer.Report `json:"report" yaml:"report"`
}

func countsRow(label string, c syncer.Counts) []string {
	return []string{
		label,
		strconv.Itoa(c.Migrated),
		strconv.Itoa(c.Existing),
		strconv.Itoa(c.Skipped),
		strconv.Itoa(c.Errors),
	}
}

var countsHeaders = []string{"UNIT", "MIGRATED", "EXISTING", "SKIPPED", "ERRORS"}

func renderReport(app *appctx.App, w io.Writer, out runReport) error {
	r, err := app.Renderer(w)
	if err != nil {
		return err
	}

	units := make([]string, 0, len(out.Report.Units))
	for u := range out.Report.Units {
		units = append(units, string(u))
	}
	sort.Strings(units)

	rows := make([][]string, 0, len(units)+1)
	for _, u := range units {
		rows = append(rows, countsRow(u, out.Report.For(syncer.Unit(u))))
	}
	if len(rows) > 0 {
		rows = append(rows, countsRow("total", out.Report.Totals()))
	}
	return r.Render(out, countsHeaders, rows)
}
