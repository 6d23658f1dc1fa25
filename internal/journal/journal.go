// Package journal persists a history of migration runs and the outcome of
// every unit each run touched.
package journal

import (
	"database/sql"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/lherron/orgsync/internal/db"
)

// Status is the outcome of a single unit.
type Status string

const (
	StatusMigrated Status = "migrated"
	StatusExisting Status = "existing"
	StatusSkipped  Status = "skipped"
	StatusError    Status = "error"
)

// Entry is one recorded unit outcome.
type Entry struct {
	Seq        int64  `json:"seq" yaml:"seq"`
	Unit       string `json:"unit" yaml:"unit"`
	SourceKey  string `json:"source_key" yaml:"source_key"`
	TargetRef  string `json:"target_ref,omitempty" yaml:"target_ref,omitempty"`
	Status     Status `json:"status" yaml:"status"`
	ErrorKind  string `json:"error_kind,omitempty" yaml:"error_kind,omitempty"`
	Message    string `json:"message,omitempty" yaml:"message,omitempty"`
	RecordedAt string `json:"recorded_at,omitempty" yaml:"recorded_at,omitempty"`
}

// Totals are the aggregated counts stored on a run.
type Totals struct {
	Migrated int `json:"migrated" yaml:"migrated"`
	Existing int `json:"existing" yaml:"existing"`
	Skipped  int `json:"skipped" yaml:"skipped"`
	Errors   int `json:"errors" yaml:"errors"`
}

// Run is a stored run header.
type Run struct {
	ID         string `json:"id" yaml:"id"`
	Kind       string `json:"kind" yaml:"kind"`
	Source     string `json:"source" yaml:"source"`
	Target     string `json:"target" yaml:"target"`
	Status     string `json:"status" yaml:"status"`
	StartedAt  string `json:"started_at" yaml:"started_at"`
	FinishedAt string `json:"finished_at,omitempty" yaml:"finished_at,omitempty"`
	Totals     `yaml:",inline"`
	Message    string `json:"message,omitempty" yaml:"message,omitempty"`
}

// Journal reads and writes the run history.
type Journal struct {
	db *db.DB
}

// New creates a journal over a migrated database.
func New(database *db.DB) *Journal {
	return &Journal{db: database}
}

// RunWriter appends outcomes to one run.
type RunWriter struct {
	journal *Journal
	id      string
}

// StartRun inserts a run header and returns a writer for it.
func (j *Journal) StartRun(kind, source, target string) (*RunWriter, error) {
	id := uuid.New().String()
	_, err := j.db.Exec(`
		INSERT INTO runs (id, kind, source, target) VALUES (?, ?, ?, ?)
	`, id, kind, source, target)
	if err != nil {
		return nil, fmt.Errorf("failed to start run: %w", err)
	}
	return &RunWriter{journal: j, id: id}, nil
}

// ID returns the run id.
func (w *RunWriter) ID() string {
	return w.id
}

// Record appends one outcome.
func (w *RunWriter) Record(e Entry) error {
	_, err := w.journal.db.Exec(`
		INSERT INTO outcomes (run_id, unit, source_key, target_ref, status, error_kind, message)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, w.id, e.Unit, e.SourceKey, nullString(e.TargetRef), string(e.Status), nullString(e.ErrorKind), nullString(e.Message))
	if err != nil {
		return fmt.Errorf("failed to record outcome: %w", err)
	}
	return nil
}

// Finish stores the totals and closes the run. A non-nil runErr marks it failed.
func (w *RunWriter) Finish(totals Totals, runErr error) error {
	status := "completed"
	var message *string
	if runErr != nil {
		status = "failed"
		msg := runErr.Error()
		message = &msg
	}

	_, err := w.journal.db.Exec(`
		UPDATE runs
		SET status = ?, finished_at = strftime('%Y-%m-%dT%H:%M:%SZ','now'),
		    migrated = ?, existing = ?, skipped = ?, errors = ?, message = ?
		WHERE id = ?
	`, status, totals.Migrated, totals.Existing, totals.Skipped, totals.Errors, message, w.id)
	if err != nil {
		return fmt.Errorf("failed to finish run: %w", err)
	}
	return nil
}

// ListRuns returns the most recent runs first. limit <= 0 means no limit.
func (j *Journal) ListRuns(limit int) ([]Run, error) {
	query := `
		SELECT id, kind, source, target, status, started_at, finished_at,
		       migrated, existing, skipped, errors, message
		FROM runs
		ORDER BY started_at DESC, rowid DESC
	`
	var args []any
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := j.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query runs: %w", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, *run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating runs: %w", err)
	}
	return runs, nil
}

// GetRun resolves a run by id or unique id prefix.
func (j *Journal) GetRun(ref string) (*Run, error) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return nil, fmt.Errorf("run id cannot be empty")
	}

	rows, err := j.db.Query(`
		SELECT id, kind, source, target, status, started_at, finished_at,
		       migrated, existing, skipped, errors, message
		FROM runs
		WHERE id = ? OR id LIKE ? || '%'
		LIMIT 2
	`, ref, ref)
	if err != nil {
		return nil, fmt.Errorf("failed to query run: %w", err)
	}
	defer rows.Close()

	var found []*Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		if run.ID == ref {
			return run, nil
		}
		found = append(found, run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating runs: %w", err)
	}

	switch len(found) {
	case 0:
		return nil, fmt.Errorf("run not found: %s", ref)
	case 1:
		return found[0], nil
	default:
		return nil, fmt.Errorf("run id prefix %q is ambiguous", ref)
	}
}

// Outcomes returns the entries of a run in recording order.
func (j *Journal) Outcomes(runID string) ([]Entry, error) {
	rows, err := j.db.Query(`
		SELECT seq, unit, source_key, target_ref, status, error_kind, message, recorded_at
		FROM outcomes
		WHERE run_id = ?
		ORDER BY seq
	`, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to query outcomes: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var e Entry
		var status string
		var targetRef, errorKind, message sql.NullString
		if err := rows.Scan(&e.Seq, &e.Unit, &e.SourceKey, &targetRef, &status, &errorKind, &message, &e.RecordedAt); err != nil {
			return nil, fmt.Errorf("failed to scan outcome: %w", err)
		}
		e.Status = Status(status)
		e.TargetRef = targetRef.String
		e.ErrorKind = errorKind.String
		e.Message = message.String
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating outcomes: %w", err)
	}
	return entries, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRun(row rowScanner) (*Run, error) {
	var r Run
	var finishedAt, message sql.NullString
	err := row.Scan(&r.ID, &r.Kind, &r.Source, &r.Target, &r.Status, &r.StartedAt, &finishedAt,
		&r.Migrated, &r.Existing, &r.Skipped, &r.Errors, &message)
	if err != nil {
		return nil, fmt.Errorf("failed to scan run: %w", err)
	}
	r.FinishedAt = finishedAt.String
	r.Message = message.String
	return &r, nil
}

func nullString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
