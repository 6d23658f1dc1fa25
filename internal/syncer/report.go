package syncer

import "github.com/lherron/orgsync/internal/domain"

// Unit names the kind of thing an outcome is about.
type Unit string

const (
	UnitWorkItem    Unit = "workitem"
	UnitState       Unit = "state"
	UnitLink        Unit = "link"
	UnitAttachment  Unit = "attachment"
	UnitInline      Unit = "inline"
	UnitDescription Unit = "description"
	UnitComment     Unit = "comment"
	UnitTracking    Unit = "tracking"
	UnitWorkflow    Unit = "workflow-state"
	UnitNode        Unit = "node"
)

// Status is the result of one unit.
type Status string

const (
	StatusMigrated Status = "migrated"
	StatusExisting Status = "existing"
	StatusSkipped  Status = "skipped"
	StatusError    Status = "error"
)

// Outcome describes what happened to one unit.
type Outcome struct {
	Unit      Unit
	SourceKey string
	TargetRef string
	Status    Status
	Err       error
}

// Recorder receives every outcome as it happens.
type Recorder interface {
	Record(Outcome)
}

// RecorderFunc adapts a function to Recorder.
type RecorderFunc func(Outcome)

func (f RecorderFunc) Record(o Outcome) { f(o) }

// Counts aggregate outcomes.
type Counts struct {
	Migrated int `json:"migrated" yaml:"migrated"`
	Existing int `json:"existing" yaml:"existing"`
	Skipped  int `json:"skipped" yaml:"skipped"`
	Errors   int `json:"errors" yaml:"errors"`
}

// Add folds other into c.
func (c *Counts) Add(other Counts) {
	c.Migrated += other.Migrated
	c.Existing += other.Existing
	c.Skipped += other.Skipped
	c.Errors += other.Errors
}

func (c *Counts) count(status Status) {
	switch status {
	case StatusMigrated:
		c.Migrated++
	case StatusExisting:
		c.Existing++
	case StatusSkipped:
		c.Skipped++
	case StatusError:
		c.Errors++
	}
}

// Report holds per-unit counts for a run.
type Report struct {
	Units    map[Unit]*Counts         `json:"units" yaml:"units"`
	Kinds    map[domain.ErrorKind]int `json:"error_kinds,omitempty" yaml:"error_kinds,omitempty"`
	Warnings int                      `json:"warnings" yaml:"warnings"`
}

// For returns the counts of one unit.
func (r Report) For(u Unit) Counts {
	if c, ok := r.Units[u]; ok {
		return *c
	}
	return Counts{}
}

// Totals sums all units.
func (r Report) Totals() Counts {
	var total Counts
	for _, c := range r.Units {
		total.Add(*c)
	}
	return total
}

func (s *Session) record(o Outcome) {
	if s.report.Units == nil {
		s.report.Units = make(map[Unit]*Counts)
	}
	c, ok := s.report.Units[o.Unit]
	if !ok {
		c = &Counts{}
		s.report.Units[o.Unit] = c
	}
	c.count(o.Status)

	if o.Err != nil {
		if s.report.Kinds == nil {
			s.report.Kinds = make(map[domain.ErrorKind]int)
		}
		s.report.Kinds[domain.Classify(o.Err)]++
	}

	if s.recorder != nil {
		s.recorder.Record(o)
	}
}

func (s *Session) warn(format string, args ...any) {
	s.report.Warnings++
	s.log.Warnf(format, args...)
}
