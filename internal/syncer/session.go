// Package syncer migrates work items, their artifacts, workflow states and
// classification trees from a source organization to a target organization.
//
// All work runs on the caller's goroutine. A Session owns every run-scoped
// cache (parent map, in-flight guard, failure set, state map), so independent sessions can
// coexist in one process.
package syncer

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/lherron/orgsync/internal/attach"
	"github.com/lherron/orgsync/internal/domain"
	"github.com/lherron/orgsync/internal/logging"
)

// BatchSize is the maximum number of ids hydrated per batch request.
const BatchSize = 200

// Options tune a session.
type Options struct {
	// TrackingField is the target field holding the source id.
	TrackingField string
	// MigrateInlineAttachments copies attachments referenced only from rich text.
	MigrateInlineAttachments bool
	// MaxParentDepth bounds recursive parent resolution.
	MaxParentDepth int
	// Staging configures the local attachment staging area.
	Staging attach.Config
	// TypeMap renames source work item types on the target.
	TypeMap map[string]string
	// CopyFields lists extra fields copied verbatim on create.
	CopyFields []string
	// RemapPaths rewrites the project segment of area/iteration paths.
	RemapPaths bool
	// WIQLFilter is an extra WIQL predicate for the source enumeration.
	WIQLFilter string
}

func (o Options) withDefaults() Options {
	if o.TrackingField == "" {
		o.TrackingField = domain.DefaultTrackingField
	}
	if o.MaxParentDepth <= 0 {
		o.MaxParentDepth = 32
	}
	if o.Staging.StagingDir == "" {
		o.Staging.StagingDir = filepath.Join(os.TempDir(), "orgsync-staging")
	}
	return o
}

// TargetRef identifies a record on the target.
type TargetRef struct {
	ID  int
	URL string
}

// ParentMap maps source ids to target records.
type ParentMap map[int]TargetRef

// AttachmentMap maps source attachment ids to target attachments.
type AttachmentMap map[string]domain.AttachmentRef

// Session holds the state of one migration run.
type Session struct {
	Source Endpoint
	Target Endpoint

	opts     Options
	log      *logging.Logger
	recorder Recorder

	states   domain.StateMap
	parents  ParentMap
	inflight map[int]bool
	done     map[int]bool
	failed   map[int]error
	index    map[int]*domain.WorkItem

	report Report
}

// NewSession creates a session. A nil logger discards output; a nil
// recorder records nothing beyond the in-memory report.
func NewSession(source, target Endpoint, opts Options, log *logging.Logger, recorder Recorder) *Session {
	if log == nil {
		log = logging.Discard()
	}
	return &Session{
		Source:   source,
		Target:   target,
		opts:     opts.withDefaults(),
		log:      log,
		recorder: recorder,
		parents:  make(ParentMap),
		inflight: make(map[int]bool),
		done:     make(map[int]bool),
		failed:   make(map[int]error),
		index:    make(map[int]*domain.WorkItem),
	}
}

// SetStateMap installs a previously built state map.
func (s *Session) SetStateMap(m domain.StateMap) {
	s.states = m
}

// StateMap returns the state map in use, nil when none was built.
func (s *Session) StateMap() domain.StateMap {
	return s.states
}

// Parents exposes the parent map for inspection.
func (s *Session) Parents() ParentMap {
	return s.parents
}

// Report returns a copy of the counts accumulated so far.
func (s *Session) Report() Report {
	return s.report
}

func (s *Session) targetType(sourceType string) string {
	if t, ok := s.opts.TypeMap[sourceType]; ok && t != "" {
		return t
	}
	return sourceType
}

func (s *Session) describe() string {
	return fmt.Sprintf("%s/%s -> %s/%s",
		s.Source.Organization(), s.Source.Project(),
		s.Target.Organization(), s.Target.Project())
}
