package syncer

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/lherron/orgsync/internal/domain"
	"github.com/lherron/orgsync/internal/patch"
)

// Synchronize brings one source record and its artifacts onto the target.
//
// The record is matched first against the run's parent map, then against the
// target's tracking field; only when both miss is a new record created. A
// declared parent is always resolved (and created if needed) before the child
// is created. Artifact failures are recorded and never abort the record.
func (s *Session) Synchronize(ctx context.Context, src *domain.WorkItem) (TargetRef, error) {
	return s.synchronize(ctx, src, 0)
}

func (s *Session) synchronize(ctx context.Context, src *domain.WorkItem, depth int) (TargetRef, error) {
	key := strconv.Itoa(src.ID)

	if ref, ok := s.parents[src.ID]; ok && s.done[src.ID] {
		return ref, nil
	}
	if err, ok := s.failed[src.ID]; ok {
		return TargetRef{}, err
	}
	if depth > s.opts.MaxParentDepth {
		return TargetRef{}, fmt.Errorf("source %d: %w (%d)", src.ID, domain.ErrMaxDepth, s.opts.MaxParentDepth)
	}
	if err := ctx.Err(); err != nil {
		return TargetRef{}, err
	}

	s.inflight[src.ID] = true
	defer delete(s.inflight, src.ID)

	existing, err := s.lookupTracked(ctx, src.ID)
	if err != nil {
		err = fmt.Errorf("lookup source %d on target: %w", src.ID, err)
		s.failed[src.ID] = err
		s.log.Errorf("%v", err)
		s.record(Outcome{Unit: UnitWorkItem, SourceKey: key, Status: StatusError, Err: err})
		return TargetRef{}, err
	}
	if existing != nil {
		s.parents[src.ID] = TargetRef{ID: existing.ID, URL: existing.URL}
	}

	parent := s.resolveParent(ctx, src, depth)

	target := existing
	status := StatusExisting
	if target == nil {
		target, err = s.create(ctx, src, parent)
		if err != nil {
			s.failed[src.ID] = err
			s.log.Errorf("create target for source %d: %v", src.ID, err)
			s.record(Outcome{Unit: UnitWorkItem, SourceKey: key, Status: StatusError, Err: err})
			return TargetRef{}, err
		}
		status = StatusMigrated
		s.parents[src.ID] = TargetRef{ID: target.ID, URL: target.URL}
		s.log.Infof("source %d (%s) created as target %d", src.ID, src.Type, target.ID)
	} else {
		s.log.Debugf("source %d already migrated as target %d", src.ID, target.ID)
	}

	ref := s.parents[src.ID]
	s.done[src.ID] = true

	target = s.ensureParentLink(ctx, src, target, parent)
	amap := make(AttachmentMap)
	target = s.SyncAttachments(ctx, src, target, amap)
	target = s.rewriteDescription(ctx, src.ID, target, amap)
	s.SyncComments(ctx, src.ID, target, amap)

	s.record(Outcome{Unit: UnitWorkItem, SourceKey: key, TargetRef: strconv.Itoa(ref.ID), Status: status})
	return ref, nil
}

// resolveParent returns the target reference of the record's parent, creating
// the parent first when it has not been migrated. It returns nil when the
// record has no parent or the parent cannot be resolved right now.
func (s *Session) resolveParent(ctx context.Context, src *domain.WorkItem, depth int) *TargetRef {
	if !src.HasParent() {
		return nil
	}
	if ref, ok := s.parents[src.ParentID]; ok {
		return &ref
	}
	if s.inflight[src.ParentID] {
		s.warn("source %d: parent %d is already being processed (cycle); linking deferred", src.ID, src.ParentID)
		return nil
	}
	if err, ok := s.failed[src.ParentID]; ok {
		s.warn("source %d: parent %d failed earlier in this run; linking deferred: %v", src.ID, src.ParentID, err)
		return nil
	}

	parentSrc, err := s.sourceRecord(ctx, src.ParentID)
	if err != nil {
		s.warn("source %d: cannot read parent %d: %v", src.ID, src.ParentID, err)
		return nil
	}
	ref, err := s.synchronize(ctx, parentSrc, depth+1)
	if errors.Is(err, domain.ErrMaxDepth) {
		// The parent migrates on its own turn; the link is added by a later run.
		s.warn("source %d: linking to parent %d deferred: %v", src.ID, src.ParentID, err)
		s.record(Outcome{Unit: UnitLink, SourceKey: strconv.Itoa(src.ID), Status: StatusSkipped, Err: err})
		return nil
	}
	if err != nil {
		s.warn("source %d: parent %d not migrated: %v", src.ID, src.ParentID, err)
		return nil
	}
	return &ref
}

// sourceRecord returns a source record from the enumeration index, reading it
// from the source when it was not enumerated.
func (s *Session) sourceRecord(ctx context.Context, id int) (*domain.WorkItem, error) {
	if wi, ok := s.index[id]; ok {
		return wi, nil
	}
	wi, err := s.Source.GetWorkItem(ctx, id)
	if err != nil {
		return nil, err
	}
	s.index[id] = wi
	return wi, nil
}

// TrackingQuery is the WIQL used to find the target record of a source id.
func TrackingQuery(field string, sourceID int) string {
	return fmt.Sprintf("SELECT [%s] FROM WorkItems WHERE [%s] = @project AND [%s] = '%d' ORDER BY [%s]",
		domain.FieldID, domain.FieldTeamProject, field, sourceID, domain.FieldID)
}

// lookupTracked finds the target record whose tracking field holds sourceID.
// Duplicates resolve to the lowest id.
func (s *Session) lookupTracked(ctx context.Context, sourceID int) (*domain.WorkItem, error) {
	ids, err := s.Target.Query(ctx, TrackingQuery(s.opts.TrackingField, sourceID))
	if err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return nil, nil
	}
	if len(ids) > 1 {
		sort.Ints(ids)
		s.warn("source %d is tracked by %d target records %v; using %d", sourceID, len(ids), ids, ids[0])
	}
	return s.Target.GetWorkItem(ctx, ids[0])
}

// create runs the two-phase create: content first, then the workflow state.
func (s *Session) create(ctx context.Context, src *domain.WorkItem, parent *TargetRef) (*domain.WorkItem, error) {
	p := patch.Patch{}.SetField(domain.FieldTitle, src.Title)
	if src.Description != "" {
		p = p.SetField(domain.FieldDescription, src.Description)
	}
	if area := s.remapPath(src.AreaPath); area != "" {
		p = p.SetField(domain.FieldAreaPath, area)
	}
	if iteration := s.remapPath(src.IterationPath); iteration != "" {
		p = p.SetField(domain.FieldIterationPath, iteration)
	}
	for _, field := range s.opts.CopyFields {
		if v, ok := src.Fields[field]; ok && v != nil {
			p = p.SetField(field, v)
		}
	}
	p = p.SetField(s.opts.TrackingField, strconv.Itoa(src.ID))
	if parent != nil {
		p = p.AddRelation(domain.Relation{Rel: domain.RelParent, URL: parent.URL})
	}

	created, err := s.Target.CreateWorkItem(ctx, s.targetType(src.Type), p)
	if err != nil {
		return nil, err
	}

	target := s.verifyTracking(ctx, src.ID, created)
	return s.applyState(ctx, src, target), nil
}

// verifyTracking re-reads a created record and warns when the tracking field
// did not persist. It returns the freshest copy it has.
func (s *Session) verifyTracking(ctx context.Context, sourceID int, created *domain.WorkItem) *domain.WorkItem {
	fresh, err := s.Target.GetWorkItem(ctx, created.ID)
	if err != nil {
		s.warn("source %d: cannot verify target %d: %v", sourceID, created.ID, err)
		return created
	}
	if fresh.StringField(s.opts.TrackingField) != strconv.Itoa(sourceID) {
		err := &domain.IntegrityError{SourceID: sourceID, TargetID: created.ID, Field: s.opts.TrackingField}
		s.warn("%v", err)
		s.record(Outcome{
			Unit:      UnitTracking,
			SourceKey: strconv.Itoa(sourceID),
			TargetRef: strconv.Itoa(created.ID),
			Status:    StatusError,
			Err:       err,
		})
	}
	return fresh
}

// applyState moves a freshly created record to the mapped source state.
func (s *Session) applyState(ctx context.Context, src *domain.WorkItem, target *domain.WorkItem) *domain.WorkItem {
	desired, ok := s.desiredState(src)
	if !ok || desired == "" || desired == target.State {
		return target
	}

	key := strconv.Itoa(src.ID)
	p := patch.Guarded(target.Rev).SetField(domain.FieldState, desired)
	updated, err := s.Target.UpdateWorkItem(ctx, target.ID, p)
	if err != nil {
		s.warn("source %d: set state %q on target %d: %v", src.ID, desired, target.ID, err)
		s.record(Outcome{Unit: UnitState, SourceKey: key, TargetRef: strconv.Itoa(target.ID), Status: StatusError, Err: err})
		return target
	}
	s.record(Outcome{Unit: UnitState, SourceKey: key, TargetRef: strconv.Itoa(target.ID), Status: StatusMigrated})
	return updated
}

// desiredState maps the source state. Without a state map the source name is
// used as is.
func (s *Session) desiredState(src *domain.WorkItem) (string, bool) {
	if s.states == nil {
		return src.State, src.State != ""
	}
	return s.states.Lookup(src.Type, src.State)
}

// ensureParentLink adds the parent relation to a target that lacks it.
func (s *Session) ensureParentLink(ctx context.Context, src *domain.WorkItem, target *domain.WorkItem, parent *TargetRef) *domain.WorkItem {
	if parent == nil || target.HasRelation(domain.RelParent, parent.URL) {
		return target
	}

	key := strconv.Itoa(src.ID)
	if current := target.ParentURL(); current != "" {
		s.warn("target %d already has parent %s; not relinking to %s", target.ID, current, parent.URL)
		s.record(Outcome{Unit: UnitLink, SourceKey: key, TargetRef: strconv.Itoa(target.ID), Status: StatusSkipped})
		return target
	}

	p := patch.Guarded(target.Rev).AddRelation(domain.Relation{Rel: domain.RelParent, URL: parent.URL})
	updated, err := s.Target.UpdateWorkItem(ctx, target.ID, p)
	if err != nil {
		s.warn("link target %d to parent %d: %v", target.ID, parent.ID, err)
		s.record(Outcome{Unit: UnitLink, SourceKey: key, TargetRef: strconv.Itoa(target.ID), Status: StatusError, Err: err})
		return s.refresh(ctx, target)
	}
	s.record(Outcome{Unit: UnitLink, SourceKey: key, TargetRef: strconv.Itoa(target.ID), Status: StatusMigrated})
	return updated
}

// refresh re-reads a target record after a failed update so later guards
// carry the current revision.
func (s *Session) refresh(ctx context.Context, target *domain.WorkItem) *domain.WorkItem {
	fresh, err := s.Target.GetWorkItem(ctx, target.ID)
	if err != nil {
		s.log.Debugf("refresh target %d: %v", target.ID, err)
		return target
	}
	return fresh
}

// remapPath swaps the leading project segment of an area or iteration path.
// It returns "" when remapping is disabled, leaving the target default.
func (s *Session) remapPath(path string) string {
	if path == "" || !s.opts.RemapPaths {
		return ""
	}
	from, to := s.Source.Project(), s.Target.Project()
	if strings.EqualFold(path, from) {
		return to
	}
	if len(path) > len(from) && strings.EqualFold(path[:len(from)], from) && path[len(from)] == '\\' {
		return to + path[len(from):]
	}
	return path
}

// isFatal reports errors that should stop a run rather than a record.
func isFatal(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}
