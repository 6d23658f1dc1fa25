package syncer

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/lherron/orgsync/internal/domain"
)

// PairWorkItemTypes matches source types with target types by name after
// applying typeMap. Unmatched source types are dropped.
func PairWorkItemTypes(source, target []domain.WorkItemType, typeMap map[string]string) []domain.TypePair {
	var pairs []domain.TypePair
	for _, st := range source {
		want := st.Name
		if mapped, ok := typeMap[st.Name]; ok && mapped != "" {
			want = mapped
		}
		for _, tt := range target {
			if strings.EqualFold(tt.Name, want) {
				pairs = append(pairs, domain.TypePair{Source: st, Target: tt})
				break
			}
		}
	}
	return pairs
}

// InsertionOrder picks the order for a state missing from target.
//
// A state joins the end of its own category when the target already has it.
// Otherwise it is slotted after the closest preceding source category, or
// before the closest following one, that exists on the target. ok is false
// when no slot fits and the order falls back to the end of the list.
func InsertionOrder(source, target []domain.WorkflowState, missing domain.WorkflowState) (order int, ok bool) {
	end := 1
	sameCat, found := 0, false
	for _, t := range target {
		if t.Order >= end {
			end = t.Order + 1
		}
		if t.Category == missing.Category && (!found || t.Order > sameCat) {
			sameCat, found = t.Order, true
		}
	}
	if found {
		return sameCat + 1, true
	}

	ordered := append([]domain.WorkflowState(nil), source...)
	sort.SliceStable(ordered, func(i, j int) bool { return ordered[i].Order < ordered[j].Order })
	idx := -1
	for i, st := range ordered {
		if st.Name == missing.Name {
			idx = i
			break
		}
	}
	if idx < 0 {
		return end, false
	}

	lower, hasLower := 0, false
	for i := idx - 1; i >= 0 && !hasLower; i-- {
		lower, hasLower = categoryBound(target, ordered[i].Category, true)
	}
	upper, hasUpper := 0, false
	for i := idx + 1; i < len(ordered) && !hasUpper; i++ {
		upper, hasUpper = categoryBound(target, ordered[i].Category, false)
	}

	switch {
	case hasLower && hasUpper:
		if lower < upper {
			return lower + 1, true
		}
		return end, false
	case hasLower:
		return lower + 1, true
	case hasUpper:
		return upper, true
	}
	return end, false
}

// categoryBound returns the highest or lowest order of the target
// states in cat.
func categoryBound(target []domain.WorkflowState, cat domain.StateCategory, highest bool) (int, bool) {
	bound, found := 0, false
	for _, t := range target {
		if t.Category != cat {
			continue
		}
		if !found || (highest && t.Order > bound) || (!highest && t.Order < bound) {
			bound, found = t.Order, true
		}
	}
	return bound, found
}

// MapState chooses the target state for a source state: the same name, else
// the lowest-ordered visible state of the same category, else the
// lowest-ordered visible state.
func MapState(st domain.WorkflowState, target []domain.WorkflowState) (string, bool) {
	for _, t := range target {
		if t.Name == st.Name {
			return t.Name, true
		}
	}
	if name, ok := lowestVisible(target, func(t domain.WorkflowState) bool { return t.Category == st.Category }); ok {
		return name, true
	}
	return lowestVisible(target, func(domain.WorkflowState) bool { return true })
}

func lowestVisible(states []domain.WorkflowState, match func(domain.WorkflowState) bool) (string, bool) {
	best, found := domain.WorkflowState{}, false
	for _, t := range states {
		if t.Hidden || !match(t) {
			continue
		}
		if !found || t.Order < best.Order {
			best, found = t, true
		}
	}
	return best.Name, found
}

// BuildStateMap aligns the workflows of every paired type: states missing on
// the target are created (and hidden when hidden system states on the
// source), then every source state is mapped. A failing pair is recorded and
// skipped. The result is installed on the session.
func (s *Session) BuildStateMap(ctx context.Context, sourceProcess, targetProcess string, pairs []domain.TypePair) domain.StateMap {
	m := make(domain.StateMap)
	for _, pair := range pairs {
		s.alignPair(ctx, sourceProcess, targetProcess, pair, m)
	}
	s.states = m
	return m
}

// BuildStateMapForProcesses pairs the work item types of both processes and
// builds the state map for them.
func (s *Session) BuildStateMapForProcesses(ctx context.Context, sourceProcess, targetProcess string) (domain.StateMap, error) {
	srcTypes, err := s.Source.ListWorkItemTypes(ctx, sourceProcess)
	if err != nil {
		return nil, fmt.Errorf("list source types: %w", err)
	}
	dstTypes, err := s.Target.ListWorkItemTypes(ctx, targetProcess)
	if err != nil {
		return nil, fmt.Errorf("list target types: %w", err)
	}
	pairs := PairWorkItemTypes(srcTypes, dstTypes, s.opts.TypeMap)
	s.log.Infof("aligning workflow states of %d type pair(s)", len(pairs))
	return s.BuildStateMap(ctx, sourceProcess, targetProcess, pairs), nil
}

func (s *Session) alignPair(ctx context.Context, sourceProcess, targetProcess string, pair domain.TypePair, m domain.StateMap) {
	pairKey := pair.Source.Name + "->" + pair.Target.Name
	source, err := s.Source.ListStates(ctx, sourceProcess, pair.Source.ReferenceName)
	if err != nil {
		s.warn("%s: list source states: %v", pairKey, err)
		s.record(Outcome{Unit: UnitWorkflow, SourceKey: pairKey, Status: StatusError, Err: err})
		return
	}
	target, err := s.Target.ListStates(ctx, targetProcess, pair.Target.ReferenceName)
	if err != nil {
		s.warn("%s: list target states: %v", pairKey, err)
		s.record(Outcome{Unit: UnitWorkflow, SourceKey: pairKey, Status: StatusError, Err: err})
		return
	}

	sorted := append([]domain.WorkflowState(nil), source...)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Order < sorted[j].Order })

	for _, st := range sorted {
		key := pair.Source.Name + "|" + st.Name
		if hasState(target, st.Name) {
			s.record(Outcome{Unit: UnitWorkflow, SourceKey: key, TargetRef: st.Name, Status: StatusExisting})
			continue
		}

		order, ok := InsertionOrder(source, target, st)
		if !ok {
			s.warn("%s: no ordering slot for state %q; appending at %d", pairKey, st.Name, order)
		}
		created, err := s.Target.CreateState(ctx, targetProcess, pair.Target.ReferenceName, domain.WorkflowState{
			Name:     st.Name,
			Color:    st.Color,
			Category: st.Category,
			Order:    order,
		})
		if err != nil {
			s.warn("%s: create state %q: %v", pairKey, st.Name, err)
			s.record(Outcome{Unit: UnitWorkflow, SourceKey: key, Status: StatusError, Err: err})
			continue
		}
		if created.Order == 0 {
			created.Order = order
		}
		for i := range target {
			if target[i].Order >= order {
				target[i].Order++
			}
		}

		if st.Hidden && st.IsSystem() {
			if err := s.Target.HideState(ctx, targetProcess, pair.Target.ReferenceName, created.ID); err != nil {
				s.log.Debugf("%s: hide state %q: %v", pairKey, st.Name, err)
			} else {
				created.Hidden = true
			}
		}
		target = append(target, created)
		s.log.Infof("%s: created state %q at order %d", pairKey, created.Name, created.Order)
		s.record(Outcome{Unit: UnitWorkflow, SourceKey: key, TargetRef: created.Name, Status: StatusMigrated})
	}

	for _, st := range source {
		if name, ok := MapState(st, target); ok {
			m[domain.StateKey{Type: pair.Source.Name, State: st.Name}] = name
		}
	}
}

func hasState(states []domain.WorkflowState, name string) bool {
	for _, t := range states {
		if t.Name == name {
			return true
		}
	}
	return false
}
