// Package patch implements the RFC 6902 JSON Patch documents sent to the
// work item update endpoints.
//
// Every partial update the engine issues starts with a "test" operation on
// /rev so the store rejects it when the record moved on in the meantime.
package patch

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/lherron/orgsync/internal/domain"
)

// Operation represents a single RFC 6902 JSON Patch operation.
type Operation struct {
	Op    string      `json:"op"`              // add, remove, replace, test
	Path  string      `json:"path"`            // JSON Pointer path
	Value interface{} `json:"value,omitempty"` // Value for add/replace/test
	From  string      `json:"from,omitempty"`  // Source path for move/copy
}

// Patch is a sequence of RFC 6902 operations.
type Patch []Operation

// RevisionPath is the pointer tested by revision guards.
const RevisionPath = "/rev"

// Guarded starts a patch with a revision guard for rev.
func Guarded(rev int) Patch {
	return Patch{{Op: "test", Path: RevisionPath, Value: rev}}
}

// FieldPath returns the pointer for a work item field.
func FieldPath(field string) string {
	return "/fields/" + escape(field)
}

// SetField appends an add operation for a field.
func (p Patch) SetField(field string, value interface{}) Patch {
	return append(p, Operation{Op: "add", Path: FieldPath(field), Value: value})
}

// AddRelation appends a relation to the end of the relations array.
func (p Patch) AddRelation(rel domain.Relation) Patch {
	return append(p, Operation{Op: "add", Path: "/relations/-", Value: rel})
}

// GuardRevision returns the revision asserted by the first test operation,
// or false when the patch is unguarded.
func (p Patch) GuardRevision() (int, bool) {
	for _, op := range p {
		if op.Op == "test" && op.Path == RevisionPath {
			rev, err := domain.ToInt(op.Value)
			if err != nil {
				return 0, false
			}
			return rev, true
		}
	}
	return 0, false
}

// Fields returns the field values the patch sets, keyed by reference name.
func (p Patch) Fields() map[string]interface{} {
	out := make(map[string]interface{})
	for _, op := range p {
		if op.Op != "add" && op.Op != "replace" {
			continue
		}
		if name, ok := strings.CutPrefix(op.Path, "/fields/"); ok {
			out[unescape(name)] = op.Value
		}
	}
	return out
}

// Relations returns the relations the patch appends.
func (p Patch) Relations() ([]domain.Relation, error) {
	var out []domain.Relation
	for i, op := range p {
		if op.Op != "add" || !strings.HasPrefix(op.Path, "/relations/") {
			continue
		}
		rel, err := toRelation(op.Value)
		if err != nil {
			return nil, fmt.Errorf("operation %d: %w", i, err)
		}
		out = append(out, rel)
	}
	return out, nil
}

// CountOps returns counts of operations by type.
func (p Patch) CountOps() (adds, replaces, removes, tests int) {
	for _, op := range p {
		switch op.Op {
		case "add":
			adds++
		case "replace":
			replaces++
		case "remove":
			removes++
		case "test":
			tests++
		}
	}
	return adds, replaces, removes, tests
}

// Marshal encodes the patch as the request body.
func (p Patch) Marshal() ([]byte, error) {
	data, err := json.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal patch: %w", err)
	}
	return data, nil
}

func toRelation(v interface{}) (domain.Relation, error) {
	switch r := v.(type) {
	case domain.Relation:
		return r, nil
	case *domain.Relation:
		return *r, nil
	default:
		data, err := json.Marshal(v)
		if err != nil {
			return domain.Relation{}, err
		}
		var rel domain.Relation
		if err := json.Unmarshal(data, &rel); err != nil {
			return domain.Relation{}, fmt.Errorf("invalid relation value: %w", err)
		}
		return rel, nil
	}
}

// escape applies JSON Pointer escaping (RFC 6901) to a single segment.
func escape(s string) string {
	s = strings.ReplaceAll(s, "~", "~0")
	return strings.ReplaceAll(s, "/", "~1")
}

func unescape(s string) string {
	s = strings.ReplaceAll(s, "~1", "/")
	return strings.ReplaceAll(s, "~0", "~")
}
