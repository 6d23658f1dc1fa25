package domain

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Work item field reference names.
const (
	FieldID            = "System.Id"
	FieldRev           = "System.Rev"
	FieldWorkItemType  = "System.WorkItemType"
	FieldTitle         = "System.Title"
	FieldDescription   = "System.Description"
	FieldState         = "System.State"
	FieldParent        = "System.Parent"
	FieldAreaPath      = "System.AreaPath"
	FieldIterationPath = "System.IterationPath"
	FieldTeamProject   = "System.TeamProject"
)

// DefaultTrackingField is the custom field carrying the originating source id.
const DefaultTrackingField = "Custom.SourceWorkitemId"

// Relation types used by the engine.
const (
	RelParent     = "System.LinkTypes.Hierarchy-Reverse"
	RelChild      = "System.LinkTypes.Hierarchy-Forward"
	RelAttachment = "AttachedFile"
)

// CoreFields lists the fields hydrated for every source work item.
var CoreFields = []string{
	FieldID,
	FieldRev,
	FieldWorkItemType,
	FieldTitle,
	FieldDescription,
	FieldState,
	FieldParent,
	FieldAreaPath,
	FieldIterationPath,
}

// Relation is a link from a work item to another resource.
type Relation struct {
	Rel        string         `json:"rel"`
	URL        string         `json:"url"`
	Attributes map[string]any `json:"attributes,omitempty"`
}

// Name returns the "name" attribute, used by attachment relations.
func (r Relation) Name() string {
	if r.Attributes == nil {
		return ""
	}
	name, _ := r.Attributes["name"].(string)
	return name
}

// WorkItem is a hydrated work item snapshot.
//
// The well-known fields are lifted into struct members; everything else the
// store returned is kept in Fields, keyed by reference name.
type WorkItem struct {
	ID            int
	Rev           int
	URL           string
	Type          string
	Title         string
	Description   string
	State         string
	AreaPath      string
	IterationPath string
	ParentID      int
	Relations     []Relation
	Fields        map[string]any
}

// FromFields builds a WorkItem from a raw field map as returned by the store.
// It fails when the id is missing or a well-known field has the wrong shape.
func FromFields(id, rev int, url string, fields map[string]any, relations []Relation) (*WorkItem, error) {
	if id <= 0 {
		if v, ok := fields[FieldID]; ok {
			n, err := ToInt(v)
			if err != nil {
				return nil, fmt.Errorf("work item %s: %w", FieldID, err)
			}
			id = n
		}
	}
	if id <= 0 {
		return nil, fmt.Errorf("work item has no id")
	}
	if rev <= 0 {
		if v, ok := fields[FieldRev]; ok {
			n, err := ToInt(v)
			if err != nil {
				return nil, fmt.Errorf("work item %d %s: %w", id, FieldRev, err)
			}
			rev = n
		}
	}

	wi := &WorkItem{
		ID:        id,
		Rev:       rev,
		URL:       url,
		Relations: relations,
		Fields:    make(map[string]any, len(fields)),
	}
	for k, v := range fields {
		wi.Fields[k] = v
	}

	var err error
	if wi.Type, err = stringField(fields, FieldWorkItemType); err != nil {
		return nil, fmt.Errorf("work item %d: %w", id, err)
	}
	if wi.Title, err = stringField(fields, FieldTitle); err != nil {
		return nil, fmt.Errorf("work item %d: %w", id, err)
	}
	if wi.Description, err = stringField(fields, FieldDescription); err != nil {
		return nil, fmt.Errorf("work item %d: %w", id, err)
	}
	if wi.State, err = stringField(fields, FieldState); err != nil {
		return nil, fmt.Errorf("work item %d: %w", id, err)
	}
	if wi.AreaPath, err = stringField(fields, FieldAreaPath); err != nil {
		return nil, fmt.Errorf("work item %d: %w", id, err)
	}
	if wi.IterationPath, err = stringField(fields, FieldIterationPath); err != nil {
		return nil, fmt.Errorf("work item %d: %w", id, err)
	}
	if v, ok := fields[FieldParent]; ok && v != nil {
		parent, err := ToInt(v)
		if err != nil {
			return nil, fmt.Errorf("work item %d %s: %w", id, FieldParent, err)
		}
		wi.ParentID = parent
	}
	if wi.ParentID == 0 {
		wi.ParentID = parentFromRelations(relations)
	}

	return wi, nil
}

func stringField(fields map[string]any, name string) (string, error) {
	v, ok := fields[name]
	if !ok || v == nil {
		return "", nil
	}
	s, ok := v.(string)
	if !ok {
		return "", fmt.Errorf("field %s: expected string, got %T", name, v)
	}
	return s, nil
}

// parentFromRelations recovers the parent id from a Hierarchy-Reverse relation
// URL when the System.Parent field was not requested.
func parentFromRelations(relations []Relation) int {
	for _, r := range relations {
		if r.Rel != RelParent {
			continue
		}
		if id, ok := WorkItemIDFromURL(r.URL); ok {
			return id
		}
	}
	return 0
}

// WorkItemIDFromURL extracts the trailing numeric id of a work item URL.
func WorkItemIDFromURL(u string) (int, bool) {
	u = strings.TrimRight(u, "/")
	idx := strings.LastIndex(u, "/")
	if idx < 0 || idx == len(u)-1 {
		return 0, false
	}
	id, err := strconv.Atoi(u[idx+1:])
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}

// ToInt converts the numeric shapes produced by JSON decoding into an int.
func ToInt(v any) (int, error) {
	switch n := v.(type) {
	case int:
		return n, nil
	case int64:
		return int(n), nil
	case float64:
		return int(n), nil
	case json.Number:
		i, err := n.Int64()
		return int(i), err
	case string:
		return strconv.Atoi(strings.TrimSpace(n))
	default:
		return 0, fmt.Errorf("expected number, got %T", v)
	}
}

// HasParent reports whether the record declares a parent.
func (w *WorkItem) HasParent() bool {
	return w.ParentID > 0
}

// StringField returns a string-valued field, or "" when absent.
func (w *WorkItem) StringField(name string) string {
	if w.Fields == nil {
		return ""
	}
	switch v := w.Fields[name].(type) {
	case string:
		return v
	case nil:
		return ""
	default:
		return fmt.Sprint(v)
	}
}

// Attachments returns the attachment relations in declaration order.
func (w *WorkItem) Attachments() []Relation {
	var out []Relation
	for _, r := range w.Relations {
		if r.Rel == RelAttachment {
			out = append(out, r)
		}
	}
	return out
}

// HasRelation reports whether a relation of the given type points at url.
// URLs are compared case-insensitively.
func (w *WorkItem) HasRelation(rel, url string) bool {
	for _, r := range w.Relations {
		if r.Rel == rel && strings.EqualFold(strings.TrimRight(r.URL, "/"), strings.TrimRight(url, "/")) {
			return true
		}
	}
	return false
}

// ParentURL returns the URL of the parent relation, if any.
func (w *WorkItem) ParentURL() string {
	for _, r := range w.Relations {
		if r.Rel == RelParent {
			return r.URL
		}
	}
	return ""
}

// Comment is a single discussion entry on a work item.
type Comment struct {
	ID        int
	Text      string
	Author    string
	CreatedAt time.Time
}

// AttachmentRef identifies an uploaded attachment.
type AttachmentRef struct {
	ID  string `json:"id"`
	URL string `json:"url"`
}

// WorkItemType identifies a work item type within a process.
type WorkItemType struct {
	Name          string `json:"name"`
	ReferenceName string `json:"referenceName"`
}

// TypePair matches a source work item type with its target counterpart.
type TypePair struct {
	Source WorkItemType
	Target WorkItemType
}
