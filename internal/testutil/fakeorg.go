package testutil

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/url"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/lherron/orgsync/internal/domain"
	"github.com/lherron/orgsync/internal/patch"
)

// Operation names accepted by FakeOrg.Fail and FakeOrg.Calls.
const (
	OpQuery        = "query"
	OpBatchFetch   = "batch"
	OpGet          = "get"
	OpCreate       = "create"
	OpUpdate       = "update"
	OpUpload       = "upload"
	OpDownload     = "download"
	OpListComments = "list-comments"
	OpAddComment   = "add-comment"
	OpGetNodes     = "get-nodes"
	OpCreateNode   = "create-node"
	OpUpdateNode   = "update-node"
	OpListTypes    = "list-types"
	OpListStates   = "list-states"
	OpCreateState  = "create-state"
	OpHideState    = "hide-state"
)

const maxBatch = 200

type fakeItem struct {
	rev       int
	fields    map[string]any
	relations []domain.Relation
}

type fakeBlob struct {
	name string
	data []byte
}

// FakeOrg is an in-memory organization with one project. It implements the
// full endpoint surface used by the migration engine.
type FakeOrg struct {
	mu sync.Mutex

	Name        string
	ProjectName string
	BaseURL     string

	// InitialState is the state given to new records.
	InitialState string
	// DropFields lists fields the schema silently does not persist.
	DropFields map[string]bool

	items       map[int]*fakeItem
	nextID      int
	blobs       map[string]fakeBlob
	comments    map[int][]domain.Comment
	nextComment int
	trees       map[domain.StructureGroup]*domain.ClassificationNode
	nextNode    int
	types       map[string][]domain.WorkItemType
	states      map[string][]domain.WorkflowState
	calls       map[string]int
	failures    map[string]error
	clock       time.Time
}

// NewFakeOrg creates an empty organization at https://dev.azure.com/<org>.
func NewFakeOrg(org, project string) *FakeOrg {
	f := &FakeOrg{
		Name:         org,
		ProjectName:  project,
		BaseURL:      "https://dev.azure.com/" + org,
		InitialState: "New",
		DropFields:   make(map[string]bool),
		items:        make(map[int]*fakeItem),
		nextID:       1,
		blobs:        make(map[string]fakeBlob),
		comments:     make(map[int][]domain.Comment),
		trees:        make(map[domain.StructureGroup]*domain.ClassificationNode),
		types:        make(map[string][]domain.WorkItemType),
		states:       make(map[string][]domain.WorkflowState),
		calls:        make(map[string]int),
		failures:     make(map[string]error),
		clock:        time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
	}
	for _, g := range []domain.StructureGroup{domain.StructureAreas, domain.StructureIterations} {
		f.trees[g] = &domain.ClassificationNode{Name: project, StructureType: g.StructureType(), Path: `\` + project}
	}
	return f
}

func (f *FakeOrg) Organization() string { return strings.ToLower(f.Name) }
func (f *FakeOrg) Project() string      { return f.ProjectName }

// Fail makes every later call of op return err. A nil err clears it.
func (f *FakeOrg) Fail(op string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err == nil {
		delete(f.failures, op)
		return
	}
	f.failures[op] = err
}

// Calls returns how often op was invoked.
func (f *FakeOrg) Calls(op string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[op]
}

// ResetCalls zeroes every call counter.
func (f *FakeOrg) ResetCalls() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = make(map[string]int)
}

// enter counts a call and returns the injected failure, if any.
// Callers hold f.mu.
func (f *FakeOrg) enter(ctx context.Context, op string) error {
	f.calls[op]++
	if err := ctx.Err(); err != nil {
		return err
	}
	return f.failures[op]
}

// WorkItemURL is the REST URL of record id.
func (f *FakeOrg) WorkItemURL(id int) string {
	return f.BaseURL + "/_apis/wit/workItems/" + strconv.Itoa(id)
}

// AttachmentURL is the REST URL of attachment id.
func (f *FakeOrg) AttachmentURL(id, name string) string {
	return f.BaseURL + "/_apis/wit/attachments/" + id + "?fileName=" + url.QueryEscape(name)
}

// Seed describes a record to preload.
type Seed struct {
	ID          int
	Type        string
	Title       string
	Description string
	State       string
	ParentID    int
	Fields      map[string]any
}

// AddWorkItem preloads a record and returns its id.
func (f *FakeOrg) AddWorkItem(s Seed) int {
	f.mu.Lock()
	defer f.mu.Unlock()

	id := s.ID
	if id == 0 {
		id = f.nextID
	}
	if id >= f.nextID {
		f.nextID = id + 1
	}
	fields := map[string]any{
		domain.FieldWorkItemType: s.Type,
		domain.FieldTitle:        s.Title,
		domain.FieldState:        s.State,
		domain.FieldTeamProject:  f.ProjectName,
	}
	if s.Description != "" {
		fields[domain.FieldDescription] = s.Description
	}
	if s.State == "" {
		fields[domain.FieldState] = f.InitialState
	}
	for k, v := range s.Fields {
		fields[k] = v
	}
	item := &fakeItem{rev: 1, fields: fields, relations: []domain.Relation{}}
	if s.ParentID > 0 {
		item.relations = append(item.relations, domain.Relation{Rel: domain.RelParent, URL: f.WorkItemURL(s.ParentID)})
	}
	f.items[id] = item
	return id
}

// SetField overwrites one field of record id.
func (f *FakeOrg) SetField(id int, field string, value any) {
	f.mu.Lock()
	defer f.mu.Unlock()
	item := f.items[id]
	item.fields[field] = value
	item.rev++
}

// AttachFile uploads data and attaches it to record id under name.
func (f *FakeOrg) AttachFile(id int, name string, data []byte) domain.AttachmentRef {
	f.mu.Lock()
	defer f.mu.Unlock()
	ref := f.storeBlob(name, data)
	item := f.items[id]
	item.relations = append(item.relations, domain.Relation{
		Rel:        domain.RelAttachment,
		URL:        ref.URL,
		Attributes: map[string]any{"name": name},
	})
	item.rev++
	return ref
}

// StoreAttachment uploads data without attaching it to a record.
func (f *FakeOrg) StoreAttachment(name string, data []byte) domain.AttachmentRef {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.storeBlob(name, data)
}

func (f *FakeOrg) storeBlob(name string, data []byte) domain.AttachmentRef {
	id := uuid.NewString()
	f.blobs[id] = fakeBlob{name: name, data: append([]byte(nil), data...)}
	return domain.AttachmentRef{ID: id, URL: f.AttachmentURL(id, name)}
}

// AttachmentCount returns the number of stored attachments.
func (f *FakeOrg) AttachmentCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.blobs)
}

// SeedComment preloads a comment.
func (f *FakeOrg) SeedComment(id int, author, text string, at time.Time) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextComment++
	f.comments[id] = append(f.comments[id], domain.Comment{ID: f.nextComment, Text: text, Author: author, CreatedAt: at})
}

// WorkItem returns a snapshot of record id, or nil.
func (f *FakeOrg) WorkItem(id int) *domain.WorkItem {
	f.mu.Lock()
	defer f.mu.Unlock()
	item, ok := f.items[id]
	if !ok {
		return nil
	}
	wi, _ := f.snapshot(id, item, nil, true)
	return wi
}

// WorkItems returns snapshots of every record ordered by id.
func (f *FakeOrg) WorkItems() []*domain.WorkItem {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*domain.WorkItem
	for _, id := range f.sortedIDs() {
		wi, _ := f.snapshot(id, f.items[id], nil, true)
		out = append(out, wi)
	}
	return out
}

// Comments returns the comments of record id.
func (f *FakeOrg) Comments(id int) []domain.Comment {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]domain.Comment(nil), f.comments[id]...)
}

// SetTree replaces the children of a classification group root.
func (f *FakeOrg) SetTree(group domain.StructureGroup, children ...*domain.ClassificationNode) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.trees[group].Children = children
}

// Tree returns a copy of a classification group.
func (f *FakeOrg) Tree(group domain.StructureGroup) *domain.ClassificationNode {
	f.mu.Lock()
	defer f.mu.Unlock()
	return cloneNode(f.trees[group])
}

// AddProcessType registers a work item type with its states on a process.
func (f *FakeOrg) AddProcessType(process string, wit domain.WorkItemType, states ...domain.WorkflowState) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.types[process] = append(f.types[process], wit)
	for i := range states {
		if states[i].ID == "" {
			states[i].ID = uuid.NewString()
		}
	}
	f.states[process+"/"+wit.ReferenceName] = append([]domain.WorkflowState(nil), states...)
}

// States returns the states of a type ordered by order.
func (f *FakeOrg) States(process, witRef string) []domain.WorkflowState {
	f.mu.Lock()
	defer f.mu.Unlock()
	return sortedStates(f.states[process+"/"+witRef])
}

func (f *FakeOrg) sortedIDs() []int {
	ids := make([]int, 0, len(f.items))
	for id := range f.items {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	return ids
}

func (f *FakeOrg) snapshot(id int, item *fakeItem, only []string, withRelations bool) (*domain.WorkItem, error) {
	fields := make(map[string]any, len(item.fields))
	if only == nil {
		for k, v := range item.fields {
			fields[k] = v
		}
	} else {
		for _, k := range only {
			if v, ok := item.fields[k]; ok {
				fields[k] = v
			}
		}
	}
	var rels []domain.Relation
	if withRelations {
		rels = make([]domain.Relation, 0, len(item.relations))
		for _, r := range item.relations {
			c := r
			if r.Attributes != nil {
				c.Attributes = make(map[string]any, len(r.Attributes))
				for k, v := range r.Attributes {
					c.Attributes[k] = v
				}
			}
			rels = append(rels, c)
		}
	} else if p := parentURL(item.relations); p != "" {
		fields[domain.FieldParent], _ = domain.WorkItemIDFromURL(p)
	}
	return domain.FromFields(id, item.rev, f.WorkItemURL(id), fields, rels)
}

func parentURL(rels []domain.Relation) string {
	for _, r := range rels {
		if r.Rel == domain.RelParent {
			return r.URL
		}
	}
	return ""
}

var wiqlCondition = regexp.MustCompile(`\[([^\]]+)\]\s*=\s*'([^']*)'`)

// Query understands the equality conditions of the form [Field] = 'value';
// everything else in the WIQL is ignored.
func (f *FakeOrg) Query(ctx context.Context, wiql string) ([]int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.enter(ctx, OpQuery); err != nil {
		return nil, err
	}
	conds := wiqlCondition.FindAllStringSubmatch(wiql, -1)
	var ids []int
	for _, id := range f.sortedIDs() {
		item := f.items[id]
		match := true
		for _, c := range conds {
			v, ok := item.fields[c[1]]
			if !ok || fmt.Sprint(v) != c[2] {
				match = false
				break
			}
		}
		if match {
			ids = append(ids, id)
		}
	}
	return ids, nil
}

func (f *FakeOrg) BatchFetch(ctx context.Context, ids []int, fields []string) ([]*domain.WorkItem, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.enter(ctx, OpBatchFetch); err != nil {
		return nil, err
	}
	if len(ids) > maxBatch {
		return nil, fmt.Errorf("batch of %d ids exceeds %d", len(ids), maxBatch)
	}
	var out []*domain.WorkItem
	for _, id := range ids {
		item, ok := f.items[id]
		if !ok {
			continue
		}
		wi, err := f.snapshot(id, item, fields, false)
		if err != nil {
			return nil, err
		}
		out = append(out, wi)
	}
	return out, nil
}

func (f *FakeOrg) GetWorkItem(ctx context.Context, id int) (*domain.WorkItem, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.enter(ctx, OpGet); err != nil {
		return nil, err
	}
	item, ok := f.items[id]
	if !ok {
		return nil, fmt.Errorf("work item %d: %w", id, domain.ErrNotFound)
	}
	return f.snapshot(id, item, nil, true)
}

func (f *FakeOrg) CreateWorkItem(ctx context.Context, witType string, p patch.Patch) (*domain.WorkItem, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.enter(ctx, OpCreate); err != nil {
		return nil, err
	}
	rels, err := p.Relations()
	if err != nil {
		return nil, err
	}
	if err := checkSingleParent(nil, rels); err != nil {
		return nil, err
	}

	id := f.nextID
	f.nextID++
	item := &fakeItem{
		rev: 1,
		fields: map[string]any{
			domain.FieldWorkItemType: witType,
			domain.FieldState:        f.InitialState,
			domain.FieldTeamProject:  f.ProjectName,
		},
		relations: append([]domain.Relation{}, rels...),
	}
	f.applyFields(item, p.Fields())
	f.items[id] = item
	return f.snapshot(id, item, nil, true)
}

func (f *FakeOrg) UpdateWorkItem(ctx context.Context, id int, p patch.Patch) (*domain.WorkItem, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.enter(ctx, OpUpdate); err != nil {
		return nil, err
	}
	item, ok := f.items[id]
	if !ok {
		return nil, fmt.Errorf("work item %d: %w", id, domain.ErrNotFound)
	}
	if rev, guarded := p.GuardRevision(); guarded {
		if err := domain.CheckRevision(id, rev, item.rev); err != nil {
			return nil, err
		}
	}
	rels, err := p.Relations()
	if err != nil {
		return nil, err
	}
	if err := checkSingleParent(item.relations, rels); err != nil {
		return nil, err
	}
	f.applyFields(item, p.Fields())
	item.relations = append(item.relations, rels...)
	item.rev++
	return f.snapshot(id, item, nil, true)
}

func (f *FakeOrg) applyFields(item *fakeItem, fields map[string]any) {
	for k, v := range fields {
		if f.DropFields[k] {
			continue
		}
		item.fields[k] = v
	}
}

func checkSingleParent(existing, added []domain.Relation) error {
	n := 0
	for _, r := range append(append([]domain.Relation(nil), existing...), added...) {
		if r.Rel == domain.RelParent {
			n++
		}
	}
	if n > 1 {
		return fmt.Errorf("a work item can have only one parent")
	}
	return nil
}

func (f *FakeOrg) UploadAttachment(ctx context.Context, name string, r io.Reader) (domain.AttachmentRef, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.enter(ctx, OpUpload); err != nil {
		return domain.AttachmentRef{}, err
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return domain.AttachmentRef{}, err
	}
	return f.storeBlob(name, data), nil
}

func (f *FakeOrg) DownloadAttachment(ctx context.Context, id string) (io.ReadCloser, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.enter(ctx, OpDownload); err != nil {
		return nil, err
	}
	blob, ok := f.blobs[strings.ToLower(id)]
	if !ok {
		return nil, fmt.Errorf("attachment %s: %w", id, domain.ErrNotFound)
	}
	return io.NopCloser(bytes.NewReader(blob.data)), nil
}

// AttachmentData returns the bytes of attachment id.
func (f *FakeOrg) AttachmentData(id string) ([]byte, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	blob, ok := f.blobs[strings.ToLower(id)]
	return blob.data, ok
}

func (f *FakeOrg) ListComments(ctx context.Context, workItemID int) ([]domain.Comment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.enter(ctx, OpListComments); err != nil {
		return nil, err
	}
	out := append([]domain.Comment(nil), f.comments[workItemID]...)
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (f *FakeOrg) AddComment(ctx context.Context, workItemID int, text string) (domain.Comment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.enter(ctx, OpAddComment); err != nil {
		return domain.Comment{}, err
	}
	if _, ok := f.items[workItemID]; !ok {
		return domain.Comment{}, fmt.Errorf("work item %d: %w", workItemID, domain.ErrNotFound)
	}
	f.nextComment++
	f.clock = f.clock.Add(time.Second)
	c := domain.Comment{ID: f.nextComment, Text: text, Author: "orgsync", CreatedAt: f.clock}
	f.comments[workItemID] = append(f.comments[workItemID], c)
	return c, nil
}

func (f *FakeOrg) GetNodeTree(ctx context.Context, group domain.StructureGroup) (*domain.ClassificationNode, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.enter(ctx, OpGetNodes); err != nil {
		return nil, err
	}
	return cloneNode(f.trees[group]), nil
}

func (f *FakeOrg) CreateNode(ctx context.Context, group domain.StructureGroup, parentPath string, node *domain.ClassificationNode) (*domain.ClassificationNode, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.enter(ctx, OpCreateNode); err != nil {
		return nil, err
	}
	parent := f.findNode(group, parentPath)
	if parent == nil {
		return nil, fmt.Errorf("node %q: %w", parentPath, domain.ErrNotFound)
	}
	if parent.FindChild(node.Name) != nil {
		return nil, fmt.Errorf("node %q already exists under %q", node.Name, parentPath)
	}
	f.nextNode++
	created := &domain.ClassificationNode{
		ID:            f.nextNode,
		Name:          node.Name,
		StructureType: group.StructureType(),
		Path:          parent.Path + `\` + node.Name,
		Attributes:    cloneAttributes(node.Attributes),
	}
	parent.Children = append(parent.Children, created)
	return cloneNode(created), nil
}

func (f *FakeOrg) UpdateNode(ctx context.Context, group domain.StructureGroup, path string, attrs *domain.NodeAttributes) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.enter(ctx, OpUpdateNode); err != nil {
		return err
	}
	n := f.findNode(group, path)
	if n == nil || path == "" {
		return fmt.Errorf("node %q: %w", path, domain.ErrNotFound)
	}
	n.Attributes = cloneAttributes(attrs)
	return nil
}

func (f *FakeOrg) findNode(group domain.StructureGroup, path string) *domain.ClassificationNode {
	n := f.trees[group]
	for _, seg := range strings.Split(strings.Trim(path, "/"), "/") {
		if seg == "" {
			continue
		}
		if n = n.FindChild(seg); n == nil {
			return nil
		}
	}
	return n
}

func cloneNode(n *domain.ClassificationNode) *domain.ClassificationNode {
	if n == nil {
		return nil
	}
	c := *n
	c.Attributes = cloneAttributes(n.Attributes)
	c.Children = nil
	for _, child := range n.Children {
		c.Children = append(c.Children, cloneNode(child))
	}
	return &c
}

func cloneAttributes(a *domain.NodeAttributes) *domain.NodeAttributes {
	if a == nil {
		return nil
	}
	c := *a
	return &c
}

func (f *FakeOrg) ListWorkItemTypes(ctx context.Context, processID string) ([]domain.WorkItemType, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.enter(ctx, OpListTypes); err != nil {
		return nil, err
	}
	return append([]domain.WorkItemType(nil), f.types[processID]...), nil
}

func (f *FakeOrg) ListStates(ctx context.Context, processID, witRef string) ([]domain.WorkflowState, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.enter(ctx, OpListStates); err != nil {
		return nil, err
	}
	states, ok := f.states[processID+"/"+witRef]
	if !ok {
		return nil, fmt.Errorf("type %s in process %s: %w", witRef, processID, domain.ErrNotFound)
	}
	return sortedStates(states), nil
}

func (f *FakeOrg) CreateState(ctx context.Context, processID, witRef string, state domain.WorkflowState) (domain.WorkflowState, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.enter(ctx, OpCreateState); err != nil {
		return domain.WorkflowState{}, err
	}
	key := processID + "/" + witRef
	states := f.states[key]
	for i := range states {
		if states[i].Name == state.Name {
			return domain.WorkflowState{}, fmt.Errorf("state %q already exists", state.Name)
		}
	}
	for i := range states {
		if states[i].Order >= state.Order {
			states[i].Order++
		}
	}
	state.ID = uuid.NewString()
	state.CustomizationType = "custom"
	f.states[key] = append(states, state)
	return state, nil
}

func (f *FakeOrg) HideState(ctx context.Context, processID, witRef, stateID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.enter(ctx, OpHideState); err != nil {
		return err
	}
	states := f.states[processID+"/"+witRef]
	for i := range states {
		if states[i].ID == stateID {
			states[i].Hidden = true
			return nil
		}
	}
	return fmt.Errorf("state %s: %w", stateID, domain.ErrNotFound)
}

func sortedStates(states []domain.WorkflowState) []domain.WorkflowState {
	out := append([]domain.WorkflowState(nil), states...)
	sort.SliceStable(out, func(i, j int) bool { return out[i].Order < out[j].Order })
	return out
}
