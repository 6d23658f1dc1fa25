package ado

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"

	"github.com/lherron/orgsync/internal/domain"
	"github.com/lherron/orgsync/internal/patch"
)

// MaxBatch is the largest id list workitemsbatch accepts.
const MaxBatch = 200

type wireWorkItem struct {
	ID        int               `json:"id"`
	Rev       int               `json:"rev"`
	URL       string            `json:"url"`
	Fields    map[string]any    `json:"fields"`
	Relations []domain.Relation `json:"relations"`
}

func (w *wireWorkItem) toDomain(withRelations bool) (*domain.WorkItem, error) {
	rels := w.Relations
	if withRelations && rels == nil {
		rels = []domain.Relation{}
	}
	wi, err := domain.FromFields(w.ID, w.Rev, w.URL, w.Fields, rels)
	if err != nil {
		return nil, &domain.ParseError{Input: fmt.Sprintf("work item %d", w.ID), Reason: err.Error()}
	}
	return wi, nil
}

// Query runs a WIQL query scoped to the project.
func (c *Client) Query(ctx context.Context, wiql string) ([]int, error) {
	var out struct {
		WorkItems []struct {
			ID int `json:"id"`
		} `json:"workItems"`
	}
	in := map[string]string{"query": wiql}
	if err := c.do(ctx, http.MethodPost, c.projectURL("wit/wiql", nil), contentJSON, in, &out); err != nil {
		return nil, fmt.Errorf("wiql query: %w", err)
	}
	ids := make([]int, 0, len(out.WorkItems))
	for _, wi := range out.WorkItems {
		ids = append(ids, wi.ID)
	}
	return ids, nil
}

// BatchFetch hydrates up to MaxBatch ids. Ids that no longer exist are omitted.
func (c *Client) BatchFetch(ctx context.Context, ids []int, fields []string) ([]*domain.WorkItem, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	if len(ids) > MaxBatch {
		return nil, fmt.Errorf("batch of %d ids exceeds %d", len(ids), MaxBatch)
	}
	in := map[string]any{
		"ids":         ids,
		"fields":      fields,
		"errorPolicy": "omit",
	}
	var out struct {
		Value []*wireWorkItem `json:"value"`
	}
	if err := c.do(ctx, http.MethodPost, c.projectURL("wit/workitemsbatch", nil), contentJSON, in, &out); err != nil {
		return nil, fmt.Errorf("batch fetch: %w", err)
	}

	items := make([]*domain.WorkItem, 0, len(out.Value))
	for _, w := range out.Value {
		if w == nil {
			continue
		}
		wi, err := w.toDomain(false)
		if err != nil {
			return nil, err
		}
		items = append(items, wi)
	}
	return items, nil
}

// GetWorkItem reads one record with its relations.
func (c *Client) GetWorkItem(ctx context.Context, id int) (*domain.WorkItem, error) {
	q := url.Values{"$expand": {"relations"}}
	var out wireWorkItem
	if err := c.do(ctx, http.MethodGet, c.projectURL("wit/workitems/"+strconv.Itoa(id), q), "", nil, &out); err != nil {
		return nil, fmt.Errorf("get work item %d: %w", id, err)
	}
	return out.toDomain(true)
}

// CreateWorkItem creates a record of witType from a JSON patch.
func (c *Client) CreateWorkItem(ctx context.Context, witType string, p patch.Patch) (*domain.WorkItem, error) {
	u := c.projectURL("wit/workitems/$"+url.PathEscape(witType), nil)
	out, err := c.sendPatch(ctx, http.MethodPost, u, p)
	if err != nil {
		return nil, fmt.Errorf("create %s: %w", witType, err)
	}
	return out.toDomain(true)
}

// UpdateWorkItem applies a JSON patch. A failed revision guard is reported as
// a *domain.RevisionMismatchError.
func (c *Client) UpdateWorkItem(ctx context.Context, id int, p patch.Patch) (*domain.WorkItem, error) {
	out, err := c.sendPatch(ctx, http.MethodPatch, c.projectURL("wit/workitems/"+strconv.Itoa(id), nil), p)
	if err != nil {
		if isRevisionConflict(err) {
			expected, _ := p.GuardRevision()
			return nil, fmt.Errorf("%w: %v", &domain.RevisionMismatchError{ID: id, Expected: expected}, err)
		}
		return nil, fmt.Errorf("update work item %d: %w", id, err)
	}
	return out.toDomain(true)
}

func (c *Client) sendPatch(ctx context.Context, method, rawURL string, p patch.Patch) (*wireWorkItem, error) {
	data, err := p.Marshal()
	if err != nil {
		return nil, err
	}
	resp, err := c.send(ctx, method, rawURL, contentJSONPatch, bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var out wireWorkItem
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decode work item: %w", err)
	}
	return &out, nil
}
