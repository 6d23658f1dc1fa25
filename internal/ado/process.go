package ado

import (
	"context"
	"fmt"
	"net/http"
	"net/url"

	"github.com/lherron/orgsync/internal/domain"
)

func statesPath(processID, witRef string) string {
	return "work/processes/" + url.PathEscape(processID) + "/workItemTypes/" + url.PathEscape(witRef) + "/states"
}

// ListWorkItemTypes lists the types of an inherited process.
func (c *Client) ListWorkItemTypes(ctx context.Context, processID string) ([]domain.WorkItemType, error) {
	var out struct {
		Value []domain.WorkItemType `json:"value"`
	}
	u := c.orgURL("work/processes/"+url.PathEscape(processID)+"/workitemtypes", nil)
	if err := c.do(ctx, http.MethodGet, u, "", nil, &out); err != nil {
		return nil, fmt.Errorf("list types of process %s: %w", processID, err)
	}
	return out.Value, nil
}

// ListStates lists the workflow states of a type.
func (c *Client) ListStates(ctx context.Context, processID, witRef string) ([]domain.WorkflowState, error) {
	var out struct {
		Value []domain.WorkflowState `json:"value"`
	}
	if err := c.do(ctx, http.MethodGet, c.orgURL(statesPath(processID, witRef), nil), "", nil, &out); err != nil {
		return nil, fmt.Errorf("list states of %s: %w", witRef, err)
	}
	return out.Value, nil
}

// CreateState adds a state at state.Order.
func (c *Client) CreateState(ctx context.Context, processID, witRef string, state domain.WorkflowState) (domain.WorkflowState, error) {
	in := map[string]any{
		"name":          state.Name,
		"color":         state.Color,
		"stateCategory": state.Category,
		"order":         state.Order,
	}
	var out domain.WorkflowState
	if err := c.do(ctx, http.MethodPost, c.orgURL(statesPath(processID, witRef), nil), contentJSON, in, &out); err != nil {
		return domain.WorkflowState{}, fmt.Errorf("create state %q on %s: %w", state.Name, witRef, err)
	}
	return out, nil
}

// HideState hides an inherited state.
func (c *Client) HideState(ctx context.Context, processID, witRef, stateID string) error {
	u := c.orgURL(statesPath(processID, witRef)+"/"+url.PathEscape(stateID), nil)
	if err := c.do(ctx, http.MethodPut, u, contentJSON, map[string]bool{"hidden": true}, nil); err != nil {
		return fmt.Errorf("hide state %s on %s: %w", stateID, witRef, err)
	}
	return nil
}
