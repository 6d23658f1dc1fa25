package syncer

import (
	"context"
	"fmt"

	"github.com/lherron/orgsync/internal/domain"
)

// PlanOnly wraps a target so that workflow changes are simulated. Reads go
// to ep; created states get a placeholder id and hiding is a no-op.
func PlanOnly(ep Endpoint) Endpoint {
	return &planEndpoint{Endpoint: ep}
}

type planEndpoint struct {
	Endpoint

	next int
}

func (p *planEndpoint) CreateState(ctx context.Context, processID, witRef string, state domain.WorkflowState) (domain.WorkflowState, error) {
	if err := ctx.Err(); err != nil {
		return domain.WorkflowState{}, err
	}
	p.next++
	state.ID = fmt.Sprintf("planned-%d", p.next)
	return state, nil
}

func (p *planEndpoint) HideState(ctx context.Context, processID, witRef, stateID string) error {
	return ctx.Err()
}
