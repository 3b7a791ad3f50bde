package file

import (
	"context"
	"os"
	"sort"

	"github.com/flowmesh/flowmesh/pkg/models"
	"github.com/flowmesh/flowmesh/pkg/persistence"
)

const flowsKind = "flows"

// Flows returns every stored flow, newest first.
func (p *Persistence) Flows(ctx context.Context) ([]*models.IntegrationFlow, error) {
	ids, err := p.listIDs(flowsKind)
	if err != nil {
		return nil, persistence.NewFlowError("Flows", "", err)
	}

	flows := make([]*models.IntegrationFlow, 0, len(ids))

	for _, id := range ids {
		flow, err := p.FlowByID(ctx, id)
		if err != nil {
			return nil, err
		}

		flows = append(flows, flow)
	}

	sort.Slice(flows, func(i, j int) bool {
		return flows[i].CreatedAt.After(flows[j].CreatedAt)
	})

	return flows, nil
}

// SaveFlow writes a flow document, including its embedded targets and
// mappings.
func (p *Persistence) SaveFlow(_ context.Context, flow *models.IntegrationFlow) error {
	if err := p.writeDoc(flowsKind, flow.ID, flow); err != nil {
		return persistence.NewFlowError("SaveFlow", flow.ID, err)
	}

	return nil
}

// FlowByID loads one flow by id.
func (p *Persistence) FlowByID(_ context.Context, id string) (*models.IntegrationFlow, error) {
	var flow models.IntegrationFlow

	if err := p.readDoc(flowsKind, id, &flow); err != nil {
		if os.IsNotExist(err) {
			return nil, persistence.NewFlowError("FlowByID", id, persistence.ErrFlowNotFound)
		}

		return nil, persistence.NewFlowError("FlowByID", id, err)
	}

	return &flow, nil
}

// DeleteFlow removes a flow document.
func (p *Persistence) DeleteFlow(_ context.Context, id string) error {
	if err := p.removeDoc(flowsKind, id); err != nil {
		if os.IsNotExist(err) {
			return persistence.NewFlowError("DeleteFlow", id, persistence.ErrFlowNotFound)
		}

		return persistence.NewFlowError("DeleteFlow", id, err)
	}

	return nil
}
