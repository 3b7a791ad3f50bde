package file

import (
	"context"
	"fmt"
	"sort"

	"github.com/flowmesh/flowmesh/pkg/models"
)

const executionsKind = "executions"

// SaveExecution writes one execution trace document.
func (p *Persistence) SaveExecution(_ context.Context, execution *models.FlowExecution) error {
	return p.writeDoc(executionsKind, execution.ID, execution)
}

// Executions returns a flow's execution traces, newest first, bounded by
// limit when positive.
func (p *Persistence) Executions(_ context.Context, flowID string, limit int) ([]*models.FlowExecution, error) {
	ids, err := p.listIDs(executionsKind)
	if err != nil {
		return nil, fmt.Errorf("failed to list executions: %w", err)
	}

	executions := make([]*models.FlowExecution, 0, len(ids))

	for _, id := range ids {
		var execution models.FlowExecution

		if err := p.readDoc(executionsKind, id, &execution); err != nil {
			return nil, fmt.Errorf("failed to load execution %s: %w", id, err)
		}

		if flowID == "" || execution.FlowID == flowID {
			executions = append(executions, &execution)
		}
	}

	sort.Slice(executions, func(i, j int) bool {
		return executions[i].StartedAt.After(executions[j].StartedAt)
	})

	if limit > 0 && len(executions) > limit {
		executions = executions[:limit]
	}

	return executions, nil
}
