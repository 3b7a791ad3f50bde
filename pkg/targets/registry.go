// Package targets owns the ordered, activatable set of orchestration
// targets per flow and their field mappings.
package targets

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/flowmesh/flowmesh/pkg/models"
	"github.com/google/uuid"
)

var (
	// ErrTargetNotFound indicates a lookup for an unknown target id.
	ErrTargetNotFound = errors.New("target not found")

	// ErrDuplicateExecutionOrder indicates a mutation that would leave two
	// targets of one flow with the same execution order.
	ErrDuplicateExecutionOrder = errors.New("duplicate execution order")

	// ErrInvalidOrdering indicates a reorder batch that cannot be applied
	// consistently; the prior ordering is left untouched.
	ErrInvalidOrdering = errors.New("invalid ordering")

	// ErrInvalidTarget indicates a target definition that cannot be stored.
	ErrInvalidTarget = errors.New("invalid target")
)

// flowTargets serializes writes per flow; reads on other flows never block.
type flowTargets struct {
	mu      sync.RWMutex
	targets map[string]*models.OrchestrationTarget
}

// Registry is the in-memory target registry. Configuration is read-heavy:
// each flow has its own lock, so concurrent readers proceed while writers
// to the same flow serialize.
type Registry struct {
	mu    sync.RWMutex
	flows map[string]*flowTargets
}

// NewRegistry creates an empty target registry.
func NewRegistry() *Registry {
	return &Registry{flows: make(map[string]*flowTargets)}
}

func (r *Registry) flow(flowID string) *flowTargets {
	r.mu.RLock()
	ft, ok := r.flows[flowID]
	r.mu.RUnlock()

	if ok {
		return ft
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if ft, ok = r.flows[flowID]; ok {
		return ft
	}

	ft = &flowTargets{targets: make(map[string]*models.OrchestrationTarget)}
	r.flows[flowID] = ft

	return ft
}

// TargetOrder pairs a target id with its new execution order for reordering.
type TargetOrder struct {
	TargetID string `json:"target_id" validate:"required"`
	NewOrder int    `json:"new_order"`
}

// AddTarget registers a target, rejecting duplicate execution orders within
// the flow.
func (r *Registry) AddTarget(target *models.OrchestrationTarget) (*models.OrchestrationTarget, error) {
	if target.FlowID == "" {
		return nil, fmt.Errorf("%w: target needs a flow id", ErrInvalidTarget)
	}

	if target.ID == "" {
		target.ID = uuid.New().String()
	}

	now := time.Now().UTC()
	if target.CreatedAt.IsZero() {
		target.CreatedAt = now
	}

	target.UpdatedAt = now

	ft := r.flow(target.FlowID)

	ft.mu.Lock()
	defer ft.mu.Unlock()

	for _, existing := range ft.targets {
		if existing.ExecutionOrder == target.ExecutionOrder {
			return nil, fmt.Errorf("%w: order %d already held by target %s",
				ErrDuplicateExecutionOrder, target.ExecutionOrder, existing.ID)
		}
	}

	ft.targets[target.ID] = target

	return target, nil
}

// UpdateTarget replaces a target's mutable fields, keeping the ordering
// invariant.
func (r *Registry) UpdateTarget(target *models.OrchestrationTarget) (*models.OrchestrationTarget, error) {
	ft := r.flow(target.FlowID)

	ft.mu.Lock()
	defer ft.mu.Unlock()

	existing, ok := ft.targets[target.ID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrTargetNotFound, target.ID)
	}

	for id, other := range ft.targets {
		if id != target.ID && other.ExecutionOrder == target.ExecutionOrder {
			return nil, fmt.Errorf("%w: order %d already held by target %s",
				ErrDuplicateExecutionOrder, target.ExecutionOrder, id)
		}
	}

	existing.Name = target.Name
	existing.ExecutionOrder = target.ExecutionOrder
	existing.AdapterType = target.AdapterType
	existing.AdapterConfig = target.AdapterConfig
	existing.RouterID = target.RouterID
	existing.RetryPolicy = target.RetryPolicy
	existing.UpdatedAt = time.Now().UTC()

	return existing, nil
}

// RemoveTarget deletes a target and, by ownership, its field mappings.
func (r *Registry) RemoveTarget(flowID, targetID string) error {
	ft := r.flow(flowID)

	ft.mu.Lock()
	defer ft.mu.Unlock()

	if _, ok := ft.targets[targetID]; !ok {
		return fmt.Errorf("%w: %s", ErrTargetNotFound, targetID)
	}

	delete(ft.targets, targetID)

	return nil
}

// ActivateTarget re-enables a deactivated target.
func (r *Registry) ActivateTarget(flowID, targetID string) error {
	return r.setActive(flowID, targetID, true)
}

// DeactivateTarget disables a target without deleting it; it is skipped
// during execution and its mappings are retained.
func (r *Registry) DeactivateTarget(flowID, targetID string) error {
	return r.setActive(flowID, targetID, false)
}

func (r *Registry) setActive(flowID, targetID string, active bool) error {
	ft := r.flow(flowID)

	ft.mu.Lock()
	defer ft.mu.Unlock()

	target, ok := ft.targets[targetID]
	if !ok {
		return fmt.Errorf("%w: %s", ErrTargetNotFound, targetID)
	}

	target.Active = active
	target.UpdatedAt = time.Now().UTC()

	return nil
}

// ReorderTargets applies a batch of order changes atomically: either every
// order is applied and the result has no duplicates, or nothing changes.
func (r *Registry) ReorderTargets(flowID string, orders []TargetOrder) ([]*models.OrchestrationTarget, error) {
	ft := r.flow(flowID)

	ft.mu.Lock()
	defer ft.mu.Unlock()

	proposed := make(map[string]int, len(ft.targets))
	for id, target := range ft.targets {
		proposed[id] = target.ExecutionOrder
	}

	for _, order := range orders {
		if _, ok := proposed[order.TargetID]; !ok {
			return nil, fmt.Errorf("%w: unknown target %s", ErrInvalidOrdering, order.TargetID)
		}

		proposed[order.TargetID] = order.NewOrder
	}

	seen := make(map[int]string, len(proposed))
	for id, order := range proposed {
		if holder, dup := seen[order]; dup {
			return nil, fmt.Errorf("%w: targets %s and %s would share order %d",
				ErrInvalidOrdering, holder, id, order)
		}

		seen[order] = id
	}

	now := time.Now().UTC()
	for id, order := range proposed {
		if ft.targets[id].ExecutionOrder != order {
			ft.targets[id].ExecutionOrder = order
			ft.targets[id].UpdatedAt = now
		}
	}

	return sortedTargets(ft, false), nil
}

// GetTarget returns a single target by id.
func (r *Registry) GetTarget(flowID, targetID string) (*models.OrchestrationTarget, error) {
	ft := r.flow(flowID)

	ft.mu.RLock()
	defer ft.mu.RUnlock()

	target, ok := ft.targets[targetID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrTargetNotFound, targetID)
	}

	return target, nil
}

// GetFlowTargets returns the flow's targets sorted ascending by execution
// order, creation time breaking ties.
func (r *Registry) GetFlowTargets(flowID string, activeOnly bool) []*models.OrchestrationTarget {
	ft := r.flow(flowID)

	ft.mu.RLock()
	defer ft.mu.RUnlock()

	return sortedTargets(ft, activeOnly)
}

// LoadFlow seeds the registry with a flow's persisted targets.
func (r *Registry) LoadFlow(flow *models.IntegrationFlow) {
	ft := r.flow(flow.ID)

	ft.mu.Lock()
	defer ft.mu.Unlock()

	ft.targets = make(map[string]*models.OrchestrationTarget, len(flow.Targets))
	for _, target := range flow.Targets {
		ft.targets[target.ID] = target
	}
}

// DropFlow removes every target of a deleted flow (cascade delete).
func (r *Registry) DropFlow(flowID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.flows, flowID)
}

func sortedTargets(ft *flowTargets, activeOnly bool) []*models.OrchestrationTarget {
	result := make([]*models.OrchestrationTarget, 0, len(ft.targets))

	for _, target := range ft.targets {
		if activeOnly && !target.Active {
			continue
		}

		result = append(result, target)
	}

	models.SortTargets(result)

	return result
}
