package models

import "time"

// RetryPolicy controls how dispatch failures for a target are retried.
type RetryPolicy struct {
	MaxAttempts int           `json:"max_attempts" validate:"min=1"`
	BaseBackoff time.Duration `json:"base_backoff"`
	MaxBackoff  time.Duration `json:"max_backoff"`
}

// DefaultRetryPolicy is applied when a target declares no policy of its own.
var DefaultRetryPolicy = RetryPolicy{
	MaxAttempts: 3,
	BaseBackoff: 5 * time.Second,
	MaxBackoff:  5 * time.Minute,
}

// NextBackoff computes the delay before the given attempt (exponential, capped).
func (p RetryPolicy) NextBackoff(attemptCount int) time.Duration {
	base := p.BaseBackoff
	if base <= 0 {
		base = DefaultRetryPolicy.BaseBackoff
	}

	maxBackoff := p.MaxBackoff
	if maxBackoff <= 0 {
		maxBackoff = DefaultRetryPolicy.MaxBackoff
	}

	backoff := base
	for range attemptCount {
		backoff *= 2
		if backoff >= maxBackoff {
			return maxBackoff
		}
	}

	return backoff
}

// OrchestrationTarget is one destination/step within a flow. Targets are
// dispatched in ascending ExecutionOrder; inactive targets are skipped but
// keep their mappings.
type OrchestrationTarget struct {
	ID             string          `json:"id"`
	FlowID         string          `json:"flow_id"        validate:"required"`
	Name           string          `json:"name"           validate:"required"`
	ExecutionOrder int             `json:"execution_order"`
	Active         bool            `json:"active"`
	AdapterType    string          `json:"adapter_type"   validate:"required"`
	AdapterConfig  map[string]any  `json:"adapter_config,omitempty"`
	RouterID       string          `json:"router_id,omitempty"`
	RetryPolicy    *RetryPolicy    `json:"retry_policy,omitempty"`
	Mappings       []*FieldMapping `json:"mappings,omitempty"`
	CreatedAt      time.Time       `json:"created_at"`
	UpdatedAt      time.Time       `json:"updated_at"`
}

// EffectiveRetryPolicy returns the target's policy or the default.
func (t *OrchestrationTarget) EffectiveRetryPolicy() RetryPolicy {
	if t.RetryPolicy == nil {
		return DefaultRetryPolicy
	}

	return *t.RetryPolicy
}

// ActiveMappings returns the target's active mappings sorted by mapping order.
func (t *OrchestrationTarget) ActiveMappings() []*FieldMapping {
	active := make([]*FieldMapping, 0, len(t.Mappings))

	for _, mapping := range t.Mappings {
		if mapping.Active {
			active = append(active, mapping)
		}
	}

	SortMappings(active)

	return active
}
