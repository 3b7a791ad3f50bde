package models

import "time"

// RouterType discriminates the router variants. ExecuteRouting switches
// exhaustively over this tag; a new router kind is a new constant plus a new
// case, not a new subclass.
type RouterType string

const (
	RouterTypeChoice  RouterType = "choice"
	RouterTypeContent RouterType = "content"
)

// ConditionType selects the evaluation strategy for a routing condition.
type ConditionType string

const (
	ConditionTypeSimple   ConditionType = "simple"
	ConditionTypeScript   ConditionType = "script"
	ConditionTypeJSONPath ConditionType = "jsonpath"
)

// SourceType identifies the payload format a content router extracts from.
type SourceType string

const (
	SourceTypeJSON SourceType = "json"
	SourceTypeXML  SourceType = "xml"
)

// RouterChoice is one ordered (condition, targets) pair of a choice router.
type RouterChoice struct {
	Condition     string        `json:"condition"      validate:"required"`
	ConditionType ConditionType `json:"condition_type" validate:"required"`
	TargetIDs     []string      `json:"target_ids"`
}

// RouterConfig is a named routing unit owned by a flow. Exactly one variant
// is populated, selected by Type: Choices/DefaultTargets for choice routers,
// ExtractionPath/SourceType/Routes/DefaultKey for content-based routers.
// Target ids are weak references; a deleted target resolves as "skip".
type RouterConfig struct {
	ID             string         `json:"id"`
	FlowID         string         `json:"flow_id" validate:"required"`
	Name           string         `json:"name"`
	Type           RouterType     `json:"type"    validate:"required"`
	Choices        []RouterChoice `json:"choices,omitempty"`
	DefaultTargets []string       `json:"default_targets,omitempty"`
	ExtractionPath string         `json:"extraction_path,omitempty"`
	SourceType     SourceType     `json:"source_type,omitempty"`
	Routes         map[string][]string `json:"routes,omitempty"`
	DefaultKey     string         `json:"default_key,omitempty"`
	CreatedAt      time.Time      `json:"created_at"`
	UpdatedAt      time.Time      `json:"updated_at"`
}

// Route is a flow-scoped named routing rule for ad-hoc conditional
// forwarding, managed independently of the router abstraction.
type Route struct {
	ID            string        `json:"id"`
	FlowID        string        `json:"flow_id"     validate:"required"`
	Name          string        `json:"name"        validate:"required"`
	Condition     string        `json:"condition"   validate:"required"`
	ConditionType ConditionType `json:"condition_type"`
	Destination   string        `json:"destination" validate:"required"`
	Active        bool          `json:"active"`
	CreatedAt     time.Time     `json:"created_at"`
	UpdatedAt     time.Time     `json:"updated_at"`
}

// RoutingDecision records the outcome of one routing evaluation for a step.
type RoutingDecision struct {
	FlowID         string    `json:"flow_id"`
	StepID         string    `json:"step_id"`
	MatchedTargets []string  `json:"matched_targets"`
	RuleApplied    string    `json:"rule_applied"`
	EvaluatedAt    time.Time `json:"evaluated_at"`
}
