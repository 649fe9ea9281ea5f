package models

import "time"

type ActionKind string

const (
	ActionAutoApprove      ActionKind = "auto-approve"
	ActionAutoReject       ActionKind = "auto-reject"
	ActionStatusTransition ActionKind = "status-transition"
	ActionTicketRouting    ActionKind = "ticket-routing"
)

type Operator string

const (
	OpEq       Operator = "="
	OpNeq      Operator = "!="
	OpGt       Operator = ">"
	OpGte      Operator = ">="
	OpLt       Operator = "<"
	OpLte      Operator = "<="
	OpContains Operator = "contains"
)

// Condition values are stored in their canonical string form and parsed
// against the field registry when a rule is saved or loaded.
type Condition struct {
	Field    string   `json:"field"`
	Operator Operator `json:"operator"`
	Value    string   `json:"value"`
}

// Action is a tagged variant: Kind selects which payload field is meaningful.
type Action struct {
	Kind         ActionKind `json:"kind"`
	TargetStatus Status     `json:"targetStatus,omitempty"`
	Queue        string     `json:"queue,omitempty"`
}

// AutomationRule priority is its ID: lower IDs are evaluated first.
type AutomationRule struct {
	ID         int64       `json:"id"`
	Name       string      `json:"name"`
	Enabled    bool        `json:"enabled"`
	Type       ActionKind  `json:"type"`
	Conditions []Condition `json:"conditions"`
	Action     Action      `json:"action"`
	CreatedAt  time.Time   `json:"createdAt"`
	UpdatedAt  time.Time   `json:"updatedAt"`
}
