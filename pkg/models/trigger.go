package models

import "strings"

// TriggerType discriminates how a trigger is fired.
type TriggerType string

const (
	TriggerTypeManual    TriggerType = "manual"
	TriggerTypeScheduled TriggerType = "scheduled"
)

// OnEvent is the kind of occurrence a manual trigger listens for.
type OnEvent string

const (
	OnDataAdded     OnEvent = "data_added"
	OnDataEdited    OnEvent = "data_edited"
	OnDataDeleted   OnEvent = "data_deleted"
	OnEventReceived OnEvent = "event_received"
	OnInvoked       OnEvent = "invoked"
)

// NormalizeOnEvent accepts both "data added" and "data_added" spellings.
func NormalizeOnEvent(kind string) OnEvent {
	kind = strings.ToLower(strings.TrimSpace(kind))
	kind = strings.NewReplacer(" ", "_", "-", "_").Replace(kind)

	return OnEvent(kind)
}

// WorkflowTrigger binds an occurrence to the start step of its workflow.
type WorkflowTrigger struct {
	ID          string      `json:"id"                     yaml:"id"          validate:"required"`
	WorkflowID  string      `json:"workflow_id,omitempty"  yaml:"workflowId"`
	Type        TriggerType `json:"type"                   yaml:"type"        validate:"required,oneof=manual scheduled"`
	OnEvent     string      `json:"on_event,omitempty"     yaml:"onEvent"     validate:"required_if=Type manual"`
	TargetModel string      `json:"target_model,omitempty" yaml:"targetModel"`
	DataFilter  any         `json:"data_filter,omitempty"  yaml:"dataFilter"`
	Cron        string      `json:"cron,omitempty"         yaml:"cron"        validate:"required_if=Type scheduled"`
	IsActive    bool        `json:"is_active"              yaml:"isActive"`
}
