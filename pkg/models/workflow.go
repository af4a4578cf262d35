// Package models defines the core domain models for pack-driven workflow automation.
package models

// Workflow is a named directed graph of steps with one designated start step.
// Workflows are created when a pack is loaded and are immutable afterwards.
type Workflow struct {
	ID          string             `json:"id"                    yaml:"id"          validate:"required"`
	Name        string             `json:"name"                  yaml:"name"        validate:"required,min=3"`
	Description string             `json:"description,omitempty" yaml:"description"`
	StartStep   string             `json:"start_step"            yaml:"startStep"   validate:"required"`
	Steps       []*WorkflowStep    `json:"steps"                 yaml:"steps"       validate:"required,min=1,dive"`
	Actions     []*WorkflowAction  `json:"actions"               yaml:"actions"     validate:"dive"`
	Triggers    []*WorkflowTrigger `json:"triggers,omitempty"    yaml:"triggers"    validate:"dive"`
	Variables   map[string]any     `json:"variables,omitempty"   yaml:"variables"`
}

// WorkflowStep is a node of the step graph. Conditions gate the action list; all
// actions of a step run in declaration order before the step branches.
type WorkflowStep struct {
	ID            string   `json:"id"                        yaml:"id"            validate:"required"`
	WorkflowID    string   `json:"workflow_id,omitempty"     yaml:"workflowId"`
	Name          string   `json:"name,omitempty"            yaml:"name"`
	Conditions    any      `json:"conditions,omitempty"      yaml:"conditions"`
	Actions       []string `json:"actions,omitempty"         yaml:"actions"`
	OnSuccessStep string   `json:"on_success_step,omitempty" yaml:"onSuccessStep"`
	OnFailureStep string   `json:"on_failure_step,omitempty" yaml:"onFailureStep"`
	IsTerminal    bool     `json:"is_terminal"               yaml:"isTerminal"`
}

// WorkflowAction is a typed unit of work. Type selects the registered handler and
// Config is handed to it; Config may contain templates and expressions.
type WorkflowAction struct {
	ID      string         `json:"id"                yaml:"id"      validate:"required"`
	Name    string         `json:"name,omitempty"    yaml:"name"`
	Type    string         `json:"type"              yaml:"type"    validate:"required"`
	Config  map[string]any `json:"config,omitempty"  yaml:"config"`
	Timeout string         `json:"timeout,omitempty" yaml:"timeout"`
}

// SlotName returns the context slot the action's result is also stored under.
func (a *WorkflowAction) SlotName() string {
	if a.Name != "" {
		return a.Name
	}

	return a.ID
}

// StepByID returns the step with the given identifier.
func (w *Workflow) StepByID(id string) (*WorkflowStep, bool) {
	for _, step := range w.Steps {
		if step.ID == id {
			return step, true
		}
	}

	return nil, false
}

// ActionByID returns the action definition with the given identifier.
func (w *Workflow) ActionByID(id string) (*WorkflowAction, bool) {
	for _, action := range w.Actions {
		if action.ID == id {
			return action, true
		}
	}

	return nil, false
}
