package web

import (
	"github.com/dukex/packflow/pkg/models"
	"github.com/dukex/packflow/pkg/workflow"
)

// InvokeWorkflowRequest starts a run of a workflow directly.
type InvokeWorkflowRequest struct {
	TenantID string         `json:"tenant_id" validate:"omitempty,min=1"`
	Data     map[string]any `json:"data"`
}

// RunAccepted is returned once a run has been started.
type RunAccepted struct {
	RunID      string           `json:"run_id"`
	WorkflowID string           `json:"workflow_id"`
	Status     models.RunStatus `json:"status"`
}

// EventAcknowledgement is the only body an event sender receives.
type EventAcknowledgement struct {
	Status string `json:"status"`
}

// WorkflowSummary describes a loaded workflow.
type WorkflowSummary struct {
	ID          string           `json:"id"`
	Name        string           `json:"name"`
	Description string           `json:"description,omitempty"`
	StartStep   string           `json:"start_step"`
	Steps       int              `json:"steps"`
	Triggers    []TriggerSummary `json:"triggers"`
}

// TriggerSummary describes one trigger of a workflow.
type TriggerSummary struct {
	ID          string             `json:"id"`
	Type        models.TriggerType `json:"type"`
	OnEvent     string             `json:"on_event,omitempty"`
	TargetModel string             `json:"target_model,omitempty"`
	Cron        string             `json:"cron,omitempty"`
	IsActive    bool               `json:"is_active"`
}

// SummarizeWorkflow builds the listing entry of a compiled workflow.
func SummarizeWorkflow(plan *workflow.Plan) WorkflowSummary {
	wf := plan.Workflow

	summary := WorkflowSummary{
		ID:          wf.ID,
		Name:        wf.Name,
		Description: wf.Description,
		StartStep:   wf.StartStep,
		Steps:       len(wf.Steps),
		Triggers:    make([]TriggerSummary, 0, len(wf.Triggers)),
	}

	for _, trigger := range wf.Triggers {
		summary.Triggers = append(summary.Triggers, TriggerSummary{
			ID:          trigger.ID,
			Type:        trigger.Type,
			OnEvent:     trigger.OnEvent,
			TargetModel: trigger.TargetModel,
			Cron:        trigger.Cron,
			IsActive:    trigger.IsActive,
		})
	}

	return summary
}
