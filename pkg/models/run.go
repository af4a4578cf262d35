package models

import "time"

// RunStatus is the lifecycle state of a WorkflowRun.
type RunStatus string

const (
	RunStatusPending   RunStatus = "Pending"
	RunStatusRunning   RunStatus = "Running"
	RunStatusSucceeded RunStatus = "Succeeded"
	RunStatusFailed    RunStatus = "Failed"
)

// IsTerminal reports whether no further transitions are possible.
func (s RunStatus) IsTerminal() bool {
	return s == RunStatusSucceeded || s == RunStatusFailed
}

// FailureReason classifies why a run ended in RunStatusFailed.
type FailureReason string

const (
	FailureActionError   FailureReason = "action_error"
	FailureCondition     FailureReason = "condition_error"
	FailureCycleLimit    FailureReason = "cycle_limit_exceeded"
	FailureTimeout       FailureReason = "timeout"
	FailureCancelled     FailureReason = "cancelled"
	FailureInvalidGraph  FailureReason = "invalid_graph"
	FailureInternalError FailureReason = "internal_error"
)

// WorkflowRun is one live execution of a workflow. It is mutated only by the
// executor and owns its ExecutionContext exclusively.
type WorkflowRun struct {
	ID            string            `json:"id"`
	WorkflowID    string            `json:"workflow_id"`
	TriggerID     string            `json:"trigger_id,omitempty"`
	TenantID      string            `json:"tenant_id,omitempty"`
	CurrentStep   string            `json:"current_step"`
	Status        RunStatus         `json:"status"`
	Context       *ExecutionContext `json:"context"`
	Iterations    int               `json:"iterations"`
	Error         string            `json:"error,omitempty"`
	FailureReason FailureReason     `json:"failure_reason,omitempty"`
	StartedAt     time.Time         `json:"started_at"`
	EndedAt       *time.Time        `json:"ended_at,omitempty"`
}

// Finish moves the run into a terminal state.
func (r *WorkflowRun) Finish(status RunStatus, at time.Time) {
	r.Status = status
	r.EndedAt = &at
}

// Fail marks the run failed and records the reason against it.
func (r *WorkflowRun) Fail(reason FailureReason, err error, at time.Time) {
	r.FailureReason = reason
	if err != nil {
		r.Error = err.Error()
	}

	r.Finish(RunStatusFailed, at)
}
