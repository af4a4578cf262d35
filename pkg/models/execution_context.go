package models

// Well-known keys of the evaluation subject.
const (
	SubjectTriggerData = "triggerData"
	SubjectContext     = "context"
	SubjectResult      = "result"
	SubjectVariables   = "variables"
	SubjectRun         = "run"
	SubjectEnv         = "env"
)

// ExecutionContext is the bag of values visible to templates and expressions
// during one run. It is never shared between runs.
type ExecutionContext struct {
	RunID       string         `json:"run_id"`
	WorkflowID  string         `json:"workflow_id"`
	TriggerData map[string]any `json:"trigger_data,omitempty"`
	Values      map[string]any `json:"values,omitempty"`
	Variables   map[string]any `json:"variables,omitempty"`
	Env         map[string]any `json:"-"`
}

// NewExecutionContext creates an empty context for a run.
func NewExecutionContext(runID, workflowID string, triggerData, variables map[string]any) *ExecutionContext {
	if triggerData == nil {
		triggerData = map[string]any{}
	}

	vars := make(map[string]any, len(variables))
	for k, v := range variables {
		vars[k] = v
	}

	return &ExecutionContext{
		RunID:       runID,
		WorkflowID:  workflowID,
		TriggerData: triggerData,
		Values:      map[string]any{},
		Variables:   vars,
	}
}

// Merge applies an action's patch. Every key lands in the context; "result" is
// additionally kept under the action's named slot.
func (c *ExecutionContext) Merge(slot string, patch map[string]any) {
	if c.Values == nil {
		c.Values = map[string]any{}
	}

	for k, v := range patch {
		c.Values[k] = v
	}

	if result, ok := patch[SubjectResult]; ok && slot != "" {
		c.Values[slot] = result
	}
}

// Result returns the output of the most recent successful action.
func (c *ExecutionContext) Result() any {
	return c.Values[SubjectResult]
}

// Subject exposes the context to the evaluator and interpolator. The returned
// map shares values with the context and must be treated as read-only.
func (c *ExecutionContext) Subject() map[string]any {
	return map[string]any{
		SubjectTriggerData: c.TriggerData,
		SubjectContext:     c.Values,
		SubjectResult:      c.Values[SubjectResult],
		SubjectVariables:   c.Variables,
		SubjectEnv:         c.Env,
		SubjectRun: map[string]any{
			"id":         c.RunID,
			"workflowId": c.WorkflowID,
		},
	}
}
