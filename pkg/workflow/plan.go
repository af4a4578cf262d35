package workflow

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dukex/packflow/pkg/expression"
	"github.com/dukex/packflow/pkg/models"
	"github.com/dukex/packflow/pkg/protocol"
	"github.com/dukex/packflow/pkg/registry"
	"github.com/robfig/cron/v3"
)

// Plan is a workflow compiled for execution: steps and actions indexed by
// identifier, handlers built and cron schedules parsed. Plans are immutable
// and shared by every run of the workflow.
type Plan struct {
	Workflow *models.Workflow

	steps     map[string]*models.WorkflowStep
	actions   map[string]*boundAction
	schedules map[string]cron.Schedule
}

type boundAction struct {
	def     *models.WorkflowAction
	handler protocol.Action
	timeout time.Duration
}

// ID returns the workflow identifier.
func (p *Plan) ID() string {
	return p.Workflow.ID
}

// Step returns the step with the given identifier.
func (p *Plan) Step(id string) (*models.WorkflowStep, bool) {
	step, ok := p.steps[id]

	return step, ok
}

// Schedule returns the parsed cron schedule of a scheduled trigger.
func (p *Plan) Schedule(triggerID string) (cron.Schedule, bool) {
	schedule, ok := p.schedules[triggerID]

	return schedule, ok
}

// ParseCron parses a standard five-field cron expression or a descriptor such as "@hourly".
func ParseCron(spec string) (cron.Schedule, error) {
	schedule, err := cron.ParseStandard(spec)
	if err != nil {
		return nil, &models.ValidationError{Path: "cron", Message: fmt.Sprintf("invalid expression %q", spec), Err: err}
	}

	return schedule, nil
}

// Compile validates a workflow and binds its actions to registered handlers.
// Every problem found is reported, joined into one error, before any run can
// start: unknown action types, dangling edges, malformed conditions and
// unparsable schedules are all load-time failures.
func Compile(ctx context.Context, wf *models.Workflow, reg *registry.Registry) (*Plan, error) {
	plan := &Plan{
		Workflow:  wf,
		steps:     make(map[string]*models.WorkflowStep, len(wf.Steps)),
		actions:   make(map[string]*boundAction, len(wf.Actions)),
		schedules: map[string]cron.Schedule{},
	}

	var errs []error

	fail := func(path, format string, args ...any) {
		errs = append(errs, models.NewValidationError(wf.ID+"."+path, format, args...))
	}

	if wf.ID == "" {
		fail("id", "workflow id is required")
	}

	for _, action := range wf.Actions {
		path := "actions." + action.ID

		if _, dup := plan.actions[action.ID]; dup {
			fail(path, "duplicate action id")

			continue
		}

		handler, err := reg.CreateAction(ctx, action.Type, action.Config)
		if err != nil {
			errs = append(errs, &models.ValidationError{Path: wf.ID + "." + path, Message: "cannot bind action", Err: err})

			continue
		}

		var timeout time.Duration

		if action.Timeout != "" {
			timeout, err = time.ParseDuration(action.Timeout)
			if err != nil || timeout <= 0 {
				fail(path+".timeout", "invalid duration %q", action.Timeout)

				continue
			}
		}

		plan.actions[action.ID] = &boundAction{def: action, handler: handler, timeout: timeout}
	}

	for _, step := range wf.Steps {
		if _, dup := plan.steps[step.ID]; dup {
			fail("steps."+step.ID, "duplicate step id")

			continue
		}

		plan.steps[step.ID] = step
	}

	if _, ok := plan.steps[wf.StartStep]; !ok {
		fail("startStep", "step %q does not exist", wf.StartStep)
	}

	for _, step := range wf.Steps {
		errs = append(errs, plan.checkStep(wf.ID, step)...)
	}

	for _, trigger := range wf.Triggers {
		errs = append(errs, plan.checkTrigger(wf.ID, trigger)...)
	}

	if err := errors.Join(errs...); err != nil {
		return nil, err
	}

	return plan, nil
}

func (p *Plan) checkStep(workflowID string, step *models.WorkflowStep) []error {
	var errs []error

	path := workflowID + ".steps." + step.ID

	for _, edge := range []struct{ name, target string }{
		{"onSuccessStep", step.OnSuccessStep},
		{"onFailureStep", step.OnFailureStep},
	} {
		if edge.target == "" {
			continue
		}

		if _, ok := p.steps[edge.target]; !ok {
			errs = append(errs, models.NewValidationError(path+"."+edge.name, "step %q does not exist", edge.target))
		}
	}

	// Only terminal steps may end a run successfully.
	if !step.IsTerminal {
		if step.OnSuccessStep == "" {
			errs = append(errs, models.NewValidationError(path+".onSuccessStep", "non-terminal step needs a next step"))
		}

		if step.Conditions != nil && step.OnFailureStep == "" {
			errs = append(errs, models.NewValidationError(path+".onFailureStep",
				"conditional step needs a step to follow when its conditions do not hold"))
		}
	}

	for _, actionID := range step.Actions {
		if _, ok := p.actions[actionID]; ok {
			continue
		}

		if _, declared := p.Workflow.ActionByID(actionID); !declared {
			errs = append(errs, models.NewValidationError(path+".actions", "action %q is not declared", actionID))
		}
	}

	if err := expression.Validate(step.Conditions); err != nil {
		errs = append(errs, &models.ValidationError{Path: path + ".conditions", Message: "invalid condition", Err: err})
	}

	return errs
}

func (p *Plan) checkTrigger(workflowID string, trigger *models.WorkflowTrigger) []error {
	var errs []error

	path := workflowID + ".triggers." + trigger.ID

	switch trigger.Type {
	case models.TriggerTypeScheduled:
		schedule, err := ParseCron(trigger.Cron)
		if err != nil {
			errs = append(errs, &models.ValidationError{Path: path, Message: "invalid schedule", Err: err})
		} else {
			p.schedules[trigger.ID] = schedule
		}
	case models.TriggerTypeManual:
		if trigger.OnEvent == "" {
			errs = append(errs, models.NewValidationError(path+".onEvent", "manual triggers need an onEvent kind"))
		}
	default:
		errs = append(errs, models.NewValidationError(path+".type", "unknown trigger type %q", trigger.Type))
	}

	if err := expression.Validate(trigger.DataFilter); err != nil {
		errs = append(errs, &models.ValidationError{Path: path + ".dataFilter", Message: "invalid filter", Err: err})
	}

	return errs
}
