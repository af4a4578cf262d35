// Package workflow compiles workflows into executable plans, drives runs
// through their step graph and routes occurrences to matching triggers.
package workflow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/dukex/packflow/pkg/eventbus"
	"github.com/dukex/packflow/pkg/expression"
	"github.com/dukex/packflow/pkg/models"
	"github.com/dukex/packflow/pkg/otelhelper"
	"github.com/dukex/packflow/pkg/persistence"
	"github.com/dukex/packflow/pkg/protocol"
	"github.com/dukex/packflow/pkg/template"
	"github.com/dukex/packflow/pkg/tenant"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// ErrorKey is the context slot describing the action failure that sent a run
// down an onFailureStep edge.
const ErrorKey = "error"

// Limits bound the resources of a single run.
type Limits struct {
	// MaxIterations caps the number of step visits, bounding cyclic graphs.
	MaxIterations int
	// RunTimeout is the wall-clock budget of a run, checked between steps.
	RunTimeout time.Duration
	// ActionTimeout applies to actions that declare no timeout of their own.
	ActionTimeout time.Duration
}

// DefaultLimits returns the limits used when none are configured.
func DefaultLimits() Limits {
	return Limits{
		MaxIterations: 1000,
		RunTimeout:    10 * time.Minute,
		ActionTimeout: 30 * time.Second,
	}
}

// Executor drives runs through the step graph of their plan. It holds no
// per-run state; every run owns its context exclusively.
type Executor struct {
	logger    *slog.Logger
	eval      *expression.Evaluator
	deps      protocol.Dependencies
	limits    Limits
	runs      persistence.RunRepository
	publisher *runPublisher
	tenants   *tenant.Directory
	tracer    trace.Tracer
	now       func() time.Time
}

// ExecutorOption configures an Executor.
type ExecutorOption func(*Executor)

// WithLimits overrides the default run limits. Zero fields keep their default.
func WithLimits(limits Limits) ExecutorOption {
	return func(e *Executor) {
		if limits.MaxIterations > 0 {
			e.limits.MaxIterations = limits.MaxIterations
		}

		if limits.RunTimeout > 0 {
			e.limits.RunTimeout = limits.RunTimeout
		}

		if limits.ActionTimeout > 0 {
			e.limits.ActionTimeout = limits.ActionTimeout
		}
	}
}

// WithRunRepository records a snapshot of every run after each transition.
func WithRunRepository(runs persistence.RunRepository) ExecutorOption {
	return func(e *Executor) {
		e.runs = runs
	}
}

// WithPublisher announces run lifecycle events on the bus.
func WithPublisher(publisher eventbus.EventPublisher) ExecutorOption {
	return func(e *Executor) {
		e.publisher = &runPublisher{publisher: publisher, logger: e.logger}
	}
}

// WithTenants resolves the tenant of each run so its values reach templates as env.
func WithTenants(tenants *tenant.Directory) ExecutorOption {
	return func(e *Executor) {
		e.tenants = tenants
	}
}

// WithTracer sets the tracer used for run and action spans.
func WithTracer(tracer trace.Tracer) ExecutorOption {
	return func(e *Executor) {
		e.tracer = tracer
	}
}

// WithClock overrides the executor clock.
func WithClock(now func() time.Time) ExecutorOption {
	return func(e *Executor) {
		e.now = now
	}
}

// NewExecutor creates an executor. deps holds the collaborators shared by all
// runs; tenant and logger are filled in per run.
func NewExecutor(logger *slog.Logger, eval *expression.Evaluator, deps protocol.Dependencies, opts ...ExecutorOption) *Executor {
	if eval == nil {
		eval = expression.New()
	}

	if deps.Interpolator == nil {
		deps.Interpolator = template.New(eval)
	}

	e := &Executor{
		logger: logger.With("module", "workflow_executor"),
		eval:   eval,
		deps:   deps,
		limits: DefaultLimits(),
		tracer: otelhelper.Tracer(),
		now:    time.Now,
	}

	for _, opt := range opts {
		opt(e)
	}

	return e
}

// NewRun creates a Pending run of plan with its own isolated context.
func (e *Executor) NewRun(plan *Plan, triggerID, tenantID string, triggerData map[string]any) *models.WorkflowRun {
	id := uuid.NewString()

	return &models.WorkflowRun{
		ID:          id,
		WorkflowID:  plan.ID(),
		TriggerID:   triggerID,
		TenantID:    tenantID,
		CurrentStep: plan.Workflow.StartStep,
		Status:      models.RunStatusPending,
		Context:     models.NewExecutionContext(id, plan.ID(), triggerData, plan.Workflow.Variables),
		StartedAt:   e.now().UTC(),
	}
}

// Save records a snapshot of run when a run repository is configured.
func (e *Executor) Save(ctx context.Context, run *models.WorkflowRun) {
	if e.runs == nil {
		return
	}

	if err := e.runs.SaveRun(context.WithoutCancel(ctx), run); err != nil {
		e.logger.ErrorContext(ctx, "Failed to save run", "run_id", run.ID, "error", err)
	}
}

type stepOutcome struct {
	stepID    string
	matched   bool
	next      string
	actionErr error
}

// Execute drives run from its current step until it reaches a terminal state
// and returns the error that failed it, or nil when it succeeded. Cancelling
// ctx stops the run before its next step; the action in flight is allowed to
// finish.
func (e *Executor) Execute(ctx context.Context, plan *Plan, run *models.WorkflowRun) error {
	logger := e.logger.With("run_id", run.ID, "workflow_id", run.WorkflowID)

	ctx, span := otelhelper.StartSpan(ctx, e.tracer, "workflow.run",
		attribute.String(otelhelper.RunIDKey, run.ID),
		attribute.String(otelhelper.WorkflowIDKey, run.WorkflowID),
		attribute.String(otelhelper.TriggerIDKey, run.TriggerID),
	)
	defer span.End()

	// Writes made by the run's actions are attributed to its tenant.
	ctx = tenant.WithID(ctx, run.TenantID)

	deps, err := e.runDependencies(run, logger)
	if err != nil {
		return e.fail(ctx, run, logger, models.FailureInternalError, err)
	}

	deadline := run.StartedAt.Add(e.limits.RunTimeout)
	if now := e.now(); deadline.Before(now) {
		deadline = now.Add(e.limits.RunTimeout)
	}

	run.Status = models.RunStatusRunning
	e.Save(ctx, run)
	e.publisher.started(ctx, run, plan.Workflow.StartStep)

	logger.InfoContext(ctx, "Run started", "trigger_id", run.TriggerID, "start_step", run.CurrentStep)

	stepID := run.CurrentStep

	for {
		if ctx.Err() != nil {
			return e.fail(ctx, run, logger, models.FailureCancelled, models.ErrRunCancelled)
		}

		if e.now().After(deadline) {
			return e.fail(ctx, run, logger, models.FailureTimeout,
				&models.TimeoutError{Op: "run " + run.ID, Budget: e.limits.RunTimeout.String()})
		}

		if run.Iterations >= e.limits.MaxIterations {
			return e.fail(ctx, run, logger, models.FailureCycleLimit,
				&models.CycleLimitExceededError{RunID: run.ID, Limit: e.limits.MaxIterations})
		}

		step, ok := plan.Step(stepID)
		if !ok {
			return e.fail(ctx, run, logger, models.FailureInvalidGraph,
				models.NewValidationError("steps", "step %q does not exist", stepID))
		}

		run.Iterations++
		run.CurrentStep = step.ID

		outcome, err := e.executeStep(ctx, plan, run, step, deps, deadline, logger)
		if err != nil {
			reason := models.FailureCondition

			switch {
			case errors.Is(err, models.ErrTimeout):
				reason = models.FailureTimeout
			case errors.Is(err, models.ErrActionExecution):
				reason = models.FailureActionError
			}

			return e.fail(ctx, run, logger, reason, err)
		}

		e.publisher.stepCompleted(ctx, run, outcome)

		if step.IsTerminal {
			return e.succeed(ctx, run, logger)
		}

		if outcome.next == "" {
			edge := "onSuccessStep"
			if !outcome.matched {
				edge = "onFailureStep"
			}

			return e.fail(ctx, run, logger, models.FailureInvalidGraph,
				models.NewValidationError("steps."+step.ID+"."+edge, "non-terminal step %q has no next step", step.ID))
		}

		stepID = outcome.next
		run.CurrentStep = stepID
		e.Save(ctx, run)
	}
}

func (e *Executor) executeStep(
	ctx context.Context,
	plan *Plan,
	run *models.WorkflowRun,
	step *models.WorkflowStep,
	deps protocol.Dependencies,
	deadline time.Time,
	logger *slog.Logger,
) (stepOutcome, error) {
	logger = logger.With("step_id", step.ID, "iteration", run.Iterations)
	outcome := stepOutcome{stepID: step.ID}

	matched, err := e.eval.Test(step.Conditions, run.Context.Subject())
	if err != nil {
		return outcome, &models.ValidationError{Path: "steps." + step.ID + ".conditions", Message: "condition failed to evaluate", Err: err}
	}

	outcome.matched = matched

	if !matched {
		logger.DebugContext(ctx, "Conditions not met, skipping actions")

		outcome.next = step.OnFailureStep

		return outcome, nil
	}

	for _, actionID := range step.Actions {
		bound := plan.actions[actionID]

		if err := e.executeAction(ctx, run, bound, deps, deadline, logger); err != nil {
			if step.OnFailureStep == "" || step.IsTerminal {
				return outcome, err
			}

			logger.WarnContext(ctx, "Action failed, following failure edge",
				"action_id", actionID,
				"on_failure_step", step.OnFailureStep,
				"error", err)

			run.Context.Values[ErrorKey] = map[string]any{
				"action":  actionID,
				"step":    step.ID,
				"message": err.Error(),
			}
			outcome.actionErr = err
			outcome.next = step.OnFailureStep

			return outcome, nil
		}
	}

	outcome.next = step.OnSuccessStep

	return outcome, nil
}

func (e *Executor) executeAction(
	ctx context.Context,
	run *models.WorkflowRun,
	bound *boundAction,
	deps protocol.Dependencies,
	deadline time.Time,
	logger *slog.Logger,
) error {
	def := bound.def
	logger = logger.With("action_id", def.ID)

	timeout := bound.timeout
	if timeout == 0 {
		timeout = e.limits.ActionTimeout
	}

	// Actions are not interrupted by cancellation, only by their own budget
	// and the run deadline.
	actionCtx, cancel := context.WithDeadline(context.WithoutCancel(ctx), earliest(e.now().Add(timeout), deadline))
	defer cancel()

	actionCtx, span := otelhelper.StartSpan(actionCtx, e.tracer, "workflow.action",
		attribute.String(otelhelper.ActionIDKey, def.ID),
		attribute.String(otelhelper.ActionTypeKey, def.Type),
		attribute.String(otelhelper.StepIDKey, run.CurrentStep),
		attribute.Int(otelhelper.IterationKey, run.Iterations),
	)
	defer span.End()

	deps.Logger = logger

	started := e.now()
	patch, err := bound.handler.Execute(actionCtx, run.Context, deps)

	if err == nil && errors.Is(actionCtx.Err(), context.DeadlineExceeded) {
		err = actionCtx.Err()
	}

	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			err = &models.TimeoutError{Op: "action " + def.ID, Budget: timeout.String()}
		}

		err = &models.ActionExecutionError{ActionID: def.ID, Type: def.Type, Err: err}
		otelhelper.SetError(span, err)
		logger.ErrorContext(ctx, "Action failed", "action_type", def.Type, "error", err)

		return err
	}

	run.Context.Merge(def.SlotName(), patch)

	logger.DebugContext(ctx, "Action completed", "action_type", def.Type, "duration", e.now().Sub(started))

	return nil
}

func (e *Executor) runDependencies(run *models.WorkflowRun, logger *slog.Logger) (protocol.Dependencies, error) {
	deps := e.deps
	deps.Logger = logger

	if e.tenants == nil || run.TenantID == "" {
		return deps, nil
	}

	t, err := e.tenants.Get(run.TenantID)
	if err != nil {
		return deps, fmt.Errorf("failed to resolve tenant of run: %w", err)
	}

	deps.Tenant = t
	run.Context.Env = t.Env()

	return deps, nil
}

func (e *Executor) succeed(ctx context.Context, run *models.WorkflowRun, logger *slog.Logger) error {
	run.Finish(models.RunStatusSucceeded, e.now().UTC())
	e.Save(ctx, run)
	e.publisher.finished(ctx, run)

	logger.InfoContext(ctx, "Run succeeded", "step_id", run.CurrentStep, "iterations", run.Iterations)

	return nil
}

func (e *Executor) fail(ctx context.Context, run *models.WorkflowRun, logger *slog.Logger, reason models.FailureReason, err error) error {
	run.Fail(reason, err, e.now().UTC())
	e.Save(ctx, run)
	e.publisher.finished(context.WithoutCancel(ctx), run)

	span := trace.SpanFromContext(ctx)
	otelhelper.SetError(span, err, attribute.String(otelhelper.StepIDKey, run.CurrentStep))

	logger.ErrorContext(ctx, "Run failed",
		"step_id", run.CurrentStep,
		"reason", reason,
		"iterations", run.Iterations,
		"error", err)

	return err
}

func earliest(a, b time.Time) time.Time {
	if a.Before(b) {
		return a
	}

	return b
}
