package workflow

import (
	"context"
	"log/slog"

	"github.com/dukex/packflow/pkg/eventbus"
	"github.com/dukex/packflow/pkg/events"
	"github.com/dukex/packflow/pkg/models"
)

// runPublisher announces run lifecycle transitions on the event bus. Publishing
// is best effort: a bus failure is logged and never changes the run outcome.
type runPublisher struct {
	publisher eventbus.EventPublisher
	logger    *slog.Logger
}

func (p *runPublisher) publish(ctx context.Context, run *models.WorkflowRun, event eventbus.Event) {
	if p == nil || p.publisher == nil {
		return
	}

	if err := p.publisher.Publish(ctx, run.WorkflowID, event); err != nil {
		p.logger.WarnContext(ctx, "Failed to publish run event",
			"run_id", run.ID,
			"event_type", event.GetType(),
			"error", err)
	}
}

func (p *runPublisher) started(ctx context.Context, run *models.WorkflowRun, startStep string) {
	event := events.RunStarted{
		BaseEvent:   p.base(events.RunStartedEvent, run),
		TriggerID:   run.TriggerID,
		StartStep:   startStep,
		TriggerData: run.Context.TriggerData,
	}

	p.publish(ctx, run, event)
}

func (p *runPublisher) stepCompleted(ctx context.Context, run *models.WorkflowRun, outcome stepOutcome) {
	event := events.RunStepCompleted{
		BaseEvent: p.base(events.RunStepCompletedEvent, run),
		StepID:    outcome.stepID,
		Matched:   outcome.matched,
		NextStep:  outcome.next,
		Iteration: run.Iterations,
	}

	if outcome.actionErr != nil {
		event.Error = outcome.actionErr.Error()
	}

	p.publish(ctx, run, event)
}

func (p *runPublisher) finished(ctx context.Context, run *models.WorkflowRun) {
	var duration int64
	if run.EndedAt != nil {
		duration = run.EndedAt.Sub(run.StartedAt).Milliseconds()
	}

	if run.Status == models.RunStatusSucceeded {
		p.publish(ctx, run, events.RunSucceeded{
			BaseEvent:  p.base(events.RunSucceededEvent, run),
			DurationMs: duration,
			Iterations: run.Iterations,
			Result:     run.Context.Result(),
		})

		return
	}

	p.publish(ctx, run, events.RunFailed{
		BaseEvent:  p.base(events.RunFailedEvent, run),
		DurationMs: duration,
		Iterations: run.Iterations,
		StepID:     run.CurrentStep,
		Error:      run.Error,
		Reason:     run.FailureReason,
	})
}

func (p *runPublisher) base(eventType events.EventType, run *models.WorkflowRun) events.BaseEvent {
	base := events.NewBaseEvent(eventType, run.WorkflowID, run.ID)
	base.TenantID = run.TenantID

	return base
}
