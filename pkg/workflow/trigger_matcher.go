package workflow

import (
	"log/slog"
	"sort"
	"time"

	"github.com/dukex/packflow/pkg/expression"
	"github.com/dukex/packflow/pkg/models"
)

// Match is a trigger that fired for an occurrence.
type Match struct {
	Plan        *Plan
	Trigger     *models.WorkflowTrigger
	TriggerData map[string]any
}

// TriggerMatcher decides which active triggers an occurrence fires.
type TriggerMatcher struct {
	logger *slog.Logger
	eval   *expression.Evaluator
}

func NewTriggerMatcher(logger *slog.Logger, eval *expression.Evaluator) *TriggerMatcher {
	if eval == nil {
		eval = expression.New()
	}

	return &TriggerMatcher{
		logger: logger.With("module", "trigger_matcher"),
		eval:   eval,
	}
}

// MatchWorkflows returns every active trigger of plans fired by occurrence.
// Each match starts an independent run; matches are ordered by workflow ID
// and then trigger ID so simultaneous matches always start in the same order.
func (tm *TriggerMatcher) MatchWorkflows(occurrence models.Occurrence, plans []*Plan) []Match {
	var matches []Match

	for _, plan := range plans {
		for _, trigger := range plan.Workflow.Triggers {
			if !trigger.IsActive {
				continue
			}

			data, ok := tm.matchTrigger(occurrence, plan, trigger)
			if !ok {
				continue
			}

			matches = append(matches, Match{Plan: plan, Trigger: trigger, TriggerData: data})

			tm.logger.Debug("Trigger matched",
				"workflow_id", plan.ID(),
				"trigger_id", trigger.ID,
				"kind", occurrence.Kind)
		}
	}

	sort.SliceStable(matches, func(i, j int) bool {
		if matches[i].Plan.ID() != matches[j].Plan.ID() {
			return matches[i].Plan.ID() < matches[j].Plan.ID()
		}

		return matches[i].Trigger.ID < matches[j].Trigger.ID
	})

	tm.logger.Info("Completed trigger matching",
		"kind", occurrence.Kind,
		"model", occurrence.Model,
		"matches_found", len(matches))

	return matches
}

func (tm *TriggerMatcher) matchTrigger(occurrence models.Occurrence, plan *Plan, trigger *models.WorkflowTrigger) (map[string]any, bool) {
	switch trigger.Type {
	case models.TriggerTypeScheduled:
		return tm.matchScheduleTrigger(occurrence, plan, trigger)
	case models.TriggerTypeManual:
		return tm.matchManualTrigger(occurrence, trigger)
	default:
		tm.logger.Warn("Unknown trigger type", "type", trigger.Type, "trigger_id", trigger.ID)

		return nil, false
	}
}

// matchManualTrigger matches on kind, target model and the data filter, which
// is evaluated with the affected record as subject.
func (tm *TriggerMatcher) matchManualTrigger(occurrence models.Occurrence, trigger *models.WorkflowTrigger) (map[string]any, bool) {
	if occurrence.IsTick() || models.NormalizeOnEvent(trigger.OnEvent) != occurrence.Kind {
		return nil, false
	}

	if trigger.TargetModel != "" && trigger.TargetModel != occurrence.Model {
		return nil, false
	}

	record := occurrence.Record
	if record == nil {
		record = map[string]any{}
	}

	ok, err := tm.eval.Test(trigger.DataFilter, record)
	if err != nil {
		tm.logger.Warn("Data filter failed to evaluate",
			"trigger_id", trigger.ID,
			"error", err)

		return nil, false
	}

	return record, ok
}

// matchScheduleTrigger fires when the tick's minute is an activation time of
// the trigger's cron schedule.
func (tm *TriggerMatcher) matchScheduleTrigger(occurrence models.Occurrence, plan *Plan, trigger *models.WorkflowTrigger) (map[string]any, bool) {
	if !occurrence.IsTick() {
		return nil, false
	}

	schedule, ok := plan.Schedule(trigger.ID)
	if !ok {
		return nil, false
	}

	minute := occurrence.Tick.Truncate(time.Minute)
	if !schedule.Next(minute.Add(-time.Nanosecond)).Equal(minute) {
		return nil, false
	}

	return map[string]any{
		"tick":      minute.UTC().Format(time.RFC3339),
		"triggerId": trigger.ID,
		"cron":      trigger.Cron,
	}, true
}
