// Package events defines the run lifecycle and data-mutation events carried on the event bus.
package events

import (
	"time"

	"github.com/dukex/packflow/pkg/models"
	"github.com/google/uuid"
)

type EventType string

// Topic carries every engine event.
const Topic = "packflow.events"

const EventMetadataKey = "key"
const EventTypeMetadataKey = "event_type"

const (
	// Run lifecycle events.
	RunStartedEvent       EventType = "run.started"
	RunStepCompletedEvent EventType = "run.step.completed"
	RunSucceededEvent     EventType = "run.succeeded"
	RunFailedEvent        EventType = "run.failed"

	// Occurrences that may fire triggers asynchronously.
	DataMutatedEvent   EventType = "data.mutated"
	EventAcceptedEvent EventType = "event.accepted"
)

type BaseEvent struct {
	ID         string    `json:"id"`
	Type       EventType `json:"type"`
	Timestamp  time.Time `json:"timestamp"`
	WorkflowID string    `json:"workflow_id,omitempty"`
	RunID      string    `json:"run_id,omitempty"`
	TenantID   string    `json:"tenant_id,omitempty"`
}

// NewBaseEvent stamps a new event header.
func NewBaseEvent(eventType EventType, workflowID, runID string) BaseEvent {
	return BaseEvent{
		ID:         uuid.NewString(),
		Type:       eventType,
		Timestamp:  time.Now().UTC(),
		WorkflowID: workflowID,
		RunID:      runID,
	}
}

type RunStarted struct {
	BaseEvent

	TriggerID   string         `json:"trigger_id,omitempty"`
	StartStep   string         `json:"start_step"`
	TriggerData map[string]any `json:"trigger_data,omitempty"`
}

func (e RunStarted) GetType() EventType {
	return RunStartedEvent
}

type RunStepCompleted struct {
	BaseEvent

	StepID    string `json:"step_id"`
	Matched   bool   `json:"matched"`
	NextStep  string `json:"next_step,omitempty"`
	Iteration int    `json:"iteration"`
	Error     string `json:"error,omitempty"`
}

func (e RunStepCompleted) GetType() EventType {
	return RunStepCompletedEvent
}

type RunSucceeded struct {
	BaseEvent

	DurationMs int64 `json:"duration_ms"`
	Iterations int   `json:"iterations"`
	Result     any   `json:"result,omitempty"`
}

func (e RunSucceeded) GetType() EventType {
	return RunSucceededEvent
}

type RunFailed struct {
	BaseEvent

	DurationMs int64                `json:"duration_ms"`
	Iterations int                  `json:"iterations"`
	StepID     string               `json:"step_id,omitempty"`
	Error      string               `json:"error"`
	Reason     models.FailureReason `json:"reason"`
}

func (e RunFailed) GetType() EventType {
	return RunFailedEvent
}

// DataMutated reports a data-store write so that manual triggers listening for
// data_added, data_edited or data_deleted can fire.
type DataMutated struct {
	BaseEvent

	Occurrence models.Occurrence `json:"occurrence"`
}

func (e DataMutated) GetType() EventType {
	return DataMutatedEvent
}

// EventAccepted records that the ingestion gateway accepted an inbound event.
type EventAccepted struct {
	BaseEvent

	EventID   string `json:"event_id"`
	EventType string `json:"event_type"`
	Runs      int    `json:"runs"`
}

func (e EventAccepted) GetType() EventType {
	return EventAcceptedEvent
}
