package models

import "time"

// Event is an inbound asynchronous occurrence delivered by an external provider.
type Event struct {
	ID         string         `json:"id"`
	Type       string         `json:"type"`
	TenantID   string         `json:"tenant_id"`
	Payload    map[string]any `json:"data"`
	ReceivedAt time.Time      `json:"received_at"`
}

// Occurrence is anything that may fire a trigger: a data mutation, an accepted
// inbound event, a scheduler tick or an explicit invocation.
type Occurrence struct {
	Kind     OnEvent        `json:"kind"`
	Model    string         `json:"model,omitempty"`
	Record   map[string]any `json:"record,omitempty"`
	TenantID string         `json:"tenant_id,omitempty"`
	Tick     time.Time      `json:"tick,omitempty"`
	EventID  string         `json:"event_id,omitempty"`
}

// IsTick reports whether the occurrence is a scheduler tick.
func (o Occurrence) IsTick() bool {
	return !o.Tick.IsZero()
}

// EventOccurrence converts an accepted event into the occurrence routed to triggers.
// The event type plays the role of the target model.
func EventOccurrence(event *Event) Occurrence {
	record := map[string]any{
		"id":   event.ID,
		"type": event.Type,
		"data": event.Payload,
	}

	return Occurrence{
		Kind:     OnEventReceived,
		Model:    event.Type,
		Record:   record,
		TenantID: event.TenantID,
		EventID:  event.ID,
	}
}
