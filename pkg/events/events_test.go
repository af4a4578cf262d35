package events

import (
	"encoding/json"
	"testing"

	"github.com/dukex/packflow/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEventTypes(t *testing.T) {
	tests := []struct {
		event interface{ GetType() EventType }
		want  EventType
	}{
		{RunStarted{}, RunStartedEvent},
		{RunStepCompleted{}, RunStepCompletedEvent},
		{RunSucceeded{}, RunSucceededEvent},
		{RunFailed{}, RunFailedEvent},
		{DataMutated{}, DataMutatedEvent},
		{EventAccepted{}, EventAcceptedEvent},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, tt.event.GetType())
	}
}

func TestDataMutated_JSON(t *testing.T) {
	event := DataMutated{
		BaseEvent: NewBaseEvent(DataMutatedEvent, "", ""),
		Occurrence: models.Occurrence{
			Kind:   models.OnDataAdded,
			Model:  "contacts",
			Record: map[string]any{"_id": "c1", "email": "a@example.com"},
		},
	}

	payload, err := json.Marshal(event)
	require.NoError(t, err)

	var decoded DataMutated
	require.NoError(t, json.Unmarshal(payload, &decoded))

	assert.Equal(t, event.ID, decoded.ID)
	assert.Equal(t, models.OnDataAdded, decoded.Occurrence.Kind)
	assert.Equal(t, "contacts", decoded.Occurrence.Model)
	assert.Equal(t, "a@example.com", decoded.Occurrence.Record["email"])
	assert.False(t, decoded.Occurrence.IsTick())
}
