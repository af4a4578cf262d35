// Package eventbus carries engine events between components over Watermill.
package eventbus

import (
	"context"

	"github.com/dukex/packflow/pkg/events"
)

type Event interface {
	GetType() events.EventType
}

// EventPublisher publishes events; key orders events that share it, usually
// a run ID or a model name.
type EventPublisher interface {
	Publish(ctx context.Context, key string, event Event) error
}

type EventSubscriber interface {
	Handle(eventType events.EventType, handler EventHandler) error
	Subscribe(ctx context.Context) error
}

// EventHandler receives a pointer to the decoded event, e.g. *events.RunFailed.
type EventHandler func(ctx context.Context, event any) error

type EventBus interface {
	EventPublisher
	EventSubscriber
	Close() error
	GenerateID() string
}
