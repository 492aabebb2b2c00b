// Package pubsub provides a generic publish/subscribe event system.
//
// The config registry publishes tier lifecycle transitions through it, so the
// CLI can report progress without the registry knowing about terminals.
package pubsub

import (
	"context"
	"time"
)

// EventType represents the type of event being published.
type EventType string

const (
	// PopulatingEvent is published when a tier starts populating.
	PopulatingEvent EventType = "populating"
	// ReadyEvent is published when a tier reaches the ready state.
	ReadyEvent EventType = "ready"
	// FailedEvent is published when a unit fails to load.
	FailedEvent EventType = "failed"
)

// Event represents a published event with a typed payload.
type Event[T any] struct {
	Type      EventType
	Payload   T
	Timestamp time.Time
}

// Subscriber provides a subscription channel for events.
type Subscriber[T any] interface {
	Subscribe(ctx context.Context) <-chan Event[T]
}

// Publisher allows publishing events with a typed payload.
type Publisher[T any] interface {
	Publish(eventType EventType, payload T)
}
