// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package bus implements the in-process EventBus used to fan out playback,
// poll, and tally events from RotationEngine/PollEngine to StreamHub
// instances (spec.md §5, §6 "EventBus payloads"). Delivery is at-least-once
// and consumers are expected to be idempotent on (voteId, version).
package bus

import "context"

// Message is an opaque event payload; concrete event kinds live in
// internal/events and are marshaled to JSON only at the HTTP/SSE boundary.
type Message interface{}

// Handler applies an event/message within a context.
type Handler func(ctx context.Context, msg Message) error

type Subscriber interface {
	// C returns a read-only message channel.
	C() <-chan Message
	// Close unsubscribes.
	Close() error
}

// Bus is the event transport abstraction.
// MVP: in-memory bus, later: NATS JetStream.
type Bus interface {
	Publish(ctx context.Context, topic string, msg Message) error
	Subscribe(ctx context.Context, topic string) (Subscriber, error)
}
