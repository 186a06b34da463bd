package core

import (
	"StrategyVault/internal/event"
)

// EventSink receives every envelope the vault emits, in sequence order.
type EventSink interface {
	Emit(env event.Envelope)
}

// DiscardSink drops everything.
type DiscardSink struct{}

func (DiscardSink) Emit(event.Envelope) {}

// SinkFunc adapts a function to EventSink.
type SinkFunc func(env event.Envelope)

func (f SinkFunc) Emit(env event.Envelope) { f(env) }
