package service

import "github.com/folioapp/folio-server/internal/sse"

// EventEmitter broadcasts server-sent events to connected clients.
// *sse.Manager satisfies it; tests use NoopEmitter.
type EventEmitter interface {
	Emit(event sse.Event)
}

// NoopEmitter discards all events.
type NoopEmitter struct{}

// Emit implements EventEmitter.
func (NoopEmitter) Emit(sse.Event) {}
