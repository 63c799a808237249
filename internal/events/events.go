// Package events implements the Event materializer of spec.md §4.8/§3:
// the telemetry-bus subscriber that turns a lifecycle Signal into an
// append-only Event record and hands it to the webhook pipeline.
// Grounded on the teacher's webhook-queue-as-append-only-ledger pattern
// in internal/storage/webhook_queue.go.
package events

import (
	"github.com/EnaiaInc/paper-tiger/internal/clock"
	"github.com/EnaiaInc/paper-tiger/internal/resource"
	"github.com/EnaiaInc/paper-tiger/internal/store"
	"github.com/EnaiaInc/paper-tiger/internal/telemetry"
)

// Materializer subscribes to the telemetry bus and persists one Event
// per signal, append-only per spec.md §3.
type Materializer struct {
	store *store.Store
	clock *clock.Clock
	// downstream receives each materialized event, e.g. the webhook
	// pipeline's HandleEvent.
	downstream func(store.Record)
}

// New constructs a Materializer. downstream is invoked for every
// materialized event; pass a no-op if nothing (yet) consumes events.
func New(clk *clock.Clock, downstream func(store.Record)) *Materializer {
	if downstream == nil {
		downstream = func(store.Record) {}
	}
	return &Materializer{store: store.New("events"), clock: clk, downstream: downstream}
}

// Subscriber returns the telemetry.Subscriber this Materializer
// implements, for wiring into a Bus at startup.
func (m *Materializer) Subscriber() telemetry.Subscriber {
	return m.handle
}

func (m *Materializer) handle(sig telemetry.Signal) {
	event := store.Record{
		"id":       resource.GenerateID("evt"),
		"object":   "event",
		"type":     sig.Name,
		"created":  m.clock.Now(),
		"livemode": false,
		"data":     store.Record{"object": sig.Resource},
	}
	stored := m.store.Insert(event)
	m.downstream(stored)
}

// Store exposes the backing Events store, e.g. for the DELETE
// /_config/data flush endpoint.
func (m *Materializer) Store() *store.Store {
	return m.store
}
