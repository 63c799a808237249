// Package telemetry implements the in-process lifecycle event channel of
// spec.md §4.8: a generalization of the teacher's
// internal/observability/registry.go + hooks.go hub, collapsed from six
// typed hook interfaces down to one func(Signal) subscriber shape, since
// this spec wants named signals generically rather than one Go interface
// per domain event.
package telemetry

import (
	"github.com/EnaiaInc/paper-tiger/internal/store"
	"github.com/rs/zerolog"
)

// Signal is one lifecycle event posted to the bus: a dot-qualified name
// (e.g. "invoice.payment_succeeded") plus a snapshot of the resource it
// concerns.
type Signal struct {
	Name     string
	Resource store.Record
}

// Subscriber receives signals in bus order. Implementations that do slow
// I/O (webhook delivery) must hand off to their own worker pool rather
// than blocking here, per spec.md §4.8.
type Subscriber func(Signal)

// Bus serializes delivery to subscribers through a single internal
// dispatch goroutine reading off a buffered channel. Emit is safe to call
// concurrently from many request goroutines; the dispatch goroutine
// preserves true emission order, which a directly-locked fan-out over
// RLock would not guarantee once multiple emitters race for the lock.
type Bus struct {
	logger      zerolog.Logger
	subscribers []Subscriber
	queue       chan Signal
	done        chan struct{}
}

const busBufferSize = 4096

// New constructs a Bus and starts its dispatch goroutine. Subscribers
// must all be registered before the first Emit to avoid a data race on
// the subscriber slice; Subscribe is not safe to call concurrently with
// Emit.
func New(logger zerolog.Logger) *Bus {
	b := &Bus{
		logger: logger.With().Str("component", "telemetry").Logger(),
		queue:  make(chan Signal, busBufferSize),
		done:   make(chan struct{}),
	}
	go b.dispatchLoop()
	return b
}

// Subscribe registers a handler. Call during startup wiring, before
// traffic begins.
func (b *Bus) Subscribe(sub Subscriber) {
	b.subscribers = append(b.subscribers, sub)
}

// Emit enqueues a signal for dispatch. It never blocks the caller beyond
// the channel send (the queue is large; when it is full, which indicates
// a runaway subscriber, the signal is dropped with a warning logged).
func (b *Bus) Emit(name string, resource store.Record) {
	select {
	case b.queue <- Signal{Name: name, Resource: resource.Clone()}:
	default:
		b.logger.Warn().Str("signal", name).Msg("telemetry queue full, dropping signal")
	}
}

// Close stops the dispatch goroutine. Any signals still queued are
// dropped; callers needing drain-on-shutdown semantics should stop
// emitting and allow time for the queue to empty before calling Close.
func (b *Bus) Close() {
	close(b.done)
}

func (b *Bus) dispatchLoop() {
	for {
		select {
		case sig := <-b.queue:
			b.dispatch(sig)
		case <-b.done:
			return
		}
	}
}

func (b *Bus) dispatch(sig Signal) {
	for _, sub := range b.subscribers {
		b.invoke(sub, sig)
	}
}

// invoke calls a single subscriber with panic recovery, matching the
// teacher's recoverPanic pattern in internal/observability/registry.go.
func (b *Bus) invoke(sub Subscriber, sig Signal) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.Error().
				Str("signal", sig.Name).
				Interface("panic", r).
				Msg("telemetry subscriber panicked")
		}
	}()
	sub(sig)
}
