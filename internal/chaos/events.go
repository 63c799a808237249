package chaos

import (
	"math/rand"
	"sync"
	"time"

	"github.com/EnaiaInc/paper-tiger/internal/metrics"
)

// EventConfig configures the event-chaos family of spec.md §4.10.
type EventConfig struct {
	OutOfOrder      bool
	DuplicateRate   float64
	BufferWindowMS  int
}

// DeliverFunc hands a buffered item to its eventual delivery path (the
// webhook pipeline).
type DeliverFunc func(item any)

type bufferedItem struct {
	item    any
	deliver DeliverFunc
}

// EventChaos buffers and reorders events ahead of delivery, per spec.md
// §4.10. A single-shot timer per buffering window — not a per-event
// timer — triggers the flush, per spec.md §9's explicit guidance.
type EventChaos struct {
	mu      sync.Mutex
	cfg     EventConfig
	buffer  []bufferedItem
	timer   *time.Timer
	stats   *Stats
	statsMu *sync.Mutex
	rng     *rand.Rand
	metrics *metrics.Metrics
}

// SetMetrics attaches the process's metrics collector so event reorder/
// duplicate decisions are observed as Prometheus counters.
func (e *EventChaos) SetMetrics(m *metrics.Metrics) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.metrics = m
}

// NewEventChaos constructs an EventChaos sharing the coordinator's stats
// counters (so reorder/duplicate counts surface through Coordinator.Stats).
func NewEventChaos(coord *Coordinator) *EventChaos {
	return &EventChaos{
		stats:   &coord.stats,
		statsMu: &coord.mu,
		rng:     rand.New(rand.NewSource(2)),
	}
}

// Configure replaces the event-chaos configuration.
func (e *EventChaos) Configure(cfg EventConfig) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.cfg = cfg
}

func (e *EventChaos) active() bool {
	return e.cfg.OutOfOrder || e.cfg.DuplicateRate > 0 || e.cfg.BufferWindowMS > 0
}

// QueueEvent hands item to deliver immediately when no event chaos is
// configured, or buffers it for the next flush otherwise. The timer for
// a buffering window is armed once, by the first item that starts it.
func (e *EventChaos) QueueEvent(item any, deliver DeliverFunc) {
	e.mu.Lock()
	if !e.active() {
		e.mu.Unlock()
		deliver(item)
		return
	}

	e.buffer = append(e.buffer, bufferedItem{item: item, deliver: deliver})
	if e.timer == nil {
		window := time.Duration(e.cfg.BufferWindowMS) * time.Millisecond
		if window <= 0 {
			window = time.Millisecond // flush promptly if only duplicate/reorder is configured
		}
		e.timer = time.AfterFunc(window, e.FlushEvents)
	}
	e.mu.Unlock()
}

// FlushEvents forces immediate delivery of the buffer, applying
// (optional) shuffling and duplication, then clears the buffer and timer.
func (e *EventChaos) FlushEvents() {
	e.mu.Lock()
	items := e.buffer
	e.buffer = nil
	if e.timer != nil {
		e.timer.Stop()
		e.timer = nil
	}
	cfg := e.cfg
	e.mu.Unlock()

	if len(items) == 0 {
		return
	}

	if cfg.OutOfOrder && len(items) > 1 {
		e.rng.Shuffle(len(items), func(i, j int) { items[i], items[j] = items[j], items[i] })
		e.statsMu.Lock()
		e.stats.EventsReordered += int64(len(items))
		e.statsMu.Unlock()
		e.observeLocked("reordered")
	}

	out := make([]bufferedItem, 0, len(items))
	for _, it := range items {
		out = append(out, it)
		if cfg.DuplicateRate > 0 && e.rng.Float64() < cfg.DuplicateRate {
			out = append(out, it)
			e.statsMu.Lock()
			e.stats.EventsDuplicated++
			e.statsMu.Unlock()
			e.observeLocked("duplicated")
		}
	}

	for _, it := range out {
		it.deliver(it.item)
	}
}

func (e *EventChaos) observeLocked(outcome string) {
	e.mu.Lock()
	m := e.metrics
	e.mu.Unlock()
	if m != nil {
		m.ObserveChaosEventDecision(outcome)
	}
}
