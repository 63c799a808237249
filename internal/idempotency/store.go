// Package idempotency implements the keyed response cache of spec.md
// §4.3, a direct structural descendant of the teacher's
// internal/idempotency package: the same LRU-bounded map-plus-list shape
// (each entry carries its own expiry), with an explicit in_flight state
// the teacher's version lacks,
// and TTL measured against internal/clock instead of time.Now() so
// accelerated/manual modes shrink effective TTL in tests.
package idempotency

import (
	"container/list"
	"sync"
	"time"

	"github.com/EnaiaInc/paper-tiger/internal/clock"
)

// sweepTick is the real-time cadence of the background sweep goroutine,
// per spec.md §4.3's "hourly real-time in real mode". Sweep() itself
// decides what has expired against the virtual clock's current Now(), so
// the same hourly real-time tick is what "driven by the virtual clock
// otherwise" means in accelerated/manual mode too: an accelerated clock
// simply has more virtual seconds elapse per real hour, and a manual
// clock picks up whatever Advance calls happened since the last tick.
const sweepTick = 1 * time.Hour

// Status is the lifecycle state of a cached idempotency entry, per
// spec.md §3/§4.3.
type Status string

const (
	StatusInFlight Status = "in_flight"
	StatusComplete Status = "complete"
)

// Response is the captured 2xx response the caller replays on a cache
// hit.
type Response struct {
	StatusCode int
	Headers    map[string]string
	Body       []byte
}

// DefaultTTL is the window a completed entry stays cacheable, per
// spec.md §4.3.
const DefaultTTL = 24 * 60 * 60 // seconds

// entry is one idempotency-key record.
type entry struct {
	key       string
	status    Status
	response  *Response
	expiresAt int64 // virtual-clock seconds; 0 while in_flight
	element   *list.Element
}

// Store is the process-wide idempotency cache. Const-size LRU bound
// mirrors the teacher's MemoryStore (container/list + map), extended
// with the in_flight state spec.md §4.3 requires.
type Store struct {
	mu      sync.Mutex
	clock   *clock.Clock
	cache   map[string]*entry
	lru     *list.List
	maxSize int

	done chan struct{}
}

// Default max entries, matching the teacher's NewMemoryStore default.
const defaultMaxSize = 10000

// New constructs a Store bound to clk for TTL comparisons.
func New(clk *clock.Clock) *Store {
	return NewWithSize(clk, defaultMaxSize)
}

// NewWithSize constructs a Store with a custom LRU bound.
func NewWithSize(clk *clock.Clock, maxSize int) *Store {
	return &Store{
		clock:   clk,
		cache:   make(map[string]*entry),
		lru:     list.New(),
		maxSize: maxSize,
		done:    make(chan struct{}),
	}
}

// StartSweeping launches the background sweep goroutine that reclaims
// expired entries on their own, independent of Begin's lazy expiry on
// access, per spec.md §4.3.
func (s *Store) StartSweeping() {
	go s.sweepLoop()
}

// Stop halts the sweep goroutine.
func (s *Store) Stop() {
	close(s.done)
}

func (s *Store) sweepLoop() {
	ticker := time.NewTicker(sweepTick)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			s.Sweep()
		case <-s.done:
			return
		}
	}
}

// Outcome is what the caller should do in response to Begin.
type Outcome int

const (
	// OutcomeProceed means no entry existed (or it had expired); the
	// caller is now the owner of an in_flight entry and must call
	// Complete or Abandon when done.
	OutcomeProceed Outcome = iota
	// OutcomeInFlight means a concurrent request holds this key; the
	// caller must respond 409 idempotency_conflict.
	OutcomeInFlight
	// OutcomeReplay means a completed response is cached; the caller
	// should replay it verbatim with X-Idempotency-Cached: true.
	OutcomeReplay
)

// Begin attempts to claim key for a new request. Per spec.md §4.3's
// three states (absent/in_flight/complete(resp, ttl)), this is the
// absent→in_flight transition; concurrent callers while in_flight get
// OutcomeInFlight, and callers after completion get OutcomeReplay with
// the cached Response.
func (s *Store) Begin(key string) (Outcome, *Response) {
	now := s.clock.Now()

	s.mu.Lock()
	defer s.mu.Unlock()

	if e, ok := s.cache[key]; ok {
		switch e.status {
		case StatusInFlight:
			s.lru.MoveToFront(e.element)
			return OutcomeInFlight, nil
		case StatusComplete:
			if now >= e.expiresAt {
				s.removeLocked(e)
				break // fall through to treat as absent
			}
			s.lru.MoveToFront(e.element)
			return OutcomeReplay, e.response
		}
	}

	s.evictIfFullLocked()
	e := &entry{key: key, status: StatusInFlight}
	e.element = s.lru.PushFront(e)
	s.cache[key] = e
	return OutcomeProceed, nil
}

// Complete transitions an in_flight entry to complete, caching resp
// until now+DefaultTTL.
func (s *Store) Complete(key string, resp *Response) {
	now := s.clock.Now()

	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.cache[key]
	if !ok {
		return
	}
	e.status = StatusComplete
	e.response = resp
	e.expiresAt = now + DefaultTTL
	s.lru.MoveToFront(e.element)
}

// Abandon removes an in_flight entry without caching a response, used
// when the owning request fails before producing a cacheable 2xx.
func (s *Store) Abandon(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if e, ok := s.cache[key]; ok {
		s.removeLocked(e)
	}
}

// Sweep removes all entries whose TTL has expired as of the clock's
// current time. Called periodically (hourly in real mode) or driven
// directly in tests that advance the virtual clock.
func (s *Store) Sweep() {
	now := s.clock.Now()

	s.mu.Lock()
	defer s.mu.Unlock()

	var expired []*entry
	for _, e := range s.cache {
		if e.status == StatusComplete && now >= e.expiresAt {
			expired = append(expired, e)
		}
	}
	for _, e := range expired {
		s.removeLocked(e)
	}
}

func (s *Store) evictIfFullLocked() {
	if len(s.cache) < s.maxSize {
		return
	}
	back := s.lru.Back()
	if back == nil {
		return
	}
	s.removeLocked(back.Value.(*entry))
}

func (s *Store) removeLocked(e *entry) {
	s.lru.Remove(e.element)
	delete(s.cache, e.key)
}
