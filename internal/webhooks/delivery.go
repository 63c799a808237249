package webhooks

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/EnaiaInc/paper-tiger/internal/chaos"
	"github.com/EnaiaInc/paper-tiger/internal/clock"
	"github.com/EnaiaInc/paper-tiger/internal/metrics"
	"github.com/EnaiaInc/paper-tiger/internal/store"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/sony/gobreaker"
)

// backoffDelays is the fixed retry sequence of spec.md §4.9, capped at 8
// attempts.
var backoffDelays = []int64{1, 2, 4, 8, 16, 32, 64, 128}

const maxAttempts = 8

// perAttemptTimeout is the default per-delivery timeout of spec.md §5.
const perAttemptTimeout = 5 * time.Second

// retrySchedulerTick is how often the scheduler goroutine re-checks
// pending retries against the virtual clock. It is a small, real-time
// poll interval (not itself virtual) so accelerated/manual-mode clock
// advances are picked up promptly without a per-retry timer.
const retrySchedulerTick = 100 * time.Millisecond

type deliveryTask struct {
	webhook Webhook
	event   store.Record
	attempt int
}

type pendingRetry struct {
	task        deliveryTask
	nextAttempt int64
}

// Pipeline is the bounded-worker-pool delivery engine of spec.md §4.9,
// grounded on internal/callbacks/retry.go + queue_worker.go.
type Pipeline struct {
	registry   *Registry
	deliveries *store.Store
	clock      *clock.Clock
	eventChaos *chaos.EventChaos
	logger     zerolog.Logger
	httpClient *http.Client
	metrics    *metrics.Metrics

	workCh chan deliveryTask
	done   chan struct{}

	breakerMu sync.Mutex
	breakers  map[string]*gobreaker.CircuitBreaker

	pendingMu sync.Mutex
	pending   []pendingRetry
}

// NewPipeline constructs a Pipeline with workerCount delivery workers. m
// may be nil (a no-op Pipeline used in tests that don't care about
// Prometheus counters).
func NewPipeline(registry *Registry, clk *clock.Clock, eventChaos *chaos.EventChaos, logger zerolog.Logger, m *metrics.Metrics, workerCount int) *Pipeline {
	p := &Pipeline{
		registry:   registry,
		deliveries: store.New("webhook_deliveries"),
		clock:      clk,
		eventChaos: eventChaos,
		logger:     logger.With().Str("component", "webhooks").Logger(),
		httpClient: &http.Client{Timeout: perAttemptTimeout},
		metrics:    m,
		workCh:     make(chan deliveryTask, 1024),
		done:       make(chan struct{}),
		breakers:   map[string]*gobreaker.CircuitBreaker{},
	}
	for i := 0; i < workerCount; i++ {
		go p.worker()
	}
	go p.retryScheduler()
	return p
}

// Close stops the worker and scheduler goroutines.
func (p *Pipeline) Close() {
	close(p.done)
}

// HandleEvent is the events materializer's downstream entry point: it is
// handed a materialized Event record and fans it out to every matching webhook,
// routed through event chaos (buffer/shuffle/duplicate) when configured.
func (p *Pipeline) HandleEvent(event store.Record) {
	p.eventChaos.QueueEvent(event, func(item any) {
		p.dispatchToWebhooks(item.(store.Record))
	})
}

func (p *Pipeline) dispatchToWebhooks(event store.Record) {
	eventType, _ := event["type"].(string)
	for _, wh := range p.registry.All() {
		if !wh.Matches(eventType) {
			continue
		}
		select {
		case p.workCh <- deliveryTask{webhook: wh, event: event, attempt: 1}:
		default:
			p.logger.Warn().Str("webhook_id", wh.ID).Msg("webhook delivery queue full, dropping delivery")
		}
	}
}

func (p *Pipeline) worker() {
	for {
		select {
		case task := <-p.workCh:
			p.attempt(task)
		case <-p.done:
			return
		}
	}
}

func (p *Pipeline) attempt(task deliveryTask) {
	body, err := json.Marshal(task.event)
	if err != nil {
		p.logger.Error().Err(err).Msg("failed to marshal event for delivery")
		return
	}

	created := p.clock.Now()
	breaker := p.breakerFor(task.webhook.URL)

	ctx, cancel := context.WithTimeout(context.Background(), perAttemptTimeout)
	defer cancel()

	wallStart := time.Now()
	_, sendErr := breaker.Execute(func() (any, error) {
		return nil, p.sendHTTP(ctx, task.webhook, created, body)
	})
	duration := time.Since(wallStart)

	eventType, _ := task.event["type"].(string)

	record := store.Record{
		"id":         "whd_" + uuid.New().String()[:16],
		"webhook_id": task.webhook.ID,
		"event_id":   task.event.ID(),
		"attempt":    task.attempt,
	}

	if sendErr == nil {
		record["status"] = "succeeded"
		p.deliveries.Insert(record)
		p.observeDelivery(eventType, "succeeded", duration, task.attempt)
		return
	}

	record["status"] = "failed"
	record["error"] = sendErr.Error()

	if task.attempt >= maxAttempts {
		p.deliveries.Insert(record)
		p.observeDelivery(eventType, "failed", duration, task.attempt)
		p.logger.Warn().Str("webhook_id", task.webhook.ID).Int("attempts", task.attempt).Msg("webhook delivery exhausted retries")
		return
	}
	p.observeDelivery(eventType, "retrying", duration, task.attempt)

	delay := backoffDelays[task.attempt-1]
	nextAttemptAt := p.clock.Now() + delay
	record["next_attempt_at"] = nextAttemptAt
	p.deliveries.Insert(record)

	p.pendingMu.Lock()
	p.pending = append(p.pending, pendingRetry{
		task:        deliveryTask{webhook: task.webhook, event: task.event, attempt: task.attempt + 1},
		nextAttempt: nextAttemptAt,
	})
	p.pendingMu.Unlock()
}

func (p *Pipeline) observeDelivery(eventType, status string, duration time.Duration, attempt int) {
	if p.metrics != nil {
		p.metrics.ObserveWebhookDelivery(eventType, status, duration, attempt)
	}
}

func (p *Pipeline) sendHTTP(ctx context.Context, wh Webhook, created int64, body []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, wh.URL, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("stripe-signature", SignatureHeader(wh.Secret, created, body))

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("webhook endpoint returned status %d", resp.StatusCode)
	}
	return nil
}

func (p *Pipeline) breakerFor(url string) *gobreaker.CircuitBreaker {
	p.breakerMu.Lock()
	defer p.breakerMu.Unlock()
	if b, ok := p.breakers[url]; ok {
		return b
	}
	b := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "webhook:" + url,
		MaxRequests: 1,
		Interval:    0,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
	})
	p.breakers[url] = b
	return b
}

// retryScheduler polls pending retries against the virtual clock so
// accelerated/manual mode advances are reflected without a per-retry
// real-time timer.
func (p *Pipeline) retryScheduler() {
	ticker := time.NewTicker(retrySchedulerTick)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			p.pumpReadyRetries()
		case <-p.done:
			return
		}
	}
}

func (p *Pipeline) pumpReadyRetries() {
	now := p.clock.Now()

	p.pendingMu.Lock()
	var ready []deliveryTask
	remaining := p.pending[:0]
	for _, pr := range p.pending {
		if now >= pr.nextAttempt {
			ready = append(ready, pr.task)
		} else {
			remaining = append(remaining, pr)
		}
	}
	p.pending = remaining
	p.pendingMu.Unlock()

	for _, task := range ready {
		select {
		case p.workCh <- task:
		default:
			p.logger.Warn().Str("webhook_id", task.webhook.ID).Msg("retry queue full, dropping retry")
		}
	}
}
