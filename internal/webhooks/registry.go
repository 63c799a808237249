// Package webhooks implements registration and signed delivery for the
// event pipeline of spec.md §4.9. Delivery is grounded on the teacher's
// internal/callbacks/retry.go (exponential backoff loop shape,
// RetryConfig, per-attempt timeout), queue_worker.go (bounded worker
// pool pulling off a channel), and dlq.go (persistent record of
// exhausted deliveries, repurposed here as the required
// WebhookDeliveries per-attempt ledger). Each destination URL gets its
// own github.com/sony/gobreaker breaker, the same bulkhead-per-service
// pattern as internal/circuitbreaker/manager.go.
package webhooks

import (
	"github.com/EnaiaInc/paper-tiger/internal/clock"
	"github.com/EnaiaInc/paper-tiger/internal/store"
)

// Webhook is a registered delivery destination, per spec.md §3.
type Webhook struct {
	ID             string
	URL            string
	Secret         string
	EnabledEvents  []string // empty/unset means "all events"
}

// Matches reports whether eventType should be delivered to this webhook.
func (w Webhook) Matches(eventType string) bool {
	if len(w.EnabledEvents) == 0 {
		return true
	}
	for _, e := range w.EnabledEvents {
		if e == eventType {
			return true
		}
	}
	return false
}

// Registry stores registered webhooks, backed by internal/store like
// every other resource.
type Registry struct {
	store *store.Store
	clock *clock.Clock
}

// NewRegistry constructs a Registry.
func NewRegistry(clk *clock.Clock) *Registry {
	return &Registry{store: store.New("webhooks"), clock: clk}
}

// Register upserts a webhook by id, per the admin endpoint
// POST /_config/webhooks/:id of spec.md §4.12/§6.
func (r *Registry) Register(id, url, secret string, events []string) Webhook {
	rec := store.Record{
		"id":             id,
		"object":         "webhook_endpoint",
		"url":            url,
		"secret":         secret,
		"enabled_events": events,
		"created":        r.clock.Now(),
	}
	r.store.Insert(rec)
	return toWebhook(rec)
}

// Delete removes a registered webhook.
func (r *Registry) Delete(id string) {
	r.store.Delete(id)
}

// All returns every registered webhook, used by the delivery pipeline to
// find matches for a newly materialized event.
func (r *Registry) All() []Webhook {
	recs := r.store.All()
	out := make([]Webhook, 0, len(recs))
	for _, rec := range recs {
		out = append(out, toWebhook(rec))
	}
	return out
}

func toWebhook(rec store.Record) Webhook {
	w := Webhook{ID: rec.ID(), URL: strField(rec, "url"), Secret: strField(rec, "secret")}
	if events, ok := rec["enabled_events"].([]string); ok {
		w.EnabledEvents = events
	}
	return w
}

func strField(rec store.Record, key string) string {
	v, _ := rec[key].(string)
	return v
}
