package webhooks

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/EnaiaInc/paper-tiger/internal/chaos"
	"github.com/EnaiaInc/paper-tiger/internal/clock"
	"github.com/EnaiaInc/paper-tiger/internal/store"
	"github.com/rs/zerolog"
)

func TestWebhookMatchesEmptyAllowlist(t *testing.T) {
	wh := Webhook{ID: "we_1"}
	if !wh.Matches("customer.created") {
		t.Fatalf("empty allowlist should match every event type")
	}
}

func TestWebhookMatchesAllowlist(t *testing.T) {
	wh := Webhook{ID: "we_1", EnabledEvents: []string{"customer.created"}}
	if wh.Matches("invoice.paid") {
		t.Fatalf("should not match an event type outside the allowlist")
	}
	if !wh.Matches("customer.created") {
		t.Fatalf("should match an event type inside the allowlist")
	}
}

func TestDeliveryPostsSignedEvent(t *testing.T) {
	receivedSig := make(chan string, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		receivedSig <- r.Header.Get("stripe-signature")
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	clk := clock.New()
	registry := NewRegistry(clk)
	registry.Register("we_1", srv.URL, "whsec_abc", nil)

	coord := chaos.New()
	ec := chaos.NewEventChaos(coord)
	pipeline := NewPipeline(registry, clk, ec, zerolog.Nop(), nil, 2)
	defer pipeline.Close()

	event := store.Record{"id": "evt_1", "object": "event", "type": "customer.created"}
	pipeline.HandleEvent(event)

	select {
	case sig := <-receivedSig:
		if sig == "" {
			t.Fatalf("expected a stripe-signature header")
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for webhook delivery")
	}
}
