package httpserver

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/EnaiaInc/paper-tiger/internal/billing"
	"github.com/EnaiaInc/paper-tiger/internal/chaos"
	"github.com/EnaiaInc/paper-tiger/internal/clock"
	"github.com/EnaiaInc/paper-tiger/internal/config"
	"github.com/EnaiaInc/paper-tiger/internal/events"
	"github.com/EnaiaInc/paper-tiger/internal/hydrate"
	"github.com/EnaiaInc/paper-tiger/internal/idempotency"
	"github.com/EnaiaInc/paper-tiger/internal/resource"
	"github.com/EnaiaInc/paper-tiger/internal/store"
	"github.com/EnaiaInc/paper-tiger/internal/telemetry"
	"github.com/EnaiaInc/paper-tiger/internal/webhooks"
)

// testStack bundles the collaborators a scenario needs direct access to
// alongside the httptest server, mirroring cmd/paper-tiger/main.go's
// wiring order without the process-lifetime concerns (signals, metrics
// registration) a test doesn't need.
type testStack struct {
	srv     *httptest.Server
	catalog *resource.Catalog
	clock   *clock.Clock
	chaos   *chaos.Coordinator
	billing *billing.Engine
	bus     *telemetry.Bus
}

func newTestStack(t *testing.T) *testStack {
	t.Helper()

	cfg := &config.Config{}
	cfg.Server.Host = "127.0.0.1"
	cfg.Server.ReadTimeout.Duration = 15 * time.Second
	cfg.Server.WriteTimeout.Duration = 15 * time.Second
	cfg.Server.IdleTimeout.Duration = 60 * time.Second
	cfg.Auth.Mode = "lenient"

	clk := clock.New()
	clk.SetMode(clock.Manual, 1)

	catalog := resource.BuildCatalog(clk)
	hydrator := hydrate.New(catalog.Lookup)
	bus := telemetry.New(zerolog.Nop())
	dispatcher := resource.NewDispatcher(catalog, hydrator, bus, clk)

	chaosCoord := chaos.New()
	eventChaos := chaos.NewEventChaos(chaosCoord)

	registry := webhooks.NewRegistry(clk)
	pipeline := webhooks.NewPipeline(registry, clk, eventChaos, zerolog.Nop(), nil, 2)
	t.Cleanup(pipeline.Close)

	materializer := events.New(clk, pipeline.HandleEvent)
	bus.Subscribe(materializer.Subscriber())

	billingEngine := billing.NewEngine(catalog, clk, chaosCoord, bus, zerolog.Nop(), nil, true)
	bus.Subscribe(billingEngine.Subscriber())

	idempStore := idempotency.New(clk)

	h := New(Deps{
		Config:       cfg,
		Catalog:      catalog,
		Dispatcher:   dispatcher,
		Bus:          bus,
		Idempotency:  idempStore,
		Webhooks:     registry,
		Pipeline:     pipeline,
		Materializer: materializer,
		Chaos:        chaosCoord,
		EventChaos:   eventChaos,
		Clock:        clk,
		Billing:      billingEngine,
		Metrics:      nil,
		Logger:       zerolog.Nop(),
	})

	srv := httptest.NewServer(h.Handler())
	t.Cleanup(srv.Close)

	return &testStack{srv: srv, catalog: catalog, clock: clk, chaos: chaosCoord, billing: billingEngine, bus: bus}
}

func (ts *testStack) requestJSON(t *testing.T, method, path string, body map[string]any, extraHeaders map[string]string) (*http.Response, map[string]any) {
	t.Helper()
	raw, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("marshal request body: %v", err)
	}
	req, err := http.NewRequest(method, ts.srv.URL+path, strings.NewReader(string(raw)))
	if err != nil {
		t.Fatalf("build request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer sk_test_fixture")
	for k, v := range extraHeaders {
		req.Header.Set(k, v)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("do request: %v", err)
	}
	defer resp.Body.Close()

	var decoded map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return resp, decoded
}

func (ts *testStack) request(t *testing.T, method, path string, body url.Values, extraHeaders map[string]string) (*http.Response, map[string]any) {
	t.Helper()
	var req *http.Request
	var err error
	if body != nil {
		req, err = http.NewRequest(method, ts.srv.URL+path, strings.NewReader(body.Encode()))
		if err == nil {
			req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		}
	} else {
		req, err = http.NewRequest(method, ts.srv.URL+path, nil)
	}
	if err != nil {
		t.Fatalf("build request: %v", err)
	}
	req.Header.Set("Authorization", "Bearer sk_test_fixture")
	for k, v := range extraHeaders {
		req.Header.Set(k, v)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("do request: %v", err)
	}
	defer resp.Body.Close()

	var decoded map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return resp, decoded
}

// TestScenarioA_CustomerCRUD implements spec.md §8 Scenario A.
func TestScenarioA_CustomerCRUD(t *testing.T) {
	ts := newTestStack(t)

	form := url.Values{"email": {"a@b.com"}, "name": {"Alice"}, "metadata[plan]": {"pro"}}
	resp, created := ts.request(t, http.MethodPost, "/v1/customers", form, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("create: want 200, got %d", resp.StatusCode)
	}
	id, _ := created["id"].(string)
	if !strings.HasPrefix(id, "cus_") {
		t.Fatalf("expected id to start with cus_, got %q", id)
	}
	if created["email"] != "a@b.com" || created["name"] != "Alice" {
		t.Fatalf("expected echoed fields, got %+v", created)
	}
	metadata, _ := created["metadata"].(map[string]any)
	if metadata["plan"] != "pro" {
		t.Fatalf("expected metadata.plan=pro, got %+v", created["metadata"])
	}

	_, retrieved := ts.request(t, http.MethodGet, "/v1/customers/"+id, nil, nil)
	if retrieved["id"] != id || retrieved["email"] != "a@b.com" {
		t.Fatalf("retrieve mismatch: %+v", retrieved)
	}

	_, updated := ts.request(t, http.MethodPost, "/v1/customers/"+id, url.Values{"email": {"alice@b.com"}}, nil)
	if updated["email"] != "alice@b.com" {
		t.Fatalf("expected updated email, got %+v", updated)
	}
	if updated["created"] != retrieved["created"] {
		t.Fatalf("created should be unchanged across update: %v vs %v", retrieved["created"], updated["created"])
	}

	_, deleted := ts.request(t, http.MethodDelete, "/v1/customers/"+id, nil, nil)
	if deleted["deleted"] != true || deleted["id"] != id || deleted["object"] != "customer" {
		t.Fatalf("unexpected delete response: %+v", deleted)
	}

	resp, notFound := ts.request(t, http.MethodGet, "/v1/customers/"+id, nil, nil)
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404 after delete, got %d", resp.StatusCode)
	}
	errBody, _ := notFound["error"].(map[string]any)
	if errBody["type"] != "invalid_request_error" {
		t.Fatalf("expected invalid_request_error wire type, got %+v", notFound)
	}
}

// TestScenarioB_IdempotentCreation implements spec.md §8 Scenario B.
func TestScenarioB_IdempotentCreation(t *testing.T) {
	ts := newTestStack(t)

	body := url.Values{"email": {"dup@b.com"}}
	headers := map[string]string{"Idempotency-Key": "K-123"}

	resp1, first := ts.request(t, http.MethodPost, "/v1/customers", body, headers)
	if resp1.Header.Get("X-Idempotency-Cached") == "true" {
		t.Fatalf("first request should not be marked cached")
	}

	resp2, second := ts.request(t, http.MethodPost, "/v1/customers", body, headers)
	if resp2.Header.Get("X-Idempotency-Cached") != "true" {
		t.Fatalf("second request with same key should be marked cached")
	}
	if first["id"] != second["id"] {
		t.Fatalf("expected same id for replayed idempotent request: %v vs %v", first["id"], second["id"])
	}

	_, third := ts.request(t, http.MethodPost, "/v1/customers", body, map[string]string{"Idempotency-Key": "K-124"})
	if third["id"] == first["id"] {
		t.Fatalf("different idempotency key should create a distinct resource")
	}
}

// TestScenarioC_Pagination implements spec.md §8 Scenario C.
func TestScenarioC_Pagination(t *testing.T) {
	ts := newTestStack(t)

	seen := map[string]bool{}
	for i := 1; i <= 25; i++ {
		_, created := ts.request(t, http.MethodPost, "/v1/customers", url.Values{"name": {fmt.Sprintf("c%d", i)}}, nil)
		seen[created["id"].(string)] = false
	}

	collect := func(query string) (ids []string, hasMore bool) {
		_, page := ts.request(t, http.MethodGet, "/v1/customers?"+query, nil, nil)
		data, _ := page["data"].([]any)
		for _, d := range data {
			rec, _ := d.(map[string]any)
			ids = append(ids, rec["id"].(string))
		}
		hasMore, _ = page["has_more"].(bool)
		return
	}

	page1, more1 := collect("limit=10")
	if len(page1) != 10 || !more1 {
		t.Fatalf("page1: want 10 rows with has_more, got %d rows has_more=%v", len(page1), more1)
	}
	page2, more2 := collect("limit=10&starting_after=" + page1[len(page1)-1])
	if len(page2) != 10 || !more2 {
		t.Fatalf("page2: want 10 rows with has_more, got %d rows has_more=%v", len(page2), more2)
	}
	page3, more3 := collect("limit=10&starting_after=" + page2[len(page2)-1])
	if len(page3) != 5 || more3 {
		t.Fatalf("page3: want 5 rows with has_more=false, got %d rows has_more=%v", len(page3), more3)
	}

	all := append(append(page1, page2...), page3...)
	if len(all) != 25 {
		t.Fatalf("expected union of 25 distinct ids, got %d", len(all))
	}
	union := map[string]bool{}
	for _, id := range all {
		if union[id] {
			t.Fatalf("id %s appeared more than once across pages", id)
		}
		union[id] = true
	}
}

// TestListFilterByCustomer exercises the per-resource list filter of
// spec.md §4.6/§6 end to end: /v1/subscriptions?customer=X must only
// return that customer's subscriptions.
func TestListFilterByCustomer(t *testing.T) {
	ts := newTestStack(t)

	customers, _ := ts.catalog.ByPath("customers")
	custA := customers.Store.Insert(store.Record{"id": "cus_a", "object": "customer"})
	custB := customers.Store.Insert(store.Record{"id": "cus_b", "object": "customer"})

	subs, _ := ts.catalog.ByPath("subscriptions")
	subs.Store.Insert(store.Record{"id": "sub_a1", "object": "subscription", "customer": custA["id"], "status": "active"})
	subs.Store.Insert(store.Record{"id": "sub_a2", "object": "subscription", "customer": custA["id"], "status": "active"})
	subs.Store.Insert(store.Record{"id": "sub_b1", "object": "subscription", "customer": custB["id"], "status": "active"})

	_, page := ts.request(t, http.MethodGet, "/v1/subscriptions?customer=cus_a", nil, nil)
	data, _ := page["data"].([]any)
	if len(data) != 2 {
		t.Fatalf("expected 2 subscriptions for cus_a, got %d: %+v", len(data), data)
	}
	for _, d := range data {
		rec, _ := d.(map[string]any)
		if rec["customer"] != "cus_a" {
			t.Fatalf("unexpected subscription for a different customer: %+v", rec)
		}
	}

	_, unfiltered := ts.request(t, http.MethodGet, "/v1/subscriptions", nil, nil)
	all, _ := unfiltered["data"].([]any)
	if len(all) != 3 {
		t.Fatalf("expected 3 subscriptions with no filter, got %d", len(all))
	}
}

// TestScenarioD_BillingCycleSuccess implements spec.md §8 Scenario D.
func TestScenarioD_BillingCycleSuccess(t *testing.T) {
	ts := newTestStack(t)

	customer, ok := ts.catalog.ByPath("customers")
	if !ok {
		t.Fatal("customers entry not registered")
	}
	cust := customer.Store.Insert(store.Record{"id": "cus_d", "object": "customer"})

	plans, _ := ts.catalog.ByPath("plans")
	plans.Store.Insert(store.Record{"id": "plan_d", "object": "plan", "amount": int64(2000), "currency": "usd", "interval": "month", "interval_count": 1})

	const day = int64(86400)
	periodStart := ts.clock.Now() - 2_592_000
	periodEnd := ts.clock.Now() - day

	subs, _ := ts.catalog.ByPath("subscriptions")
	subs.Store.Insert(store.Record{
		"id": "sub_d", "object": "subscription", "customer": cust["id"],
		"plan": "plan_d", "status": "active",
		"current_period_start": periodStart, "current_period_end": periodEnd,
	})

	sigCh := make(chan string, 64)
	ts.bus.Subscribe(func(sig telemetry.Signal) { sigCh <- sig.Name })

	ts.billing.ProcessBilling()

	invoices, _ := ts.catalog.ByPath("invoices")
	var invoice store.Record
	for _, inv := range invoices.Store.All() {
		if inv["subscription"] == "sub_d" {
			invoice = inv
		}
	}
	if invoice == nil {
		t.Fatal("expected an invoice to be created")
	}
	if asInt64(invoice["amount_due"]) != 2000 || invoice["status"] != "paid" {
		t.Fatalf("unexpected invoice: %+v", invoice)
	}

	charges, _ := ts.catalog.ByPath("charges")
	var charge store.Record
	for _, ch := range charges.Store.All() {
		if ch["invoice"] == invoice["id"] {
			charge = ch
		}
	}
	if charge == nil || charge["status"] != "succeeded" || asInt64(charge["amount"]) != 2000 {
		t.Fatalf("unexpected charge: %+v", charge)
	}

	txns, _ := ts.catalog.ByPath("balance_transactions")
	var txn store.Record
	for _, tx := range txns.Store.All() {
		if tx["source"] == charge["id"] {
			txn = tx
		}
	}
	if txn == nil || asInt64(txn["fee"]) != 88 || asInt64(txn["net"]) != 1912 {
		t.Fatalf("unexpected balance transaction: %+v", txn)
	}

	updatedSub, _ := subs.Store.Get("sub_d")
	if asInt64(updatedSub["current_period_start"]) != periodEnd {
		t.Fatalf("expected new period_start == old period_end, got %v", updatedSub["current_period_start"])
	}
	if asInt64(updatedSub["current_period_end"]) != periodEnd+2_592_000 {
		t.Fatalf("expected new period_end advanced by one month, got %v", updatedSub["current_period_end"])
	}

	want := []string{
		"invoice.created", "payment_intent.created", "payment_intent.succeeded",
		"charge.succeeded", "invoice.finalized", "invoice.paid",
		"invoice.payment_succeeded", "subscription.updated",
	}
	// The bus dispatches on its own goroutine, so collect the signals
	// as they arrive rather than reading them right after ProcessBilling.
	var signals []string
	deadline := time.After(2 * time.Second)
	for len(signals) < len(want) {
		select {
		case name := <-sigCh:
			signals = append(signals, name)
		case <-deadline:
			t.Fatalf("timed out waiting for signals, got %v", signals)
		}
	}
	if strings.Join(signals, ",") != strings.Join(want, ",") {
		t.Fatalf("unexpected signal order: %v", signals)
	}
}

// TestScenarioE_DunningToPastDue implements spec.md §8 Scenario E.
func TestScenarioE_DunningToPastDue(t *testing.T) {
	ts := newTestStack(t)

	customer, _ := ts.catalog.ByPath("customers")
	cust := customer.Store.Insert(store.Record{"id": "cus_e", "object": "customer"})
	ts.chaos.SetCustomerOverride(cust["id"].(string), "card_declined")

	plans, _ := ts.catalog.ByPath("plans")
	plans.Store.Insert(store.Record{"id": "plan_e", "object": "plan", "amount": int64(2000), "currency": "usd", "interval": "month", "interval_count": 1})

	const day = int64(86400)
	subs, _ := ts.catalog.ByPath("subscriptions")
	subs.Store.Insert(store.Record{
		"id": "sub_e", "object": "subscription", "customer": cust["id"],
		"plan": "plan_e", "status": "active",
		"current_period_start": ts.clock.Now() - 2_592_000, "current_period_end": ts.clock.Now() - day,
	})

	for i := 1; i <= 4; i++ {
		ts.billing.ProcessBilling()

		invoices, _ := ts.catalog.ByPath("invoices")
		var invoice store.Record
		for _, inv := range invoices.Store.All() {
			if inv["subscription"] == "sub_e" {
				invoice = inv
			}
		}
		if invoice == nil {
			t.Fatalf("cycle %d: expected an invoice", i)
		}
		if asInt64(invoice["attempt_count"]) != int64(i) {
			t.Fatalf("cycle %d: expected attempt_count=%d, got %v", i, i, invoice["attempt_count"])
		}
		if i < 4 && invoice["status"] != "open" {
			t.Fatalf("cycle %d: expected invoice status open, got %v", i, invoice["status"])
		}

		sub, _ := subs.Store.Get("sub_e")
		wantStatus := "active"
		if i == 4 {
			wantStatus = "past_due"
		}
		if sub["status"] != wantStatus {
			t.Fatalf("cycle %d: expected subscription status %s, got %v", i, wantStatus, sub["status"])
		}
	}

	invoices, _ := ts.catalog.ByPath("invoices")
	invoiceCount := 0
	for _, inv := range invoices.Store.All() {
		if inv["subscription"] == "sub_e" {
			invoiceCount++
		}
	}
	if invoiceCount != 1 {
		t.Fatalf("expected exactly one invoice reused across cycles, got %d", invoiceCount)
	}

	charges, _ := ts.catalog.ByPath("charges")
	chargeCount := 0
	for _, ch := range charges.Store.All() {
		if ch["customer"] == cust["id"] {
			chargeCount++
		}
	}
	if chargeCount != 4 {
		t.Fatalf("expected exactly four charges, got %d", chargeCount)
	}
}

// TestScenarioF_WebhookSigning implements spec.md §8 Scenario F.
func TestScenarioF_WebhookSigning(t *testing.T) {
	received := make(chan *http.Request, 1)
	var capturedBody []byte
	rx := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		buf, _ := io.ReadAll(r.Body)
		capturedBody = buf
		received <- r
		w.WriteHeader(http.StatusOK)
	}))
	defer rx.Close()

	ts := newTestStack(t)

	_, regResp := ts.requestJSON(t, http.MethodPost, "/_config/webhooks/we_1", map[string]any{"url": rx.URL, "secret": "whsec_abc"}, nil)
	if regResp["ID"] != "we_1" {
		t.Fatalf("unexpected webhook registration response: %+v", regResp)
	}

	ts.request(t, http.MethodPost, "/v1/customers", url.Values{"email": {"f@b.com"}}, nil)

	select {
	case req := <-received:
		sig := req.Header.Get("Stripe-Signature")
		if !strings.Contains(sig, "t=") || !strings.Contains(sig, "v1=") {
			t.Fatalf("expected t=...,v1=... signature header, got %q", sig)
		}
		parts := strings.Split(sig, ",")
		created := strings.TrimPrefix(parts[0], "t=")
		v1 := strings.TrimPrefix(parts[1], "v1=")
		if !webhooks.Verify("whsec_abc", atoi64(t, created), capturedBody, v1) {
			t.Fatalf("signature did not verify against recomputed HMAC")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for webhook delivery")
	}
}

func atoi64(t *testing.T, s string) int64 {
	t.Helper()
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		t.Fatalf("parse timestamp %q: %v", s, err)
	}
	return n
}
