package billing

import (
	"time"

	"github.com/EnaiaInc/paper-tiger/internal/chaos"
	"github.com/EnaiaInc/paper-tiger/internal/clock"
	"github.com/EnaiaInc/paper-tiger/internal/metrics"
	"github.com/EnaiaInc/paper-tiger/internal/resource"
	"github.com/EnaiaInc/paper-tiger/internal/store"
	"github.com/EnaiaInc/paper-tiger/internal/telemetry"
	"github.com/rs/zerolog"
	stripe "github.com/stripe/stripe-go/v72"
)

// pollTick is the real-time polling cadence in real/accelerated clock
// mode, per spec.md §4.11.
const pollTick = 1 * time.Second

// Engine is the periodic billing state machine of spec.md §4.11,
// generalized from the teacher's internal/subscriptions/service.go
// renewal handlers into a single poll-driven cycle covering invoice
// creation, payment attempt, dunning, and period advancement.
type Engine struct {
	catalog *resource.Catalog
	clock   *clock.Clock
	chaos   *chaos.Coordinator
	bus     *telemetry.Bus
	logger  zerolog.Logger
	metrics *metrics.Metrics

	pollDisabled bool
	done         chan struct{}
}

// NewEngine wires an Engine to its collaborators. pollDisabled, when
// true, suppresses the periodic poll goroutine entirely (spec.md §4.11's
// "configuration flag may disable the periodic poll"). m may be nil (a
// no-op Engine used in tests that don't care about Prometheus counters).
func NewEngine(catalog *resource.Catalog, clk *clock.Clock, chaosCoord *chaos.Coordinator, bus *telemetry.Bus, logger zerolog.Logger, m *metrics.Metrics, pollDisabled bool) *Engine {
	return &Engine{
		catalog:      catalog,
		clock:        clk,
		chaos:        chaosCoord,
		bus:          bus,
		logger:       logger.With().Str("component", "billing").Logger(),
		metrics:      m,
		pollDisabled: pollDisabled,
		done:         make(chan struct{}),
	}
}

// Subscriber returns the telemetry.Subscriber the Engine uses to react to
// refund creation (balance-transaction issuance happens out of band from
// the generic dispatcher, since spec.md §4.11.1's pro-rated fee math
// needs the original charge's balance transaction).
func (e *Engine) Subscriber() telemetry.Subscriber {
	return e.handleSignal
}

func (e *Engine) handleSignal(sig telemetry.Signal) {
	if sig.Name == "refund.created" {
		e.recordRefund(sig.Resource)
	}
}

// StartPolling launches the background poll goroutine, per spec.md
// §4.11's "every 1 second of wall time in real and accelerated modes; in
// manual mode polling is suppressed". It is a no-op if pollDisabled.
func (e *Engine) StartPolling() {
	if e.pollDisabled {
		return
	}
	go e.pollLoop()
}

// Stop halts the poll goroutine.
func (e *Engine) Stop() {
	close(e.done)
}

func (e *Engine) pollLoop() {
	ticker := time.NewTicker(pollTick)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			if e.clock.Mode() != clock.Manual {
				e.ProcessBilling()
			}
		case <-e.done:
			return
		}
	}
}

// ProcessBilling scans every subscription for billing eligibility and
// runs the cycle on each eligible one. Callable directly, e.g. by the
// manual-mode caller in spec.md §4.11 or by an admin endpoint.
func (e *Engine) ProcessBilling() {
	subs, ok := e.catalog.ByPath("subscriptions")
	if !ok {
		return
	}
	now := e.clock.Now()
	for _, sub := range subs.Store.All() {
		if sub["status"] != string(stripe.SubscriptionStatusActive) {
			continue
		}
		if periodEnd(sub) > now {
			continue
		}
		e.runCycle(sub)
	}
}

func periodEnd(sub store.Record) int64 {
	switch v := sub["current_period_end"].(type) {
	case int64:
		return v
	case int:
		return int64(v)
	}
	return 0
}

// runCycle executes one subscription's create-invoice -> attempt-payment
// -> advance-or-dun cycle, per spec.md §4.11.
func (e *Engine) runCycle(sub store.Record) {
	subID, _ := sub["id"].(string)
	customerID, _ := sub["customer"].(string)

	amount, currency, interval, intervalCount, err := e.deriveAmount(sub)
	if err != nil {
		e.logger.Warn().Str("subscription_id", subID).Err(err).Msg("skipping billing cycle: could not derive amount")
		return
	}

	invoice := e.selectOrCreateInvoice(sub, amount, currency)

	outcome := e.chaos.ShouldPaymentFail(customerID)
	if outcome.Declined {
		wentPastDue := e.handleFailure(sub, invoice, outcome.Code)
		if e.metrics != nil {
			e.metrics.ObserveBillingCycle("declined", wentPastDue)
		}
		return
	}
	e.handleSuccess(sub, invoice, amount, currency, interval, intervalCount)
	if e.metrics != nil {
		e.metrics.ObserveBillingCycle("paid", false)
	}
}

// deriveAmount prefers the first subscription item's price, falling back
// to the attached plan, per spec.md §4.11 step 1.
func (e *Engine) deriveAmount(sub store.Record) (amount int64, currency, interval string, intervalCount int, err error) {
	subID, _ := sub["id"].(string)

	if itemsEntry, ok := e.catalog.ByPath("subscription_items"); ok {
		for _, item := range itemsEntry.Store.All() {
			if item["subscription"] != subID {
				continue
			}
			priceID, _ := item["price"].(string)
			if pricesEntry, ok := e.catalog.ByPath("prices"); ok {
				if price, found := pricesEntry.Store.Get(priceID); found {
					return asInt64(price["unit_amount"]), asString(price["currency"]), orDefaultInterval(price["recurring_interval"]), asIntOr1(price["recurring_interval_count"]), nil
				}
			}
		}
	}

	if planID, ok := sub["plan"].(string); ok && planID != "" {
		if plansEntry, ok := e.catalog.ByPath("plans"); ok {
			if plan, found := plansEntry.Store.Get(planID); found {
				return asInt64(plan["amount"]), asString(plan["currency"]), asString(plan["interval"]), asIntOr1(plan["interval_count"]), nil
			}
		}
	}

	return 0, "", "", 0, errNoPriceOrPlan
}

var errNoPriceOrPlan = &missingReferenceError{"subscription has no resolvable price or plan"}

type missingReferenceError struct{ msg string }

func (e *missingReferenceError) Error() string { return e.msg }

func asInt64(v any) int64 {
	switch n := v.(type) {
	case int64:
		return n
	case int:
		return int64(n)
	case float64:
		return int64(n)
	}
	return 0
}

func asString(v any) string {
	s, _ := v.(string)
	return s
}

func asIntOr1(v any) int {
	n := int(asInt64(v))
	if n < 1 {
		return 1
	}
	return n
}

// orDefaultInterval falls back to a monthly cadence when a price has no
// explicit recurring interval set, since priceSchema does not require one.
func orDefaultInterval(v any) string {
	if s := asString(v); s != "" {
		return s
	}
	return "month"
}

// selectOrCreateInvoice reuses an open invoice for this subscription, or
// creates a new one plus its invoiceitem line, per spec.md §4.11 step 2.
func (e *Engine) selectOrCreateInvoice(sub store.Record, amount int64, currency string) store.Record {
	subID, _ := sub["id"].(string)
	invoicesEntry, _ := e.catalog.ByPath("invoices")

	for _, inv := range invoicesEntry.Store.All() {
		if inv["subscription"] == subID && inv["status"] == "open" {
			return inv
		}
	}

	now := e.clock.Now()
	invoice := store.Record{
		"id":                resource.GenerateID("in"),
		"object":            "invoice",
		"created":           now,
		"livemode":          false,
		"subscription":      subID,
		"customer":          sub["customer"],
		"status":            "draft",
		"amount_due":        amount,
		"amount_paid":       int64(0),
		"amount_remaining":  amount,
		"currency":          currency,
		"billing_reason":    "subscription_cycle",
		"period_start":      sub["current_period_start"],
		"period_end":        sub["current_period_end"],
		"auto_advance":      true,
		"collection_method": "charge_automatically",
		"attempt_count":     0,
	}
	stored := invoicesEntry.Store.Insert(invoice)

	if itemsEntry, ok := e.catalog.ByPath("invoiceitems"); ok {
		itemsEntry.Store.Insert(store.Record{
			"id":       resource.GenerateID("ii"),
			"object":   "invoiceitem",
			"created":  now,
			"livemode": false,
			"invoice":  stored["id"],
			"customer": sub["customer"],
			"amount":   amount,
			"currency": currency,
		})
	}

	e.bus.Emit("invoice.created", stored)
	return stored
}

// handleSuccess implements the success path of spec.md §4.11 step 3.
func (e *Engine) handleSuccess(sub, invoice store.Record, amount int64, currency, interval string, intervalCount int) {
	now := e.clock.Now()
	invoiceID, _ := invoice["id"].(string)

	chargeID := resource.GenerateID("ch")
	txnID := resource.GenerateID("txn")

	txnFields, _ := chargeBalanceTransaction(amount, currency, chargeID, now)
	txnFields["id"] = txnID
	txnFields["object"] = "balance_transaction"
	txnFields["created"] = now
	txnFields["livemode"] = false
	if txnsEntry, ok := e.catalog.ByPath("balance_transactions"); ok {
		txnsEntry.Store.Insert(txnFields)
	}

	pi := store.Record{
		"id":       resource.GenerateID("pi"),
		"object":   "payment_intent",
		"created":  now,
		"livemode": false,
		"customer": sub["customer"],
		"amount":   amount,
		"currency": currency,
		"status":   "succeeded",
		"invoice":  invoiceID,
	}
	if piEntry, ok := e.catalog.ByPath("payment_intents"); ok {
		pi = piEntry.Store.Insert(pi)
	}
	e.bus.Emit("payment_intent.created", pi)
	e.bus.Emit("payment_intent.succeeded", pi)

	charge := store.Record{
		"id":                  chargeID,
		"object":              "charge",
		"created":             now,
		"livemode":            false,
		"customer":            sub["customer"],
		"amount":              amount,
		"currency":            currency,
		"status":              "succeeded",
		"captured":            true,
		"paid":                true,
		"invoice":             invoiceID,
		"payment_intent":      pi["id"],
		"balance_transaction": txnID,
	}
	if chargesEntry, ok := e.catalog.ByPath("charges"); ok {
		charge = chargesEntry.Store.Insert(charge)
	}
	e.bus.Emit("charge.succeeded", charge)

	invoice["status"] = "paid"
	invoice["amount_paid"] = amount
	invoice["amount_remaining"] = int64(0)
	invoice["paid"] = true
	invoice["charge"] = chargeID
	if invoicesEntry, ok := e.catalog.ByPath("invoices"); ok {
		invoice = invoicesEntry.Store.Insert(invoice)
	}
	e.bus.Emit("invoice.finalized", invoice)
	e.bus.Emit("invoice.paid", invoice)
	e.bus.Emit("invoice.payment_succeeded", invoice)

	oldEnd := periodEnd(sub)
	sub["current_period_start"] = oldEnd
	sub["current_period_end"] = addInterval(oldEnd, interval, intervalCount)
	if subsEntry, ok := e.catalog.ByPath("subscriptions"); ok {
		sub = subsEntry.Store.Insert(sub)
	}
	e.bus.Emit("subscription.updated", sub)
}

// handleFailure implements the decline path of spec.md §4.11 step 3. It
// reports whether this cycle pushed the subscription into past_due, for
// the caller's metrics observation.
func (e *Engine) handleFailure(sub, invoice store.Record, code string) bool {
	now := e.clock.Now()
	invoiceID, _ := invoice["id"].(string)
	amount := asInt64(invoice["amount_due"])
	currency := asString(invoice["currency"])

	pi := store.Record{
		"id":       resource.GenerateID("pi"),
		"object":   "payment_intent",
		"created":  now,
		"livemode": false,
		"customer": sub["customer"],
		"amount":   amount,
		"currency": currency,
		"status":   "requires_payment_method",
		"invoice":  invoiceID,
		"last_payment_error": store.Record{
			"code":    code,
			"message": chaos.DeclineMessage(code),
			"type":    "card_error",
		},
	}
	if piEntry, ok := e.catalog.ByPath("payment_intents"); ok {
		pi = piEntry.Store.Insert(pi)
	}
	e.bus.Emit("payment_intent.created", pi)
	e.bus.Emit("payment_intent.payment_failed", pi)

	charge := store.Record{
		"id":              resource.GenerateID("ch"),
		"object":          "charge",
		"created":         now,
		"livemode":        false,
		"customer":        sub["customer"],
		"amount":          amount,
		"currency":        currency,
		"status":          "failed",
		"paid":            false,
		"captured":        false,
		"invoice":         invoiceID,
		"payment_intent":  pi["id"],
		"failure_code":    code,
		"failure_message": chaos.DeclineMessage(code),
	}
	if chargesEntry, ok := e.catalog.ByPath("charges"); ok {
		charge = chargesEntry.Store.Insert(charge)
	}
	e.bus.Emit("charge.failed", charge)

	attemptCount := int(asInt64(invoice["attempt_count"])) + 1
	invoice["status"] = "open"
	invoice["attempt_count"] = attemptCount
	invoice["next_payment_attempt"] = now + retryDelay(attemptCount)
	if invoicesEntry, ok := e.catalog.ByPath("invoices"); ok {
		invoice = invoicesEntry.Store.Insert(invoice)
	}
	e.bus.Emit("invoice.payment_failed", invoice)

	if attemptCount >= 4 && sub["status"] != string(stripe.SubscriptionStatusPastDue) {
		sub["status"] = string(stripe.SubscriptionStatusPastDue)
		if subsEntry, ok := e.catalog.ByPath("subscriptions"); ok {
			sub = subsEntry.Store.Insert(sub)
		}
		e.bus.Emit("subscription.updated", sub)
		return true
	}
	return false
}

// recordRefund issues the pro-rated balance transaction for a refund,
// per spec.md §4.11.1.
func (e *Engine) recordRefund(refund store.Record) {
	chargeID, _ := refund["charge"].(string)
	refundID, _ := refund["id"].(string)
	refundAmount := asInt64(refund["amount"])

	chargesEntry, ok := e.catalog.ByPath("charges")
	if !ok {
		return
	}
	charge, ok := chargesEntry.Store.Get(chargeID)
	if !ok {
		return
	}
	originalAmount := asInt64(charge["amount"])

	txnsEntry, ok := e.catalog.ByPath("balance_transactions")
	if !ok {
		return
	}
	originalTxnID, _ := charge["balance_transaction"].(string)
	originalTxn, _ := txnsEntry.Store.Get(originalTxnID)
	originalFee := asInt64(originalTxn["fee"])

	now := e.clock.Now()
	txn := refundBalanceTransaction(refundAmount, originalAmount, originalFee, refundID, now)
	txn["id"] = resource.GenerateID("txn")
	txn["object"] = "balance_transaction"
	txn["created"] = now
	txn["livemode"] = false
	txnsEntry.Store.Insert(txn)
}
