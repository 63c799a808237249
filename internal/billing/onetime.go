package billing

import (
	"github.com/EnaiaInc/paper-tiger/internal/chaos"
	"github.com/EnaiaInc/paper-tiger/internal/clock"
	"github.com/EnaiaInc/paper-tiger/internal/resource"
	"github.com/EnaiaInc/paper-tiger/internal/store"
	"github.com/EnaiaInc/paper-tiger/internal/telemetry"
)

// ProcessOneTimePayment attempts a single payment outside the
// subscription/invoice cycle, for checkout-session completion
// (SPEC_FULL.md §6): the same chaos-coordinator consultation, balance-
// transaction math (§4.11.1), and payment_intent/charge telemetry as a
// subscription billing cycle's attempt-payment step, minus the invoice.
func ProcessOneTimePayment(catalog *resource.Catalog, clk *clock.Clock, chaosCoord *chaos.Coordinator, bus *telemetry.Bus, customerID string, amount int64, currency string) (paymentIntent, charge store.Record, succeeded bool) {
	now := clk.Now()
	outcome := chaosCoord.ShouldPaymentFail(customerID)

	pi := store.Record{
		"id":       resource.GenerateID("pi"),
		"object":   "payment_intent",
		"created":  now,
		"livemode": false,
		"customer": customerID,
		"amount":   amount,
		"currency": currency,
	}

	if outcome.Declined {
		pi["status"] = "requires_payment_method"
		pi["last_payment_error"] = store.Record{
			"code":    outcome.Code,
			"message": chaos.DeclineMessage(outcome.Code),
			"type":    "card_error",
		}
		if piEntry, ok := catalog.ByPath("payment_intents"); ok {
			pi = piEntry.Store.Insert(pi)
		}
		bus.Emit("payment_intent.created", pi)
		bus.Emit("payment_intent.payment_failed", pi)

		ch := store.Record{
			"id":              resource.GenerateID("ch"),
			"object":          "charge",
			"created":         now,
			"livemode":        false,
			"customer":        customerID,
			"amount":          amount,
			"currency":        currency,
			"status":          "failed",
			"paid":            false,
			"captured":        false,
			"payment_intent":  pi["id"],
			"failure_code":    outcome.Code,
			"failure_message": chaos.DeclineMessage(outcome.Code),
		}
		if chargesEntry, ok := catalog.ByPath("charges"); ok {
			ch = chargesEntry.Store.Insert(ch)
		}
		bus.Emit("charge.failed", ch)
		return pi, ch, false
	}

	pi["status"] = "succeeded"
	if piEntry, ok := catalog.ByPath("payment_intents"); ok {
		pi = piEntry.Store.Insert(pi)
	}
	bus.Emit("payment_intent.created", pi)
	bus.Emit("payment_intent.succeeded", pi)

	chargeID := resource.GenerateID("ch")
	txnID := resource.GenerateID("txn")
	txnFields, _ := chargeBalanceTransaction(amount, currency, chargeID, now)
	txnFields["id"] = txnID
	txnFields["object"] = "balance_transaction"
	txnFields["created"] = now
	txnFields["livemode"] = false
	if txnsEntry, ok := catalog.ByPath("balance_transactions"); ok {
		txnsEntry.Store.Insert(txnFields)
	}

	ch := store.Record{
		"id":                  chargeID,
		"object":              "charge",
		"created":             now,
		"livemode":            false,
		"customer":            customerID,
		"amount":              amount,
		"currency":            currency,
		"status":              "succeeded",
		"captured":            true,
		"paid":                true,
		"payment_intent":      pi["id"],
		"balance_transaction": txnID,
	}
	if chargesEntry, ok := catalog.ByPath("charges"); ok {
		ch = chargesEntry.Store.Insert(ch)
	}
	bus.Emit("charge.succeeded", ch)

	return pi, ch, true
}
