package resource

import (
	"github.com/EnaiaInc/paper-tiger/internal/clock"
	"github.com/EnaiaInc/paper-tiger/internal/store"
)

// BuildCatalog registers the concretely wired schemas of SPEC_FULL.md §6:
// enough resource types to exercise the full dispatch/hydration/
// telemetry path end to end. Additional resource types are a matter of
// adding another Schema literal and a store — the point of the generic
// dispatcher.
func BuildCatalog(clk *clock.Clock) *Catalog {
	c := NewCatalog(clk)

	globalTokens := store.New("tokens")
	seedTokenFixtures(globalTokens)
	globalPaymentMethods := store.New("payment_methods")

	c.Register(&Entry{Schema: customerSchema, Store: store.New("customers")})
	c.Register(&Entry{Schema: productSchema, Store: store.New("products")})
	c.Register(&Entry{Schema: priceSchema, Store: store.New("prices")})
	c.Register(&Entry{Schema: planSchema, Store: store.New("plans")})
	c.Register(&Entry{Schema: paymentMethodSchema, Store: store.NewWithGlobal("payment_methods", globalPaymentMethods)})
	c.Register(&Entry{Schema: tokenSchema, Store: store.NewWithGlobal("tokens", globalTokens)})
	c.Register(&Entry{Schema: checkoutSessionSchema, Store: store.New("checkout_sessions")})
	c.Register(&Entry{Schema: refundSchema, Store: store.New("refunds")})
	c.Register(&Entry{Schema: subscriptionSchema, Store: store.New("subscriptions")})
	c.Register(&Entry{Schema: subscriptionItemSchema, Store: store.New("subscription_items")})
	c.Register(&Entry{Schema: invoiceSchema, Store: store.New("invoices")})
	c.Register(&Entry{Schema: invoiceItemSchema, Store: store.New("invoiceitems")})
	c.Register(&Entry{Schema: chargeSchema, Store: store.New("charges")})
	c.Register(&Entry{Schema: paymentIntentSchema, Store: store.New("payment_intents")})
	c.Register(&Entry{Schema: balanceTransactionSchema, Store: store.New("balance_transactions")})

	return c
}

// seedTokenFixtures pre-populates the well-known card-brand test tokens
// the global namespace exists to serve, per spec.md §4.2.
func seedTokenFixtures(s *store.Store) {
	fixtures := []string{"tok_visa", "tok_mastercard", "tok_amex", "tok_chargeDeclined"}
	for i, id := range fixtures {
		s.Insert(store.Record{
			"id":       id,
			"object":   "token",
			"created":  int64(1000 + i),
			"livemode": false,
			"used":     false,
		})
	}
}

var customerSchema = Schema{
	Prefix:   "cus",
	Object:   "customer",
	PathName: "customers",
	BuildFromParams: func(p store.Record) (store.Record, error) {
		return p, nil
	},
}

var productSchema = Schema{
	Prefix:   "prod",
	Object:   "product",
	PathName: "products",
	Required: []string{"name"},
}

var priceSchema = Schema{
	Prefix:   "price",
	Object:   "price",
	PathName: "prices",
	Required: []string{"unit_amount", "currency"},
}

var planSchema = Schema{
	Prefix:   "plan",
	Object:   "plan",
	PathName: "plans",
	Required: []string{"amount", "currency", "interval"},
}

var paymentMethodSchema = Schema{
	Prefix:   "pm",
	Object:   "payment_method",
	PathName: "payment_methods",
	Required: []string{"type"},
}

var tokenSchema = Schema{
	Prefix:   "tok",
	Object:   "token",
	PathName: "tokens",
}

var checkoutSessionSchema = Schema{
	Prefix:   "cs",
	Object:   "checkout.session",
	PathName: "checkout/sessions",
	Required: []string{"mode"},
	BuildFromParams: func(p store.Record) (store.Record, error) {
		if _, ok := p["status"]; !ok {
			p["status"] = "open"
		}
		return p, nil
	},
}

var refundSchema = Schema{
	Prefix:   "re",
	Object:   "refund",
	PathName: "refunds",
	Required: []string{"charge"},
}

var subscriptionSchema = Schema{
	Prefix:          "sub",
	Object:          "subscription",
	PathName:        "subscriptions",
	Required:        []string{"customer"},
	SoftDeleteField: "status",
	SoftDeleteValue: "canceled",
}

var subscriptionItemSchema = Schema{
	Prefix:         "si",
	Object:         "subscription_item",
	PathName:       "subscription_items",
	Required:       []string{"subscription", "price"},
	ExtraImmutable: []string{"subscription"},
}

var invoiceSchema = Schema{
	Prefix:   "in",
	Object:   "invoice",
	PathName: "invoices",
}

var invoiceItemSchema = Schema{
	Prefix:   "ii",
	Object:   "invoiceitem",
	PathName: "invoiceitems",
}

var chargeSchema = Schema{
	Prefix:   "ch",
	Object:   "charge",
	PathName: "charges",
}

var paymentIntentSchema = Schema{
	Prefix:   "pi",
	Object:   "payment_intent",
	PathName: "payment_intents",
}

var balanceTransactionSchema = Schema{
	Prefix:   "txn",
	Object:   "balance_transaction",
	PathName: "balance_transactions",
}
