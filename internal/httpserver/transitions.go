package httpserver

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/EnaiaInc/paper-tiger/internal/apierror"
	"github.com/EnaiaInc/paper-tiger/internal/billing"
	"github.com/EnaiaInc/paper-tiger/internal/reqparse"
	"github.com/EnaiaInc/paper-tiger/internal/store"
)

// mountCustomTransitions wires the non-CRUD endpoints spec.md §4.6 calls
// out by name: checkout-session complete, payment-method attach/detach.
// Subscription cancel-at-period-end needs no dedicated handler — it's
// just an Update setting cancel_at_period_end=true through the generic
// dispatch path already mounted by mountResource.
func (h *handlers) mountCustomTransitions(r chi.Router) {
	idempMW := h.idempotencyMiddleware()

	r.With(idempMW).Post("/checkout/sessions/{id}/complete", h.handleCheckoutComplete)
	r.With(idempMW).Post("/payment_methods/{id}/attach", h.handleAttachPaymentMethod)
	r.With(idempMW).Post("/payment_methods/{id}/detach", h.handleDetachPaymentMethod)
}

// handleCheckoutComplete implements the checkout_session "complete"
// transition named in spec.md §4.6: attempt payment for the session's
// amount, then for mode=subscription also create the subscription.
func (h *handlers) handleCheckoutComplete(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	sessionEntry, ok := h.catalog.ByPath("checkout/sessions")
	if !ok {
		apierror.Write(w, apierror.ServerError, "checkout_session resource is not registered")
		return
	}
	session, found := sessionEntry.Store.Get(id)
	if !found {
		apierror.WriteNotFound(w, "checkout_session", id)
		return
	}

	if status, _ := session["status"].(string); status == "complete" {
		apierror.Write(w, apierror.InvalidRequest, "This checkout session has already been completed.")
		return
	}

	customerID, _ := session["customer"].(string)
	amount := asInt64(session["amount_total"])
	currency, _ := session["currency"].(string)
	if currency == "" {
		currency = "usd"
	}

	pi, charge, succeeded := billing.ProcessOneTimePayment(h.catalog, h.clock, h.chaosCoord, h.bus, customerID, amount, currency)

	session["payment_intent"] = pi["id"]

	if !succeeded {
		session["status"] = "open"
		sessionEntry.Store.Update(session)
		apierror.WriteWithCode(w, apierror.CardError, "Your card was declined.", storeString(charge["failure_code"]))
		return
	}

	session["status"] = "complete"

	mode, _ := session["mode"].(string)
	if mode == "subscription" {
		subEntry, ok := h.catalog.ByPath("subscriptions")
		if ok {
			params := store.Record{"customer": customerID}
			if planID, ok := session["plan"]; ok {
				params["plan"] = planID
			}
			sub, apiErr := h.dispatcher.Create(subEntry, params, nil)
			if apiErr != nil {
				apierror.WriteResponse(w, apiErr)
				return
			}
			session["subscription"] = sub["id"]
		}
	}

	session = sessionEntry.Store.Update(session)
	writeRecord(w, session)
}

// handleAttachPaymentMethod sets the customer field on a payment_method,
// the attach transition spec.md §4.6 names.
func (h *handlers) handleAttachPaymentMethod(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var body struct {
		Customer string `json:"customer"`
	}
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			apierror.Write(w, apierror.InvalidRequest, "Unable to parse request body: "+err.Error())
			return
		}
	}
	if body.Customer == "" {
		if err := r.ParseForm(); err == nil {
			body.Customer = r.FormValue("customer")
		}
	}
	if body.Customer == "" {
		apierror.Write(w, apierror.InvalidRequest, "Missing required param: customer")
		return
	}

	e, ok := h.catalog.ByPath("payment_methods")
	if !ok {
		apierror.Write(w, apierror.ServerError, "payment_method resource is not registered")
		return
	}

	rec, apiErr := h.dispatcher.Update(e, id, store.Record{"customer": body.Customer}, reqparse.ParseExpand(r.URL.Query()))
	if apiErr != nil {
		apierror.WriteResponse(w, apiErr)
		return
	}
	writeRecord(w, rec)
}

// handleDetachPaymentMethod clears the customer field on a
// payment_method, the detach transition spec.md §4.6 names.
func (h *handlers) handleDetachPaymentMethod(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	e, ok := h.catalog.ByPath("payment_methods")
	if !ok {
		apierror.Write(w, apierror.ServerError, "payment_method resource is not registered")
		return
	}

	rec, apiErr := h.dispatcher.Update(e, id, store.Record{"customer": nil}, nil)
	if apiErr != nil {
		apierror.WriteResponse(w, apiErr)
		return
	}
	writeRecord(w, rec)
}

func storeString(v any) string {
	s, _ := v.(string)
	return s
}

// asInt64 widens the numeric types JSON decoding and direct store
// construction can leave a field as (int, int64, float64) into int64.
func asInt64(v any) int64 {
	switch n := v.(type) {
	case int64:
		return n
	case int:
		return int64(n)
	case float64:
		return int64(n)
	default:
		return 0
	}
}
