package httpserver

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/EnaiaInc/paper-tiger/internal/apierror"
)

// handleRegisterWebhook implements POST /_config/webhooks/:id, per
// spec.md §4.12/§6: register (or replace) a delivery destination.
func (h *handlers) handleRegisterWebhook(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var body struct {
		URL    string   `json:"url"`
		Secret string   `json:"secret"`
		Events []string `json:"events"`
	}
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			apierror.Write(w, apierror.InvalidRequest, "Unable to parse request body: "+err.Error())
			return
		}
	}
	if body.URL == "" {
		apierror.Write(w, apierror.InvalidRequest, "Missing required param: url")
		return
	}

	wh := h.registry.Register(id, body.URL, body.Secret, body.Events)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(wh)
}

// handleFlushData implements DELETE /_config/data, per spec.md §4.12/§6:
// wipe every resource store plus the materialized event log, returning
// the mock to a clean slate between test runs. The idempotency cache is
// not cleared; its entries expire by TTL.
func (h *handlers) handleFlushData(w http.ResponseWriter, r *http.Request) {
	for _, e := range h.catalog.Entries() {
		e.Store.Clear()
	}
	if h.materializer != nil {
		h.materializer.Store().Clear()
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(map[string]bool{"deleted": true})
}

// handleAdvanceTime implements POST /_config/time/advance, per spec.md
// §4.12/§6: move the virtual clock forward by a caller-specified delta,
// accepted in any of seconds/minutes/hours/days (summed if more than one
// is given).
func (h *handlers) handleAdvanceTime(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Seconds int64 `json:"seconds"`
		Minutes int64 `json:"minutes"`
		Hours   int64 `json:"hours"`
		Days    int64 `json:"days"`
	}
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			apierror.Write(w, apierror.InvalidRequest, "Unable to parse request body: "+err.Error())
			return
		}
	}

	delta := body.Seconds + body.Minutes*60 + body.Hours*3600 + body.Days*86400
	if delta <= 0 {
		apierror.Write(w, apierror.InvalidRequest, "Missing required param: one of seconds, minutes, hours, days must be a positive amount")
		return
	}

	now := h.clock.Advance(delta)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(map[string]int64{"now": now})
}
