package httpserver

import (
	"encoding/json"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/EnaiaInc/paper-tiger/internal/apierror"
	"github.com/EnaiaInc/paper-tiger/internal/logger"
	"github.com/EnaiaInc/paper-tiger/internal/reqparse"
	"github.com/EnaiaInc/paper-tiger/internal/resource"
	"github.com/EnaiaInc/paper-tiger/internal/store"
)

// listFilterParams are the per-resource list filters spec.md §4.6/§6
// names (e.g. "customer=X" on /v1/subscriptions or /v1/charges). A
// resource that doesn't carry a given field simply matches nothing for
// that filter, which is the same "no rows" result a real API gives for a
// filter that doesn't apply to the resource.
var listFilterParams = []string{"customer", "subscription", "invoice"}

// buildListFilter turns any recognized filter query params into a
// store.Filter, or nil if none were supplied, per store.ListOptions.Filter
// (store.go:131) which Store.List already honors.
func buildListFilter(q url.Values) store.Filter {
	type cond struct{ key, val string }
	var conds []cond
	for _, key := range listFilterParams {
		if v := q.Get(key); v != "" {
			conds = append(conds, cond{key, v})
		}
	}
	if len(conds) == 0 {
		return nil
	}
	return func(rec store.Record) bool {
		for _, c := range conds {
			v, _ := rec[c.key].(string)
			if v != c.val {
				return false
			}
		}
		return true
	}
}

// mountResource wires the five generic CRUD routes for one catalog Entry
// under /v1/<PathName>, per spec.md §4.6: list/create on the collection,
// retrieve/update/delete on the item. Create and update get the
// idempotency filter (POST only), per the fixed chain's step 4.
func (h *handlers) mountResource(r chi.Router, e *resource.Entry) {
	path := "/" + e.Schema.PathName
	idempMW := h.idempotencyMiddleware()

	r.With(idempMW).Post(path, h.handleCreate(e))
	r.Get(path, h.handleList(e))
	r.Get(path+"/{id}", h.handleRetrieve(e))
	r.With(idempMW).Post(path+"/{id}", h.handleUpdate(e))
	r.Delete(path+"/{id}", h.handleDelete(e))
}

// parseBody reads the request body into a store.Record, accepting both
// form-encoded bodies (via reqparse.Unflatten's bracket-notation
// support, spec.md §4.4) and JSON, per the nested-form parser's place in
// the fixed chain (step 5).
func parseBody(r *http.Request) (store.Record, error) {
	contentType := r.Header.Get("Content-Type")

	if strings.Contains(contentType, "application/json") {
		var rec store.Record
		if r.ContentLength == 0 {
			return store.Record{}, nil
		}
		if err := json.NewDecoder(r.Body).Decode(&rec); err != nil {
			return nil, err
		}
		if rec == nil {
			rec = store.Record{}
		}
		return rec, nil
	}

	if err := r.ParseForm(); err != nil {
		return nil, err
	}
	return reqparse.Unflatten(r.Form)
}

func writeRecord(w http.ResponseWriter, rec store.Record) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(rec)
}

func (h *handlers) handleCreate(e *resource.Entry) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		params, err := parseBody(r)
		if err != nil {
			apierror.Write(w, apierror.InvalidRequest, "Unable to parse request body: "+err.Error())
			return
		}
		expand := reqparse.ParseExpand(r.URL.Query())

		rec, apiErr := h.dispatcher.Create(e, params, expand)
		if apiErr != nil {
			apierror.WriteResponse(w, apiErr)
			return
		}
		if email, ok := rec["email"].(string); ok && email != "" {
			h.logger.Info().Str("resource", e.Schema.PathName).Str("id", storeString(rec["id"])).
				Str("email", logger.RedactEmail(email)).Msg("resource.created")
		}
		writeRecord(w, rec)
	}
}

func (h *handlers) handleRetrieve(e *resource.Entry) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		expand := reqparse.ParseExpand(r.URL.Query())

		rec, apiErr := h.dispatcher.Retrieve(e, id, expand)
		if apiErr != nil {
			apierror.WriteResponse(w, apiErr)
			return
		}
		writeRecord(w, rec)
	}
}

func (h *handlers) handleUpdate(e *resource.Entry) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		overlay, err := parseBody(r)
		if err != nil {
			apierror.Write(w, apierror.InvalidRequest, "Unable to parse request body: "+err.Error())
			return
		}
		expand := reqparse.ParseExpand(r.URL.Query())

		rec, apiErr := h.dispatcher.Update(e, id, overlay, expand)
		if apiErr != nil {
			apierror.WriteResponse(w, apiErr)
			return
		}
		writeRecord(w, rec)
	}
}

func (h *handlers) handleDelete(e *resource.Entry) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")

		rec, apiErr := h.dispatcher.Delete(e, id)
		if apiErr != nil {
			apierror.WriteResponse(w, apiErr)
			return
		}
		writeRecord(w, rec)
	}
}

func (h *handlers) handleList(e *resource.Entry) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()

		limit := -1
		if v := q.Get("limit"); v != "" {
			parsed, err := strconv.Atoi(v)
			if err != nil {
				apierror.Write(w, apierror.InvalidRequest, "Invalid integer: limit")
				return
			}
			limit = parsed
		}

		opts := store.ListOptions{
			Limit:         limit,
			StartingAfter: q.Get("starting_after"),
			EndingBefore:  q.Get("ending_before"),
			Filter:        buildListFilter(q),
		}
		expand := reqparse.ParseExpand(q)

		result := h.dispatcher.List(e, opts, expand)
		writeRecord(w, result)
	}
}
