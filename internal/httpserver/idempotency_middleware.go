package httpserver

import (
	"net/http"

	"github.com/EnaiaInc/paper-tiger/internal/idempotency"
)

// idempotencyMiddleware scopes the shared idempotency store to this
// route, per the fixed chain's step 4 (POST only — callers mount it
// only on create/update routes, never list/retrieve/delete).
func (h *handlers) idempotencyMiddleware() func(http.Handler) http.Handler {
	return idempotency.Middleware(h.idempStore)
}
