package httpserver

import (
	"net/http"
	"time"

	"github.com/EnaiaInc/paper-tiger/internal/apierror"
	"github.com/EnaiaInc/paper-tiger/internal/chaos"
)

// apiChaosMiddleware consults the chaos coordinator's API-level decision
// for this path before dispatch runs, per spec.md §4.10: a configured
// or randomly-sampled timeout/rate_limit/server_error short-circuits the
// request before it ever reaches the resource dispatcher.
func (h *handlers) apiChaosMiddleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			decision := h.chaosCoord.ShouldAPIFail(r.URL.Path)

			switch decision {
			case chaos.APITimeout:
				if h.metrics != nil {
					h.metrics.ObserveChaosAPIDecision("timeout")
				}
				time.Sleep(2 * time.Second)
				apierror.Write(w, apierror.ServerError, "The server timed out while processing your request.")
				return

			case chaos.APIRateLimit:
				if h.metrics != nil {
					h.metrics.ObserveChaosAPIDecision("rate_limit")
				}
				w.Header().Set("Retry-After", "1")
				apierror.Write(w, apierror.RateLimited, "Too many requests hit the API too quickly.")
				return

			case chaos.APIServerError:
				if h.metrics != nil {
					h.metrics.ObserveChaosAPIDecision("server_error")
				}
				apierror.Write(w, apierror.ServerError, "An internal error occurred. Please try again.")
				return
			}

			if h.metrics != nil {
				h.metrics.ObserveChaosAPIDecision("ok")
			}
			next.ServeHTTP(w, r)
		})
	}
}
