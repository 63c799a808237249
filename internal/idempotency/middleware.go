package idempotency

import (
	"bytes"
	"net/http"

	"github.com/EnaiaInc/paper-tiger/internal/apierror"
)

// HeaderKey is the request header carrying the caller-supplied
// idempotency key, per spec.md §6.
const HeaderKey = "Idempotency-Key"

// CachedHeader marks a replayed response, per spec.md §6.
const CachedHeader = "X-Idempotency-Cached"

// responseWriter wraps http.ResponseWriter to capture the response for
// caching, the same technique as the teacher's middleware.go.
type responseWriter struct {
	http.ResponseWriter
	statusCode  int
	body        *bytes.Buffer
	wroteHeader bool
}

func newResponseWriter(w http.ResponseWriter) *responseWriter {
	return &responseWriter{ResponseWriter: w, statusCode: http.StatusOK, body: &bytes.Buffer{}}
}

func (rw *responseWriter) WriteHeader(statusCode int) {
	rw.statusCode = statusCode
	rw.wroteHeader = true
	rw.ResponseWriter.WriteHeader(statusCode)
}

func (rw *responseWriter) Write(b []byte) (int, error) {
	if !rw.wroteHeader {
		rw.WriteHeader(http.StatusOK)
	}
	rw.body.Write(b)
	return rw.ResponseWriter.Write(b)
}

func (rw *responseWriter) captureHeaders() map[string]string {
	out := make(map[string]string, len(rw.Header()))
	for k := range rw.Header() {
		out[k] = rw.Header().Get(k)
	}
	return out
}

// Middleware enforces the three-state protocol of spec.md §4.3: absent
// keys proceed and claim an in_flight slot; concurrent in_flight keys
// get 409 idempotency_conflict with retry-after=1; completed keys replay
// the cached response with CachedHeader set. Applied POST-only, per the
// fixed middleware order of spec.md §4.12.
func Middleware(store *Store) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			rawKey := r.Header.Get(HeaderKey)
			if rawKey == "" {
				next.ServeHTTP(w, r)
				return
			}

			// Scope by method+path so the same caller-chosen key cannot
			// collide across different endpoints.
			key := r.Method + ":" + r.URL.Path + ":" + rawKey

			outcome, cached := store.Begin(key)
			switch outcome {
			case OutcomeInFlight:
				w.Header().Set("Retry-After", "1")
				apierror.Write(w, apierror.IdempotencyConflict, "a request with this idempotency key is already in progress")
				return
			case OutcomeReplay:
				for k, v := range cached.Headers {
					w.Header().Set(k, v)
				}
				w.Header().Set(CachedHeader, "true")
				w.WriteHeader(cached.StatusCode)
				_, _ = w.Write(cached.Body)
				return
			}

			rw := newResponseWriter(w)
			next.ServeHTTP(rw, r)

			if rw.statusCode >= 200 && rw.statusCode < 300 {
				store.Complete(key, &Response{
					StatusCode: rw.statusCode,
					Headers:    rw.captureHeaders(),
					Body:       rw.body.Bytes(),
				})
			} else {
				store.Abandon(key)
			}
		})
	}
}
