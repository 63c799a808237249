package httpserver

import (
	"context"
	"encoding/base64"
	"net/http"
	"strings"

	"github.com/EnaiaInc/paper-tiger/internal/apierror"
)

// principalKey is the context key the auth filter stashes the extracted
// API key under, the same context-stashed-principal shape as the
// teacher's internal/apikey/middleware.go.
type contextKey string

const principalKey contextKey = "principal"

// authMiddleware implements the auth filter of spec.md §4.5: extract a
// key from Authorization (Bearer or Basic), reject with 401 if the
// header is missing or malformed, and in strict mode additionally
// reject keys that don't start with sk_test_/sk_live_. Lenient mode
// (the default) accepts any non-empty key.
func (h *handlers) authMiddleware() func(http.Handler) http.Handler {
	strict := h.cfg.Auth.Mode == "strict"

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key, ok := extractAPIKey(r)
			if !ok {
				apierror.WriteAs(w, http.StatusUnauthorized, apierror.InvalidRequest,
					"You did not provide an API key. You need to provide your API key in an Authorization header.")
				return
			}

			if strict && !hasValidPrefix(key) {
				apierror.WriteAs(w, http.StatusUnauthorized, apierror.InvalidRequest,
					"Invalid API key provided: "+redactKey(key))
				return
			}

			ctx := context.WithValue(r.Context(), principalKey, key)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// extractAPIKey pulls a key out of Authorization: Bearer <key> or
// Authorization: Basic <base64(key:)>, per spec.md §4.5.
func extractAPIKey(r *http.Request) (string, bool) {
	header := r.Header.Get("Authorization")
	if header == "" {
		return "", false
	}

	switch {
	case strings.HasPrefix(header, "Bearer "):
		key := strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
		if key == "" {
			return "", false
		}
		return key, true

	case strings.HasPrefix(header, "Basic "):
		decoded, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(header, "Basic "))
		if err != nil {
			return "", false
		}
		key := string(decoded)
		if idx := strings.IndexByte(key, ':'); idx >= 0 {
			key = key[:idx]
		}
		if key == "" {
			return "", false
		}
		return key, true

	default:
		return "", false
	}
}

func hasValidPrefix(key string) bool {
	return strings.HasPrefix(key, "sk_test_") || strings.HasPrefix(key, "sk_live_")
}

// redactKey truncates a key for safe inclusion in an error message.
func redactKey(key string) string {
	if len(key) <= 8 {
		return key
	}
	return key[:8] + "..."
}

// principalFromContext retrieves the authenticated key, for handlers that
// want to log or attribute it.
func principalFromContext(ctx context.Context) string {
	key, _ := ctx.Value(principalKey).(string)
	return key
}
