// Package apierror defines the wire error envelope and the eight-member
// error taxonomy of spec.md §7, grounded on the teacher's
// internal/errors package (codes.go's switch-based HTTPStatus() method,
// response.go's ErrorResponse/WriteJSON).
package apierror

import "net/http"

// Type is one of the eight error kinds named in spec.md §7.
type Type string

const (
	InvalidRequest     Type = "invalid_request"
	NotFound           Type = "not_found"
	Authentication     Type = "authentication"
	IdempotencyConflict Type = "idempotency_conflict"
	CardError          Type = "card_error"
	RateLimited        Type = "rate_limited"
	ServerError        Type = "server_error"
	Internal           Type = "internal"
)

// HTTPStatus maps a Type to the status code spec.md §7 assigns it.
func (t Type) HTTPStatus() int {
	switch t {
	case InvalidRequest:
		return http.StatusBadRequest
	case NotFound:
		return http.StatusNotFound
	case Authentication:
		return http.StatusUnauthorized
	case IdempotencyConflict:
		return http.StatusConflict
	case CardError:
		return http.StatusPaymentRequired
	case RateLimited:
		return http.StatusTooManyRequests
	case ServerError:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// WireType returns the upstream-compatible string spelling used on the
// wire for the error envelope's "type" field. The real API's
// not-found/bad-param errors are both spelled "invalid_request_error",
// per spec.md's wire examples (§4.6, §6); the other kinds keep their own
// names since the distilled spec's scenarios never exercise them
// literally on the wire in a way that demands a different spelling.
func (t Type) WireType() string {
	switch t {
	case InvalidRequest, NotFound:
		return "invalid_request_error"
	case Authentication:
		return "authentication_error"
	case IdempotencyConflict:
		return "idempotency_error"
	case CardError:
		return "card_error"
	case RateLimited:
		return "rate_limit_error"
	case ServerError:
		return "api_error"
	default:
		return "api_error"
	}
}
