package apierror

import (
	"encoding/json"
	"net/http"
)

// Detail is the inner "error" object of the wire envelope.
type Detail struct {
	Type    string `json:"type"`
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
	Param   string `json:"param,omitempty"`
}

// Response is the full wire envelope: {"error": {...}}. StatusCode carries
// the HTTP status alongside the body without being serialized onto the
// wire, so callers holding only a *Response (e.g. internal/resource's
// Dispatcher, which has no Type to re-derive a status from) can still
// write the right status code.
type Response struct {
	Err        Detail `json:"error"`
	StatusCode int    `json:"-"`
}

// Error implements the error interface so *Response can be returned and
// type-asserted by handlers that need to distinguish apierror failures
// from unexpected ones.
func (r *Response) Error() string {
	return r.Err.Message
}

// New builds a Response for the given type/message, with optional code
// and param (pass "" to omit either).
func New(t Type, message, code, param string) *Response {
	return &Response{
		Err: Detail{
			Type:    t.WireType(),
			Message: message,
			Code:    code,
			Param:   param,
		},
		StatusCode: t.HTTPStatus(),
	}
}

// WriteJSON writes the envelope as JSON with the status implied by kind.
func WriteJSON(w http.ResponseWriter, kind Type, resp *Response) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(kind.HTTPStatus())
	_ = json.NewEncoder(w).Encode(resp)
}

// WriteResponse writes a *Response using its own carried StatusCode,
// for callers (like internal/resource.Dispatcher) that only have the
// Response, not the originating Type.
func WriteResponse(w http.ResponseWriter, resp *Response) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(resp.StatusCode)
	_ = json.NewEncoder(w).Encode(resp)
}

// Write is the common-case helper: build and write an envelope in one
// call.
func Write(w http.ResponseWriter, kind Type, message string) {
	WriteJSON(w, kind, New(kind, message, "", ""))
}

// WriteWithCode writes an envelope carrying a "code" field, used for
// card_error responses where the decline code matters to the caller.
func WriteWithCode(w http.ResponseWriter, kind Type, message, code string) {
	WriteJSON(w, kind, New(kind, message, code, ""))
}

// WriteNotFound writes the standard "No such <resource>: '<id>'" 404
// body spec.md §4.6/§6 specify verbatim.
func WriteNotFound(w http.ResponseWriter, resource, id string) {
	Write(w, NotFound, "No such "+resource+": '"+id+"'")
}

// WriteAs writes an envelope whose status code and wire "type" spelling
// are chosen independently, for the one case spec.md §4.5 calls out
// where they diverge from a single Type's own mapping: a missing or
// malformed Authorization header answers with status 401 but a body
// typed "invalid_request_error", not "authentication_error".
func WriteAs(w http.ResponseWriter, status int, wireType Type, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(New(wireType, message, "", ""))
}
