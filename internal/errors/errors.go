package errors

import (
	"encoding/json"
	"fmt"
	"net/http"
)

// PortwayError is an error that can be written to clients as JSON.
// The wire shape is {"error": "<message>"} with an optional "detail" field.
type PortwayError struct {
	Status     int    `json:"-"`
	Message    string `json:"error"`
	Detail     string `json:"detail,omitempty"`
	underlying error
}

func (e *PortwayError) Error() string {
	if e.underlying != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.underlying)
	}
	if e.Detail != "" {
		return fmt.Sprintf("%s: %s", e.Message, e.Detail)
	}
	return e.Message
}

func (e *PortwayError) Unwrap() error {
	return e.underlying
}

// JSON returns the serialized client body. Base singletons (no detail)
// use pre-serialized bytes to avoid allocations.
func (e *PortwayError) JSON() []byte {
	if pre, ok := preSerialized[e]; ok {
		return pre
	}
	b, _ := json.Marshal(e)
	return append(b, '\n')
}

// WriteJSON writes the error as JSON to the response.
func (e *PortwayError) WriteJSON(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(e.Status)
	w.Write(e.JSON())
}

// Common errors. Messages are part of the client contract; the router's
// 404 body in particular is matched verbatim by clients and tests.
var (
	ErrRouteNotFound = &PortwayError{
		Status:  http.StatusNotFound,
		Message: "route not found",
	}

	ErrUnauthorized = &PortwayError{
		Status:  http.StatusUnauthorized,
		Message: "unauthorized",
	}

	ErrForbidden = &PortwayError{
		Status:  http.StatusForbidden,
		Message: "forbidden",
	}

	ErrPayloadTooLarge = &PortwayError{
		Status:  http.StatusRequestEntityTooLarge,
		Message: "request body too large",
	}

	ErrRateLimited = &PortwayError{
		Status:  http.StatusTooManyRequests,
		Message: "rate limit exceeded",
	}

	ErrNoHealthyTarget = &PortwayError{
		Status:  http.StatusServiceUnavailable,
		Message: "no healthy upstream target",
	}

	ErrCircuitOpen = &PortwayError{
		Status:  http.StatusServiceUnavailable,
		Message: "circuit breaker open",
	}

	ErrUpstreamTimeout = &PortwayError{
		Status:  http.StatusGatewayTimeout,
		Message: "upstream timeout",
	}

	ErrUpstream = &PortwayError{
		Status:  http.StatusBadGateway,
		Message: "upstream error",
	}

	ErrBadRequest = &PortwayError{
		Status:  http.StatusBadRequest,
		Message: "bad request",
	}

	ErrInternal = &PortwayError{
		Status:  http.StatusInternalServerError,
		Message: "internal server error",
	}
)

// preSerialized holds JSON-encoded bytes for base error singletons.
var preSerialized map[*PortwayError][]byte

func init() {
	bases := []*PortwayError{
		ErrRouteNotFound, ErrUnauthorized, ErrForbidden, ErrPayloadTooLarge,
		ErrRateLimited, ErrNoHealthyTarget, ErrCircuitOpen,
		ErrUpstreamTimeout, ErrUpstream, ErrBadRequest, ErrInternal,
	}
	preSerialized = make(map[*PortwayError][]byte, len(bases))
	for _, e := range bases {
		b, _ := json.Marshal(e)
		b = append(b, '\n') // match json.Encoder behavior
		preSerialized[e] = b
	}
}

// New creates a new PortwayError
func New(status int, message string) *PortwayError {
	return &PortwayError{
		Status:  status,
		Message: message,
	}
}

// Wrap wraps an error with a status and client-facing message
func Wrap(err error, status int, message string) *PortwayError {
	return &PortwayError{
		Status:     status,
		Message:    message,
		underlying: err,
	}
}

// WithDetail returns a copy carrying a detail string
func (e *PortwayError) WithDetail(detail string) *PortwayError {
	return &PortwayError{
		Status:     e.Status,
		Message:    e.Message,
		Detail:     detail,
		underlying: e.underlying,
	}
}

// AsPortwayError checks if an error is a PortwayError
func AsPortwayError(err error) (*PortwayError, bool) {
	if pe, ok := err.(*PortwayError); ok {
		return pe, true
	}
	return nil, false
}
