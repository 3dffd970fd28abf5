// Package httpx defines the error taxonomy surfaced to clients and the
// structured JSON envelope every rejection is rendered with. Messages never
// echo client input back verbatim so sensitive values cannot leak through
// error responses or logs.
package httpx

import (
	"encoding/json"
	"net/http"
	"strconv"
)

// Kind is a stable machine-parseable error tag. Values are part of the API
// contract and must not change once shipped.
type Kind string

const (
	KindOriginRejected  Kind = "origin_rejected"
	KindRateLimited     Kind = "rate_limit_exceeded"
	KindPayloadTooLarge Kind = "payload_too_large"
	KindValidation      Kind = "validation_failed"
	KindAuthRequired    Kind = "authentication_required"
	KindForbidden       Kind = "authorization_denied"
	KindNotFound        Kind = "not_found"
	KindInternal        Kind = "internal_error"
)

type Error struct {
	Kind    Kind
	Status  int
	Message string
	// Field names the offending input for validation errors. Never carries
	// the submitted value.
	Field string
	// RetryAfterSec > 0 adds a Retry-After hint to the response.
	RetryAfterSec int
}

func (e *Error) Error() string { return string(e.Kind) + ": " + e.Message }

func OriginRejected() *Error {
	return &Error{Kind: KindOriginRejected, Status: http.StatusForbidden, Message: "origin not allowed"}
}

func RateLimited(retryAfterSec int) *Error {
	return &Error{
		Kind:          KindRateLimited,
		Status:        http.StatusTooManyRequests,
		Message:       "too many requests",
		RetryAfterSec: retryAfterSec,
	}
}

func PayloadTooLarge() *Error {
	return &Error{Kind: KindPayloadTooLarge, Status: http.StatusRequestEntityTooLarge, Message: "request body too large"}
}

func Invalid(field, msg string) *Error {
	return &Error{Kind: KindValidation, Status: http.StatusBadRequest, Message: msg, Field: field}
}

func Unauthorized() *Error {
	return &Error{Kind: KindAuthRequired, Status: http.StatusUnauthorized, Message: "authentication required"}
}

func Forbidden() *Error {
	return &Error{Kind: KindForbidden, Status: http.StatusForbidden, Message: "access denied"}
}

func NotFound() *Error {
	return &Error{Kind: KindNotFound, Status: http.StatusNotFound, Message: "resource not found"}
}

// Internal deliberately carries no detail; raw causes stay in server logs.
func Internal() *Error {
	return &Error{Kind: KindInternal, Status: http.StatusInternalServerError, Message: "internal server error"}
}

type errorBody struct {
	Kind    Kind   `json:"kind"`
	Message string `json:"message"`
	Field   string `json:"field,omitempty"`
}

type envelope struct {
	Error errorBody `json:"error"`
}

// Write renders e as the standard JSON error envelope.
func Write(w http.ResponseWriter, e *Error) {
	if e == nil {
		e = Internal()
	}
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	if e.RetryAfterSec > 0 {
		w.Header().Set("Retry-After", strconv.Itoa(e.RetryAfterSec))
	}
	w.WriteHeader(e.Status)
	_ = json.NewEncoder(w).Encode(envelope{Error: errorBody{
		Kind:    e.Kind,
		Message: e.Message,
		Field:   e.Field,
	}})
}

// WriteJSON renders a success payload.
func WriteJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
