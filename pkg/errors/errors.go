// Package errors carries the settlement error taxonomy: a stable code per
// failure class, the HTTP status it maps to and whether the caller may retry.
package errors

import (
	stdErrors "errors"
	"fmt"
	"net/http"
)

type Code string

const (
	CodeValidation          Code = "VALIDATION_ERROR"
	CodeUnauthenticated     Code = "UNAUTHENTICATED"
	CodeForbidden           Code = "FORBIDDEN"
	CodeNotFound            Code = "NOT_FOUND"
	CodeConflict            Code = "CONFLICT"
	CodeInvalidTransition   Code = "INVALID_TRANSITION"
	CodeAmountMismatch      Code = "AMOUNT_MISMATCH"
	CodeAlreadyProcessed    Code = "ALREADY_PROCESSED"
	CodePartialFailure      Code = "PARTIAL_FAILURE"
	CodeRateLimit           Code = "RATE_LIMITED"
	CodeInternal            Code = "INTERNAL_ERROR"
	CodeDependency          Code = "DEPENDENCY_ERROR"
	CodeUpstreamUnavailable Code = "UPSTREAM_UNAVAILABLE"
)

// Metadata is how a code surfaces to API clients.
type Metadata struct {
	HTTPStatus    int
	Retryable     bool
	PublicMessage string
	// ExposeMessage lets the error's own message replace PublicMessage.
	// Only codes whose messages are written for the caller set it.
	ExposeMessage  bool
	DetailsAllowed bool
}

const (
	retryable = 1 << iota
	exposeMessage
	detailsAllowed
)

func meta(status int, public string, flags int) Metadata {
	return Metadata{
		HTTPStatus:     status,
		PublicMessage:  public,
		Retryable:      flags&retryable != 0,
		ExposeMessage:  flags&exposeMessage != 0,
		DetailsAllowed: flags&detailsAllowed != 0,
	}
}

var metadataByCode = map[Code]Metadata{
	CodeValidation:          meta(http.StatusBadRequest, "validation failed", exposeMessage|detailsAllowed),
	CodeUnauthenticated:     meta(http.StatusUnauthorized, "authentication required", exposeMessage),
	CodeForbidden:           meta(http.StatusForbidden, "access denied", exposeMessage),
	CodeNotFound:            meta(http.StatusNotFound, "resource not found", exposeMessage),
	CodeConflict:            meta(http.StatusConflict, "conflict detected", exposeMessage),
	CodeInvalidTransition:   meta(http.StatusUnprocessableEntity, "state transition disallowed", exposeMessage|detailsAllowed),
	CodeAmountMismatch:      meta(http.StatusConflict, "amount mismatch", exposeMessage|detailsAllowed),
	CodeAlreadyProcessed:    meta(http.StatusOK, "already processed", 0),
	CodePartialFailure:      meta(http.StatusMultiStatus, "operation partially completed", retryable|exposeMessage|detailsAllowed),
	CodeRateLimit:           meta(http.StatusTooManyRequests, "too many requests", retryable|exposeMessage),
	CodeInternal:            meta(http.StatusInternalServerError, "internal server error", retryable),
	CodeDependency:          meta(http.StatusServiceUnavailable, "dependency unavailable", retryable|detailsAllowed),
	CodeUpstreamUnavailable: meta(http.StatusServiceUnavailable, "upstream provider unavailable", retryable),
}

// MetadataFor falls back to CodeInternal for codes it does not know.
func MetadataFor(code Code) Metadata {
	if m, ok := metadataByCode[code]; ok {
		return m
	}
	return metadataByCode[CodeInternal]
}

// Error is a coded error. Message is meant for the caller when the code's
// metadata exposes it; the cause is only ever logged.
type Error struct {
	code    Code
	message string
	details any
	cause   error
}

func New(code Code, message string) *Error {
	return &Error{code: code, message: message}
}

func Wrap(code Code, err error, message string) *Error {
	return &Error{code: code, message: message, cause: err}
}

func (e *Error) Code() Code {
	if e == nil {
		return CodeInternal
	}
	return e.code
}

func (e *Error) Message() string {
	if e == nil {
		return ""
	}
	return e.message
}

func (e *Error) Details() any {
	if e == nil {
		return nil
	}
	return e.details
}

// WithDetails attaches structured context, e.g. the offending field.
func (e *Error) WithDetails(details any) *Error {
	if e != nil {
		e.details = details
	}
	return e
}

// PublicMessage is what a client may see for e.
func (e *Error) PublicMessage() string {
	m := MetadataFor(e.Code())
	if m.ExposeMessage && e.Message() != "" {
		return e.message
	}
	return m.PublicMessage
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.code, e.message, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.code, e.message)
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.cause
}

// As returns the outermost *Error in err's chain.
func As(err error) *Error {
	var typed *Error
	if stdErrors.As(err, &typed) {
		return typed
	}
	return nil
}

// HasCode reports whether any *Error in err's tree carries code. Joined
// errors are searched branch by branch.
func HasCode(err error, code Code) bool {
	switch e := err.(type) {
	case nil:
		return false
	case *Error:
		if e == nil {
			return false
		}
		return e.code == code || HasCode(e.cause, code)
	case interface{ Unwrap() []error }:
		for _, inner := range e.Unwrap() {
			if HasCode(inner, code) {
				return true
			}
		}
		return false
	}
	return HasCode(stdErrors.Unwrap(err), code)
}
