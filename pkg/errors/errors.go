// Package errors carries the typed API error codes and how each one is
// rendered over HTTP.
package errors

import (
	stdErrors "errors"
	"fmt"
	"net/http"
	"time"
)

type Code string

const (
	CodeValidation    Code = "VALIDATION_ERROR"
	CodeUnauthorized  Code = "UNAUTHORIZED"
	CodeForbidden     Code = "FORBIDDEN"
	CodeNotFound      Code = "NOT_FOUND"
	CodeConflict      Code = "CONFLICT"
	CodeStateConflict Code = "STATE_CONFLICT"
	CodeIdempotency   Code = "IDEMPOTENCY_KEY_REUSED"
	CodeRateLimit     Code = "RATE_LIMIT_EXCEEDED"
	CodeInternal      Code = "INTERNAL_ERROR"
	CodeDependency    Code = "DEPENDENCY_ERROR"

	CodeInsufficientStock       Code = "INSUFFICIENT_STOCK"
	CodeInvalidOrderState       Code = "INVALID_ORDER_STATE"
	CodeInsufficientReservation Code = "INSUFFICIENT_RESERVATION"
	CodeInvariantViolation      Code = "INVARIANT_VIOLATION"
	CodeInvalidQuantity         Code = "INVALID_QUANTITY"
	CodeBusy                    Code = "BUSY"
)

// Metadata describes how a code reaches the client. ExposeMessage lets the
// error's own message replace PublicMessage; RetryAfter, when set, is sent
// as a Retry-After header.
type Metadata struct {
	HTTPStatus     int
	Retryable      bool
	PublicMessage  string
	DetailsAllowed bool
	ExposeMessage  bool
	RetryAfter     time.Duration
}

var metadataByCode = map[Code]Metadata{
	CodeValidation:              {HTTPStatus: http.StatusBadRequest, PublicMessage: "validation failed", DetailsAllowed: true, ExposeMessage: true},
	CodeUnauthorized:            {HTTPStatus: http.StatusUnauthorized, PublicMessage: "authentication required", ExposeMessage: true},
	CodeForbidden:               {HTTPStatus: http.StatusForbidden, PublicMessage: "access denied", ExposeMessage: true},
	CodeNotFound:                {HTTPStatus: http.StatusNotFound, PublicMessage: "resource not found", ExposeMessage: true},
	CodeConflict:                {HTTPStatus: http.StatusConflict, PublicMessage: "conflict detected", ExposeMessage: true},
	CodeStateConflict:           {HTTPStatus: http.StatusUnprocessableEntity, PublicMessage: "state transition disallowed", DetailsAllowed: true, ExposeMessage: true},
	CodeIdempotency:             {HTTPStatus: http.StatusConflict, PublicMessage: "idempotency key reused", DetailsAllowed: true, ExposeMessage: true},
	CodeRateLimit:               {HTTPStatus: http.StatusTooManyRequests, PublicMessage: "rate limit exceeded", ExposeMessage: true},
	CodeInternal:                {HTTPStatus: http.StatusInternalServerError, PublicMessage: "internal server error", Retryable: true},
	CodeDependency:              {HTTPStatus: http.StatusServiceUnavailable, PublicMessage: "dependency unavailable", Retryable: true, DetailsAllowed: true, RetryAfter: 5 * time.Second},
	CodeInsufficientStock:       {HTTPStatus: http.StatusUnprocessableEntity, PublicMessage: "insufficient stock", DetailsAllowed: true, ExposeMessage: true},
	CodeInvalidOrderState:       {HTTPStatus: http.StatusConflict, PublicMessage: "order is not in a state that allows this action", DetailsAllowed: true, ExposeMessage: true},
	CodeInsufficientReservation: {HTTPStatus: http.StatusInternalServerError, PublicMessage: "reservation ledger inconsistent"},
	CodeInvariantViolation:      {HTTPStatus: http.StatusInternalServerError, PublicMessage: "inventory invariant violated"},
	CodeInvalidQuantity:         {HTTPStatus: http.StatusBadRequest, PublicMessage: "quantity must be positive", DetailsAllowed: true, ExposeMessage: true},
	CodeBusy:                    {HTTPStatus: http.StatusConflict, PublicMessage: "resource busy, retry later", Retryable: true, DetailsAllowed: true, RetryAfter: 1 * time.Second},
}

func MetadataFor(code Code) Metadata {
	if meta, ok := metadataByCode[code]; ok {
		return meta
	}
	return metadataByCode[CodeInternal]
}

// Public returns the message and details a client may see for err. Untyped
// errors collapse to the internal error.
func Public(err error) (Code, string, any) {
	typed := As(err)
	if typed == nil {
		return CodeInternal, metadataByCode[CodeInternal].PublicMessage, nil
	}
	meta := MetadataFor(typed.code)
	msg := meta.PublicMessage
	if meta.ExposeMessage && typed.message != "" {
		msg = typed.message
	}
	var details any
	if meta.DetailsAllowed {
		details = typed.details
	}
	return typed.Code(), msg, details
}

// IsRetryable reports whether the caller may repeat the operation that
// produced err unchanged.
func IsRetryable(err error) bool {
	typed := As(err)
	return typed != nil && MetadataFor(typed.code).Retryable
}

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
	if err == nil {
		return New(code, message)
	}
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

func (e *Error) WithDetails(details any) *Error {
	if e == nil {
		return nil
	}
	e.details = details
	return e
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

// IsCode reports whether err carries the given typed code anywhere in its chain.
func IsCode(err error, code Code) bool {
	typed := As(err)
	return typed != nil && typed.Code() == code
}

// As returns the outermost *Error in err's chain.
func As(err error) *Error {
	var typed *Error
	if stdErrors.As(err, &typed) {
		return typed
	}
	return nil
}
