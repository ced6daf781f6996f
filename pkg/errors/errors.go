// Package errors defines the error taxonomy for SiliconFlow node operations.
// Every failure surfaced to the item loop is an *Error carrying one Kind, so
// callers can decide between an error record and aborting the batch.
package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"
)

// Kind is the coarse error category seen by the item loop.
type Kind string

const (
	// KindValidation marks missing or contradictory user input, caught before any network call.
	KindValidation Kind = "validation_error"
	// KindNoResponse marks a successful call that returned no usable choice or result.
	KindNoResponse Kind = "no_response_error"
	// KindRemoteAPI marks a non-2xx or malformed response from the API.
	KindRemoteAPI Kind = "remote_api_error"
	// KindNetwork marks a transport-level failure, including timeouts.
	KindNetwork Kind = "network_error"
)

// Remote error sub-types, derived from the HTTP status code.
const (
	TypeAuthentication     = "authentication_error"
	TypeRateLimit          = "rate_limit_error"
	TypeInvalidRequest     = "invalid_request_error"
	TypeNotFound           = "not_found_error"
	TypeTimeout            = "timeout_error"
	TypeServiceUnavailable = "service_unavailable_error"
	TypeInternalError      = "internal_error"
	TypeMalformedResponse  = "malformed_response"
)

// Error is the single error type returned by builders, shapers and the transport.
type Error struct {
	Kind       Kind   `json:"kind"`
	Type       string `json:"type,omitempty"`
	StatusCode int    `json:"status_code,omitempty"`
	Message    string `json:"message"`
	Model      string `json:"model,omitempty"`
	Retryable  bool   `json:"-"`
	Err        error  `json:"-"`
}

// Error implements the error interface. Validation and no-response errors
// render the bare message because it is shown to workflow users verbatim.
func (e *Error) Error() string {
	switch e.Kind {
	case KindValidation, KindNoResponse:
		return e.Message
	case KindNetwork:
		if e.Err != nil {
			return fmt.Sprintf("[%s] %s: %v", e.Kind, e.Message, e.Err)
		}
		return fmt.Sprintf("[%s] %s", e.Kind, e.Message)
	default:
		return fmt.Sprintf("[%s] %s (model=%s, code=%d)", e.Type, e.Message, e.Model, e.StatusCode)
	}
}

// Unwrap exposes the underlying cause.
func (e *Error) Unwrap() error {
	return e.Err
}

// HTTPStatusCode returns the status code to report for the error.
func (e *Error) HTTPStatusCode() int {
	if e.StatusCode > 0 {
		return e.StatusCode
	}
	switch e.Kind {
	case KindValidation:
		return http.StatusBadRequest
	case KindNetwork:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// NewValidationError creates a validation error.
func NewValidationError(message string) *Error {
	return &Error{
		Kind:    KindValidation,
		Type:    TypeInvalidRequest,
		Message: message,
	}
}

// Validationf creates a validation error with a formatted message.
func Validationf(format string, args ...any) *Error {
	return NewValidationError(fmt.Sprintf(format, args...))
}

// NewNoResponseError creates an error for a response without a usable choice.
func NewNoResponseError(model, message string) *Error {
	return &Error{
		Kind:    KindNoResponse,
		Message: message,
		Model:   model,
	}
}

// NewRemoteAPIError classifies a non-2xx response by status code.
func NewRemoteAPIError(statusCode int, model, message string) *Error {
	e := &Error{
		Kind:       KindRemoteAPI,
		StatusCode: statusCode,
		Message:    message,
		Model:      model,
	}

	switch statusCode {
	case http.StatusUnauthorized, http.StatusForbidden:
		e.Type = TypeAuthentication
	case http.StatusTooManyRequests:
		e.Type = TypeRateLimit
		e.Retryable = true
	case http.StatusBadRequest, http.StatusRequestEntityTooLarge, http.StatusUnprocessableEntity:
		e.Type = TypeInvalidRequest
	case http.StatusNotFound:
		e.Type = TypeNotFound
	case http.StatusRequestTimeout, http.StatusGatewayTimeout:
		e.Type = TypeTimeout
		e.Retryable = true
	case http.StatusServiceUnavailable, http.StatusBadGateway:
		e.Type = TypeServiceUnavailable
		e.Retryable = true
	default:
		e.Type = TypeInternalError
	}
	return e
}

// NewMalformedResponseError reports a 2xx body that could not be decoded.
func NewMalformedResponseError(statusCode int, model string, cause error) *Error {
	return &Error{
		Kind:       KindRemoteAPI,
		Type:       TypeMalformedResponse,
		StatusCode: statusCode,
		Message:    "malformed response body",
		Model:      model,
		Err:        cause,
	}
}

// NewNetworkError wraps a transport failure. Timeouts are retryable.
func NewNetworkError(message string, cause error, timeout bool) *Error {
	return &Error{
		Kind:      KindNetwork,
		Message:   message,
		Retryable: timeout,
		Err:       cause,
	}
}

// As finds the first *Error in err's chain.
func As(err error) (*Error, bool) {
	var e *Error
	if stderrors.As(err, &e) {
		return e, true
	}
	return nil, false
}

// KindOf returns the Kind of err, or "" when err carries no *Error.
func KindOf(err error) Kind {
	if e, ok := As(err); ok {
		return e.Kind
	}
	return ""
}

// IsKind reports whether err carries an *Error of the given kind.
func IsKind(err error, kind Kind) bool {
	return KindOf(err) == kind
}

// IsRetryable reports whether err is marked retryable.
func IsRetryable(err error) bool {
	if e, ok := As(err); ok {
		return e.Retryable
	}
	return false
}
