package api

import (
	"context"
	stderrors "errors"
	"net/http"

	"github.com/blueberrycongee/sfnodes"
	"github.com/blueberrycongee/sfnodes/pkg/errors"
)

// ErrorResponse is the envelope of a failed batch. Records holds the
// records produced before the batch stopped.
type ErrorResponse struct {
	Error   ErrorDetail            `json:"error"`
	Records []sfnodes.OutputRecord `json:"records,omitempty"`
}

// ErrorDetail describes the error payload.
type ErrorDetail struct {
	Message string `json:"message"`
	Kind    string `json:"kind,omitempty"`
	Type    string `json:"type,omitempty"`
	Model   string `json:"model,omitempty"`
}

// errorDetail classifies err for the response envelope.
func errorDetail(err error) (int, ErrorDetail) {
	detail := ErrorDetail{Message: err.Error()}

	// Typed errors win: an upstream timeout wraps context.DeadlineExceeded
	// but is still a network error.
	e, ok := errors.As(err)
	if !ok {
		if stderrors.Is(err, context.Canceled) || stderrors.Is(err, context.DeadlineExceeded) {
			detail.Kind = "canceled"
			return http.StatusServiceUnavailable, detail
		}
		detail.Kind = "internal_error"
		return http.StatusInternalServerError, detail
	}

	detail.Kind = string(e.Kind)
	detail.Type = e.Type
	detail.Model = e.Model

	switch e.Kind {
	case errors.KindValidation:
		return http.StatusBadRequest, detail
	case errors.KindNetwork:
		if e.Retryable {
			return http.StatusGatewayTimeout, detail
		}
		return http.StatusBadGateway, detail
	case errors.KindRemoteAPI:
		// Pass upstream client errors through; anything else is a bad gateway.
		if e.StatusCode >= 400 && e.StatusCode < 500 {
			return e.StatusCode, detail
		}
		return http.StatusBadGateway, detail
	default:
		return http.StatusBadGateway, detail
	}
}
