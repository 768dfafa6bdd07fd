// Package httputil renders the gateway's JSON envelopes.
package httputil

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	dErrors "downloadgate/pkg/domain-errors"
)

const genericFailure = "An internal error occurred. Please try again later."

// ErrorResponse is the uniform error body.
type ErrorResponse struct {
	Success    bool   `json:"success"`
	Error      string `json:"error"`
	RetryAfter int    `json:"retryAfter,omitempty"`
}

// WriteJSON writes v with the given status.
func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// StatusFor maps a domain error code to an HTTP status.
func StatusFor(code dErrors.Code) int {
	switch code {
	case dErrors.CodeBadRequest, dErrors.CodeValidation, dErrors.CodeInvalidInput:
		return http.StatusBadRequest
	case dErrors.CodeUnauthorized:
		return http.StatusUnauthorized
	case dErrors.CodeForbidden, dErrors.CodeRequestRejected:
		return http.StatusForbidden
	case dErrors.CodeNotFound:
		return http.StatusNotFound
	case dErrors.CodeConflict:
		return http.StatusConflict
	case dErrors.CodeRateLimited:
		return http.StatusTooManyRequests
	case dErrors.CodeTimeout:
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

// RetryAfterer is implemented by errors that tell the client when to retry.
type RetryAfterer interface {
	RetryAfterSeconds() int
}

// WriteError renders err as {success:false, error:<message>}. Internal and
// upstream failures never echo their detail.
func WriteError(w http.ResponseWriter, err error) {
	code := dErrors.CodeOf(err)
	status := StatusFor(code)
	msg := dErrors.MessageOf(err)
	if status >= http.StatusInternalServerError || msg == "" {
		msg = genericFailure
	}
	resp := ErrorResponse{Success: false, Error: msg}
	var ra RetryAfterer
	if errors.As(err, &ra) && ra.RetryAfterSeconds() > 0 {
		resp.RetryAfter = ra.RetryAfterSeconds()
		w.Header().Set("Retry-After", strconv.Itoa(resp.RetryAfter))
	}
	WriteJSON(w, status, resp)
}
