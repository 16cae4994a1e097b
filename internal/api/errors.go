package api

import (
	"context"
	"errors"
	"net/http"

	"github.com/signalsfoundry/trajectory-simulator/core"
	"github.com/signalsfoundry/trajectory-simulator/internal/export"
)

// ErrBadRequest marks request payloads the API cannot decode.
var ErrBadRequest = errors.New("bad request")

// statusFor maps domain errors onto HTTP status codes.
func statusFor(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case errors.As(err, new(*http.MaxBytesError)):
		return http.StatusRequestEntityTooLarge
	case errors.Is(err, ErrBadRequest),
		errors.Is(err, core.ErrInvalidConfiguration),
		errors.Is(err, export.ErrUnknownFormat),
		errors.Is(err, export.ErrUnknownView):
		return http.StatusBadRequest
	case errors.Is(err, core.ErrNumericalInstability):
		return http.StatusUnprocessableEntity
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

type errorResponse struct {
	Error string `json:"error"`
	Code  int    `json:"code"`
	RunID string `json:"run_id,omitempty"`
}
