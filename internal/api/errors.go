package api

import (
	"errors"
	"net/http"

	"github.com/reposcope/internal/core"
)

// httpStatus maps the failure taxonomy to HTTP status codes in one place.
func httpStatus(err error) int {
	switch {
	case errors.Is(err, core.ErrAuthInvalid):
		return http.StatusUnauthorized
	case errors.Is(err, core.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, core.ErrInvalidScopePrecondition):
		return http.StatusBadRequest
	case errors.Is(err, core.ErrContextTooLarge):
		return http.StatusRequestEntityTooLarge
	case errors.Is(err, core.ErrRateLimited), errors.Is(err, core.ErrProviderRateLimited):
		return http.StatusTooManyRequests
	case errors.Is(err, core.ErrUpstreamTimeout):
		return http.StatusGatewayTimeout
	case errors.Is(err, core.ErrContextUnavailable), errors.Is(err, core.ErrProviderUnavailable):
		return http.StatusBadGateway
	case errors.Is(err, core.ErrContentRejected):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

type errorBody struct {
	Detail string `json:"detail"`
}
