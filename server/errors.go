package server

import (
	"net/http"

	"github.com/teranos/dataq/errors"
)

// statusFor maps an error kind to its HTTP status. Unclassified errors are 500.
func statusFor(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, errors.ErrUnauthorized):
		return http.StatusUnauthorized
	case errors.Is(err, errors.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, errors.ErrTooLarge):
		return http.StatusRequestEntityTooLarge
	case errors.IsAny(err, errors.ErrJobInProgress, errors.ErrNotReady):
		return http.StatusConflict
	case errors.Is(err, errors.ErrLLMTimeout):
		return http.StatusGatewayTimeout
	case errors.Is(err, errors.ErrLLMUnavailable):
		return http.StatusServiceUnavailable
	case errors.IsAny(err, errors.ErrInvalidRequest, errors.ErrParse, errors.ErrEmptyDataset, errors.ErrPlanValidation):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

// ErrorResponse is the JSON body of every error reply
type ErrorResponse struct {
	Error string   `json:"error"`
	Kind  string   `json:"kind,omitempty"`
	Hints []string `json:"hints,omitempty"`
}

// newErrorResponse builds the client-facing body. Internal errors never
// expose their message.
func newErrorResponse(err error, status int) ErrorResponse {
	if status >= http.StatusInternalServerError && status != http.StatusServiceUnavailable && status != http.StatusGatewayTimeout {
		return ErrorResponse{Error: "internal server error"}
	}
	return ErrorResponse{
		Error: err.Error(),
		Kind:  errors.KindOf(err),
		Hints: errors.GetAllHints(err),
	}
}
