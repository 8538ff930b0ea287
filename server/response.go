package server

import (
	"encoding/json"
	"net/http"
	"strconv"

	"go.uber.org/zap"

	"github.com/teranos/dataq/errors"
	"github.com/teranos/dataq/logger"
)

// writeJSON writes a JSON response with the given status code
func writeJSON(w http.ResponseWriter, status int, data interface{}) error {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		return errors.Wrap(err, "failed to encode JSON")
	}
	return nil
}

// writeError maps err to a status and writes its JSON body. Server-side
// failures are logged with the full error.
func writeError(w http.ResponseWriter, r *http.Request, log *zap.SugaredLogger, err error) {
	status := statusFor(err)
	fields := append(logger.FieldsFromContext(r.Context()),
		logger.FieldMethod, r.Method,
		logger.FieldPath, r.URL.Path,
		logger.FieldStatus, status,
		logger.FieldErrorKind, errors.KindOf(err),
		logger.FieldError, err,
	)
	if status >= http.StatusInternalServerError {
		log.Errorw("Request failed", fields...)
	} else {
		log.Debugw("Request rejected", fields...)
	}
	writeJSON(w, status, newErrorResponse(err, status))
}

// queryBool reads a boolean query parameter. Absent means false.
func queryBool(r *http.Request, name string) (bool, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return false, nil
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return false, errors.NewInvalidRequestError("query parameter %s must be a boolean, got %q", name, raw)
	}
	return v, nil
}

// queryInt reads an integer query parameter clamped to [min, max]
func queryInt(r *http.Request, name string, def, min, max int) (int, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, errors.NewInvalidRequestError("query parameter %s must be an integer, got %q", name, raw)
	}
	if v < min {
		v = min
	} else if v > max {
		v = max
	}
	return v, nil
}

// shortID truncates an ID to 8 characters for logging
func shortID(id string) string {
	if len(id) >= 8 {
		return id[:8]
	}
	return id
}
