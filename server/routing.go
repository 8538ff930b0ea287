package server

import (
	"bufio"
	"context"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/teranos/dataq/errors"
	"github.com/teranos/dataq/logger"
)

type ownerKey struct{}

// routes builds the mux. Method patterns reject other methods with 405.
func (s *Server) routes() http.Handler {
	mux := http.NewServeMux()

	owned := func(h http.HandlerFunc) http.Handler {
		return s.requireOwner(h)
	}

	mux.Handle("POST /api/datasets", owned(s.HandleUpload))
	mux.Handle("GET /api/datasets", owned(s.HandleListDatasets))
	mux.Handle("GET /api/datasets/{id}", owned(s.HandleGetDataset))
	mux.Handle("POST /api/datasets/{id}/process", owned(s.HandleProcess))
	mux.Handle("POST /api/datasets/{id}/process-async", owned(s.HandleProcessAsync))
	mux.Handle("POST /api/datasets/{id}/explain", owned(s.HandleExplain))
	mux.Handle("POST /api/datasets/{id}/clean", owned(s.HandleClean))
	mux.Handle("GET /api/datasets/{id}/report", owned(s.HandleReport))
	mux.Handle("GET /api/datasets/{id}/cleaning-latest", owned(s.HandleLatestCleaning))
	mux.Handle("GET /api/datasets/{id}/cleaned-file", owned(s.HandleCleanedFile))
	mux.Handle("GET /api/jobs/{id}", owned(s.HandleJob))
	mux.Handle("GET /api/usage", owned(s.HandleUsage))
	mux.Handle("GET /ws", owned(s.HandleWebSocket))
	mux.HandleFunc("GET /health", s.HandleHealth)

	return s.corsMiddleware(s.requestMiddleware(mux))
}

// requestMiddleware tags each request with an id and logs its outcome
func (s *Server) requestMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get("X-Request-ID")
		if requestID == "" {
			requestID = uuid.NewString()
		}
		w.Header().Set("X-Request-ID", requestID)
		r = r.WithContext(logger.WithRequestID(r.Context(), requestID))

		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)

		s.logger.Debugw("Request handled",
			logger.FieldRequestID, requestID,
			logger.FieldMethod, r.Method,
			logger.FieldPath, r.URL.Path,
			logger.FieldStatus, rec.status,
			logger.FieldDurationMS, time.Since(start).Milliseconds(),
		)
	})
}

// requireOwner resolves the owner from the trusted header. Browsers cannot
// set headers on WebSocket upgrades, so /ws also accepts ?owner=.
func (s *Server) requireOwner(next http.HandlerFunc) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ownerID := strings.TrimSpace(r.Header.Get(s.cfg.OwnerHeader))
		if ownerID == "" && r.URL.Path == "/ws" {
			ownerID = strings.TrimSpace(r.URL.Query().Get("owner"))
		}
		if ownerID == "" {
			err := errors.WithHintf(
				errors.Wrap(errors.ErrUnauthorized, "missing owner identity"),
				"set the %s header", s.cfg.OwnerHeader)
			writeError(w, r, s.logger, err)
			return
		}
		next(w, r.WithContext(context.WithValue(r.Context(), ownerKey{}, ownerID)))
	})
}

// ownerFrom returns the owner set by requireOwner
func ownerFrom(r *http.Request) string {
	owner, _ := r.Context().Value(ownerKey{}).(string)
	return owner
}

// corsMiddleware adds CORS headers for configured origins
func (s *Server) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		if origin != "" && s.checkOrigin(r) {
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Set("Access-Control-Allow-Credentials", "true")
			w.Header().Set("Vary", "Origin")
		}
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, "+s.cfg.OwnerHeader)

		// Handle preflight requests
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// statusRecorder captures the status code for request logging
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// Hijack hands the connection to the WebSocket upgrader, which type-asserts
// http.Hijacker on the writer it is given
func (r *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	conn, rw, err := http.NewResponseController(r.ResponseWriter).Hijack()
	if err == nil {
		r.status = http.StatusSwitchingProtocols
	}
	return conn, rw, err
}

// Unwrap lets http.ResponseController reach the underlying writer
func (r *statusRecorder) Unwrap() http.ResponseWriter {
	return r.ResponseWriter
}
