package server

// HTTP handlers outside the dataset routes:
// - WebSocket connections (HandleWebSocket)
// - Health checks (HandleHealth)
// - Async job lookup (HandleJob)
// - LLM usage statistics (HandleUsage)

import (
	"fmt"
	"net/http"
	"time"

	"github.com/teranos/dataq/errors"
	"github.com/teranos/dataq/version"
)

func (s *Server) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	if s.getState() != ServerStateRunning {
		writeJSON(w, http.StatusServiceUnavailable, ErrorResponse{Error: "server is shutting down"})
		return
	}

	upgrader := s.upgrader()
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already wrote the HTTP error
		s.logger.Warnw("WebSocket upgrade failed", "error", err, "remote_addr", r.RemoteAddr)
		return
	}

	client := &Client{
		server:  s,
		conn:    conn,
		send:    make(chan interface{}, MaxClientMessageQueueSize),
		ownerID: ownerFrom(r),
		id:      fmt.Sprintf("%s_%d", r.RemoteAddr, time.Now().UnixNano()),
	}

	// Send version info BEFORE starting writePump (avoid concurrent writes)
	info := version.Get()
	if err := conn.WriteJSON(VersionMessage{
		Type:      "version",
		Version:   info.Version,
		Commit:    info.Short(),
		BuildTime: info.BuildTime,
	}); err != nil {
		s.logger.Debugw("Failed to send version info", "client_id", client.id, "error", err)
	}

	select {
	case s.register <- client:
	case <-s.ctx.Done():
		conn.Close()
		return
	}

	s.wg.Add(2)
	go func() {
		defer s.wg.Done()
		client.writePump()
	}()
	go func() {
		defer s.wg.Done()
		client.readPump()
	}()
}

// HandleHealth reports liveness plus queue and connection counts
func (s *Server) HandleHealth(w http.ResponseWriter, r *http.Request) {
	info := version.Get()
	state := s.getState()

	resp := HealthResponse{
		Status:    "ok",
		Version:   info.Version,
		Commit:    info.Short(),
		BuildTime: info.BuildTime,
		State:     state.String(),
		Clients:   s.clientCount(),
		LLMOnline: s.svc.Explainer() != nil && s.svc.Explainer().Online(),
	}
	if s.pool != nil {
		resp.Workers = s.pool.Workers()
		if stats, err := s.pool.Queue().GetStats(); err == nil {
			resp.QueuedJobs = stats.Queued
			resp.RunningJobs = stats.Running
		} else {
			s.logger.Debugw("Failed to read queue stats", "error", err)
		}
	}

	status := http.StatusOK
	if state != ServerStateRunning {
		resp.Status = "draining"
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, resp)
}

// HandleJob returns an async processing job of one of the owner's datasets
func (s *Server) HandleJob(w http.ResponseWriter, r *http.Request) {
	job, err := s.svc.Job(r.Context(), ownerFrom(r), r.PathValue("id"))
	if err != nil {
		writeError(w, r, s.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, job)
}

// HandleUsage returns LLM usage over the last ?since_hours (default 24)
func (s *Server) HandleUsage(w http.ResponseWriter, r *http.Request) {
	if s.usage == nil {
		writeError(w, r, s.logger, errors.NewNotFoundError("usage tracking is not enabled"))
		return
	}
	hours, err := queryInt(r, "since_hours", 24, 1, 24*90)
	if err != nil {
		writeError(w, r, s.logger, err)
		return
	}
	since := time.Now().Add(-time.Duration(hours) * time.Hour)

	stats, err := s.usage.GetUsageStats(r.Context(), since)
	if err != nil {
		writeError(w, r, s.logger, err)
		return
	}
	models, err := s.usage.GetModelBreakdown(r.Context(), since)
	if err != nil {
		writeError(w, r, s.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"since_hours": hours,
		"stats":       stats,
		"models":      models,
	})
}
