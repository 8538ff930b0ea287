package server

import (
	"time"

	"github.com/teranos/dataq/pipeline"
	"github.com/teranos/dataq/pulse/async"
)

const (
	// MaxClients is the maximum number of concurrent WebSocket clients
	MaxClients = 100
	// MaxClientMessageQueueSize is the size of per-client message queues
	MaxClientMessageQueueSize = 256
	// DefaultShutdownTimeout bounds graceful shutdown when config sets none.
	// Worker pool stop can take up to its own StopTimeout on top of HTTP drain.
	DefaultShutdownTimeout = 10 * time.Second
)

// ServerState represents the server lifecycle state
type ServerState int

const (
	ServerStateRunning  ServerState = iota // Normal operation
	ServerStateDraining                    // Graceful shutdown in progress
	ServerStateStopped                     // Shutdown complete
)

// ClientMessage is what clients may send over /ws
type ClientMessage struct {
	Type string `json:"type"` // "ping"
}

// VersionMessage is sent once when a client connects
type VersionMessage struct {
	Type      string `json:"type"` // "version"
	Version   string `json:"version"`
	Commit    string `json:"commit"`
	BuildTime string `json:"build_time"`
}

// DatasetEventMessage carries a pipeline event to the dataset owner
type DatasetEventMessage struct {
	Type  string         `json:"type"` // "dataset_event"
	Event pipeline.Event `json:"event"`
}

// JobUpdateMessage carries async job progress to the dataset owner
type JobUpdateMessage struct {
	Type      string     `json:"type"` // "job_update"
	Job       *async.Job `json:"job"`
	Timestamp int64      `json:"timestamp"`
}

// PongMessage answers a client ping
type PongMessage struct {
	Type      string `json:"type"` // "pong"
	Timestamp int64  `json:"timestamp"`
}

// HealthResponse is served by /health
type HealthResponse struct {
	Status      string `json:"status"`
	Version     string `json:"version"`
	Commit      string `json:"commit"`
	BuildTime   string `json:"build_time"`
	State       string `json:"state"`
	Clients     int    `json:"clients"`
	Workers     int    `json:"workers"`
	LLMOnline   bool   `json:"llm_online"`
	QueuedJobs  int    `json:"queued_jobs"`
	RunningJobs int    `json:"running_jobs"`
}
