package server

import (
	"context"
	"net/http"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/teranos/dataq/ai/tracker"
	"github.com/teranos/dataq/am"
	"github.com/teranos/dataq/errors"
	"github.com/teranos/dataq/pipeline"
	"github.com/teranos/dataq/pulse/async"
)

// Deps are the collaborators the server exposes over HTTP
type Deps struct {
	Service *pipeline.Service
	Pool    *async.WorkerPool     // nil disables async processing status
	Usage   *tracker.UsageTracker // nil disables /api/usage
	Config  am.ServerConfig
	Logger  *zap.SugaredLogger
}

// Server serves the pipeline API and pushes dataset events to WebSocket clients
type Server struct {
	svc    *pipeline.Service
	pool   *async.WorkerPool
	usage  *tracker.UsageTracker
	cfg    am.ServerConfig
	logger *zap.SugaredLogger

	clients    map[*Client]bool
	register   chan *Client
	unregister chan *Client
	mu         sync.RWMutex

	handler    http.Handler
	httpServer *http.Server

	// Lifecycle management
	ctx            context.Context
	cancel         context.CancelFunc
	wg             sync.WaitGroup
	started        atomic.Bool
	state          atomic.Int32
	broadcastDrops atomic.Int64
}

// New creates a server. Background services start with Start.
func New(deps Deps) (*Server, error) {
	if deps.Service == nil {
		return nil, errors.New("server requires a pipeline service")
	}
	log := deps.Logger
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	cfg := deps.Config
	if cfg.OwnerHeader == "" {
		cfg.OwnerHeader = "X-Owner-ID"
	}

	ctx, cancel := context.WithCancel(context.Background())
	s := &Server{
		svc:        deps.Service,
		pool:       deps.Pool,
		usage:      deps.Usage,
		cfg:        cfg,
		logger:     log.Named("server"),
		clients:    make(map[*Client]bool),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		ctx:        ctx,
		cancel:     cancel,
	}
	s.handler = s.routes()
	return s, nil
}

// Handler returns the HTTP handler with every route and middleware applied
func (s *Server) Handler() http.Handler {
	return s.handler
}

// handleClientRegister adds a client unless the server is full
func (s *Server) handleClientRegister(client *Client) {
	s.mu.Lock()
	if len(s.clients) >= MaxClients {
		s.mu.Unlock()
		s.logger.Warnw("Max clients reached, rejecting connection",
			"client_id", client.id,
			"max_clients", MaxClients,
		)
		client.close()
		return
	}
	s.clients[client] = true
	total := len(s.clients)
	s.mu.Unlock()

	s.logger.Infow("Client connected",
		"client_id", client.id,
		"owner_id", client.ownerID,
		"total_clients", total,
	)
}

// handleClientUnregister removes a client and closes its queue. Sends happen
// under the read lock, so closing under the write lock cannot race them.
func (s *Server) handleClientUnregister(client *Client) {
	s.mu.Lock()
	if _, ok := s.clients[client]; !ok {
		s.mu.Unlock()
		return
	}
	delete(s.clients, client)
	client.close()
	total := len(s.clients)
	s.mu.Unlock()

	s.logger.Infow("Client disconnected",
		"client_id", client.id,
		"total_clients", total,
	)
}

// Run is the hub event loop
func (s *Server) Run() {
	for {
		select {
		case <-s.ctx.Done():
			s.logger.Debugw("Server hub stopping due to context cancellation")
			return
		case client := <-s.register:
			s.handleClientRegister(client)
		case client := <-s.unregister:
			s.handleClientUnregister(client)
		}
	}
}

// clientCount returns the number of connected clients
func (s *Server) clientCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.clients)
}
