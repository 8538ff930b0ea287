package pipeline

import (
	"context"

	"github.com/teranos/dataq/pulse/async"
)

// ProcessHandler runs queued dataset processing jobs on the worker pool
type ProcessHandler struct {
	svc *Service
}

// NewProcessHandler creates the dataset.process handler
func NewProcessHandler(svc *Service) *ProcessHandler {
	return &ProcessHandler{svc: svc}
}

// Name returns the handler name jobs are enqueued under
func (h *ProcessHandler) Name() string {
	return HandlerName
}

// Execute profiles and scores the job's dataset. Stage progress goes to the
// emitter the worker put on ctx.
func (h *ProcessHandler) Execute(ctx context.Context, job *async.Job) error {
	return h.svc.processJob(ctx, job)
}

// Register adds the pipeline handlers to a worker pool registry
func Register(registry *async.HandlerRegistry, svc *Service) {
	registry.Register(NewProcessHandler(svc))
}
