package tracker

import (
	"context"
	"time"
)

// Generator is the generation service surface the tracker wraps
type Generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
	Name() string
	Model() string
}

type callKey struct{}

// Call describes what a generation request is for
type Call struct {
	OperationType string
	EntityType    string
	EntityID      string
}

// WithCall attaches call attribution to ctx
func WithCall(ctx context.Context, c Call) context.Context {
	return context.WithValue(ctx, callKey{}, c)
}

// CallFromContext returns the attribution attached by WithCall
func CallFromContext(ctx context.Context) (Call, bool) {
	c, ok := ctx.Value(callKey{}).(Call)
	return c, ok
}

// Tracked records every call of the wrapped generator
type Tracked struct {
	next    Generator
	tracker *UsageTracker
	now     func() time.Time
}

// Wrap returns g with usage tracking. A nil tracker returns g unchanged.
func Wrap(g Generator, t *UsageTracker) Generator {
	if t == nil {
		return g
	}
	return &Tracked{next: g, tracker: t, now: time.Now}
}

func (g *Tracked) Name() string  { return g.next.Name() }
func (g *Tracked) Model() string { return g.next.Model() }

// Generate forwards to the wrapped generator and records the outcome.
// A failure to record is logged, never returned.
func (g *Tracked) Generate(ctx context.Context, prompt string) (string, error) {
	start := g.now()
	text, err := g.next.Generate(ctx, prompt)
	end := g.now()

	call, _ := CallFromContext(ctx)
	if call.OperationType == "" {
		call.OperationType = "generate"
	}
	usage := &ModelUsage{
		OperationType:     call.OperationType,
		EntityType:        call.EntityType,
		EntityID:          call.EntityID,
		Provider:          g.next.Name(),
		ModelName:         g.next.Model(),
		PromptBytes:       len(prompt),
		ResponseBytes:     len(text),
		RequestTimestamp:  start,
		ResponseTimestamp: &end,
		Success:           err == nil,
	}
	if err != nil {
		msg := err.Error()
		usage.ErrorMessage = &msg
	}

	// the request context may be spent; the record still has to land
	if trackErr := g.tracker.TrackUsage(context.WithoutCancel(ctx), usage); trackErr != nil {
		g.tracker.logger.Warnw("Failed to track usage", "error", trackErr, "provider", usage.Provider, "model", usage.ModelName)
	}
	return text, err
}
