// Package explain turns a profiling report into a natural-language summary
// and a candidate cleaning plan, through a generation service when one is
// configured and through deterministic heuristics otherwise. It never
// executes operations.
package explain

import (
	"context"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/teranos/dataq/errors"
	"github.com/teranos/dataq/internal/httpclient"
	"github.com/teranos/dataq/logger"
	"github.com/teranos/dataq/quality"
	"github.com/teranos/dataq/quality/plan"
)

// Plan sources
const (
	SourceLLM       = "llm"
	SourceHeuristic = "heuristic"
)

const heuristicTopIssues = 5

// Generator is the generation service
type Generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// Input is the dataset metadata the adapter may disclose
type Input struct {
	DatasetID    string
	Filename     string
	RowCount     int
	ColumnCount  int
	Sampled      bool
	QualityScore float64
	Columns      []quality.ColumnProfile
	Issues       []quality.Issue
}

// Result is a summary with an unvalidated plan
type Result struct {
	Summary string     `json:"summary"`
	Plan    []plan.Raw `json:"plan,omitempty"`
	Source  string     `json:"source"`
}

// Options bound each generation call
type Options struct {
	MaxPromptBytes int
	Timeout        time.Duration
}

type generatorBox struct {
	g Generator
}

// Explainer is safe for concurrent use. The generator can be swapped at
// runtime when configuration reloads.
type Explainer struct {
	gen    atomic.Pointer[generatorBox]
	opts   Options
	logger *zap.SugaredLogger
}

// New creates an Explainer. A nil generator means offline mode.
func New(g Generator, opts Options, log *zap.SugaredLogger) *Explainer {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	e := &Explainer{opts: opts, logger: log.Named("explain")}
	e.SetGenerator(g)
	return e
}

// SetGenerator replaces the generator; nil switches to offline mode
func (e *Explainer) SetGenerator(g Generator) {
	e.gen.Store(&generatorBox{g: g})
}

// Online reports whether a generator is configured
func (e *Explainer) Online() bool {
	return e.generator() != nil
}

func (e *Explainer) generator() Generator {
	if box := e.gen.Load(); box != nil {
		return box.g
	}
	return nil
}

// Explain asks the generator for a summary and plan. Without a generator it
// returns the heuristic result. Generator failures are returned marked
// errors.ErrLLMTimeout or errors.ErrLLMUnavailable.
func (e *Explainer) Explain(ctx context.Context, in Input) (*Result, error) {
	g := e.generator()
	if g == nil {
		return Heuristic(in), nil
	}

	prompt := BuildPrompt(in, e.opts.MaxPromptBytes)
	if e.opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.opts.Timeout)
		defer cancel()
	}

	start := time.Now()
	text, err := g.Generate(ctx, prompt)
	if err != nil {
		if !errors.IsLLMError(err) {
			if httpclient.IsTimeout(ctx, err) {
				err = errors.Mark(err, errors.ErrLLMTimeout)
			} else {
				err = errors.Mark(err, errors.ErrLLMUnavailable)
			}
		}
		e.logger.Warnw("Generation failed",
			logger.FieldDatasetID, in.DatasetID,
			logger.FieldErrorKind, errors.KindOf(err),
			logger.FieldError, err,
		)
		return nil, err
	}

	summary, raws := ParseResponse(text)
	if summary == "" {
		summary = HeuristicSummary(in.Issues)
	}
	e.logger.Infow("Generated explanation",
		logger.FieldDatasetID, in.DatasetID,
		"prompt_bytes", len(prompt),
		"response_bytes", len(text),
		"plan_steps", len(raws),
		logger.FieldDurationMS, time.Since(start).Milliseconds(),
	)
	return &Result{Summary: summary, Plan: raws, Source: SourceLLM}, nil
}

// Heuristic is the offline result: a templated summary and the suggested plan
func Heuristic(in Input) *Result {
	return &Result{
		Summary: HeuristicSummary(in.Issues),
		Plan:    plan.Suggest(in.Issues, in.Columns),
		Source:  SourceHeuristic,
	}
}

// HeuristicSummary lists the top issues in a fixed template
func HeuristicSummary(issues []quality.Issue) string {
	if len(issues) == 0 {
		return "No issues detected. Dataset looks healthy."
	}
	lines := []string{"Detected the following data quality issues:"}
	for i, issue := range issues {
		if i == heuristicTopIssues {
			break
		}
		lines = append(lines, fmt.Sprintf("- %s: %s", issue.Type, issue.Message))
	}
	if len(issues) > heuristicTopIssues {
		lines = append(lines, fmt.Sprintf("- and %d more issues.", len(issues)-heuristicTopIssues))
	}
	lines = append(lines, "Suggested next steps: fill missing values, remove duplicates, and review outliers.")
	return strings.Join(lines, "\n")
}
