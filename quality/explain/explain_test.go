package explain

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/teranos/dataq/errors"
	"github.com/teranos/dataq/logger"
	"github.com/teranos/dataq/quality"
	"github.com/teranos/dataq/quality/plan"
)

type fakeGenerator struct {
	reply   string
	err     error
	prompts []string
	block   bool
}

func (f *fakeGenerator) Generate(ctx context.Context, prompt string) (string, error) {
	f.prompts = append(f.prompts, prompt)
	if f.block {
		<-ctx.Done()
		return "", ctx.Err()
	}
	return f.reply, f.err
}

func sampleInput() Input {
	return Input{
		DatasetID:    "ds-1",
		Filename:     "people.csv",
		RowCount:     10,
		ColumnCount:  2,
		QualityScore: 71.5,
		Columns: []quality.ColumnProfile{
			{Name: "age", Type: quality.TypeNumeric, NullCount: 3, DistinctCount: 6, Min: ptr(1.0), Max: ptr(99.0), LowerFence: ptr(0.0), UpperFence: ptr(80.0)},
			{Name: "city", Type: quality.TypeCategorical, NullCount: 0, DistinctCount: 3},
		},
		Issues: []quality.Issue{
			{Type: quality.IssueDuplicateRows, Message: "2 duplicate rows (20.0%)", Severity: quality.SeverityHigh, Count: 2},
			{Type: quality.IssueMissingValues, Column: "age", Message: "3 missing values (30.0%)", Severity: quality.SeverityMedium, Count: 3},
		},
	}
}

func TestParseResponse(t *testing.T) {
	tests := []struct {
		name    string
		text    string
		summary string
		plan    []plan.Raw
	}{
		{
			name:    "plain json",
			text:    `{"summary": "Two problems.", "plan": [{"operation_type": "drop-duplicates"}]}`,
			summary: "Two problems.",
			plan:    []plan.Raw{{OperationType: "drop-duplicates"}},
		},
		{
			name:    "fenced json with prose around it",
			text:    "Here you go:\n```json\n{\"summary\": \"Fenced.\", \"cleaning_plan\": [{\"operation_type\": \"drop-column\", \"column\": \"x\"}]}\n```\nThanks!",
			summary: "Fenced.",
			plan:    []plan.Raw{{OperationType: "drop-column", Column: "x"}},
		},
		{
			name:    "steps synonym",
			text:    `Sure. {"summary": "S", "steps": [{"operation_type": "fill-missing", "column": "age", "parameters": {"strategy": "median"}}]}`,
			summary: "S",
			plan:    []plan.Raw{{OperationType: "fill-missing", Column: "age", Parameters: map[string]any{"strategy": "median"}}},
		},
		{
			name:    "yaml",
			text:    "summary: Nulls in age.\nplan:\n  - operation_type: fill-missing\n    column: age\n    parameters:\n      strategy: constant\n      value: 0\n",
			summary: "Nulls in age.",
			plan:    []plan.Raw{{OperationType: "fill-missing", Column: "age", Parameters: map[string]any{"strategy": "constant", "value": 0}}},
		},
		{
			name:    "prose only",
			text:    "  The dataset has several issues: duplicates and nulls.  ",
			summary: "The dataset has several issues: duplicates and nulls.",
		},
		{
			name:    "broken json falls back to prose",
			text:    `{"summary": "unterminated`,
			summary: `{"summary": "unterminated`,
		},
		{
			name:    "non-object plan entries survive for rejection",
			text:    `{"summary": "S", "plan": ["drop duplicates please"]}`,
			summary: "S",
			plan:    []plan.Raw{{OperationType: `"drop duplicates please"`}},
		},
		{
			name:    "empty plan",
			text:    `{"summary": "Clean.", "plan": []}`,
			summary: "Clean.",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			summary, raws := ParseResponse(tt.text)
			assert.Equal(t, tt.summary, summary)
			assert.Equal(t, tt.plan, raws)
		})
	}
}

func TestHeuristicSummary(t *testing.T) {
	assert.Equal(t, "No issues detected. Dataset looks healthy.", HeuristicSummary(nil))

	var issues []quality.Issue
	for i := 0; i < 7; i++ {
		issues = append(issues, quality.Issue{Type: quality.IssueLongText, Message: fmt.Sprintf("m%d", i)})
	}
	got := HeuristicSummary(issues)
	lines := strings.Split(got, "\n")
	require.Len(t, lines, 8)
	assert.Equal(t, "Detected the following data quality issues:", lines[0])
	assert.Equal(t, "- long-text: m0", lines[1])
	assert.Equal(t, "- long-text: m4", lines[5])
	assert.Equal(t, "- and 2 more issues.", lines[6])
	assert.Equal(t, "Suggested next steps: fill missing values, remove duplicates, and review outliers.", lines[7])
}

func TestBuildPrompt(t *testing.T) {
	in := sampleInput()
	p := BuildPrompt(in, 12000)

	assert.Contains(t, p, `"operation_type"`)
	assert.Contains(t, p, "Dataset: people.csv (10 rows, 2 columns); quality score 71.5/100")
	assert.Contains(t, p, "- age [numeric] nulls=3 distinct=6 range=[1, 99] fences=[0, 80]")
	assert.Contains(t, p, "- [high] duplicate-rows: 2 duplicate rows (20.0%)")
	assert.Contains(t, p, "- [medium] missing-values on age: 3 missing values (30.0%)")
	assert.NotContains(t, p, "omitted")
}

func TestBuildPrompt_RespectsBudget(t *testing.T) {
	in := sampleInput()
	for i := 0; i < 200; i++ {
		in.Columns = append(in.Columns, quality.ColumnProfile{Name: fmt.Sprintf("extra_column_%03d", i), Type: quality.TypeText, DistinctCount: i})
		in.Issues = append(in.Issues, quality.Issue{Type: quality.IssueLongText, Column: fmt.Sprintf("extra_column_%03d", i), Message: "values longer than 255 characters", Severity: quality.SeverityLow})
	}

	for _, max := range []int{1024, 2000, 4096, 12000} {
		p := BuildPrompt(in, max)
		assert.LessOrEqual(t, len(p), max, "max=%d", max)
		assert.Contains(t, p, "Dataset: people.csv")
	}

	p := BuildPrompt(in, 4096)
	assert.Contains(t, p, "more columns omitted")
	assert.Contains(t, p, "more issues omitted")
	// the high-severity issue comes first and survives truncation
	assert.Contains(t, p, "duplicate-rows")
}

func TestExplain_Offline(t *testing.T) {
	e := New(nil, Options{MaxPromptBytes: 12000}, nil)
	assert.False(t, e.Online())

	res, err := e.Explain(context.Background(), sampleInput())
	require.NoError(t, err)
	assert.Equal(t, SourceHeuristic, res.Source)
	assert.True(t, strings.HasPrefix(res.Summary, "Detected the following data quality issues:"))

	ops, err := plan.Validate(res.Plan, sampleInput().Columns)
	require.NoError(t, err)
	assert.Equal(t, []plan.Operation{
		plan.DropDuplicates{},
		plan.FillMissing{Column: "age", Strategy: plan.StrategyMedian},
	}, ops)
}

func TestExplain_LLM(t *testing.T) {
	gen := &fakeGenerator{reply: "```json\n{\"summary\": \"Age has gaps.\", \"plan\": [{\"operation_type\": \"fill-missing\", \"column\": \"age\", \"parameters\": {\"strategy\": \"mean\"}}]}\n```"}
	e := New(gen, Options{MaxPromptBytes: 12000, Timeout: time.Second}, nil)

	res, err := e.Explain(context.Background(), sampleInput())
	require.NoError(t, err)
	assert.Equal(t, SourceLLM, res.Source)
	assert.Equal(t, "Age has gaps.", res.Summary)
	require.Len(t, res.Plan, 1)
	require.Len(t, gen.prompts, 1)
	assert.LessOrEqual(t, len(gen.prompts[0]), 12000)
}

func TestExplain_UnparseableReplyKeepsTextAsSummary(t *testing.T) {
	e := New(&fakeGenerator{reply: "I could not analyse this dataset."}, Options{}, nil)

	res, err := e.Explain(context.Background(), sampleInput())
	require.NoError(t, err)
	assert.Equal(t, "I could not analyse this dataset.", res.Summary)
	assert.Empty(t, res.Plan)
}

func TestExplain_EmptySummaryUsesHeuristic(t *testing.T) {
	e := New(&fakeGenerator{reply: `{"summary": "", "plan": [{"operation_type": "drop-duplicates"}]}`}, Options{}, nil)

	res, err := e.Explain(context.Background(), sampleInput())
	require.NoError(t, err)
	assert.Equal(t, HeuristicSummary(sampleInput().Issues), res.Summary)
	assert.Len(t, res.Plan, 1)
}

func TestExplain_Errors(t *testing.T) {
	t.Run("timeout", func(t *testing.T) {
		e := New(&fakeGenerator{block: true}, Options{Timeout: 20 * time.Millisecond}, nil)
		_, err := e.Explain(context.Background(), sampleInput())
		require.Error(t, err)
		assert.True(t, errors.Is(err, errors.ErrLLMTimeout))
	})

	t.Run("unmarked failure becomes unavailable", func(t *testing.T) {
		e := New(&fakeGenerator{err: errors.New("boom")}, Options{}, nil)
		_, err := e.Explain(context.Background(), sampleInput())
		assert.True(t, errors.Is(err, errors.ErrLLMUnavailable))
	})

	t.Run("marked failure kept", func(t *testing.T) {
		e := New(&fakeGenerator{err: errors.Mark(errors.New("slow"), errors.ErrLLMTimeout)}, Options{}, nil)
		_, err := e.Explain(context.Background(), sampleInput())
		assert.True(t, errors.Is(err, errors.ErrLLMTimeout))
		assert.False(t, errors.Is(err, errors.ErrLLMUnavailable))
	})
}

func TestExplain_LogsWithSharedFieldKeys(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	in := sampleInput()
	in.DatasetID = "ds-42"

	e := New(&fakeGenerator{err: errors.New("boom")}, Options{}, zap.New(core).Sugar())
	_, err := e.Explain(context.Background(), in)
	require.Error(t, err)

	e.SetGenerator(&fakeGenerator{reply: `{"summary": "fine"}`})
	_, err = e.Explain(context.Background(), in)
	require.NoError(t, err)

	failed := logs.FilterMessage("Generation failed").All()
	require.Len(t, failed, 1)
	fields := failed[0].ContextMap()
	assert.Equal(t, "ds-42", fields[logger.FieldDatasetID])
	assert.Contains(t, fields, logger.FieldErrorKind)
	assert.Contains(t, fields, logger.FieldError)

	done := logs.FilterMessage("Generated explanation").All()
	require.Len(t, done, 1)
	assert.Equal(t, "ds-42", done[0].ContextMap()[logger.FieldDatasetID])
	assert.Contains(t, done[0].ContextMap(), logger.FieldDurationMS)
}

func TestExplain_SetGenerator(t *testing.T) {
	e := New(nil, Options{}, nil)
	e.SetGenerator(&fakeGenerator{reply: `{"summary": "online now"}`})
	assert.True(t, e.Online())

	res, err := e.Explain(context.Background(), sampleInput())
	require.NoError(t, err)
	assert.Equal(t, "online now", res.Summary)

	e.SetGenerator(nil)
	res, err = e.Explain(context.Background(), sampleInput())
	require.NoError(t, err)
	assert.Equal(t, SourceHeuristic, res.Source)
}

func ptr(v float64) *float64 { return &v }
