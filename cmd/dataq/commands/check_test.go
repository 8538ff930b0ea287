package commands

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/teranos/dataq/am"
	"github.com/teranos/dataq/errors"
	"github.com/teranos/dataq/quality"
)

// peopleCSV has 10 rows, 2 exact duplicates and 3 missing ages
const peopleCSV = `name,age,city
alice,34,Paris
bob,,Berlin
carol,29,Rome
carol,29,Rome
dave,41,Oslo
erin,,Madrid
frank,52,Lisbon
frank,52,Lisbon
grace,,Vienna
heidi,38,Prague
`

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func offlineConfig() *am.Config {
	cfg := am.Defaults()
	cfg.LLM.Provider = am.ProviderNone
	return cfg
}

func TestCheck_ProfilesFile(t *testing.T) {
	path := writeFile(t, "people.csv", peopleCSV)

	report, err := check(context.Background(), offlineConfig(), path, checkOptions{})
	require.NoError(t, err)

	assert.Equal(t, 10, report.RowCount)
	assert.Equal(t, 3, report.ColumnCount)
	assert.Equal(t, 2, report.DuplicateRows)
	assert.Less(t, report.QualityScore, 100.0)
	assert.Equal(t, report.QualityScore, report.Penalties.Score)
	assert.Empty(t, report.Plan)
	assert.Nil(t, report.Cleaning)

	var types []quality.IssueType
	for _, is := range report.Issues {
		types = append(types, is.Type)
	}
	assert.Contains(t, types, quality.IssueMissingValues)
	assert.Contains(t, types, quality.IssueDuplicateRows)
}

func TestCheck_ExplainOffline(t *testing.T) {
	path := writeFile(t, "people.csv", peopleCSV)

	report, err := check(context.Background(), offlineConfig(), path, checkOptions{Explain: true})
	require.NoError(t, err)
	assert.Equal(t, "heuristic", report.PlanSource)
	assert.True(t, strings.HasPrefix(report.Summary, "Detected the following data quality issues:"), report.Summary)
	assert.NotEmpty(t, report.Plan)
	assert.Empty(t, report.PlanRejection)
}

func TestCheck_CleansWithPlanFile(t *testing.T) {
	tests := []struct {
		name string
		file string
		plan string
	}{
		{
			name: "json",
			file: "plan.json",
			plan: `[{"operation_type": "drop-duplicates"},
			        {"operation_type": "fill-missing", "column": "age", "parameters": {"strategy": "median"}}]`,
		},
		{
			name: "yaml",
			file: "plan.yaml",
			plan: `- operation_type: drop-duplicates
- operation_type: fill-missing
  column: age
  parameters:
    strategy: median
`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeFile(t, "people.csv", peopleCSV)
			planPath := writeFile(t, tt.file, tt.plan)
			out := filepath.Join(t.TempDir(), "cleaned.csv")

			report, err := check(context.Background(), offlineConfig(), path, checkOptions{PlanPath: planPath, OutPath: out})
			require.NoError(t, err)
			assert.Equal(t, "file", report.PlanSource)
			require.NotNil(t, report.Cleaning)
			assert.Equal(t, 10, report.Cleaning.RowsBefore)
			assert.Equal(t, 8, report.Cleaning.RowsAfter)
			assert.Greater(t, report.Cleaning.CleanedScore, report.QualityScore)
			require.Len(t, report.Cleaning.Effects, 2)

			data, err := os.ReadFile(out)
			require.NoError(t, err)
			lines := strings.Split(strings.TrimSpace(string(data)), "\n")
			assert.Len(t, lines, 9)
			assert.NotContains(t, string(data), ",,")
		})
	}
}

func TestCheck_RejectedPlan(t *testing.T) {
	path := writeFile(t, "people.csv", peopleCSV)
	planPath := writeFile(t, "plan.json", `[{"operation_type": "drop-column", "column": "salary"}]`)

	report, err := check(context.Background(), offlineConfig(), path, checkOptions{PlanPath: planPath})
	require.NoError(t, err)
	require.Len(t, report.PlanRejection, 1)
	assert.Equal(t, "salary", report.PlanRejection[0].Column)

	out := filepath.Join(t.TempDir(), "cleaned.csv")
	_, err = check(context.Background(), offlineConfig(), path, checkOptions{PlanPath: planPath, OutPath: out})
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrPlanValidation), "got %v", err)
	assert.NoFileExists(t, out)
}

func TestCheck_Errors(t *testing.T) {
	people := writeFile(t, "people.csv", peopleCSV)
	empty := writeFile(t, "empty.csv", "a,b\n")
	badPlan := writeFile(t, "plan.json", `{"not": "a list"}`)

	tests := []struct {
		name string
		path string
		opts checkOptions
		want error
	}{
		{"out without plan", people, checkOptions{OutPath: filepath.Join(t.TempDir(), "x.csv")}, errors.ErrNotReady},
		{"no data rows", empty, checkOptions{}, errors.ErrEmptyDataset},
		{"malformed plan", people, checkOptions{PlanPath: badPlan}, errors.ErrInvalidRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := check(context.Background(), offlineConfig(), tt.path, tt.opts)
			require.Error(t, err)
			assert.True(t, errors.Is(err, tt.want), "got %v", err)
		})
	}

	_, err := check(context.Background(), offlineConfig(), filepath.Join(t.TempDir(), "missing.csv"), checkOptions{})
	assert.Error(t, err)
}

func TestPrintCheckReport_Formats(t *testing.T) {
	path := writeFile(t, "people.csv", peopleCSV)
	report, err := check(context.Background(), offlineConfig(), path, checkOptions{Explain: true})
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, printCheckReport(&buf, "json", report))
	var fromJSON map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &fromJSON))
	assert.Equal(t, float64(10), fromJSON["row_count"])
	assert.Equal(t, "heuristic", fromJSON["plan_source"])

	buf.Reset()
	require.NoError(t, printCheckReport(&buf, "yaml", report))
	var fromYAML map[string]interface{}
	require.NoError(t, yaml.Unmarshal(buf.Bytes(), &fromYAML))
	assert.Equal(t, 10, fromYAML["row_count"])
	issues, ok := fromYAML["issues"].([]interface{})
	require.True(t, ok)
	require.NotEmpty(t, issues)
	first := issues[0].(map[string]interface{})
	assert.Contains(t, []interface{}{"low", "medium", "high"}, first["severity"])
}

func TestParseValue(t *testing.T) {
	tests := []struct {
		in   string
		want interface{}
	}{
		{"true", true},
		{"false", false},
		{"1", int64(1)},
		{"30", int64(30)},
		{"0.5", 0.5},
		{"gemini", "gemini"},
		{"", ""},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, parseValue(tt.in), "parseValue(%q)", tt.in)
	}
}
