package plan

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teranos/dataq/errors"
	"github.com/teranos/dataq/quality"
)

func testColumns() []quality.ColumnProfile {
	return []quality.ColumnProfile{
		{Name: "id", Type: quality.TypeNumeric},
		{Name: "age", Type: quality.TypeNumeric, LowerFence: ptr(1.0), UpperFence: ptr(90.0)},
		{Name: "city", Type: quality.TypeCategorical},
		{Name: "joined", Type: quality.TypeText},
	}
}

func TestValidate_AcceptsEveryKind(t *testing.T) {
	raws := []Raw{
		{OperationType: "drop-duplicates"},
		{OperationType: "fill-missing", Column: "age", Parameters: map[string]any{"strategy": "mean"}},
		{OperationType: "fill-missing", Column: "city", Parameters: map[string]any{"strategy": "constant", "value": "unknown"}},
		{OperationType: "trim-whitespace"},
		{OperationType: "trim-whitespace", Column: "city"},
		{OperationType: "cast-type", Column: "joined", Parameters: map[string]any{"target": "date"}},
		{OperationType: "clip-outliers", Column: "age", Parameters: map[string]any{"lower": 0, "upper": 120.5}},
		{OperationType: "drop-column", Column: "id"},
	}

	ops, err := Validate(raws, testColumns())
	require.NoError(t, err)
	require.Len(t, ops, len(raws))

	assert.Equal(t, DropDuplicates{}, ops[0])
	assert.Equal(t, FillMissing{Column: "age", Strategy: StrategyMean}, ops[1])
	assert.Equal(t, FillMissing{Column: "city", Strategy: StrategyConstant, Value: "unknown"}, ops[2])
	assert.Equal(t, TrimWhitespace{}, ops[3])
	assert.Equal(t, TrimWhitespace{Column: "city"}, ops[4])
	assert.Equal(t, CastType{Column: "joined", To: TargetDatetime}, ops[5])
	assert.Equal(t, ClipOutliers{Column: "age", Lower: 0, Upper: 120.5}, ops[6])
	assert.Equal(t, DropColumn{Column: "id"}, ops[7])
}

func TestValidate_NormalizesOperationType(t *testing.T) {
	ops, err := Validate([]Raw{{OperationType: " Drop_Duplicates "}}, testColumns())
	require.NoError(t, err)
	assert.Equal(t, []Operation{DropDuplicates{}}, ops)
}

func TestValidate_UnknownOperationRejectsWholePlan(t *testing.T) {
	raws := []Raw{
		{OperationType: "drop-duplicates"},
		{OperationType: "delete-everything"},
		{OperationType: "drop-column", Column: "city"},
	}
	ops, err := Validate(raws, testColumns())
	assert.Nil(t, ops)
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrPlanValidation))

	var verr *ValidationError
	require.True(t, errors.As(err, &verr))
	require.Len(t, verr.Violations, 1)
	assert.Equal(t, 1, verr.Violations[0].Index)
	assert.Contains(t, verr.Violations[0].Reason, "unknown operation type")
}

func TestValidate_Violations(t *testing.T) {
	tests := []struct {
		name   string
		raws   []Raw
		reason string
	}{
		{
			name:   "drop duplicates with column",
			raws:   []Raw{{OperationType: "drop-duplicates", Column: "age"}},
			reason: "takes no column",
		},
		{
			name:   "missing column",
			raws:   []Raw{{OperationType: "drop-column"}},
			reason: "column is required",
		},
		{
			name:   "unknown column",
			raws:   []Raw{{OperationType: "drop-column", Column: "nope"}},
			reason: "does not exist",
		},
		{
			name: "column dropped earlier",
			raws: []Raw{
				{OperationType: "drop-column", Column: "age"},
				{OperationType: "fill-missing", Column: "age", Parameters: map[string]any{"strategy": "mode"}},
			},
			reason: "dropped by an earlier step",
		},
		{
			name:   "unknown parameter",
			raws:   []Raw{{OperationType: "drop-column", Column: "age", Parameters: map[string]any{"force": true}}},
			reason: `unknown parameter "force"`,
		},
		{
			name:   "mean on text",
			raws:   []Raw{{OperationType: "fill-missing", Column: "city", Parameters: map[string]any{"strategy": "mean"}}},
			reason: "requires a numeric column",
		},
		{
			name:   "constant without value",
			raws:   []Raw{{OperationType: "fill-missing", Column: "city", Parameters: map[string]any{"strategy": "constant"}}},
			reason: "requires a value",
		},
		{
			name:   "constant with object value",
			raws:   []Raw{{OperationType: "fill-missing", Column: "city", Parameters: map[string]any{"strategy": "constant", "value": map[string]any{}}}},
			reason: "must be a string, number or boolean",
		},
		{
			name:   "unknown strategy",
			raws:   []Raw{{OperationType: "fill-missing", Column: "age", Parameters: map[string]any{"strategy": "interpolate"}}},
			reason: "unknown fill strategy",
		},
		{
			name:   "unknown cast target",
			raws:   []Raw{{OperationType: "cast-type", Column: "age", Parameters: map[string]any{"target": "complex"}}},
			reason: "unsupported cast target",
		},
		{
			name:   "clip bounds inverted",
			raws:   []Raw{{OperationType: "clip-outliers", Column: "age", Parameters: map[string]any{"lower": 10, "upper": 10}}},
			reason: "must be below upper bound",
		},
		{
			name:   "clip bound missing",
			raws:   []Raw{{OperationType: "clip-outliers", Column: "age", Parameters: map[string]any{"lower": 10}}},
			reason: "finite numeric lower and upper",
		},
		{
			name:   "clip on text",
			raws:   []Raw{{OperationType: "clip-outliers", Column: "city", Parameters: map[string]any{"lower": 1, "upper": 2}}},
			reason: "requires a numeric column",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ops, err := Validate(tt.raws, testColumns())
			assert.Nil(t, ops)
			var verr *ValidationError
			require.True(t, errors.As(err, &verr))
			require.NotEmpty(t, verr.Violations)
			assert.Contains(t, verr.Violations[0].Reason, tt.reason)
		})
	}
}

func TestValidate_CollectsAllViolations(t *testing.T) {
	raws := []Raw{
		{OperationType: "bogus"},
		{OperationType: "drop-column", Column: "missing"},
	}
	_, err := Validate(raws, testColumns())
	var verr *ValidationError
	require.True(t, errors.As(err, &verr))
	require.Len(t, verr.Violations, 2)
	assert.Equal(t, 0, verr.Violations[0].Index)
	assert.Equal(t, 1, verr.Violations[1].Index)
	assert.Contains(t, err.Error(), "and 1 more")
}

func TestValidate_CastMakesColumnNumeric(t *testing.T) {
	raws := []Raw{
		{OperationType: "cast-type", Column: "joined", Parameters: map[string]any{"target": "float"}},
		{OperationType: "fill-missing", Column: "joined", Parameters: map[string]any{"strategy": "median"}},
	}
	ops, err := Validate(raws, testColumns())
	require.NoError(t, err)
	assert.Equal(t, CastType{Column: "joined", To: TargetNumeric}, ops[0])
}

func TestValidate_ColumnInParameters(t *testing.T) {
	raws := []Raw{{OperationType: "drop-column", Parameters: map[string]any{"column": "city"}}}
	ops, err := Validate(raws, testColumns())
	require.NoError(t, err)
	assert.Equal(t, []Operation{DropColumn{Column: "city"}}, ops)
}

func TestValidate_DecodedJSONPlan(t *testing.T) {
	payload := `[
		{"operation_type": "fill_missing", "column": "age", "parameters": {"strategy": "constant", "value": 42}},
		{"operation_type": "clip-outliers", "column": "age", "parameters": {"lower": "1", "upper": 99.5}}
	]`
	var raws []Raw
	require.NoError(t, json.Unmarshal([]byte(payload), &raws))

	ops, err := Validate(raws, testColumns())
	require.NoError(t, err)
	assert.Equal(t, FillMissing{Column: "age", Strategy: StrategyConstant, Value: "42"}, ops[0])
	assert.Equal(t, ClipOutliers{Column: "age", Lower: 1, Upper: 99.5}, ops[1])
}

func TestEncode_RevalidatesToSamePlan(t *testing.T) {
	ops := []Operation{
		DropDuplicates{},
		FillMissing{Column: "city", Strategy: StrategyConstant, Value: "n/a"},
		CastType{Column: "joined", To: TargetText},
		ClipOutliers{Column: "age", Lower: 1, Upper: 90},
		DropColumn{Column: "id"},
	}
	again, err := Validate(Encode(ops), testColumns())
	require.NoError(t, err)
	assert.Equal(t, ops, again)
}

func TestSuggest(t *testing.T) {
	cols := testColumns()
	issues := []quality.Issue{
		{Type: quality.IssueDuplicateRows, Severity: quality.SeverityHigh},
		{Type: quality.IssueMissingValues, Column: "age", Severity: quality.SeverityMedium},
		{Type: quality.IssueMissingValues, Column: "city", Severity: quality.SeverityLow},
		{Type: quality.IssueOutlierValue, Column: "age", Severity: quality.SeverityLow},
		{Type: quality.IssueLongText, Column: "joined", Severity: quality.SeverityLow},
	}

	raws := Suggest(issues, cols)
	ops, err := Validate(raws, cols)
	require.NoError(t, err)
	assert.Equal(t, []Operation{
		DropDuplicates{},
		FillMissing{Column: "age", Strategy: StrategyMedian},
		FillMissing{Column: "city", Strategy: StrategyMode},
		ClipOutliers{Column: "age", Lower: 1, Upper: 90},
	}, ops)
}

func TestSuggest_NoIssues(t *testing.T) {
	assert.Empty(t, Suggest(nil, testColumns()))
}

func ptr(v float64) *float64 { return &v }
