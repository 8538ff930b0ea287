package quality

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSortIssues_SeverityThenDetectionOrder(t *testing.T) {
	issues := []Issue{
		{Type: IssueMissingValues, Column: "a", Severity: SeverityLow},
		{Type: IssueDuplicateRows, Severity: SeverityHigh},
		{Type: IssueMissingValues, Column: "b", Severity: SeverityLow},
		{Type: IssueTypeMismatch, Column: "c", Severity: SeverityMedium},
		{Type: IssueReferentialGap, Column: "id", Severity: SeverityHigh},
	}

	SortIssues(issues)

	var got []string
	for _, is := range issues {
		got = append(got, string(is.Type)+":"+is.Column)
	}
	assert.Equal(t, []string{
		"duplicate-rows:",
		"referential-gap:id",
		"type-mismatch:c",
		"missing-values:a",
		"missing-values:b",
	}, got)
}

func TestSeverityEncodesByName(t *testing.T) {
	data, err := json.Marshal(Issue{Type: IssueLongText, Column: "bio", Message: "m", Severity: SeverityMedium})
	require.NoError(t, err)
	assert.Contains(t, string(data), `"severity":"medium"`)

	var back Issue
	require.NoError(t, json.Unmarshal(data, &back))
	assert.Equal(t, SeverityMedium, back.Severity)

	assert.Error(t, json.Unmarshal([]byte(`{"severity":"catastrophic"}`), &back))
	_, err = json.Marshal(Issue{Severity: Severity(0)})
	assert.Error(t, err)
}

func TestFindColumn(t *testing.T) {
	cols := []ColumnProfile{{Name: "a"}, {Name: "b", Type: TypeNumeric}}
	require.NotNil(t, FindColumn(cols, "b"))
	assert.Equal(t, TypeNumeric, FindColumn(cols, "b").Type)
	assert.Nil(t, FindColumn(cols, "B"))
}
