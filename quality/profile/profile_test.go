package profile

import (
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teranos/dataq/errors"
	"github.com/teranos/dataq/quality"
	"github.com/teranos/dataq/quality/score"
)

func mustProfile(t *testing.T, csv string) *Result {
	t.Helper()
	res, err := Read(strings.NewReader(csv), 0, DefaultOptions())
	require.NoError(t, err)
	return res
}

func issueTypes(res *Result) []string {
	var out []string
	for _, is := range res.Issues {
		out = append(out, string(is.Type)+":"+is.Column)
	}
	return out
}

func TestProfile_CleanDatasetHasNoIssues(t *testing.T) {
	res := mustProfile(t, "id,city,amount\n1,berlin,10\n2,paris,12\n3,berlin,11\n4,rome,13\n")

	assert.Equal(t, 4, res.RowCount)
	assert.Equal(t, 3, res.ColumnCount)
	assert.Equal(t, "id", res.KeyColumn)
	assert.Empty(t, res.Issues)
}

func TestProfile_TypeInference(t *testing.T) {
	var b strings.Builder
	b.WriteString("n,d,b,c,txt,empty\n")
	for i := 0; i < 20; i++ {
		fmt.Fprintf(&b, "%d.5,2024-01-%02d,%s,%s,note number %d,\n",
			i, i+1, []string{"yes", "no"}[i%2], []string{"red", "green", "blue"}[i%3], i)
	}
	res := mustProfile(t, b.String())

	types := map[string]quality.ColumnType{}
	for _, c := range res.Columns {
		types[c.Name] = c.Type
	}
	assert.Equal(t, map[string]quality.ColumnType{
		"n":     quality.TypeNumeric,
		"d":     quality.TypeDatetime,
		"b":     quality.TypeBoolean,
		"c":     quality.TypeCategorical,
		"txt":   quality.TypeText,
		"empty": quality.TypeText,
	}, types)

	n := quality.FindColumn(res.Columns, "n")
	require.NotNil(t, n.Min)
	assert.Equal(t, 0.5, *n.Min)
	assert.Equal(t, 19.5, *n.Max)
	assert.InDelta(t, 10.0, *n.Mean, 1e-9)

	d := quality.FindColumn(res.Columns, "d")
	require.NotNil(t, d.Earliest)
	assert.Equal(t, 1, d.Earliest.Day())
	assert.Equal(t, 20, d.Latest.Day())

	c := quality.FindColumn(res.Columns, "c")
	require.Len(t, c.TopValues, 3)
	assert.Equal(t, quality.ValueCount{Value: "green", Count: 7}, c.TopValues[0], "ties broken by value")
	assert.Equal(t, quality.ValueCount{Value: "blue", Count: 6}, c.TopValues[2])
}

func TestProfile_TypeMismatchBelowThreshold(t *testing.T) {
	var b strings.Builder
	b.WriteString("amount\n")
	for i := 0; i < 19; i++ {
		fmt.Fprintf(&b, "%d\n", 100+i)
	}
	b.WriteString("twelve\n")
	res := mustProfile(t, b.String())

	col := res.Columns[0]
	assert.Equal(t, quality.TypeNumeric, col.Type, "19/20 = 95% parse")
	assert.Equal(t, 1, col.InvalidCount)
	assert.Contains(t, issueTypes(res), "type-mismatch:amount")
}

func TestProfile_Duplicates(t *testing.T) {
	res := mustProfile(t, "a,b\n1,x\n2,y\n1,x\n1,NA\n1,\n")

	assert.Equal(t, 2, res.DuplicateRows, "NA and empty are the same null")
	require.NotEmpty(t, res.Issues)
	dup := res.Issues[0]
	assert.Equal(t, quality.IssueDuplicateRows, dup.Type)
	assert.Equal(t, quality.SeverityHigh, dup.Severity)
	assert.Equal(t, 2, dup.Count)
	assert.InDelta(t, 0.4, dup.Ratio, 1e-9)
}

func TestDuplicateRowMask(t *testing.T) {
	mask := DuplicateRowMask([][]string{{"a", "b"}, {"a", "b"}, {"ab", ""}, {"a", "b"}, {"ab", "null"}})
	assert.Equal(t, []bool{false, true, false, true, true}, mask)

	// non-null cells compare untrimmed
	mask = DuplicateRowMask([][]string{{"a", "1"}, {" a", "1"}, {"a ", "1"}, {"a", " NA"}, {"a", ""}})
	assert.Equal(t, []bool{false, false, false, false, true}, mask)
}

func TestProfile_Outliers(t *testing.T) {
	var b strings.Builder
	b.WriteString("v\n")
	for i := 1; i <= 20; i++ {
		fmt.Fprintf(&b, "%d\n", i)
	}
	b.WriteString("1000\n")
	res := mustProfile(t, b.String())

	col := res.Columns[0]
	assert.Equal(t, 1, col.OutlierCount)
	require.NotNil(t, col.UpperFence)
	assert.Less(t, *col.UpperFence, 1000.0)
	assert.Contains(t, issueTypes(res), "outlier-value:v")
}

func TestProfile_ZeroSpreadHasNoOutliers(t *testing.T) {
	res := mustProfile(t, "v\n5\n5\n5\n5\n5\n5\n9\n")
	assert.Equal(t, 0, res.Columns[0].OutlierCount)
	assert.Nil(t, res.Columns[0].LowerFence)
}

func TestProfile_StructuralIssues(t *testing.T) {
	var b strings.Builder
	b.WriteString("id,email,country,bio\n")
	for i := 0; i < 12; i++ {
		bio := "short"
		if i == 3 {
			bio = strings.Repeat("x", 300)
		}
		fmt.Fprintf(&b, "%d,user%d@example.com,DE,%s\n", i, i, bio)
	}
	res := mustProfile(t, b.String())

	got := issueTypes(res)
	assert.Contains(t, got, "constant-column:country")
	assert.Contains(t, got, "high-cardinality-id:email")
	assert.Contains(t, got, "long-text:bio")
	assert.NotContains(t, got, "high-cardinality-id:id", "the key column is expected to be unique")
}

// nearlyUniqueNames has 100 rows whose names are unique except the last,
// which repeats the first; cities cycle through five values
func nearlyUniqueNames() [][2]string {
	cities := []string{"berlin", "paris", "rome", "oslo", "vienna"}
	rows := make([][2]string, 100)
	for i := range rows {
		rows[i] = [2]string{fmt.Sprintf("user%03d", i%99), cities[i%5]}
	}
	return rows
}

func profileRows(t *testing.T, rows [][2]string) (*Result, float64) {
	t.Helper()
	var b strings.Builder
	b.WriteString("name,city\n")
	for _, r := range rows {
		fmt.Fprintf(&b, "%s,%s\n", r[0], r[1])
	}
	res := mustProfile(t, b.String())
	return res, score.Score(score.FromColumns(res.RowCount, res.Columns, res.DuplicateRows, res.Issues))
}

func TestProfile_ScoreNeverRisesWithMoreNullsOrDuplicates(t *testing.T) {
	t.Run("nulling names", func(t *testing.T) {
		prev := 101.0
		for k := 0; k <= 5; k++ {
			rows := nearlyUniqueNames()
			for i := 0; i < k; i++ {
				rows[i][0] = ""
			}
			res, s := profileRows(t, rows)
			assert.Contains(t, issueTypes(res), "high-cardinality-id:name", "k=%d", k)
			assert.LessOrEqual(t, s, prev, "k=%d", k)
			prev = s
		}
	})

	t.Run("duplicating a row", func(t *testing.T) {
		prev := 101.0
		for k := 0; k <= 5; k++ {
			rows := nearlyUniqueNames()
			for i := 0; i < k; i++ {
				rows = append(rows, rows[1])
			}
			res, s := profileRows(t, rows)
			assert.Equal(t, k, res.DuplicateRows)
			assert.Contains(t, issueTypes(res), "high-cardinality-id:name", "k=%d", k)
			assert.LessOrEqual(t, s, prev, "k=%d", k)
			prev = s
		}
	})
}

func TestProfile_HighCardinalityIgnoresRepeatedPresentValues(t *testing.T) {
	var b strings.Builder
	b.WriteString("code,n\n")
	for i := 0; i < 20; i++ {
		fmt.Fprintf(&b, "c%d,%d\n", i%10, i)
	}
	assert.NotContains(t, issueTypes(mustProfile(t, b.String())), "high-cardinality-id:code")
}

func TestProfile_KeyColumn(t *testing.T) {
	res := mustProfile(t, "ID,v\n1,a\n2,b\n2,c\n,d\n")

	assert.Equal(t, "ID", res.KeyColumn)
	var gaps []quality.Issue
	for _, is := range res.Issues {
		if is.Type == quality.IssueReferentialGap {
			gaps = append(gaps, is)
		}
	}
	require.Len(t, gaps, 2)
	assert.Contains(t, gaps[0].Message, "empty key")
	assert.Contains(t, gaps[1].Message, "repeat a key")
	assert.Equal(t, quality.SeverityHigh, gaps[0].Severity)
}

func TestProfile_RequireKey(t *testing.T) {
	opts := DefaultOptions()
	opts.RequireKey = true
	res, err := Read(strings.NewReader("a\n1\n2\n"), 0, opts)
	require.NoError(t, err)
	assert.Equal(t, []string{"referential-gap:"}, issueTypes(res))
}

func TestProfile_MissingValuesSeverity(t *testing.T) {
	res := mustProfile(t, "a,b,c\n1,,1\n2,,2\n3,,\n4,x,4\n")

	var missing []quality.Issue
	for _, is := range res.Issues {
		if is.Type == quality.IssueMissingValues {
			missing = append(missing, is)
		}
	}
	require.Len(t, missing, 2)
	assert.Equal(t, "b", missing[0].Column)
	assert.Equal(t, quality.SeverityHigh, missing[0].Severity)
	assert.Equal(t, "c", missing[1].Column)
	assert.Equal(t, quality.SeverityMedium, missing[1].Severity)
}

func TestProfile_Deterministic(t *testing.T) {
	var b strings.Builder
	b.WriteString("id,v,w\n")
	for i := 0; i < 500; i++ {
		fmt.Fprintf(&b, "%d,%d,%s\n", i%450, (i*7919)%1013, []string{"a", "", "b"}[i%3])
	}
	opts := DefaultOptions()
	opts.ReservoirSize = 50

	first, err := Read(strings.NewReader(b.String()), 0, opts)
	require.NoError(t, err)
	second, err := Read(strings.NewReader(b.String()), 0, opts)
	require.NoError(t, err)

	assert.Equal(t, first, second)
}

func TestRead_SampleCap(t *testing.T) {
	res, err := Read(strings.NewReader("a\n1\n2\n3\n4\n"), 2, DefaultOptions())
	require.NoError(t, err)
	assert.Equal(t, 2, res.RowCount)
	assert.True(t, res.Sampled)
}

func TestRead_PropagatesDecodeErrors(t *testing.T) {
	_, err := Read(strings.NewReader("a,b\n"), 0, DefaultOptions())
	assert.True(t, errors.Is(err, errors.ErrEmptyDataset))

	_, err = Read(strings.NewReader("a\n\"unterminated\n"), 0, DefaultOptions())
	assert.True(t, errors.Is(err, errors.ErrParse))
}

func TestQuantile(t *testing.T) {
	sorted := []float64{1, 2, 3, 4}
	assert.Equal(t, 1.75, Quantile(sorted, 0.25))
	assert.Equal(t, 3.25, Quantile(sorted, 0.75))
	assert.Equal(t, 7.0, Quantile([]float64{7}, 0.5))
}

func TestParsers(t *testing.T) {
	_, ok := ParseNumber(" 3.5e2 ")
	assert.True(t, ok)
	_, ok = ParseNumber("Inf")
	assert.False(t, ok)

	_, hasClock, ok := ParseDatetime("2024-03-01 10:15:00")
	assert.True(t, ok)
	assert.True(t, hasClock)
	_, hasClock, ok = ParseDatetime("03/01/2024")
	assert.True(t, ok)
	assert.False(t, hasClock)

	v, ok := ParseBool("YES")
	assert.True(t, ok)
	assert.True(t, v)
	_, ok = ParseBool("maybe")
	assert.False(t, ok)
}
