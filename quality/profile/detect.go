package profile

import (
	"fmt"
	"hash/fnv"
	"slices"
	"strings"

	"github.com/teranos/dataq/quality"
	"github.com/teranos/dataq/quality/table"
)

// KeyColumnNames are the column names treated as a primary key, case-insensitively
var KeyColumnNames = []string{"id", "pk", "primary_key"}

func findKeyColumn(header []string) string {
	for _, h := range header {
		if slices.Contains(KeyColumnNames, strings.ToLower(h)) {
			return h
		}
	}
	return ""
}

const nullMarker = "\x00"

// rowKey joins a row with a unit separator; every null token collapses to one marker
func rowKey(row []string) string {
	var b strings.Builder
	for i, v := range row {
		if i > 0 {
			b.WriteByte(0x1f)
		}
		if table.IsNull(v) {
			b.WriteString(nullMarker)
		} else {
			b.WriteString(v)
		}
	}
	return b.String()
}

// DuplicateRowMask marks every row that repeats an earlier row exactly.
// Rows are bucketed by FNV-64a hash and compared in full within a bucket.
func DuplicateRowMask(rows [][]string) []bool {
	dup := make([]bool, len(rows))
	buckets := make(map[uint64][]string, len(rows))
	for i, row := range rows {
		key := rowKey(row)
		h := fnv.New64a()
		h.Write([]byte(key))
		sum := h.Sum64()

		if slices.Contains(buckets[sum], key) {
			dup[i] = true
			continue
		}
		buckets[sum] = append(buckets[sum], key)
	}
	return dup
}

func countDuplicateRows(t *table.Table) int {
	n := 0
	for _, d := range DuplicateRowMask(t.Rows) {
		if d {
			n++
		}
	}
	return n
}

func ratio(n, of int) float64 {
	if of == 0 {
		return 0
	}
	return float64(n) / float64(of)
}

func pct(r float64) string {
	return fmt.Sprintf("%.1f%%", r*100)
}

// detect runs the detectors in a fixed order and returns issues sorted by
// severity, equal severities in detection order.
func detect(t *table.Table, res *Result, stats []*columnStats, opts Options) []quality.Issue {
	rows := res.RowCount
	var issues []quality.Issue

	issues = append(issues, keyIssues(t, res.KeyColumn, opts)...)

	if res.DuplicateRows > 0 {
		r := ratio(res.DuplicateRows, rows)
		sev := quality.SeverityMedium
		if r >= 0.10 {
			sev = quality.SeverityHigh
		}
		issues = append(issues, quality.Issue{
			Type:     quality.IssueDuplicateRows,
			Message:  fmt.Sprintf("%d of %d rows are exact duplicates of an earlier row (%s)", res.DuplicateRows, rows, pct(r)),
			Severity: sev,
			Count:    res.DuplicateRows,
			Ratio:    r,
		})
	}

	// duplicate rows add no new values, so identifier checks look only at
	// the first copy of each row
	mask := DuplicateRowMask(t.Rows)
	unique := 0
	uniqueNulls := make([]int, len(res.Columns))
	for r, row := range t.Rows {
		if mask[r] {
			continue
		}
		unique++
		for i, v := range row {
			if table.IsNull(v) {
				uniqueNulls[i]++
			}
		}
	}

	for i, col := range res.Columns {
		id := idBasis{rows: unique, nulls: uniqueNulls[i]}
		issues = append(issues, columnIssues(col, stats[i], rows, id, res.KeyColumn, opts)...)
	}

	quality.SortIssues(issues)
	return issues
}

func keyIssues(t *table.Table, key string, opts Options) []quality.Issue {
	if key == "" {
		if !opts.RequireKey {
			return nil
		}
		return []quality.Issue{{
			Type:     quality.IssueReferentialGap,
			Message:  fmt.Sprintf("no key column found (expected one of %s)", strings.Join(KeyColumnNames, ", ")),
			Severity: quality.SeverityMedium,
		}}
	}

	idx := t.Index(key)
	rows := len(t.Rows)
	seen := make(map[string]struct{}, rows)
	nulls, repeats := 0, 0
	for _, row := range t.Rows {
		v := strings.TrimSpace(row[idx])
		if table.IsNull(v) {
			nulls++
			continue
		}
		if _, ok := seen[v]; ok {
			repeats++
			continue
		}
		seen[v] = struct{}{}
	}

	var issues []quality.Issue
	if nulls > 0 {
		issues = append(issues, quality.Issue{
			Type:     quality.IssueReferentialGap,
			Column:   key,
			Message:  fmt.Sprintf("%d rows have an empty key", nulls),
			Severity: quality.SeverityHigh,
			Count:    nulls,
			Ratio:    ratio(nulls, rows),
		})
	}
	if repeats > 0 {
		issues = append(issues, quality.Issue{
			Type:     quality.IssueReferentialGap,
			Column:   key,
			Message:  fmt.Sprintf("%d rows repeat a key already used by another row", repeats),
			Severity: quality.SeverityHigh,
			Count:    repeats,
			Ratio:    ratio(repeats, rows),
		})
	}
	return issues
}

// idBasis counts the rows that are not duplicates of an earlier row, and the
// nulls of one column within them
type idBasis struct {
	rows  int
	nulls int
}

// repeats is how many present values in the unique rows equal an earlier one.
// Nulling a value or duplicating a row never raises it.
func (b idBasis) repeats(distinct int) int {
	return max(0, b.rows-b.nulls-distinct)
}

func columnIssues(col quality.ColumnProfile, s *columnStats, rows int, id idBasis, key string, opts Options) []quality.Issue {
	var issues []quality.Issue
	add := func(typ quality.IssueType, sev quality.Severity, count int, msg string) {
		issues = append(issues, quality.Issue{
			Type:     typ,
			Column:   col.Name,
			Message:  msg,
			Severity: sev,
			Count:    count,
			Ratio:    ratio(count, rows),
		})
	}

	if col.NullCount > 0 {
		r := ratio(col.NullCount, rows)
		sev := quality.SeverityLow
		switch {
		case r >= 0.5:
			sev = quality.SeverityHigh
		case r >= 0.05:
			sev = quality.SeverityMedium
		}
		add(quality.IssueMissingValues, sev, col.NullCount,
			fmt.Sprintf("%d of %d values are missing (%s)", col.NullCount, rows, pct(r)))
	}

	if col.InvalidCount > 0 {
		add(quality.IssueTypeMismatch, quality.SeverityMedium, col.InvalidCount,
			fmt.Sprintf("%d values do not parse as %s", col.InvalidCount, col.Type))
	}

	if col.OutlierCount > 0 && col.LowerFence != nil {
		sev := quality.SeverityLow
		if ratio(col.OutlierCount, rows) > 0.05 {
			sev = quality.SeverityMedium
		}
		add(quality.IssueOutlierValue, sev, col.OutlierCount,
			fmt.Sprintf("%d values fall outside [%g, %g] (%g x IQR)", col.OutlierCount, *col.LowerFence, *col.UpperFence, opts.IQRMultiplier))
	}

	if col.DistinctCount == 1 && rows > 1 {
		var only string
		for v := range s.distinct {
			only = v
		}
		add(quality.IssueConstantColumn, quality.SeverityLow, rows-col.NullCount,
			fmt.Sprintf("every non-empty value is %q", only))
	}

	if col.Name != key && id.rows >= opts.MinRowsForID &&
		col.Type != quality.TypeNumeric && col.Type != quality.TypeDatetime &&
		ratio(id.rows-id.repeats(col.DistinctCount), id.rows) >= opts.IDRatio {
		add(quality.IssueHighCardinalityID, quality.SeverityLow, col.DistinctCount,
			fmt.Sprintf("%d distinct values in %d unique rows; the column behaves like an identifier", col.DistinctCount, id.rows))
	}

	if s.longCount > 0 {
		add(quality.IssueLongText, quality.SeverityLow, s.longCount,
			fmt.Sprintf("%d values are longer than %d characters (longest %d)", s.longCount, opts.LongTextLength, col.MaxLength))
	}

	return issues
}
