// Package clean executes a validated cleaning plan against a table.
package clean

import (
	"math"
	"sort"
	"strconv"
	"strings"

	"github.com/teranos/dataq/errors"
	"github.com/teranos/dataq/quality/plan"
	"github.com/teranos/dataq/quality/profile"
	"github.com/teranos/dataq/quality/table"
)

// Effect records what one operation did
type Effect struct {
	Index         int    `json:"index" yaml:"index"`
	Operation     string `json:"operation" yaml:"operation"`
	Column        string `json:"column,omitempty" yaml:"column,omitempty"`
	RowsAffected  int    `json:"rows_affected" yaml:"rows_affected"`
	ValuesChanged int    `json:"values_changed" yaml:"values_changed"`
	Warning       string `json:"warning,omitempty" yaml:"warning,omitempty"`

	// Err is the cleaning warning behind Warning, marked ErrCleaningWarning
	Err error `json:"-" yaml:"-"`
}

// Skipped reports whether the operation was skipped with a warning
func (e Effect) Skipped() bool {
	return e.Err != nil
}

// Result is a cleaned copy of the input table with per-operation effects
type Result struct {
	Table      *table.Table
	Effects    []Effect
	RowsBefore int
	RowsAfter  int
}

// Warnings returns the warning of every skipped operation in plan order
func (r *Result) Warnings() []error {
	var out []error
	for _, e := range r.Effects {
		if e.Err != nil {
			out = append(out, e.Err)
		}
	}
	return out
}

// Apply runs ops in order on a copy of t. The input table is never modified.
// An operation that cannot run is skipped and its effect carries a warning;
// later operations still run.
func Apply(t *table.Table, ops []plan.Operation) *Result {
	out := t.Clone()
	res := &Result{
		Table:      out,
		Effects:    make([]Effect, 0, len(ops)),
		RowsBefore: len(t.Rows),
	}

	for i, op := range ops {
		eff := Effect{Index: i, Operation: string(op.Kind()), Column: op.ColumnName()}
		var err error
		switch o := op.(type) {
		case plan.DropDuplicates:
			err = dropDuplicates(out, &eff)
		case plan.FillMissing:
			err = fillMissing(out, o, &eff)
		case plan.TrimWhitespace:
			err = trimWhitespace(out, o, &eff)
		case plan.CastType:
			err = castType(out, o, &eff)
		case plan.ClipOutliers:
			err = clipOutliers(out, o, &eff)
		case plan.DropColumn:
			err = dropColumn(out, o, &eff)
		default:
			err = warning("unsupported operation %T", op)
		}
		if err != nil {
			eff.RowsAffected, eff.ValuesChanged = 0, 0
			eff.Err = err
			eff.Warning = err.Error()
		}
		res.Effects = append(res.Effects, eff)
	}

	res.RowsAfter = len(out.Rows)
	return res
}

func warning(format string, args ...any) error {
	return errors.Mark(errors.Newf(format, args...), errors.ErrCleaningWarning)
}

func columnIndex(t *table.Table, name string) (int, error) {
	idx := t.Index(name)
	if idx < 0 {
		return -1, warning("column %q no longer exists", name)
	}
	return idx, nil
}

func formatNumber(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}

func dropDuplicates(t *table.Table, eff *Effect) error {
	mask := profile.DuplicateRowMask(t.Rows)
	kept := t.Rows[:0]
	for i, row := range t.Rows {
		if mask[i] {
			eff.RowsAffected++
			continue
		}
		kept = append(kept, row)
	}
	t.Rows = kept
	eff.ValuesChanged = eff.RowsAffected
	return nil
}

func fillMissing(t *table.Table, op plan.FillMissing, eff *Effect) error {
	idx, err := columnIndex(t, op.Column)
	if err != nil {
		return err
	}

	var fill string
	switch op.Strategy {
	case plan.StrategyMean, plan.StrategyMedian:
		nums := numericValues(t, idx)
		if len(nums) == 0 {
			return warning("no numeric values in %q to compute the %s", op.Column, op.Strategy)
		}
		if op.Strategy == plan.StrategyMean {
			sum := 0.0
			for _, n := range nums {
				sum += n
			}
			fill = formatNumber(sum / float64(len(nums)))
		} else {
			sort.Float64s(nums)
			fill = formatNumber(profile.Quantile(nums, 0.5))
		}
	case plan.StrategyMode:
		mode, ok := modeValue(t, idx)
		if !ok {
			return warning("no values in %q to compute the mode", op.Column)
		}
		fill = mode
	case plan.StrategyConstant:
		fill = op.Value
	default:
		return warning("unsupported fill strategy %q", op.Strategy)
	}

	for _, row := range t.Rows {
		if table.IsNull(row[idx]) {
			row[idx] = fill
			eff.RowsAffected++
		}
	}
	eff.ValuesChanged = eff.RowsAffected
	return nil
}

func numericValues(t *table.Table, idx int) []float64 {
	var out []float64
	for _, row := range t.Rows {
		if table.IsNull(row[idx]) {
			continue
		}
		if f, ok := profile.ParseNumber(row[idx]); ok {
			out = append(out, f)
		}
	}
	return out
}

// modeValue is the most frequent non-null value; ties go to the first seen
func modeValue(t *table.Table, idx int) (string, bool) {
	counts := make(map[string]int)
	var order []string
	for _, row := range t.Rows {
		v := row[idx]
		if table.IsNull(v) {
			continue
		}
		if counts[v] == 0 {
			order = append(order, v)
		}
		counts[v]++
	}
	best, bestCount := "", 0
	for _, v := range order {
		if counts[v] > bestCount {
			best, bestCount = v, counts[v]
		}
	}
	return best, bestCount > 0
}

func trimWhitespace(t *table.Table, op plan.TrimWhitespace, eff *Effect) error {
	cols := make([]int, 0, len(t.Header))
	if op.Column == "" {
		for i := range t.Header {
			cols = append(cols, i)
		}
	} else {
		idx, err := columnIndex(t, op.Column)
		if err != nil {
			return err
		}
		cols = append(cols, idx)
	}

	for _, row := range t.Rows {
		touched := false
		for _, i := range cols {
			if trimmed := strings.TrimSpace(row[i]); trimmed != row[i] {
				row[i] = trimmed
				eff.ValuesChanged++
				touched = true
			}
		}
		if touched {
			eff.RowsAffected++
		}
	}
	return nil
}

// castType converts every non-null value or none of them
func castType(t *table.Table, op plan.CastType, eff *Effect) error {
	idx, err := columnIndex(t, op.Column)
	if err != nil {
		return err
	}

	converted := make([]string, len(t.Rows))
	failures := 0
	firstBad := ""
	for r, row := range t.Rows {
		v := row[idx]
		if table.IsNull(v) {
			converted[r] = v
			continue
		}
		c, ok := convert(v, op.To)
		if !ok {
			if failures == 0 {
				firstBad = v
			}
			failures++
			continue
		}
		converted[r] = c
	}
	if failures > 0 {
		return warning("%d values in %q cannot be cast to %s (first: %q)", failures, op.Column, op.To, firstBad)
	}

	for r, row := range t.Rows {
		if row[idx] != converted[r] {
			row[idx] = converted[r]
			eff.ValuesChanged++
		}
	}
	eff.RowsAffected = eff.ValuesChanged
	return nil
}

func convert(v, target string) (string, bool) {
	switch target {
	case plan.TargetNumeric:
		f, ok := profile.ParseNumber(v)
		if !ok {
			return "", false
		}
		return formatNumber(f), true
	case plan.TargetInteger:
		f, ok := profile.ParseNumber(v)
		if !ok || f != math.Trunc(f) || math.Abs(f) >= 1<<63 {
			return "", false
		}
		return strconv.FormatInt(int64(f), 10), true
	case plan.TargetText:
		return v, true
	case plan.TargetDatetime:
		ts, hasClock, ok := profile.ParseDatetime(v)
		if !ok {
			return "", false
		}
		if hasClock {
			return ts.Format("2006-01-02T15:04:05Z07:00"), true
		}
		return ts.Format("2006-01-02"), true
	case plan.TargetBoolean:
		b, ok := profile.ParseBool(v)
		if !ok {
			return "", false
		}
		return strconv.FormatBool(b), true
	}
	return "", false
}

func clipOutliers(t *table.Table, op plan.ClipOutliers, eff *Effect) error {
	idx, err := columnIndex(t, op.Column)
	if err != nil {
		return err
	}
	if op.Lower >= op.Upper {
		return warning("lower bound %v is not below upper bound %v", op.Lower, op.Upper)
	}

	for _, row := range t.Rows {
		if table.IsNull(row[idx]) {
			continue
		}
		f, ok := profile.ParseNumber(row[idx])
		if !ok {
			continue
		}
		switch {
		case f < op.Lower:
			row[idx] = formatNumber(op.Lower)
		case f > op.Upper:
			row[idx] = formatNumber(op.Upper)
		default:
			continue
		}
		eff.ValuesChanged++
	}
	eff.RowsAffected = eff.ValuesChanged
	return nil
}

func dropColumn(t *table.Table, op plan.DropColumn, eff *Effect) error {
	idx, err := columnIndex(t, op.Column)
	if err != nil {
		return err
	}
	t.DropColumn(idx)
	eff.RowsAffected = len(t.Rows)
	eff.ValuesChanged = len(t.Rows)
	return nil
}
