package plan

import (
	"encoding/json"
	"fmt"
	"math"
	"slices"
	"sort"
	"strconv"
	"strings"

	"github.com/teranos/dataq/quality"
)

var allowedParams = map[Kind][]string{
	KindDropDuplicates: nil,
	KindFillMissing:    {"strategy", "value"},
	KindTrimWhitespace: nil,
	KindCastType:       {"target"},
	KindClipOutliers:   {"lower", "upper"},
	KindDropColumn:     nil,
}

var targetAliases = map[string]string{
	TargetNumeric:  TargetNumeric,
	"float":        TargetNumeric,
	"double":       TargetNumeric,
	"number":       TargetNumeric,
	TargetInteger:  TargetInteger,
	"int":          TargetInteger,
	TargetText:     TargetText,
	"string":       TargetText,
	"str":          TargetText,
	TargetDatetime: TargetDatetime,
	"date":         TargetDatetime,
	TargetBoolean:  TargetBoolean,
	"bool":         TargetBoolean,
}

// NormalizeKind case-folds an operation type and maps '_' to '-'
func NormalizeKind(s string) Kind {
	return Kind(strings.ReplaceAll(strings.ToLower(strings.TrimSpace(s)), "_", "-"))
}

// Validate checks every raw operation against columns and returns the typed
// plan. Any violation rejects the whole plan with a *ValidationError listing
// every problem found.
func Validate(raws []Raw, columns []quality.ColumnProfile) ([]Operation, error) {
	v := &validator{
		types:   make(map[string]quality.ColumnType, len(columns)),
		dropped: make(map[string]bool),
	}
	for _, c := range columns {
		v.types[c.Name] = c.Type
	}

	ops := make([]Operation, 0, len(raws))
	for i, raw := range raws {
		if op := v.check(i, raw); op != nil {
			ops = append(ops, op)
		}
	}
	if len(v.violations) > 0 {
		return nil, &ValidationError{Violations: v.violations}
	}
	return ops, nil
}

type validator struct {
	types      map[string]quality.ColumnType
	dropped    map[string]bool
	violations []Violation
	failed     bool
}

func (v *validator) reject(i int, raw Raw, column, format string, args ...any) {
	v.violations = append(v.violations, Violation{
		Index:         i,
		OperationType: raw.OperationType,
		Column:        column,
		Reason:        fmt.Sprintf(format, args...),
	})
	v.failed = true
}

func (v *validator) check(i int, raw Raw) Operation {
	v.failed = false
	kind := NormalizeKind(raw.OperationType)
	allowed, known := allowedParams[kind]
	if !known {
		v.reject(i, raw, raw.Column, "unknown operation type %q", raw.OperationType)
		return nil
	}

	params := raw.Parameters
	column := strings.TrimSpace(raw.Column)
	if column == "" {
		if s, ok := params["column"].(string); ok {
			column = strings.TrimSpace(s)
		}
	}
	for _, key := range sortedKeys(params) {
		if key == "column" || slices.Contains(allowed, key) {
			continue
		}
		v.reject(i, raw, column, "unknown parameter %q", key)
	}

	switch kind {
	case KindDropDuplicates:
		if column != "" {
			v.reject(i, raw, column, "drop-duplicates applies to whole rows and takes no column")
		}
		if v.failed {
			return nil
		}
		return DropDuplicates{}

	case KindTrimWhitespace:
		if column != "" {
			v.requireColumn(i, raw, column)
		}
		if v.failed {
			return nil
		}
		return TrimWhitespace{Column: column}

	case KindDropColumn:
		if !v.requireColumn(i, raw, column) {
			return nil
		}
		if v.failed {
			return nil
		}
		v.dropped[column] = true
		return DropColumn{Column: column}

	case KindFillMissing:
		ok := v.requireColumn(i, raw, column)
		strategy, _ := params["strategy"].(string)
		strategy = strings.ToLower(strings.TrimSpace(strategy))
		op := FillMissing{Column: column, Strategy: strategy}
		switch strategy {
		case StrategyMean, StrategyMedian:
			if ok && v.types[column] != quality.TypeNumeric {
				v.reject(i, raw, column, "%s fill requires a numeric column, %q is %s", strategy, column, v.types[column])
			}
		case StrategyMode:
		case StrategyConstant:
			value, present := params["value"]
			if !present || value == nil {
				v.reject(i, raw, column, "constant fill requires a value")
			} else if s, valid := scalarString(value); valid {
				op.Value = s
			} else {
				v.reject(i, raw, column, "constant fill value must be a string, number or boolean")
			}
		case "":
			v.reject(i, raw, column, "fill-missing requires a strategy")
		default:
			v.reject(i, raw, column, "unknown fill strategy %q", strategy)
		}
		if strategy != StrategyConstant {
			if _, present := params["value"]; present {
				v.reject(i, raw, column, "value is only valid with the constant strategy")
			}
		}
		if v.failed {
			return nil
		}
		return op

	case KindCastType:
		ok := v.requireColumn(i, raw, column)
		target, _ := params["target"].(string)
		canonical, known := targetAliases[strings.ToLower(strings.TrimSpace(target))]
		if !known {
			v.reject(i, raw, column, "unsupported cast target %q", target)
		}
		if v.failed || !ok {
			return nil
		}
		v.types[column] = castResultType(canonical)
		return CastType{Column: column, To: canonical}

	case KindClipOutliers:
		ok := v.requireColumn(i, raw, column)
		if ok && v.types[column] != quality.TypeNumeric {
			v.reject(i, raw, column, "clip-outliers requires a numeric column, %q is %s", column, v.types[column])
		}
		lower, lok := number(params["lower"])
		upper, uok := number(params["upper"])
		switch {
		case !lok || !uok:
			v.reject(i, raw, column, "clip-outliers requires finite numeric lower and upper bounds")
		case lower >= upper:
			v.reject(i, raw, column, "lower bound %v must be below upper bound %v", lower, upper)
		}
		if v.failed {
			return nil
		}
		return ClipOutliers{Column: column, Lower: lower, Upper: upper}
	}

	v.reject(i, raw, column, "unhandled operation type %q", kind)
	return nil
}

// requireColumn reports whether column names a live column
func (v *validator) requireColumn(i int, raw Raw, column string) bool {
	switch {
	case column == "":
		v.reject(i, raw, column, "column is required")
		return false
	case v.dropped[column]:
		v.reject(i, raw, column, "column %q was dropped by an earlier step", column)
		return false
	}
	if _, ok := v.types[column]; !ok {
		v.reject(i, raw, column, "column %q does not exist", column)
		return false
	}
	return true
}

func castResultType(target string) quality.ColumnType {
	switch target {
	case TargetNumeric, TargetInteger:
		return quality.TypeNumeric
	case TargetDatetime:
		return quality.TypeDatetime
	case TargetBoolean:
		return quality.TypeBoolean
	default:
		return quality.TypeText
	}
}

// number accepts JSON/YAML numbers and numeric strings, finite only
func number(v any) (float64, bool) {
	var f float64
	switch n := v.(type) {
	case float64:
		f = n
	case float32:
		f = float64(n)
	case int:
		f = float64(n)
	case int64:
		f = float64(n)
	case uint64:
		f = float64(n)
	case json.Number:
		parsed, err := n.Float64()
		if err != nil {
			return 0, false
		}
		f = parsed
	case string:
		parsed, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
		if err != nil {
			return 0, false
		}
		f = parsed
	default:
		return 0, false
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}

func scalarString(v any) (string, bool) {
	switch s := v.(type) {
	case string:
		return s, true
	case bool:
		return strconv.FormatBool(s), true
	}
	if f, ok := number(v); ok {
		return strconv.FormatFloat(f, 'f', -1, 64), true
	}
	return "", false
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
