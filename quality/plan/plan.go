// Package plan defines the closed vocabulary of cleaning operations and
// validates untrusted operation proposals against a dataset's column profiles.
package plan

import (
	"fmt"

	"github.com/teranos/dataq/errors"
)

// Kind names an operation on the wire
type Kind string

const (
	KindDropDuplicates Kind = "drop-duplicates"
	KindFillMissing    Kind = "fill-missing"
	KindTrimWhitespace Kind = "trim-whitespace"
	KindCastType       Kind = "cast-type"
	KindClipOutliers   Kind = "clip-outliers"
	KindDropColumn     Kind = "drop-column"
)

// Kinds lists the implemented operations in the order they are documented to
// the generation service.
var Kinds = []Kind{
	KindDropDuplicates,
	KindFillMissing,
	KindTrimWhitespace,
	KindCastType,
	KindClipOutliers,
	KindDropColumn,
}

// Fill strategies
const (
	StrategyMean     = "mean"
	StrategyMedian   = "median"
	StrategyMode     = "mode"
	StrategyConstant = "constant"
)

// Cast targets
const (
	TargetNumeric  = "numeric"
	TargetInteger  = "integer"
	TargetText     = "text"
	TargetDatetime = "datetime"
	TargetBoolean  = "boolean"
)

// Operation is one validated cleaning step. The set of implementations is
// sealed; consumers switch on the concrete type.
type Operation interface {
	Kind() Kind
	// ColumnName is the column the operation touches, empty for whole-table ops
	ColumnName() string
	sealed()
}

// DropDuplicates removes exact duplicate rows, keeping the first occurrence
type DropDuplicates struct{}

// FillMissing replaces nulls in Column
type FillMissing struct {
	Column   string
	Strategy string
	Value    string // constant strategy only
}

// TrimWhitespace strips surrounding whitespace. An empty Column means every
// column.
type TrimWhitespace struct {
	Column string
}

// CastType normalizes every non-null value of Column to To
type CastType struct {
	Column string
	To     string
}

// ClipOutliers bounds numeric values of Column to [Lower, Upper]
type ClipOutliers struct {
	Column string
	Lower  float64
	Upper  float64
}

// DropColumn removes Column
type DropColumn struct {
	Column string
}

func (DropDuplicates) Kind() Kind { return KindDropDuplicates }
func (FillMissing) Kind() Kind    { return KindFillMissing }
func (TrimWhitespace) Kind() Kind { return KindTrimWhitespace }
func (CastType) Kind() Kind       { return KindCastType }
func (ClipOutliers) Kind() Kind   { return KindClipOutliers }
func (DropColumn) Kind() Kind     { return KindDropColumn }

func (DropDuplicates) ColumnName() string   { return "" }
func (o FillMissing) ColumnName() string    { return o.Column }
func (o TrimWhitespace) ColumnName() string { return o.Column }
func (o CastType) ColumnName() string       { return o.Column }
func (o ClipOutliers) ColumnName() string   { return o.Column }
func (o DropColumn) ColumnName() string     { return o.Column }

func (DropDuplicates) sealed() {}
func (FillMissing) sealed()    {}
func (TrimWhitespace) sealed() {}
func (CastType) sealed()       {}
func (ClipOutliers) sealed()   {}
func (DropColumn) sealed()     {}

// Raw is the wire form of an operation as proposed by the generation service
// or a user-supplied plan file.
type Raw struct {
	OperationType string         `json:"operation_type" yaml:"operation_type"`
	Column        string         `json:"column,omitempty" yaml:"column,omitempty"`
	Parameters    map[string]any `json:"parameters,omitempty" yaml:"parameters,omitempty"`
}

// Violation is one reason a plan was rejected
type Violation struct {
	Index         int    `json:"index" yaml:"index"`
	OperationType string `json:"operation_type" yaml:"operation_type"`
	Column        string `json:"column,omitempty" yaml:"column,omitempty"`
	Reason        string `json:"reason" yaml:"reason"`
}

func (v Violation) String() string {
	if v.Column != "" {
		return fmt.Sprintf("step %d (%s on %q): %s", v.Index, v.OperationType, v.Column, v.Reason)
	}
	return fmt.Sprintf("step %d (%s): %s", v.Index, v.OperationType, v.Reason)
}

// ValidationError rejects an entire plan
type ValidationError struct {
	Violations []Violation
}

func (e *ValidationError) Error() string {
	switch len(e.Violations) {
	case 0:
		return "plan validation failed"
	case 1:
		return "plan validation failed: " + e.Violations[0].String()
	default:
		return fmt.Sprintf("plan validation failed: %s (and %d more)", e.Violations[0].String(), len(e.Violations)-1)
	}
}

// Is lets errors.Is match the plan validation sentinel
func (e *ValidationError) Is(target error) bool {
	return target == errors.ErrPlanValidation
}

// Encode converts validated operations back to wire form for persistence
func Encode(ops []Operation) []Raw {
	out := make([]Raw, 0, len(ops))
	for _, op := range ops {
		r := Raw{OperationType: string(op.Kind()), Column: op.ColumnName()}
		switch o := op.(type) {
		case FillMissing:
			r.Parameters = map[string]any{"strategy": o.Strategy}
			if o.Strategy == StrategyConstant {
				r.Parameters["value"] = o.Value
			}
		case CastType:
			r.Parameters = map[string]any{"target": o.To}
		case ClipOutliers:
			r.Parameters = map[string]any{"lower": o.Lower, "upper": o.Upper}
		}
		out = append(out, r)
	}
	return out
}
