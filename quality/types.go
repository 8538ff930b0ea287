// Package quality holds the shared vocabulary of the dataset quality pipeline:
// column types, column profiles and issues. The stages live in subpackages:
// table (codec), profile, score, plan, clean and explain.
package quality

import (
	"sort"
	"time"

	"github.com/teranos/dataq/errors"
)

// ColumnType is the inferred type of a column
type ColumnType string

const (
	TypeNumeric     ColumnType = "numeric"
	TypeDatetime    ColumnType = "datetime"
	TypeBoolean     ColumnType = "boolean"
	TypeCategorical ColumnType = "categorical"
	TypeText        ColumnType = "text"
)

// IssueType is drawn from a closed set
type IssueType string

const (
	IssueMissingValues     IssueType = "missing-values"
	IssueDuplicateRows     IssueType = "duplicate-rows"
	IssueTypeMismatch      IssueType = "type-mismatch"
	IssueOutlierValue      IssueType = "outlier-value"
	IssueConstantColumn    IssueType = "constant-column"
	IssueHighCardinalityID IssueType = "high-cardinality-id"
	IssueReferentialGap    IssueType = "referential-gap"
	IssueLongText          IssueType = "long-text"
)

// Severity orders issues for display and weights structural score penalties
type Severity int

const (
	SeverityLow Severity = iota + 1
	SeverityMedium
	SeverityHigh
)

func (s Severity) String() string {
	switch s {
	case SeverityLow:
		return "low"
	case SeverityMedium:
		return "medium"
	case SeverityHigh:
		return "high"
	default:
		return "unknown"
	}
}

// MarshalText encodes the severity by name in JSON and YAML
func (s Severity) MarshalText() ([]byte, error) {
	if s < SeverityLow || s > SeverityHigh {
		return nil, errors.Newf("invalid severity %d", int(s))
	}
	return []byte(s.String()), nil
}

// UnmarshalText decodes a severity name
func (s *Severity) UnmarshalText(text []byte) error {
	switch string(text) {
	case "low":
		*s = SeverityLow
	case "medium":
		*s = SeverityMedium
	case "high":
		*s = SeverityHigh
	default:
		return errors.Newf("unknown severity %q", string(text))
	}
	return nil
}

// Issue is one detected quality defect
type Issue struct {
	Type     IssueType `json:"type" yaml:"type"`
	Column   string    `json:"column,omitempty" yaml:"column,omitempty"`
	Message  string    `json:"message" yaml:"message"`
	Severity Severity  `json:"severity" yaml:"severity"`
	Count    int       `json:"count" yaml:"count"`
	Ratio    float64   `json:"ratio" yaml:"ratio"`
}

// SortIssues orders issues by severity descending. The sort is stable, so
// equal severities keep detection order.
func SortIssues(issues []Issue) {
	sort.SliceStable(issues, func(i, j int) bool {
		return issues[i].Severity > issues[j].Severity
	})
}

// ValueCount is one entry of a top-values list
type ValueCount struct {
	Value string `json:"value" yaml:"value"`
	Count int    `json:"count" yaml:"count"`
}

// ColumnProfile holds per-column statistics from one profiling run
type ColumnProfile struct {
	Name           string     `json:"name" yaml:"name"`
	Type           ColumnType `json:"type" yaml:"type"`
	NullCount      int        `json:"null_count" yaml:"null_count"`
	DistinctCount  int        `json:"distinct_count" yaml:"distinct_count"`
	DistinctCapped bool       `json:"distinct_capped,omitempty" yaml:"distinct_capped,omitempty"`
	InvalidCount   int        `json:"invalid_count" yaml:"invalid_count"`
	OutlierCount   int        `json:"outlier_count" yaml:"outlier_count"`
	MaxLength      int        `json:"max_length" yaml:"max_length"`

	// Numeric columns
	Min        *float64 `json:"min,omitempty" yaml:"min,omitempty"`
	Max        *float64 `json:"max,omitempty" yaml:"max,omitempty"`
	Mean       *float64 `json:"mean,omitempty" yaml:"mean,omitempty"`
	StdDev     *float64 `json:"stddev,omitempty" yaml:"stddev,omitempty"`
	LowerFence *float64 `json:"lower_fence,omitempty" yaml:"lower_fence,omitempty"`
	UpperFence *float64 `json:"upper_fence,omitempty" yaml:"upper_fence,omitempty"`

	// Datetime columns
	Earliest *time.Time `json:"earliest,omitempty" yaml:"earliest,omitempty"`
	Latest   *time.Time `json:"latest,omitempty" yaml:"latest,omitempty"`

	// Boolean, categorical and text columns
	TopValues []ValueCount `json:"top_values,omitempty" yaml:"top_values,omitempty"`
}

// FindColumn returns the profile named name, or nil
func FindColumn(columns []ColumnProfile, name string) *ColumnProfile {
	for i := range columns {
		if columns[i].Name == name {
			return &columns[i]
		}
	}
	return nil
}
