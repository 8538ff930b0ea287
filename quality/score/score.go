// Package score turns a profiling result into a quality score in [0,100].
package score

import (
	"math"
	"sort"

	"github.com/teranos/dataq/quality"
)

const (
	missingWeight   = 50.0
	duplicateCap    = 20.0
	structuralCap   = 15.0
	maxScore        = 100.0
	severityLowW    = 2.0
	severityMediumW = 5.0
	severityHighW   = 10.0
)

// Input is what the scorer needs from a profiling run
type Input struct {
	Rows          int
	Columns       int
	NullCells     int
	DuplicateRows int
	Issues        []quality.Issue
}

// Breakdown itemizes the penalties behind a score
type Breakdown struct {
	Missing    float64                       `json:"missing" yaml:"missing"`
	Duplicate  float64                       `json:"duplicate" yaml:"duplicate"`
	Structural map[quality.IssueType]float64 `json:"structural,omitempty" yaml:"structural,omitempty"`
	Score      float64                       `json:"score" yaml:"score"`
}

// FromColumns builds an Input, summing null cells across column profiles
func FromColumns(rows int, columns []quality.ColumnProfile, duplicateRows int, issues []quality.Issue) Input {
	nulls := 0
	for _, c := range columns {
		nulls += c.NullCount
	}
	return Input{
		Rows:          rows,
		Columns:       len(columns),
		NullCells:     nulls,
		DuplicateRows: duplicateRows,
		Issues:        issues,
	}
}

// Score returns the quality score for in
func Score(in Input) float64 {
	return Compute(in).Score
}

// Compute returns the score with its penalty breakdown.
// Missing values and duplicate rows are penalized from the raw counts, so
// their issue entries do not count again as structural penalties.
func Compute(in Input) Breakdown {
	b := Breakdown{Structural: make(map[quality.IssueType]float64)}

	if cells := in.Rows * in.Columns; cells > 0 {
		b.Missing = missingWeight * float64(in.NullCells) / float64(cells)
	}
	if in.Rows > 0 {
		b.Duplicate = math.Min(duplicateCap, maxScore*float64(in.DuplicateRows)/float64(in.Rows))
	}

	for _, issue := range in.Issues {
		switch issue.Type {
		case quality.IssueMissingValues, quality.IssueDuplicateRows:
			continue
		}
		b.Structural[issue.Type] = math.Min(structuralCap, b.Structural[issue.Type]+weight(issue.Severity))
	}

	total := b.Missing + b.Duplicate
	types := make([]string, 0, len(b.Structural))
	for t := range b.Structural {
		types = append(types, string(t))
	}
	sort.Strings(types)
	for _, t := range types {
		total += b.Structural[quality.IssueType(t)]
	}
	b.Score = round1(clamp(maxScore-total, 0, maxScore))
	return b
}

func weight(s quality.Severity) float64 {
	switch s {
	case quality.SeverityHigh:
		return severityHighW
	case quality.SeverityMedium:
		return severityMediumW
	default:
		return severityLowW
	}
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}

func round1(v float64) float64 {
	return math.Round(v*10) / 10
}
