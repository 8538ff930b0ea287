// Package profile infers column types and statistics from a decoded table and
// detects quality issues.
package profile

import (
	"io"
	"sort"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/teranos/dataq/am"
	"github.com/teranos/dataq/quality"
	"github.com/teranos/dataq/quality/table"
)

// Options tunes inference and detection
type Options struct {
	MaxDistinct      int     // bound of the per-column distinct set
	ReservoirSize    int     // numeric sample used for quartiles
	TypeThreshold    float64 // share of non-null values that must parse for numeric/datetime
	CategoricalRatio float64 // distinct/rows below this is categorical
	IQRMultiplier    float64
	IDRatio          float64 // distinct/rows at or above this flags high-cardinality-id
	MinRowsForID     int
	LongTextLength   int
	RequireKey       bool // report a referential-gap when no key column exists
}

// DefaultOptions mirrors the am profile defaults
func DefaultOptions() Options {
	return Options{
		MaxDistinct:      10000,
		ReservoirSize:    10000,
		TypeThreshold:    0.95,
		CategoricalRatio: 0.5,
		IQRMultiplier:    1.5,
		IDRatio:          0.99,
		MinRowsForID:     10,
		LongTextLength:   255,
	}
}

// OptionsFromConfig builds Options from the profile config section
func OptionsFromConfig(c am.ProfileConfig) Options {
	opts := DefaultOptions()
	if c.MaxDistinct > 0 {
		opts.MaxDistinct = c.MaxDistinct
	}
	if c.ReservoirSize > 0 {
		opts.ReservoirSize = c.ReservoirSize
	}
	if c.TypeThreshold > 0 {
		opts.TypeThreshold = c.TypeThreshold
	}
	if c.CategoricalRatio > 0 {
		opts.CategoricalRatio = c.CategoricalRatio
	}
	if c.IQRMultiplier > 0 {
		opts.IQRMultiplier = c.IQRMultiplier
	}
	if c.IDRatio > 0 {
		opts.IDRatio = c.IDRatio
	}
	if c.LongTextLength > 0 {
		opts.LongTextLength = c.LongTextLength
	}
	opts.RequireKey = c.RequireKey
	return opts
}

// Result is the output of one profiling run
type Result struct {
	RowCount      int                     `json:"row_count"`
	ColumnCount   int                     `json:"column_count"`
	Sampled       bool                    `json:"sampled"`
	DuplicateRows int                     `json:"duplicate_rows"`
	KeyColumn     string                  `json:"key_column,omitempty"`
	Columns       []quality.ColumnProfile `json:"columns"`
	Issues        []quality.Issue         `json:"issues"`
}

// Read decodes r with at most sampleRows data rows (0 = all) and profiles it
func Read(r io.Reader, sampleRows int, opts Options) (*Result, error) {
	t, err := table.Read(r, table.Options{MaxRows: sampleRows})
	if err != nil {
		return nil, err
	}
	return Profile(t, opts), nil
}

// Profile computes column profiles and the ordered issue list for t.
// It is deterministic: the same table always yields the same result.
func Profile(t *table.Table, opts Options) *Result {
	res := &Result{
		RowCount:    len(t.Rows),
		ColumnCount: len(t.Header),
		Sampled:     t.Truncated,
		Columns:     make([]quality.ColumnProfile, len(t.Header)),
	}

	stats := make([]*columnStats, len(t.Header))
	for i, name := range t.Header {
		stats[i] = newColumnStats(name, opts, uint64(i)+1)
	}
	for _, row := range t.Rows {
		for i, v := range row {
			stats[i].observe(v)
		}
	}
	for i, s := range stats {
		res.Columns[i] = s.finish(len(t.Rows), opts)
	}

	res.KeyColumn = findKeyColumn(t.Header)
	res.DuplicateRows = countDuplicateRows(t)
	res.Issues = detect(t, res, stats, opts)
	return res
}

// columnStats accumulates one column in a single pass
type columnStats struct {
	name        string
	maxDistinct int

	nulls    int
	nonNull  int
	distinct map[string]int
	capped   bool

	numericOK  int
	num        welford
	numbers    []float64
	sample     *reservoir
	datetimeOK int
	earliest   time.Time
	latest     time.Time
	boolOK     int
	lowered    map[string]struct{}

	maxLength int
	longCount int
	longLimit int
}

func newColumnStats(name string, opts Options, seed uint64) *columnStats {
	return &columnStats{
		name:        name,
		maxDistinct: opts.MaxDistinct,
		distinct:    make(map[string]int),
		sample:      newReservoir(opts.ReservoirSize, seed),
		lowered:     make(map[string]struct{}),
		longLimit:   opts.LongTextLength,
	}
}

func (s *columnStats) observe(v string) {
	if table.IsNull(v) {
		s.nulls++
		return
	}
	s.nonNull++

	if _, ok := s.distinct[v]; ok {
		s.distinct[v]++
	} else if len(s.distinct) < s.maxDistinct {
		s.distinct[v] = 1
	} else {
		s.capped = true
	}

	if n := utf8.RuneCountInString(v); n > s.maxLength {
		s.maxLength = n
	}
	if s.longLimit > 0 && utf8.RuneCountInString(v) > s.longLimit {
		s.longCount++
	}

	if f, ok := ParseNumber(v); ok {
		s.numericOK++
		s.num.add(f)
		s.numbers = append(s.numbers, f)
		s.sample.add(f)
	}
	if ts, _, ok := ParseDatetime(v); ok {
		s.datetimeOK++
		if s.datetimeOK == 1 || ts.Before(s.earliest) {
			s.earliest = ts
		}
		if s.datetimeOK == 1 || ts.After(s.latest) {
			s.latest = ts
		}
	}
	if _, ok := ParseBool(v); ok {
		s.boolOK++
		if len(s.lowered) <= 2 {
			s.lowered[strings.ToLower(strings.TrimSpace(v))] = struct{}{}
		}
	}
}

func (s *columnStats) inferType(rows int, opts Options) quality.ColumnType {
	if s.nonNull == 0 {
		return quality.TypeText
	}
	share := func(n int) float64 { return float64(n) / float64(s.nonNull) }

	switch {
	case share(s.numericOK) >= opts.TypeThreshold:
		return quality.TypeNumeric
	case share(s.datetimeOK) >= opts.TypeThreshold:
		return quality.TypeDatetime
	case s.boolOK == s.nonNull && len(s.lowered) <= 2:
		return quality.TypeBoolean
	case !s.capped && float64(len(s.distinct))/float64(rows) < opts.CategoricalRatio:
		return quality.TypeCategorical
	default:
		return quality.TypeText
	}
}

func (s *columnStats) finish(rows int, opts Options) quality.ColumnProfile {
	p := quality.ColumnProfile{
		Name:           s.name,
		Type:           s.inferType(rows, opts),
		NullCount:      s.nulls,
		DistinctCount:  len(s.distinct),
		DistinctCapped: s.capped,
		MaxLength:      s.maxLength,
	}

	switch p.Type {
	case quality.TypeNumeric:
		p.InvalidCount = s.nonNull - s.numericOK
		minV, maxV, mean, sd := s.num.min, s.num.max, s.num.mean, s.num.stddev()
		p.Min, p.Max, p.Mean, p.StdDev = &minV, &maxV, &mean, &sd
		if lower, upper, ok := iqrFences(s.sample.values, opts.IQRMultiplier); ok {
			p.LowerFence, p.UpperFence = &lower, &upper
			for _, x := range s.numbers {
				if x < lower || x > upper {
					p.OutlierCount++
				}
			}
		}
	case quality.TypeDatetime:
		p.InvalidCount = s.nonNull - s.datetimeOK
		earliest, latest := s.earliest, s.latest
		p.Earliest, p.Latest = &earliest, &latest
	default:
		p.TopValues = topValues(s.distinct, 5, p.Type == quality.TypeText)
	}

	// numbers are only needed for the outlier pass
	s.numbers = nil
	return p
}

// topValues returns the n most frequent values, ties broken by value.
// repeatedOnly drops singletons, which say nothing about free text.
func topValues(counts map[string]int, n int, repeatedOnly bool) []quality.ValueCount {
	out := make([]quality.ValueCount, 0, len(counts))
	for v, c := range counts {
		if repeatedOnly && c < 2 {
			continue
		}
		out = append(out, quality.ValueCount{Value: v, Count: c})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].Value < out[j].Value
	})
	if len(out) > n {
		out = out[:n]
	}
	if len(out) == 0 {
		return nil
	}
	return out
}
