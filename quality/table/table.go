// Package table decodes delimited text into an in-memory row set and encodes
// it back. Nulls are kept as their original tokens; IsNull decides.
package table

import (
	"encoding/csv"
	"fmt"
	"io"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"

	"github.com/teranos/dataq/errors"
)

// Table is a decoded dataset. Every row has len(Header) cells.
type Table struct {
	Header []string
	Rows   [][]string
	// Truncated is set when Read stopped at Options.MaxRows with rows remaining
	Truncated bool
}

// Options controls decoding
type Options struct {
	Comma   rune // 0 = ','
	MaxRows int  // 0 = read everything
}

var nullTokens = map[string]struct{}{
	"":     {},
	"NA":   {},
	"N/A":  {},
	"n/a":  {},
	"NaN":  {},
	"nan":  {},
	"null": {},
	"NULL": {},
	"Null": {},
	"None": {},
	"none": {},
}

// IsNull reports whether a cell is a missing value. Surrounding whitespace is
// ignored, so "  " and " NA " are null too.
func IsNull(v string) bool {
	_, ok := nullTokens[strings.TrimSpace(v)]
	return ok
}

// Read decodes r. The first record is the header. A UTF-8 byte order mark is
// dropped and UTF-16 input with a BOM is transcoded.
//
// Errors are marked with errors.ErrParse for undecodable input and
// errors.ErrEmptyDataset when there are no data rows.
func Read(r io.Reader, opts Options) (*Table, error) {
	decoded := transform.NewReader(r, unicode.BOMOverride(transform.Nop))

	cr := csv.NewReader(decoded)
	if opts.Comma != 0 {
		cr.Comma = opts.Comma
	}
	cr.FieldsPerRecord = -1

	header, err := cr.Read()
	if err == io.EOF {
		return nil, errors.Wrap(errors.ErrEmptyDataset, "no header row")
	}
	if err != nil {
		return nil, parseError(err)
	}
	if err := checkRecord(header, 1); err != nil {
		return nil, err
	}

	t := &Table{Header: normalizeHeader(header)}
	width := len(t.Header)

	for {
		rec, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, parseError(err)
		}

		if opts.MaxRows > 0 && len(t.Rows) == opts.MaxRows {
			t.Truncated = true
			break
		}

		line, _ := cr.FieldPos(0)
		if err := checkRecord(rec, line); err != nil {
			return nil, err
		}
		if len(rec) > width {
			return nil, errors.Mark(
				errors.Newf("line %d has %d fields, header has %d", line, len(rec), width),
				errors.ErrParse)
		}

		if len(rec) < width {
			padded := make([]string, width)
			copy(padded, rec)
			rec = padded
		}
		t.Rows = append(t.Rows, rec)
	}

	if len(t.Rows) == 0 {
		return nil, errors.Wrapf(errors.ErrEmptyDataset, "header has %d columns but no data rows", width)
	}
	return t, nil
}

func parseError(err error) error {
	var pe *csv.ParseError
	if errors.As(err, &pe) {
		return errors.Mark(errors.Newf("line %d, column %d: %s", pe.Line, pe.Column, pe.Err), errors.ErrParse)
	}
	return errors.Mark(errors.Wrap(err, "read csv"), errors.ErrParse)
}

// checkRecord rejects binary content: invalid UTF-8 or NUL bytes
func checkRecord(rec []string, line int) error {
	for i, v := range rec {
		if !utf8.ValidString(v) {
			return errors.Mark(errors.Newf("line %d, field %d: invalid UTF-8", line, i+1), errors.ErrParse)
		}
		if strings.IndexByte(v, 0) >= 0 {
			return errors.Mark(errors.Newf("line %d, field %d: NUL byte (binary file?)", line, i+1), errors.ErrParse)
		}
	}
	return nil
}

// normalizeHeader trims names, names blank columns column_N and suffixes
// repeated names with .1, .2, ...
func normalizeHeader(raw []string) []string {
	out := make([]string, len(raw))
	used := make(map[string]bool, len(raw))
	for i, h := range raw {
		name := strings.TrimSpace(h)
		if name == "" {
			name = fmt.Sprintf("column_%d", i+1)
		}
		candidate := name
		for n := 1; used[candidate]; n++ {
			candidate = fmt.Sprintf("%s.%d", name, n)
		}
		used[candidate] = true
		out[i] = candidate
	}
	return out
}

// Write encodes the table as CSV with a header row
func (t *Table) Write(w io.Writer) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(t.Header); err != nil {
		return errors.Wrap(err, "write header")
	}
	if err := cw.WriteAll(t.Rows); err != nil {
		return errors.Wrap(err, "write rows")
	}
	return nil
}

// Index returns the position of the named column, or -1
func (t *Table) Index(name string) int {
	for i, h := range t.Header {
		if h == name {
			return i
		}
	}
	return -1
}

// Column returns a copy of column i
func (t *Table) Column(i int) []string {
	out := make([]string, len(t.Rows))
	for r, row := range t.Rows {
		out[r] = row[i]
	}
	return out
}

// Clone deep-copies the table
func (t *Table) Clone() *Table {
	c := &Table{
		Header:    append([]string(nil), t.Header...),
		Rows:      make([][]string, len(t.Rows)),
		Truncated: t.Truncated,
	}
	for i, row := range t.Rows {
		c.Rows[i] = append([]string(nil), row...)
	}
	return c
}

// DropColumn removes column i from the header and every row
func (t *Table) DropColumn(i int) {
	t.Header = append(t.Header[:i:i], t.Header[i+1:]...)
	for r, row := range t.Rows {
		t.Rows[r] = append(row[:i:i], row[i+1:]...)
	}
}
