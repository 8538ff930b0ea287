package profile

import (
	"math"
	"strconv"
	"strings"
	"time"
)

// DatetimeLayouts are the recognized date/time grammars, tried in order
var DatetimeLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
	"2006-01-02",
	"2006/01/02",
	"01/02/2006",
	"1/2/2006",
	"01/02/2006 15:04:05",
	"02-Jan-2006",
	"Jan 2, 2006",
}

// ParseNumber parses a finite number, ignoring surrounding whitespace
func ParseNumber(v string) (float64, bool) {
	f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}

// ParseDatetime parses v with the first matching layout.
// Reports whether the layout carried a time of day.
func ParseDatetime(v string) (t time.Time, hasClock bool, ok bool) {
	v = strings.TrimSpace(v)
	if len(v) < 6 {
		return time.Time{}, false, false
	}
	for _, layout := range DatetimeLayouts {
		if parsed, err := time.Parse(layout, v); err == nil {
			return parsed, strings.Contains(layout, "15"), true
		}
	}
	return time.Time{}, false, false
}

var boolWords = map[string]bool{
	"true": true, "false": false,
	"yes": true, "no": false,
	"y": true, "n": false,
	"t": true, "f": false,
}

// ParseBool maps the boolean vocabulary (true/false, yes/no, y/n, t/f) case-insensitively
func ParseBool(v string) (value bool, ok bool) {
	value, ok = boolWords[strings.ToLower(strings.TrimSpace(v))]
	return value, ok
}
