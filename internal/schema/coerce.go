package schema

import (
	"math"
	"strconv"
	"strings"
	"time"
)

// DateLayout is the canonical DMY rendering of a date value.
const DateLayout = "02/01/2006"

var dmyLayouts = []string{
	"2/1/2006",
	"2-1-2006",
	"2.1.2006",
	"2/1/06",
}

var dmyTimeSuffixes = []string{"", " 15:04:05", " 15:04", " 3:04:05 PM", " 3:04 PM"}

// ParseDate parses a day/month/year date, optionally followed by a time of
// day that is discarded. Other orders are rejected on purpose.
func ParseDate(s string) (time.Time, bool) {
	t, ok := ParseTimestamp(s)
	if !ok {
		return time.Time{}, false
	}
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC), true
}

// ParseTimestamp parses a day/month/year date with an optional time of day.
func ParseTimestamp(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	for _, d := range dmyLayouts {
		for _, suf := range dmyTimeSuffixes {
			if t, err := time.Parse(d+suf, s); err == nil {
				return t, true
			}
		}
	}
	return time.Time{}, false
}

// ParseDateOrder parses a date written in the given field order
// ("DMY", "MDY" or "YMD"; case-insensitive).
func ParseDateOrder(s, order string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if i := strings.IndexByte(s, ' '); i > 0 {
		s = s[:i]
	}
	parts := strings.FieldsFunc(s, func(r rune) bool { return r == '/' || r == '-' || r == '.' })
	if len(parts) != 3 {
		return time.Time{}, false
	}
	nums := make([]int, 3)
	for i, p := range parts {
		n, err := strconv.Atoi(p)
		if err != nil {
			return time.Time{}, false
		}
		nums[i] = n
	}

	var d, m, y int
	switch strings.ToUpper(order) {
	case "DMY":
		d, m, y = nums[0], nums[1], nums[2]
	case "MDY":
		m, d, y = nums[0], nums[1], nums[2]
	case "YMD":
		y, m, d = nums[0], nums[1], nums[2]
	default:
		return time.Time{}, false
	}
	if y < 100 {
		y += 2000
	}
	t := time.Date(y, time.Month(m), d, 0, 0, 0, 0, time.UTC)
	if t.Day() != d || int(t.Month()) != m || t.Year() != y {
		return time.Time{}, false
	}
	return t, true
}

// ParseNumber parses a numeric export value. Thousands separators, currency
// signs, percent signs and spaces are ignored; "(12.5)" and "12.5-" are
// negative.
func ParseNumber(s string) (float64, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, false
	}
	neg := false
	if strings.HasPrefix(s, "(") && strings.HasSuffix(s, ")") {
		neg, s = true, s[1:len(s)-1]
	}
	if strings.HasSuffix(s, "-") {
		neg, s = !neg, s[:len(s)-1]
	}

	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		switch r {
		case ',', '$', '%', ' ', '\u00a0':
			continue
		}
		b.WriteRune(r)
	}
	clean := b.String()
	if clean == "" || clean == "-" || clean == "+" {
		return 0, false
	}
	f, err := strconv.ParseFloat(clean, 64)
	if err != nil || math.IsInf(f, 0) || math.IsNaN(f) {
		return 0, false
	}
	if neg {
		f = -f
	}
	return f, true
}

// ParseBool accepts 1/0 and common word forms.
func ParseBool(s string) (bool, bool) {
	switch strings.TrimSpace(s) {
	case "1":
		return true, true
	case "0":
		return false, true
	}
	return parseBoolWord(s)
}

// Coerce converts string values to Go values matching t. The result holds
// nil for NULL, string, int64, float64, time.Time or bool.
//
// Character columns keep their text; every other kind turns empty or
// unparseable values into NULL. The second result counts non-empty values
// that became NULL.
func Coerce(values []string, t ColumnType) ([]any, int) {
	out := make([]any, len(values))
	lost := 0
	for i, v := range values {
		if t.IsChar() {
			out[i] = v
			continue
		}
		c, ok := coerceOne(v, t)
		if !ok && strings.TrimSpace(v) != "" {
			lost++
		}
		out[i] = c
	}
	return out, lost
}

// inIntRange reports whether a rounded value fits the column: 32 bits for
// INTEGER, 64 for BIGINT.
func inIntRange(n float64, k Kind) bool {
	if math.IsNaN(n) {
		return false
	}
	if k == KindInteger {
		return n >= math.MinInt32 && n <= math.MaxInt32
	}
	return n >= -(1<<63) && n < 1<<63
}

func coerceOne(v string, t ColumnType) (any, bool) {
	switch t.Kind {
	case KindInteger, KindBigInt:
		f, ok := ParseNumber(v)
		if !ok {
			return nil, false
		}
		n := math.Round(f)
		if !inIntRange(n, t.Kind) {
			return nil, false
		}
		return int64(n), true
	case KindNumeric:
		f, ok := ParseNumber(v)
		if !ok {
			return nil, false
		}
		p := math.Pow(10, float64(t.Scale))
		return math.Round(f*p) / p, true
	case KindFloat:
		f, ok := ParseNumber(v)
		if !ok {
			return nil, false
		}
		return f, true
	case KindDate:
		d, ok := ParseDate(v)
		if !ok {
			return nil, false
		}
		return d, true
	case KindTimestamp:
		ts, ok := ParseTimestamp(v)
		if !ok {
			return nil, false
		}
		return ts, true
	case KindBoolean:
		b, ok := ParseBool(v)
		if !ok {
			return nil, false
		}
		return b, true
	}
	return v, true
}
