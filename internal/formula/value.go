package formula

import (
	"math"
	"strconv"
	"time"

	"dmsetl/internal/schema"
)

// Kind of a runtime Value.
type Kind int

const (
	Null Kind = iota
	Number
	String
	Date
	Bool
)

// Value is one cell during evaluation.
type Value struct {
	Kind Kind
	Num  float64
	Str  string
	Time time.Time
	B    bool
}

func num(f float64) Value     { return Value{Kind: Number, Num: f} }
func str(s string) Value      { return Value{Kind: String, Str: s} }
func date(t time.Time) Value  { return Value{Kind: Date, Time: t} }
func boolean(b bool) Value    { return Value{Kind: Bool, B: b} }
func (v Value) IsNull() bool  { return v.Kind == Null }
func (v Value) isEmpty() bool { return v.Kind == Null || (v.Kind == String && v.Str == "") }

// String renders a value the way it is stored back into the table.
func (v Value) String() string {
	switch v.Kind {
	case Number:
		return FormatNumber(v.Num)
	case String:
		return v.Str
	case Date:
		return v.Time.Format(schema.DateLayout)
	case Bool:
		if v.B {
			return "true"
		}
		return "false"
	}
	return ""
}

// FormatNumber prints integral values without a fraction.
func FormatNumber(f float64) string {
	if f == math.Trunc(f) && math.Abs(f) < 1e15 {
		return strconv.FormatInt(int64(f), 10)
	}
	return strconv.FormatFloat(f, 'f', -1, 64)
}

// coercer turns values into numbers, counting non-empty values that were
// not numeric.
type coercer struct {
	garbage int
}

func (c *coercer) number(v Value) float64 {
	switch v.Kind {
	case Number:
		return v.Num
	case Bool:
		if v.B {
			return 1
		}
		return 0
	case String:
		if v.Str == "" {
			return 0
		}
		if f, ok := schema.ParseNumber(v.Str); ok {
			return f
		}
	case Null:
		return 0
	}
	c.garbage++
	return 0
}

func truthy(v Value) bool {
	switch v.Kind {
	case Bool:
		return v.B
	case Number:
		return v.Num != 0
	case String:
		if b, ok := schema.ParseBool(v.Str); ok {
			return b
		}
		return v.Str != ""
	case Date:
		return !v.Time.IsZero()
	}
	return false
}
