package formula

import (
	"fmt"
	"math"
	"strings"
	"time"

	"dmsetl/internal/schema"
)

// Columns supplies column values to an evaluation.
type Columns interface {
	// Values returns the values of the named column, or false when the
	// column does not exist.
	Values(name string) ([]string, bool)
	// IsDate reports whether the named column is declared as a date.
	IsDate(name string) bool
}

// Eval evaluates e for rows [0, n) and returns the rendered results plus
// the number of warnings (non-numeric operands coerced to zero, divisions
// by zero).
func (e *Expr) Eval(cols Columns, n int) ([]string, int, error) {
	ev := &evaluator{cols: cols, cache: map[string][]string{}}
	for _, name := range e.Columns() {
		vals, ok := cols.Values(name)
		if !ok {
			return nil, 0, fmt.Errorf("unknown column %q", name)
		}
		ev.cache[name] = vals
	}

	out := make([]string, n)
	for row := 0; row < n; row++ {
		ev.row = row
		v, err := ev.eval(e.root)
		if err != nil {
			return nil, ev.co.garbage, fmt.Errorf("row %d: %w", row+1, err)
		}
		out[row] = v.String()
	}
	return out, ev.co.garbage, nil
}

type evaluator struct {
	cols  Columns
	cache map[string][]string
	row   int
	co    coercer
}

func (ev *evaluator) raw(name string) Value {
	vals := ev.cache[name]
	if ev.row >= len(vals) {
		return Value{}
	}
	return str(vals[ev.row])
}

func (ev *evaluator) column(name string) Value {
	v := ev.raw(name)
	if v.IsNull() {
		return v
	}
	s := v.Str
	if ev.cols.IsDate(name) {
		if strings.TrimSpace(s) == "" {
			return Value{}
		}
		if t, ok := schema.ParseDate(s); ok {
			return date(t)
		}
	}
	return str(s)
}

func (ev *evaluator) eval(n node) (Value, error) {
	switch x := n.(type) {
	case numLit:
		return num(x.v), nil
	case strLit:
		return str(x.v), nil
	case boolLit:
		return boolean(x.v), nil
	case nullLit:
		return Value{}, nil
	case colRef:
		return ev.column(x.name), nil
	case unary:
		v, err := ev.eval(x.x)
		if err != nil {
			return Value{}, err
		}
		if x.op == "NOT" {
			return boolean(!truthy(v)), nil
		}
		if v.IsNull() {
			return v, nil
		}
		return num(-ev.co.number(v)), nil
	case binary:
		return ev.binary(x)
	case call:
		return ev.call(x)
	}
	return Value{}, fmt.Errorf("unsupported node %T", n)
}

func (ev *evaluator) binary(b binary) (Value, error) {
	l, err := ev.eval(b.l)
	if err != nil {
		return Value{}, err
	}
	switch b.op {
	case "AND":
		if !truthy(l) {
			return boolean(false), nil
		}
		r, err := ev.eval(b.r)
		return boolean(truthy(r)), err
	case "OR":
		if truthy(l) {
			return boolean(true), nil
		}
		r, err := ev.eval(b.r)
		return boolean(truthy(r)), err
	}

	r, err := ev.eval(b.r)
	if err != nil {
		return Value{}, err
	}

	switch b.op {
	case "+", "-", "*", "/", "%":
		if l.IsNull() || r.IsNull() {
			return Value{}, nil
		}
	}

	switch b.op {
	case "&":
		return str(l.String() + r.String()), nil
	case "+", "-":
		if v, ok := ev.dateArith(b.op, l, r); ok {
			return v, nil
		}
		a, c := ev.co.number(l), ev.co.number(r)
		if b.op == "+" {
			return num(a + c), nil
		}
		return num(a - c), nil
	case "*":
		return num(ev.co.number(l) * ev.co.number(r)), nil
	case "/", "%":
		a, c := ev.co.number(l), ev.co.number(r)
		if c == 0 {
			ev.co.garbage++
			return Value{}, nil
		}
		if b.op == "/" {
			return num(a / c), nil
		}
		return num(math.Mod(a, c)), nil
	}

	cmp := compare(l, r)
	switch b.op {
	case "=":
		return boolean(cmp == 0), nil
	case "!=":
		return boolean(cmp != 0), nil
	case "<":
		return boolean(cmp < 0), nil
	case "<=":
		return boolean(cmp <= 0), nil
	case ">":
		return boolean(cmp > 0), nil
	case ">=":
		return boolean(cmp >= 0), nil
	}
	return Value{}, fmt.Errorf("unsupported operator %s", b.op)
}

// dateArith handles date - date (days between) and date +/- days.
func (ev *evaluator) dateArith(op string, l, r Value) (Value, bool) {
	switch {
	case l.Kind == Date && r.Kind == Date && op == "-":
		return num(daysBetween(l.Time, r.Time)), true
	case l.Kind == Date && r.Kind != Date:
		if r.isEmpty() {
			return Value{}, true
		}
		d := ev.co.number(r)
		if op == "-" {
			d = -d
		}
		return date(l.Time.AddDate(0, 0, int(math.Round(d)))), true
	case l.Kind == Date || r.Kind == Date:
		if l.isEmpty() || r.isEmpty() {
			return Value{}, true
		}
	}
	return Value{}, false
}

func daysBetween(a, b time.Time) float64 {
	return math.Round(a.Sub(b).Hours() / 24)
}

func compare(l, r Value) int {
	if l.isEmpty() && r.isEmpty() {
		return 0
	}
	if l.Kind == Date || r.Kind == Date {
		lt, lok := asDate(l)
		rt, rok := asDate(r)
		if lok && rok {
			return lt.Compare(rt)
		}
	}
	if lf, ok := asNumber(l); ok {
		if rf, ok := asNumber(r); ok {
			switch {
			case lf < rf:
				return -1
			case lf > rf:
				return 1
			}
			return 0
		}
	}
	return strings.Compare(l.String(), r.String())
}

func asDate(v Value) (time.Time, bool) {
	switch v.Kind {
	case Date:
		return v.Time, true
	case String:
		return schema.ParseDate(v.Str)
	}
	return time.Time{}, false
}

func asNumber(v Value) (float64, bool) {
	switch v.Kind {
	case Number:
		return v.Num, true
	case Bool:
		if v.B {
			return 1, true
		}
		return 0, true
	case String:
		return schema.ParseNumber(v.Str)
	}
	return 0, false
}
