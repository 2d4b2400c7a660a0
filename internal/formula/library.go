package formula

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
	"unicode"
	"unicode/utf8"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"

	"dmsetl/internal/schema"
)

type funcDef struct {
	min, max int // max < 0: variadic
	// unary transforms may be written as a bare name and then apply to the
	// formula's own column.
	unary bool
	fn    func(ev *evaluator, args []Value) (Value, error)
}

func (d funcDef) arity() string {
	switch {
	case d.max < 0:
		return fmt.Sprintf("at least %d", d.min)
	case d.min == d.max:
		return strconv.Itoa(d.min)
	}
	return fmt.Sprintf("%d to %d", d.min, d.max)
}

var library map[string]funcDef

func init() {
	library = map[string]funcDef{
		"TEXT":           {min: 1, max: 1, unary: true, fn: fnText},
		"NORMALIZE_TEXT": {min: 1, max: 1, unary: true, fn: fnText},
		"EMAIL":          {min: 1, max: 1, unary: true, fn: fnEmail},
		"CODE":           {min: 1, max: 1, unary: true, fn: fnCode},
		"MARGIN":         {min: 2, max: 2, fn: fnMargin},
		"UTILITY":        {min: 2, max: 2, fn: fnUtility},
		"DATE":           {min: 1, max: 2, unary: true, fn: fnDate},
		"UPPER":          {min: 1, max: 1, unary: true, fn: strFn(strings.ToUpper)},
		"LOWER":          {min: 1, max: 1, unary: true, fn: strFn(strings.ToLower)},
		"TRIM":           {min: 1, max: 1, unary: true, fn: strFn(strings.TrimSpace)},
		"LEN":            {min: 1, max: 1, fn: fnLen},
		"LEFT":           {min: 2, max: 2, fn: fnLeft},
		"RIGHT":          {min: 2, max: 2, fn: fnRight},
		"CONCAT":         {min: 1, max: -1, fn: fnConcat},
		"IF":             {min: 2, max: 3}, // evaluated lazily in call
		"COALESCE":       {min: 1, max: -1, fn: fnCoalesce},
		"ROUND":          {min: 1, max: 2, fn: fnRound},
		"ABS":            {min: 1, max: 1, unary: true, fn: fnAbs},
		"DAYS":           {min: 2, max: 2, fn: fnDays},
		"HASH":           {min: 1, max: -1, fn: fnHash},
	}
}

func isFuncName(s string) bool {
	_, ok := library[strings.ToUpper(s)]
	return ok
}

// unaryTransform reports whether s names a transform that may be written
// without arguments.
func unaryTransform(s string) (string, bool) {
	name := strings.ToUpper(strings.TrimSpace(s))
	def, ok := library[name]
	return name, ok && def.unary
}

func (ev *evaluator) call(c call) (Value, error) {
	if c.name == "IF" {
		cond, err := ev.eval(c.args[0])
		if err != nil {
			return Value{}, err
		}
		if truthy(cond) {
			return ev.eval(c.args[1])
		}
		if len(c.args) == 3 {
			return ev.eval(c.args[2])
		}
		return Value{}, nil
	}
	args := make([]Value, len(c.args))
	for i, a := range c.args {
		// DATE re-reads its column as text so a declared date column can be
		// parsed in another field order.
		if ref, ok := a.(colRef); ok && i == 0 && c.name == "DATE" {
			args[i] = ev.raw(ref.name)
			continue
		}
		v, err := ev.eval(a)
		if err != nil {
			return Value{}, err
		}
		args[i] = v
	}
	return library[c.name].fn(ev, args)
}

func strFn(f func(string) string) func(*evaluator, []Value) (Value, error) {
	return func(_ *evaluator, a []Value) (Value, error) {
		if a[0].IsNull() {
			return Value{}, nil
		}
		return str(f(a[0].String())), nil
	}
}

var stripMarks = runes.Remove(runes.In(unicode.Mn))

// NormalizeText upper-cases s, strips diacritics and collapses whitespace.
func NormalizeText(s string) string {
	t := transform.Chain(norm.NFD, stripMarks, norm.NFC)
	out, _, err := transform.String(t, s)
	if err != nil {
		out = s
	}
	return strings.ToUpper(strings.Join(strings.Fields(out), " "))
}

func fnText(_ *evaluator, a []Value) (Value, error) {
	if a[0].IsNull() {
		return Value{}, nil
	}
	return str(NormalizeText(a[0].String())), nil
}

var reEmail = regexp.MustCompile(`^[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,}$`)

// NormalizeEmail lower-cases and trims s. Values that do not look like an
// address become empty.
func NormalizeEmail(s string) string {
	s = strings.ToLower(strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(s), "mailto:")))
	if !reEmail.MatchString(s) {
		return ""
	}
	return s
}

func fnEmail(_ *evaluator, a []Value) (Value, error) {
	return str(NormalizeEmail(a[0].String())), nil
}

// NormalizeCode keeps letters and digits, upper-cased, without leading zeros.
// An all-zero code stays "0".
func NormalizeCode(s string) string {
	var b strings.Builder
	for _, r := range s {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(unicode.ToUpper(r))
		}
	}
	out := b.String()
	trimmed := strings.TrimLeft(out, "0")
	if trimmed == "" && out != "" {
		return "0"
	}
	return trimmed
}

func fnCode(_ *evaluator, a []Value) (Value, error) {
	return str(NormalizeCode(a[0].String())), nil
}

func fnMargin(ev *evaluator, a []Value) (Value, error) {
	v, c := ev.co.number(a[0]), ev.co.number(a[1])
	if v == 0 {
		return num(0), nil
	}
	return num((v - c) / v * 100), nil
}

func fnUtility(ev *evaluator, a []Value) (Value, error) {
	return num(ev.co.number(a[0]) - ev.co.number(a[1])), nil
}

func fnDate(_ *evaluator, a []Value) (Value, error) {
	if a[0].Kind == Date {
		return a[0], nil
	}
	order := "DMY"
	if len(a) == 2 {
		order = a[1].String()
	}
	switch strings.ToUpper(order) {
	case "DMY", "MDY", "YMD":
	default:
		return Value{}, fmt.Errorf("DATE order must be DMY, MDY or YMD, got %q", order)
	}
	t, ok := schema.ParseDateOrder(a[0].String(), order)
	if !ok {
		return Value{}, nil
	}
	return date(t), nil
}

func fnLen(_ *evaluator, a []Value) (Value, error) {
	return num(float64(utf8.RuneCountInString(a[0].String()))), nil
}

func fnLeft(ev *evaluator, a []Value) (Value, error) {
	r := []rune(a[0].String())
	n := clampLen(ev.co.number(a[1]), len(r))
	return str(string(r[:n])), nil
}

func fnRight(ev *evaluator, a []Value) (Value, error) {
	r := []rune(a[0].String())
	n := clampLen(ev.co.number(a[1]), len(r))
	return str(string(r[len(r)-n:])), nil
}

func clampLen(f float64, max int) int {
	n := int(f)
	if n < 0 {
		return 0
	}
	if n > max {
		return max
	}
	return n
}

func fnConcat(_ *evaluator, a []Value) (Value, error) {
	var b strings.Builder
	for _, v := range a {
		b.WriteString(v.String())
	}
	return str(b.String()), nil
}

func fnCoalesce(_ *evaluator, a []Value) (Value, error) {
	for _, v := range a {
		if !v.isEmpty() {
			return v, nil
		}
	}
	return Value{}, nil
}

func fnRound(ev *evaluator, a []Value) (Value, error) {
	if a[0].isEmpty() {
		return Value{}, nil
	}
	f := ev.co.number(a[0])
	places := 0.0
	if len(a) == 2 {
		places = ev.co.number(a[1])
	}
	p := math.Pow(10, math.Round(places))
	return num(math.Round(f*p) / p), nil
}

func fnAbs(ev *evaluator, a []Value) (Value, error) {
	if a[0].isEmpty() {
		return Value{}, nil
	}
	return num(math.Abs(ev.co.number(a[0]))), nil
}

func fnDays(_ *evaluator, a []Value) (Value, error) {
	x, ok1 := asDate(a[0])
	y, ok2 := asDate(a[1])
	if !ok1 || !ok2 {
		return Value{}, nil
	}
	return num(daysBetween(x, y)), nil
}

// fnHash joins its arguments with the unit separator (NULL as a NUL byte)
// and returns the lowercase hex SHA-256.
func fnHash(_ *evaluator, a []Value) (Value, error) {
	var b strings.Builder
	for i, v := range a {
		if i > 0 {
			b.WriteByte('\x1f')
		}
		if v.IsNull() {
			b.WriteByte('\x00')
			continue
		}
		b.WriteString(strings.TrimSpace(v.String()))
	}
	sum := sha256.Sum256([]byte(b.String()))
	return str(hex.EncodeToString(sum[:])), nil
}
