// Package schema resolves each loaded column's storage type and coerces the
// table's string values to match it.
package schema

import (
	"fmt"
	"strconv"
	"strings"

	"dmsetl/internal/registry"
)

// Kind is a dialect-independent storage type family.
type Kind int

const (
	KindChar Kind = iota // bounded character
	KindText
	KindInteger
	KindBigInt
	KindNumeric
	KindFloat
	KindDate
	KindTimestamp
	KindBoolean
)

var kindNames = [...]string{"char", "text", "integer", "bigint", "numeric", "float", "date", "timestamp", "boolean"}

func (k Kind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// ColumnType is a resolved storage type.
type ColumnType struct {
	Kind      Kind
	Length    int // KindChar only
	Precision int // KindNumeric only
	Scale     int // KindNumeric only
}

// Char is a bounded character type.
func Char(n int) ColumnType { return ColumnType{Kind: KindChar, Length: n} }

// IsChar reports whether values are stored as text.
func (t ColumnType) IsChar() bool { return t.Kind == KindChar || t.Kind == KindText }

// IsNumeric reports whether values are stored as numbers.
func (t ColumnType) IsNumeric() bool {
	switch t.Kind {
	case KindInteger, KindBigInt, KindNumeric, KindFloat:
		return true
	}
	return false
}

func (t ColumnType) String() string {
	switch t.Kind {
	case KindChar:
		return fmt.Sprintf("char(%d)", t.Length)
	case KindNumeric:
		return fmt.Sprintf("numeric(%d,%d)", t.Precision, t.Scale)
	}
	return t.Kind.String()
}

// Default precision for NUMERIC declared without one.
const (
	DefaultPrecision = 18
	DefaultScale     = 2
)

// ParseTypeSpec converts a declared type into a ColumnType.
//
// The type name is case-insensitive and may carry its own arguments
// ("VARCHAR(40)", "DECIMAL(12,2)"); explicit Length/Precision/Scale fields
// win over embedded ones. Character types without a length get defLen.
//
// Errors:
//   - unknown type names and malformed arguments.
func ParseTypeSpec(ts registry.TypeSpec, defLen int) (ColumnType, error) {
	name, args, err := splitTypeArgs(ts.Type)
	if err != nil {
		return ColumnType{}, err
	}

	var ct ColumnType
	switch name {
	case "char", "character", "varchar", "character varying", "nvarchar", "nchar", "string":
		ct = ColumnType{Kind: KindChar}
		if len(args) > 0 {
			ct.Length = args[0]
		}
	case "text", "ntext", "clob":
		ct = ColumnType{Kind: KindText}
	case "int", "integer", "smallint", "int4", "int2", "tinyint":
		ct = ColumnType{Kind: KindInteger}
	case "bigint", "int8":
		ct = ColumnType{Kind: KindBigInt}
	case "numeric", "decimal", "money":
		ct = ColumnType{Kind: KindNumeric, Precision: DefaultPrecision, Scale: DefaultScale}
		if len(args) > 0 {
			ct.Precision = args[0]
			ct.Scale = 0
		}
		if len(args) > 1 {
			ct.Scale = args[1]
		}
	case "float", "double", "double precision", "real", "float8", "float4":
		ct = ColumnType{Kind: KindFloat}
	case "date":
		ct = ColumnType{Kind: KindDate}
	case "timestamp", "datetime", "datetime2", "timestamptz":
		ct = ColumnType{Kind: KindTimestamp}
	case "bool", "boolean", "bit":
		ct = ColumnType{Kind: KindBoolean}
	default:
		return ColumnType{}, fmt.Errorf("schema: unknown type %q", ts.Type)
	}

	if ts.Length > 0 && ct.Kind == KindChar {
		ct.Length = ts.Length
	}
	if ct.Kind == KindNumeric {
		if ts.Precision > 0 {
			ct.Precision = ts.Precision
		}
		if ts.Scale > 0 {
			ct.Scale = ts.Scale
		}
		if ct.Scale > ct.Precision {
			return ColumnType{}, fmt.Errorf("schema: %q: scale %d exceeds precision %d", ts.Type, ct.Scale, ct.Precision)
		}
	}
	if ct.Kind == KindChar && ct.Length <= 0 {
		ct.Length = defLen
	}
	return ct, nil
}

func splitTypeArgs(s string) (string, []int, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	open := strings.IndexByte(s, '(')
	if open < 0 {
		return strings.Join(strings.Fields(s), " "), nil, nil
	}
	if !strings.HasSuffix(s, ")") {
		return "", nil, fmt.Errorf("schema: malformed type %q", s)
	}
	name := strings.Join(strings.Fields(s[:open]), " ")
	var args []int
	for _, p := range strings.Split(s[open+1:len(s)-1], ",") {
		p = strings.TrimSpace(p)
		if p == "max" {
			return "text", nil, nil
		}
		n, err := strconv.Atoi(p)
		if err != nil || n < 0 {
			return "", nil, fmt.Errorf("schema: malformed type %q", s)
		}
		args = append(args, n)
	}
	return name, args, nil
}
