package storage

import (
	"regexp"
	"strconv"
	"strings"
)

// Statements is the ordered SQL that replaces one report table.
type Statements struct {
	Table  string
	Drop   string
	Create string
	// Alter is empty when the dialect needs no nullability fix-up.
	Alter string
	// Insert is empty when there are no rows.
	Insert string
}

// List returns the non-empty statements in execution order.
func (s Statements) List() []string {
	out := make([]string, 0, 4)
	for _, q := range []string{s.Drop, s.Create, s.Alter, s.Insert} {
		if q != "" {
			out = append(out, q)
		}
	}
	return out
}

// BuildStatements renders DROP, CREATE, ALTER and INSERT for a table.
//
// rows are coerced values in column order (see schema.Coerce).
func BuildStatements(d Dialect, table string, cols []Column, rows [][]any) Statements {
	return Statements{
		Table:  table,
		Drop:   d.DropSQL(table),
		Create: d.CreateSQL(table, cols),
		Alter:  d.AlterNullableSQL(table, cols),
		Insert: InsertSQL(d, table, cols, rows),
	}
}

// InsertSQL renders one multi-row INSERT with literal values, or "" when
// rows is empty.
func InsertSQL(d Dialect, table string, cols []Column, rows [][]any) string {
	if len(rows) == 0 {
		return ""
	}
	var b strings.Builder
	b.WriteString("INSERT INTO ")
	b.WriteString(d.QuoteTable(table))
	b.WriteString(" (")
	for i, c := range cols {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(d.Quote(c.Name))
	}
	b.WriteString(") VALUES\n")

	for i, row := range rows {
		if i > 0 {
			b.WriteString(",\n")
		}
		b.WriteString("(")
		for j := range cols {
			if j > 0 {
				b.WriteString(", ")
			}
			var v any
			if j < len(row) {
				v = row[j]
			}
			b.WriteString(d.Literal(v))
		}
		b.WriteString(")")
	}
	b.WriteString(";")
	return b.String()
}

var reCharColumn = regexp.MustCompile(`(?i)(?:"((?:[^"]|"")+)"|\[((?:[^\]]|\]\])+)\])\s+N?VARCHAR\s*\(\s*(\d+)\s*\)`)

// ParseCharLimits reads the bounded character columns and their lengths
// back out of a CREATE statement produced by any Dialect.
func ParseCharLimits(create string) map[string]int {
	out := map[string]int{}
	for _, m := range reCharColumn.FindAllStringSubmatch(create, -1) {
		name := strings.ReplaceAll(m[1], `""`, `"`)
		if m[2] != "" {
			name = strings.ReplaceAll(m[2], "]]", "]")
		}
		n, err := strconv.Atoi(m[3])
		if err != nil {
			continue
		}
		out[name] = n
	}
	return out
}
