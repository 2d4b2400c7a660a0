package storage

import (
	"fmt"
	"strings"

	"dmsetl/internal/schema"
)

// Column is one target column with its resolved type.
type Column struct {
	Name string
	Type schema.ColumnType
}

// Dialect renders identifiers, types, literals and the DDL statements of one
// database flavor.
type Dialect interface {
	Name() string
	// Quote quotes one identifier.
	Quote(ident string) string
	// QuoteTable quotes a possibly schema-qualified table name.
	QuoteTable(name string) string
	TypeSQL(t schema.ColumnType) string
	// Literal renders nil, string, int64, float64, time.Time or bool.
	Literal(v any) string
	DropSQL(table string) string
	CreateSQL(table string, cols []Column) string
	// AlterNullableSQL makes every date column nullable; empty when the
	// dialect needs no statement.
	AlterNullableSQL(table string, cols []Column) string
}

// DialectFor returns the dialect registered under a storage kind.
func DialectFor(kind string) (Dialect, error) {
	switch strings.ToLower(kind) {
	case "postgres", "postgresql":
		return Postgres, nil
	case "mssql", "sqlserver":
		return MSSQL, nil
	case "sqlite":
		return SQLite, nil
	}
	return nil, fmt.Errorf("storage: no dialect for kind %q", kind)
}

var (
	Postgres Dialect = postgresDialect{}
	MSSQL    Dialect = mssqlDialect{}
	SQLite   Dialect = sqliteDialect{}
)

func doubleQuote(id string) string {
	return `"` + strings.ReplaceAll(id, `"`, `""`) + `"`
}

func quoteParts(name string, q func(string) string) string {
	parts := strings.Split(name, ".")
	for i := range parts {
		parts[i] = q(strings.TrimSpace(parts[i]))
	}
	return strings.Join(parts, ".")
}

func columnDefs(d Dialect, cols []Column) string {
	defs := make([]string, len(cols))
	for i, c := range cols {
		defs[i] = "  " + d.Quote(c.Name) + " " + d.TypeSQL(c.Type)
	}
	return strings.Join(defs, ",\n")
}

func dateColumns(cols []Column) []Column {
	var out []Column
	for _, c := range cols {
		if c.Type.Kind == schema.KindDate || c.Type.Kind == schema.KindTimestamp {
			out = append(out, c)
		}
	}
	return out
}

// ---- postgres ----

type postgresDialect struct{}

func (postgresDialect) Name() string                  { return "postgres" }
func (postgresDialect) Quote(id string) string        { return doubleQuote(id) }
func (postgresDialect) QuoteTable(name string) string { return quoteParts(name, doubleQuote) }

func (postgresDialect) TypeSQL(t schema.ColumnType) string {
	switch t.Kind {
	case schema.KindChar:
		return fmt.Sprintf("VARCHAR(%d)", t.Length)
	case schema.KindText:
		return "TEXT"
	case schema.KindInteger:
		return "INTEGER"
	case schema.KindBigInt:
		return "BIGINT"
	case schema.KindNumeric:
		return fmt.Sprintf("NUMERIC(%d,%d)", t.Precision, t.Scale)
	case schema.KindFloat:
		return "DOUBLE PRECISION"
	case schema.KindDate:
		return "DATE"
	case schema.KindTimestamp:
		return "TIMESTAMP"
	case schema.KindBoolean:
		return "BOOLEAN"
	}
	return "TEXT"
}

func (postgresDialect) Literal(v any) string {
	return renderLiteral(v, "", "TRUE", "FALSE")
}

func (d postgresDialect) DropSQL(table string) string {
	return "DROP TABLE IF EXISTS " + d.QuoteTable(table) + ";"
}

func (d postgresDialect) CreateSQL(table string, cols []Column) string {
	return "CREATE TABLE IF NOT EXISTS " + d.QuoteTable(table) + " (\n" + columnDefs(d, cols) + "\n);"
}

func (d postgresDialect) AlterNullableSQL(table string, cols []Column) string {
	var b strings.Builder
	for _, c := range dateColumns(cols) {
		fmt.Fprintf(&b, "ALTER TABLE %s ALTER COLUMN %s DROP NOT NULL;\n", d.QuoteTable(table), d.Quote(c.Name))
	}
	return strings.TrimSuffix(b.String(), "\n")
}

// ---- mssql ----

type mssqlDialect struct{}

func mssqlIdent(name string) string {
	return "[" + strings.ReplaceAll(name, "]", "]]") + "]"
}

func (mssqlDialect) Name() string                  { return "mssql" }
func (mssqlDialect) Quote(id string) string        { return mssqlIdent(id) }
func (mssqlDialect) QuoteTable(name string) string { return quoteParts(name, mssqlIdent) }

// mssqlMaxChar is the largest NVARCHAR length; longer columns use MAX.
const mssqlMaxChar = 4000

func (mssqlDialect) TypeSQL(t schema.ColumnType) string {
	switch t.Kind {
	case schema.KindChar:
		if t.Length > mssqlMaxChar {
			return "NVARCHAR(MAX)"
		}
		return fmt.Sprintf("NVARCHAR(%d)", t.Length)
	case schema.KindText:
		return "NVARCHAR(MAX)"
	case schema.KindInteger:
		return "INT"
	case schema.KindBigInt:
		return "BIGINT"
	case schema.KindNumeric:
		return fmt.Sprintf("DECIMAL(%d,%d)", t.Precision, t.Scale)
	case schema.KindFloat:
		return "FLOAT"
	case schema.KindDate:
		return "DATE"
	case schema.KindTimestamp:
		return "DATETIME2"
	case schema.KindBoolean:
		return "BIT"
	}
	return "NVARCHAR(MAX)"
}

func (mssqlDialect) Literal(v any) string {
	return renderLiteral(v, "N", "1", "0")
}

func objectIDName(table string) string {
	return "N'" + strings.ReplaceAll(table, "'", "''") + "'"
}

func (d mssqlDialect) DropSQL(table string) string {
	return "IF OBJECT_ID(" + objectIDName(table) + ", N'U') IS NOT NULL DROP TABLE " + d.QuoteTable(table) + ";"
}

func (d mssqlDialect) CreateSQL(table string, cols []Column) string {
	return "IF OBJECT_ID(" + objectIDName(table) + ", N'U') IS NULL\nCREATE TABLE " + d.QuoteTable(table) +
		" (\n" + columnDefs(d, cols) + "\n);"
}

func (d mssqlDialect) AlterNullableSQL(table string, cols []Column) string {
	var b strings.Builder
	for _, c := range dateColumns(cols) {
		fmt.Fprintf(&b, "ALTER TABLE %s ALTER COLUMN %s %s NULL;\n", d.QuoteTable(table), d.Quote(c.Name), d.TypeSQL(c.Type))
	}
	return strings.TrimSuffix(b.String(), "\n")
}

// ---- sqlite ----

type sqliteDialect struct{}

func (sqliteDialect) Name() string                  { return "sqlite" }
func (sqliteDialect) Quote(id string) string        { return doubleQuote(id) }
func (sqliteDialect) QuoteTable(name string) string { return quoteParts(name, doubleQuote) }

func (sqliteDialect) TypeSQL(t schema.ColumnType) string {
	switch t.Kind {
	case schema.KindChar:
		return fmt.Sprintf("VARCHAR(%d)", t.Length)
	case schema.KindInteger, schema.KindBigInt:
		return "INTEGER"
	case schema.KindNumeric:
		return fmt.Sprintf("NUMERIC(%d,%d)", t.Precision, t.Scale)
	case schema.KindFloat:
		return "REAL"
	case schema.KindDate:
		return "DATE"
	case schema.KindTimestamp:
		return "TIMESTAMP"
	case schema.KindBoolean:
		return "BOOLEAN"
	}
	return "TEXT"
}

func (sqliteDialect) Literal(v any) string {
	return renderLiteral(v, "", "1", "0")
}

func (d sqliteDialect) DropSQL(table string) string {
	return "DROP TABLE IF EXISTS " + d.QuoteTable(table) + ";"
}

func (d sqliteDialect) CreateSQL(table string, cols []Column) string {
	return "CREATE TABLE IF NOT EXISTS " + d.QuoteTable(table) + " (\n" + columnDefs(d, cols) + "\n);"
}

// SQLite columns are nullable unless declared otherwise and ALTER COLUMN
// is not supported.
func (sqliteDialect) AlterNullableSQL(string, []Column) string { return "" }
