// Package probe samples a raw report file and drafts the schema entry an
// operator would register for it.
//
// The draft is best-effort: column names come from the first data row,
// types from schema.Infer over a bounded sample, and per-column statistics
// help decide what to hide or type explicitly.
package probe

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"dmsetl/internal/parser/pipe"
	"dmsetl/internal/reconcile"
	"dmsetl/internal/registry"
	"dmsetl/internal/schema"
)

// DefaultSampleRows bounds how many data rows are inspected.
const DefaultSampleRows = 1000

// Options control sampling and inference.
type Options struct {
	Delimiter         string
	Encodings         []string
	SampleRows        int
	DefaultCharLength int
}

// Column is one probed column.
type Column struct {
	Name     string
	Type     registry.TypeSpec
	Empty    int
	Distinct int
	MaxLen   int
}

// Result is a probed report.
type Result struct {
	Encoding string
	Sampled  int
	Columns  []Column
	Spec     registry.ReportSpec
}

// File probes the report at path.
//
// The first row after the banner is taken as the header. Blank header cells
// become col_N; repeated names get DedupeNames suffixes.
//
// Errors:
//   - read and decode errors from pipe.Load.
//   - a file with no delimited rows.
func File(path string, opt Options) (Result, error) {
	if opt.Delimiter == "" {
		opt.Delimiter = "|"
	}
	if opt.SampleRows <= 0 {
		opt.SampleRows = DefaultSampleRows
	}
	if opt.DefaultCharLength <= 0 {
		opt.DefaultCharLength = 255
	}

	dec, err := pipe.Load(path, pipe.Options{Encodings: opt.Encodings, Delimiter: opt.Delimiter})
	if err != nil {
		return Result{}, err
	}
	rows := reconcile.SplitRows(dec.Text, opt.Delimiter)
	if len(rows) == 0 {
		return Result{}, fmt.Errorf("probe: %s: no delimited rows", path)
	}

	header := make([]string, len(rows[0]))
	for i, h := range rows[0] {
		h = strings.TrimSpace(h)
		if h == "" {
			h = fmt.Sprintf("col_%d", i+1)
		}
		header[i] = h
	}
	// a trailing delimiter yields one empty cell that is not a column
	if n := len(header); n > 1 && strings.TrimSpace(rows[0][n-1]) == "" {
		header = header[:n-1]
	}
	names := reconcile.DedupeNames(header)

	data := rows[1:]
	if len(data) > opt.SampleRows {
		data = data[:opt.SampleRows]
	}

	res := Result{Encoding: dec.Encoding, Sampled: len(data)}
	res.Spec.Types = make(map[string]registry.TypeSpec, len(names))
	for c, name := range names {
		values := make([]string, len(data))
		seen := make(map[string]struct{})
		col := Column{Name: name}
		for r, row := range data {
			row = reconcile.NormalizeWidth(row, len(names))
			v := strings.TrimSpace(row[c])
			values[r] = v
			if v == "" {
				col.Empty++
				continue
			}
			seen[v] = struct{}{}
			if n := utf8.RuneCountInString(v); n > col.MaxLen {
				col.MaxLen = n
			}
		}
		col.Distinct = len(seen)
		col.Type = TypeSpecOf(schema.Infer(values, opt.DefaultCharLength))

		res.Columns = append(res.Columns, col)
		res.Spec.Columns = append(res.Spec.Columns, name)
		res.Spec.Types[name] = col.Type
	}
	return res, nil
}

// TypeSpecOf renders a resolved type in the schema document's form.
// schema.ParseTypeSpec reads it back to the same type.
func TypeSpecOf(ct schema.ColumnType) registry.TypeSpec {
	switch ct.Kind {
	case schema.KindChar:
		return registry.TypeSpec{Type: "VARCHAR", Length: ct.Length}
	case schema.KindText:
		return registry.TypeSpec{Type: "TEXT"}
	case schema.KindInteger:
		return registry.TypeSpec{Type: "INTEGER"}
	case schema.KindBigInt:
		return registry.TypeSpec{Type: "BIGINT"}
	case schema.KindNumeric:
		return registry.TypeSpec{Type: "NUMERIC", Precision: ct.Precision, Scale: ct.Scale}
	case schema.KindFloat:
		return registry.TypeSpec{Type: "FLOAT"}
	case schema.KindDate:
		return registry.TypeSpec{Type: "DATE"}
	case schema.KindTimestamp:
		return registry.TypeSpec{Type: "TIMESTAMP"}
	case schema.KindBoolean:
		return registry.TypeSpec{Type: "BOOLEAN"}
	}
	return registry.TypeSpec{Type: "TEXT"}
}
