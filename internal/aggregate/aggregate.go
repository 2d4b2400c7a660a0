// Package aggregate derives a grouped report from one designated report
// family. The result is written as an ordinary delimited report file so the
// next run ingests it like any other export.
package aggregate

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"dmsetl/internal/archive"
	"dmsetl/internal/formula"
	"dmsetl/internal/schema"
	"dmsetl/internal/table"
)

// Rule names the family, the derived report and the columns involved.
type Rule struct {
	Family  string
	Derived string
	GroupBy []string
	Sum     []string
}

// Applies reports whether report belongs to the rule's family.
func (r Rule) Applies(report string) bool {
	return r.Family != "" && strings.EqualFold(report, r.Family)
}

// Result is a derived table plus the garbage count from numeric coercion.
type Result struct {
	Table   *table.Table
	Garbage int
}

// Derive groups src by the rule's group columns and sums its sum columns.
//
// Configured names missing from src are ignored. Groups keep the order in
// which their first row appears. Non-numeric sum values count as 0.
//
// Errors:
//   - none of the group or sum columns exist in src.
func Derive(src *table.Table, r Rule) (Result, error) {
	groups := present(src, r.GroupBy)
	sums := present(src, r.Sum)
	if len(groups) == 0 && len(sums) == 0 {
		return Result{}, fmt.Errorf("aggregate: %s: none of the configured columns are present", r.Family)
	}

	type bucket struct {
		key  []string
		sums []float64
	}
	var order []*bucket
	byKey := make(map[string]*bucket)
	garbage := 0

	groupCols := make([][]string, len(groups))
	for i, g := range groups {
		groupCols[i] = src.Column(g)
	}
	sumCols := make([][]string, len(sums))
	for i, s := range sums {
		sumCols[i] = src.Column(s)
	}

	for row := 0; row < src.Len(); row++ {
		key := make([]string, len(groups))
		for i := range groups {
			key[i] = groupCols[i][row]
		}
		k := strings.Join(key, "\x1f")
		b, ok := byKey[k]
		if !ok {
			b = &bucket{key: key, sums: make([]float64, len(sums))}
			byKey[k] = b
			order = append(order, b)
		}
		for i := range sums {
			raw := strings.TrimSpace(sumCols[i][row])
			if raw == "" {
				continue
			}
			f, ok := schema.ParseNumber(raw)
			if !ok {
				garbage++
				continue
			}
			b.sums[i] += f
		}
	}

	names := append(append([]string(nil), groups...), sums...)
	rows := make([][]string, 0, len(order))
	for _, b := range order {
		row := append([]string(nil), b.key...)
		for _, f := range b.sums {
			row = append(row, formula.FormatNumber(f))
		}
		rows = append(rows, row)
	}
	tb, err := table.New(names, rows)
	if err != nil {
		return Result{}, fmt.Errorf("aggregate: %w", err)
	}
	return Result{Table: tb, Garbage: garbage}, nil
}

func present(t *table.Table, names []string) []string {
	var out []string
	seen := map[string]bool{}
	for _, n := range names {
		if t.Has(n) && !seen[n] {
			seen[n] = true
			out = append(out, n)
		}
	}
	return out
}

// Write stores tb as <dir>/<derived><branch>.txt: a header row, then one
// line per row, fields joined by delim.
func Write(dir, derived, branch, delim string, tb *table.Table) (string, error) {
	path := filepath.Join(dir, archive.ReportFileName(derived, branch))
	f, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("aggregate: create %s: %w", path, err)
	}
	w := bufio.NewWriter(f)
	fmt.Fprintln(w, strings.Join(tb.Columns(), delim))
	for _, row := range tb.Rows() {
		fmt.Fprintln(w, strings.Join(row, delim))
	}
	if err := w.Flush(); err != nil {
		_ = f.Close()
		return "", fmt.Errorf("aggregate: write %s: %w", path, err)
	}
	if err := f.Close(); err != nil {
		return "", fmt.Errorf("aggregate: close %s: %w", path, err)
	}
	return path, nil
}
