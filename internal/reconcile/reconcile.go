// Package reconcile turns decoded report text into a table keyed by the
// report's expected columns.
package reconcile

import (
	"fmt"
	"strings"

	"dmsetl/internal/registry"
	"dmsetl/internal/table"
)

// Result is a reconciled report.
type Result struct {
	Table *table.Table
	// HeaderDetected is false when row 0 shared no name with the expected
	// columns and was kept as data.
	HeaderDetected bool
	// Hidden lists the columns dropped before formulas run.
	Hidden []string
	// Padded and Truncated count rows whose width was normalized.
	Padded, Truncated int
}

// SplitRows splits text into rows of fields. Trailing "\r" is removed from
// every line and a trailing empty line is dropped.
func SplitRows(text, delim string) [][]string {
	if text == "" {
		return nil
	}
	lines := strings.Split(text, "\n")
	if lines[len(lines)-1] == "" || lines[len(lines)-1] == "\r" {
		lines = lines[:len(lines)-1]
	}
	rows := make([][]string, 0, len(lines))
	for _, ln := range lines {
		rows = append(rows, strings.Split(strings.TrimSuffix(ln, "\r"), delim))
	}
	return rows
}

// HasHeader reports whether first shares at least one name with expected,
// compared lower-cased and trimmed.
func HasHeader(first, expected []string) bool {
	want := make(map[string]struct{}, len(expected))
	for _, e := range expected {
		want[strings.ToLower(strings.TrimSpace(e))] = struct{}{}
	}
	for _, f := range first {
		if _, ok := want[strings.ToLower(strings.TrimSpace(f))]; ok {
			return true
		}
	}
	return false
}

// DedupeNames suffixes repeated names with _1, _2, ... in first-seen order.
// See registry.DedupeNames.
func DedupeNames(names []string) []string { return registry.DedupeNames(names) }

// NormalizeWidth right-pads row with "" or right-truncates it to n fields.
func NormalizeWidth(row []string, n int) []string {
	switch {
	case len(row) == n:
		return row
	case len(row) > n:
		return row[:n]
	}
	out := make([]string, n)
	copy(out, row)
	return out
}

// Reconcile builds the table for one report.
//
// The raw columns are the spec's columns minus computed ones. Row 0 is a
// header when it shares a name with them; otherwise it is data. Every data
// row is normalized to the raw width, columns are named with DedupeNames,
// and hidden columns are dropped last.
//
// Errors:
//   - the spec declares no raw columns.
func Reconcile(text string, spec registry.ReportSpec, delim string) (Result, error) {
	raw := spec.RawColumns()
	if len(raw) == 0 {
		return Result{}, fmt.Errorf("reconcile: report declares no raw columns")
	}

	rows := SplitRows(text, delim)
	res := Result{}
	if len(rows) > 0 && HasHeader(rows[0], raw) {
		res.HeaderDetected = true
		rows = rows[1:]
	}

	names := DedupeNames(raw)
	for i, r := range rows {
		switch {
		case len(r) < len(names):
			res.Padded++
		case len(r) > len(names):
			res.Truncated++
		}
		rows[i] = NormalizeWidth(r, len(names))
	}

	tb, err := table.New(names, rows)
	if err != nil {
		return Result{}, fmt.Errorf("reconcile: %w", err)
	}
	for _, n := range names {
		if registry.IsHidden(n) {
			tb.Drop(n)
			res.Hidden = append(res.Hidden, n)
		}
	}
	res.Table = tb
	return res, nil
}
