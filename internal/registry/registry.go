// Package registry reads the two configuration documents produced by the
// admin application: the per-client registration document and the per-DMS
// schema document.
//
// Layout under the clients root:
//
//	<root>/<client>/Config/config.json   client registration
//	<root>/dms/<DMS>.json                DMS schema
package registry

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

var (
	// ErrConfigNotFound means a registration document, branch or client is absent.
	ErrConfigNotFound = errors.New("config not found")
	// ErrConfigInvalid means a document exists but cannot be used as-is.
	ErrConfigInvalid = errors.New("config invalid")
)

// ClientRegistration is the client registration document.
type ClientRegistration struct {
	ClientID string   `json:"client_id"`
	Branches []Branch `json:"branches"`
}

// Branch maps DMS name to the ordered reports the branch ingests.
//
// DMS is decoded into an ordered slice so report order survives JSON object
// decoding; see Branch.UnmarshalJSON.
type Branch struct {
	Code string
	DMS  []DMSReports
}

// DMSReports is one DMS entry of a branch.
type DMSReports struct {
	Name    string
	Reports []string
}

// DmsSchema is the per-DMS schema document in canonical shape.
type DmsSchema struct {
	Reports map[string]ReportSpec `json:"reports"`
}

// ReportSpec declares one report's columns, formulas and storage types.
type ReportSpec struct {
	Columns  []string            `json:"columns"`
	Formulas map[string]string   `json:"formulas,omitempty"`
	Types    map[string]TypeSpec `json:"types,omitempty"`
}

// TypeSpec is a column's declared storage type. Type may embed its own
// length, e.g. "VARCHAR(40)" or "DECIMAL(12,2)".
type TypeSpec struct {
	Type      string `json:"type"`
	Length    int    `json:"length,omitempty"`
	Precision int    `json:"precision,omitempty"`
	Scale     int    `json:"scale,omitempty"`
}

// Empty reports whether the spec declares no columns; such reports are skipped.
func (s ReportSpec) Empty() bool { return len(s.Columns) == 0 }

// Formula returns the formula attached to column, if any.
func (s ReportSpec) Formula(column string) (string, bool) {
	f, ok := s.Formulas[column]
	f = strings.TrimSpace(f)
	return f, ok && f != ""
}

// RawColumns returns the columns present in the raw file: all declared columns
// except computed ones, in schema order.
func (s ReportSpec) RawColumns() []string {
	out := make([]string, 0, len(s.Columns))
	for _, c := range s.Columns {
		if !IsComputed(c) {
			out = append(out, c)
		}
	}
	return out
}

// TableColumns returns the raw columns as named in the reconciled table:
// repeated names carry DedupeNames suffixes. Formulas may be keyed by these
// names to target a particular occurrence.
func (s ReportSpec) TableColumns() []string { return DedupeNames(s.RawColumns()) }

// Validate checks the ReportSpec invariants.
//
// A formula keyed by a name that is neither a declared column nor a
// reconciled table column is not an error; see UnusedFormulas.
//
// Errors:
//   - every problem is joined into one error wrapping ErrConfigInvalid.
func (s ReportSpec) Validate(report string) error {
	var errs []error
	for i, c := range s.Columns {
		if strings.TrimSpace(c) == "" {
			errs = append(errs, fmt.Errorf("%w: report %s: column %d has an empty name", ErrConfigInvalid, report, i))
			continue
		}
		if IsComputed(c) {
			if _, ok := s.Formula(c); !ok {
				errs = append(errs, fmt.Errorf("%w: report %s: computed column %q has no formula", ErrConfigInvalid, report, c))
			}
		}
	}
	return errors.Join(errs...)
}

// UnusedFormulas lists, sorted, the formula keys that match no declared
// column and no reconciled table column. Such formulas are never evaluated.
func (s ReportSpec) UnusedFormulas() []string {
	known := make(map[string]bool, len(s.Columns))
	for _, c := range s.Columns {
		known[c] = true
	}
	for _, c := range s.TableColumns() {
		known[c] = true
	}
	var out []string
	for c := range s.Formulas {
		if !known[c] {
			out = append(out, c)
		}
	}
	sort.Strings(out)
	return out
}

// DedupeNames suffixes repeated names with _1, _2, ... in first-seen order.
// A generated name that collides with a later literal name keeps counting.
func DedupeNames(names []string) []string {
	out := make([]string, len(names))
	used := make(map[string]bool, len(names))
	count := make(map[string]int, len(names))
	for _, n := range names {
		used[n] = true
	}
	seen := make(map[string]bool, len(names))
	for i, n := range names {
		if !seen[n] {
			seen[n] = true
			out[i] = n
			continue
		}
		for {
			count[n]++
			cand := fmt.Sprintf("%s_%d", n, count[n])
			if !used[cand] {
				used[cand] = true
				out[i] = cand
				break
			}
		}
	}
	return out
}

// Column markers.
const (
	ComputedSuffix = " (computed)"
	HiddenPrefix   = "__"
	HiddenSuffix   = " (hide)"
)

// IsComputed reports whether a schema column is produced by its formula only.
func IsComputed(name string) bool {
	return strings.HasSuffix(strings.ToLower(name), ComputedSuffix)
}

// IsHidden reports whether a column is dropped before formulas run.
func IsHidden(name string) bool {
	return strings.HasPrefix(name, HiddenPrefix) || strings.HasSuffix(strings.ToLower(name), HiddenSuffix)
}

// DisplayName strips the computed and hidden markers.
func DisplayName(name string) string {
	n := name
	if IsComputed(n) {
		n = n[:len(n)-len(ComputedSuffix)]
	}
	if strings.HasSuffix(strings.ToLower(n), HiddenSuffix) {
		n = n[:len(n)-len(HiddenSuffix)]
	}
	n = strings.TrimPrefix(n, HiddenPrefix)
	return strings.TrimSpace(n)
}
