package schema

import (
	"regexp"
	"sort"
	"strings"

	"dmsetl/internal/registry"
)

// Options controls Resolve.
type Options struct {
	DefaultCharLength int
	// Infer enables value-based inference for columns with no declared type.
	Infer bool
}

func (o Options) defLen() int {
	if o.DefaultCharLength <= 0 {
		return 255
	}
	return o.DefaultCharLength
}

// Source tells how a column's type was found.
type Source string

const (
	SourceExact    Source = "exact"
	SourceMarker   Source = "marker-insensitive"
	SourceInferred Source = "inferred"
	SourceDefault  Source = "default"
)

// Resolved is one column's type and where it came from.
type Resolved struct {
	Type   ColumnType
	Source Source
	// Err is a declared type that failed to parse; the column fell through.
	Err error
}

var dedupeSuffix = regexp.MustCompile(`_\d+$`)

// matchKey lower-cases a column name after stripping markers and the
// _N dedupe suffix.
func matchKey(name string) string {
	n := registry.DisplayName(name)
	n = dedupeSuffix.ReplaceAllString(n, "")
	return strings.ToLower(strings.TrimSpace(n))
}

// Resolve finds the storage type of column name.
//
// Lookup order: exact key in types, then a key equal after stripping
// markers and dedupe suffixes (case-insensitive, keys tried in sorted
// order), then inference over values when opt.Infer, else a bounded
// character type of the default length.
func Resolve(name string, types map[string]registry.TypeSpec, values []string, opt Options) Resolved {
	var parseErr error

	if ts, ok := types[name]; ok {
		ct, err := ParseTypeSpec(ts, opt.defLen())
		if err == nil {
			return Resolved{Type: ct, Source: SourceExact}
		}
		parseErr = err
	}

	key := matchKey(name)
	keys := make([]string, 0, len(types))
	for k := range types {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		if k == name || matchKey(k) != key {
			continue
		}
		ct, err := ParseTypeSpec(types[k], opt.defLen())
		if err != nil {
			parseErr = err
			continue
		}
		return Resolved{Type: ct, Source: SourceMarker, Err: parseErr}
	}

	if opt.Infer && len(values) > 0 {
		return Resolved{Type: Infer(values, opt.defLen()), Source: SourceInferred, Err: parseErr}
	}
	return Resolved{Type: Char(opt.defLen()), Source: SourceDefault, Err: parseErr}
}
