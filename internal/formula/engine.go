// Package formula evaluates the per-column formulas of a report.
//
// A formula is either a bare transform name (TEXT, CODE, EMAIL, DATE, ...)
// applied to its own column, or an expression over column references,
// literals, operators and functions. Column references match the table's
// column names longest-first; names that would be ambiguous can be written
// as [Name].
//
// Failures are scoped to one column: the error is logged and counted, the
// column keeps its previous values (or is empty when computed), and the
// remaining formulas still run.
package formula

import (
	"fmt"
	"strings"

	"dmsetl/internal/logger"
	"dmsetl/internal/metrics"
	"dmsetl/internal/registry"
	"dmsetl/internal/schema"
	"dmsetl/internal/table"
)

// Stats summarizes one Apply.
type Stats struct {
	Applied  int
	Failed   int
	Warnings int
	Errors   []*Error
}

// Engine applies a report's formulas to its table.
type Engine struct {
	Log logger.Logger
}

// NewEngine returns an Engine logging to log (nop when nil).
func NewEngine(log logger.Logger) *Engine {
	if log == nil {
		log = logger.NewNop()
	}
	return &Engine{Log: log.Named("formula")}
}

// Apply runs the formulas of spec over tb in place.
//
// Formulas on raw columns run first, in schema order, replacing the
// column's values. Computed columns run next, in schema order, and are
// inserted under their display name; a computed column may reference
// raw columns and computed columns declared before it. Finally the
// columns are arranged in schema order.
//
// Edge cases:
//   - a formula on a hidden (dropped) column is ignored.
//   - with repeated raw columns, a formula keyed "A" runs on the first "A"
//     only; "A_1" targets the second.
//   - a formula keyed by an undeclared column is logged and ignored.
//   - a computed column whose display name is already taken gets a _N suffix.
//   - a failed computed column is kept with empty values.
func (e *Engine) Apply(tb *table.Table, spec registry.ReportSpec, report string) Stats {
	log := e.Log
	if log == nil {
		log = logger.NewNop()
	}
	log = log.With(logger.String("report", report))

	var st Stats
	cols := newTableColumns(tb, spec)

	raw := spec.RawColumns()
	tnames := spec.TableColumns()
	for i, col := range raw {
		cols.alias(col, tnames[i])
	}
	for _, key := range spec.UnusedFormulas() {
		log.Warn("formula for an undeclared column ignored", logger.String("column", key))
	}

	for _, target := range tnames {
		// a repeated column answers only to its suffixed name
		src, ok := spec.Formula(target)
		if !ok {
			continue
		}
		if !tb.Has(target) {
			log.Debug("formula on dropped column ignored", logger.String("column", target))
			continue
		}
		vals, err := e.eval(log, cols, &st, report, target, target, src)
		if err != nil {
			continue
		}
		_ = tb.Set(target, vals)
		st.Applied++
	}

	order := make([]string, 0, len(spec.Columns))
	next := 0
	for _, col := range spec.Columns {
		if !registry.IsComputed(col) {
			if t := tnames[next]; tb.Has(t) {
				order = append(order, t)
			}
			next++
			continue
		}
		display := uniqueName(tb, registry.DisplayName(col))
		if display != registry.DisplayName(col) {
			log.Warn("computed column renamed to avoid a collision",
				logger.String("column", col), logger.String("name", display))
		}
		src, _ := spec.Formula(col)
		vals, err := e.eval(log, cols, &st, report, col, display, src)
		if err != nil {
			vals = table.Fill(tb.Len(), "")
		} else {
			st.Applied++
		}
		_ = tb.Append(display, vals)
		cols.alias(col, display)
		cols.alias(registry.DisplayName(col), display)
		order = append(order, display)
	}

	for i, name := range order {
		_ = tb.Move(name, i)
	}
	return st
}

func (e *Engine) eval(log logger.Logger, cols *tableColumns, st *Stats, report, col, owner, src string) ([]string, error) {
	expr, err := compile(src, owner, cols.known())
	if err == nil {
		var vals []string
		var warn int
		vals, warn, err = expr.Eval(cols, cols.tb.Len())
		if err == nil {
			if warn > 0 {
				st.Warnings += warn
				log.Warn("non-numeric values treated as zero",
					logger.String("column", col), logger.Int("count", warn))
			}
			return vals, nil
		}
	}
	fe := &Error{Report: report, Column: col, Formula: src, Err: err}
	st.Failed++
	st.Errors = append(st.Errors, fe)
	metrics.RecordFormulaError(report)
	log.Error("formula failed", logger.String("column", col), logger.String("formula", src), logger.Err(err))
	return nil, fe
}

// compile parses src. A bare unary transform name applies to owner.
func compile(src, owner string, known []string) (*Expr, error) {
	trimmed := strings.TrimSpace(src)
	for _, k := range known {
		if k == trimmed {
			return Parse(src, known)
		}
	}
	if fn, ok := unaryTransform(trimmed); ok {
		return &Expr{src: src, root: call{name: fn, args: []node{colRef{owner}}}}, nil
	}
	expr, err := Parse(src, known)
	if err != nil {
		return nil, fmt.Errorf("parse: %w", err)
	}
	return expr, nil
}

func uniqueName(tb *table.Table, name string) string {
	if !tb.Has(name) {
		return name
	}
	for i := 1; ; i++ {
		cand := fmt.Sprintf("%s_%d", name, i)
		if !tb.Has(cand) {
			return cand
		}
	}
}

// tableColumns resolves formula references against a table, accepting
// schema names as aliases of the table's column names.
type tableColumns struct {
	tb      *table.Table
	types   map[string]registry.TypeSpec
	aliases map[string]string
	dates   map[string]bool
}

func newTableColumns(tb *table.Table, spec registry.ReportSpec) *tableColumns {
	return &tableColumns{
		tb:      tb,
		types:   spec.Types,
		aliases: map[string]string{},
		dates:   map[string]bool{},
	}
}

func (c *tableColumns) alias(from, to string) {
	if from == to {
		return
	}
	if _, taken := c.aliases[from]; !taken {
		c.aliases[from] = to
	}
}

func (c *tableColumns) resolve(name string) string {
	if c.tb.Has(name) {
		return name
	}
	if t, ok := c.aliases[name]; ok {
		return t
	}
	return name
}

func (c *tableColumns) known() []string {
	out := c.tb.Columns()
	for a := range c.aliases {
		if c.tb.Has(c.aliases[a]) {
			out = append(out, a)
		}
	}
	return out
}

func (c *tableColumns) Values(name string) ([]string, bool) {
	n := c.resolve(name)
	if !c.tb.Has(n) {
		return nil, false
	}
	return c.tb.Column(n), true
}

func (c *tableColumns) IsDate(name string) bool {
	n := c.resolve(name)
	if d, ok := c.dates[n]; ok {
		return d
	}
	r := schema.Resolve(n, c.types, nil, schema.Options{})
	d := r.Source != schema.SourceDefault &&
		(r.Type.Kind == schema.KindDate || r.Type.Kind == schema.KindTimestamp)
	c.dates[n] = d
	return d
}
