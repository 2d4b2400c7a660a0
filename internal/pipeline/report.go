package pipeline

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"dmsetl/internal/aggregate"
	"dmsetl/internal/logger"
	"dmsetl/internal/metrics"
	"dmsetl/internal/parser/pipe"
	"dmsetl/internal/reconcile"
	"dmsetl/internal/registry"
	"dmsetl/internal/schema"
	"dmsetl/internal/storage"
	"dmsetl/internal/table"
)

// Identity column names, prepended to every loaded table.
const (
	ColClient = "Client"
	ColBranch = "Branch"
	ColDate   = "Date"
)

// identityTypes apply unless the report declares a type for the column.
var identityTypes = map[string]schema.ColumnType{
	ColClient: schema.Char(10),
	ColBranch: schema.Char(10),
	ColDate:   {Kind: schema.KindDate},
}

// TableName is the destination table of a report for a branch.
func TableName(report, branch string) string { return report + branch }

// report processes one resolved report. It never returns an error: the
// outcome carries it, and the caller moves on to the next report.
func (r *Runner) report(ctx context.Context, rc *run, ref registry.ReportRef) ReportOutcome {
	cfg := r.Config
	out := ReportOutcome{Report: ref.Name, DMS: ref.DMS, Table: TableName(ref.Name, rc.info.Branch)}
	log := rc.log.With(logger.String("report", ref.Name), logger.String("dms", ref.DMS))

	fail := func(step string, err error) ReportOutcome {
		out.Err = err
		out.Status = Classify(err)
		log.Error("report abandoned", logger.String("step", step), logger.String("class", out.Status), logger.Err(err))
		return out
	}
	skip := func(reason string) ReportOutcome {
		out.Status = StatusSkipped
		log.Warn("report skipped", logger.String("reason", reason))
		return out
	}

	if ref.Spec.Empty() {
		return skip("no expected columns")
	}
	if err := ref.Spec.Validate(ref.Name); err != nil {
		return fail("validate", err)
	}
	path, ok := rc.staged[ref.Name]
	if !ok {
		return skip("no input file")
	}
	log = log.With(logger.String("path", path))

	begin := time.Now()
	dec, err := pipe.Load(path, pipe.Options{Encodings: cfg.Encodings, Delimiter: cfg.Delimiter})
	metrics.RecordStep("decode", statusOf(err), time.Since(begin))
	if err != nil {
		return fail("decode", err)
	}
	log.Debug("decoded", logger.String("encoding", dec.Encoding), logger.Bool("html", dec.FromHTML))

	begin = time.Now()
	rec, err := reconcile.Reconcile(dec.Text, ref.Spec, cfg.Delimiter)
	metrics.RecordStep("reconcile", statusOf(err), time.Since(begin))
	if err != nil {
		return fail("reconcile", err)
	}
	if !rec.HeaderDetected {
		log.Warn("first row shares no name with the expected columns; treated as data")
	}
	if rec.Padded > 0 || rec.Truncated > 0 {
		log.Info("row widths normalized", logger.Int("padded", rec.Padded), logger.Int("truncated", rec.Truncated))
	}
	tb := rec.Table
	metrics.RecordRows("read", tb.Len())

	begin = time.Now()
	out.Formulas = rc.engine.Apply(tb, ref.Spec, ref.Name)
	status := "ok"
	if out.Formulas.Failed > 0 {
		status = ClassFormula
	}
	metrics.RecordStep("formula", status, time.Since(begin))

	rule := aggregate.Rule{
		Family:  cfg.Aggregate.Family,
		Derived: cfg.Aggregate.Derived,
		GroupBy: cfg.Aggregate.GroupBy,
		Sum:     cfg.Aggregate.Sum,
	}
	if cfg.Aggregate.On() && rule.Applies(ref.Name) {
		res, err := aggregate.Derive(tb, rule)
		if err != nil {
			log.Warn("aggregate skipped", logger.Err(err))
		} else {
			if res.Garbage > 0 {
				log.Warn("non-numeric values summed as zero", logger.Int("count", res.Garbage))
			}
			rc.pending = append(rc.pending, pendingAggregate{source: ref.Name, result: res})
		}
	}

	if err := r.prependIdentity(tb, rc, log); err != nil {
		return fail("identity", err)
	}

	cols, rows := r.typedRows(tb, ref.Spec, log)

	begin = time.Now()
	lr, err := rc.loader.Load(ctx, out.Table, cols, rows)
	metrics.RecordStep("load", statusOf(err), time.Since(begin))
	out.Retried, out.Truncated = lr.Retried, lr.Truncated
	if err != nil {
		return fail("load", err)
	}
	out.Status = StatusLoaded
	out.Rows = len(rows)
	return out
}

// prependIdentity inserts Client, Branch and optionally Date in front of
// the report's columns. A report column already using one of these names is
// renamed with a _N suffix.
func (r *Runner) prependIdentity(tb *table.Table, rc *run, log logger.Logger) error {
	ids := []struct{ name, value string }{
		{ColClient, rc.info.Client},
		{ColBranch, rc.info.Branch},
	}
	if r.Config.Identity.IncludeDate {
		ids = append(ids, struct{ name, value string }{ColDate, rc.date})
	}
	for i, id := range ids {
		if tb.Has(id.name) {
			to := freeName(tb, id.name)
			if err := tb.Rename(id.name, to); err != nil {
				return err
			}
			log.Warn("report column renamed to make room for an identity column",
				logger.String("column", id.name), logger.String("renamed", to))
		}
		if err := tb.Insert(i, id.name, table.Fill(tb.Len(), id.value)); err != nil {
			return fmt.Errorf("pipeline: identity column %s: %w", id.name, err)
		}
	}
	return nil
}

func freeName(tb *table.Table, name string) string {
	for n := 1; ; n++ {
		c := name + "_" + strconv.Itoa(n)
		if !tb.Has(c) {
			return c
		}
	}
}

// typedRows resolves every column's storage type and coerces the table into
// row-major values for the loader.
func (r *Runner) typedRows(tb *table.Table, spec registry.ReportSpec, log logger.Logger) ([]storage.Column, [][]any) {
	opt := schema.Options{DefaultCharLength: r.Config.Types.DefaultCharLength, Infer: r.Config.Types.Infer}
	names := tb.Columns()
	nIdentity := 2
	if r.Config.Identity.IncludeDate {
		nIdentity = 3
	}
	cols := make([]storage.Column, len(names))
	values := make([][]any, len(names))

	for i, name := range names {
		raw := tb.Column(name)
		ct, fixed := identityTypes[name]
		if _, declared := spec.Types[name]; declared || i >= nIdentity {
			fixed = false
		}
		if !fixed {
			res := schema.Resolve(name, spec.Types, raw, opt)
			if res.Err != nil {
				log.Warn("declared type unusable", logger.String("column", name), logger.Err(res.Err))
			}
			ct = res.Type
		}
		cols[i] = storage.Column{Name: name, Type: ct}

		coerced, lost := schema.Coerce(raw, ct)
		if lost > 0 {
			log.Warn("values not representable as column type became NULL",
				logger.String("column", name), logger.String("type", ct.String()), logger.Int("count", lost))
		}
		values[i] = coerced
	}

	rows := make([][]any, tb.Len())
	for i := range rows {
		row := make([]any, len(cols))
		for c := range cols {
			row[c] = values[c][i]
		}
		rows[i] = row
	}
	return cols, rows
}
