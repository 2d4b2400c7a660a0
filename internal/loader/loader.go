// Package loader replaces one report table in the target database.
//
// The dump document is written before anything executes. DROP, CREATE,
// ALTER and INSERT then run in order, each committed on its own. When the
// INSERT fails, character values longer than their column's declared length
// are cut to fit and the INSERT is retried once; a successful retry replaces
// the INSERT in the dump document.
package loader

import (
	"context"
	"errors"
	"fmt"
	"unicode/utf8"

	"dmsetl/internal/dump"
	"dmsetl/internal/logger"
	"dmsetl/internal/metrics"
	"dmsetl/internal/storage"
)

// ErrLoad means a report could not be loaded. The report is abandoned; the
// run continues with the next one.
var ErrLoad = errors.New("load failed")

// Loader executes table replacements through a Store.
type Loader struct {
	Store   storage.Store
	DumpDir string
	Host    string
	Log     logger.Logger

	version    string
	versionErr error
	probed     bool
}

// New returns a Loader writing dump documents into dumpDir.
func New(store storage.Store, dumpDir, host string, log logger.Logger) *Loader {
	if log == nil {
		log = logger.NewNop()
	}
	return &Loader{Store: store, DumpDir: dumpDir, Host: host, Log: log.Named("loader")}
}

// Result describes one table load.
type Result struct {
	Table     string
	Rows      int
	Retried   bool
	Truncated int
	DumpPath  string
}

// Load writes the dump document for table and executes its statements.
//
// Edge cases:
//   - no rows: DROP, CREATE and ALTER run; there is no INSERT.
//   - the server version cannot be read: the dump header says "unknown".
//
// Errors:
//   - the dump document cannot be written (nothing is executed).
//   - ErrLoad when a statement fails, or the INSERT fails again after
//     truncation.
func (l *Loader) Load(ctx context.Context, table string, cols []storage.Column, rows [][]any) (Result, error) {
	log := l.Log.With(logger.String("table", table))
	res := Result{Table: table, Rows: len(rows), DumpPath: dump.PathFor(l.DumpDir, table)}

	stmts := storage.BuildStatements(l.Store.Dialect(), table, cols, rows)
	doc := &dump.Document{
		Path:          res.DumpPath,
		Dialect:       l.Store.Dialect().Name(),
		Host:          l.Host,
		Database:      l.Store.Database(),
		ServerVersion: l.serverVersion(ctx, log),
		Statements:    stmts,
	}
	if err := doc.Write(); err != nil {
		return res, fmt.Errorf("loader: %s: %w", table, err)
	}
	log.Debug("dump written", logger.String("path", res.DumpPath))

	steps := []struct{ name, sql string }{
		{"drop", stmts.Drop},
		{"create", stmts.Create},
		{"alter", stmts.Alter},
	}
	for _, s := range steps {
		if s.sql == "" {
			continue
		}
		if err := l.Store.Exec(ctx, s.sql); err != nil {
			log.Error("statement failed", logger.String("stage", s.name), logger.Err(err))
			return res, fmt.Errorf("%w: %s %s: %w", ErrLoad, table, s.name, err)
		}
	}

	if stmts.Insert == "" {
		log.Info("table replaced", logger.Int("rows", 0))
		return res, nil
	}

	err := l.Store.Exec(ctx, stmts.Insert)
	if err == nil {
		metrics.RecordRows("loaded", len(rows))
		log.Info("table replaced", logger.Int("rows", len(rows)))
		return res, nil
	}

	limits := storage.ParseCharLimits(stmts.Create)
	fixed, n := TruncateRows(cols, rows, limits)
	res.Retried = true
	res.Truncated = n
	log.Warn("insert failed; retrying with truncated values",
		logger.Err(err), logger.Int("truncated", n))

	insert := storage.InsertSQL(l.Store.Dialect(), table, cols, fixed)
	if rerr := l.Store.Exec(ctx, insert); rerr != nil {
		metrics.RecordRetry(table, "failed")
		log.Error("insert retry failed", logger.Err(rerr))
		return res, fmt.Errorf("%w: %s insert after truncating %d values: %w", ErrLoad, table, n, rerr)
	}
	metrics.RecordRetry(table, "ok")
	metrics.RecordTruncated(table, n)
	metrics.RecordRows("loaded", len(rows))

	if err := doc.ReplaceInsert(insert); err != nil {
		// The data is loaded; only the document is stale.
		log.Error("dump rewrite failed", logger.Err(err))
	}
	log.Info("table replaced after truncation", logger.Int("rows", len(rows)), logger.Int("truncated", n))
	return res, nil
}

func (l *Loader) serverVersion(ctx context.Context, log logger.Logger) string {
	if !l.probed {
		l.probed = true
		l.version, l.versionErr = l.Store.ServerVersion(ctx)
		if l.versionErr != nil {
			log.Warn("server version unavailable", logger.Err(l.versionErr))
		}
	}
	return l.version
}

// TruncateRows returns a copy of rows with every string longer than its
// column's limit cut to that many runes, and the number of values cut.
// rows is not modified.
func TruncateRows(cols []storage.Column, rows [][]any, limits map[string]int) ([][]any, int) {
	idx := make(map[int]int, len(limits))
	for i, c := range cols {
		if n, ok := limits[c.Name]; ok {
			idx[i] = n
		}
	}
	out := make([][]any, len(rows))
	count := 0
	for r, row := range rows {
		cp := append([]any(nil), row...)
		for i, limit := range idx {
			if i >= len(cp) {
				continue
			}
			s, ok := cp[i].(string)
			if !ok || utf8.RuneCountInString(s) <= limit {
				continue
			}
			cp[i] = truncateRunes(s, limit)
			count++
		}
		out[r] = cp
	}
	return out, count
}

func truncateRunes(s string, n int) string {
	i := 0
	for pos := range s {
		if i == n {
			return s[:pos]
		}
		i++
	}
	return s
}
