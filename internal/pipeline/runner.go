// Package pipeline runs one ingestion pass: the archive found in the working
// directory names a client and branch, and every report registered for that
// branch is decoded, reconciled, transformed and loaded in order.
//
// All run state lives in a Runner and the values it passes down; nothing is
// kept in package variables, so a process may run several clients in turn.
package pipeline

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"dmsetl/internal/aggregate"
	"dmsetl/internal/archive"
	"dmsetl/internal/config"
	"dmsetl/internal/dump"
	"dmsetl/internal/formula"
	"dmsetl/internal/loader"
	"dmsetl/internal/logger"
	"dmsetl/internal/metrics"
	"dmsetl/internal/registry"
	"dmsetl/internal/storage"
)

// Runner executes runs for one configuration.
type Runner struct {
	Config config.Run
	Log    logger.Logger

	// NewStore opens the relational store; tests swap it.
	NewStore func(ctx context.Context, cfg storage.Config) (storage.Store, error)
	// Now supplies the run date for the Date identity column.
	Now func() time.Time
}

// NewRunner returns a Runner backed by the registered storage backends.
func NewRunner(cfg config.Run, log logger.Logger) *Runner {
	if log == nil {
		log = logger.NewNop()
	}
	return &Runner{
		Config:   cfg,
		Log:      log,
		NewStore: storage.New,
		Now:      time.Now,
	}
}

// Status of one report in a run.
const (
	StatusLoaded  = "loaded"
	StatusSkipped = "skipped"
)

// ReportOutcome is what happened to one report.
type ReportOutcome struct {
	Report    string
	DMS       string
	Table     string
	Status    string // StatusLoaded, StatusSkipped or an error class
	Rows      int
	Formulas  formula.Stats
	Retried   bool
	Truncated int
	Err       error
}

// Summary describes a finished run.
type Summary struct {
	RunID    string
	Archive  string
	Client   string
	Branch   string
	Reports  []ReportOutcome
	Derived  []string
	Duration time.Duration
}

// Failed counts reports that ended in an error.
func (s Summary) Failed() int {
	n := 0
	for _, r := range s.Reports {
		if r.Err != nil {
			n++
		}
	}
	return n
}

// run is the per-run context threaded through every report.
type run struct {
	id      string
	info    registry.ArchiveInfo
	date    string
	log     logger.Logger
	staged  map[string]string
	loader  *loader.Loader
	engine  *formula.Engine
	pending []pendingAggregate
}

type pendingAggregate struct {
	source string
	result aggregate.Result
}

// Run performs one pass.
//
// Errors (the run stops):
//   - no archive in the working directory, or an archive name that carries
//     no client and branch.
//   - the client registration is missing or invalid, or the branch is not
//     registered (Classify reports ClassConfig).
//   - the archive cannot be extracted or the store cannot be opened.
//
// Report-scoped failures are recorded in the Summary and do not stop the run.
func (r *Runner) Run(ctx context.Context) (Summary, error) {
	start := time.Now()
	cfg := r.Config
	sum := Summary{RunID: uuid.NewString()}
	log := r.Log.With(logger.String("run_id", sum.RunID), logger.String("job", cfg.Job))

	archivePath, err := archive.Find(cfg.WorkingDir)
	if err != nil {
		return sum, err
	}
	info, err := registry.ParseArchiveName(archivePath)
	if err != nil {
		return sum, fmt.Errorf("%w: %w", registry.ErrConfigInvalid, err)
	}
	sum.Archive, sum.Client, sum.Branch = info.Name, info.Client, info.Branch
	log = log.With(logger.String("client", info.Client), logger.String("branch", info.Branch))
	log.Info("run started", logger.String("archive", info.Name))

	resolver := &registry.Resolver{Root: cfg.ClientsDir, Log: log}
	res, err := resolver.Resolve(ctx, info.Client, info.Branch)
	if err != nil {
		log.Error("configuration unavailable", logger.Err(err))
		return sum, err
	}

	staged, err := r.stage(ctx, archivePath, info, res, log)
	if err != nil {
		return sum, err
	}

	store, err := r.NewStore(ctx, storage.Config{
		Kind:     cfg.Storage.Kind,
		DSN:      cfg.Storage.DSN,
		Host:     cfg.Storage.Host,
		Port:     cfg.Storage.Port,
		User:     cfg.Storage.User,
		Password: cfg.Storage.Password,
		Database: cfg.Storage.Database,
	})
	if err != nil {
		return sum, fmt.Errorf("pipeline: open %s store: %w", cfg.Storage.Kind, err)
	}
	defer store.Close()

	now := time.Now
	if r.Now != nil {
		now = r.Now
	}
	rc := &run{
		id:     sum.RunID,
		info:   info,
		date:   now().Format("02/01/2006"),
		log:    log,
		staged: staged,
		loader: loader.New(store, cfg.DumpDir, cfg.Storage.Host, log),
		engine: formula.NewEngine(log),
	}

	for _, ref := range res.Reports {
		if err := ctx.Err(); err != nil {
			return sum, err
		}
		out := r.report(ctx, rc, ref)
		sum.Reports = append(sum.Reports, out)
	}

	sum.Derived = r.writeAggregates(rc)
	if err := archive.Clean(cfg.ScratchDir, keepAfterRun(cfg, sum.Derived)); err != nil {
		log.Warn("scratch cleanup incomplete", logger.Err(err))
	}

	sum.Duration = time.Since(start)
	log.Info("run finished",
		logger.Int("reports", len(sum.Reports)),
		logger.Int("failed", sum.Failed()),
		logger.Duration("duration", sum.Duration))
	return sum, nil
}

// stage cleans scratch, extracts the archive and renames report files. The
// staged map is the run's input snapshot: files written later in the run
// are not part of it.
func (r *Runner) stage(ctx context.Context, archivePath string, info registry.ArchiveInfo, res registry.Resolution, log logger.Logger) (map[string]string, error) {
	cfg := r.Config
	begin := time.Now()
	if err := archive.Clean(cfg.ScratchDir, keepBeforeRun(cfg)); err != nil {
		return nil, err
	}
	files, err := archive.Extract(ctx, archivePath, cfg.ScratchDir)
	if err != nil {
		metrics.RecordStep("extract", ClassIO, time.Since(begin))
		return nil, err
	}
	staged, err := archive.Rename(cfg.ScratchDir, files, res.Names(), info.Branch, log)
	metrics.RecordStep("extract", statusOf(err), time.Since(begin))
	if err != nil {
		return nil, err
	}
	r.stageDerived(staged, files, res, info, log)
	log.Info("inputs staged", logger.Int("files", len(files)), logger.Int("reports", len(staged)))
	return staged, nil
}

// stageDerived adds the derived file kept from the previous run. It only
// stands for the derived report itself, and only when the branch registers
// that report and the archive did not ship a file for it.
func (r *Runner) stageDerived(staged map[string]string, extracted []string, res registry.Resolution, info registry.ArchiveInfo, log logger.Logger) {
	cfg := r.Config
	if !cfg.Aggregate.On() {
		return
	}
	derived := cfg.Aggregate.Derived
	name := archive.ReportFileName(derived, info.Branch)
	for _, f := range extracted {
		if f == name {
			return
		}
	}
	path := filepath.Join(cfg.ScratchDir, name)
	if _, err := os.Stat(path); err != nil {
		return
	}
	if _, ok := res.Lookup(derived); !ok {
		log.Debug("derived file kept but its report is not registered", logger.String("file", name))
		return
	}
	if _, ok := staged[derived]; !ok {
		staged[derived] = path
	}
}

// keepBeforeRun keeps derived files from the previous run and dump documents.
func keepBeforeRun(cfg config.Run) func(string) bool {
	derived := archive.KeepPrefix()
	if cfg.Aggregate.On() {
		derived = archive.KeepPrefix(cfg.Aggregate.Derived)
	}
	return func(name string) bool {
		return derived(name) || strings.HasSuffix(name, dump.Suffix)
	}
}

// keepAfterRun keeps only what this run wrote: derived files and dumps.
func keepAfterRun(cfg config.Run, derived []string) func(string) bool {
	written := make(map[string]bool, len(derived))
	for _, p := range derived {
		written[filepath.Base(p)] = true
	}
	return func(name string) bool {
		return written[name] || strings.HasSuffix(name, dump.Suffix)
	}
}

func (r *Runner) writeAggregates(rc *run) []string {
	var paths []string
	cfg := r.Config
	for _, p := range rc.pending {
		log := rc.log.With(logger.String("report", p.source))
		begin := time.Now()
		path, err := aggregate.Write(cfg.ScratchDir, cfg.Aggregate.Derived, rc.info.Branch, cfg.Delimiter, p.result.Table)
		metrics.RecordStep("aggregate", statusOf(err), time.Since(begin))
		if err != nil {
			log.Error("aggregate not written", logger.Err(err))
			continue
		}
		metrics.RecordRows("derived", p.result.Table.Len())
		log.Info("aggregate written",
			logger.String("derived", cfg.Aggregate.Derived),
			logger.String("path", path),
			logger.Int("groups", p.result.Table.Len()))
		paths = append(paths, path)
	}
	return paths
}

func statusOf(err error) string {
	if err == nil {
		return "ok"
	}
	return Classify(err)
}
