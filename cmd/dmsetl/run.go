package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"dmsetl/internal/config"
	"dmsetl/internal/logger"
	"dmsetl/internal/metrics"
	"dmsetl/internal/metrics/datadog"
	"dmsetl/internal/pipeline"
)

func newRunCmd() *cobra.Command {
	var (
		cfgPath        string
		metricsBackend string
		logLevel       string
	)
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Ingest the archive found in the working directory",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(cfgPath, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			if metricsBackend != "" {
				cfg.Metrics.Backend = metricsBackend
			}
			if logLevel != "" {
				cfg.Logging.Level = logLevel
			}
			return runPipeline(cmd.Context(), cfg, cmd.OutOrStdout())
		},
	}
	cmd.Flags().StringVar(&cfgPath, "config", "", "run config YAML path")
	cmd.Flags().StringVar(&metricsBackend, "metrics-backend", "", "metrics backend (none, datadog); overrides the config")
	cmd.Flags().StringVar(&logLevel, "log-level", "", "log level; overrides the config")
	return cmd
}

func runPipeline(parent context.Context, cfg config.Run, out io.Writer) error {
	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	log, err := logger.New(cfg.Logging)
	if err != nil {
		return &exitError{code: exitFatal, err: err}
	}
	defer func() { _ = log.Sync() }()

	closeMetrics := initMetrics(ctx, cfg, log)
	defer closeMetrics()

	sum, err := pipeline.NewRunner(cfg, log).Run(ctx)
	if err != nil {
		log.Error("run aborted", logger.String("class", pipeline.Classify(err)), logger.Err(err))
		return &exitError{code: exitFatal, err: err}
	}

	fmt.Fprintf(out, "run %s: client %s branch %s (%s)\n", sum.RunID, sum.Client, sum.Branch, sum.Archive)
	for _, r := range sum.Reports {
		line := fmt.Sprintf("  %-10s %-12s %-8s rows=%d", r.Report, r.Table, r.Status, r.Rows)
		if r.Retried {
			line += fmt.Sprintf(" retried truncated=%d", r.Truncated)
		}
		if r.Formulas.Failed > 0 {
			line += fmt.Sprintf(" formula_errors=%d", r.Formulas.Failed)
		}
		fmt.Fprintln(out, line)
	}
	for _, p := range sum.Derived {
		fmt.Fprintf(out, "  derived %s\n", p)
	}
	if n := sum.Failed(); n > 0 {
		return &exitError{code: exitPartial, err: fmt.Errorf("%d of %d reports failed", n, len(sum.Reports))}
	}
	return nil
}

// initMetrics installs the configured metrics backend and returns the
// function that flushes and closes it.
func initMetrics(ctx context.Context, cfg config.Run, log logger.Logger) func() {
	switch cfg.Metrics.Backend {
	case "datadog":
		tags := append([]string(nil), cfg.Metrics.Tags...)
		tags = append(tags, datadog.ParseTagsCSV(os.Getenv("METRICS_TAGS"))...)
		b, err := datadog.NewBackend(ctx, datadog.Options{
			JobName:    cfg.Job,
			Tags:       tags,
			FlushEvery: cfg.Metrics.FlushEvery,
		})
		if err != nil {
			log.Warn("datadog backend unavailable; metrics disabled", logger.Err(err))
			return func() {}
		}
		log.Info("metrics enabled", logger.String("backend", "datadog"), logger.Strings("tags", tags))
		metrics.SetBackend(b)
		// Close stops the flush loop and submits what is still buffered.
		return func() {
			if err := b.Close(); err != nil {
				log.Warn("datadog close/flush error", logger.Err(err))
			}
			metrics.SetBackend(nil)
		}

	case "", "none":
		log.Debug("metrics disabled")

	default:
		log.Warn("unknown metrics backend; metrics disabled", logger.String("backend", cfg.Metrics.Backend))
	}
	return func() {}
}
