// Package metrics is the backend-agnostic metrics facade used by the pipeline.
//
// Core code only calls the Record* helpers. A concrete backend (see
// internal/metrics/datadog) is installed once at startup with SetBackend;
// until then every call goes to a no-op backend.
package metrics

import (
	"sync"
	"time"
)

// Labels are metric dimensions (step, status, report, ...).
type Labels map[string]string

// Backend receives counters and histogram samples.
type Backend interface {
	IncCounter(name string, delta float64, labels Labels)
	ObserveHistogram(name string, value float64, labels Labels)
	Flush() error
}

// Metric names shared between the facade and backends.
const (
	StepTotal       = "etl_step_total"
	StepDuration    = "etl_step_duration_seconds"
	RecordsTotal    = "etl_records_total"
	RetriesTotal    = "etl_load_retries_total"
	TruncatedTotal  = "etl_values_truncated_total"
	FormulaErrTotal = "etl_formula_errors_total"
)

type nopBackend struct{}

func (nopBackend) IncCounter(string, float64, Labels)       {}
func (nopBackend) ObserveHistogram(string, float64, Labels) {}
func (nopBackend) Flush() error                             { return nil }

var (
	mu      sync.RWMutex
	backend Backend = nopBackend{}
)

// SetBackend installs b as the process backend. A nil b restores the no-op backend.
func SetBackend(b Backend) {
	mu.Lock()
	defer mu.Unlock()
	if b == nil {
		backend = nopBackend{}
		return
	}
	backend = b
}

func current() Backend {
	mu.RLock()
	defer mu.RUnlock()
	return backend
}

// Flush flushes the current backend.
func Flush() error { return current().Flush() }

// RecordStep counts one pipeline step and observes its duration.
func RecordStep(step, status string, d time.Duration) {
	b := current()
	l := Labels{"step": step, "status": status}
	b.IncCounter(StepTotal, 1, l)
	b.ObserveHistogram(StepDuration, d.Seconds(), l)
}

// RecordRows counts rows by kind ("read", "loaded", "derived").
func RecordRows(kind string, n int) {
	if n <= 0 {
		return
	}
	current().IncCounter(RecordsTotal, float64(n), Labels{"kind": kind})
}

// RecordRetry counts a load retry attempt and its outcome.
func RecordRetry(report, status string) {
	current().IncCounter(RetriesTotal, 1, Labels{"report": report, "status": status})
}

// RecordTruncated counts values shortened by the adaptive loader.
func RecordTruncated(report string, n int) {
	if n <= 0 {
		return
	}
	current().IncCounter(TruncatedTotal, float64(n), Labels{"report": report})
}

// RecordFormulaError counts a column-scoped formula failure.
func RecordFormulaError(report string) {
	current().IncCounter(FormulaErrTotal, 1, Labels{"report": report})
}
