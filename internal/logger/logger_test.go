package logger

import (
	"path/filepath"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestNew_RejectsUnknownLevel(t *testing.T) {
	t.Parallel()
	if _, err := New(Config{Level: "loud"}); err == nil {
		t.Fatalf("expected error for unknown level")
	}
}

func TestNew_WritesFileOutput(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "logs", "run.log")
	l, err := New(Config{Level: "debug", Encoding: "console", File: path})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	l.Info("hello", String("client", "12"))
	_ = l.Sync()
}

func TestFromZap_WithCarriesFields(t *testing.T) {
	t.Parallel()
	core, logs := observer.New(zapcore.DebugLevel)
	l := FromZap(zap.New(core)).With(String("run_id", "r1")).Named("pipeline")

	l.Warn("skipped", String("report", "MACC"))

	entries := logs.All()
	if len(entries) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(entries))
	}
	ctx := entries[0].ContextMap()
	if ctx["run_id"] != "r1" || ctx["report"] != "MACC" {
		t.Fatalf("unexpected context: %#v", ctx)
	}
	if entries[0].LoggerName != "pipeline" {
		t.Fatalf("logger name=%q", entries[0].LoggerName)
	}
}
