// Package logger wraps zap with the small surface the pipeline needs.
//
// Every component takes a Logger instead of reaching for a global so a run can
// carry its own run_id/client/branch fields and tests can observe output.
package logger

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Field is a structured log field.
type Field = zapcore.Field

// Logger is the logging interface used across the module.
type Logger interface {
	Debug(msg string, fields ...Field)
	Info(msg string, fields ...Field)
	Warn(msg string, fields ...Field)
	Error(msg string, fields ...Field)
	With(fields ...Field) Logger
	Named(name string) Logger
	Sync() error
}

// Config controls encoder, level and outputs.
//
// File, when set, is written through lumberjack so long-running schedules
// don't grow a single unbounded log file.
type Config struct {
	Level       string `yaml:"level"`
	Encoding    string `yaml:"encoding"` // "json" | "console"
	File        string `yaml:"file"`
	MaxSizeMB   int    `yaml:"max_size_mb"`
	MaxBackups  int    `yaml:"max_backups"`
	MaxAgeDays  int    `yaml:"max_age_days"`
	Compress    bool   `yaml:"compress"`
	Development bool   `yaml:"development"`
}

type zlogger struct {
	z *zap.Logger
}

// New builds a Logger from cfg. Zero values give an info-level JSON logger on stderr.
func New(cfg Config) (Logger, error) {
	if cfg.Level == "" {
		cfg.Level = "info"
	}
	if cfg.Encoding == "" {
		cfg.Encoding = "json"
	}

	level := zap.NewAtomicLevel()
	if err := level.UnmarshalText([]byte(cfg.Level)); err != nil {
		return nil, fmt.Errorf("logger: parse level %q: %w", cfg.Level, err)
	}

	encCfg := zapcore.EncoderConfig{
		TimeKey:        "ts",
		LevelKey:       "level",
		NameKey:        "logger",
		CallerKey:      "caller",
		FunctionKey:    zapcore.OmitKey,
		MessageKey:     "msg",
		StacktraceKey:  "stacktrace",
		LineEnding:     zapcore.DefaultLineEnding,
		EncodeLevel:    zapcore.LowercaseLevelEncoder,
		EncodeTime:     zapcore.ISO8601TimeEncoder,
		EncodeDuration: zapcore.MillisDurationEncoder,
		EncodeCaller:   zapcore.ShortCallerEncoder,
	}

	newEncoder := func() zapcore.Encoder {
		if cfg.Encoding == "console" {
			return zapcore.NewConsoleEncoder(encCfg)
		}
		return zapcore.NewJSONEncoder(encCfg)
	}

	cores := []zapcore.Core{
		zapcore.NewCore(newEncoder(), zapcore.AddSync(os.Stderr), level),
	}

	if cfg.File != "" {
		if err := os.MkdirAll(filepath.Dir(cfg.File), 0o755); err != nil {
			return nil, fmt.Errorf("logger: create log dir: %w", err)
		}
		w := &lumberjack.Logger{
			Filename:   cfg.File,
			MaxSize:    orDefault(cfg.MaxSizeMB, 100),
			MaxBackups: orDefault(cfg.MaxBackups, 5),
			MaxAge:     orDefault(cfg.MaxAgeDays, 30),
			Compress:   cfg.Compress,
		}
		cores = append(cores, zapcore.NewCore(newEncoder(), zapcore.AddSync(w), level))
	}

	opts := []zap.Option{zap.AddCaller(), zap.AddCallerSkip(1)}
	if cfg.Development {
		opts = append(opts, zap.Development())
	}

	return &zlogger{z: zap.New(zapcore.NewTee(cores...), opts...)}, nil
}

// NewNop returns a Logger that discards everything.
func NewNop() Logger { return &zlogger{z: zap.NewNop()} }

// FromZap adapts an existing *zap.Logger (tests use this with an observer core).
func FromZap(z *zap.Logger) Logger { return &zlogger{z: z} }

func orDefault(v, def int) int {
	if v <= 0 {
		return def
	}
	return v
}

func (l *zlogger) Debug(msg string, fields ...Field) { l.z.Debug(msg, fields...) }
func (l *zlogger) Info(msg string, fields ...Field)  { l.z.Info(msg, fields...) }
func (l *zlogger) Warn(msg string, fields ...Field)  { l.z.Warn(msg, fields...) }
func (l *zlogger) Error(msg string, fields ...Field) { l.z.Error(msg, fields...) }

func (l *zlogger) With(fields ...Field) Logger { return &zlogger{z: l.z.With(fields...)} }
func (l *zlogger) Named(name string) Logger    { return &zlogger{z: l.z.Named(name)} }
func (l *zlogger) Sync() error                 { return l.z.Sync() }

// Field constructors.
func String(key, val string) Field                 { return zap.String(key, val) }
func Strings(key string, val []string) Field       { return zap.Strings(key, val) }
func Int(key string, val int) Field                { return zap.Int(key, val) }
func Int64(key string, val int64) Field            { return zap.Int64(key, val) }
func Bool(key string, val bool) Field              { return zap.Bool(key, val) }
func Any(key string, val any) Field                { return zap.Any(key, val) }
func Err(err error) Field                          { return zap.Error(err) }
func Duration(key string, val time.Duration) Field { return zap.Duration(key, val) }
