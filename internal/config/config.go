// Package config loads and validates the run configuration.
//
// A run config is a YAML document. String values may reference environment
// variables as ${VAR}; an optional .env file next to the config (or named by
// EnvFile) is loaded first so credentials can stay out of the YAML.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"dmsetl/internal/logger"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Run is the top-level run configuration.
type Run struct {
	Job        string `yaml:"job"`
	WorkingDir string `yaml:"working_dir"`
	ScratchDir string `yaml:"scratch_dir"`
	ClientsDir string `yaml:"clients_dir"`
	// DumpDir receives <table>.sql.dump documents. Defaults to ScratchDir.
	DumpDir string `yaml:"dump_dir"`
	EnvFile string `yaml:"env_file"`

	Delimiter string   `yaml:"delimiter"`
	Encodings []string `yaml:"encodings"`

	Identity  Identity      `yaml:"identity"`
	Types     Types         `yaml:"types"`
	Storage   Storage       `yaml:"storage"`
	Logging   logger.Config `yaml:"logging"`
	Metrics   Metrics       `yaml:"metrics"`
	Aggregate Aggregate     `yaml:"aggregate"`
}

// Identity controls the identity columns prepended to every loaded table.
type Identity struct {
	// IncludeDate adds a Date column holding the run date (DMY).
	IncludeDate bool `yaml:"include_date"`
}

// Types controls storage type resolution.
type Types struct {
	DefaultCharLength int  `yaml:"default_char_length"`
	Infer             bool `yaml:"infer"`
}

// Storage selects the relational backend.
//
// DSN wins when set. Otherwise the backend builds one from the discrete fields.
type Storage struct {
	Kind     string `yaml:"kind"` // postgres | mssql | sqlite
	DSN      string `yaml:"dsn"`
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	Database string `yaml:"database"`
}

// Metrics selects the metrics backend.
type Metrics struct {
	Backend    string        `yaml:"backend"` // none | datadog
	Tags       []string      `yaml:"tags"`
	FlushEvery time.Duration `yaml:"flush_every"`
}

// Aggregate configures the derived aggregate report.
type Aggregate struct {
	Enabled *bool    `yaml:"enabled"`
	Family  string   `yaml:"family"`
	Derived string   `yaml:"derived"`
	GroupBy []string `yaml:"group_by"`
	Sum     []string `yaml:"sum"`
}

// On reports whether aggregation is enabled (default true).
func (a Aggregate) On() bool { return a.Enabled == nil || *a.Enabled }

// Defaults applied by Load.
const (
	DefaultDelimiter   = "|"
	DefaultCharLength  = 255
	DefaultAggFamily   = "VTAS"
	DefaultAggDerived  = "VTASR"
	DefaultStorageKind = "postgres"
)

// DefaultEncodings is the fixed candidate order used when none are configured.
var DefaultEncodings = []string{"utf-8", "utf-16", "iso-8859-1", "windows-1252"}

// DefaultGroupBy and DefaultSum are the aggregate columns for the VTAS family.
var (
	DefaultGroupBy = []string{"Fecha", "Factura", "Orden", "Cliente", "Nombre", "VIN", "Modelo", "Anio"}
	DefaultSum     = []string{"Venta$", "Costo$", "Descuento$", "Utilidad$"}
)

// Load reads path, expands ${VAR} references and applies defaults.
//
// Edge cases:
//   - A missing env file is ignored; a malformed one is an error.
//   - Relative directories are resolved against the config file's directory.
//
// Errors:
//   - I/O and YAML decoding errors are wrapped with the path.
func Load(path string) (Run, error) {
	var r Run

	base := filepath.Dir(path)
	if err := loadEnv(filepath.Join(base, ".env")); err != nil {
		return r, err
	}

	b, err := os.ReadFile(path)
	if err != nil {
		return r, fmt.Errorf("config: read %s: %w", path, err)
	}
	if err := yaml.Unmarshal([]byte(os.ExpandEnv(string(b))), &r); err != nil {
		return r, fmt.Errorf("config: decode %s: %w", path, err)
	}

	if r.EnvFile != "" {
		if err := loadEnv(resolve(base, r.EnvFile)); err != nil {
			return r, err
		}
		// re-expand now that the named env file is loaded
		r = Run{}
		if err := yaml.Unmarshal([]byte(os.ExpandEnv(string(b))), &r); err != nil {
			return r, fmt.Errorf("config: decode %s: %w", path, err)
		}
	}

	r.WorkingDir = resolve(base, r.WorkingDir)
	r.ScratchDir = resolve(base, r.ScratchDir)
	r.ClientsDir = resolve(base, r.ClientsDir)
	r.DumpDir = resolve(base, r.DumpDir)
	r.ApplyDefaults()
	return r, nil
}

// ApplyDefaults fills zero values. Load calls it; tests building a Run by hand
// call it directly.
func (r *Run) ApplyDefaults() {
	if r.Job == "" {
		r.Job = "dmsetl"
	}
	if r.Delimiter == "" {
		r.Delimiter = DefaultDelimiter
	}
	if len(r.Encodings) == 0 {
		r.Encodings = append([]string(nil), DefaultEncodings...)
	}
	if r.DumpDir == "" {
		r.DumpDir = r.ScratchDir
	}
	if r.Types.DefaultCharLength <= 0 {
		r.Types.DefaultCharLength = DefaultCharLength
	}
	if r.Storage.Kind == "" {
		r.Storage.Kind = DefaultStorageKind
	}
	if r.Metrics.Backend == "" {
		r.Metrics.Backend = "none"
	}
	if r.Aggregate.Family == "" {
		r.Aggregate.Family = DefaultAggFamily
	}
	if r.Aggregate.Derived == "" {
		r.Aggregate.Derived = DefaultAggDerived
	}
	if len(r.Aggregate.GroupBy) == 0 {
		r.Aggregate.GroupBy = append([]string(nil), DefaultGroupBy...)
	}
	if len(r.Aggregate.Sum) == 0 {
		r.Aggregate.Sum = append([]string(nil), DefaultSum...)
	}
}

func loadEnv(path string) error {
	err := godotenv.Load(path)
	if err == nil || errors.Is(err, os.ErrNotExist) {
		return nil
	}
	return fmt.Errorf("config: load env %s: %w", path, err)
}

func resolve(base, p string) string {
	if p == "" || filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(base, p)
}

// Severity of a validation Issue.
type Severity string

const (
	SeverityError   Severity = "error"
	SeverityWarning Severity = "warning"
)

// Issue is one validation finding. Path is a dotted YAML path.
type Issue struct {
	Severity Severity
	Path     string
	Message  string
}

func (i Issue) String() string {
	return fmt.Sprintf("%s: %s: %s", i.Severity, i.Path, i.Message)
}

// HasErrors reports whether any issue is an error.
func HasErrors(issues []Issue) bool {
	for _, iss := range issues {
		if iss.Severity == SeverityError {
			return true
		}
	}
	return false
}

var knownEncodings = map[string]bool{
	"utf-8": true, "utf-16": true, "iso-8859-1": true, "latin1": true, "windows-1252": true,
}

// Validate checks r after defaults were applied.
func Validate(r Run) []Issue {
	var issues []Issue
	add := func(sev Severity, path, msg string) {
		issues = append(issues, Issue{Severity: sev, Path: path, Message: msg})
	}

	if r.WorkingDir == "" {
		add(SeverityError, "working_dir", "required")
	}
	if r.ScratchDir == "" {
		add(SeverityError, "scratch_dir", "required")
	}
	if r.ClientsDir == "" {
		add(SeverityError, "clients_dir", "required")
	}
	if r.WorkingDir != "" && r.WorkingDir == r.ScratchDir {
		add(SeverityError, "scratch_dir", "must differ from working_dir; scratch is cleaned every run")
	}
	if len(r.Delimiter) == 0 || strings.ContainsAny(r.Delimiter, "\r\n") {
		add(SeverityError, "delimiter", "must be non-empty and single-line")
	}
	for i, e := range r.Encodings {
		if !knownEncodings[strings.ToLower(e)] {
			add(SeverityError, fmt.Sprintf("encodings[%d]", i), fmt.Sprintf("unsupported encoding %q", e))
		}
	}

	switch r.Storage.Kind {
	case "postgres", "mssql":
		if r.Storage.DSN == "" && (r.Storage.Host == "" || r.Storage.Database == "") {
			add(SeverityError, "storage", "dsn or host+database required")
		}
	case "sqlite":
		if r.Storage.DSN == "" && r.Storage.Database == "" {
			add(SeverityError, "storage", "dsn or database path required")
		}
	default:
		add(SeverityError, "storage.kind", fmt.Sprintf("unsupported kind %q", r.Storage.Kind))
	}

	switch r.Metrics.Backend {
	case "none", "datadog":
	default:
		add(SeverityWarning, "metrics.backend", fmt.Sprintf("unknown backend %q; metrics disabled", r.Metrics.Backend))
	}

	if r.Aggregate.On() {
		if r.Aggregate.Family == r.Aggregate.Derived {
			add(SeverityError, "aggregate.derived", "must differ from aggregate.family")
		}
		if len(r.Aggregate.Sum) == 0 {
			add(SeverityWarning, "aggregate.sum", "no sum columns; derived report only groups")
		}
	}

	if r.Types.DefaultCharLength > 8000 && r.Storage.Kind == "mssql" {
		add(SeverityWarning, "types.default_char_length", "exceeds VARCHAR limit on mssql")
	}
	return issues
}
