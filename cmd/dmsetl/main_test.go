package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/klauspost/compress/zip"

	"dmsetl/internal/registry"
)

func write(t *testing.T, path, body string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
}

// newWorkspace lays out a run config, a client registration, one DMS schema
// and an inbound archive under a temp dir and returns the config path.
func newWorkspace(t *testing.T, dmsSchema string) string {
	t.Helper()
	root := t.TempDir()
	write(t, filepath.Join(root, "run.yaml"), `
job: dmsetl-test
working_dir: work
scratch_dir: scratch
clients_dir: clients
logging:
  level: error
storage:
  kind: sqlite
  dsn: `+filepath.Join(root, "dms.db")+`
`)
	write(t, filepath.Join(root, "clients", "12", "Config", "config.json"),
		`{"client_id": "12", "branches": [{"code": "05", "dms": {"ACME": ["MACC"]}}]}`)
	write(t, filepath.Join(root, "clients", "dms", "ACME.json"), dmsSchema)

	if err := os.MkdirAll(filepath.Join(root, "work"), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	f, err := os.Create(filepath.Join(root, "work", "00120505231101.zip"))
	if err != nil {
		t.Fatalf("create zip: %v", err)
	}
	zw := zip.NewWriter(f)
	w, err := zw.Create("MACC.txt")
	if err != nil {
		t.Fatalf("zip entry: %v", err)
	}
	_, _ = w.Write([]byte("Code|\nA1|\n"))
	if err := zw.Close(); err != nil {
		t.Fatalf("zip close: %v", err)
	}
	if err := f.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	return filepath.Join(root, "run.yaml")
}

const goodSchema = `{"reports": {"MACC": {"columns": ["Code", "Description (computed)"], "formulas": {"Description (computed)": "Code"}}}}`

func TestExecute_UsageErrors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		args []string
		want string
	}{
		{"missing_config", []string{"validate"}, "--config is required"},
		{"blank_config", []string{"run", "--config", "  "}, "--config is required"},
		{"unknown_flag", []string{"validate", "--nope"}, "unknown flag"},
		{"migrate_without_in", []string{"migrate"}, "--in is required"},
		{"probe_without_file", []string{"probe"}, "--file is required"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			var stdout, stderr bytes.Buffer
			if code := execute(tc.args, &stdout, &stderr); code != exitUsage {
				t.Fatalf("exit code = %d, want %d (stderr %q)", code, exitUsage, stderr.String())
			}
			if !strings.Contains(stderr.String(), tc.want) {
				t.Fatalf("stderr %q does not mention %q", stderr.String(), tc.want)
			}
		})
	}
}

func TestValidate(t *testing.T) {
	t.Parallel()

	var stdout, stderr bytes.Buffer
	if code := execute([]string{"validate", "--config", newWorkspace(t, goodSchema)}, &stdout, &stderr); code != exitOK {
		t.Fatalf("exit code = %d, stderr %q", code, stderr.String())
	}
	if !strings.Contains(stdout.String(), "configuration is valid") {
		t.Fatalf("stdout = %q", stdout.String())
	}

	stale := `{"reports": {"MACC": {"columns": ["Code"], "formulas": {"Old": "TEXT"}}}}`
	stdout.Reset()
	stderr.Reset()
	if code := execute([]string{"validate", "--config", newWorkspace(t, stale)}, &stdout, &stderr); code != exitOK {
		t.Fatalf("stale formula: exit code = %d, stdout %q", code, stdout.String())
	}
	if !strings.Contains(stdout.String(), `warning: ACME.json: report MACC: formula for unknown column "Old"`) {
		t.Fatalf("stdout = %q", stdout.String())
	}

	bad := `{"reports": {"MACC": {"columns": ["Code", "Description (computed)"]}}}`
	stdout.Reset()
	stderr.Reset()
	if code := execute([]string{"validate", "--config", newWorkspace(t, bad)}, &stdout, &stderr); code != exitFatal {
		t.Fatalf("exit code = %d, want %d", code, exitFatal)
	}
	if !strings.Contains(stdout.String(), "has no formula") {
		t.Fatalf("stdout = %q", stdout.String())
	}
}

func TestValidate_InvalidRunConfig(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "run.yaml")
	write(t, path, "storage:\n  kind: oracle\n")
	var stdout, stderr bytes.Buffer
	if code := execute([]string{"validate", "--config", path}, &stdout, &stderr); code != exitFatal {
		t.Fatalf("exit code = %d, want %d", code, exitFatal)
	}
	for _, want := range []string{"working_dir", `unsupported kind "oracle"`} {
		if !strings.Contains(stderr.String(), want) {
			t.Fatalf("stderr %q does not mention %q", stderr.String(), want)
		}
	}
}

func TestResolve(t *testing.T) {
	t.Parallel()

	var stdout, stderr bytes.Buffer
	cfg := newWorkspace(t, goodSchema)
	if code := execute([]string{"resolve", "--config", cfg}, &stdout, &stderr); code != exitOK {
		t.Fatalf("exit code = %d, stderr %q", code, stderr.String())
	}
	out := stdout.String()
	for _, want := range []string{"client 12 branch 05", "MACC05", "Description (computed)"} {
		if !strings.Contains(out, want) {
			t.Fatalf("stdout %q does not mention %q", out, want)
		}
	}

	stdout.Reset()
	stderr.Reset()
	if code := execute([]string{"resolve", "--config", cfg, "--archive", "00120909.zip"}, &stdout, &stderr); code != exitFatal {
		t.Fatalf("unregistered branch: exit code = %d", code)
	}
}

func TestRun_LoadsIntoSQLite(t *testing.T) {
	t.Parallel()

	var stdout, stderr bytes.Buffer
	code := execute([]string{"run", "--config", newWorkspace(t, goodSchema)}, &stdout, &stderr)
	if code != exitOK {
		t.Fatalf("exit code = %d, stderr %q", code, stderr.String())
	}
	if !strings.Contains(stdout.String(), "MACC05") || !strings.Contains(stdout.String(), "loaded") {
		t.Fatalf("stdout = %q", stdout.String())
	}
}

func TestMigrate(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	in := filepath.Join(dir, "legacy.json")
	out := filepath.Join(dir, "ACME.json")
	write(t, in, `{"columnas_esperadas": {
  "MACC": ["Code", "Description"],
  "VTAS": {"columnas": ["Factura", "Total (computed)"], "formulas": {"Total (computed)": "Factura"}}
}}`)

	var stdout, stderr bytes.Buffer
	if code := execute([]string{"migrate", "--in", in, "--out", out}, &stdout, &stderr); code != exitOK {
		t.Fatalf("exit code = %d, stderr %q", code, stderr.String())
	}
	raw, err := os.ReadFile(out)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	s, err := registry.DecodeDmsSchema(raw)
	if err != nil {
		t.Fatalf("migrated document rejected: %v", err)
	}
	if got := s.Reports["VTAS"].Formulas["Total (computed)"]; got != "Factura" {
		t.Fatalf("VTAS formula = %q", got)
	}
	if len(s.Reports["MACC"].Columns) != 2 {
		t.Fatalf("MACC columns = %v", s.Reports["MACC"].Columns)
	}
}

func TestProbe(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "MACC.txt")
	write(t, path, "Code|Alta\nA1|01/11/2023\n")
	var stdout, stderr bytes.Buffer
	if code := execute([]string{"probe", "--file", path, "--stats"}, &stdout, &stderr); code != exitOK {
		t.Fatalf("exit code = %d, stderr %q", code, stderr.String())
	}
	s, err := registry.DecodeDmsSchema(stdout.Bytes())
	if err != nil {
		t.Fatalf("probe output rejected: %v", err)
	}
	if got := s.Reports["MACC"].Types["Alta"].Type; got != "DATE" {
		t.Fatalf("Alta type = %q", got)
	}
	if !strings.Contains(stderr.String(), "1 rows sampled") {
		t.Fatalf("stderr = %q", stderr.String())
	}
}
