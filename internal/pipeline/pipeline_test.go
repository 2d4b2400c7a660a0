package pipeline

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/klauspost/compress/zip"

	"dmsetl/internal/config"
	"dmsetl/internal/formula"
	"dmsetl/internal/loader"
	"dmsetl/internal/parser/pipe"
	"dmsetl/internal/registry"
	_ "dmsetl/internal/storage/sqlite"
)

func writeFile(t *testing.T, path, body string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}

func writeZip(t *testing.T, path string, files map[string]string) {
	t.Helper()
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("create zip: %v", err)
	}
	zw := zip.NewWriter(f)
	for name, body := range files {
		w, err := zw.Create(name)
		if err != nil {
			t.Fatalf("zip entry: %v", err)
		}
		if _, err := w.Write([]byte(body)); err != nil {
			t.Fatalf("zip write: %v", err)
		}
	}
	if err := zw.Close(); err != nil {
		t.Fatalf("zip close: %v", err)
	}
	if err := f.Close(); err != nil {
		t.Fatalf("file close: %v", err)
	}
}

type fixture struct {
	cfg     config.Run
	dbPath  string
	scratch string
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	root := t.TempDir()
	work := filepath.Join(root, "work")
	scratch := filepath.Join(root, "scratch")
	clients := filepath.Join(root, "clients")
	if err := os.MkdirAll(work, 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}

	writeFile(t, filepath.Join(clients, "12", "Config", "config.json"), `{
  "client_id": "12",
  "branches": [{"code": "05", "dms": {"ACME": ["MACC", "VTAS", "MISSING"]}}]
}`)
	writeFile(t, filepath.Join(clients, "dms", "ACME.json"), `{
  "reports": {
    "MACC": {
      "columns": ["Code", "Description (computed)"],
      "formulas": {"Description (computed)": "Code"}
    },
    "VTAS": {
      "columns": ["Factura", "Venta$"]
    }
  }
}`)
	writeZip(t, filepath.Join(work, "00120505231101.zip"), map[string]string{
		"MACC_export.txt": "Exported by DMS\r\nCode|\r\nA1|\r\nB2|\r\n",
		"VTAS.txt":        "Factura|Venta$\nF1|100\nF1|50\n",
	})

	dbPath := filepath.Join(root, "dms.db")
	cfg := config.Run{
		WorkingDir: work,
		ScratchDir: scratch,
		ClientsDir: clients,
		Storage:    config.Storage{Kind: "sqlite", DSN: dbPath},
	}
	cfg.ApplyDefaults()
	return fixture{cfg: cfg, dbPath: dbPath, scratch: scratch}
}

func TestRun_EndToEnd(t *testing.T) {
	t.Parallel()

	fx := newFixture(t)
	r := NewRunner(fx.cfg, nil)
	r.Now = func() time.Time { return time.Date(2023, 11, 1, 0, 0, 0, 0, time.UTC) }

	sum, err := r.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if sum.Client != "12" || sum.Branch != "05" {
		t.Fatalf("identity = %s/%s", sum.Client, sum.Branch)
	}

	statuses := map[string]string{}
	for _, o := range sum.Reports {
		statuses[o.Report] = o.Status
	}
	wantStatus := map[string]string{"MACC": StatusLoaded, "VTAS": StatusLoaded, "MISSING": StatusSkipped}
	if diff := cmp.Diff(wantStatus, statuses); diff != "" {
		t.Fatalf("statuses (-want +got):\n%s", diff)
	}

	db, err := sql.Open("sqlite", fx.dbPath)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer db.Close()

	var cols []string
	rs, err := db.Query(`SELECT name FROM pragma_table_info('MACC05') ORDER BY cid`)
	if err != nil {
		t.Fatalf("table_info: %v", err)
	}
	for rs.Next() {
		var n string
		if err := rs.Scan(&n); err != nil {
			t.Fatalf("scan: %v", err)
		}
		cols = append(cols, n)
	}
	rs.Close()
	if diff := cmp.Diff([]string{"Client", "Branch", "Code", "Description"}, cols); diff != "" {
		t.Fatalf("MACC05 columns (-want +got):\n%s", diff)
	}

	var got [][]string
	rs, err = db.Query(`SELECT "Client", "Branch", "Code", "Description" FROM "MACC05" ORDER BY "Code"`)
	if err != nil {
		t.Fatalf("select: %v", err)
	}
	for rs.Next() {
		var c, b, code, desc string
		if err := rs.Scan(&c, &b, &code, &desc); err != nil {
			t.Fatalf("scan: %v", err)
		}
		got = append(got, []string{c, b, code, desc})
	}
	rs.Close()
	want := [][]string{{"12", "05", "A1", "A1"}, {"12", "05", "B2", "B2"}}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("MACC05 rows (-want +got):\n%s", diff)
	}

	derived, err := os.ReadFile(filepath.Join(fx.scratch, "VTASR05.txt"))
	if err != nil {
		t.Fatalf("derived file: %v", err)
	}
	if string(derived) != "Factura|Venta$\nF1|150\n" {
		t.Fatalf("derived = %q", derived)
	}
	if _, err := os.Stat(filepath.Join(fx.scratch, "MACC05.sql.dump")); err != nil {
		t.Fatalf("dump missing: %v", err)
	}
	if _, err := os.Stat(filepath.Join(fx.scratch, "MACC05.txt")); !errors.Is(err, fs.ErrNotExist) {
		t.Fatalf("staged input should be cleaned, stat err = %v", err)
	}
}

func TestRun_DerivedFileIngestedNextRun(t *testing.T) {
	t.Parallel()

	fx := newFixture(t)
	reg := filepath.Join(fx.cfg.ClientsDir, "12", "Config", "config.json")
	writeFile(t, reg, `{"client_id": "12", "branches": [{"code": "05", "dms": {"ACME": ["VTAS", "VTASR"]}}]}`)
	writeFile(t, filepath.Join(fx.cfg.ClientsDir, "dms", "ACME.json"), `{
  "reports": {
    "VTAS":  {"columns": ["Factura", "Venta$"]},
    "VTASR": {"columns": ["Factura", "Venta$"], "types": {"Venta$": {"type": "DECIMAL", "precision": 12, "scale": 2}}}
  }
}`)

	r := NewRunner(fx.cfg, nil)
	first, err := r.Run(context.Background())
	if err != nil {
		t.Fatalf("first Run: %v", err)
	}
	if got := first.Reports[1].Status; got != StatusSkipped {
		t.Fatalf("VTASR on first run = %s, want skipped", got)
	}

	second, err := r.Run(context.Background())
	if err != nil {
		t.Fatalf("second Run: %v", err)
	}
	if got := second.Reports[1]; got.Status != StatusLoaded || got.Rows != 1 {
		t.Fatalf("VTASR on second run = %+v", got)
	}

	db, err := sql.Open("sqlite", fx.dbPath)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer db.Close()
	var total float64
	if err := db.QueryRow(`SELECT SUM("Venta$") FROM "VTASR05"`).Scan(&total); err != nil {
		t.Fatalf("sum: %v", err)
	}
	if total != 150 {
		t.Fatalf("VTASR05 total = %v", total)
	}
}

func TestRun_KeptDerivedFileLeavesSourceReportAlone(t *testing.T) {
	t.Parallel()

	// The default fixture registers VTAS but not VTASR.
	fx := newFixture(t)
	r := NewRunner(fx.cfg, nil)
	for i := 0; i < 2; i++ {
		sum, err := r.Run(context.Background())
		if err != nil {
			t.Fatalf("Run %d: %v", i+1, err)
		}
		for _, o := range sum.Reports {
			if o.Report == "VTAS" && (o.Status != StatusLoaded || o.Rows != 2) {
				t.Fatalf("run %d: VTAS outcome = %+v", i+1, o)
			}
			if o.Report == "VTASR" {
				t.Fatalf("run %d: unregistered derived report processed", i+1)
			}
		}
	}

	db, err := sql.Open("sqlite", fx.dbPath)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer db.Close()
	var n int
	var total float64
	if err := db.QueryRow(`SELECT COUNT(*), SUM("Venta$") FROM "VTAS05"`).Scan(&n, &total); err != nil {
		t.Fatalf("query: %v", err)
	}
	if n != 2 || total != 150 {
		t.Fatalf("VTAS05 rows=%d sum=%v, want the 2 raw rows summing to 150", n, total)
	}
	if _, err := os.Stat(filepath.Join(fx.scratch, "VTASR05.txt")); err != nil {
		t.Fatalf("derived file not kept: %v", err)
	}
}

func TestRun_StaleFormulaDoesNotAbandonReport(t *testing.T) {
	t.Parallel()

	fx := newFixture(t)
	writeFile(t, filepath.Join(fx.cfg.ClientsDir, "dms", "ACME.json"), `{
  "reports": {
    "MACC": {"columns": ["Code"], "formulas": {"Old": "TEXT"}},
    "VTAS": {"columns": ["Factura", "Venta$"]}
  }
}`)
	sum, err := NewRunner(fx.cfg, nil).Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if got := sum.Reports[0]; got.Report != "MACC" || got.Status != StatusLoaded || got.Rows != 2 {
		t.Fatalf("MACC outcome = %+v", got)
	}
}

func TestRun_ConfigErrorsAbort(t *testing.T) {
	t.Parallel()

	fx := newFixture(t)
	if err := os.RemoveAll(filepath.Join(fx.cfg.ClientsDir, "12")); err != nil {
		t.Fatalf("remove: %v", err)
	}
	_, err := NewRunner(fx.cfg, nil).Run(context.Background())
	if Classify(err) != ClassConfig || !IsFatal(err) {
		t.Fatalf("expected config error, got %v", err)
	}
}

func TestRun_NoArchive(t *testing.T) {
	t.Parallel()

	cfg := config.Run{WorkingDir: t.TempDir(), ScratchDir: t.TempDir(), ClientsDir: t.TempDir()}
	cfg.ApplyDefaults()
	_, err := NewRunner(cfg, nil).Run(context.Background())
	if Classify(err) != ClassIO {
		t.Fatalf("expected io error, got %v", err)
	}
}

func TestClassify(t *testing.T) {
	t.Parallel()

	cases := []struct {
		err  error
		want string
	}{
		{nil, ""},
		{fmt.Errorf("x: %w", registry.ErrConfigNotFound), ClassConfig},
		{fmt.Errorf("x: %w", registry.ErrConfigInvalid), ClassConfig},
		{fmt.Errorf("x: %w", pipe.ErrDecode), ClassDecode},
		{&formula.Error{Report: "R", Column: "C", Err: errors.New("bad")}, ClassFormula},
		{fmt.Errorf("%w: T insert", loader.ErrLoad), ClassLoad},
		{&fs.PathError{Op: "open", Path: "x", Err: fs.ErrNotExist}, ClassIO},
		{errors.New("other"), ClassUnknown},
	}
	for _, tc := range cases {
		if got := Classify(tc.err); got != tc.want {
			t.Errorf("Classify(%v) = %q, want %q", tc.err, got, tc.want)
		}
	}
}
