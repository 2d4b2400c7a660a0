package aggregate

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"

	"dmsetl/internal/table"
)

func mustTable(t *testing.T, names []string, rows [][]string) *table.Table {
	t.Helper()
	tb, err := table.New(names, rows)
	if err != nil {
		t.Fatalf("table.New: %v", err)
	}
	return tb
}

var rule = Rule{
	Family:  "VTAS",
	Derived: "VTASR",
	GroupBy: []string{"Fecha", "Factura", "Cliente", "Missing"},
	Sum:     []string{"Venta$", "Costo$"},
}

func TestDerive_SumsSharedKeys(t *testing.T) {
	t.Parallel()

	src := mustTable(t, []string{"Fecha", "Factura", "Cliente", "Venta$", "Costo$", "Extra"}, [][]string{
		{"01/11/2023", "F1", "ACME", "100", "60", "x"},
		{"02/11/2023", "F2", "Otro", "7", "", "y"},
		{"01/11/2023", "F1", "ACME", "50", "n/a", "z"},
	})
	res, err := Derive(src, rule)
	if err != nil {
		t.Fatalf("Derive: %v", err)
	}
	if diff := cmp.Diff([]string{"Fecha", "Factura", "Cliente", "Venta$", "Costo$"}, res.Table.Columns()); diff != "" {
		t.Fatalf("columns (-want +got):\n%s", diff)
	}
	want := [][]string{
		{"01/11/2023", "F1", "ACME", "150", "60"},
		{"02/11/2023", "F2", "Otro", "7", "0"},
	}
	if diff := cmp.Diff(want, res.Table.Rows()); diff != "" {
		t.Fatalf("rows (-want +got):\n%s", diff)
	}
	if res.Garbage != 1 {
		t.Fatalf("garbage = %d", res.Garbage)
	}
}

func TestDerive_NoConfiguredColumns(t *testing.T) {
	t.Parallel()

	src := mustTable(t, []string{"A"}, [][]string{{"1"}})
	if _, err := Derive(src, rule); err == nil {
		t.Fatalf("expected error")
	}
}

func TestWrite_DerivedFile(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	src := mustTable(t, []string{"Factura", "Venta$"}, [][]string{{"F1", "1.5"}, {"F1", "2"}})
	res, err := Derive(src, rule)
	if err != nil {
		t.Fatalf("Derive: %v", err)
	}
	path, err := Write(dir, rule.Derived, "05", "|", res.Table)
	if err != nil {
		t.Fatalf("Write: %v", err)
	}
	if path != filepath.Join(dir, "VTASR05.txt") {
		t.Fatalf("path = %s", path)
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if got, want := string(raw), "Factura|Venta$\nF1|3.5\n"; got != want {
		t.Fatalf("file = %q, want %q", got, want)
	}
}

func TestApplies(t *testing.T) {
	t.Parallel()

	if !rule.Applies("vtas") || rule.Applies("VTASR") || (Rule{}).Applies("") {
		t.Fatalf("Applies mismatch")
	}
}
