package probe

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"

	"dmsetl/internal/registry"
	"dmsetl/internal/schema"
)

func TestFile_DraftsSpec(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "VTAS05.txt")
	body := "Ventas del mes\n" +
		"Factura|Fecha|Venta$||Factura|\n" +
		"F1|01/11/2023|1,200.50|x|A|\n" +
		"F2|02/11/2023|3||B|\n" +
		"F3||7.25|y|A|\n"
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	res, err := File(path, Options{})
	if err != nil {
		t.Fatalf("File: %v", err)
	}
	if diff := cmp.Diff([]string{"Factura", "Fecha", "Venta$", "col_4", "Factura_1"}, res.Spec.Columns); diff != "" {
		t.Fatalf("columns (-want +got):\n%s", diff)
	}
	if res.Sampled != 3 {
		t.Fatalf("sampled = %d", res.Sampled)
	}

	wantTypes := map[string]string{
		"Factura":   "VARCHAR",
		"Fecha":     "DATE",
		"Venta$":    "NUMERIC",
		"col_4":     "VARCHAR",
		"Factura_1": "VARCHAR",
	}
	for name, want := range wantTypes {
		if got := res.Spec.Types[name].Type; got != want {
			t.Errorf("%s type = %s, want %s", name, got, want)
		}
	}

	fecha := res.Columns[1]
	if fecha.Empty != 1 || fecha.Distinct != 2 || fecha.MaxLen != 10 {
		t.Fatalf("Fecha stats = %+v", fecha)
	}
	if got := res.Columns[4].Distinct; got != 2 {
		t.Fatalf("Factura_1 distinct = %d", got)
	}
}

func TestFile_SampleBound(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "R.txt")
	if err := os.WriteFile(path, []byte("A|B\n1|x\n2|y\n3|z\n"), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	res, err := File(path, Options{SampleRows: 2})
	if err != nil {
		t.Fatalf("File: %v", err)
	}
	if res.Sampled != 2 || res.Columns[1].Distinct != 2 {
		t.Fatalf("result = %+v", res)
	}
}

func TestFile_NoRows(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "empty.txt")
	if err := os.WriteFile(path, []byte("no delimiter here\n"), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	if _, err := File(path, Options{}); err == nil {
		t.Fatalf("expected error")
	}
}

func TestTypeSpecOf_ParsesBack(t *testing.T) {
	t.Parallel()

	types := []schema.ColumnType{
		schema.Char(40),
		{Kind: schema.KindText},
		{Kind: schema.KindInteger},
		{Kind: schema.KindBigInt},
		{Kind: schema.KindNumeric, Precision: 12, Scale: 3},
		{Kind: schema.KindFloat},
		{Kind: schema.KindDate},
		{Kind: schema.KindTimestamp},
		{Kind: schema.KindBoolean},
	}
	for _, ct := range types {
		got, err := schema.ParseTypeSpec(TypeSpecOf(ct), 255)
		if err != nil {
			t.Fatalf("ParseTypeSpec(%v): %v", TypeSpecOf(ct), err)
		}
		if got != ct {
			t.Errorf("round trip %v -> %v", ct, got)
		}
	}
	if got := TypeSpecOf(schema.Char(10)); got != (registry.TypeSpec{Type: "VARCHAR", Length: 10}) {
		t.Fatalf("char spec = %+v", got)
	}
}
