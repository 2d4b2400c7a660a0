package table

import (
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestNew_Validation(t *testing.T) {
	t.Parallel()
	if _, err := New([]string{"A", "A"}, nil); err == nil {
		t.Fatalf("duplicate names accepted")
	}
	if _, err := New([]string{"A", ""}, nil); err == nil {
		t.Fatalf("empty name accepted")
	}
	if _, err := New([]string{"A", "B"}, [][]string{{"1"}}); err == nil {
		t.Fatalf("short row accepted")
	}
}

func TestTable_Mutations(t *testing.T) {
	t.Parallel()
	tb, err := New([]string{"Code", "Price"}, [][]string{{"a", "1"}, {"b", "2"}})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	if err := tb.Insert(0, "Client", Fill(tb.Len(), "12")); err != nil {
		t.Fatalf("Insert: %v", err)
	}
	if err := tb.Append("Total", []string{"x", "y"}); err != nil {
		t.Fatalf("Append: %v", err)
	}
	if err := tb.Move("Total", 1); err != nil {
		t.Fatalf("Move: %v", err)
	}
	if err := tb.Rename("Total", "Sum"); err != nil {
		t.Fatalf("Rename: %v", err)
	}
	if err := tb.Rename("Sum", "Code"); err == nil {
		t.Fatalf("rename onto existing column accepted")
	}
	tb.Drop("Price")
	tb.Drop("Nope")

	if diff := cmp.Diff([]string{"Client", "Sum", "Code"}, tb.Columns()); diff != "" {
		t.Fatalf("columns (-want +got):\n%s", diff)
	}
	want := [][]string{{"12", "x", "a"}, {"12", "y", "b"}}
	if diff := cmp.Diff(want, tb.Rows()); diff != "" {
		t.Fatalf("rows (-want +got):\n%s", diff)
	}
	if tb.Index("Code") != 2 || tb.Index("Price") != -1 {
		t.Fatalf("index not maintained")
	}

	if err := tb.Set("Code", []string{"only-one"}); err == nil {
		t.Fatalf("Set with wrong length accepted")
	}
	if err := tb.Set("Code", []string{"c", "d"}); err != nil || tb.Column("Code")[1] != "d" {
		t.Fatalf("Set: %v", err)
	}
}

func TestTable_ZeroValueInsert(t *testing.T) {
	t.Parallel()
	var tb Table
	if err := tb.Append("A", []string{"1", "2", "3"}); err != nil {
		t.Fatalf("Append: %v", err)
	}
	if tb.Len() != 3 || tb.Width() != 1 {
		t.Fatalf("len=%d width=%d", tb.Len(), tb.Width())
	}
}
