package loader

import (
	"context"
	"errors"
	"os"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"dmsetl/internal/dump"
	"dmsetl/internal/schema"
	"dmsetl/internal/storage"
)

// fakeStore records executed statements and fails the INSERTs listed in
// failInserts (1-based attempt numbers).
type fakeStore struct {
	executed    []string
	inserts     int
	failInserts map[int]bool
	failPrefix  string
	versionErr  error
}

func (f *fakeStore) Exec(_ context.Context, q string) error {
	f.executed = append(f.executed, q)
	if f.failPrefix != "" && strings.HasPrefix(q, f.failPrefix) {
		return errors.New("boom")
	}
	if strings.HasPrefix(q, "INSERT") {
		f.inserts++
		if f.failInserts[f.inserts] {
			return errors.New(`value too long for type character varying(10)`)
		}
	}
	return nil
}

func (f *fakeStore) ServerVersion(context.Context) (string, error) {
	if f.versionErr != nil {
		return "", f.versionErr
	}
	return "PostgreSQL 16.2", nil
}

func (f *fakeStore) Database() string         { return "dms" }
func (f *fakeStore) Dialect() storage.Dialect { return storage.Postgres }
func (f *fakeStore) Close()                   {}

var testCols = []storage.Column{
	{Name: "Code", Type: schema.Char(10)},
	{Name: "Amount", Type: schema.ColumnType{Kind: schema.KindFloat}},
	{Name: "Fecha", Type: schema.ColumnType{Kind: schema.KindDate}},
}

func TestLoad_StatementOrder(t *testing.T) {
	t.Parallel()

	fs := &fakeStore{}
	l := New(fs, t.TempDir(), "", nil)
	rows := [][]any{{"A1", 10.5, nil}}
	res, err := l.Load(context.Background(), "VTAS05", testCols, rows)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if res.Retried {
		t.Fatalf("unexpected retry")
	}
	want := []string{"DROP", "CREATE", "ALTER", "INSERT"}
	if len(fs.executed) != len(want) {
		t.Fatalf("executed %d statements: %q", len(fs.executed), fs.executed)
	}
	for i, w := range want {
		if !strings.HasPrefix(fs.executed[i], w) {
			t.Fatalf("statement %d = %q, want prefix %s", i, fs.executed[i], w)
		}
	}
}

func TestLoad_RetryTruncatesAndRewritesDump(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	fs := &fakeStore{failInserts: map[int]bool{1: true}}
	l := New(fs, dir, "", nil)
	rows := [][]any{
		{"ABCDEFGHIJKLMNO", 1.0, nil},
		{"short", 2.0, nil},
	}
	res, err := l.Load(context.Background(), "MACC05", testCols, rows)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if !res.Retried || res.Truncated != 1 {
		t.Fatalf("result = %+v", res)
	}
	if rows[0][0] != "ABCDEFGHIJKLMNO" {
		t.Fatalf("input rows modified: %v", rows[0][0])
	}

	retried := fs.executed[len(fs.executed)-1]
	if !strings.Contains(retried, "'ABCDEFGHIJ'") || strings.Contains(retried, "KLMNO") {
		t.Fatalf("retried insert not truncated:\n%s", retried)
	}
	raw, err := os.ReadFile(dump.PathFor(dir, "MACC05"))
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if !strings.HasSuffix(string(raw), retried+"\n") {
		t.Fatalf("dump does not end with the retried insert:\n%s", raw)
	}
}

func TestLoad_RetryFailure(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	fs := &fakeStore{failInserts: map[int]bool{1: true, 2: true}}
	l := New(fs, dir, "", nil)
	_, err := l.Load(context.Background(), "MACC05", testCols, [][]any{{"ABCDEFGHIJKLMNO", 1.0, nil}})
	if !errors.Is(err, ErrLoad) {
		t.Fatalf("expected ErrLoad, got %v", err)
	}
	raw, _ := os.ReadFile(dump.PathFor(dir, "MACC05"))
	if !strings.Contains(string(raw), "KLMNO") {
		t.Fatalf("dump should keep the original insert:\n%s", raw)
	}
}

func TestLoad_StatementFailureStopsBeforeInsert(t *testing.T) {
	t.Parallel()

	fs := &fakeStore{failPrefix: "CREATE"}
	l := New(fs, t.TempDir(), "", nil)
	_, err := l.Load(context.Background(), "T", testCols, [][]any{{"x", 1.0, nil}})
	if !errors.Is(err, ErrLoad) {
		t.Fatalf("expected ErrLoad, got %v", err)
	}
	if fs.inserts != 0 {
		t.Fatalf("insert executed after failed create")
	}
}

func TestLoad_EmptyRowsAndUnknownVersion(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	fs := &fakeStore{versionErr: errors.New("no")}
	l := New(fs, dir, "", nil)
	if _, err := l.Load(context.Background(), "EMPTY05", testCols, nil); err != nil {
		t.Fatalf("Load: %v", err)
	}
	if fs.inserts != 0 {
		t.Fatalf("insert executed for empty table")
	}
	raw, _ := os.ReadFile(dump.PathFor(dir, "EMPTY05"))
	if !strings.Contains(string(raw), "-- Server version unknown") {
		t.Fatalf("header:\n%s", raw)
	}
}

func TestTruncateRows(t *testing.T) {
	t.Parallel()

	cols := []storage.Column{{Name: "A"}, {Name: "B"}}
	rows := [][]any{{"ñandúes", "abc"}, {nil, 3}}
	got, n := TruncateRows(cols, rows, map[string]int{"A": 3})
	want := [][]any{{"ñan", "abc"}, {nil, 3}}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("TruncateRows (-want +got):\n%s", diff)
	}
	if n != 1 {
		t.Fatalf("count = %d", n)
	}
}
