// Package dump writes the per-table SQL dump document: a header naming the
// target database and server, followed by the statements that replace the
// table, in execution order.
package dump

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"dmsetl/internal/storage"
)

// Suffix is appended to the table name to form the document's file name.
const Suffix = ".sql.dump"

const unknown = "unknown"

// Document is one table's dump.
type Document struct {
	Path          string
	Dialect       string
	Host          string
	Database      string
	ServerVersion string
	Statements    storage.Statements
}

// PathFor returns <dir>/<table>.sql.dump.
func PathFor(dir, table string) string {
	return filepath.Join(dir, table+Suffix)
}

func title(dialect string) string {
	switch dialect {
	case "postgres":
		return "PostgreSQL"
	case "mssql":
		return "SQL Server"
	case "sqlite":
		return "SQLite"
	}
	return "SQL"
}

func orUnknown(s string) string {
	if strings.TrimSpace(s) == "" {
		return unknown
	}
	return s
}

// Render returns the document text.
func (d *Document) Render() string {
	host := d.Host
	if host == "" {
		host = "localhost"
	}
	table := d.Statements.Table

	var b strings.Builder
	fmt.Fprintf(&b, "-- %s dump\n", title(d.Dialect))
	b.WriteString("--\n")
	fmt.Fprintf(&b, "-- Host: %s    Database: %s\n", host, orUnknown(d.Database))
	b.WriteString("-- ------------------------------------------------------\n")
	fmt.Fprintf(&b, "-- Server version %s\n\n", orUnknown(d.ServerVersion))

	fmt.Fprintf(&b, "-- Table structure for table %s\n", table)
	for _, q := range []string{d.Statements.Drop, d.Statements.Create, d.Statements.Alter} {
		if q != "" {
			b.WriteString(q)
			b.WriteByte('\n')
		}
	}
	fmt.Fprintf(&b, "-- Dumping data for table %s\n", table)
	if d.Statements.Insert != "" {
		b.WriteString(d.Statements.Insert)
		b.WriteByte('\n')
	}
	return b.String()
}

// Write replaces the file at d.Path with the rendered document. The text is
// written to a temporary file in the same directory and renamed over the
// target, so readers never see a partial document.
func (d *Document) Write() error {
	if d.Path == "" {
		return fmt.Errorf("dump: empty path")
	}
	dir := filepath.Dir(d.Path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("dump: mkdir %s: %w", dir, err)
	}
	tmp, err := os.CreateTemp(dir, ".tmp-*")
	if err != nil {
		return fmt.Errorf("dump: %w", err)
	}
	tmpPath := tmp.Name()

	bw := bufio.NewWriter(tmp)
	if _, err := bw.WriteString(d.Render()); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpPath)
		return fmt.Errorf("dump: write %s: %w", d.Path, err)
	}
	if err := bw.Flush(); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpPath)
		return fmt.Errorf("dump: write %s: %w", d.Path, err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("dump: close %s: %w", d.Path, err)
	}
	if err := os.Rename(tmpPath, d.Path); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("dump: replace %s: %w", d.Path, err)
	}
	return nil
}

// ReplaceInsert swaps the INSERT statement and rewrites the document.
func (d *Document) ReplaceInsert(insert string) error {
	d.Statements.Insert = insert
	return d.Write()
}
