// Package archive stages an inbound DMS export: it finds the archive in the
// working directory, extracts it into the scratch directory and renames the
// extracted report files to <report><branch>.txt.
package archive

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"dmsetl/internal/logger"

	"github.com/klauspost/compress/zip"
)

// ErrNoArchive means the working directory holds no .zip file.
var ErrNoArchive = errors.New("no zip archive in working directory")

// Find returns the first .zip in dir, by name.
func Find(dir string) (string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return "", fmt.Errorf("archive: list %s: %w", dir, err)
	}
	var names []string
	for _, e := range entries {
		if e.Type().IsRegular() && strings.EqualFold(filepath.Ext(e.Name()), ".zip") {
			names = append(names, e.Name())
		}
	}
	if len(names) == 0 {
		return "", fmt.Errorf("archive: %s: %w", dir, ErrNoArchive)
	}
	sort.Strings(names)
	return filepath.Join(dir, names[0]), nil
}

// Extract writes every regular file of the zip at src into dest and returns
// the written base names.
//
// Entries are flattened to their base name; DMS exports carry no meaningful
// directory structure. Entries whose name would escape dest are rejected.
func Extract(ctx context.Context, src, dest string) ([]string, error) {
	zr, err := zip.OpenReader(src)
	if err != nil {
		return nil, fmt.Errorf("archive: open %s: %w", src, err)
	}
	defer zr.Close()

	if err := os.MkdirAll(dest, 0o755); err != nil {
		return nil, fmt.Errorf("archive: create %s: %w", dest, err)
	}

	var out []string
	for _, f := range zr.File {
		if err := ctx.Err(); err != nil {
			return out, err
		}
		if f.FileInfo().IsDir() {
			continue
		}
		name := filepath.Base(filepath.FromSlash(f.Name))
		if name == "." || name == ".." || name == string(filepath.Separator) || hasParentRef(f.Name) {
			return out, fmt.Errorf("archive: %s: unsafe entry %q", src, f.Name)
		}
		if err := extractOne(f, filepath.Join(dest, name)); err != nil {
			return out, fmt.Errorf("archive: %s: %s: %w", src, f.Name, err)
		}
		out = append(out, name)
	}
	return out, nil
}

func hasParentRef(name string) bool {
	for _, part := range strings.FieldsFunc(name, func(r rune) bool { return r == '/' || r == '\\' }) {
		if part == ".." {
			return true
		}
	}
	return false
}

func extractOne(f *zip.File, path string) error {
	rc, err := f.Open()
	if err != nil {
		return err
	}
	defer rc.Close()

	w, err := os.Create(path)
	if err != nil {
		return err
	}
	if _, err := io.Copy(w, rc); err != nil {
		_ = w.Close()
		return err
	}
	return w.Close()
}

// ReportFileName is the staged name of one report's file.
func ReportFileName(report, branch string) string {
	return report + branch + ".txt"
}

// Rename maps each extracted file to the longest report name it starts with
// and renames it to ReportFileName. Files matching no report stay as-is.
//
// It returns report -> staged path for every renamed file.
func Rename(dir string, files, reports []string, branch string, log logger.Logger) (map[string]string, error) {
	if log == nil {
		log = logger.NewNop()
	}
	byLen := append([]string(nil), reports...)
	sort.SliceStable(byLen, func(i, j int) bool { return len(byLen[i]) > len(byLen[j]) })

	staged := make(map[string]string)
	for _, f := range files {
		report := ""
		for _, r := range byLen {
			if r != "" && strings.HasPrefix(f, r) {
				report = r
				break
			}
		}
		if report == "" {
			log.Debug("extracted file matches no report", logger.String("file", f))
			continue
		}

		target := ReportFileName(report, branch)
		from, to := filepath.Join(dir, f), filepath.Join(dir, target)
		if prev, dup := staged[report]; dup {
			log.Warn("several files for one report; keeping the last",
				logger.String("report", report), logger.String("previous", prev), logger.String("file", f))
		}
		if from != to {
			if err := os.Rename(from, to); err != nil {
				return staged, fmt.Errorf("archive: rename %s: %w", f, err)
			}
			log.Info("report file staged", logger.String("from", f), logger.String("to", target))
		}
		staged[report] = to
	}
	return staged, nil
}

// Clean removes every entry of dir except files for which keep returns true.
// A missing dir is created.
func Clean(dir string, keep func(name string) bool) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("archive: create %s: %w", dir, err)
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		return fmt.Errorf("archive: list %s: %w", dir, err)
	}
	var errs []error
	for _, e := range entries {
		if !e.IsDir() && keep != nil && keep(e.Name()) {
			continue
		}
		if err := os.RemoveAll(filepath.Join(dir, e.Name())); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// KeepPrefix returns a Clean predicate keeping .txt files named with any of
// the given prefixes (derived reports waiting for the next run).
func KeepPrefix(prefixes ...string) func(string) bool {
	return func(name string) bool {
		if !strings.EqualFold(filepath.Ext(name), ".txt") {
			return false
		}
		for _, p := range prefixes {
			if p != "" && strings.HasPrefix(name, p) {
				return true
			}
		}
		return false
	}
}
