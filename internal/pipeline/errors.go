package pipeline

import (
	"errors"
	"io/fs"

	"dmsetl/internal/archive"
	"dmsetl/internal/formula"
	"dmsetl/internal/loader"
	"dmsetl/internal/parser/pipe"
	"dmsetl/internal/registry"
)

// Error classes used as status labels in logs and metrics.
const (
	ClassConfig  = "config"
	ClassDecode  = "decode"
	ClassFormula = "formula"
	ClassLoad    = "load"
	ClassIO      = "io"
	ClassUnknown = "unknown"
)

// Classify maps err onto the error taxonomy. Configuration errors abort a
// run; every other class is scoped to one report or column.
func Classify(err error) string {
	var pathErr *fs.PathError
	switch {
	case err == nil:
		return ""
	case errors.Is(err, registry.ErrConfigNotFound), errors.Is(err, registry.ErrConfigInvalid):
		return ClassConfig
	case errors.Is(err, pipe.ErrDecode):
		return ClassDecode
	case errors.Is(err, formula.ErrFormula):
		return ClassFormula
	case errors.Is(err, loader.ErrLoad):
		return ClassLoad
	case errors.Is(err, archive.ErrNoArchive), errors.As(err, &pathErr), errors.Is(err, fs.ErrNotExist):
		return ClassIO
	}
	return ClassUnknown
}

// IsFatal reports whether err must abort the whole run.
func IsFatal(err error) bool { return Classify(err) == ClassConfig }
