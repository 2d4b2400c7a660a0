package formula

import (
	"errors"
	"fmt"
)

// ErrFormula marks a column-scoped formula failure.
var ErrFormula = errors.New("formula error")

// Error is a formula that could not be compiled or evaluated for a column.
type Error struct {
	Report  string
	Column  string
	Formula string
	Err     error
}

func (e *Error) Error() string {
	return fmt.Sprintf("formula %s.%s %q: %v", e.Report, e.Column, e.Formula, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Is makes errors.Is(err, ErrFormula) hold for every *Error.
func (e *Error) Is(target error) bool { return target == ErrFormula }
