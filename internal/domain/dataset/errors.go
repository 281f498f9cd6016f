package dataset

import (
	"errors"
	"fmt"
)

// ErrSheetMissing marks a dataset without one of the required sheets.
var ErrSheetMissing = errors.New("required sheet missing")

// LoadError reports a dataset that cannot be read. It is fatal: nothing
// downstream runs on a partial dataset.
type LoadError struct {
	Source string
	Sheet  string
	Err    error
}

func (e *LoadError) Error() string {
	if e.Sheet != "" {
		return fmt.Sprintf("load dataset %s: sheet %s: %v", e.Source, e.Sheet, e.Err)
	}
	return fmt.Sprintf("load dataset %s: %v", e.Source, e.Err)
}

func (e *LoadError) Unwrap() error { return e.Err }
