package records

import (
	"errors"
	"fmt"
)

var (
	// ErrDataSource matches every *DataSourceError.
	ErrDataSource = errors.New("data source error")

	// ErrValidation matches every *ValidationError.
	ErrValidation = errors.New("validation error")
)

// DataSourceError reports an unreachable record store or a malformed document.
// Callers do not retry.
type DataSourceError struct {
	Source string
	Kind   string
	Op     string
	Err    error
}

func (e *DataSourceError) Error() string {
	return fmt.Sprintf("%s: %s %s: %v", e.Source, e.Op, e.Kind, e.Err)
}

func (e *DataSourceError) Unwrap() error { return e.Err }

func (e *DataSourceError) Is(target error) bool { return target == ErrDataSource }

// ValidationError describes why one record was rejected. Index is the position
// of the record in its batch, or -1 when the whole payload has the wrong shape.
type ValidationError struct {
	Index  int
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Index < 0 {
		return fmt.Sprintf("invalid payload: %s", e.Reason)
	}
	return fmt.Sprintf("record %d: field %q: %s", e.Index, e.Field, e.Reason)
}

func (e *ValidationError) Is(target error) bool { return target == ErrValidation }
