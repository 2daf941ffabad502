package workflow

import (
	"errors"
	"fmt"
	"strings"
)

// Error kinds returned by the graph engine. Callers classify failures with
// errors.Is; the concrete errors wrap one of these.
var (
	ErrNotFound         = errors.New("not found")
	ErrInvalidArgument  = errors.New("invalid argument")
	ErrValidationFailed = errors.New("validation failed")
	ErrPersistence      = errors.New("persistence error")
	ErrCyclic           = errors.New("workflow contains a cycle")
)

// ValidationError carries every problem found while validating a node or a
// workflow. It is never produced for a single problem in isolation; callers
// get the full list so it can be shown at once.
type ValidationError struct {
	Problems []string
}

func (e *ValidationError) Error() string {
	if len(e.Problems) == 1 {
		return fmt.Sprintf("validation failed: %s", e.Problems[0])
	}
	return fmt.Sprintf("validation failed:\n- %s", strings.Join(e.Problems, "\n- "))
}

// Is makes errors.Is(err, ErrValidationFailed) true.
func (e *ValidationError) Is(target error) bool {
	return target == ErrValidationFailed
}

// NewValidationError returns nil when problems is empty.
func NewValidationError(problems []string) error {
	if len(problems) == 0 {
		return nil
	}
	return &ValidationError{Problems: problems}
}

// PersistenceError wraps a collaborator failure with the operation that
// triggered it.
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("persistence error during %s: %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }

// Is makes errors.Is(err, ErrPersistence) true.
func (e *PersistenceError) Is(target error) bool {
	return target == ErrPersistence
}

// Persistence wraps err as a PersistenceError unless it already reports
// NotFound or is already a persistence error, which are passed through.
func Persistence(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrNotFound) || errors.Is(err, ErrPersistence) {
		return err
	}
	return &PersistenceError{Op: op, Err: err}
}

// NotFound builds an ErrNotFound error for the given kind of entity.
func NotFound(kind, id string) error {
	return fmt.Errorf("%w: %s %q", ErrNotFound, kind, id)
}

// InvalidArgument builds an ErrInvalidArgument error.
func InvalidArgument(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidArgument, fmt.Sprintf(format, args...))
}
