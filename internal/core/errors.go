package core

import (
	"errors"
	"fmt"
)

var (
	// ErrUsage is returned when the data layer is called incorrectly: an empty
	// IN set, a nested batch update, a key of the wrong arity, and so on.
	// Usage errors are never worth retrying.
	ErrUsage = errors.New("usage error")

	// ErrNotFound is returned when a row that was expected to exist is gone.
	// An empty result from a filtered select is not an error.
	ErrNotFound = errors.New("row not found")

	// ErrConnectivity is returned when the store could not execute a statement
	// because of a transport or operational failure. It is the only error
	// kind a caller may reasonably retry.
	ErrConnectivity = errors.New("store connectivity error")

	// ErrConstraintViolation is returned when the store rejected a statement
	// because of a unique, foreign key, not-null or check constraint.
	ErrConstraintViolation = errors.New("constraint violation")

	// ErrSchemaVersionMismatch is matched by *SchemaVersionError.
	ErrSchemaVersionMismatch = errors.New("schema version mismatch")

	// ErrClosed is returned by a connector after Close.
	ErrClosed = errors.New("connector is closed")
)

// SchemaVersionError is returned by the startup gate when the store reports a
// schema version other than the one the running code was built for.
type SchemaVersionError struct {
	Found    int
	Expected int
}

func (e *SchemaVersionError) Error() string {
	return fmt.Sprintf("database version is %d, required version is %d: please migrate database", e.Found, e.Expected)
}

// Is reports whether target is ErrSchemaVersionMismatch.
func (e *SchemaVersionError) Is(target error) bool {
	return target == ErrSchemaVersionMismatch
}

// Usagef returns an error wrapping ErrUsage.
func Usagef(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrUsage, fmt.Sprintf(format, args...))
}

// NotFoundf returns an error wrapping ErrNotFound.
func NotFoundf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrNotFound, fmt.Sprintf(format, args...))
}
