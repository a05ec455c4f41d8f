package source

import (
	"errors"
	"fmt"
)

// All source errors are programmer errors: they are returned while a source
// is constructed, bound or compiled, never after SQL reached a database.
var (
	// ErrConfiguration reports a malformed source definition.
	ErrConfiguration = errors.New("source configuration error")

	// ErrColumnMismatch reports that a source does not reconcile with the
	// entity's declared columns.
	ErrColumnMismatch = errors.New("column mismatch")

	// ErrAmbiguousTranslation reports two source columns landing on one
	// entity column.
	ErrAmbiguousTranslation = errors.New("ambiguous translation")

	// ErrUsage reports an entrypoint used in the wrong state.
	ErrUsage = errors.New("source usage error")

	// ErrNotFound reports an unknown entity or entrypoint.
	ErrNotFound = errors.New("not found")
)

func configErrorf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrConfiguration, fmt.Sprintf(format, args...))
}

func mismatchErrorf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrColumnMismatch, fmt.Sprintf(format, args...))
}

func ambiguousErrorf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrAmbiguousTranslation, fmt.Sprintf(format, args...))
}

func usageErrorf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrUsage, fmt.Sprintf(format, args...))
}
