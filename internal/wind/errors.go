package wind

import (
	"errors"
	"fmt"
)

var (
	// ErrValidation marks a bad method name or an out-of-range request parameter.
	ErrValidation = errors.New("invalid request")

	// ErrResourceAccess marks an unreachable or failing gridded data source.
	ErrResourceAccess = errors.New("data source unavailable")

	// ErrUnauthorized is a resource access error caused by rejected credentials.
	ErrUnauthorized = fmt.Errorf("%w: unauthorized", ErrResourceAccess)

	// ErrDataRange marks a height, time or location outside the dataset's coverage.
	ErrDataRange = errors.New("outside dataset coverage")

	// ErrDegenerateGeometry marks an underdetermined interpolation.
	ErrDegenerateGeometry = errors.New("degenerate interpolation geometry")
)

func validationErrorf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}

// DataRangeErrorf returns an error wrapping ErrDataRange.
func DataRangeErrorf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrDataRange, fmt.Sprintf(format, args...))
}

func degenerateErrorf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrDegenerateGeometry, fmt.Sprintf(format, args...))
}

// ResourceError wraps err as a resource access failure for op. Errors that
// already carry ErrResourceAccess are wrapped without repeating the kind.
func ResourceError(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrResourceAccess) {
		return fmt.Errorf("%s: %w", op, err)
	}
	return fmt.Errorf("%w: %s: %w", ErrResourceAccess, op, err)
}
