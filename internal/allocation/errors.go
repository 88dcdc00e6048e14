package allocation

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidCatalog marks malformed catalog or roster data. It is never retried.
	ErrInvalidCatalog = errors.New("invalid catalog")
	// ErrAttemptsExhausted is returned when the attempt bound is hit before a success.
	ErrAttemptsExhausted = errors.New("allocation attempts exhausted")
)

// FatalError is a condition one attempt cannot resolve locally. The
// supervisor discards the attempt and starts over.
type FatalError struct {
	Phase  string
	Reason string
}

func (e *FatalError) Error() string {
	return fmt.Sprintf("%s: %s", e.Phase, e.Reason)
}

func fatal(phase, format string, args ...interface{}) *FatalError {
	return &FatalError{Phase: phase, Reason: fmt.Sprintf(format, args...)}
}

// IsFatal reports whether err aborted a single attempt.
func IsFatal(err error) bool {
	var fe *FatalError
	return errors.As(err, &fe)
}
