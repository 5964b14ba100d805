package driver

import (
	"errors"
	"fmt"
)

var (
	// ErrUnsupportedBrowserKind is returned for unrecognized browser names.
	ErrUnsupportedBrowserKind = errors.New("unsupported browser kind")

	// ErrElementNotFound is returned when a selector matches nothing.
	ErrElementNotFound = errors.New("element not found")

	// ErrTimeout is wrapped by driver operations that ran out of time.
	ErrTimeout = errors.New("timeout")
)

// DriverError wraps any failure surfaced by the automation driver itself.
type DriverError struct {
	Op  string
	Err error
}

func (e *DriverError) Error() string {
	return fmt.Sprintf("driver %s: %v", e.Op, e.Err)
}

func (e *DriverError) Unwrap() error {
	return e.Err
}

// Wrap returns err as a *DriverError for op. Nil stays nil, and errors that
// already are driver errors are returned unchanged.
func Wrap(op string, err error) error {
	if err == nil {
		return nil
	}
	var de *DriverError
	if errors.As(err, &de) {
		return err
	}
	return &DriverError{Op: op, Err: err}
}
