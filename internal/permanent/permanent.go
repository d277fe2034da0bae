package permanent

import "errors"

// Error wraps a failure that retrying cannot fix.
// Params: wrapped root cause.
// Returns: typed non-retryable marker.
type Error struct {
	Err error
}

// Error returns the wrapped error message.
// Params: none.
// Returns: string representation.
func (e Error) Error() string {
	if e.Err == nil {
		return "permanent error"
	}
	return e.Err.Error()
}

// Unwrap exposes the cause for errors.Is/errors.As chains.
// Params: none.
// Returns: wrapped error.
func (e Error) Unwrap() error {
	return e.Err
}

// Permanent tags the error as non-retryable.
// Params: none.
// Returns: true.
func (Error) Permanent() bool {
	return true
}

// Mark tags an error so retry loops stop immediately.
// Params: source error.
// Returns: marked error, or nil for nil input.
func Mark(err error) error {
	if err == nil {
		return nil
	}
	return Error{Err: err}
}

// Is reports whether the error chain carries a non-retryable marker.
// Params: candidate error.
// Returns: true when a marker is present.
func Is(err error) bool {
	if err == nil {
		return false
	}
	type marker interface {
		Permanent() bool
	}
	var tagged marker
	if !errors.As(err, &tagged) {
		return false
	}
	return tagged.Permanent()
}
