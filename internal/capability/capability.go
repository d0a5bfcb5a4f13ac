// Package capability models optional devices that are resolved once at
// construction: either a usable handle or the reason there is none.
package capability

import "errors"

var (
	ErrUnavailable      = errors.New("capability unavailable")
	ErrPermissionDenied = errors.New("permission denied")
)

// Of holds either an available handle or an unavailability reason.
type Of[T any] struct {
	handle T
	ok     bool
	reason error
}

// Available wraps a usable handle.
func Available[T any](handle T) Of[T] {
	return Of[T]{handle: handle, ok: true}
}

// Unavailable records why a capability cannot be used. A nil reason becomes
// ErrUnavailable.
func Unavailable[T any](reason error) Of[T] {
	if reason == nil {
		reason = ErrUnavailable
	}
	return Of[T]{reason: reason}
}

// Get returns the handle and whether it is available.
func (c Of[T]) Get() (T, bool) {
	return c.handle, c.ok
}

// OK reports whether the capability is available.
func (c Of[T]) OK() bool {
	return c.ok
}

// Reason returns nil when available.
func (c Of[T]) Reason() error {
	if c.ok {
		return nil
	}
	if c.reason == nil {
		return ErrUnavailable
	}
	return c.reason
}
