// Package clock provides an injectable time source so scheduling and
// dispatch decisions can be tested against a fixed "now".
package clock

import "time"

// Clock provides the current time.
type Clock interface {
	Now() time.Time
}

// source adapts a function to Clock. Every constructor below returns one,
// so callers only ever see the interface.
type source func() time.Time

func (f source) Now() time.Time { return f() }

// NewReal reads the system clock.
func NewReal() Clock { return source(time.Now) }

// NewFixed always reports t.
func NewFixed(t time.Time) Clock {
	return source(func() time.Time { return t })
}

// NewFunc reports whatever f returns. Dispatcher tests use it to move "now"
// across quiet hours between cycles.
func NewFunc(f func() time.Time) Clock {
	if f == nil {
		return NewReal()
	}
	return source(f)
}
