// Package ptr has small helpers for optional values passed by pointer.
package ptr

// Deref returns *p, or the zero value when p is nil.
func Deref[T any](p *T) T {
	if p == nil {
		var zero T

		return zero
	}

	return *p
}

// Of returns a pointer to v.
func Of[T any](v T) *T { return &v }
