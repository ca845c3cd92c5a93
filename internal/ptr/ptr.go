// Package ptr helps with the optional fields of the config sections, where
// nil means "not set".
package ptr

func Of[T any](v T) *T {
	return &v
}

// Deref returns the zero value for nil.
func Deref[T any](p *T) T {
	var zero T
	return DerefOr(p, zero)
}

func DerefOr[T any](p *T, fallback T) T {
	if p == nil {
		return fallback
	}

	return *p
}

// Copy returns a new pointer holding the same value, or nil.
func Copy[T any](p *T) *T {
	if p == nil {
		return nil
	}

	return Of(*p)
}

// Merge copies override when it is set and base otherwise.
func Merge[T any](override, base *T) *T {
	if override != nil {
		return Copy(override)
	}

	return Copy(base)
}

// CopySlice keeps the distinction between a nil and an empty slice.
func CopySlice[T any](s []T) []T {
	if s == nil {
		return nil
	}

	return append(make([]T, 0, len(s)), s...)
}

func MergeSlice[T any](override, base []T) []T {
	if override != nil {
		return CopySlice(override)
	}

	return CopySlice(base)
}
