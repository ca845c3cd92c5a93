// Package cache provides the generic in-memory caches shared by the hop
// tracker and the session counter.
package cache

import "time"

type setOptions struct {
	ttl       time.Duration
	ifAbsent  bool
	ifPresent bool
}

// SetOption tunes one Set call. Each cache reads only the settings it
// understands.
type SetOption func(*setOptions)

// WithTTL overrides the default time to live of the entry.
func WithTTL(ttl time.Duration) SetOption {
	return func(o *setOptions) { o.ttl = ttl }
}

// IfAbsent leaves a live entry untouched.
func IfAbsent() SetOption {
	return func(o *setOptions) { o.ifAbsent = true }
}

// IfPresent only refreshes a live entry.
func IfPresent() SetOption {
	return func(o *setOptions) { o.ifPresent = true }
}

func collect(opts []SetOption) setOptions {
	var o setOptions
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

type Cache[K comparable, V any] interface {
	Get(key K) (V, bool)
	// Set stores value under key and reports whether the cache changed.
	Set(key K, value V, opts ...SetOption) bool
	Delete(key K)
	Len() int
}
