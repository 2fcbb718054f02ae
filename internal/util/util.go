package util

import (
	"maps"
)

// SetEqual compares two slices as sets, keyed by key.
func SetEqual[K comparable, V any](a, b []V, key func(V) K, eq func(a, b V) bool) bool {
	if len(a) == 1 && len(b) == 1 {
		return eq(a[0], b[0])
	}

	// NB: there's a risk of false positives when keys collide, e.g.
	// []struct{n, v string}{ {"foo", "bar"}, {"foo", "baz"} } is SetEqual to
	// []struct{n, v string}{ {"foo", "baz"} }
	m := make(map[K]V, len(a))
	for _, v := range a {
		m[key(v)] = v
	}

	n := make(map[K]V, len(b))
	for _, v := range b {
		n[key(v)] = v
	}

	return maps.EqualFunc(m, n, eq)
}

// FastEqual short-circuits pointer equality before falling back to the
// expensive comparison.
func FastEqual[V any](a, b *V, slowEqual func(a, b *V) bool) bool {
	if a == b {
		return true
	}

	if a == nil || b == nil {
		return false
	}

	return slowEqual(a, b)
}
