package util

import (
	"cmp"
	"iter"
	"maps"
	"slices"
)

// TransformSlice applies the converter to each element in the input slice and returns a new slice.
func TransformSlice[T any, R any](in []T, converter func(T) R) []R {
	out := make([]R, len(in))
	for i, v := range in {
		out[i] = converter(v)
	}
	return out
}

// CanonicalMapIter returns an iterator that yields map entries in sorted key order,
// so that generated DDL does not depend on Go's map iteration order.
func CanonicalMapIter[K cmp.Ordered, V any](m map[K]V) iter.Seq2[K, V] {
	return func(yield func(K, V) bool) {
		for _, k := range slices.Sorted(maps.Keys(m)) {
			if !yield(k, m[k]) {
				return
			}
		}
	}
}

// SortedMapIter is CanonicalMapIter for key types that are not cmp.Ordered.
func SortedMapIter[K comparable, V any](m map[K]V, compare func(a, b K) int) iter.Seq2[K, V] {
	return func(yield func(K, V) bool) {
		keys := slices.SortedFunc(maps.Keys(m), compare)
		for _, k := range keys {
			if !yield(k, m[k]) {
				return
			}
		}
	}
}
