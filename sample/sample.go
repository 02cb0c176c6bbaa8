// Package sample draws distinct elements from a pool without replacement.
package sample

import "math/rand/v2"

// Pick returns min(k, len(pool)) distinct elements of pool in random order,
// using the process-wide random source. Safe for concurrent use.
func Pick[T any](pool []T, k int) []T {
	return Sample(pool, k, rand.IntN)
}

// Sample is Pick with an explicit source: intn(n) must return a uniform
// integer in [0, n).
//
// It runs a partial Fisher-Yates shuffle over the index range [0, n). The
// index array is materialised lazily in a map holding only the positions
// that have been swapped, so time and extra space are O(k) whatever the
// pool size. pool itself is never modified.
func Sample[T any](pool []T, k int, intn func(int) int) []T {
	n := len(pool)
	if k > n {
		k = n
	}
	if k <= 0 {
		return []T{}
	}

	swapped := make(map[int]int, k)
	at := func(i int) int {
		if v, ok := swapped[i]; ok {
			return v
		}
		return i
	}

	out := make([]T, k)
	for i := 0; i < k; i++ {
		tail := n - 1 - i
		j := intn(tail + 1)
		out[i] = pool[at(j)]
		// Move the logical tail into the drawn slot; the tail slot is never read again.
		swapped[j] = at(tail)
		delete(swapped, tail)
	}
	return out
}
