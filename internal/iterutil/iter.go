package iterutil

import (
	"iter"
)

// Keys returns an iterator over the first elements of seq.
func Keys[K, V any](seq iter.Seq2[K, V]) iter.Seq[K] {
	return iter.Seq[K](func(yield func(K) bool) {
		for k := range seq {
			if !yield(k) {
				return
			}
		}
	})
}

// Values returns an iterator over the second elements of seq.
func Values[K, V any](seq iter.Seq2[K, V]) iter.Seq[V] {
	return iter.Seq[V](func(yield func(V) bool) {
		for _, v := range seq {
			if !yield(v) {
				return
			}
		}
	})
}

// Concat2 returns an iterator that yields every pair of each input in turn.
func Concat2[K, V any](seqs ...iter.Seq2[K, V]) iter.Seq2[K, V] {
	return iter.Seq2[K, V](func(yield func(K, V) bool) {
		for _, seq := range seqs {
			for k, v := range seq {
				if !yield(k, v) {
					return
				}
			}
		}
	})
}

// FromPairs returns an iterator over two parallel slices.
// The slices are captured, so the result can be ranged over repeatedly.
func FromPairs[K, V any](keys []K, values []V) iter.Seq2[K, V] {
	return iter.Seq2[K, V](func(yield func(K, V) bool) {
		for i := range keys {
			if !yield(keys[i], values[i]) {
				return
			}
		}
	})
}
