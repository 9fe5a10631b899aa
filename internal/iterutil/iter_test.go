package iterutil_test

import (
	"iter"
	"maps"
	"slices"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/karupanerura/lrucache/internal/iterutil"
)

func pairs(keys []string, values []int) iter.Seq2[string, int] {
	return iterutil.FromPairs(keys, values)
}

func TestKeysValues(t *testing.T) {
	t.Parallel()

	seq := pairs([]string{"a", "b", "c"}, []int{1, 2, 3})
	if diff := cmp.Diff([]string{"a", "b", "c"}, slices.Collect(iterutil.Keys(seq))); diff != "" {
		t.Errorf("Keys mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]int{1, 2, 3}, slices.Collect(iterutil.Values(seq))); diff != "" {
		t.Errorf("Values mismatch (-want +got):\n%s", diff)
	}
}

func TestConcat2(t *testing.T) {
	t.Parallel()

	for _, tt := range []struct {
		name string
		seqs []iter.Seq2[string, int]
		want []string
	}{
		{
			name: "empty",
			seqs: nil,
			want: nil,
		},
		{
			name: "single",
			seqs: []iter.Seq2[string, int]{pairs([]string{"a"}, []int{1})},
			want: []string{"a"},
		},
		{
			name: "multiple keeps order",
			seqs: []iter.Seq2[string, int]{
				pairs([]string{"a", "b"}, []int{1, 2}),
				pairs(nil, nil),
				pairs([]string{"c"}, []int{3}),
			},
			want: []string{"a", "b", "c"},
		},
	} {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			got := slices.Collect(iterutil.Keys(iterutil.Concat2(tt.seqs...)))
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("Concat2 mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestConcat2_EarlyBreak(t *testing.T) {
	t.Parallel()

	seq := iterutil.Concat2(
		pairs([]string{"a", "b"}, []int{1, 2}),
		pairs([]string{"c", "d"}, []int{3, 4}),
	)
	var got []string
	for k := range seq {
		got = append(got, k)
		if k == "c" {
			break
		}
	}
	if diff := cmp.Diff([]string{"a", "b", "c"}, got); diff != "" {
		t.Errorf("early break mismatch (-want +got):\n%s", diff)
	}

	// restartable
	if diff := cmp.Diff(map[string]int{"a": 1, "b": 2, "c": 3, "d": 4}, maps.Collect(seq)); diff != "" {
		t.Errorf("second pass mismatch (-want +got):\n%s", diff)
	}
}
