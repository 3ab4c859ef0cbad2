package playback

import (
	"testing"

	"github.com/lhoume/jukebox/internal/queue"
)

func TestWeightedIndexEmpty(t *testing.T) {
	if got := weightedIndex(nil); got != -1 {
		t.Errorf("weightedIndex(nil) = %d, want -1", got)
	}
}

func TestWeightedIndexSingle(t *testing.T) {
	items := []queue.Item{{ID: "a"}}
	for i := 0; i < 100; i++ {
		if got := weightedIndex(items); got != 0 {
			t.Fatalf("weightedIndex = %d, want 0", got)
		}
	}
}

func TestWeightedIndexDistribution(t *testing.T) {
	// One priority item against one normal item: weights 3 and 1, so the
	// priority item should win about 75% of draws.
	items := []queue.Item{
		{ID: "priority", Priority: true},
		{ID: "normal"},
	}

	const draws = 10000
	wins := 0
	for i := 0; i < draws; i++ {
		if weightedIndex(items) == 0 {
			wins++
		}
	}

	ratio := float64(wins) / draws
	if ratio < 0.70 || ratio > 0.80 {
		t.Errorf("priority win ratio = %.3f, want ~0.75", ratio)
	}
}

func TestWeightedShufflePreservesItems(t *testing.T) {
	items := []queue.Item{
		{ID: "a", Priority: true},
		{ID: "b"},
		{ID: "c"},
		{ID: "d", Priority: true},
	}

	out := weightedShuffle(items)
	if len(out) != len(items) {
		t.Fatalf("len = %d, want %d", len(out), len(items))
	}
	seen := map[string]bool{}
	for _, it := range out {
		seen[it.ID] = true
	}
	for _, it := range items {
		if !seen[it.ID] {
			t.Errorf("item %s lost in shuffle", it.ID)
		}
	}
}

func TestWeightedShuffleDoesNotMutateInput(t *testing.T) {
	items := []queue.Item{{ID: "a"}, {ID: "b"}, {ID: "c"}}
	weightedShuffle(items)
	want := []string{"a", "b", "c"}
	for i, w := range want {
		if items[i].ID != w {
			t.Fatalf("input mutated: %v", items)
		}
	}
}
