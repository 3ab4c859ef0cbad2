package playback

import (
	"math/rand"

	"github.com/lhoume/jukebox/internal/queue"
)

const (
	priorityWeight = 3
	normalWeight   = 1
)

// weightedIndex draws one index over the whole visible queue: priority
// items carry weight 3, others weight 1. A priority item is therefore three
// times as likely per draw, but is not guaranteed to play before
// non-priority items: shuffle intentionally overrides strict FIFO-priority
// ordering.
func weightedIndex(items []queue.Item) int {
	if len(items) == 0 {
		return -1
	}

	total := 0.0
	for _, it := range items {
		total += itemWeight(it)
	}

	r := rand.Float64() * total
	for i, it := range items {
		r -= itemWeight(it)
		if r <= 0 {
			return i
		}
	}
	return len(items) - 1
}

func itemWeight(it queue.Item) float64 {
	if it.Priority {
		return priorityWeight
	}
	return normalWeight
}

// weightedShuffle reorders items by repeated weighted draws without
// replacement. Used when repeat-all repopulates the queue with shuffle on.
func weightedShuffle(items []queue.Item) []queue.Item {
	remaining := make([]queue.Item, len(items))
	copy(remaining, items)

	out := make([]queue.Item, 0, len(items))
	for len(remaining) > 0 {
		i := weightedIndex(remaining)
		out = append(out, remaining[i])
		remaining = append(remaining[:i], remaining[i+1:]...)
	}
	return out
}
