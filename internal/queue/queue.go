// Package queue implements the priority-partitioned pending queue.
package queue

import (
	"sync"

	"github.com/google/uuid"
	"github.com/samber/lo"
)

// ChangeKind identifies a queue mutation for listeners.
type ChangeKind int

const (
	ItemAdded ChangeKind = iota
	ItemRemoved
	ItemUpdated
	QueueReordered
	QueueCleared
	QueueRepopulated
)

// Change describes a single queue mutation.
type Change struct {
	Kind  ChangeKind
	Item  *Item // set for ItemAdded/ItemRemoved/ItemUpdated
	Index int   // position the mutation applied to, -1 when not meaningful
}

// Queue holds pending items with all priority items ahead of all
// non-priority items; relative order within each partition is insertion
// order.
type Queue struct {
	mu         sync.RWMutex
	items      []Item
	priorityFn func(requesterID string) bool

	listenerMu sync.RWMutex
	listeners  []func(Change)
}

// New creates an empty queue. priorityFn decides, once per enqueue, whether
// a requester's item lands in the priority partition; nil means no item is
// priority.
func New(priorityFn func(requesterID string) bool) *Queue {
	return &Queue{priorityFn: priorityFn}
}

// AddListener registers a callback invoked after every mutation.
// Callbacks run outside the queue lock.
func (q *Queue) AddListener(fn func(Change)) {
	q.listenerMu.Lock()
	defer q.listenerMu.Unlock()
	q.listeners = append(q.listeners, fn)
}

func (q *Queue) notify(c Change) {
	q.listenerMu.RLock()
	listeners := make([]func(Change), len(q.listeners))
	copy(listeners, q.listeners)
	q.listenerMu.RUnlock()

	for _, fn := range listeners {
		fn(c)
	}
}

// Add enqueues an item, assigning it an ID and computing its priority.
// Returns the stored item and true, or the zero item and false if an item
// with the same URL content is already queued (duplicate suppression).
func (q *Queue) Add(item Item) (Item, bool) {
	q.mu.Lock()

	if item.Kind == KindURL {
		duplicate := lo.ContainsBy(q.items, func(existing Item) bool {
			return existing.Kind == KindURL && existing.Content == item.Content
		})
		if duplicate {
			q.mu.Unlock()
			return Item{}, false
		}
	}

	if item.ID == "" {
		item.ID = uuid.NewString()
	}
	if q.priorityFn != nil {
		item.Priority = q.priorityFn(item.RequesterID)
	}
	if item.DownloadStatus == "" {
		if item.Kind == KindFile {
			item.DownloadStatus = StatusReady
		} else {
			item.DownloadStatus = StatusPending
		}
	}

	index := len(q.items)
	if item.Priority {
		// Insert before the first non-priority item, keeping the priority
		// partition in insertion order.
		index = q.partitionBoundary()
	}

	q.items = append(q.items, Item{})
	copy(q.items[index+1:], q.items[index:])
	q.items[index] = item

	q.mu.Unlock()

	q.notify(Change{Kind: ItemAdded, Item: &item, Index: index})
	return item, true
}

// partitionBoundary returns the index of the first non-priority item, or the
// queue length if every item is priority. Caller must hold the lock.
func (q *Queue) partitionBoundary() int {
	for i, it := range q.items {
		if !it.Priority {
			return i
		}
	}
	return len(q.items)
}

// RemoveAt removes the item at index. Out-of-range is a no-op returning nil.
func (q *Queue) RemoveAt(index int) *Item {
	q.mu.Lock()
	if index < 0 || index >= len(q.items) {
		q.mu.Unlock()
		return nil
	}
	removed := q.items[index]
	q.items = append(q.items[:index], q.items[index+1:]...)
	q.mu.Unlock()

	q.notify(Change{Kind: ItemRemoved, Item: &removed, Index: index})
	return &removed
}

// RemoveByID removes the item with the given ID.
func (q *Queue) RemoveByID(id string) (Item, bool) {
	q.mu.Lock()
	index := -1
	for i, it := range q.items {
		if it.ID == id {
			index = i
			break
		}
	}
	if index < 0 {
		q.mu.Unlock()
		return Item{}, false
	}
	removed := q.items[index]
	q.items = append(q.items[:index], q.items[index+1:]...)
	q.mu.Unlock()

	q.notify(Change{Kind: ItemRemoved, Item: &removed, Index: index})
	return removed, true
}

// Reorder moves the item at from to position to. Returns false if either
// index is out of range or the move would break the priority partition.
func (q *Queue) Reorder(from, to int) bool {
	q.mu.Lock()
	if from < 0 || from >= len(q.items) || to < 0 || to >= len(q.items) {
		q.mu.Unlock()
		return false
	}
	if from == to {
		q.mu.Unlock()
		return true
	}

	moved := make([]Item, len(q.items))
	copy(moved, q.items)
	item := moved[from]
	moved = append(moved[:from], moved[from+1:]...)
	moved = append(moved[:to], append([]Item{item}, moved[to:]...)...)

	if !partitionIntact(moved) {
		q.mu.Unlock()
		return false
	}

	q.items = moved
	q.mu.Unlock()

	q.notify(Change{Kind: QueueReordered, Index: to})
	return true
}

// partitionIntact reports whether every priority item precedes every
// non-priority item.
func partitionIntact(items []Item) bool {
	seenNormal := false
	for _, it := range items {
		if !it.Priority {
			seenNormal = true
		} else if seenNormal {
			return false
		}
	}
	return true
}

// Snapshot returns a copy of the queued items in order.
func (q *Queue) Snapshot() []Item {
	q.mu.RLock()
	defer q.mu.RUnlock()
	result := make([]Item, len(q.items))
	copy(result, q.items)
	return result
}

// Get returns the item with the given ID.
func (q *Queue) Get(id string) (Item, bool) {
	q.mu.RLock()
	defer q.mu.RUnlock()
	for _, it := range q.items {
		if it.ID == id {
			return it, true
		}
	}
	return Item{}, false
}

// Update applies fn to the item with the given ID in place.
// Used by the prefetcher to rewrite url items into resolved files.
func (q *Queue) Update(id string, fn func(*Item)) bool {
	q.mu.Lock()
	index := -1
	for i := range q.items {
		if q.items[i].ID == id {
			fn(&q.items[i])
			index = i
			break
		}
	}
	if index < 0 {
		q.mu.Unlock()
		return false
	}
	updated := q.items[index]
	q.mu.Unlock()

	q.notify(Change{Kind: ItemUpdated, Item: &updated, Index: index})
	return true
}

// Append adds items at the tail without deduplication or partition
// placement. Used for startup restore and repeat-all repopulation, where
// the stored order is authoritative.
func (q *Queue) Append(items ...Item) {
	if len(items) == 0 {
		return
	}
	q.mu.Lock()
	q.items = append(q.items, items...)
	q.mu.Unlock()

	q.notify(Change{Kind: QueueRepopulated, Index: -1})
}

// Clear empties the queue. Used only for explicit session reset.
func (q *Queue) Clear() {
	q.mu.Lock()
	q.items = q.items[:0]
	q.mu.Unlock()

	q.notify(Change{Kind: QueueCleared, Index: -1})
}

// Len returns the number of queued items.
func (q *Queue) Len() int {
	q.mu.RLock()
	defer q.mu.RUnlock()
	return len(q.items)
}

// IsEmpty returns true if nothing is queued.
func (q *Queue) IsEmpty() bool {
	return q.Len() == 0
}
