package world

import "container/heap"

// loadEntry is one chunk waiting to be loaded. Lower priority loads first.
type loadEntry struct {
	key      ChunkKey
	coord    ChunkCoord
	priority int // squared chunk distance to the viewer
	seq      uint64
	index    int
}

// LoadQueue is a priority queue holding at most one entry per chunk key.
// Entries with equal priority pop in insertion order.
type LoadQueue struct {
	items entryHeap
	byKey map[ChunkKey]*loadEntry
	seq   uint64
}

func NewLoadQueue() *LoadQueue {
	return &LoadQueue{byKey: make(map[ChunkKey]*loadEntry)}
}

// Push enqueues coord at priority. If the key is already queued, a lower
// priority replaces the stored one and a higher one is ignored.
// It reports whether the queue changed.
func (q *LoadQueue) Push(coord ChunkCoord, priority int) bool {
	key := coord.Key()
	if e, ok := q.byKey[key]; ok {
		if priority >= e.priority {
			return false
		}
		e.priority = priority
		heap.Fix(&q.items, e.index)
		return true
	}
	q.seq++
	e := &loadEntry{key: key, coord: coord, priority: priority, seq: q.seq}
	q.byKey[key] = e
	heap.Push(&q.items, e)
	return true
}

// Update sets the priority of a queued key in place, raising or lowering it.
func (q *LoadQueue) Update(key ChunkKey, priority int) bool {
	e, ok := q.byKey[key]
	if !ok {
		return false
	}
	if e.priority != priority {
		e.priority = priority
		heap.Fix(&q.items, e.index)
	}
	return true
}

// Pop removes the entry with the lowest priority.
func (q *LoadQueue) Pop() (ChunkCoord, int, bool) {
	e := q.popEntry()
	if e == nil {
		return ChunkCoord{}, 0, false
	}
	return e.coord, e.priority, true
}

func (q *LoadQueue) popEntry() *loadEntry {
	if len(q.items) == 0 {
		return nil
	}
	e := heap.Pop(&q.items).(*loadEntry)
	delete(q.byKey, e.key)
	return e
}

// restore puts back an entry taken with popEntry, keeping its place among
// equal priorities. It is a no-op if the key was queued again meanwhile.
func (q *LoadQueue) restore(e *loadEntry) {
	if _, ok := q.byKey[e.key]; ok {
		return
	}
	q.byKey[e.key] = e
	heap.Push(&q.items, e)
}

// Remove drops a key if present.
func (q *LoadQueue) Remove(key ChunkKey) bool {
	e, ok := q.byKey[key]
	if !ok {
		return false
	}
	heap.Remove(&q.items, e.index)
	delete(q.byKey, key)
	return true
}

// RemoveFunc drops every entry for which drop returns true and returns how many were removed.
func (q *LoadQueue) RemoveFunc(drop func(ChunkCoord) bool) int {
	kept := q.items[:0]
	removed := 0
	for _, e := range q.items {
		if drop(e.coord) {
			delete(q.byKey, e.key)
			removed++
			continue
		}
		kept = append(kept, e)
	}
	clear(q.items[len(kept):])
	q.items = kept
	for i, e := range q.items {
		e.index = i
	}
	heap.Init(&q.items)
	return removed
}

// Contains reports whether key is queued.
func (q *LoadQueue) Contains(key ChunkKey) bool {
	_, ok := q.byKey[key]
	return ok
}

// Priority returns the queued priority of key.
func (q *LoadQueue) Priority(key ChunkKey) (int, bool) {
	e, ok := q.byKey[key]
	if !ok {
		return 0, false
	}
	return e.priority, true
}

func (q *LoadQueue) Len() int { return len(q.items) }

// Keys returns the queued keys in no particular order.
func (q *LoadQueue) Keys() []ChunkKey {
	out := make([]ChunkKey, 0, len(q.byKey))
	for k := range q.byKey {
		out = append(out, k)
	}
	return out
}

// Clear empties the queue.
func (q *LoadQueue) Clear() {
	q.items = nil
	clear(q.byKey)
}

type entryHeap []*loadEntry

func (h entryHeap) Len() int { return len(h) }

func (h entryHeap) Less(i, j int) bool {
	if h[i].priority != h[j].priority {
		return h[i].priority < h[j].priority
	}
	return h[i].seq < h[j].seq
}

func (h entryHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index = i
	h[j].index = j
}

func (h *entryHeap) Push(x any) {
	e := x.(*loadEntry)
	e.index = len(*h)
	*h = append(*h, e)
}

func (h *entryHeap) Pop() any {
	old := *h
	n := len(old)
	e := old[n-1]
	old[n-1] = nil
	e.index = -1
	*h = old[:n-1]
	return e
}
