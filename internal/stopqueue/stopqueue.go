// Package stopqueue implements the ordered, deduplicated queue of task IDs
// currently flagged as paused. Slots are assigned at the tail cursor and
// released from the head cursor, so release order is always oldest-pause-first.
package stopqueue

import (
	"sync"

	"github.com/colinxiong/MURS/internal/model"
)

// Queue is a FIFO pause queue keyed by slot index. It is safe for concurrent
// use; all cursor and slot mutations happen under one mutex so that
// unregister-triggered releases and governor-triggered pauses never interleave
// into an inconsistent cursor state.
type Queue struct {
	mu    sync.Mutex
	slots map[uint64]model.TaskID
	head  uint64 // next slot eligible for release
	tail  uint64 // next slot to be assigned
}

// New creates an empty queue.
func New() *Queue {
	return &Queue{
		slots: make(map[uint64]model.TaskID),
	}
}

// Pause appends id at the tail cursor. A duplicate pause for an id already
// queued is a no-op. Returns true if the id was newly queued.
func (q *Queue) Pause(id model.TaskID) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	for _, queued := range q.slots {
		if queued == id {
			return false
		}
	}

	q.slots[q.tail] = id
	q.tail++
	return true
}

// ReleaseOldest clears the oldest occupied slot and returns its task id.
// Unoccupied slots left behind by Remove are skipped over. Returns false if
// the queue is empty.
func (q *Queue) ReleaseOldest() (model.TaskID, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.releaseOldestLocked()
}

func (q *Queue) releaseOldestLocked() (model.TaskID, bool) {
	for q.head < q.tail {
		id, ok := q.slots[q.head]
		if ok {
			delete(q.slots, q.head)
			q.head++
			return id, true
		}
		q.head++
	}
	return 0, false
}

// ReleaseAll clears every occupied slot in the range captured at call time,
// oldest first, and returns the released ids in release order.
func (q *Queue) ReleaseAll() []model.TaskID {
	q.mu.Lock()
	defer q.mu.Unlock()

	end := q.tail
	var released []model.TaskID
	for q.head < end {
		id, ok := q.releaseOldestLocked()
		if !ok {
			break
		}
		released = append(released, id)
	}
	return released
}

// Remove clears the slot holding id, if any, without advancing the head
// cursor past other entries. A finishing task silently resolves its own
// pause this way. Returns true if the id was queued.
func (q *Queue) Remove(id model.TaskID) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	for slot, queued := range q.slots {
		if queued == id {
			delete(q.slots, slot)
			return true
		}
	}
	return false
}

// Contains reports whether id is currently queued.
func (q *Queue) Contains(id model.TaskID) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	for _, queued := range q.slots {
		if queued == id {
			return true
		}
	}
	return false
}

// IsEmpty reports whether no task is currently paused.
func (q *Queue) IsEmpty() bool {
	return q.Len() == 0
}

// Len returns the number of currently paused tasks.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.slots)
}

// Cursors returns the head and tail cursor values. Intended for tests and
// diagnostics.
func (q *Queue) Cursors() (head, tail uint64) {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.head, q.tail
}
