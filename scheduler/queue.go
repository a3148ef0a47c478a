package scheduler

// JobQueue is an ordered collection of work items for a single work type.
//
// Items are kept sorted by ascending priority, FIFO among equal priorities,
// and are never reprioritized after insertion. The queue itself is not
// goroutine-safe; the owning Scheduler serializes all access under its mutex.
type JobQueue struct {
	workType WorkType
	items    []*WorkItem
}

// NewJobQueue creates an empty queue for one work type
func NewJobQueue(workType WorkType) *JobQueue {
	return &JobQueue{workType: workType}
}

// Type returns the work type this queue holds
func (q *JobQueue) Type() WorkType {
	return q.workType
}

// Len returns the total number of items in the queue, any status
func (q *JobQueue) Len() int {
	return len(q.items)
}

// Enqueue inserts an item maintaining priority order.
// Stable: an item goes after every existing item of equal or lower priority,
// so ties preserve insertion order.
func (q *JobQueue) Enqueue(item *WorkItem) {
	pos := len(q.items)
	for pos > 0 && q.items[pos-1].Priority > item.Priority {
		pos--
	}
	q.items = append(q.items, nil)
	copy(q.items[pos+1:], q.items[pos:])
	q.items[pos] = item
}

// PeekNextPending returns the first pending item scanning from the head.
// Earlier items may already be completed, failed or running; those are
// skipped but keep their positions. Returns nil if nothing is pending.
func (q *JobQueue) PeekNextPending() *WorkItem {
	for _, item := range q.items {
		if item.Status == StatusPending {
			return item
		}
	}
	return nil
}

// Snapshot returns a copy of all items currently in the queue, in queue order
func (q *JobQueue) Snapshot() []WorkItem {
	snapshot := make([]WorkItem, len(q.items))
	for i, item := range q.items {
		snapshot[i] = *item
	}
	return snapshot
}

// Clear removes every item except those in terminal failed state, which are
// retained for operator inspection. Returns counts removed and retained.
func (q *JobQueue) Clear() (removed int, retained int) {
	kept := q.items[:0]
	for _, item := range q.items {
		if item.Status == StatusFailed {
			kept = append(kept, item)
			retained++
		} else {
			removed++
		}
	}
	q.items = kept
	return removed, retained
}

// Reset drops everything in the queue, failed items included.
// Used by EnqueueAll before scheduling a fresh full pass.
func (q *JobQueue) Reset() {
	q.items = nil
}

// QueueCounts holds per-status counts for one queue
type QueueCounts struct {
	Pending   int `json:"pending"`
	Running   int `json:"running"`
	Completed int `json:"completed"`
	Failed    int `json:"failed"`
	Total     int `json:"total"`
}

// Counts tallies the queue's items by status
func (q *JobQueue) Counts() QueueCounts {
	var c QueueCounts
	for _, item := range q.items {
		switch item.Status {
		case StatusPending:
			c.Pending++
		case StatusRunning:
			c.Running++
		case StatusCompleted:
			c.Completed++
		case StatusFailed:
			c.Failed++
		}
		c.Total++
	}
	return c
}
