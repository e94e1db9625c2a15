package task

import (
	"container/heap"
	"time"
)

// queueEntry is one heap element of the pending queue. Entries are ordered
// by descending priority, then ascending creation time, then insertion
// sequence. Retried tasks are re-pushed with their original CreatedAt, so
// they keep their seniority among equal-priority tasks.
type queueEntry struct {
	priority  Priority
	createdAt time.Time
	seq       uint64
	taskID    string
}

// pendingQueue implements heap.Interface. Removal is handled lazily: the
// Manager keeps a live-id set and stale entries are skipped on pop, which
// avoids O(n) heap rebuilds when tasks are assigned or cancelled.
type pendingQueue []queueEntry

func (q pendingQueue) Len() int { return len(q) }

func (q pendingQueue) Less(i, j int) bool {
	if q[i].priority != q[j].priority {
		return q[i].priority > q[j].priority
	}
	if !q[i].createdAt.Equal(q[j].createdAt) {
		return q[i].createdAt.Before(q[j].createdAt)
	}
	return q[i].seq < q[j].seq
}

func (q pendingQueue) Swap(i, j int) { q[i], q[j] = q[j], q[i] }

func (q *pendingQueue) Push(x any) {
	*q = append(*q, x.(queueEntry))
}

func (q *pendingQueue) Pop() any {
	old := *q
	n := len(old)
	entry := old[n-1]
	*q = old[:n-1]
	return entry
}

var _ heap.Interface = (*pendingQueue)(nil)
