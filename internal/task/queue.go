package task

import (
	"container/heap"
	"sync"
)

// item is one (priority, task) entry in a Queue's internal heap, with a
// monotonic sequence number so FIFO order is preserved among equal
// priorities.
type item struct {
	priority int
	seq      uint64
	task     *Task
}

type heapSlice []item

func (h heapSlice) Len() int { return len(h) }
func (h heapSlice) Less(i, j int) bool {
	if h[i].priority != h[j].priority {
		return h[i].priority < h[j].priority
	}
	return h[i].seq < h[j].seq
}
func (h heapSlice) Swap(i, j int)      { h[i], h[j] = h[j], h[i] }
func (h *heapSlice) Push(x any)        { *h = append(*h, x.(item)) }
func (h *heapSlice) Pop() any {
	old := *h
	n := len(old)
	it := old[n-1]
	*h = old[:n-1]
	return it
}

// Queue is a bounded, priority-ordered (smaller Task.Priority first)
// task queue, the per-Worker inbox described in SPEC_FULL.md §4.5.
type Queue struct {
	mu      sync.Mutex
	cond    *sync.Cond
	items   heapSlice
	maxSize int
	nextSeq uint64
	closed  bool
}

// NewQueue creates a Queue bounded at maxSize.
func NewQueue(maxSize int) *Queue {
	q := &Queue{maxSize: maxSize}
	q.cond = sync.NewCond(&q.mu)
	return q
}

// Size returns the current queue length.
func (q *Queue) Size() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// Empty reports whether the queue currently holds no tasks.
func (q *Queue) Empty() bool {
	return q.Size() == 0
}

// TryPut enqueues (priority, t) without blocking, returning false if the
// queue is at maxSize.
func (q *Queue) TryPut(priority int, t *Task) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.items) >= q.maxSize {
		return false
	}
	q.nextSeq++
	heap.Push(&q.items, item{priority: priority, seq: q.nextSeq, task: t})
	q.cond.Signal()
	return true
}

// Get blocks until a task is available or the queue is closed, returning
// (nil, false) in the latter case.
func (q *Queue) Get() (*Task, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	for len(q.items) == 0 && !q.closed {
		q.cond.Wait()
	}
	if len(q.items) == 0 {
		return nil, false
	}
	it := heap.Pop(&q.items).(item)
	return it.task, true
}

// Close wakes any blocked Get call; subsequent Get calls return immediately.
func (q *Queue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.closed = true
	q.cond.Broadcast()
}
