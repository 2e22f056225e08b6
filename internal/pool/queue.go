package pool

import (
	"container/heap"
	"sort"
)

// taskQueue is the priority admission structure. Ordering is strictly
// descending by priority with a sequence counter breaking ties, so
// equal-priority tasks dequeue in submission order (FIFO).
//
// A heap with a tie-break counter dequeues in the same order a stable
// ordered insert would, with better asymptotics at depth.
//
// The queue is owned by the coordinator loop and is not safe for
// concurrent use.
type taskQueue struct {
	items queueHeap
	seq   uint64
}

type queueItem struct {
	pt    *pendingTask
	seq   uint64
	index int
}

func newTaskQueue() *taskQueue {
	q := &taskQueue{}
	heap.Init(&q.items)
	return q
}

func (q *taskQueue) push(pt *pendingTask) {
	q.seq++
	heap.Push(&q.items, &queueItem{pt: pt, seq: q.seq})
}

func (q *taskQueue) pop() *pendingTask {
	if len(q.items) == 0 {
		return nil
	}
	it := heap.Pop(&q.items).(*queueItem)
	return it.pt
}

func (q *taskQueue) peek() *pendingTask {
	if len(q.items) == 0 {
		return nil
	}
	return q.items[0].pt
}

func (q *taskQueue) len() int { return len(q.items) }

func (q *taskQueue) clear() { q.items = q.items[:0] }

// remove deletes the queued task with the given id, preserving the dequeue
// order of everything else.
func (q *taskQueue) remove(id string) *pendingTask {
	for _, it := range q.items {
		if it.pt.task.ID == id {
			heap.Remove(&q.items, it.index)
			return it.pt
		}
	}
	return nil
}

// snapshot returns a read-only copy of the queued tasks in dequeue order.
func (q *taskQueue) snapshot() []Task {
	out := make([]Task, 0, len(q.items))
	items := make([]*queueItem, len(q.items))
	copy(items, q.items)
	sort.Slice(items, func(i, j int) bool { return items[i].less(items[j]) })
	for _, it := range items {
		out = append(out, it.pt.task)
	}
	return out
}

// queueHeap implements heap.Interface.
type queueHeap []*queueItem

func (a *queueItem) less(b *queueItem) bool {
	if a.pt.task.Priority != b.pt.task.Priority {
		return a.pt.task.Priority > b.pt.task.Priority
	}
	return a.seq < b.seq
}

func (h queueHeap) Len() int           { return len(h) }
func (h queueHeap) Less(i, j int) bool { return h[i].less(h[j]) }
func (h queueHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index = i
	h[j].index = j
}

func (h *queueHeap) Push(x any) {
	it := x.(*queueItem)
	it.index = len(*h)
	*h = append(*h, it)
}

func (h *queueHeap) Pop() any {
	old := *h
	n := len(old)
	it := old[n-1]
	old[n-1] = nil
	*h = old[:n-1]
	return it
}
