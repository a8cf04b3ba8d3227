package scheduler

import (
	"container/heap"
	"sync"

	"github.com/google/uuid"
)

// runnable is the unit the scheduler's queue and worker pool operate on —
// either a Job envelope (composing one or more profiles) or a single
// directly-scheduled profile.
type runnable struct {
	key                string // dedup key: "job:<id>" or "profile:<id>"
	jobID              *uuid.UUID
	profileIDs         []uuid.UUID
	priority           int
	allowConcurrent    bool
	timeoutMinutes     int
	ignoreDependencies bool
	maxRetries         int   // per-cycle retries for a failing profile run, not job-level disabling
	seq                int64 // FIFO tie-break for equal priority
}

// runnableHeap is a max-heap on priority, FIFO (lowest seq first) on ties.
type runnableHeap []*runnable

func (h runnableHeap) Len() int { return len(h) }
func (h runnableHeap) Less(i, j int) bool {
	if h[i].priority != h[j].priority {
		return h[i].priority > h[j].priority
	}
	return h[i].seq < h[j].seq
}
func (h runnableHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i] }
func (h *runnableHeap) Push(x interface{}) { *h = append(*h, x.(*runnable)) }
func (h *runnableHeap) Pop() interface{} {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}

// jobQueue is a thread-safe priority queue that dedups against items already
// queued or currently running, so enqueue is idempotent per job id. Pop
// blocks until an item is available or the queue is closed.
type jobQueue struct {
	mu      sync.Mutex
	cond    *sync.Cond
	heap    runnableHeap
	queued  map[string]bool
	running map[string]bool
	seq     int64
	closed  bool
}

func newJobQueue() *jobQueue {
	q := &jobQueue{queued: make(map[string]bool), running: make(map[string]bool)}
	q.cond = sync.NewCond(&q.mu)
	return q
}

// Enqueue adds r unless its key is already queued or running. Returns true
// if it was added.
func (q *jobQueue) Enqueue(r *runnable) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed || q.queued[r.key] || q.running[r.key] {
		return false
	}
	q.seq++
	r.seq = q.seq
	q.queued[r.key] = true
	heap.Push(&q.heap, r)
	q.cond.Signal()
	return true
}

// Pop blocks until an item is available (marking it running) or the queue
// closes, in which case ok is false.
func (q *jobQueue) Pop() (r *runnable, ok bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	for len(q.heap) == 0 && !q.closed {
		q.cond.Wait()
	}
	if len(q.heap) == 0 {
		return nil, false
	}
	item := heap.Pop(&q.heap).(*runnable)
	delete(q.queued, item.key)
	q.running[item.key] = true
	return item, true
}

// Done marks r's key no longer running, so a future tick may re-enqueue it.
func (q *jobQueue) Done(r *runnable) {
	q.mu.Lock()
	defer q.mu.Unlock()
	delete(q.running, r.key)
}

// Close drops every still-queued item and unblocks any pending Pop calls.
func (q *jobQueue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.closed = true
	q.heap = nil
	q.queued = make(map[string]bool)
	q.cond.Broadcast()
}
