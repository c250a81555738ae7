package nuke

import (
	"container/heap"
	"sync"
)

// job is a unit of work queued on a jobQueue. Priority may change while the
// job is still queued; the queue re-sorts it in place.
type job struct {
	fn        func()
	priority  Priority
	seq       int64
	index     int // heap index, -1 once dequeued or removed
	cancelled bool
}

// jobQueue is a bounded-concurrency worker pool draining a priority heap.
// Higher priority runs first; equal priorities run in submission order.
type jobQueue struct {
	mu     sync.Mutex
	cond   *sync.Cond
	heap   jobHeap
	seq    int64
	closed bool
	wg     sync.WaitGroup
}

func newJobQueue(workers int) *jobQueue {
	q := &jobQueue{}
	q.cond = sync.NewCond(&q.mu)
	for i := 0; i < workers; i++ {
		q.wg.Add(1)
		go q.worker()
	}
	return q
}

// Enqueue schedules fn at the given priority and returns a handle usable
// with SetPriority and CancelJob.
func (q *jobQueue) Enqueue(p Priority, fn func()) *job {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.seq++
	j := &job{fn: fn, priority: p, seq: q.seq}
	if q.closed {
		j.cancelled = true
		j.index = -1
		return j
	}
	heap.Push(&q.heap, j)
	q.cond.Signal()
	return j
}

// SetPriority updates the priority of a queued job. No-op once the job has
// started or been cancelled.
func (q *jobQueue) SetPriority(j *job, p Priority) {
	q.mu.Lock()
	defer q.mu.Unlock()
	j.priority = p
	if j.index >= 0 {
		heap.Fix(&q.heap, j.index)
	}
}

// CancelJob marks the job cancelled and, if still queued, removes it so the
// worker never runs it. A job that already started is left to observe its
// own cancellation token.
func (q *jobQueue) CancelJob(j *job) {
	q.mu.Lock()
	defer q.mu.Unlock()
	j.cancelled = true
	if j.index >= 0 {
		heap.Remove(&q.heap, j.index)
	}
}

// Close stops the workers. Queued jobs that have not started are dropped;
// running jobs finish. Blocks until every worker has exited.
func (q *jobQueue) Close() {
	q.mu.Lock()
	q.closed = true
	q.cond.Broadcast()
	q.mu.Unlock()
	q.wg.Wait()
}

func (q *jobQueue) worker() {
	defer q.wg.Done()
	for {
		q.mu.Lock()
		for q.heap.Len() == 0 && !q.closed {
			q.cond.Wait()
		}
		if q.closed {
			q.mu.Unlock()
			return
		}
		j := heap.Pop(&q.heap).(*job)
		cancelled := j.cancelled
		q.mu.Unlock()
		if cancelled {
			continue
		}
		j.fn()
	}
}

type jobHeap []*job

func (h jobHeap) Len() int { return len(h) }

func (h jobHeap) Less(i, j int) bool {
	if h[i].priority != h[j].priority {
		return h[i].priority > h[j].priority
	}
	return h[i].seq < h[j].seq
}

func (h jobHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index = i
	h[j].index = j
}

func (h *jobHeap) Push(x any) {
	j := x.(*job)
	j.index = len(*h)
	*h = append(*h, j)
}

func (h *jobHeap) Pop() any {
	old := *h
	n := len(old)
	j := old[n-1]
	old[n-1] = nil
	j.index = -1
	*h = old[:n-1]
	return j
}
