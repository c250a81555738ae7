package nuke

import (
	"sync"
	"testing"
	"time"
)

// startBlockedQueue returns a single-worker queue whose worker is parked on a
// blocking job, so that later enqueues stay queued until release is closed.
func startBlockedQueue(t *testing.T) (q *jobQueue, release chan struct{}) {
	t.Helper()
	q = newJobQueue(1)
	release = make(chan struct{})
	started := make(chan struct{})
	q.Enqueue(PriorityNormal, func() {
		close(started)
		<-release
	})
	select {
	case <-started:
	case <-time.After(testTimeout):
		t.Fatal("worker never picked up the blocking job")
	}
	return q, release
}

func TestJobQueuePriorityOrder(t *testing.T) {
	q, release := startBlockedQueue(t)
	defer q.Close()

	var mu sync.Mutex
	var order []string
	done := make(chan struct{})
	record := func(name string, last bool) func() {
		return func() {
			mu.Lock()
			order = append(order, name)
			mu.Unlock()
			if last {
				close(done)
			}
		}
	}

	q.Enqueue(PriorityLow, record("low", false))
	q.Enqueue(PriorityVeryHigh, record("veryhigh", false))
	q.Enqueue(PriorityNormal, record("normal-1", false))
	q.Enqueue(PriorityNormal, record("normal-2", false))
	// Lowest priority, queued last, so it drains last.
	q.Enqueue(PriorityVeryLow, record("verylow", true))

	close(release)
	select {
	case <-done:
	case <-time.After(testTimeout):
		t.Fatal("queue did not drain")
	}

	mu.Lock()
	defer mu.Unlock()
	want := []string{"veryhigh", "normal-1", "normal-2", "low", "verylow"}
	if len(order) != len(want) {
		t.Fatalf("ran %d jobs, want %d", len(order), len(want))
	}
	for i := range want {
		if order[i] != want[i] {
			t.Fatalf("order = %v, want %v", order, want)
		}
	}
}

func TestJobQueueSetPriorityResorts(t *testing.T) {
	q, release := startBlockedQueue(t)
	defer q.Close()

	var mu sync.Mutex
	var order []string
	done := make(chan struct{})

	promoted := q.Enqueue(PriorityLow, func() {
		mu.Lock()
		order = append(order, "promoted")
		mu.Unlock()
	})
	q.Enqueue(PriorityNormal, func() {
		mu.Lock()
		order = append(order, "normal")
		mu.Unlock()
		close(done)
	})

	q.SetPriority(promoted, PriorityVeryHigh)
	close(release)
	select {
	case <-done:
	case <-time.After(testTimeout):
		t.Fatal("queue did not drain")
	}

	mu.Lock()
	defer mu.Unlock()
	if order[0] != "promoted" {
		t.Fatalf("order = %v, want promoted first", order)
	}
}

func TestJobQueueCancelJob(t *testing.T) {
	q, release := startBlockedQueue(t)
	defer q.Close()

	cancelled := q.Enqueue(PriorityHigh, func() {
		t.Error("cancelled job ran")
	})
	done := make(chan struct{})
	q.Enqueue(PriorityLow, func() { close(done) })

	q.CancelJob(cancelled)
	close(release)
	select {
	case <-done:
	case <-time.After(testTimeout):
		t.Fatal("queue did not drain")
	}
}

func TestJobQueueEnqueueAfterClose(t *testing.T) {
	q := newJobQueue(1)
	q.Close()
	j := q.Enqueue(PriorityNormal, func() {
		t.Error("job ran after close")
	})
	if !j.cancelled {
		t.Fatal("job enqueued after close must come back cancelled")
	}
}

func TestJobQueueConcurrency(t *testing.T) {
	q := newJobQueue(4)
	defer q.Close()

	const n = 100
	var wg sync.WaitGroup
	wg.Add(n)
	for i := 0; i < n; i++ {
		q.Enqueue(PriorityNormal, wg.Done)
	}

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(testTimeout):
		t.Fatal("jobs did not all run")
	}
}
