package nuke

import "image"

// Task is a caller's handle to one logical load request. Many tasks may
// subscribe to the same underlying session; each still receives its own
// callbacks and carries its own metrics.
type Task struct {
	id int64
	p  *Pipeline

	onProgress     func(completed, total int64)
	onPartialImage func(img image.Image)
	onCompletion   func(resp *Response, err error)

	// Guarded by p.mu.
	request        Request
	session        *session
	cancelled      bool
	completedUnits int64
	totalUnits     int64
	metrics        TaskMetrics
}

// ID returns the task's unique, monotonically increasing id.
func (t *Task) ID() int64 { return t.id }

// Cancel marks the task cancelled. Idempotent. The underlying work is torn
// down only when the last subscriber of its session cancels; a cancelled
// task receives no further callbacks.
func (t *Task) Cancel() { t.p.cancelTask(t) }

// SetPriority updates the task's priority and re-derives its session's
// effective priority, re-sorting any queued fetch.
func (t *Task) SetPriority(p Priority) { t.p.setTaskPriority(t, p) }

// Progress returns the bytes received so far and the declared total, which
// is 0 while unknown.
func (t *Task) Progress() (completed, total int64) {
	t.p.mu.Lock()
	defer t.p.mu.Unlock()
	return t.completedUnits, t.totalUnits
}

// Metrics returns a snapshot of the task's metrics.
func (t *Task) Metrics() TaskMetrics {
	t.p.mu.Lock()
	defer t.p.mu.Unlock()
	m := t.metrics
	if t.session != nil {
		m.Session = t.session.metrics
	}
	return m
}
