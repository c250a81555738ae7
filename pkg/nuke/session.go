package nuke

// session is the unit of coalesced work for one coalescing key: however many
// tasks ask for the same resource with equivalent processing, one session
// runs one fetch/decode/process chain and fans results out to all of them.
//
// Field ownership is split between two confinement domains. The registry,
// subscriber set, priority, completion flag, and metrics belong to the
// pipeline's bookkeeping lock. The byte buffer, decoder, and resumable state
// belong to the pipeline's decode queue and must only be touched from there.
type session struct {
	id      int64
	key     string
	request Request
	token   *TokenSource

	// Guarded by Pipeline.mu.
	tasks           map[*Task]struct{}
	priority        Priority
	completed       bool
	fetchJob        *job
	partialInFlight bool
	partialJob      *job
	metrics         SessionMetrics

	// Owned by the decode queue.
	buffer       []byte
	decoder      Decoder
	resumed      *resumableData
	gotFirstData bool
	validator    string
	totalBytes   int64
	resp         ResponseInfo
}

// snapshotLocked returns the current subscriber set. Events are delivered to
// this snapshot; a task attaching afterwards will not see the event.
// Caller holds Pipeline.mu.
func (s *session) snapshotLocked() []*Task {
	tasks := make([]*Task, 0, len(s.tasks))
	for t := range s.tasks {
		tasks = append(tasks, t)
	}
	return tasks
}

// priorityLocked derives the session priority: the maximum across current
// subscribers, or PriorityNormal for an empty set. Caller holds Pipeline.mu.
func (s *session) priorityLocked() Priority {
	if len(s.tasks) == 0 {
		return PriorityNormal
	}
	max := PriorityVeryLow
	for t := range s.tasks {
		if t.request.Priority > max {
			max = t.request.Priority
		}
	}
	return max
}
