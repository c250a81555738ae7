package nuke

import "time"

// TaskMetrics records observational timestamps and flags for one task.
// Metrics never influence control flow.
type TaskMetrics struct {
	StartedAt   time.Time
	CompletedAt time.Time

	// WasDeduplicated is set when the task attached to a session that was
	// already in flight for another task.
	WasDeduplicated bool

	// WasCacheHit is set when the result cache satisfied the request and no
	// session was created.
	WasCacheHit bool

	WasCancelled bool

	// Session holds the metrics of the session that served this task, if
	// one existed. Populated at terminal delivery.
	Session SessionMetrics
}

// SessionMetrics records per-session fetch/decode/process timestamps and
// byte counters.
type SessionMetrics struct {
	FetchStartedAt     time.Time
	FetchCompletedAt   time.Time
	DecodeCompletedAt  time.Time
	ProcessCompletedAt time.Time

	// BytesReceived counts bytes delivered by the loader for this session,
	// excluding resumed bytes.
	BytesReceived int64

	// BytesFromResume counts bytes recovered from the resumable cache.
	BytesFromResume int64

	// WasResumed is set when the origin honored a resumption request.
	WasResumed bool
}
