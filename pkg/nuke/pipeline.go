package nuke

import (
	"context"
	"fmt"
	"image"
	"net/http"
	"strconv"
	"sync"
	"sync/atomic"
	"time"
)

// Pipeline coalesces image loads: N concurrent requests for the same
// resource and processing share one fetch/decode/process chain, with
// priority and cancellation propagated across the whole subscriber set.
//
// All registry and session bookkeeping happens under a single lock; byte
// buffers and decoders are confined to a serial decode queue; callbacks are
// invoked on a serial delivery queue. Fetch and processing run on bounded
// priority worker pools.
type Pipeline struct {
	opts Options

	mu            sync.Mutex
	sessions      map[string]*session
	nextSessionID int64
	nextUniqueKey int64
	closed        bool

	nextTaskID atomic.Int64

	fetchQueue   *jobQueue
	processQueue *jobQueue
	limiter      *rateLimiter
	resumable    *resumableCache
	decodeQ      *serialQueue
	deliverQ     *serialQueue
}

// New creates a pipeline. Panics if opts.Loader is nil.
func New(opts Options) *Pipeline {
	if opts.Loader == nil {
		panic("nuke: Options.Loader is required")
	}
	opts.applyDefaults()

	p := &Pipeline{
		opts:         opts,
		sessions:     make(map[string]*session),
		fetchQueue:   newJobQueue(opts.FetchWorkers),
		processQueue: newJobQueue(opts.ProcessWorkers),
		decodeQ:      newSerialQueue(),
		deliverQ:     newSerialQueue(),
	}
	if opts.EnableRateLimiting {
		p.limiter = newRateLimiter(DefaultRateLimitPerSecond, DefaultRateLimitBurst)
	}
	if !opts.DisableResumableData {
		p.resumable = newResumableCache(opts.ResumableCacheBytes, opts.ResumableCacheEntries)
	}
	return p
}

// Close cancels every in-flight session and stops the pipeline's workers.
// Tasks still in flight are dropped without callbacks.
func (p *Pipeline) Close() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	var open []*session
	for key, s := range p.sessions {
		s.completed = true
		open = append(open, s)
		delete(p.sessions, key)
	}
	p.mu.Unlock()

	for _, s := range open {
		s.token.Cancel()
	}
	if p.limiter != nil {
		p.limiter.Close()
	}
	p.fetchQueue.Close()
	p.processQueue.Close()
	p.decodeQ.Close()
	p.deliverQ.Close()
}

// Load submits a request and returns its task immediately. Admission happens
// asynchronously; the task can be cancelled at any point, including before
// admission.
func (p *Pipeline) Load(req Request, h Handlers) *Task {
	t := &Task{
		id:             p.nextTaskID.Add(1),
		p:              p,
		request:        req,
		onProgress:     h.OnProgress,
		onPartialImage: h.OnPartialImage,
		onCompletion:   h.OnCompletion,
	}
	t.metrics.StartedAt = time.Now()
	go p.admit(t)
	return t
}

// Fetch is a blocking convenience wrapper around Load. Cancelling ctx
// cancels the task and returns ctx.Err().
func (p *Pipeline) Fetch(ctx context.Context, req Request) (*Response, error) {
	type outcome struct {
		resp *Response
		err  error
	}
	ch := make(chan outcome, 1)
	task := p.Load(req, Handlers{
		OnCompletion: func(resp *Response, err error) {
			ch <- outcome{resp: resp, err: err}
		},
	})
	select {
	case out := <-ch:
		return out.resp, out.err
	case <-ctx.Done():
		task.Cancel()
		return nil, ctx.Err()
	}
}

// admit runs the intake sequence: cache probe, then session attach/create.
func (p *Pipeline) admit(t *Task) {
	p.mu.Lock()
	if p.closed || t.cancelled {
		p.mu.Unlock()
		return
	}

	cacheKey := t.request.cacheKey()
	if p.opts.Cache != nil && !t.request.DisableMemoryCacheRead {
		if img, ok := p.opts.Cache.Get(cacheKey); ok {
			t.metrics.WasCacheHit = true
			t.metrics.CompletedAt = time.Now()
			resp := &Response{Image: img, Metrics: t.metrics}
			cb := t.onCompletion
			p.mu.Unlock()
			if cb != nil {
				p.deliverQ.Async(func() { cb(resp, nil) })
			}
			return
		}
	}

	key := cacheKey
	if p.opts.DisableDeduplication {
		p.nextUniqueKey++
		key = cacheKey + "|#" + strconv.FormatInt(p.nextUniqueKey, 10)
	}

	var start func()
	s, ok := p.sessions[key]
	if ok {
		t.metrics.WasDeduplicated = true
	} else {
		p.nextSessionID++
		s = &session{
			id:      p.nextSessionID,
			key:     key,
			request: t.request,
			token:   NewTokenSource(),
			tasks:   make(map[*Task]struct{}),
		}
		p.sessions[key] = s
		start = func() { p.startFetch(s) }
	}
	s.tasks[t] = struct{}{}
	t.session = s
	p.applySessionPriorityLocked(s)
	p.mu.Unlock()

	if start != nil {
		if p.limiter != nil {
			p.limiter.Execute(s.token.Token(), start)
		} else {
			start()
		}
	}
}

// cancelTask implements Task.Cancel. A session is torn down only when its
// subscriber set empties; one task cancelling while others remain subscribed
// must not disturb the shared work.
func (p *Pipeline) cancelTask(t *Task) {
	p.mu.Lock()
	if t.cancelled {
		p.mu.Unlock()
		return
	}
	t.cancelled = true
	t.metrics.WasCancelled = true
	t.metrics.CompletedAt = time.Now()

	s := t.session
	if s == nil || s.completed {
		p.mu.Unlock()
		return
	}
	delete(s.tasks, t)
	if len(s.tasks) > 0 {
		p.applySessionPriorityLocked(s)
		p.mu.Unlock()
		return
	}

	// Last subscriber gone: save what was downloaded, then tear down.
	s.completed = true
	if p.sessions[s.key] == s {
		delete(p.sessions, s.key)
	}
	p.mu.Unlock()

	p.decodeQ.Async(func() { p.stashResumableData(s) })
	s.token.Cancel()
}

// setTaskPriority implements Task.SetPriority.
func (p *Pipeline) setTaskPriority(t *Task, priority Priority) {
	p.mu.Lock()
	defer p.mu.Unlock()
	t.request.Priority = priority
	if s := t.session; s != nil && !s.completed {
		p.applySessionPriorityLocked(s)
	}
}

// applySessionPriorityLocked re-derives the session priority from its
// subscribers and re-sorts the queued fetch, if any. Caller holds p.mu.
func (p *Pipeline) applySessionPriorityLocked(s *session) {
	priority := s.priorityLocked()
	if priority == s.priority {
		return
	}
	s.priority = priority
	if s.fetchJob != nil {
		p.fetchQueue.SetPriority(s.fetchJob, priority)
	}
}

// startFetch enqueues the session's fetch on the bounded fetch pool.
func (p *Pipeline) startFetch(s *session) {
	p.mu.Lock()
	if s.completed {
		p.mu.Unlock()
		return
	}
	j := p.fetchQueue.Enqueue(s.priority, func() { p.performFetch(s) })
	s.fetchJob = j
	p.mu.Unlock()

	s.token.Token().Register(func() { p.fetchQueue.CancelJob(j) })
}

// performFetch runs on a fetch worker and holds the worker slot until the
// transfer finishes or is cancelled, whichever comes first. The finish
// signal fires exactly once even when the two race.
func (p *Pipeline) performFetch(s *session) {
	if s.token.IsCancelling() {
		return
	}
	p.mu.Lock()
	if s.completed {
		p.mu.Unlock()
		return
	}
	s.metrics.FetchStartedAt = time.Now()
	p.mu.Unlock()

	req := ResourceRequest{URL: s.request.URL, Header: make(http.Header)}
	if p.resumable != nil {
		// Resumability is keyed by the resource itself, not the coalescing
		// key: bytes are bytes regardless of processing.
		if rd := p.resumable.GetAndRemove(s.request.URL); rd != nil {
			p.decodeQ.Async(func() { s.resumed = rd })
			req.Header.Set("Range", fmt.Sprintf("bytes=%d-", len(rd.Data)))
			req.Header.Set("If-Range", rd.Validator)
		}
	}

	done := make(chan struct{})
	var once sync.Once
	finish := func() { once.Do(func() { close(done) }) }

	cancel := p.opts.Loader.Load(req,
		func(data []byte, resp ResponseInfo) {
			p.sessionReceivedData(s, data, resp)
		},
		func(err error) {
			p.sessionFinishedLoading(s, err)
			finish()
		},
	)
	s.token.Token().Register(func() {
		cancel()
		finish()
	})

	<-done
	p.mu.Lock()
	s.metrics.FetchCompletedAt = time.Now()
	s.fetchJob = nil
	p.mu.Unlock()
}

// sessionReceivedData hops a data event onto the decode queue.
func (p *Pipeline) sessionReceivedData(s *session, data []byte, resp ResponseInfo) {
	chunk := append([]byte(nil), data...)
	p.decodeQ.Async(func() { p.appendSessionData(s, chunk, resp) })
}

// appendSessionData runs on the decode queue: seeds resumed bytes on the
// first event, grows the buffer, attempts a progressive decode, and fans
// progress out to subscribers.
func (p *Pipeline) appendSessionData(s *session, chunk []byte, resp ResponseInfo) {
	if s.token.IsCancelling() {
		return
	}

	if !s.gotFirstData {
		s.gotFirstData = true
		if s.resumed != nil {
			if resp.StatusCode == http.StatusPartialContent {
				s.buffer = append(s.buffer, s.resumed.Data...)
				p.mu.Lock()
				s.metrics.BytesFromResume = int64(len(s.resumed.Data))
				s.metrics.WasResumed = true
				p.mu.Unlock()
			}
			// Either way the cached record is spent: the origin refused it,
			// or its bytes now live in the buffer.
			s.resumed = nil
		}
	}

	s.resp = resp
	switch {
	case resp.ETag != "":
		s.validator = resp.ETag
	case resp.LastModified != "":
		s.validator = resp.LastModified
	}
	s.buffer = append(s.buffer, chunk...)
	s.totalBytes = resp.ContentLength
	received := int64(len(s.buffer))

	if p.opts.EnableProgressiveDecoding && s.totalBytes > 0 && received < s.totalBytes {
		if s.decoder == nil {
			s.decoder = p.opts.MakeDecoder(DecodeContext{Request: s.request, Response: resp, Data: s.buffer})
		}
		if s.decoder != nil {
			// A nil image here just means not enough data yet.
			if img, _ := s.decoder.Decode(s.buffer, false); img != nil {
				p.deliverPartial(s, img)
			}
		}
	}

	p.mu.Lock()
	if s.completed {
		p.mu.Unlock()
		return
	}
	s.metrics.BytesReceived += int64(len(chunk))
	subs := s.snapshotLocked()
	total := s.totalBytes
	for _, t := range subs {
		t.completedUnits = received
		t.totalUnits = total
	}
	p.mu.Unlock()

	for _, t := range subs {
		if cb := t.onProgress; cb != nil {
			p.deliverQ.Async(func() { cb(received, total) })
		}
	}
}

// deliverPartial runs a partial image through the (non-final) processor and
// publishes it. At most one partial-processing job is in flight per session;
// while one runs, newer partials are dropped rather than queued.
func (p *Pipeline) deliverPartial(s *session, img image.Image) {
	proc := p.opts.MakeProcessor(ProcessingContext{Request: s.request, IsFinal: false})
	if proc == nil {
		p.publishPartial(s, img)
		return
	}

	p.mu.Lock()
	if s.completed || s.partialInFlight {
		p.mu.Unlock()
		return
	}
	s.partialInFlight = true
	priority := s.priority
	p.mu.Unlock()

	j := p.processQueue.Enqueue(priority, func() {
		out, _ := proc.Process(img)
		p.mu.Lock()
		s.partialInFlight = false
		s.partialJob = nil
		p.mu.Unlock()
		if out != nil && !s.token.IsCancelling() {
			p.publishPartial(s, out)
		}
	})
	p.mu.Lock()
	if s.partialInFlight {
		// The job may already have run and cleared the flag.
		s.partialJob = j
	}
	done := s.completed
	p.mu.Unlock()
	if done {
		p.processQueue.CancelJob(j)
	}
}

// publishPartial fans a partial image out to the current subscriber set,
// unless the session already finished (partials never trail the final).
func (p *Pipeline) publishPartial(s *session, img image.Image) {
	p.mu.Lock()
	if s.completed {
		p.mu.Unlock()
		return
	}
	subs := s.snapshotLocked()
	p.mu.Unlock()

	for _, t := range subs {
		if cb := t.onPartialImage; cb != nil {
			p.deliverQ.Async(func() { cb(img) })
		}
	}
}

// sessionFinishedLoading handles the loader's completion event on the decode
// queue: save resumable data and fail on transport error, otherwise run the
// final decode and continue to processing.
func (p *Pipeline) sessionFinishedLoading(s *session, err error) {
	p.decodeQ.Async(func() {
		if err != nil {
			p.stashResumableData(s)
			p.failSession(s, err)
			return
		}
		if s.token.IsCancelling() {
			// Torn down between the last data event and completion; the
			// teardown path already saved the buffer.
			return
		}

		if s.decoder == nil {
			s.decoder = p.opts.MakeDecoder(DecodeContext{Request: s.request, Response: s.resp, Data: s.buffer})
		}
		var img image.Image
		var derr error
		if s.decoder != nil {
			img, derr = s.decoder.Decode(s.buffer, true)
		}
		s.buffer = nil
		s.resumed = nil

		p.mu.Lock()
		s.metrics.DecodeCompletedAt = time.Now()
		p.mu.Unlock()

		if img == nil {
			if derr != nil {
				p.failSession(s, fmt.Errorf("%w: %v", ErrDecodingFailed, derr))
			} else {
				p.failSession(s, ErrDecodingFailed)
			}
			return
		}
		p.processFinal(s, img)
	})
}

// processFinal runs the final image through the processor pool. Unlike
// partial processing it is never dropped, only cancelled with the session.
func (p *Pipeline) processFinal(s *session, img image.Image) {
	proc := p.opts.MakeProcessor(ProcessingContext{Request: s.request, IsFinal: true})
	if proc == nil {
		p.finishSession(s, img, nil)
		return
	}

	p.mu.Lock()
	if s.completed {
		p.mu.Unlock()
		return
	}
	priority := s.priority
	p.mu.Unlock()

	j := p.processQueue.Enqueue(priority, func() {
		if s.token.IsCancelling() {
			return
		}
		out, perr := proc.Process(img)
		p.mu.Lock()
		s.metrics.ProcessCompletedAt = time.Now()
		p.mu.Unlock()
		if out == nil {
			if perr != nil {
				p.failSession(s, fmt.Errorf("%w: %v", ErrProcessingFailed, perr))
			} else {
				p.failSession(s, ErrProcessingFailed)
			}
			return
		}
		p.finishSession(s, out, nil)
	})
	s.token.Token().Register(func() { p.processQueue.CancelJob(j) })
}

func (p *Pipeline) failSession(s *session, err error) {
	p.finishSession(s, nil, err)
}

// finishSession delivers the terminal outcome exactly once: writes the
// result cache, removes the session from the registry, cancels any moot
// partial-processing job, and fans completion out to the subscriber
// snapshot.
func (p *Pipeline) finishSession(s *session, img image.Image, err error) {
	p.mu.Lock()
	if s.completed {
		p.mu.Unlock()
		return
	}
	s.completed = true
	if p.sessions[s.key] == s {
		delete(p.sessions, s.key)
	}
	partialJob := s.partialJob
	s.partialJob = nil

	now := time.Now()
	subs := s.snapshotLocked()
	type delivery struct {
		cb      func(*Response, error)
		metrics TaskMetrics
	}
	deliveries := make([]delivery, 0, len(subs))
	for _, t := range subs {
		t.metrics.CompletedAt = now
		t.metrics.Session = s.metrics
		if t.onCompletion != nil {
			deliveries = append(deliveries, delivery{cb: t.onCompletion, metrics: t.metrics})
		}
	}
	writeCache := err == nil && img != nil && p.opts.Cache != nil && !s.request.DisableMemoryCacheWrite
	cacheKey := s.request.cacheKey()
	p.mu.Unlock()

	if partialJob != nil {
		p.processQueue.CancelJob(partialJob)
	}
	if writeCache {
		p.opts.Cache.Set(cacheKey, img)
	}

	for _, d := range deliveries {
		d := d
		p.deliverQ.Async(func() {
			if err != nil {
				d.cb(nil, err)
				return
			}
			d.cb(&Response{Image: img, Metrics: d.metrics}, nil)
		})
	}
}

// stashResumableData runs on the decode queue. Best effort: whatever bytes
// accumulated, plus the last validator seen, become a resumable cache entry
// for the next request of the same resource. The buffer is cleared so a
// racing save cannot store the data twice.
func (p *Pipeline) stashResumableData(s *session) {
	if p.resumable == nil {
		return
	}
	if len(s.buffer) == 0 || s.validator == "" {
		return
	}
	p.resumable.Set(s.request.URL, &resumableData{
		Data:      s.buffer,
		Validator: s.validator,
		Total:     s.totalBytes,
	})
	s.buffer = nil
}
