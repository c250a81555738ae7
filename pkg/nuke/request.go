package nuke

import (
	"image"
	"net/http"
)

// Priority orders in-flight work. A session always runs at the highest
// priority among its current subscribers.
type Priority int

const (
	PriorityVeryLow Priority = iota
	PriorityLow
	PriorityNormal
	PriorityHigh
	PriorityVeryHigh
)

// Request describes one logical image load. It is immutable after submission
// except for the priority, which Task.SetPriority updates in place.
type Request struct {
	// URL locates the resource. Interpreted by the configured DataLoader.
	URL string

	// Priority is the initial scheduling priority. Zero value is
	// PriorityVeryLow; use PriorityNormal for typical loads.
	Priority Priority

	// Processor optionally transforms the decoded image. Requests for the
	// same URL with different processors do not share work.
	Processor Processor

	// DisableMemoryCacheRead skips the result-cache probe on submission.
	DisableMemoryCacheRead bool

	// DisableMemoryCacheWrite skips storing the final image.
	DisableMemoryCacheWrite bool
}

// cacheKey is the normalized identity of a request: resource plus equivalent
// processing. It doubles as the coalescing key when deduplication is on.
func (r Request) cacheKey() string {
	if r.Processor != nil {
		return r.URL + "|" + r.Processor.ID()
	}
	return r.URL
}

// ResourceRequest is what the pipeline hands the DataLoader. Header carries
// conditional/range headers when a download is being resumed.
type ResourceRequest struct {
	URL    string
	Header http.Header
}

// ResponseInfo is the metadata a DataLoader reports alongside data events.
type ResponseInfo struct {
	// StatusCode follows HTTP semantics. 206 confirms that a requested
	// resumption was honored by the origin.
	StatusCode int

	// ContentLength is the declared total length of the full resource,
	// or 0 if unknown. For resumed transfers this is still the full
	// length, not the remaining length.
	ContentLength int64

	ETag         string
	LastModified string
}

// DataLoader fetches raw resource bytes. Implementations stream data through
// onData as it arrives and call onDone exactly once with the transport error,
// if any. The returned function cancels the transfer; after cancellation
// onDone must still fire (with any error). Chunks passed to onData are copied
// by the pipeline and may be reused by the loader.
type DataLoader interface {
	Load(req ResourceRequest, onData func(data []byte, resp ResponseInfo), onDone func(err error)) (cancel func())
}

// DecodeContext carries everything available when a decoder is selected:
// the originating request, the response metadata, and the first bytes.
type DecodeContext struct {
	Request  Request
	Response ResponseInfo
	Data     []byte
}

// Decoder turns accumulated bytes into an image. For non-final attempts a
// (nil, nil) return means "not enough data yet" and is not an error. A nil
// image on the final attempt is a decoding failure.
type Decoder interface {
	Decode(data []byte, final bool) (image.Image, error)
}

// ProcessingContext carries everything available when a processor is
// selected. IsFinal is false for progressive (partial) images.
type ProcessingContext struct {
	Request Request
	IsFinal bool
}

// Processor transforms a decoded image. ID must be stable and unique per
// transformation so that equivalent requests can share work and cache slots.
// A nil result is a processing failure on final images and drops the partial
// otherwise.
type Processor interface {
	ID() string
	Process(img image.Image) (image.Image, error)
}

// Response is a successful load delivered to the completion callback.
type Response struct {
	Image   image.Image
	Metrics TaskMetrics
}

// Handlers are the optional callback slots for one load. All callbacks are
// invoked on the pipeline's delivery context, never concurrently with each
// other.
type Handlers struct {
	// OnProgress receives byte counts as data arrives. total is 0 when the
	// origin did not declare a length.
	OnProgress func(completed, total int64)

	// OnPartialImage receives progressively decoded images, if progressive
	// decoding is enabled. The final image is never delivered here.
	OnPartialImage func(img image.Image)

	// OnCompletion receives the terminal outcome: exactly one of a response
	// or an error. Cancelled tasks receive neither.
	OnCompletion func(resp *Response, err error)
}
