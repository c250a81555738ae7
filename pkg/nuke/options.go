package nuke

import "github.com/1930s/Nuke/pkg/codec"

// Defaults applied by New for zero-valued options.
const (
	DefaultFetchWorkers   = 6
	DefaultProcessWorkers = 2

	DefaultResumableCacheBytes   = 32 << 20
	DefaultResumableCacheEntries = 32

	// Rate limiter defaults, used when EnableRateLimiting is set.
	DefaultRateLimitPerSecond = 80
	DefaultRateLimitBurst     = 25
)

// Options configures a Pipeline. Loader is the only required field.
type Options struct {
	// Loader fetches raw resource bytes. Required.
	Loader DataLoader

	// Cache stores final images keyed by normalized request. Optional; with
	// no cache every request goes through the full pipeline.
	Cache ImageCache

	// MakeDecoder selects a decoder for a session once its first bytes
	// arrive. The decoder is retained for the session's lifetime.
	// Default: a codec.Decoder for the standard raster formats.
	MakeDecoder func(ctx DecodeContext) Decoder

	// MakeProcessor selects a processor per processing attempt.
	// Default: the request's own Processor, for partial and final images
	// alike.
	MakeProcessor func(ctx ProcessingContext) Processor

	// DisableDeduplication gives every request its own session even when an
	// equivalent request is already in flight.
	DisableDeduplication bool

	// EnableRateLimiting bounds the rate at which new fetches start,
	// absorbing rapid start/cancel churn. Off by default: work starts
	// immediately.
	EnableRateLimiting bool

	// EnableProgressiveDecoding attempts partial decodes as data arrives
	// and delivers the results via OnPartialImage.
	EnableProgressiveDecoding bool

	// DisableResumableData stops the pipeline from saving interrupted
	// downloads and resuming them on the next request for the same resource.
	DisableResumableData bool

	// FetchWorkers caps concurrent fetches. Default 6.
	FetchWorkers int

	// ProcessWorkers caps concurrent processing jobs. Default 2.
	ProcessWorkers int

	// ResumableCacheBytes and ResumableCacheEntries bound the resumable
	// byte cache. Defaults 32MB and 32 entries.
	ResumableCacheBytes   int64
	ResumableCacheEntries int
}

func (o *Options) applyDefaults() {
	if o.FetchWorkers <= 0 {
		o.FetchWorkers = DefaultFetchWorkers
	}
	if o.ProcessWorkers <= 0 {
		o.ProcessWorkers = DefaultProcessWorkers
	}
	if o.ResumableCacheBytes <= 0 {
		o.ResumableCacheBytes = DefaultResumableCacheBytes
	}
	if o.ResumableCacheEntries <= 0 {
		o.ResumableCacheEntries = DefaultResumableCacheEntries
	}
	if o.MakeDecoder == nil {
		o.MakeDecoder = func(DecodeContext) Decoder { return codec.New() }
	}
	if o.MakeProcessor == nil {
		o.MakeProcessor = func(ctx ProcessingContext) Processor { return ctx.Request.Processor }
	}
}
