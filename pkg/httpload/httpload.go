package httpload

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math/rand/v2"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/1930s/Nuke/pkg/nuke"
)

// Common errors.
var (
	ErrNotFound     = errors.New("httpload: resource not found")
	ErrForbidden    = errors.New("httpload: access forbidden")
	ErrUnauthorized = errors.New("httpload: unauthorized")
	ErrServerError  = errors.New("httpload: server error")
)

// Options configures the HTTP loader.
type Options struct {
	// MaxIdleConnsPerHost sets the maximum idle connections per host.
	// Default: 100
	MaxIdleConnsPerHost int

	// Timeout for an entire transfer.
	// Default: 60s
	Timeout time.Duration

	// RetryAttempts is the maximum number of retries before the first byte
	// is received. Once data starts streaming, failures are surfaced to the
	// pipeline instead (partial bytes stay reusable as resumable data).
	// Default: 3
	RetryAttempts int

	// RetryBackoff is the initial backoff duration.
	// Default: 500ms
	RetryBackoff time.Duration

	// RetryMaxBackoff is the maximum backoff duration.
	// Default: 10s
	RetryMaxBackoff time.Duration
}

// DefaultOptions returns options with sensible defaults.
func DefaultOptions() Options {
	return Options{
		MaxIdleConnsPerHost: 100,
		Timeout:             60 * time.Second,
		RetryAttempts:       3,
		RetryBackoff:        500 * time.Millisecond,
		RetryMaxBackoff:     10 * time.Second,
	}
}

// Loader is a streaming HTTP implementation of nuke.DataLoader. It honors
// Range/If-Range headers, so interrupted downloads can be resumed when the
// origin still serves the same entity.
type Loader struct {
	client *http.Client
	opts   Options
}

// New creates a loader with the given options.
func New(opts Options) *Loader {
	if opts.MaxIdleConnsPerHost == 0 {
		opts = DefaultOptions()
	}
	transport := &http.Transport{
		MaxIdleConnsPerHost: opts.MaxIdleConnsPerHost,
		MaxIdleConns:        opts.MaxIdleConnsPerHost * 2,
		IdleConnTimeout:     90 * time.Second,
		DisableCompression:  true, // raw bytes, content length must mean bytes on the wire
	}
	return &Loader{
		client: &http.Client{Transport: transport},
		opts:   opts,
	}
}

// Load starts the transfer on its own goroutine and returns a cancel
// function. onDone fires exactly once, after cancellation too.
func (l *Loader) Load(req nuke.ResourceRequest, onData func([]byte, nuke.ResponseInfo), onDone func(error)) func() {
	var ctx context.Context
	var cancel context.CancelFunc
	if l.opts.Timeout > 0 {
		ctx, cancel = context.WithTimeout(context.Background(), l.opts.Timeout)
	} else {
		ctx, cancel = context.WithCancel(context.Background())
	}
	go func() {
		onDone(l.run(ctx, req, onData))
	}()
	return cancel
}

func (l *Loader) run(ctx context.Context, req nuke.ResourceRequest, onData func([]byte, nuke.ResponseInfo)) error {
	resp, err := l.get(ctx, req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	info, err := responseInfo(resp)
	if err != nil {
		return err
	}

	buf := make([]byte, 32*1024)
	for {
		n, err := resp.Body.Read(buf)
		if n > 0 {
			onData(buf[:n], info)
		}
		if err == io.EOF {
			return nil
		}
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("read body: %w", err)
		}
	}
}

// get issues the request, retrying transport and 5xx failures with jittered
// exponential backoff until the first successful response.
func (l *Loader) get(ctx context.Context, req nuke.ResourceRequest) (*http.Response, error) {
	var lastErr error
	for attempt := 0; attempt <= l.opts.RetryAttempts; attempt++ {
		if attempt > 0 {
			if err := l.backoff(ctx, attempt); err != nil {
				return nil, err
			}
		}

		httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, req.URL, nil)
		if err != nil {
			return nil, fmt.Errorf("create request: %w", err)
		}
		for k, vs := range req.Header {
			for _, v := range vs {
				httpReq.Header.Add(k, v)
			}
		}

		resp, err := l.client.Do(httpReq)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			lastErr = err
			continue
		}

		if resp.StatusCode >= 500 {
			resp.Body.Close()
			lastErr = fmt.Errorf("%w: %d %s", ErrServerError, resp.StatusCode, resp.Status)
			continue
		}
		if err := checkStatusCode(resp.StatusCode); err != nil {
			resp.Body.Close()
			return nil, err
		}
		return resp, nil
	}
	return nil, fmt.Errorf("request failed after %d attempts: %w", l.opts.RetryAttempts+1, lastErr)
}

// backoff waits for an exponentially increasing duration with jitter.
func (l *Loader) backoff(ctx context.Context, attempt int) error {
	backoff := l.opts.RetryBackoff * time.Duration(1<<uint(attempt-1))
	if backoff > l.opts.RetryMaxBackoff {
		backoff = l.opts.RetryMaxBackoff
	}

	// Add jitter: 0.5 to 1.5 of backoff
	jitter := time.Duration(float64(backoff) * (0.5 + rand.Float64()))

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(jitter):
		return nil
	}
}

// responseInfo extracts the metadata the pipeline needs. ContentLength is
// always the full entity length: for a 206 it comes from Content-Range.
func responseInfo(resp *http.Response) (nuke.ResponseInfo, error) {
	info := nuke.ResponseInfo{
		StatusCode:   resp.StatusCode,
		ETag:         cleanETag(resp.Header.Get("ETag")),
		LastModified: resp.Header.Get("Last-Modified"),
	}
	if resp.StatusCode == http.StatusPartialContent {
		_, _, total, err := ParseContentRange(resp.Header.Get("Content-Range"))
		if err != nil {
			return info, fmt.Errorf("partial response: %w", err)
		}
		if total > 0 {
			info.ContentLength = total
		}
		return info, nil
	}
	if resp.ContentLength > 0 {
		info.ContentLength = resp.ContentLength
	}
	return info, nil
}

// checkStatusCode returns an appropriate error for non-success status codes.
func checkStatusCode(code int) error {
	switch {
	case code >= 200 && code < 300:
		return nil
	case code == http.StatusNotFound:
		return ErrNotFound
	case code == http.StatusForbidden:
		return ErrForbidden
	case code == http.StatusUnauthorized:
		return ErrUnauthorized
	default:
		return fmt.Errorf("unexpected status code: %d", code)
	}
}

// cleanETag removes quotes from an ETag value.
func cleanETag(etag string) string {
	etag = strings.TrimPrefix(etag, "W/")
	etag = strings.Trim(etag, `"`)
	return etag
}

// ParseContentRange parses a Content-Range header value.
// Returns start, end, total bytes. Total may be -1 if unknown.
func ParseContentRange(header string) (start, end, total int64, err error) {
	// Format: bytes start-end/total or bytes start-end/*
	header = strings.TrimPrefix(header, "bytes ")
	parts := strings.Split(header, "/")
	if len(parts) != 2 {
		return 0, 0, 0, fmt.Errorf("invalid Content-Range format: %s", header)
	}

	rangeParts := strings.Split(parts[0], "-")
	if len(rangeParts) != 2 {
		return 0, 0, 0, fmt.Errorf("invalid Content-Range format: %s", header)
	}

	start, err = strconv.ParseInt(rangeParts[0], 10, 64)
	if err != nil {
		return 0, 0, 0, fmt.Errorf("invalid start byte: %w", err)
	}

	end, err = strconv.ParseInt(rangeParts[1], 10, 64)
	if err != nil {
		return 0, 0, 0, fmt.Errorf("invalid end byte: %w", err)
	}

	if parts[1] == "*" {
		total = -1
	} else {
		total, err = strconv.ParseInt(parts[1], 10, 64)
		if err != nil {
			return 0, 0, 0, fmt.Errorf("invalid total bytes: %w", err)
		}
	}

	return start, end, total, nil
}
