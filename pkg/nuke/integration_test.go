package nuke_test

import (
	"bytes"
	"context"
	"image/png"
	"testing"
	"time"

	"github.com/1930s/Nuke/internal/testutils"
	"github.com/1930s/Nuke/pkg/httpload"
	"github.com/1930s/Nuke/pkg/nuke"
	"github.com/1930s/Nuke/pkg/transform"
)

func testLoader() *httpload.Loader {
	opts := httpload.DefaultOptions()
	opts.RetryBackoff = 10 * time.Millisecond
	opts.RetryMaxBackoff = 50 * time.Millisecond
	return httpload.New(opts)
}

func TestPipelineOverHTTP(t *testing.T) {
	data := testutils.EncodePNG(t, 64, 48)
	srv := testutils.NewImageServer(t, data, "etag-1")
	defer srv.Close()

	p := nuke.New(nuke.Options{
		Loader: testLoader(),
		Cache:  nuke.NewMemoryCache(8 << 20),
	})
	defer p.Close()

	ctx := context.Background()
	resp, err := p.Fetch(ctx, nuke.Request{URL: srv.URL, Priority: nuke.PriorityNormal})
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if b := resp.Image.Bounds(); b.Dx() != 64 || b.Dy() != 48 {
		t.Fatalf("bounds = %v, want 64x48", b)
	}
	if resp.Metrics.WasCacheHit {
		t.Fatal("first fetch reported a cache hit")
	}

	// The second fetch of the same request is served from memory.
	resp2, err := p.Fetch(ctx, nuke.Request{URL: srv.URL, Priority: nuke.PriorityNormal})
	if err != nil {
		t.Fatalf("second fetch: %v", err)
	}
	if !resp2.Metrics.WasCacheHit {
		t.Fatal("second fetch missed the cache")
	}
	if got := srv.Requests(); got != 1 {
		t.Fatalf("server saw %d requests, want 1", got)
	}
}

func TestPipelineResumesOverHTTP(t *testing.T) {
	data := testutils.EncodePNG(t, 64, 64)
	srv := testutils.NewImageServer(t, data, "etag-1")
	defer srv.Close()
	srv.FailAfter.Store(int64(len(data) / 2))

	p := nuke.New(nuke.Options{Loader: testLoader()})
	defer p.Close()

	ctx := context.Background()
	if _, err := p.Fetch(ctx, nuke.Request{URL: srv.URL, Priority: nuke.PriorityNormal}); err == nil {
		t.Fatal("expected the interrupted fetch to fail")
	}

	srv.FailAfter.Store(0)
	resp, err := p.Fetch(ctx, nuke.Request{URL: srv.URL, Priority: nuke.PriorityNormal})
	if err != nil {
		t.Fatalf("resumed fetch: %v", err)
	}
	if !resp.Metrics.Session.WasResumed {
		t.Fatal("WasResumed not set; download restarted from scratch")
	}
	if resp.Metrics.Session.BytesFromResume == 0 {
		t.Fatal("no bytes carried over from the interrupted attempt")
	}
	if b := resp.Image.Bounds(); b.Dx() != 64 || b.Dy() != 64 {
		t.Fatalf("bounds = %v, want 64x64", b)
	}

	// Verify the reassembled bytes round-trip: the decoded image matches the
	// original payload pixel for pixel.
	want, err := png.Decode(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("decode reference: %v", err)
	}
	wb, gb := want.Bounds(), resp.Image.Bounds()
	if wb != gb {
		t.Fatalf("bounds mismatch: %v vs %v", gb, wb)
	}
	for y := wb.Min.Y; y < wb.Max.Y; y += 7 {
		for x := wb.Min.X; x < wb.Max.X; x += 7 {
			if want.At(x, y) != resp.Image.At(x, y) {
				t.Fatalf("pixel (%d,%d) differs after resume", x, y)
			}
		}
	}
}

func TestPipelineProcessesOverHTTP(t *testing.T) {
	data := testutils.EncodePNG(t, 100, 50)
	srv := testutils.NewImageServer(t, data, "etag-1")
	defer srv.Close()

	p := nuke.New(nuke.Options{Loader: testLoader()})
	defer p.Close()

	resp, err := p.Fetch(context.Background(), nuke.Request{
		URL:       srv.URL,
		Priority:  nuke.PriorityNormal,
		Processor: transform.Fit{Width: 50, Height: 50},
	})
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if b := resp.Image.Bounds(); b.Dx() != 50 || b.Dy() != 25 {
		t.Fatalf("bounds = %v, want 50x25 after fit", b)
	}
}
