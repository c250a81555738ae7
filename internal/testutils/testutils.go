// Package testutils provides shared test infrastructure: deterministic test
// images and an HTTP server that speaks the conditional range protocol the
// pipeline uses to resume interrupted downloads.
package testutils

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync/atomic"
	"testing"
)

// MakeImage generates a deterministic test image.
func MakeImage(width, height int) image.Image {
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			img.Set(x, y, color.RGBA{
				R: uint8(x * 7 % 256),
				G: uint8(y * 13 % 256),
				B: uint8((x + y) % 256),
				A: 255,
			})
		}
	}
	return img
}

// EncodePNG generates a deterministic PNG of the given dimensions.
func EncodePNG(t *testing.T, width, height int) []byte {
	t.Helper()
	var buf bytes.Buffer
	if err := png.Encode(&buf, MakeImage(width, height)); err != nil {
		t.Fatalf("encode png: %v", err)
	}
	return buf.Bytes()
}

// ImageServer serves one resource with ETag validation and open-ended range
// support, the way the pipeline's HTTP loader expects an origin to behave.
type ImageServer struct {
	*httptest.Server

	// FailAfter, when positive, aborts the transfer after that many bytes,
	// simulating an interrupted download. Applies to every request until
	// cleared.
	FailAfter atomic.Int64

	requests atomic.Int64
	data     []byte
	etag     string
}

// NewImageServer starts a server for data with the given ETag value
// (unquoted). Close it with Server.Close.
func NewImageServer(t *testing.T, data []byte, etag string) *ImageServer {
	t.Helper()
	s := &ImageServer{data: data, etag: etag}
	s.Server = httptest.NewServer(http.HandlerFunc(s.handle))
	return s
}

// Requests returns how many GET requests the server has seen.
func (s *ImageServer) Requests() int64 {
	return s.requests.Load()
}

func (s *ImageServer) handle(w http.ResponseWriter, r *http.Request) {
	s.requests.Add(1)

	start := int64(0)
	partial := false
	if ifRange := r.Header.Get("If-Range"); ifRange != "" && ifRange == s.etag {
		if o, ok := parseRangeStart(r.Header.Get("Range")); ok && o < int64(len(s.data)) {
			start = o
			partial = true
		}
	}

	body := s.data[start:]
	w.Header().Set("ETag", fmt.Sprintf("%q", s.etag))
	w.Header().Set("Accept-Ranges", "bytes")
	w.Header().Set("Content-Length", strconv.Itoa(len(body)))
	if partial {
		w.Header().Set("Content-Range", fmt.Sprintf("bytes %d-%d/%d", start, len(s.data)-1, len(s.data)))
		w.WriteHeader(http.StatusPartialContent)
	}

	if limit := s.FailAfter.Load(); limit > 0 && int64(len(body)) > limit {
		w.Write(body[:limit])
		if f, ok := w.(http.Flusher); ok {
			f.Flush()
		}
		panic(http.ErrAbortHandler)
	}
	w.Write(body)
}

func parseRangeStart(header string) (int64, bool) {
	header = strings.TrimPrefix(header, "bytes=")
	header = strings.TrimSuffix(header, "-")
	offset, err := strconv.ParseInt(header, 10, 64)
	if err != nil || offset < 0 {
		return 0, false
	}
	return offset, true
}
