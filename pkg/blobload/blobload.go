package blobload

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"gocloud.dev/blob"

	"github.com/1930s/Nuke/pkg/nuke"
)

// Loader serves images from a gocloud.dev blob bucket (mem://, file://,
// s3://, gs://, ...). Request URLs are object keys within the bucket.
//
// The loader understands the same Range/If-Range convention as the HTTP
// loader: when the stored object still matches the request's validator, it
// serves from the requested offset and reports status 206, otherwise it
// serves the full object with status 200.
type Loader struct {
	bucket *blob.Bucket
}

// New creates a loader bound to bucket. The caller keeps ownership of the
// bucket and closes it after the pipeline shuts down.
func New(bucket *blob.Bucket) *Loader {
	return &Loader{bucket: bucket}
}

// Load implements nuke.DataLoader.
func (l *Loader) Load(req nuke.ResourceRequest, onData func([]byte, nuke.ResponseInfo), onDone func(error)) func() {
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		onDone(l.run(ctx, req, onData))
	}()
	return cancel
}

func (l *Loader) run(ctx context.Context, req nuke.ResourceRequest, onData func([]byte, nuke.ResponseInfo)) error {
	attrs, err := l.bucket.Attributes(ctx, req.URL)
	if err != nil {
		return fmt.Errorf("blob attributes: %w", err)
	}

	info := nuke.ResponseInfo{
		StatusCode:    http.StatusOK,
		ContentLength: attrs.Size,
		ETag:          cleanETag(attrs.ETag),
		LastModified:  attrs.ModTime.UTC().Format(http.TimeFormat),
	}

	// If-Range carries either an ETag or an HTTP date; not every bucket
	// backend exposes ETags, so both forms are honored.
	var offset int64
	if ifRange := req.Header.Get("If-Range"); ifRange != "" && (ifRange == info.ETag || ifRange == info.LastModified) {
		if o, ok := parseRangeOffset(req.Header.Get("Range")); ok && o < attrs.Size {
			offset = o
			info.StatusCode = http.StatusPartialContent
		}
	}

	r, err := l.bucket.NewRangeReader(ctx, req.URL, offset, -1, nil)
	if err != nil {
		return fmt.Errorf("blob open: %w", err)
	}
	defer r.Close()

	buf := make([]byte, 32*1024)
	for {
		n, err := r.Read(buf)
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
			return fmt.Errorf("blob read: %w", err)
		}
	}
}

// parseRangeOffset parses an open-ended range header: "bytes=N-".
func parseRangeOffset(header string) (int64, bool) {
	header = strings.TrimPrefix(header, "bytes=")
	header = strings.TrimSuffix(header, "-")
	offset, err := strconv.ParseInt(header, 10, 64)
	if err != nil || offset < 0 {
		return 0, false
	}
	return offset, true
}

func cleanETag(etag string) string {
	etag = strings.TrimPrefix(etag, "W/")
	return strings.Trim(etag, `"`)
}
