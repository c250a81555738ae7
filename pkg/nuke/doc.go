// Package nuke is a coalescing image-loading pipeline.
//
// A Pipeline turns any number of concurrent requests for the same resource
// and processing into at most one fetch/decode/process chain, fanning the
// result out to every caller. It propagates priority (a session runs at the
// highest priority among its subscribers) and cancellation (underlying work
// stops only when the last subscriber cancels), optionally rate-limits how
// fast new fetches start, resumes interrupted downloads from cached partial
// bytes, and can deliver progressively decoded images before the final one.
//
// The actual transport, decoding, and processing are pluggable capabilities:
// see DataLoader, Decoder, and Processor. Ready-made implementations live in
// the sibling packages httpload, blobload, codec, and transform.
//
// Basic usage:
//
//	pipeline := nuke.New(nuke.Options{
//		Loader: httpload.New(httpload.DefaultOptions()),
//		Cache:  nuke.NewMemoryCache(64 << 20),
//	})
//	defer pipeline.Close()
//
//	resp, err := pipeline.Fetch(ctx, nuke.Request{
//		URL:      "https://example.com/image.jpg",
//		Priority: nuke.PriorityNormal,
//	})
package nuke
