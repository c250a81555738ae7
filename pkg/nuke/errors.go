package nuke

import "errors"

// Pipeline failure taxonomy. Transport errors from the DataLoader are
// surfaced verbatim; cancellation is not an error, a cancelled task simply
// receives no callback.
var (
	// ErrDecodingFailed means the decoder produced no image on the final
	// attempt. This also covers a completed transfer that delivered zero
	// bytes, a known ambiguity kept from the original design.
	ErrDecodingFailed = errors.New("nuke: decoding failed")

	// ErrProcessingFailed means the processor produced no image.
	ErrProcessingFailed = errors.New("nuke: processing failed")
)
