// Package blobload provides a data loader backed by a gocloud.dev blob
// bucket, letting the pipeline load images from object stores (or from
// memory in tests) through the same coalescing machinery as HTTP loads.
package blobload
