// Package codec provides the default image decoder for the pipeline.
//
// It wraps the standard library image registry extended with the
// golang.org/x/image formats (BMP, TIFF, WebP). Partial-buffer decode
// attempts that fail are reported as "not enough data yet" instead of
// errors, so the pipeline can retry as more bytes arrive.
package codec
