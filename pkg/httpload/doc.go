// Package httpload provides the HTTP data loader for the pipeline.
//
// The loader streams response bodies chunk by chunk, retries transient
// failures before the first byte arrives, and supports conditional range
// requests (Range + If-Range) so interrupted transfers can continue from
// previously downloaded bytes.
package httpload
