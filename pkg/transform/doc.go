// Package transform provides ready-made image processors for the pipeline:
// resize, fit, gaussian blur, grayscale, and duotone. Every processor has a
// stable ID so that requests with equivalent processing can share work and
// cache entries.
package transform
