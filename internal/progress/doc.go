// Package progress renders aggregate download progress for the nuke CLI.
//
// A Reporter tracks byte counts across any number of concurrent downloads
// and periodically rewrites a single status line with the combined
// percentage, throughput, and completion counts.
package progress
