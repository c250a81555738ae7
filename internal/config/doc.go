// Package config handles configuration for the nuke CLI.
//
// Configuration can come from a YAML file, environment variables with the
// NUKE_ prefix, or command-line flags, merged in that order (later sources
// win).
package config
