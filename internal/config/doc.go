// Package config loads credvault configuration from YAML files with
// environment variable expansion. See Default for the zero-config values.
package config
