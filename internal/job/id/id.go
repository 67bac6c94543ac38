// Package id provides unique identifier generation for jobs, sessions and clips.
package id

import (
	"strings"

	"github.com/google/uuid"
)

// Prefixes for the identifiers handed out by the API.
const (
	PrefixJob     = "job"
	PrefixSession = "ses"
	PrefixClip    = "clip"
)

// Generate creates a new unique job ID.
// Format: job-<uuid>
// Example: job-0f8fad5b-d9cb-469f-a165-70867728950e
func Generate() string {
	return New(PrefixJob)
}

// New creates a new unique ID with the given prefix.
func New(prefix string) string {
	return prefix + "-" + uuid.NewString()
}

// Valid reports whether s is an ID produced by New with prefix.
func Valid(prefix, s string) bool {
	rest, ok := strings.CutPrefix(s, prefix+"-")
	if !ok || len(rest) != 36 {
		return false
	}
	_, err := uuid.Parse(rest)
	return err == nil
}

