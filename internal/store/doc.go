// Package store keeps versioned conversation contexts in memory.
//
// Every mutation appends a new immutable version of the transcript, so
// compression is reversible as long as the version and its verbatim
// side-table are retained. Retention is bounded per context
// (MaxVersions) and across contexts (MaxContexts, oldest evicted).
// It is safe for concurrent use.
package store
