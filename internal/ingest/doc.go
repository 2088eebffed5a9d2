// Package ingest tails session logs and feeds them into the context store.
//
// The daemon watches configured directories for JSONL session logs,
// re-parses a file once writes settle, and appends the new tail of each
// session to its context. Parsing is tolerant: malformed lines are counted
// and skipped so a single bad record cannot stall a session.
package ingest
