// Package bus is the event stream joining the ingest daemon and the
// compression engine to their observers.
//
// It wraps a NATS connection and, by default, embeds the server in the
// daemon process so no external broker is needed. Events are JSON
// payloads on uc.* subjects; the monitor subscribes with a wildcard.
package bus
