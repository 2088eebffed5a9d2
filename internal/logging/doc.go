// Package logging wraps zap for every ultracontext surface that talks to
// the outside world. The engine packages stay log-free; the daemon, API,
// ingest watcher, and CLI log through a *Logger built here, with optional
// OTLP export through the otelzap bridge. The context-aware methods pull
// trace, context, session, and request correlation out of a
// context.Context so handlers never thread ids by hand.
package logging
