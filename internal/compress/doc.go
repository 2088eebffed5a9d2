// Package compress is the orchestrator: it applies preservation rules and
// recency protection, removes exact duplicates, merges consecutive
// same-role prose into summaries, converges transcripts onto a token
// budget, and emits the verbatim side-table that makes every rewrite
// reversible.
//
// Compress is the synchronous entry; CompressAsync honors an optional
// summarizer callback and is the only place the package suspends. Both
// share one implementation, so their outputs differ only where an accepted
// callback result replaced the deterministic reduction. The Service
// wrapper adds tracing and metrics around the same calls for daemon use.
package compress
