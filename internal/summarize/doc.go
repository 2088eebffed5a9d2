// Package summarize builds LLM summarization prompts and the escalation
// wrapper around a caller-supplied model call. It is pure string
// templating: the package never talks to a model itself and returns the
// callback's result unmodified. Acceptance of a result (non-empty and
// strictly shorter than the input) is shared with the orchestrator through
// Acceptable.
package summarize
