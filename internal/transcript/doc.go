// Package transcript defines the shared data model for conversation
// compression: the message shape, provenance records linking compressed
// output back to verbatim sources, the reserved marker grammar, token
// estimation, and input validation.
//
// Everything here is pure data with no I/O. The compression orchestrator
// writes provenance and markers; the expander reads them; nothing else in
// the system may produce either.
package transcript
