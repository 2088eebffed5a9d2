// Package expand reverses compression by splicing stored originals back
// into a transcript. Resolution runs against a read-only Store; a missing
// entry is reported, never fatal, and the compressed placeholder stays in
// the output so the transcript remains usable. The package also searches
// stored originals by literal or slash-wrapped regex pattern.
package expand
