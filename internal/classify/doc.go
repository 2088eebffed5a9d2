// Package classify scores text into preservation tiers for transcript
// compression.
//
// A fixed battery of independent detectors runs over the text; every tag
// that fires lands in the result's reasons. Any hit forces tier T0
// (verbatim), no hits and under twenty words is T2 (short factual), and
// everything else is T3 (compressible prose). Detectors are isolated pure
// predicates: none may consult another's outcome, which keeps
// false-positive tuning local to one function.
//
// All patterns compile once at package load. Classifying a paragraph costs
// low single-digit milliseconds.
package classify
