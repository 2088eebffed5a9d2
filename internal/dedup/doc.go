// Package dedup finds exact-duplicate messages across a transcript. Only
// byte-identical content counts; the analyzer is a pure function and never
// rewrites anything itself.
package dedup
