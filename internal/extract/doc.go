// Package extract condenses prose deterministically and pulls identifiers
// out of text. It is the fallback summarizer the orchestrator uses when no
// LLM callback is supplied or the callback's result is rejected.
//
// Condense strips one leading filler clause, keeps the first substantive
// sentence, any emphasis-bearing sentences, and the final sentence, and
// joins them under a hard character ceiling. Entities reports up to a
// caller-set number of identifiers (camelCase, snake_case, PascalCase,
// vowel-less abbreviations, numbers with context, proper nouns) in
// first-appearance order.
//
// The package operates on plain strings and has no dependencies on the
// rest of the engine.
package extract
