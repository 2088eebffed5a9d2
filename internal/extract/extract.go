package extract

import (
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"
)

// DefaultMaxSummaryChars is the hard ceiling for a condensed body. The
// orchestrator's no-negative-savings guard still applies on top of it.
const DefaultMaxSummaryChars = 240

// substantiveMinWords is the word count below which a sentence is not
// considered substantive enough to lead a summary.
const substantiveMinWords = 4

var (
	// One leading acknowledgement clause, stripped before condensation.
	fillerClauseRegex = regexp.MustCompile(`(?i)^(?:sure|okay|ok|alright|got it|sounds good|thanks(?: a lot)?|thank you|great|certainly|absolutely|of course|no problem|yes|yep|understood|will do)\s*[,.!:;]+\s*`)

	contrastRegex   = regexp.MustCompile(`(?i)\b(?:but|however|although|though|instead|unfortunately|actually|failed|cannot|must not|note that|important)\b`)
	statusWordRegex = regexp.MustCompile(`\b(?:PASS(?:ED)?|FAIL(?:ED|URE)?|ERROR|WARN(?:ING)?|FATAL|PANIC)\b`)
	fileRefRegex    = regexp.MustCompile(`[\w./-]+\.\w{1,5}:\d+`)
)

// Condense reduces prose to at most maxChars runes: one leading filler
// clause is stripped, then the first substantive sentence, every
// emphasis-bearing sentence, and the final sentence are joined in original
// order until the ceiling is reached. Text without sentence punctuation is
// hard-truncated at the same ceiling. maxChars <= 0 selects
// DefaultMaxSummaryChars.
func Condense(text string, maxChars int) string {
	if maxChars <= 0 {
		maxChars = DefaultMaxSummaryChars
	}
	trimmed := StripFiller(strings.TrimSpace(text))
	if trimmed == "" {
		return ""
	}
	if !strings.ContainsAny(trimmed, ".!?") {
		return truncateRunes(trimmed, maxChars)
	}

	sentences := Sentences(trimmed)
	if len(sentences) == 0 {
		return truncateRunes(trimmed, maxChars)
	}

	selected := selectIndices(sentences)
	return joinUnderCeiling(sentences, selected, maxChars)
}

// StripFiller removes a single leading acknowledgement clause ("Sure,",
// "Okay.", "Got it!") when present. At most one clause is removed.
func StripFiller(text string) string {
	return fillerClauseRegex.ReplaceAllString(text, "")
}

// Sentences splits text on terminal punctuation followed by whitespace.
// Short fragments merge into the following sentence; a trailing
// unpunctuated remainder is returned as the last entry.
func Sentences(text string) []string {
	var out []string
	var cur strings.Builder
	runes := []rune(text)
	for i, r := range runes {
		cur.WriteRune(r)
		if r != '.' && r != '!' && r != '?' {
			continue
		}
		if i+1 < len(runes) && !unicode.IsSpace(runes[i+1]) {
			continue
		}
		s := strings.TrimSpace(cur.String())
		if len(s) > 10 {
			out = append(out, s)
			cur.Reset()
		}
	}
	if rest := strings.TrimSpace(cur.String()); rest != "" {
		out = append(out, rest)
	}
	return out
}

// EmphasisScore counts emphasis markers in a sentence: contrastive
// conjunctions, status tokens, and file:line references.
func EmphasisScore(sentence string) int {
	score := len(contrastRegex.FindAllString(sentence, -1))
	score += len(statusWordRegex.FindAllString(sentence, -1))
	score += len(fileRefRegex.FindAllString(sentence, -1))
	return score
}

// selectIndices picks the first substantive sentence, every sentence with
// an emphasis score above zero, and the final sentence. Returned indices
// are ascending and unique.
func selectIndices(sentences []string) []int {
	first := 0
	for i, s := range sentences {
		if len(strings.Fields(s)) >= substantiveMinWords {
			first = i
			break
		}
	}

	include := map[int]bool{first: true, len(sentences) - 1: true}
	for i, s := range sentences {
		if EmphasisScore(s) > 0 {
			include[i] = true
		}
	}

	out := make([]int, 0, len(include))
	for i := range sentences {
		if include[i] {
			out = append(out, i)
		}
	}
	return out
}

// joinUnderCeiling assembles selected sentences in original order, taking
// the leading selection first, the final sentence next, then the middle
// selections while they fit. The first sentence alone is truncated if even
// it exceeds the ceiling.
func joinUnderCeiling(sentences []string, selected []int, maxChars int) string {
	if len(selected) == 0 {
		return ""
	}
	first := selected[0]
	last := selected[len(selected)-1]

	taken := map[int]bool{first: true}
	budget := maxChars - utf8.RuneCountInString(sentences[first])
	if last != first {
		if cost := utf8.RuneCountInString(sentences[last]) + 1; cost <= budget {
			taken[last] = true
			budget -= cost
		}
	}
	for _, i := range selected[1:] {
		if i == last || taken[i] {
			continue
		}
		cost := utf8.RuneCountInString(sentences[i]) + 1
		if cost > budget {
			continue
		}
		taken[i] = true
		budget -= cost
	}

	parts := make([]string, 0, len(taken))
	for i := range sentences {
		if taken[i] {
			parts = append(parts, sentences[i])
		}
	}
	return truncateRunes(strings.Join(parts, " "), maxChars)
}

func truncateRunes(s string, max int) string {
	if utf8.RuneCountInString(s) <= max {
		return s
	}
	runes := []rune(s)
	return strings.TrimSpace(string(runes[:max]))
}
