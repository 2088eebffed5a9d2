package extract

import (
	"regexp"
	"strings"
)

// DefaultMaxEntities caps the identifier list appended to summary markers.
const DefaultMaxEntities = 10

var (
	camelCaseEntityRegex  = regexp.MustCompile(`\b[a-z][a-z0-9]*(?:[A-Z][A-Za-z0-9]*)+\b`)
	snakeCaseEntityRegex  = regexp.MustCompile(`\b[A-Za-z][A-Za-z0-9]*(?:_[A-Za-z0-9]+)+\b`)
	pascalCaseEntityRegex = regexp.MustCompile(`\b(?:[A-Z][a-z0-9]+){2,}\b`)
	abbrevCandidateRegex  = regexp.MustCompile(`\b[A-Za-z]{3,8}\b`)
	numberContextRegex    = regexp.MustCompile(`\b(?:[A-Za-z]+\d[A-Za-z0-9]*|\d+(?:\.\d+)?(?:ms|us|ns|s|m|h|d|px|[KMGT]i?B|kb|mb|gb)\b|\d+(?:\.\d+)?%)`)
	properNounRegex       = regexp.MustCompile(`\b[A-Z][a-z]{2,}\b`)
)

// sentenceStarterStoplist drops capitalized words that are ordinary
// sentence openers rather than names.
var sentenceStarterStoplist = map[string]bool{
	"The": true, "This": true, "That": true, "These": true, "Those": true,
	"There": true, "Then": true, "They": true, "When": true, "Where": true,
	"While": true, "After": true, "Before": true, "But": true, "However": true,
	"Also": true, "And": true, "Yes": true, "Note": true, "Please": true,
	"Here": true, "Now": true, "Let": true, "Our": true, "Your": true,
	"First": true, "Second": true, "Next": true, "Finally": true, "Once": true,
	"Should": true, "Would": true, "Could": true, "With": true, "Without": true,
	"For": true, "From": true, "Into": true, "Over": true, "Under": true,
	"You": true, "What": true, "Which": true, "Since": true, "Because": true,
}

// englishVowelless excludes ordinary vowel-free English words from the
// abbreviation family.
var englishVowelless = map[string]bool{
	"try": true, "dry": true, "fly": true, "shy": true, "sky": true,
	"why": true, "cry": true, "gym": true, "myth": true, "hymn": true,
	"nth": true, "pry": true, "sly": true, "spy": true, "wry": true,
	"lynch": true, "crypt": true, "nymph": true, "rhythm": true,
}

// Entities reports up to max identifiers found in text, scanning the
// families in a fixed order (camelCase, snake_case, PascalCase, vowel-less
// abbreviations, numbers with context, proper nouns) and deduplicating
// across them while keeping first-appearance order within each family.
// max <= 0 selects DefaultMaxEntities.
func Entities(text string, max int) []string {
	if max <= 0 {
		max = DefaultMaxEntities
	}
	seen := make(map[string]bool)
	out := make([]string, 0, max)

	add := func(matches []string) {
		for _, m := range matches {
			if len(out) >= max {
				return
			}
			if seen[m] {
				continue
			}
			seen[m] = true
			out = append(out, m)
		}
	}

	add(camelCaseEntityRegex.FindAllString(text, -1))
	add(snakeCaseEntityRegex.FindAllString(text, -1))
	add(pascalCaseEntityRegex.FindAllString(text, -1))
	add(abbreviations(text))
	add(numberContextRegex.FindAllString(text, -1))
	add(properNouns(text))
	return out
}

// Missing filters entities down to those the body does not already
// contain.
func Missing(body string, entities []string) []string {
	var out []string
	for _, e := range entities {
		if !strings.Contains(body, e) {
			out = append(out, e)
		}
	}
	return out
}

func abbreviations(text string) []string {
	var out []string
	for _, tok := range abbrevCandidateRegex.FindAllString(text, -1) {
		if isVowellessAbbrev(tok) {
			out = append(out, tok)
		}
	}
	return out
}

func isVowellessAbbrev(tok string) bool {
	if strings.ContainsAny(tok, "aeiouAEIOU") {
		return false
	}
	return !englishVowelless[strings.ToLower(tok)]
}

func properNouns(text string) []string {
	var out []string
	for _, tok := range properNounRegex.FindAllString(text, -1) {
		if !sentenceStarterStoplist[tok] {
			out = append(out, tok)
		}
	}
	return out
}
