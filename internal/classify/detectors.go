package classify

import (
	"encoding/json"
	"math"
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"
)

// Patterns compile once at package load; per-call compilation would blow
// the classification latency contract.
var (
	codeFenceRegex = regexp.MustCompile("(?m)^[ \t]*```")

	latexRegex = regexp.MustCompile(`\\(?:frac|sum|int|prod|sqrt|alpha|beta|gamma|delta|theta|lambda|sigma|omega|infty|partial|nabla|times|cdot|leq|geq|neq|approx|begin\{[a-z*]+\})`)
	// Inline TeX must contain an operator-ish character, otherwise dollar
	// amounts in prose ("$5 and $10") would fire.
	inlineMathRegex = regexp.MustCompile(`\$[^$\n]*[=^_\\{}][^$\n]*\$`)

	urlRegex = regexp.MustCompile(`\bhttps?://[^\s<>"']+|\bwww\.[\w-]+\.[a-z]{2,}\S*`)

	unixPathRegex    = regexp.MustCompile(`(?:^|[\s("'` + "`" + `=])(?:\.{0,2}/|~/)[\w.@+-]+(?:/[\w.@+-]+)*`)
	fileLineRegex    = regexp.MustCompile(`\b[\w/.-]+\.[A-Za-z]{1,5}:\d+\b`)
	windowsPathRegex = regexp.MustCompile(`\b[A-Za-z]:\\[\w\\.() -]+`)
	dottedFileRegex  = regexp.MustCompile(`\b[\w-]+(?:/[\w.-]+)+\.(?:go|ts|tsx|js|jsx|py|rs|java|rb|c|h|cpp|hpp|cs|php|swift|kt|md|txt|json|yaml|yml|toml|xml|html|css|sql|sh|proto|lock|mod|sum)\b`)

	emailRegex = regexp.MustCompile(`\b[A-Za-z0-9._%+-]+@[A-Za-z0-9.-]+\.[A-Za-z]{2,}\b`)

	phoneRegex = regexp.MustCompile(`(?:\+\d{1,3}[ .-]?)?(?:\(\d{2,4}\)[ .-]?|\d{2,4}[ .-])\d{3,4}[ .-]\d{3,4}\b|\+\d{9,15}\b`)

	versionRegex        = regexp.MustCompile(`\bv?\d+\.\d+\.\d+(?:[-+.][\w.]+)?\b`)
	versionKeywordRegex = regexp.MustCompile(`(?i)\bversion\s+v?\d+\.\d+\b`)

	ipv4Regex = regexp.MustCompile(`\b(?:(?:25[0-5]|2[0-4]\d|1?\d{1,2})\.){3}(?:25[0-5]|2[0-4]\d|1?\d{1,2})\b`)
	ipv6Regex = regexp.MustCompile(`\b(?:[0-9a-fA-F]{1,4}:){3,7}[0-9a-fA-F]{1,4}\b|::1\b`)

	quotedSpeechRegex = regexp.MustCompile(`"[^"\n]{15,}"|“[^”\n]{15,}”`)

	durationCompactRegex = regexp.MustCompile(`\b\d+(?:\.\d+)?(?:ms|ns|us|µs|[smhd])\b`)
	unitSpacedRegex      = regexp.MustCompile(`(?i)\b\d+(?:\.\d+)?\s?(?:ms|ns|us|secs?|seconds?|mins?|minutes?|hrs?|hours?|days?|weeks?|months?|years?|[kmgt]i?b|bytes?|bits?|px|pt|em|rem|mm|cm|km|mi|ft|yd|kg|mg|lbs?|oz|hz|[kmg]hz|fps|rpm|mph|kph|mah)\b`)
	percentRegex         = regexp.MustCompile(`\b\d+(?:\.\d+)?\s?%`)

	yamlKeyRegex  = regexp.MustCompile(`^\s*[\w.-]+:\s+\S`)
	yamlListRegex = regexp.MustCompile(`^\s*-\s+\S`)

	// The select form demands a column-shaped select list directly joined
	// to a FROM target: that adjacency is what keeps "select your option"
	// from firing while "SELECT id FROM users" does.
	sqlSelectRegex = regexp.MustCompile(`(?i)\bselect\s+(?:distinct\s+)?(?:\*|[\w."()*]+(?:\s*,\s*[\w."()*]+)*)\s+from\s+["\w.]+`)
	sqlDMLRegex    = regexp.MustCompile(`(?i)\b(?:insert\s+into\s+[\w."]+|update\s+[\w."]+\s+set\s|delete\s+from\s+[\w."]+|create\s+(?:table|index|view|database)\s|alter\s+table\s+[\w."]+|drop\s+(?:table|index|view)\s)`)

	hashRegex = regexp.MustCompile(`\b[0-9a-fA-F]{40,}\b`)

	legalStrongRegex = regexp.MustCompile(`(?i)\b(?:hereby|whereas|herein|thereof|hereunder|pursuant\s+to|notwithstanding|in\s+witness\s+whereof)\b`)
	legalWeakRegex   = regexp.MustCompile(`(?i)\b(?:shall(?:\s+not)?|must\s+not|indemnif\w+|liabilit\w+|warrant(?:y|ies)|covenant\w*|governing\s+law|jurisdiction|severability|confidentialit\w+)\b`)
)

func hasCodeFence(text string) bool {
	return codeFenceRegex.MatchString(text)
}

// hasIndentedCode looks for a run of two or more indented non-blank
// lines. Blank lines inside an indented block do not break the run.
func hasIndentedCode(text string) bool {
	run := 0
	for _, line := range strings.Split(text, "\n") {
		if strings.TrimSpace(line) == "" {
			continue
		}
		if strings.HasPrefix(line, "    ") || strings.HasPrefix(line, "\t") {
			run++
			if run >= 2 {
				return true
			}
		} else {
			run = 0
		}
	}
	return false
}

// mathRunes are symbols that essentially never appear outside mathematical
// text. Deliberately excludes π, ×, and ÷, which show up in casual prose.
const mathRunes = "∑∏∫√∞≈≠≤≥±∂∇∈∉⊂⊆∪∩"

func hasMath(text string) bool {
	return latexRegex.MatchString(text) ||
		inlineMathRegex.MatchString(text) ||
		strings.ContainsAny(text, mathRunes)
}

func hasURL(text string) bool {
	return urlRegex.MatchString(text)
}

func hasFilePath(text string) bool {
	return unixPathRegex.MatchString(text) ||
		fileLineRegex.MatchString(text) ||
		windowsPathRegex.MatchString(text) ||
		dottedFileRegex.MatchString(text)
}

func hasEmail(text string) bool {
	return emailRegex.MatchString(text)
}

func hasPhone(text string) bool {
	return phoneRegex.MatchString(text)
}

func hasVersion(text string) bool {
	return versionRegex.MatchString(text) || versionKeywordRegex.MatchString(text)
}

func hasIPAddress(text string) bool {
	return ipv4Regex.MatchString(text) || ipv6Regex.MatchString(text)
}

func hasQuotedSpeech(text string) bool {
	return quotedSpeechRegex.MatchString(text)
}

func hasNumberWithUnit(text string) bool {
	return durationCompactRegex.MatchString(text) ||
		unitSpacedRegex.MatchString(text) ||
		percentRegex.MatchString(text)
}

// hasSpecialCharDensity fires when over a quarter of the non-whitespace
// characters are neither letters nor digits. Ordinary punctuated prose
// sits well under ten percent.
func hasSpecialCharDensity(text string) bool {
	special, total := 0, 0
	for _, r := range text {
		if unicode.IsSpace(r) {
			continue
		}
		total++
		if !unicode.IsLetter(r) && !unicode.IsDigit(r) {
			special++
		}
	}
	return total >= 20 && float64(special)/float64(total) > 0.25
}

// hasStructuredShape fires on valid JSON documents and on YAML-shaped
// blocks where structural lines hold the majority.
func hasStructuredShape(text string) bool {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return false
	}
	if (trimmed[0] == '{' || trimmed[0] == '[') && json.Valid([]byte(trimmed)) {
		return true
	}
	lines := strings.Split(text, "\n")
	structural := 0
	for _, line := range lines {
		if yamlKeyRegex.MatchString(line) || yamlListRegex.MatchString(line) {
			structural++
		}
	}
	return structural >= 3 && structural*2 >= len(lines)
}

func hasSQL(text string) bool {
	return sqlSelectRegex.MatchString(text) || sqlDMLRegex.MatchString(text)
}

func hasContentHash(text string) bool {
	return hashRegex.MatchString(text)
}

// hasLegalLanguage fires on a single archaic legal term or a pileup of
// weaker obligation terms. One casual "shall" is not enough.
func hasLegalLanguage(text string) bool {
	if legalStrongRegex.MatchString(text) {
		return true
	}
	return len(legalWeakRegex.FindAllString(text, 3)) >= 3
}

// hasVerse looks for four or more consecutive short unpunctuated lines.
// Lines that resemble lists, headers, logs, or code do not count.
func hasVerse(text string) bool {
	run := 0
	for _, line := range strings.Split(text, "\n") {
		t := strings.TrimSpace(line)
		if t == "" {
			run = 0
			continue
		}
		if verseLine(t) {
			run++
			if run >= 4 {
				return true
			}
		} else {
			run = 0
		}
	}
	return false
}

func verseLine(t string) bool {
	fields := strings.Fields(t)
	if len(fields) < 2 || len(fields) > 9 {
		return false
	}
	if utf8.RuneCountInString(t) > 50 {
		return false
	}
	if strings.HasPrefix(t, "-") || strings.HasPrefix(t, "*") || strings.HasPrefix(t, "#") {
		return false
	}
	if strings.ContainsAny(t, ":=/\\[]{}()>|") {
		return false
	}
	if strings.HasSuffix(t, ".") || strings.HasSuffix(t, ";") {
		return false
	}
	digits := 0
	for _, r := range t {
		if unicode.IsDigit(r) {
			digits++
		}
	}
	if digits >= 3 {
		return false
	}
	// Status-marker tokens (PASS, FAIL, ERROR) read as logs, not poetry.
	for _, f := range fields {
		if len(f) >= 2 && f == strings.ToUpper(f) && strings.IndexFunc(f, unicode.IsLetter) >= 0 {
			return false
		}
	}
	return true
}

// hasLineLengthVariance fires when line lengths scatter widely around
// their mean, which indicates interleaved output rather than wrapped
// prose. Needs six non-empty lines to be meaningful.
func hasLineLengthVariance(text string) bool {
	var lengths []float64
	for _, line := range strings.Split(text, "\n") {
		if t := strings.TrimRight(line, " \t"); t != "" {
			lengths = append(lengths, float64(utf8.RuneCountInString(t)))
		}
	}
	if len(lengths) < 6 {
		return false
	}
	mean := 0.0
	for _, l := range lengths {
		mean += l
	}
	mean /= float64(len(lengths))
	if mean == 0 {
		return false
	}
	variance := 0.0
	for _, l := range lengths {
		d := l - mean
		variance += d * d
	}
	variance /= float64(len(lengths))
	return math.Sqrt(variance)/mean > 0.9
}
