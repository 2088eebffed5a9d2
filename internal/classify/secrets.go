package classify

import (
	"math"
	"regexp"
	"strings"
)

// secretRule is one named provider shape. Keywords gate the pattern: when
// set, the lowercased text must contain one before the regex runs, which
// keeps the battery cheap on ordinary prose.
type secretRule struct {
	id       string
	pattern  *regexp.Regexp
	keywords []string
}

var secretRules = []secretRule{
	{
		id:      "aws-access-key-id",
		pattern: regexp.MustCompile(`\b(?:A3T[A-Z0-9]|AKIA|AGPA|AIDA|AROA|AIPA|ANPA|ANVA|ASIA)[A-Z0-9]{16}\b`),
	},
	{
		id:       "aws-secret-access-key",
		pattern:  regexp.MustCompile(`(?i)aws[\w.-]{0,20}['"]?[:=]\s*['"]?[A-Za-z0-9/+]{40}\b`),
		keywords: []string{"aws"},
	},
	{
		id:       "github-token",
		pattern:  regexp.MustCompile(`\bgh[pousr]_[A-Za-z0-9]{36,}\b`),
		keywords: []string{"gh"},
	},
	{
		id:       "github-fine-grained-pat",
		pattern:  regexp.MustCompile(`\bgithub_pat_[A-Za-z0-9_]{22,}\b`),
		keywords: []string{"github_pat_"},
	},
	{
		id:       "gitlab-pat",
		pattern:  regexp.MustCompile(`\bglpat-[\w-]{20,}\b`),
		keywords: []string{"glpat-"},
	},
	{
		id:       "slack-token",
		pattern:  regexp.MustCompile(`\bxox[baprs]-[A-Za-z0-9-]{10,}\b`),
		keywords: []string{"xox"},
	},
	{
		id:       "stripe-key",
		pattern:  regexp.MustCompile(`\b[sp]k_(?:live|test)_[A-Za-z0-9]{14,}\b`),
		keywords: []string{"k_live_", "k_test_"},
	},
	{
		id:       "jwt",
		pattern:  regexp.MustCompile(`\beyJ[A-Za-z0-9_-]{10,}\.[A-Za-z0-9_-]{10,}\.[A-Za-z0-9_-]{5,}\b`),
		keywords: []string{"eyj"},
	},
	{
		id:       "google-api-key",
		pattern:  regexp.MustCompile(`\bAIza[A-Za-z0-9_-]{35}\b`),
		keywords: []string{"aiza"},
	},
	{
		id:       "anthropic-api-key",
		pattern:  regexp.MustCompile(`\bsk-ant-[A-Za-z0-9-]{24,}\b`),
		keywords: []string{"sk-ant-"},
	},
	{
		id:       "openai-api-key",
		pattern:  regexp.MustCompile(`\bsk-[A-Za-z0-9]{32,}\b`),
		keywords: []string{"sk-"},
	},
	{
		id:       "sendgrid-api-key",
		pattern:  regexp.MustCompile(`\bSG\.[A-Za-z0-9_-]{16,}\.[A-Za-z0-9_-]{16,}\b`),
		keywords: []string{"sg."},
	},
	{
		id:      "twilio-key",
		pattern: regexp.MustCompile(`\b(?:SK|AC)[0-9a-fA-F]{32}\b`),
	},
	{
		id:       "npm-token",
		pattern:  regexp.MustCompile(`\bnpm_[A-Za-z0-9]{36}\b`),
		keywords: []string{"npm_"},
	},
	{
		id:       "heroku-api-key",
		pattern:  regexp.MustCompile(`(?i)heroku[\w.-]{0,20}['"]?[:=]\s*['"]?[0-9a-f]{8}-(?:[0-9a-f]{4}-){3}[0-9a-f]{12}\b`),
		keywords: []string{"heroku"},
	},
	{
		id:       "private-key-block",
		pattern:  regexp.MustCompile(`-----BEGIN (?:RSA |EC |DSA |OPENSSH |PGP |ENCRYPTED )?PRIVATE KEY`),
		keywords: []string{"private key"},
	},
	{
		id:       "connection-string-credentials",
		pattern:  regexp.MustCompile(`\b(?:postgres(?:ql)?|mysql|mongodb(?:\+srv)?|redis|amqps?)://[^\s:@/]+:[^\s@/]+@`),
		keywords: []string{"://"},
	},
	{
		id:       "env-credential-assignment",
		pattern:  regexp.MustCompile(`(?m)^(?:export\s+)?[A-Z][A-Z0-9_]*(?:KEY|TOKEN|SECRET|PASSWORD|PASSWD|CREDENTIALS?)\s*=\s*\S{8,}`),
		keywords: []string{"="},
	},
}

// Generic fallback shapes. The candidate scan picks token-shaped runs and
// the benign filters drop the shapes the detector must never fire on:
// UUIDs, hex colors, kebab-case identifiers, plain hex (the hash detector
// owns those), and anything under twenty characters.
var (
	secretCandidateRegex = regexp.MustCompile(`[A-Za-z0-9+/_=-]{20,}`)
	uuidShapeRegex       = regexp.MustCompile(`^[0-9a-fA-F]{8}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{12}$`)
	kebabCaseRegex       = regexp.MustCompile(`^[a-z][a-z0-9]*(?:-[a-z0-9]+)+$`)
	allHexRegex          = regexp.MustCompile(`^[0-9a-fA-F]+$`)
)

// minSecretEntropyBits is the per-character Shannon entropy floor for the
// generic fallback. Random key material runs above 4.2 bits; English
// identifiers sit near 3.
const minSecretEntropyBits = 4.0

func hasSecret(text string, allow *Allowlist) bool {
	lower := strings.ToLower(text)
	for _, rule := range secretRules {
		if len(rule.keywords) > 0 && !containsAnyKeyword(lower, rule.keywords) {
			continue
		}
		if match := rule.pattern.FindString(text); match != "" && !allow.Permits(match) {
			return true
		}
	}
	return hasGenericSecret(text, allow)
}

func hasGenericSecret(text string, allow *Allowlist) bool {
	for _, token := range secretCandidateRegex.FindAllString(text, 10) {
		if isBenignTokenShape(token) {
			continue
		}
		if !hasMixedCharClasses(token) {
			continue
		}
		if shannonEntropy(token) < minSecretEntropyBits {
			continue
		}
		if !allow.Permits(token) {
			return true
		}
	}
	return false
}

func isBenignTokenShape(token string) bool {
	return uuidShapeRegex.MatchString(token) ||
		kebabCaseRegex.MatchString(token) ||
		allHexRegex.MatchString(token)
}

func hasMixedCharClasses(token string) bool {
	var upper, lower, digit bool
	for _, r := range token {
		switch {
		case r >= 'A' && r <= 'Z':
			upper = true
		case r >= 'a' && r <= 'z':
			lower = true
		case r >= '0' && r <= '9':
			digit = true
		}
	}
	return upper && lower && digit
}

func containsAnyKeyword(lower string, keywords []string) bool {
	for _, kw := range keywords {
		if strings.Contains(lower, kw) {
			return true
		}
	}
	return false
}

func shannonEntropy(s string) float64 {
	if s == "" {
		return 0
	}
	freq := make(map[rune]int, len(s))
	for _, r := range s {
		freq[r]++
	}
	entropy := 0.0
	n := float64(len(s))
	for _, count := range freq {
		p := float64(count) / n
		entropy -= p * math.Log2(p)
	}
	return entropy
}
