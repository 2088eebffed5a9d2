package summarize

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/fyrsmithlabs/ultracontext/internal/transcript"
)

// Mode selects the prompt register.
type Mode string

const (
	// ModeNormal asks for a prose summary within the full token budget.
	ModeNormal Mode = "normal"
	// ModeAggressive halves the token budget and asks for terse bullet
	// points instead of prose.
	ModeAggressive Mode = "aggressive"
)

// DefaultMaxResponseTokens is the response budget when Options leaves it
// unset.
const DefaultMaxResponseTokens = 300

var (
	// ErrEmptyResult reports a summarizer that returned nothing after
	// escalation.
	ErrEmptyResult = errors.New("empty summarizer result")
	// ErrNotShorter reports a summarizer whose result did not beat the
	// input length after escalation.
	ErrNotShorter = errors.New("summarizer result not shorter than input")
)

// CallFunc is the caller-supplied model call: prompt in, completion out.
type CallFunc func(ctx context.Context, prompt string) (string, error)

// Summarizer condenses one text. Implementations built here suspend only
// inside the CallFunc.
type Summarizer func(ctx context.Context, text string) (string, error)

// Options shape the prompt.
type Options struct {
	// SystemPrompt is prepended verbatim when set.
	SystemPrompt string
	// PreserveTerms are appended to the fixed preservation rules,
	// deduplicated against them and each other.
	PreserveTerms []string
	// MaxResponseTokens bounds the response; 0 means
	// DefaultMaxResponseTokens. Aggressive mode halves whatever is set.
	MaxResponseTokens int
	// Mode defaults to ModeNormal.
	Mode Mode
}

// fixedPreserveTerms is the rule set every prompt carries. Caller terms
// matching one of these (case-insensitive) are dropped as duplicates.
var fixedPreserveTerms = []string{
	"code references",
	"file paths",
	"identifiers",
	"URLs",
	"secrets",
	"error messages",
	"technical decisions",
}

// New returns a Summarizer that sends one prompt through call and hands
// back the raw result. Acceptance of the result is the caller's job.
func New(call CallFunc, opts Options) Summarizer {
	return func(ctx context.Context, text string) (string, error) {
		return call(ctx, buildPrompt(text, opts))
	}
}

// NewEscalating wraps New with the two-level escalation: one normal-mode
// attempt, and on an empty, failed, or not-strictly-shorter result exactly
// one aggressive-mode retry. A second failure propagates; there is no
// third level.
func NewEscalating(call CallFunc, opts Options) Summarizer {
	normalOpts := opts
	normalOpts.Mode = ModeNormal
	aggressiveOpts := opts
	aggressiveOpts.Mode = ModeAggressive

	normal := New(call, normalOpts)
	aggressive := New(call, aggressiveOpts)

	return func(ctx context.Context, text string) (string, error) {
		result, err := normal(ctx, text)
		if err == nil && Acceptable(text, result) {
			return result, nil
		}

		result, err = aggressive(ctx, text)
		if err != nil {
			return "", fmt.Errorf("aggressive summarization: %w", err)
		}
		if result == "" {
			return "", ErrEmptyResult
		}
		if !Acceptable(text, result) {
			return "", ErrNotShorter
		}
		return result, nil
	}
}

// Acceptable reports whether a summarizer result may replace the input:
// non-empty and strictly shorter, counted in runes.
func Acceptable(input, result string) bool {
	return result != "" && transcript.Chars(result) < transcript.Chars(input)
}

func buildPrompt(text string, opts Options) string {
	budget := opts.MaxResponseTokens
	if budget <= 0 {
		budget = DefaultMaxResponseTokens
	}
	if opts.Mode == ModeAggressive {
		budget /= 2
	}

	var b strings.Builder
	if opts.SystemPrompt != "" {
		b.WriteString(opts.SystemPrompt)
		b.WriteString("\n\n")
	}
	b.WriteString("Summarize the following text. Preserve exactly, without paraphrasing: ")
	b.WriteString(listGrammar(fixedPreserveTerms))
	b.WriteString(".\n")
	if extra := dedupTerms(opts.PreserveTerms); len(extra) > 0 {
		b.WriteString("Also preserve: ")
		b.WriteString(listGrammar(extra))
		b.WriteString(".\n")
	}
	if opts.Mode == ModeAggressive {
		fmt.Fprintf(&b, "Respond with terse bullet points, not prose, in at most %d tokens.\n", budget)
	} else {
		fmt.Fprintf(&b, "Respond in at most %d tokens.\n", budget)
	}
	b.WriteString("\nText:\n")
	b.WriteString(text)
	return b.String()
}

// dedupTerms drops empties, duplicates of the fixed rule set, and repeats
// among the caller's own terms. Comparison is case-insensitive; the
// caller's original casing survives.
func dedupTerms(terms []string) []string {
	seen := make(map[string]bool, len(fixedPreserveTerms)+len(terms))
	for _, t := range fixedPreserveTerms {
		seen[strings.ToLower(t)] = true
	}
	var out []string
	for _, t := range terms {
		t = strings.TrimSpace(t)
		if t == "" {
			continue
		}
		key := strings.ToLower(t)
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, t)
	}
	return out
}

// listGrammar joins terms as an English list: "a", "a and b",
// "a, b, and c".
func listGrammar(terms []string) string {
	switch len(terms) {
	case 0:
		return ""
	case 1:
		return terms[0]
	case 2:
		return terms[0] + " and " + terms[1]
	default:
		return strings.Join(terms[:len(terms)-1], ", ") + ", and " + terms[len(terms)-1]
	}
}
