package classify

import (
	"strings"

	"github.com/fyrsmithlabs/ultracontext/internal/transcript"
)

// Decision is the preservation tier assigned to a text.
type Decision string

const (
	// TierVerbatim (T0) marks content that must survive byte-for-byte.
	TierVerbatim Decision = "T0"
	// TierShortFactual (T2) marks short factual content left as-is.
	TierShortFactual Decision = "T2"
	// TierCompressible (T3) marks prose that may be paraphrased.
	TierCompressible Decision = "T3"
)

// Result carries the tier decision with its supporting evidence. Reasons
// is an ordered set: first-fire order, no duplicates.
type Result struct {
	Decision   Decision `json:"decision"`
	Confidence float64  `json:"confidence"`
	Reasons    []string `json:"reasons"`
}

// Confidence scale. Classification is heuristic, so confidence never
// reaches 1.0. A detector hit must never lower confidence relative to the
// no-hit tiers, so the verbatim base sits above both.
const (
	confidenceVerbatimBase = 0.70
	confidencePerReason    = 0.05
	confidenceMax          = 0.95
	confidenceShort        = 0.65
	confidenceProse        = 0.50
)

// shortWordCount is the word-count threshold below which unflagged text is
// short factual rather than compressible.
const shortWordCount = 20

// detector is an isolated named predicate. It sees only the text and
// reports whether its tag applies.
type detector struct {
	tag   string
	match func(string) bool
}

// batteryWith builds the fixed detector set, in reason order. The
// passthrough check for already-compressed marker content runs first so
// output of earlier compression rounds classifies as verbatim. Only the
// secret detector binds the allowlist; every other detector is static.
func batteryWith(allow *Allowlist) []detector {
	return []detector{
		{"compressed_marker", transcript.IsMarked},
		{"code_fence", hasCodeFence},
		{"indented_code", hasIndentedCode},
		{"math", hasMath},
		{"url", hasURL},
		{"file_path", hasFilePath},
		{"email", hasEmail},
		{"phone", hasPhone},
		{"version", hasVersion},
		{"ip_address", hasIPAddress},
		{"quoted_speech", hasQuotedSpeech},
		{"number_with_unit", hasNumberWithUnit},
		{"special_chars", hasSpecialCharDensity},
		{"structured_data", hasStructuredShape},
		{"sql", hasSQL},
		{"secret", func(text string) bool { return hasSecret(text, allow) }},
		{"hash", hasContentHash},
		{"legal", hasLegalLanguage},
		{"verse", hasVerse},
		{"line_variance", hasLineLengthVariance},
	}
}

// Classifier runs the battery with optional secret-allowlist suppression.
type Classifier struct {
	battery []detector
}

// Option configures a Classifier.
type Option func(*options)

type options struct {
	allowlist *Allowlist
}

// WithAllowlist suppresses secret-detector hits that match the given
// allowlist. Other detectors are unaffected.
func WithAllowlist(a *Allowlist) Option {
	return func(o *options) {
		o.allowlist = a
	}
}

// New builds a Classifier.
func New(opts ...Option) *Classifier {
	var o options
	for _, opt := range opts {
		opt(&o)
	}
	return &Classifier{battery: batteryWith(o.allowlist)}
}

var defaultClassifier = New()

// Classify runs the default battery over text. Equivalent to
// New().Classify(text).
func Classify(text string) Result {
	return defaultClassifier.Classify(text)
}

// MustPreserve reports whether text carries any verbatim signal under the
// default battery.
func MustPreserve(text string) bool {
	return defaultClassifier.MustPreserve(text)
}

// Classify runs every detector over text and derives the tier.
func (c *Classifier) Classify(text string) Result {
	var reasons []string
	for _, d := range c.battery {
		if d.match(text) {
			reasons = append(reasons, d.tag)
		}
	}
	if len(reasons) > 0 {
		return Result{
			Decision:   TierVerbatim,
			Confidence: verbatimConfidence(len(reasons)),
			Reasons:    reasons,
		}
	}
	if len(strings.Fields(text)) < shortWordCount {
		return Result{Decision: TierShortFactual, Confidence: confidenceShort}
	}
	return Result{Decision: TierCompressible, Confidence: confidenceProse}
}

// MustPreserve reports whether text carries any verbatim signal.
func (c *Classifier) MustPreserve(text string) bool {
	return c.Classify(text).Decision == TierVerbatim
}

func verbatimConfidence(reasons int) float64 {
	conf := confidenceVerbatimBase + confidencePerReason*float64(reasons-1)
	if conf > confidenceMax {
		return confidenceMax
	}
	return conf
}
