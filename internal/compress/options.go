package compress

import (
	"github.com/fyrsmithlabs/ultracontext/internal/summarize"
	"github.com/fyrsmithlabs/ultracontext/internal/transcript"
)

const (
	// DefaultRecencyWindow is how many trailing messages stay untouched
	// when Options.RecencyWindow is nil.
	DefaultRecencyWindow = 4

	// shortContentChars is the length below which a message is preserved
	// as-is rather than compressed.
	shortContentChars = 120

	// forceConvergeChars is the length above which ForceConverge truncates
	// messages left outside the recency window.
	forceConvergeChars = 512
)

// Options control one orchestrator call. The zero value selects every
// default; pointer fields distinguish "unset" from an explicit zero.
type Options struct {
	// Preserve lists roles that are never compressed. Nil selects
	// {system, tool, function}.
	Preserve map[string]bool
	// RecencyWindow is the trailing message count exempt from all
	// compression. Nil selects DefaultRecencyWindow.
	RecencyWindow *int
	// Dedup enables the exact-duplicate pass. Nil selects true.
	Dedup *bool
	// MinRecencyWindow is the floor for token-budget convergence.
	MinRecencyWindow int
	// TokenBudget, when set, turns the call into budget convergence and
	// always populates Result.Fits and Result.TokenCount.
	TokenBudget *int
	// ForceConverge truncates oversized non-system messages outside the
	// recency window after a budget miss.
	ForceConverge bool
	// EmbedSummaryID switches summary markers to the id-embedding prefix.
	EmbedSummaryID bool
	// SourceVersion is recorded in every provenance block.
	SourceVersion int
	// Summarizer, when set, replaces the deterministic prose reduction
	// for CompressAsync calls. Compress ignores it.
	Summarizer summarize.Summarizer
}

// Int returns a pointer to v, for the pointer-typed option fields.
func Int(v int) *int { return &v }

// Bool returns a pointer to v, for the pointer-typed option fields.
func Bool(v bool) *bool { return &v }

// settings is Options with every default applied.
type settings struct {
	preserve       map[string]bool
	recencyWindow  int
	dedup          bool
	minRecency     int
	tokenBudget    int
	hasBudget      bool
	forceConverge  bool
	embedSummaryID bool
	sourceVersion  int
	summarizer     summarize.Summarizer
}

func (o Options) normalize() settings {
	s := settings{
		recencyWindow:  DefaultRecencyWindow,
		dedup:          true,
		minRecency:     o.MinRecencyWindow,
		forceConverge:  o.ForceConverge,
		embedSummaryID: o.EmbedSummaryID,
		sourceVersion:  o.SourceVersion,
		summarizer:     o.Summarizer,
	}
	if o.Preserve != nil {
		s.preserve = make(map[string]bool, len(o.Preserve))
		for role, keep := range o.Preserve {
			if keep {
				s.preserve[role] = true
			}
		}
	} else {
		s.preserve = map[string]bool{
			transcript.RoleSystem:   true,
			transcript.RoleTool:     true,
			transcript.RoleFunction: true,
		}
	}
	if o.RecencyWindow != nil {
		s.recencyWindow = *o.RecencyWindow
	}
	if s.recencyWindow < 0 {
		s.recencyWindow = 0
	}
	if s.minRecency < 0 {
		s.minRecency = 0
	}
	if o.Dedup != nil {
		s.dedup = *o.Dedup
	}
	if o.TokenBudget != nil {
		s.tokenBudget = *o.TokenBudget
		s.hasBudget = true
	}
	return s
}

// Stats summarizes what one call did. Ratio and TokenRatio are 1 exactly
// when nothing was compressed or deduped.
type Stats struct {
	MessagesPreserved  int     `json:"messages_preserved"`
	MessagesCompressed int     `json:"messages_compressed"`
	MessagesDeduped    int     `json:"messages_deduped"`
	Ratio              float64 `json:"ratio"`
	TokenRatio         float64 `json:"token_ratio"`
	OriginalVersion    int     `json:"original_version"`
}

// Result is one orchestrator call's output. Fits and TokenCount are set
// only when Options.TokenBudget was.
type Result struct {
	Messages    []transcript.Message   `json:"messages"`
	Compression Stats                  `json:"compression"`
	Verbatim    transcript.VerbatimMap `json:"verbatim"`
	Fits        *bool                  `json:"fits,omitempty"`
	TokenCount  *int                   `json:"token_count,omitempty"`
}
