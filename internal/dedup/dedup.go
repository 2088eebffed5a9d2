package dedup

import (
	"github.com/fyrsmithlabs/ultracontext/internal/transcript"
)

// MinContentLength is the smallest content size, in runes, that enters
// duplicate analysis. Anything shorter is cheaper to keep than to mark.
const MinContentLength = 200

// Duplicate marks one occurrence that can be dropped in favor of the
// occurrence at KeepIndex. ContentLength is the original content size in
// runes, quoted by the dedup marker.
type Duplicate struct {
	KeepIndex     int
	ContentLength int
}

// Analyze reports duplicates among eligible messages, keyed by the
// duplicate's position in messages. Eligible means: role not in
// preserveRoles, no tool calls, content of at least MinContentLength
// runes, and content not already marker-prefixed.
//
// For each set of identical contents the keep target is the earliest
// occurrence at or after recencyStart when one exists, otherwise the
// latest occurrence overall. Every other occurrence before recencyStart
// points at the keep target; occurrences inside the recency window are
// never reported, so a set that lives entirely at or after recencyStart
// produces no entries.
func Analyze(messages []transcript.Message, recencyStart int, preserveRoles map[string]bool) map[int]Duplicate {
	groups := make(map[string][]int)
	for i, m := range messages {
		if !eligible(m, preserveRoles) {
			continue
		}
		groups[m.Content] = append(groups[m.Content], i)
	}

	out := make(map[int]Duplicate)
	for content, indices := range groups {
		if len(indices) < 2 {
			continue
		}
		keep := keepTarget(indices, recencyStart)
		length := transcript.Chars(content)
		for _, i := range indices {
			if i == keep || i >= recencyStart {
				continue
			}
			out[i] = Duplicate{KeepIndex: keep, ContentLength: length}
		}
	}
	return out
}

// keepTarget picks from ascending occurrence indices.
func keepTarget(indices []int, recencyStart int) int {
	for _, i := range indices {
		if i >= recencyStart {
			return i
		}
	}
	return indices[len(indices)-1]
}

func eligible(m transcript.Message, preserveRoles map[string]bool) bool {
	if preserveRoles[m.Role] || m.HasToolCalls() {
		return false
	}
	if transcript.Chars(m.Content) < MinContentLength {
		return false
	}
	return !transcript.IsMarked(m.Content)
}
