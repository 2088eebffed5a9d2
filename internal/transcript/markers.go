package transcript

import (
	"fmt"
	"strings"
)

// The marker grammar is wire contract: downstream tooling pattern-matches
// on these prefixes, and the orchestrator treats content that already
// starts with one of them as output of an earlier compression round and
// passes it through unchanged. Change a prefix and every consumer breaks.
const (
	MarkerSummary   = "[summary: "
	MarkerSummaryID = "[summary#"
	MarkerDup       = "[uc:dup "
	MarkerTruncated = "[truncated "
)

// truncatedHeadChars bounds the original-content head kept inside a
// truncation marker.
const truncatedHeadChars = 80

// IsMarked reports whether content begins with a reserved marker prefix.
func IsMarked(content string) bool {
	return strings.HasPrefix(content, MarkerSummary) ||
		strings.HasPrefix(content, MarkerSummaryID) ||
		strings.HasPrefix(content, MarkerDup) ||
		strings.HasPrefix(content, MarkerTruncated)
}

// SummaryMarker wraps a summary body in the summary marker. A merge count
// above one appends the merged segment, entities appends the identifier
// list, and a non-empty summaryID switches to the embedded-id prefix.
func SummaryMarker(body string, merged int, entities []string, summaryID string) string {
	var b strings.Builder
	if summaryID != "" {
		b.WriteString(MarkerSummaryID)
		b.WriteString(summaryID)
		b.WriteString(": ")
	} else {
		b.WriteString(MarkerSummary)
	}
	b.WriteString(body)
	if merged > 1 {
		fmt.Fprintf(&b, " (%d messages merged)", merged)
	}
	if len(entities) > 0 {
		b.WriteString(" | entities: ")
		b.WriteString(strings.Join(entities, ", "))
	}
	b.WriteString("]")
	return b.String()
}

// DupMarker renders the duplicate marker for a message of the given
// content length whose surviving occurrence is keepID.
func DupMarker(chars int, keepID string) string {
	return fmt.Sprintf("%s%d chars, dup of %s]", MarkerDup, chars, keepID)
}

// TruncatedMarker renders the forced-convergence marker, keeping a short
// single-line head of the original so its origin stays recognizable.
func TruncatedMarker(content string) string {
	head := content
	if Chars(head) > truncatedHeadChars {
		head = string([]rune(head)[:truncatedHeadChars])
	}
	head = strings.Join(strings.Fields(head), " ")
	return fmt.Sprintf("%s%d chars: %s…]", MarkerTruncated, Chars(content), head)
}
