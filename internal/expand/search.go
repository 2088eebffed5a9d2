package expand

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/fyrsmithlabs/ultracontext/internal/transcript"
)

// Match reports every pattern hit inside one stored original. SummaryID
// names the provenance summary of whichever compressed message references
// the original; when none does, it falls back to the original's own id.
type Match struct {
	SummaryID string   `json:"summaryId"`
	MessageID string   `json:"messageId"`
	Matches   []string `json:"matches"`
}

// SearchVerbatim tests pattern against every original in store and emits
// one Match per original with at least one hit, in store enumeration
// order. A pattern wrapped in slashes ("/.../") is compiled as a regular
// expression and matched globally; anything else is a literal substring.
// The store must expose its id set: map-backed stores always do,
// function-backed stores only when FuncStore.Known is set. Otherwise
// ErrStoreNotEnumerable is returned.
func SearchVerbatim(messages []transcript.Message, store Store, pattern string) ([]Match, error) {
	enum, ok := store.(Enumerable)
	if !ok {
		return nil, ErrStoreNotEnumerable
	}
	ids := enum.IDs()
	if ids == nil {
		return nil, ErrStoreNotEnumerable
	}
	find, err := matcherFor(pattern)
	if err != nil {
		return nil, err
	}
	summaries := summaryIndex(messages)
	var out []Match
	for _, id := range ids {
		orig, ok := store.Get(id)
		if !ok {
			continue
		}
		hits := find(orig.Content)
		if len(hits) == 0 {
			continue
		}
		sid, ok := summaries[id]
		if !ok {
			sid = id
		}
		out = append(out, Match{SummaryID: sid, MessageID: id, Matches: hits})
	}
	return out, nil
}

// matcherFor builds the per-content match function. Slash-wrapped
// patterns become regular expressions; everything else matches literally,
// once per occurrence.
func matcherFor(pattern string) (func(string) []string, error) {
	if strings.HasPrefix(pattern, "/") && strings.HasSuffix(pattern, "/") && len(pattern) > 2 {
		re, err := regexp.Compile(pattern[1 : len(pattern)-1])
		if err != nil {
			return nil, fmt.Errorf("invalid regex pattern: %w", err)
		}
		return func(content string) []string {
			return re.FindAllString(content, -1)
		}, nil
	}
	if pattern == "" {
		return func(string) []string { return nil }, nil
	}
	return func(content string) []string {
		n := strings.Count(content, pattern)
		if n == 0 {
			return nil
		}
		hits := make([]string, n)
		for i := range hits {
			hits[i] = pattern
		}
		return hits
	}, nil
}

// summaryIndex maps each referenced original id to the summary id of the
// first compressed message that lists it.
func summaryIndex(messages []transcript.Message) map[string]string {
	idx := make(map[string]string)
	for _, m := range messages {
		prov, ok := transcript.ProvenanceOf(m)
		if !ok || prov.SummaryID == "" {
			continue
		}
		for _, id := range prov.IDs {
			if _, exists := idx[id]; !exists {
				idx[id] = prov.SummaryID
			}
		}
	}
	return idx
}
