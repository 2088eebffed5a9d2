package compress

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/fyrsmithlabs/ultracontext/internal/extract"
	"github.com/fyrsmithlabs/ultracontext/internal/summarize"
	"github.com/fyrsmithlabs/ultracontext/internal/transcript"
)

// minDigestLines is the minimum non-empty line count before the structured
// digest is considered. Short outputs compress fine as prose.
const minDigestLines = 6

// digestFileListMax caps the file names spelled out in a digest body.
const digestFileListMax = 5

var (
	fileRefLineRegex = regexp.MustCompile(`([A-Za-z0-9_./-]+\.[A-Za-z][A-Za-z0-9]{0,3}):\d+`)
	statusLineRegex  = regexp.MustCompile(`\b(?:PASS(?:ED)?|FAIL(?:ED)?|ERROR|WARN(?:ING)?|SKIP(?:PED)?)\b|^(?:ok|---)\s`)
	passTokenRegex   = regexp.MustCompile(`\bPASS(?:ED)?\b|^ok\s`)
	failTokenRegex   = regexp.MustCompile(`\bFAIL(?:ED)?\b`)
	errorTokenRegex  = regexp.MustCompile(`\bERROR\b`)
	warnTokenRegex   = regexp.MustCompile(`\bWARN(?:ING)?\b`)
)

// reduceGroup builds the replacement content for one group, trying the
// structured digest, then the code-aware split, then prose condensation.
// llmBody, when non-empty, is a summarizer result competing on the prose
// path. Every candidate must come out strictly shorter than the group's
// combined content or the group falls back to verbatim (ok=false).
func reduceGroup(g group, set settings, llmBody string) (string, bool) {
	sid := ""
	if set.embedSummaryID {
		sid = transcript.SummaryIDFor(g.ids)
	}
	merged := len(g.indices)

	if body, ok := structuredDigest(g.joined); ok {
		if marked := transcript.SummaryMarker(body, merged, nil, sid); transcript.Chars(marked) < g.combined {
			return marked, true
		}
		return "", false
	}
	if body, ok := codeSplit(g.joined); ok {
		if marked := transcript.SummaryMarker(body, merged, nil, sid); transcript.Chars(marked) < g.combined {
			return marked, true
		}
		return "", false
	}

	var candidates []string
	if body := strings.TrimSpace(llmBody); body != "" && summarize.Acceptable(g.joined, body) {
		candidates = append(candidates, body)
	}
	if body := extract.Condense(g.joined, 0); body != "" {
		candidates = append(candidates, body)
	}
	for _, body := range candidates {
		entities := extract.Missing(body, extract.Entities(g.joined, 0))
		if marked := transcript.SummaryMarker(body, merged, entities, sid); transcript.Chars(marked) < g.combined {
			return marked, true
		}
		if marked := transcript.SummaryMarker(body, merged, nil, sid); transcript.Chars(marked) < g.combined {
			return marked, true
		}
	}
	return "", false
}

// proseInputFor returns the text a summarizer would be called with, or ""
// when the group resolves on a structural path and no call should be made.
func proseInputFor(g group) string {
	if _, ok := structuredDigest(g.joined); ok {
		return ""
	}
	if hasFenceLine(g.joined) {
		return ""
	}
	return g.joined
}

// structuredDigest condenses line-oriented tool output (test runs, build
// logs, linter reports) into a count summary. It applies only when a
// majority of the non-empty lines look structural: file:line references or
// status-token lines.
func structuredDigest(text string) (string, bool) {
	lines := strings.Split(text, "\n")
	var nonEmpty, structural, passed, failed, errored, warned int
	for _, line := range lines {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" {
			continue
		}
		nonEmpty++
		if !fileRefLineRegex.MatchString(trimmed) && !statusLineRegex.MatchString(trimmed) {
			continue
		}
		structural++
		switch {
		case failTokenRegex.MatchString(trimmed):
			failed++
		case errorTokenRegex.MatchString(trimmed):
			errored++
		case warnTokenRegex.MatchString(trimmed):
			warned++
		case passTokenRegex.MatchString(trimmed):
			passed++
		}
	}
	if nonEmpty < minDigestLines || structural*2 <= nonEmpty {
		return "", false
	}

	parts := []string{fmt.Sprintf("%d lines", nonEmpty)}
	var statuses []string
	if passed > 0 {
		statuses = append(statuses, fmt.Sprintf("%d passed", passed))
	}
	if failed > 0 {
		statuses = append(statuses, fmt.Sprintf("%d failed", failed))
	}
	if errored > 0 {
		statuses = append(statuses, plural(errored, "error"))
	}
	if warned > 0 {
		statuses = append(statuses, plural(warned, "warning"))
	}
	if len(statuses) > 0 {
		parts = append(parts, strings.Join(statuses, ", "))
	}
	if files := digestFiles(text); len(files) > 0 {
		parts = append(parts, "files: "+files)
	}
	return strings.Join(parts, "; "), true
}

// digestFiles lists the referenced files in first-appearance order, capped.
func digestFiles(text string) string {
	var files []string
	seen := make(map[string]bool)
	for _, m := range fileRefLineRegex.FindAllStringSubmatch(text, -1) {
		path := m[1]
		if seen[path] {
			continue
		}
		seen[path] = true
		files = append(files, path)
	}
	if len(files) == 0 {
		return ""
	}
	extra := len(files) - digestFileListMax
	if extra > 0 {
		files = files[:digestFileListMax]
	}
	out := strings.Join(files, ", ")
	if extra > 0 {
		out += fmt.Sprintf(" +%d more", extra)
	}
	return out
}

func plural(n int, noun string) string {
	if n == 1 {
		return fmt.Sprintf("1 %s", noun)
	}
	return fmt.Sprintf("%d %ss", n, noun)
}

// codeSplit separates fenced code from surrounding prose, condenses the
// prose segments, and reassembles. Code lines, fences included, pass
// through byte for byte. It applies only when a fence is present and the
// surrounding prose is itself long enough to be worth condensing.
func codeSplit(text string) (string, bool) {
	segments, hasCode, proseChars := splitFences(text)
	if !hasCode || proseChars < shortContentChars {
		return "", false
	}

	parts := make([]string, 0, len(segments))
	for _, seg := range segments {
		joined := strings.Join(seg.lines, "\n")
		if seg.code {
			parts = append(parts, joined)
			continue
		}
		condensed := extract.Condense(joined, 0)
		if condensed != "" && transcript.Chars(condensed) < transcript.Chars(joined) {
			parts = append(parts, condensed)
			continue
		}
		parts = append(parts, joined)
	}
	return strings.Join(parts, "\n"), true
}

type fenceSegment struct {
	code  bool
	lines []string
}

// splitFences walks the text line by line toggling code state on fence
// lines. Fences may be indented; a fence line always belongs to the code
// segment it opens or closes.
func splitFences(text string) (segments []fenceSegment, hasCode bool, proseChars int) {
	inCode := false
	for _, line := range strings.Split(text, "\n") {
		fence := strings.HasPrefix(strings.TrimSpace(line), "```")
		if fence && !inCode {
			inCode = true
			hasCode = true
			segments = append(segments, fenceSegment{code: true, lines: []string{line}})
			continue
		}
		if len(segments) == 0 || segments[len(segments)-1].code != inCode {
			segments = append(segments, fenceSegment{code: inCode})
		}
		segments[len(segments)-1].lines = append(segments[len(segments)-1].lines, line)
		if !inCode {
			proseChars += transcript.Chars(line)
		}
		if fence && inCode {
			inCode = false
		}
	}
	return segments, hasCode, proseChars
}

func hasFenceLine(text string) bool {
	for _, line := range strings.Split(text, "\n") {
		if strings.HasPrefix(strings.TrimSpace(line), "```") {
			return true
		}
	}
	return false
}
