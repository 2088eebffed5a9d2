package compress

import (
	"context"
	"encoding/json"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/fyrsmithlabs/ultracontext/internal/classify"
	"github.com/fyrsmithlabs/ultracontext/internal/dedup"
	"github.com/fyrsmithlabs/ultracontext/internal/summarize"
	"github.com/fyrsmithlabs/ultracontext/internal/transcript"
)

// maxConcurrentSummaries bounds in-flight summarizer calls per run.
const maxConcurrentSummaries = 4

// Compress rewrites a transcript under the given options. It is fully
// deterministic: any Summarizer in opts is ignored. Use CompressAsync to
// substitute summarizer output on the prose path.
func Compress(messages []transcript.Message, opts Options) (*Result, error) {
	set := opts.normalize()
	set.summarizer = nil
	return run(context.Background(), messages, set)
}

// CompressAsync behaves like Compress but honors opts.Summarizer. The
// summarizer is consulted only for plain-prose groups, its calls run
// concurrently, and any failure falls back to the deterministic reduction
// for that group alone.
func CompressAsync(ctx context.Context, messages []transcript.Message, opts Options) (*Result, error) {
	return run(ctx, messages, opts.normalize())
}

func run(ctx context.Context, messages []transcript.Message, set settings) (*Result, error) {
	if err := transcript.ValidateMessages(messages); err != nil {
		return nil, err
	}
	if set.summarizer != nil {
		set.summarizer = memoized(set.summarizer)
	}
	if set.hasBudget {
		return converge(ctx, messages, set), nil
	}
	return runWindow(ctx, messages, set, set.recencyWindow), nil
}

// memoized caches summarizer outcomes by input text so repeated budget
// probes reuse one call per distinct prose group.
func memoized(s summarize.Summarizer) summarize.Summarizer {
	type outcome struct {
		text string
		err  error
	}
	var mu sync.Mutex
	cache := make(map[string]outcome)
	return func(ctx context.Context, text string) (string, error) {
		mu.Lock()
		if o, ok := cache[text]; ok {
			mu.Unlock()
			return o.text, o.err
		}
		mu.Unlock()
		res, err := s(ctx, text)
		mu.Lock()
		cache[text] = outcome{text: res, err: err}
		mu.Unlock()
		return res, err
	}
}

// runWindow executes one full compression pass with the given recency
// window. The budget path calls it repeatedly with different windows; the
// unbudgeted path calls it once.
func runWindow(ctx context.Context, messages []transcript.Message, set settings, window int) *Result {
	n := len(messages)
	if window < 0 {
		window = 0
	}
	recencyStart := n - window
	if recencyStart < 0 {
		recencyStart = 0
	}

	out := make([]transcript.Message, n)
	copy(out, messages)
	verbatim := make(transcript.VerbatimMap)

	// handled marks messages excluded from grouping: preserved ones and
	// dedup rewrites. A handled message also breaks run contiguity, so
	// groups never span it.
	handled := make([]bool, n)
	for i, m := range messages {
		handled[i] = i >= recencyStart || isPreserved(m, set)
	}

	var dedupCount, compressCount int
	if set.dedup {
		for i, d := range dedup.Analyze(messages, recencyStart, set.preserve) {
			if handled[i] {
				continue
			}
			verbatim[messages[i].ID] = messages[i].Clone()
			dup := messages[i].Clone()
			dup.Content = transcript.DupMarker(d.ContentLength, messages[d.KeepIndex].ID)
			prov := transcript.NewProvenance([]string{messages[i].ID}, set.sourceVersion, parentSummaries(messages[i:i+1]))
			out[i] = transcript.WithProvenance(dup, prov)
			handled[i] = true
			dedupCount++
		}
	}

	groups := formGroups(messages, handled)
	bodies := summarizeGroups(ctx, set, groups)

	drop := make([]bool, n)
	for gi, g := range groups {
		content, ok := reduceGroup(g, set, bodies[gi])
		if !ok {
			continue
		}
		for _, idx := range g.indices {
			verbatim[messages[idx].ID] = messages[idx].Clone()
			if idx != g.indices[0] {
				drop[idx] = true
			}
		}
		first := messages[g.indices[0]].Clone()
		first.Content = content
		first.ToolCalls = nil
		prov := transcript.NewProvenance(g.ids, set.sourceVersion, parentSummaries(g.members(messages)))
		out[g.indices[0]] = transcript.WithProvenance(first, prov)
		compressCount += len(g.indices)
	}

	if set.forceConverge {
		for i := range out {
			if drop[i] || i >= recencyStart {
				continue
			}
			m := out[i]
			if m.Role == transcript.RoleSystem || transcript.IsMarked(m.Content) {
				continue
			}
			if transcript.Chars(m.Content) <= forceConvergeChars {
				continue
			}
			marker := transcript.TruncatedMarker(m.Content)
			if transcript.Chars(marker) >= transcript.Chars(m.Content) {
				continue
			}
			if _, exists := verbatim[m.ID]; !exists {
				verbatim[m.ID] = messages[i].Clone()
				compressCount++
			}
			trunc := m.Clone()
			trunc.Content = marker
			prov := transcript.NewProvenance([]string{m.ID}, set.sourceVersion, parentSummaries(messages[i:i+1]))
			out[i] = transcript.WithProvenance(trunc, prov)
		}
	}

	final := make([]transcript.Message, 0, n)
	for i := range out {
		if !drop[i] {
			final = append(final, out[i])
		}
	}

	return &Result{
		Messages: final,
		Compression: Stats{
			MessagesPreserved:  n - compressCount - dedupCount,
			MessagesCompressed: compressCount,
			MessagesDeduped:    dedupCount,
			Ratio:              charRatio(messages, final),
			TokenRatio:         tokenRatio(messages, final),
			OriginalVersion:    set.sourceVersion,
		},
		Verbatim: verbatim,
	}
}

// isPreserved applies the positional-independent preservation rules. Recency
// is handled by the caller. Marker passthrough comes first so re-running
// compression over its own output never rewrites a summary. The verbatim
// classifier gates only tool and function payloads; user and assistant prose
// still flows to reduction, where code-aware splitting keeps fenced blocks
// intact.
func isPreserved(m transcript.Message, set settings) bool {
	if transcript.IsMarked(m.Content) {
		return true
	}
	if set.preserve[m.Role] || m.HasToolCalls() {
		return true
	}
	if transcript.Chars(m.Content) < shortContentChars {
		return true
	}
	if isJSONContent(m.Content) {
		return true
	}
	if m.Role == transcript.RoleTool || m.Role == transcript.RoleFunction {
		return classify.MustPreserve(m.Content)
	}
	return false
}

func isJSONContent(content string) bool {
	trimmed := strings.TrimSpace(content)
	if trimmed == "" {
		return false
	}
	return json.Valid([]byte(trimmed))
}

// group is a maximal run of consecutive unhandled messages sharing a role.
// joined is the reduction input; combined is the summed content length the
// replacement must beat.
type group struct {
	indices  []int
	ids      []string
	role     string
	joined   string
	combined int
}

func (g group) members(messages []transcript.Message) []transcript.Message {
	out := make([]transcript.Message, 0, len(g.indices))
	for _, idx := range g.indices {
		out = append(out, messages[idx])
	}
	return out
}

func formGroups(messages []transcript.Message, handled []bool) []group {
	var runs [][]int
	for i := range messages {
		if handled[i] {
			continue
		}
		if len(runs) > 0 {
			last := runs[len(runs)-1]
			prev := last[len(last)-1]
			if prev == i-1 && messages[prev].Role == messages[i].Role {
				runs[len(runs)-1] = append(last, i)
				continue
			}
		}
		runs = append(runs, []int{i})
	}

	groups := make([]group, 0, len(runs))
	for _, run := range runs {
		g := group{indices: run, role: messages[run[0]].Role}
		parts := make([]string, 0, len(run))
		for _, idx := range run {
			m := messages[idx]
			g.ids = append(g.ids, m.ID)
			g.combined += transcript.Chars(m.Content)
			parts = append(parts, m.Content)
		}
		g.joined = strings.Join(parts, "\n\n")
		groups = append(groups, g)
	}
	return groups
}

// summarizeGroups fans summarizer calls out over the plain-prose groups and
// returns one body per group, empty where no call was made or the call
// failed. Failures never surface: the per-group deterministic path covers
// them.
func summarizeGroups(ctx context.Context, set settings, groups []group) []string {
	bodies := make([]string, len(groups))
	if set.summarizer == nil {
		return bodies
	}
	var eg errgroup.Group
	eg.SetLimit(maxConcurrentSummaries)
	for gi := range groups {
		input := proseInputFor(groups[gi])
		if input == "" {
			continue
		}
		gi := gi
		eg.Go(func() error {
			if res, err := set.summarizer(ctx, input); err == nil {
				bodies[gi] = res
			}
			return nil
		})
	}
	_ = eg.Wait()
	return bodies
}

// parentSummaries collects, in first-appearance order, the summary IDs of
// members that are themselves compression output, so layered runs chain.
func parentSummaries(members []transcript.Message) []string {
	var out []string
	seen := make(map[string]bool)
	for _, m := range members {
		p, ok := transcript.ProvenanceOf(m)
		if !ok || p.SummaryID == "" || seen[p.SummaryID] {
			continue
		}
		seen[p.SummaryID] = true
		out = append(out, p.SummaryID)
	}
	return out
}

func charRatio(in, out []transcript.Message) float64 {
	return safeRatio(totalChars(in), totalChars(out))
}

func tokenRatio(in, out []transcript.Message) float64 {
	return safeRatio(transcript.EstimateTotalTokens(in), transcript.EstimateTotalTokens(out))
}

func totalChars(messages []transcript.Message) int {
	total := 0
	for _, m := range messages {
		total += transcript.Chars(m.Content)
	}
	return total
}

func safeRatio(orig, compressed int) float64 {
	if compressed == 0 {
		return 1
	}
	return float64(orig) / float64(compressed)
}
