package compress

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fyrsmithlabs/ultracontext/internal/transcript"
)

const proseAlpha = "We spent most of the morning chasing a flaky integration test before realizing the fixture database was being reused between runs. " +
	"Clearing the schema between cases fixed the ordering problems. " +
	"However, the nightly build still breaks when the cache warms up in parallel. " +
	"I think the next step is to serialize the warmup path behind a lock and measure the cost."

const proseBeta = "The beta rollout went out to a tenth of the fleet without any alerts firing during the first hour of soak time. " +
	"Dashboards stayed flat through the evening. " +
	"However, the connection pool kept creeping upward on two shards. " +
	"We agreed to hold the rollout at ten percent until the pool growth is explained."

func msg(id string, index int, role, content string) transcript.Message {
	return transcript.Message{ID: id, Index: index, Role: role, Content: content}
}

func assertStatsConsistent(t *testing.T, res *Result) {
	t.Helper()
	stats := res.Compression
	require.Len(t, res.Verbatim, stats.MessagesCompressed+stats.MessagesDeduped)
	if stats.MessagesCompressed+stats.MessagesDeduped == 0 {
		assert.Equal(t, 1.0, stats.Ratio)
		assert.Equal(t, 1.0, stats.TokenRatio)
	} else {
		assert.Greater(t, stats.Ratio, 1.0)
	}
}

func TestCompressPreservesByDefault(t *testing.T) {
	msgs := []transcript.Message{
		msg("m1", 0, transcript.RoleSystem, proseAlpha),
		msg("m2", 1, transcript.RoleTool, proseBeta),
		msg("m3", 2, transcript.RoleUser, "short question"),
		msg("m4", 3, transcript.RoleUser, proseAlpha),
	}

	res, err := Compress(msgs, Options{})
	require.NoError(t, err)

	assert.Equal(t, msgs, res.Messages)
	assert.Equal(t, 4, res.Compression.MessagesPreserved)
	assert.Zero(t, res.Compression.MessagesCompressed)
	assert.Zero(t, res.Compression.MessagesDeduped)
	assert.Empty(t, res.Verbatim)
	assert.Nil(t, res.Fits)
	assert.Nil(t, res.TokenCount)
	assertStatsConsistent(t, res)
}

func TestCompressEmptyInput(t *testing.T) {
	res, err := Compress(nil, Options{})
	require.NoError(t, err)
	assert.Empty(t, res.Messages)
	assert.Equal(t, 1.0, res.Compression.Ratio)
	assert.Equal(t, 1.0, res.Compression.TokenRatio)
	assertStatsConsistent(t, res)
}

func TestCompressRejectsMissingID(t *testing.T) {
	msgs := []transcript.Message{
		msg("m1", 0, transcript.RoleUser, "hello"),
		msg("", 1, transcript.RoleUser, "no id"),
	}
	res, err := Compress(msgs, Options{})
	require.ErrorIs(t, err, transcript.ErrMissingID)
	assert.Contains(t, err.Error(), "index 1")
	assert.Nil(t, res)
}

func TestCompressSummarizesOldProse(t *testing.T) {
	msgs := []transcript.Message{
		msg("old", 0, transcript.RoleUser, proseAlpha),
		msg("r1", 1, transcript.RoleUser, "recent one"),
		msg("r2", 2, transcript.RoleUser, "recent two"),
		msg("r3", 3, transcript.RoleUser, "recent three"),
		msg("r4", 4, transcript.RoleUser, "recent four"),
	}

	res, err := Compress(msgs, Options{})
	require.NoError(t, err)
	require.Len(t, res.Messages, 5)

	got := res.Messages[0]
	assert.Equal(t, "old", got.ID)
	assert.Equal(t, transcript.RoleUser, got.Role)
	assert.True(t, strings.HasPrefix(got.Content, transcript.MarkerSummary), got.Content)
	assert.Less(t, transcript.Chars(got.Content), transcript.Chars(proseAlpha))
	assert.NotContains(t, got.Content, "messages merged")

	prov, ok := transcript.ProvenanceOf(got)
	require.True(t, ok)
	assert.Equal(t, []string{"old"}, prov.IDs)
	assert.Equal(t, 0, prov.Version)
	assert.True(t, strings.HasPrefix(prov.SummaryID, transcript.SummaryIDPrefix))

	require.Contains(t, res.Verbatim, "old")
	assert.Equal(t, proseAlpha, res.Verbatim["old"].Content)

	assert.Equal(t, 1, res.Compression.MessagesCompressed)
	assert.Equal(t, 4, res.Compression.MessagesPreserved)
	assert.Equal(t, msgs[1:], res.Messages[1:])
	assertStatsConsistent(t, res)
}

func TestCompressMergesConsecutiveSameRole(t *testing.T) {
	msgs := []transcript.Message{
		msg("a", 0, transcript.RoleUser, proseAlpha),
		msg("b", 1, transcript.RoleUser, proseBeta),
		msg("c", 2, transcript.RoleUser, proseAlpha+" The follow-up run confirmed the same pattern on a second machine."),
	}

	res, err := Compress(msgs, Options{RecencyWindow: Int(0)})
	require.NoError(t, err)
	require.Len(t, res.Messages, 1)

	got := res.Messages[0]
	assert.Equal(t, "a", got.ID)
	assert.Equal(t, 0, got.Index)
	assert.Contains(t, got.Content, "(3 messages merged)")

	prov, ok := transcript.ProvenanceOf(got)
	require.True(t, ok)
	assert.Equal(t, []string{"a", "b", "c"}, prov.IDs)
	assert.Equal(t, transcript.SummaryIDFor([]string{"a", "b", "c"}), prov.SummaryID)

	assert.Equal(t, 3, res.Compression.MessagesCompressed)
	assert.Zero(t, res.Compression.MessagesPreserved)
	for _, id := range []string{"a", "b", "c"} {
		assert.Contains(t, res.Verbatim, id)
	}
	assertStatsConsistent(t, res)
}

func TestCompressGroupsBreakOnRoleAndPreserved(t *testing.T) {
	msgs := []transcript.Message{
		msg("u1", 0, transcript.RoleUser, proseAlpha),
		msg("t1", 1, transcript.RoleTool, proseBeta),
		msg("u2", 2, transcript.RoleUser, proseBeta),
		msg("a1", 3, transcript.RoleAssistant, proseAlpha),
	}

	res, err := Compress(msgs, Options{RecencyWindow: Int(0)})
	require.NoError(t, err)
	require.Len(t, res.Messages, 4)

	assert.Equal(t, msgs[1], res.Messages[1])
	for _, i := range []int{0, 2, 3} {
		assert.True(t, strings.HasPrefix(res.Messages[i].Content, transcript.MarkerSummary), res.Messages[i].Content)
		assert.NotContains(t, res.Messages[i].Content, "messages merged")
	}
	assert.Equal(t, 3, res.Compression.MessagesCompressed)
	assert.Equal(t, 1, res.Compression.MessagesPreserved)
	assertStatsConsistent(t, res)
}

func TestCompressDedupScenario(t *testing.T) {
	body := strings.Repeat("duplicated content block ", 10)
	msgs := []transcript.Message{
		msg("first", 0, transcript.RoleUser, body),
		msg("second", 1, transcript.RoleUser, body),
	}

	res, err := Compress(msgs, Options{RecencyWindow: Int(0)})
	require.NoError(t, err)
	require.Len(t, res.Messages, 2)

	got := res.Messages[0]
	assert.True(t, strings.HasPrefix(got.Content, "[uc:dup"), got.Content)
	assert.Contains(t, got.Content, "second")
	assert.Contains(t, got.Content, fmt.Sprintf("%d chars", transcript.Chars(body)))

	prov, ok := transcript.ProvenanceOf(got)
	require.True(t, ok)
	assert.Equal(t, []string{"first"}, prov.IDs)

	assert.Equal(t, 1, res.Compression.MessagesDeduped)
	require.Contains(t, res.Verbatim, "first")
	assert.Equal(t, body, res.Verbatim["first"].Content)
	assertStatsConsistent(t, res)
}

func TestCompressDedupDisabled(t *testing.T) {
	body := strings.Repeat("duplicated content block ", 10)
	msgs := []transcript.Message{
		msg("first", 0, transcript.RoleUser, body),
		msg("second", 1, transcript.RoleUser, body),
	}

	res, err := Compress(msgs, Options{RecencyWindow: Int(0), Dedup: Bool(false)})
	require.NoError(t, err)
	assert.Zero(t, res.Compression.MessagesDeduped)
	for _, m := range res.Messages {
		assert.False(t, strings.HasPrefix(m.Content, transcript.MarkerDup))
	}
	assertStatsConsistent(t, res)
}

func TestCompressStructuredDigest(t *testing.T) {
	report := strings.Join([]string{
		"--- PASS: TestLogin (0.02s)",
		"--- PASS: TestLogout (0.01s)",
		"--- FAIL: TestRefresh (0.30s)",
		"    auth/session.go:142: token expired early",
		"--- PASS: TestRevoke (0.00s)",
		"api/handler.go:77: retries exhausted",
		"--- PASS: TestHealth (0.00s)",
		"ok   api 0.451s",
	}, "\n")

	msgs := []transcript.Message{
		msg("run", 0, transcript.RoleAssistant, report),
	}

	res, err := Compress(msgs, Options{RecencyWindow: Int(0)})
	require.NoError(t, err)
	require.Len(t, res.Messages, 1)

	got := res.Messages[0].Content
	assert.True(t, strings.HasPrefix(got, transcript.MarkerSummary), got)
	assert.Contains(t, got, "8 lines")
	assert.Contains(t, got, "5 passed, 1 failed")
	assert.Contains(t, got, "auth/session.go")
	assert.Contains(t, got, "api/handler.go")
	assert.Less(t, transcript.Chars(got), transcript.Chars(report))
	assert.Equal(t, 1, res.Compression.MessagesCompressed)
	assertStatsConsistent(t, res)
}

func TestCompressCodeAwareSplit(t *testing.T) {
	content := "Deploying the retry fix turned into a longer afternoon than anyone expected, mostly spent reading flame graphs. " +
		"The staging cluster behaved fine for a while. " +
		"Production kept amplifying its own retries until the queue drained.\n" +
		"```go\nfunc reset(b *backoff) {\n\tb.cur = b.min\n}\n```\n" +
		"After the rollout the storm disappeared. " +
		"Latency settled back to the baseline we recorded before the incident began."

	msgs := []transcript.Message{
		msg("mix", 0, transcript.RoleUser, content),
	}

	res, err := Compress(msgs, Options{RecencyWindow: Int(0)})
	require.NoError(t, err)
	require.Len(t, res.Messages, 1)

	got := res.Messages[0].Content
	assert.True(t, strings.HasPrefix(got, transcript.MarkerSummary), got)
	assert.Contains(t, got, "```go\nfunc reset(b *backoff) {\n\tb.cur = b.min\n}\n```")
	assert.NotContains(t, got, "staging cluster")
	assert.Less(t, transcript.Chars(got), transcript.Chars(content))
	assertStatsConsistent(t, res)
}

func TestCompressVerbatimFallbackNeverGrows(t *testing.T) {
	// Repeated filler with no sentence punctuation condenses to a
	// truncation that saves nothing once the marker overhead is added, so
	// the message must survive untouched.
	body := strings.Repeat("alpha beta gamma delta ", 10)
	msgs := []transcript.Message{
		msg("flat", 0, transcript.RoleUser, body),
	}

	res, err := Compress(msgs, Options{RecencyWindow: Int(0)})
	require.NoError(t, err)
	require.Len(t, res.Messages, 1)
	assert.Equal(t, body, res.Messages[0].Content)
	assert.Zero(t, res.Compression.MessagesCompressed)
	assert.Equal(t, 1, res.Compression.MessagesPreserved)
	assert.Empty(t, res.Verbatim)
	assertStatsConsistent(t, res)
}

func TestCompressIdempotent(t *testing.T) {
	dup := strings.Repeat("identical trace segment ", 10)
	msgs := []transcript.Message{
		msg("p1", 0, transcript.RoleUser, proseAlpha),
		msg("p2", 1, transcript.RoleAssistant, proseBeta),
		msg("d1", 2, transcript.RoleUser, dup),
		msg("d2", 3, transcript.RoleUser, dup),
		msg("s1", 4, transcript.RoleUser, "short tail"),
	}
	opts := Options{RecencyWindow: Int(0)}

	first, err := Compress(msgs, opts)
	require.NoError(t, err)
	require.Positive(t, first.Compression.MessagesCompressed+first.Compression.MessagesDeduped)

	second, err := Compress(first.Messages, opts)
	require.NoError(t, err)
	assert.Zero(t, second.Compression.MessagesCompressed)
	assert.Zero(t, second.Compression.MessagesDeduped)
	assert.Equal(t, first.Messages, second.Messages)
	assert.Equal(t, 1.0, second.Compression.Ratio)
	assert.Equal(t, 1.0, second.Compression.TokenRatio)
	assertStatsConsistent(t, second)
}

func TestCompressPreservesJSONAndToolCalls(t *testing.T) {
	jsonBody := `{"items": [` + strings.Repeat(`{"id": 7, "state": "ready"}, `, 10) + `{"id": 0}]}`
	require.Greater(t, transcript.Chars(jsonBody), shortContentChars)

	withCalls := msg("calls", 1, transcript.RoleAssistant, proseAlpha)
	withCalls.ToolCalls = []any{map[string]any{"name": "lookup"}}

	msgs := []transcript.Message{
		msg("json", 0, transcript.RoleUser, jsonBody),
		withCalls,
	}

	res, err := Compress(msgs, Options{RecencyWindow: Int(0)})
	require.NoError(t, err)
	assert.Equal(t, msgs, res.Messages)
	assert.Zero(t, res.Compression.MessagesCompressed)
	assertStatsConsistent(t, res)
}

func TestCompressEmbedSummaryID(t *testing.T) {
	msgs := []transcript.Message{
		msg("solo", 0, transcript.RoleUser, proseAlpha),
	}

	res, err := Compress(msgs, Options{RecencyWindow: Int(0), EmbedSummaryID: true})
	require.NoError(t, err)
	require.Len(t, res.Messages, 1)

	prov, ok := transcript.ProvenanceOf(res.Messages[0])
	require.True(t, ok)
	assert.True(t, strings.HasPrefix(res.Messages[0].Content, transcript.MarkerSummaryID+prov.SummaryID+": "), res.Messages[0].Content)
	assertStatsConsistent(t, res)
}

func TestCompressSourceVersion(t *testing.T) {
	msgs := []transcript.Message{
		msg("solo", 0, transcript.RoleUser, proseAlpha),
	}

	res, err := Compress(msgs, Options{RecencyWindow: Int(0), SourceVersion: 3})
	require.NoError(t, err)
	assert.Equal(t, 3, res.Compression.OriginalVersion)

	prov, ok := transcript.ProvenanceOf(res.Messages[0])
	require.True(t, ok)
	assert.Equal(t, 3, prov.Version)
}

func TestCompressParentLineage(t *testing.T) {
	msgs := []transcript.Message{
		msg("gen0", 0, transcript.RoleUser, proseAlpha),
	}

	first, err := Compress(msgs, Options{RecencyWindow: Int(0)})
	require.NoError(t, err)
	firstProv, ok := transcript.ProvenanceOf(first.Messages[0])
	require.True(t, ok)

	// Summaries are passthrough, so stage a second round by giving the
	// annotated message fresh prose content.
	aged := first.Messages[0].Clone()
	aged.Content = proseBeta
	second, err := Compress([]transcript.Message{aged}, Options{RecencyWindow: Int(0)})
	require.NoError(t, err)
	require.Len(t, second.Messages, 1)

	secondProv, ok := transcript.ProvenanceOf(second.Messages[0])
	require.True(t, ok)
	assert.Equal(t, []string{firstProv.SummaryID}, secondProv.ParentIDs)
	assertStatsConsistent(t, second)
}

func TestCompressIgnoresSummarizerOnSyncPath(t *testing.T) {
	var calls int32
	msgs := []transcript.Message{
		msg("solo", 0, transcript.RoleUser, proseAlpha),
	}
	opts := Options{
		RecencyWindow: Int(0),
		Summarizer: func(ctx context.Context, text string) (string, error) {
			atomic.AddInt32(&calls, 1)
			return "never used", nil
		},
	}

	res, err := Compress(msgs, opts)
	require.NoError(t, err)
	assert.Zero(t, atomic.LoadInt32(&calls))
	assert.NotContains(t, res.Messages[0].Content, "never used")
}

func TestCompressAsyncSubstitutesSummarizer(t *testing.T) {
	var calls int32
	msgs := []transcript.Message{
		msg("solo", 0, transcript.RoleUser, proseAlpha),
	}
	opts := Options{
		RecencyWindow: Int(0),
		Summarizer: func(ctx context.Context, text string) (string, error) {
			atomic.AddInt32(&calls, 1)
			return "the fixture database was reused; warmup gets serialized next", nil
		},
	}

	res, err := CompressAsync(context.Background(), msgs, opts)
	require.NoError(t, err)
	require.Len(t, res.Messages, 1)
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
	assert.True(t, strings.HasPrefix(res.Messages[0].Content, transcript.MarkerSummary))
	assert.Contains(t, res.Messages[0].Content, "the fixture database was reused")
	assert.Equal(t, 1, res.Compression.MessagesCompressed)
	assertStatsConsistent(t, res)
}

func TestCompressAsyncFallsBackOnSummarizerFailure(t *testing.T) {
	msgs := []transcript.Message{
		msg("solo", 0, transcript.RoleUser, proseAlpha),
	}
	want, err := Compress(msgs, Options{RecencyWindow: Int(0)})
	require.NoError(t, err)

	cases := map[string]func(context.Context, string) (string, error){
		"error":  func(context.Context, string) (string, error) { return "", errors.New("llm down") },
		"empty":  func(context.Context, string) (string, error) { return "", nil },
		"longer": func(ctx context.Context, text string) (string, error) { return text + text, nil },
	}
	for name, fn := range cases {
		t.Run(name, func(t *testing.T) {
			res, err := CompressAsync(context.Background(), msgs, Options{RecencyWindow: Int(0), Summarizer: fn})
			require.NoError(t, err)
			assert.Equal(t, want.Messages, res.Messages)
			assert.Equal(t, want.Compression, res.Compression)
		})
	}
}

func TestCompressAsyncAssemblyOrderIsDeterministic(t *testing.T) {
	msgs := []transcript.Message{
		msg("a", 0, transcript.RoleUser, proseAlpha),
		msg("b", 1, transcript.RoleAssistant, proseBeta),
	}
	opts := Options{
		RecencyWindow: Int(0),
		Summarizer: func(ctx context.Context, text string) (string, error) {
			if strings.Contains(text, "fixture database") {
				return "alpha digest", nil
			}
			return "beta digest", nil
		},
	}

	for i := 0; i < 5; i++ {
		res, err := CompressAsync(context.Background(), msgs, opts)
		require.NoError(t, err)
		require.Len(t, res.Messages, 2)
		assert.Contains(t, res.Messages[0].Content, "alpha digest")
		assert.Contains(t, res.Messages[1].Content, "beta digest")
	}
}

func TestCompressAsyncSkipsSummarizerForCodeAndDigest(t *testing.T) {
	report := strings.Join([]string{
		"--- PASS: TestAlpha (0.01s)",
		"--- PASS: TestBeta (0.01s)",
		"--- FAIL: TestGamma (0.10s)",
		"pkg/core.go:12: boom",
		"--- PASS: TestDelta (0.01s)",
		"ok   pkg 0.2s",
	}, "\n")

	var calls int32
	msgs := []transcript.Message{
		msg("run", 0, transcript.RoleAssistant, report),
	}
	opts := Options{
		RecencyWindow: Int(0),
		Summarizer: func(ctx context.Context, text string) (string, error) {
			atomic.AddInt32(&calls, 1)
			return "should not appear", nil
		},
	}

	res, err := CompressAsync(context.Background(), msgs, opts)
	require.NoError(t, err)
	assert.Zero(t, atomic.LoadInt32(&calls))
	assert.NotContains(t, res.Messages[0].Content, "should not appear")
	assert.Contains(t, res.Messages[0].Content, "lines")
}

func TestOptionsNormalizeDefaults(t *testing.T) {
	set := Options{}.normalize()
	assert.Equal(t, map[string]bool{
		transcript.RoleSystem:   true,
		transcript.RoleTool:     true,
		transcript.RoleFunction: true,
	}, set.preserve)
	assert.Equal(t, DefaultRecencyWindow, set.recencyWindow)
	assert.True(t, set.dedup)
	assert.False(t, set.hasBudget)
	assert.Zero(t, set.minRecency)

	custom := Options{
		Preserve:      map[string]bool{"narrator": true, transcript.RoleUser: false},
		RecencyWindow: Int(-3),
		TokenBudget:   Int(100),
	}.normalize()
	assert.Equal(t, map[string]bool{"narrator": true}, custom.preserve)
	assert.Zero(t, custom.recencyWindow)
	assert.True(t, custom.hasBudget)
	assert.Equal(t, 100, custom.tokenBudget)
}
