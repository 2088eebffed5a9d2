package dedup

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/fyrsmithlabs/ultracontext/internal/transcript"
)

func msg(id, role, content string) transcript.Message {
	return transcript.Message{ID: id, Role: role, Content: content}
}

func TestAnalyzeKeepsLatestOutsideRecency(t *testing.T) {
	body := strings.Repeat("duplicated content block ", 10)
	messages := []transcript.Message{
		msg("m1", "user", body),
		msg("m2", "user", body),
		msg("m3", "user", body),
	}

	got := Analyze(messages, len(messages), nil)
	assert.Equal(t, map[int]Duplicate{
		0: {KeepIndex: 2, ContentLength: transcript.Chars(body)},
		1: {KeepIndex: 2, ContentLength: transcript.Chars(body)},
	}, got)
}

func TestAnalyzePrefersKeepInsideRecency(t *testing.T) {
	body := strings.Repeat("duplicated content block ", 10)
	messages := []transcript.Message{
		msg("m1", "user", body),
		msg("m2", "user", body),
		msg("m3", "assistant", "unrelated"),
		msg("m4", "user", body),
	}

	got := Analyze(messages, 3, nil)
	assert.Equal(t, map[int]Duplicate{
		0: {KeepIndex: 3, ContentLength: transcript.Chars(body)},
		1: {KeepIndex: 3, ContentLength: transcript.Chars(body)},
	}, got)
	assert.NotContains(t, got, 3)
}

func TestAnalyzeAllInsideRecency(t *testing.T) {
	body := strings.Repeat("duplicated content block ", 10)
	messages := []transcript.Message{
		msg("m1", "assistant", "unrelated"),
		msg("m2", "user", body),
		msg("m3", "user", body),
	}

	assert.Empty(t, Analyze(messages, 1, nil))
}

func TestAnalyzeRejectsNearMiss(t *testing.T) {
	a := strings.Repeat("a", 250)
	b := a[:249] + "b"
	messages := []transcript.Message{
		msg("m1", "user", a),
		msg("m2", "user", b),
	}

	assert.Empty(t, Analyze(messages, len(messages), nil))
}

func TestAnalyzeEligibility(t *testing.T) {
	long := strings.Repeat("x", 250)
	preserve := map[string]bool{"system": true}

	tests := []struct {
		name     string
		messages []transcript.Message
	}{
		{"short content", []transcript.Message{
			msg("m1", "user", "short"),
			msg("m2", "user", "short"),
		}},
		{"preserved role", []transcript.Message{
			msg("m1", "system", long),
			msg("m2", "system", long),
		}},
		{"tool calls", []transcript.Message{
			{ID: "m1", Role: "user", Content: long, ToolCalls: []any{map[string]any{"id": "t1"}}},
			{ID: "m2", Role: "user", Content: long, ToolCalls: []any{map[string]any{"id": "t2"}}},
		}},
		{"already marked", []transcript.Message{
			msg("m1", "user", "[uc:dup 250 chars, dup of m9]"+long),
			msg("m2", "user", "[uc:dup 250 chars, dup of m9]"+long),
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Empty(t, Analyze(tt.messages, len(tt.messages), preserve))
		})
	}
}
