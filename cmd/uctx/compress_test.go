package main

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fyrsmithlabs/ultracontext/internal/compress"
	"github.com/fyrsmithlabs/ultracontext/internal/transcript"
)

func writeTranscript(t *testing.T, msgs []transcript.Message) string {
	t.Helper()
	data, err := json.Marshal(msgs)
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "transcript.json")
	require.NoError(t, os.WriteFile(path, data, 0644))
	return path
}

func TestReadMessages(t *testing.T) {
	t.Run("reads a transcript file", func(t *testing.T) {
		path := writeTranscript(t, []transcript.Message{
			{ID: "m1", Index: 0, Role: "user", Content: "hello"},
			{ID: "m2", Index: 1, Role: "assistant", Content: "hi"},
		})

		msgs, err := readMessages([]string{path})

		require.NoError(t, err)
		require.Len(t, msgs, 2)
		assert.Equal(t, "m1", msgs[0].ID)
		assert.Equal(t, "assistant", msgs[1].Role)
	})

	t.Run("fails on a missing file", func(t *testing.T) {
		_, err := readMessages([]string{"/does/not/exist.json"})

		assert.Error(t, err)
		assert.Contains(t, err.Error(), "failed to read file")
	})

	t.Run("fails on an empty file", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "empty.json")
		require.NoError(t, os.WriteFile(path, nil, 0644))

		_, err := readMessages([]string{path})

		assert.Error(t, err)
		assert.Contains(t, err.Error(), "no messages")
	})

	t.Run("fails when a message has no id", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "noid.json")
		require.NoError(t, os.WriteFile(path, []byte(`[{"role":"user","content":"hi"}]`), 0644))

		_, err := readMessages([]string{path})

		assert.Error(t, err)
		assert.Contains(t, err.Error(), "failed to parse transcript")
	})

	t.Run("fails on a non-array payload", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "object.json")
		require.NoError(t, os.WriteFile(path, []byte(`{"id":"m1"}`), 0644))

		_, err := readMessages([]string{path})

		assert.Error(t, err)
	})
}

func TestCompressOptions(t *testing.T) {
	oldWindow, oldNoDedup, oldBudget := compressWindow, compressNoDedup, compressBudget
	oldPreserve, oldSummarize := compressPreserve, compressSummarize
	defer func() {
		compressWindow, compressNoDedup, compressBudget = oldWindow, oldNoDedup, oldBudget
		compressPreserve, compressSummarize = oldPreserve, oldSummarize
	}()

	t.Run("defaults leave pointer fields unset", func(t *testing.T) {
		compressWindow = -1
		compressNoDedup = false
		compressBudget = 0
		compressPreserve = nil
		compressSummarize = false

		opts := compressOptions()

		assert.Nil(t, opts.RecencyWindow)
		assert.Nil(t, opts.Dedup)
		assert.Nil(t, opts.TokenBudget)
		assert.Empty(t, opts.Preserve)
		assert.False(t, opts.Summarize)
	})

	t.Run("set flags map onto the envelope", func(t *testing.T) {
		compressWindow = 0
		compressNoDedup = true
		compressBudget = 4000
		compressPreserve = []string{"system"}
		compressSummarize = true

		opts := compressOptions()

		require.NotNil(t, opts.RecencyWindow)
		assert.Equal(t, 0, *opts.RecencyWindow)
		require.NotNil(t, opts.Dedup)
		assert.False(t, *opts.Dedup)
		require.NotNil(t, opts.TokenBudget)
		assert.Equal(t, 4000, *opts.TokenBudget)
		assert.Equal(t, []string{"system"}, opts.Preserve)
		assert.True(t, opts.Summarize)
	})
}

func TestLocalOptions(t *testing.T) {
	oldWindow, oldNoDedup, oldPreserve := compressWindow, compressNoDedup, compressPreserve
	defer func() {
		compressWindow, compressNoDedup, compressPreserve = oldWindow, oldNoDedup, oldPreserve
	}()

	compressWindow = 2
	compressNoDedup = true
	compressPreserve = []string{"system", "tool"}

	o := localOptions()

	require.NotNil(t, o.RecencyWindow)
	assert.Equal(t, 2, *o.RecencyWindow)
	require.NotNil(t, o.Dedup)
	assert.False(t, *o.Dedup)
	assert.True(t, o.Preserve["system"])
	assert.True(t, o.Preserve["tool"])
	assert.False(t, o.Preserve["user"])
}

func TestRunCompress_Server(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/v1/compress", r.URL.Path)

		var payload CompressPayload
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&payload))
		assert.Len(t, payload.Messages, 2)

		w.WriteHeader(http.StatusOK)
		_ = json.NewEncoder(w).Encode(compress.Result{
			Messages:    payload.Messages,
			Compression: compress.Stats{MessagesPreserved: 2, Ratio: 1},
		})
	}))
	defer server.Close()

	oldServerURL := serverURL
	serverURL = server.URL
	defer func() { serverURL = oldServerURL }()

	path := writeTranscript(t, []transcript.Message{
		{ID: "m1", Index: 0, Role: "user", Content: "hello"},
		{ID: "m2", Index: 1, Role: "assistant", Content: "hi"},
	})

	err := runCompress(compressCmd, []string{path})
	assert.NoError(t, err)
}

func TestRunCompress_Local(t *testing.T) {
	oldLocal := compressLocal
	compressLocal = true
	defer func() { compressLocal = oldLocal }()

	msgs := make([]transcript.Message, 0, 8)
	roles := []string{"user", "assistant"}
	for i := 0; i < 8; i++ {
		msgs = append(msgs, transcript.Message{
			ID:      "m" + string(rune('a'+i)),
			Index:   i,
			Role:    roles[i%2],
			Content: "a message body long enough that the engine will not keep it verbatim, repeated to pad the length out some more",
		})
	}
	path := writeTranscript(t, msgs)

	err := runCompress(compressCmd, []string{path})
	assert.NoError(t, err)
}

func TestRunCompress_LocalRejectsSummarize(t *testing.T) {
	oldLocal, oldSummarize := compressLocal, compressSummarize
	compressLocal = true
	compressSummarize = true
	defer func() { compressLocal, compressSummarize = oldLocal, oldSummarize }()

	path := writeTranscript(t, []transcript.Message{{ID: "m1", Role: "user", Content: "hi"}})

	err := runCompress(compressCmd, []string{path})

	assert.Error(t, err)
	assert.Contains(t, err.Error(), "--summarize")
}
