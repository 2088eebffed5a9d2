package main

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fyrsmithlabs/ultracontext/internal/store"
	"github.com/fyrsmithlabs/ultracontext/internal/transcript"
)

func TestParseMeta(t *testing.T) {
	t.Run("parses key=value pairs", func(t *testing.T) {
		meta, err := parseMeta([]string{"session=alpha", "agent=planner"})

		require.NoError(t, err)
		assert.Equal(t, map[string]string{"session": "alpha", "agent": "planner"}, meta)
	})

	t.Run("keeps equals signs inside the value", func(t *testing.T) {
		meta, err := parseMeta([]string{"query=a=b"})

		require.NoError(t, err)
		assert.Equal(t, "a=b", meta["query"])
	})

	t.Run("returns nil for no pairs", func(t *testing.T) {
		meta, err := parseMeta(nil)

		require.NoError(t, err)
		assert.Nil(t, meta)
	})

	t.Run("rejects entries without a key", func(t *testing.T) {
		_, err := parseMeta([]string{"=value"})
		assert.Error(t, err)

		_, err = parseMeta([]string{"plainvalue"})
		assert.Error(t, err)
	})
}

func TestFormatMeta(t *testing.T) {
	assert.Equal(t, "-", formatMeta(nil))
	assert.Equal(t, "a=1, b=2", formatMeta(map[string]string{"b": "2", "a": "1"}))
}

func TestOneLine(t *testing.T) {
	assert.Equal(t, "a b c", oneLine("a\n  b\t\nc"))
	assert.Equal(t, "", oneLine("\n\t "))
}

func TestRunContextsList(t *testing.T) {
	oldLimit, oldOffset := ctxLimit, ctxOffset
	ctxLimit, ctxOffset = 5, 10
	defer func() { ctxLimit, ctxOffset = oldLimit, oldOffset }()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/contexts", r.URL.Path)
		assert.Equal(t, "5", r.URL.Query().Get("limit"))
		assert.Equal(t, "10", r.URL.Query().Get("offset"))

		w.WriteHeader(http.StatusOK)
		_ = json.NewEncoder(w).Encode(ListContextsResponse{Contexts: []store.Context{
			{ID: "ctx_1", CreatedAt: time.Now(), Metadata: map[string]string{"session": "alpha"}},
			{ID: "ctx_2", CreatedAt: time.Now()},
		}})
	}))
	defer server.Close()

	oldServerURL := serverURL
	serverURL = server.URL
	defer func() { serverURL = oldServerURL }()

	err := runContextsList(contextsListCmd, nil)
	assert.NoError(t, err)
}

func TestRunContextsGet(t *testing.T) {
	oldVersion := ctxVersion
	ctxVersion = 2
	defer func() { ctxVersion = oldVersion }()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/contexts/ctx_abc", r.URL.Path)
		assert.Equal(t, "2", r.URL.Query().Get("version"))

		w.WriteHeader(http.StatusOK)
		_ = json.NewEncoder(w).Encode(store.Snapshot{
			Context: store.Context{ID: "ctx_abc", CreatedAt: time.Now()},
			Version: store.Version{Version: 2, Operation: store.OperationCompress},
			Messages: []transcript.Message{
				{ID: "m1", Role: "user", Content: "hello\nworld"},
			},
		})
	}))
	defer server.Close()

	oldServerURL := serverURL
	serverURL = server.URL
	defer func() { serverURL = oldServerURL }()

	err := runContextsGet(contextsGetCmd, []string{"ctx_abc"})
	assert.NoError(t, err)
}

func TestRunContextsCreate(t *testing.T) {
	oldMeta := ctxMeta
	ctxMeta = []string{"session=alpha"}
	defer func() { ctxMeta = oldMeta }()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/v1/contexts", r.URL.Path)

		var req CreateContextRequest
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "alpha", req.Metadata["session"])
		assert.Len(t, req.Messages, 1)

		w.WriteHeader(http.StatusCreated)
		_ = json.NewEncoder(w).Encode(store.Snapshot{
			Context:  store.Context{ID: "ctx_new"},
			Version:  store.Version{Version: 1},
			Messages: req.Messages,
		})
	}))
	defer server.Close()

	oldServerURL := serverURL
	serverURL = server.URL
	defer func() { serverURL = oldServerURL }()

	path := writeTranscript(t, []transcript.Message{{ID: "m1", Role: "user", Content: "hi"}})

	err := runContextsCreate(contextsCreateCmd, []string{path})
	assert.NoError(t, err)
}

func TestRunContextsCreate_BadMeta(t *testing.T) {
	oldMeta := ctxMeta
	ctxMeta = []string{"notapair"}
	defer func() { ctxMeta = oldMeta }()

	path := writeTranscript(t, []transcript.Message{{ID: "m1", Role: "user", Content: "hi"}})

	err := runContextsCreate(contextsCreateCmd, []string{path})

	assert.Error(t, err)
	assert.Contains(t, err.Error(), "key=value")
}

func TestRunContextsAppend(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/v1/contexts/ctx_abc/messages", r.URL.Path)

		var req AppendRequest
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Len(t, req.Messages, 2)

		w.WriteHeader(http.StatusOK)
		_ = json.NewEncoder(w).Encode(store.Snapshot{
			Context:  store.Context{ID: "ctx_abc"},
			Version:  store.Version{Version: 3},
			Messages: req.Messages,
		})
	}))
	defer server.Close()

	oldServerURL := serverURL
	serverURL = server.URL
	defer func() { serverURL = oldServerURL }()

	path := writeTranscript(t, []transcript.Message{
		{ID: "m9", Role: "user", Content: "more"},
		{ID: "m10", Role: "assistant", Content: "context"},
	})

	err := runContextsAppend(contextsAppendCmd, []string{"ctx_abc", path})
	assert.NoError(t, err)
}
