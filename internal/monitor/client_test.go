package monitor

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fyrsmithlabs/ultracontext/internal/store"
)

func TestNewClient(t *testing.T) {
	client := NewClient("http://localhost:8420/")
	assert.NotNil(t, client)
	assert.Equal(t, "http://localhost:8420", client.baseURL)
	assert.NotNil(t, client.client)
}

func TestClient_Health_Success(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/health", r.URL.Path)

		response := Health{
			Status:  "ok",
			Version: "1.2.3",
			Totals:  store.Totals{Contexts: 2, Messages: 48, Versions: 5, Compressions: 3},
		}
		json.NewEncoder(w).Encode(response)
	}))
	defer server.Close()

	client := NewClient(server.URL)
	ctx := context.Background()

	health, err := client.Health(ctx)
	require.NoError(t, err)
	assert.Equal(t, "ok", health.Status)
	assert.Equal(t, "1.2.3", health.Version)
	assert.Equal(t, 48, health.Totals.Messages)
	assert.Equal(t, 3, health.Totals.Compressions)
}

func TestClient_Health_Timeout(t *testing.T) {
	// Server that delays response beyond timeout
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(3 * time.Second)
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	client := NewClient(server.URL)
	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	_, err := client.Health(ctx)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "context deadline exceeded")
}

func TestClient_Health_HTTPError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte("Internal Server Error"))
	}))
	defer server.Close()

	client := NewClient(server.URL)
	ctx := context.Background()

	_, err := client.Health(ctx)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status code 500")
}

func TestClient_Health_MalformedJSON(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte("{invalid json"))
	}))
	defer server.Close()

	client := NewClient(server.URL)
	ctx := context.Background()

	_, err := client.Health(ctx)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to decode response")
}

func TestFetchHealth_Command(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(Health{Status: "ok"})
	}))
	defer server.Close()

	msg := fetchHealth(NewClient(server.URL))()
	health, ok := msg.(healthMsg)
	require.True(t, ok, "expected healthMsg, got %T", msg)
	assert.Equal(t, "ok", health.Status)
}

func TestFetchHealth_CommandError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	msg := fetchHealth(NewClient(server.URL))()
	_, ok := msg.(errMsg)
	require.True(t, ok, "expected errMsg, got %T", msg)
}
