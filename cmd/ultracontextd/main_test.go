package main

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fyrsmithlabs/ultracontext/internal/config"
	"github.com/fyrsmithlabs/ultracontext/internal/logging"
	"github.com/fyrsmithlabs/ultracontext/internal/telemetry"
)

func TestLoadConfig(t *testing.T) {
	t.Run("defaults without a file", func(t *testing.T) {
		cfg, err := loadConfig("")

		require.NoError(t, err)
		assert.Equal(t, ":8420", cfg.Server.HTTPAddr)
	})

	t.Run("reads the named file", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "config.yaml")
		require.NoError(t, os.WriteFile(path, []byte("server:\n  http_addr: \":9999\"\n"), 0644))

		cfg, err := loadConfig(path)

		require.NoError(t, err)
		assert.Equal(t, ":9999", cfg.Server.HTTPAddr)
	})

	t.Run("fails on a missing explicit file", func(t *testing.T) {
		_, err := loadConfig("/does/not/exist.yaml")

		require.Error(t, err)
		assert.Contains(t, err.Error(), "config file")
	})
}

func TestInitDependencies_Defaults(t *testing.T) {
	cfg := config.Default()
	logger := logging.NewNop()

	deps, err := initDependencies(context.Background(), cfg, logger)
	require.NoError(t, err)
	defer deps.Close()

	assert.NotNil(t, deps.engine)
	assert.NotNil(t, deps.store)
	assert.Nil(t, deps.bus, "bus stays down unless enabled")
	assert.Nil(t, deps.ingest, "ingest stays down unless enabled")
	assert.Nil(t, deps.summarizer, "no summarizer without a provider")
}

func TestInitDependencies_WithSummarizer(t *testing.T) {
	cfg := config.Default()
	cfg.LLM.Provider = "openai"
	cfg.LLM.Model = "gpt-4o-mini"
	cfg.LLM.BaseURL = "http://127.0.0.1:9/v1" // constructors do not dial

	deps, err := initDependencies(context.Background(), cfg, logging.NewNop())
	require.NoError(t, err)
	defer deps.Close()

	assert.NotNil(t, deps.summarizer)
}

func TestInitDependencies_BadProvider(t *testing.T) {
	cfg := config.Default()
	cfg.LLM.Provider = "anthropic"
	cfg.LLM.Model = "whatever"

	_, err := initDependencies(context.Background(), cfg, logging.NewNop())

	require.Error(t, err)
	assert.Contains(t, err.Error(), "llm service")
}

func TestNewAPIServer(t *testing.T) {
	cfg := config.Default()
	logger := logging.NewNop()

	deps, err := initDependencies(context.Background(), cfg, logger)
	require.NoError(t, err)
	defer deps.Close()

	srv, err := newAPIServer(cfg, deps, logger)

	require.NoError(t, err)
	assert.NotNil(t, srv)
}

func TestNewMetricsServer(t *testing.T) {
	tel, err := telemetry.New(context.Background(), telemetry.Config{Enabled: false})
	require.NoError(t, err)
	defer func() { _ = tel.Shutdown(context.Background()) }()

	srv := newMetricsServer(":9464", tel)
	assert.Equal(t, ":9464", srv.Addr)

	// The handler serves scrapes even with telemetry disabled
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	srv.Handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}
