// Package config loads and validates the ultracontext configuration from
// YAML and UC_-prefixed environment variables.
package config

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/fyrsmithlabs/ultracontext/internal/compress"
	"github.com/fyrsmithlabs/ultracontext/internal/logging"
)

// Duration wraps time.Duration for text unmarshaling from YAML and env
// vars.
type Duration time.Duration

// UnmarshalText implements encoding.TextUnmarshaler.
func (d *Duration) UnmarshalText(text []byte) error {
	parsed, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	if parsed < 0 {
		return fmt.Errorf("duration cannot be negative: %s", text)
	}
	*d = Duration(parsed)
	return nil
}

// MarshalText implements encoding.TextMarshaler.
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration().String()), nil
}

// MarshalJSON implements json.Marshaler.
func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.Duration().String())
}

// Duration returns the underlying time.Duration.
func (d Duration) Duration() time.Duration {
	return time.Duration(d)
}

// Secret wraps strings that must never appear in logs or serialized
// output. Use Value to read the actual value.
type Secret string

// String implements fmt.Stringer and always redacts.
func (s Secret) String() string {
	if s == "" {
		return ""
	}
	return "[REDACTED]"
}

// GoString implements fmt.GoStringer for %#v formatting.
func (s Secret) GoString() string {
	return "Secret([REDACTED])"
}

// Value returns the actual secret value.
func (s Secret) Value() string {
	return string(s)
}

// IsSet reports whether the secret is non-empty.
func (s Secret) IsSet() bool {
	return s != ""
}

// MarshalJSON implements json.Marshaler and always redacts.
func (s Secret) MarshalJSON() ([]byte, error) {
	if s == "" {
		return json.Marshal("")
	}
	return json.Marshal("[REDACTED]")
}

// Config is the full daemon configuration.
type Config struct {
	Server    ServerConfig    `koanf:"server"`
	Engine    EngineConfig    `koanf:"engine"`
	Ingest    IngestConfig    `koanf:"ingest"`
	Store     StoreConfig     `koanf:"store"`
	Bus       BusConfig       `koanf:"bus"`
	LLM       LLMConfig       `koanf:"llm"`
	Telemetry TelemetryConfig `koanf:"telemetry"`
	Logging   logging.Config  `koanf:"logging"`
}

// ServerConfig controls the HTTP API and metrics listeners.
type ServerConfig struct {
	HTTPAddr        string   `koanf:"http_addr"`
	MetricsAddr     string   `koanf:"metrics_addr"`
	ReadTimeout     Duration `koanf:"read_timeout"`
	WriteTimeout    Duration `koanf:"write_timeout"`
	ShutdownTimeout Duration `koanf:"shutdown_timeout"`
	// RateLimit is requests per second per client ip; negative disables.
	RateLimit float64 `koanf:"rate_limit"`
	RateBurst int     `koanf:"rate_burst"`
	// MaxBodyBytes bounds request bodies; 0 selects the default.
	MaxBodyBytes int64 `koanf:"max_body_bytes"`
}

// EngineConfig carries the default compression knobs applied when a
// request does not override them. Pointer fields distinguish "unset" from
// an explicit zero, mirroring the engine's own option semantics.
type EngineConfig struct {
	RecencyWindow    *int     `koanf:"recency_window"`
	MinRecencyWindow int      `koanf:"min_recency_window"`
	Dedup            *bool    `koanf:"dedup"`
	EmbedSummaryID   bool     `koanf:"embed_summary_id"`
	PreserveRoles    []string `koanf:"preserve_roles"`
}

// Options converts the configured defaults into engine options.
func (e EngineConfig) Options() compress.Options {
	opts := compress.Options{
		RecencyWindow:    e.RecencyWindow,
		MinRecencyWindow: e.MinRecencyWindow,
		Dedup:            e.Dedup,
		EmbedSummaryID:   e.EmbedSummaryID,
	}
	if len(e.PreserveRoles) > 0 {
		opts.Preserve = make(map[string]bool, len(e.PreserveRoles))
		for _, role := range e.PreserveRoles {
			opts.Preserve[role] = true
		}
	}
	return opts
}

// IngestConfig controls the session-log watcher.
type IngestConfig struct {
	Enabled   bool     `koanf:"enabled"`
	WatchDirs []string `koanf:"watch_dirs"`
	// Debounce coalesces write events per file before re-parsing.
	Debounce  Duration `koanf:"debounce"`
	MaxErrors int      `koanf:"max_errors"`
}

// BusConfig controls the event bus. With no URL the daemon embeds the
// server on host:port; setting URL points it at an external broker.
type BusConfig struct {
	Enabled bool   `koanf:"enabled"`
	Host    string `koanf:"host"`
	Port    int    `koanf:"port"`
	URL     string `koanf:"url"`
}

// StoreConfig controls retention in the versioned context store.
type StoreConfig struct {
	// MaxVersions bounds versions kept per context; negative keeps all.
	MaxVersions int `koanf:"max_versions"`
	// MaxContexts bounds stored contexts; 0 is unlimited.
	MaxContexts int `koanf:"max_contexts"`
}

// LLMConfig selects the model behind LLM-backed summarization. An empty
// Provider disables it; compression then stays fully deterministic.
type LLMConfig struct {
	Provider string `koanf:"provider"`
	Model    string `koanf:"model"`
	BaseURL  string `koanf:"base_url"`
	APIKey   Secret `koanf:"api_key"`
	// Temperature is the sampling temperature; 0 keeps summaries
	// reproducible.
	Temperature       float64 `koanf:"temperature"`
	MaxResponseTokens int     `koanf:"max_response_tokens"`
}

// TelemetryConfig controls the OpenTelemetry exporters.
type TelemetryConfig struct {
	Enabled      bool    `koanf:"enabled"`
	ServiceName  string  `koanf:"service_name"`
	OTLPEndpoint string  `koanf:"otlp_endpoint"`
	// OTLPProtocol is "grpc" or "http".
	OTLPProtocol string  `koanf:"otlp_protocol"`
	Insecure     bool    `koanf:"insecure"`
	SampleRatio  float64 `koanf:"sample_ratio"`
}
