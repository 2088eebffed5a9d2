package config

import (
	"fmt"
	"time"
)

// Default returns a fully defaulted configuration, as Load would produce
// with no file and no environment.
func Default() *Config {
	cfg := &Config{}
	applyDefaults(cfg)
	return cfg
}

// applyDefaults fills every unset field with its production default.
func applyDefaults(cfg *Config) {
	if cfg.Server.HTTPAddr == "" {
		cfg.Server.HTTPAddr = ":8420"
	}
	if cfg.Server.MetricsAddr == "" {
		cfg.Server.MetricsAddr = ":9464"
	}
	if cfg.Server.ReadTimeout == 0 {
		cfg.Server.ReadTimeout = Duration(10 * time.Second)
	}
	if cfg.Server.WriteTimeout == 0 {
		cfg.Server.WriteTimeout = Duration(30 * time.Second)
	}
	if cfg.Server.ShutdownTimeout == 0 {
		cfg.Server.ShutdownTimeout = Duration(10 * time.Second)
	}
	if cfg.Server.RateLimit == 0 {
		cfg.Server.RateLimit = 50
	}
	if cfg.Server.RateBurst == 0 {
		cfg.Server.RateBurst = 100
	}
	if cfg.Server.MaxBodyBytes == 0 {
		cfg.Server.MaxBodyBytes = 10 << 20
	}

	if cfg.Ingest.Debounce == 0 {
		cfg.Ingest.Debounce = Duration(500 * time.Millisecond)
	}
	if cfg.Ingest.MaxErrors == 0 {
		cfg.Ingest.MaxErrors = 100
	}

	if cfg.Store.MaxVersions == 0 {
		cfg.Store.MaxVersions = 50
	}

	if cfg.Bus.Host == "" {
		cfg.Bus.Host = "127.0.0.1"
	}
	if cfg.Bus.Port == 0 {
		cfg.Bus.Port = 4222
	}

	if cfg.LLM.MaxResponseTokens == 0 {
		cfg.LLM.MaxResponseTokens = 300
	}
	if cfg.LLM.Model == "" {
		switch cfg.LLM.Provider {
		case "openai":
			cfg.LLM.Model = "gpt-4o-mini"
		case "ollama":
			cfg.LLM.Model = "llama3.1"
		}
	}

	if cfg.Telemetry.ServiceName == "" {
		cfg.Telemetry.ServiceName = "ultracontext"
	}
	if cfg.Telemetry.OTLPEndpoint == "" {
		cfg.Telemetry.OTLPEndpoint = "localhost:4317"
	}
	if cfg.Telemetry.OTLPProtocol == "" {
		cfg.Telemetry.OTLPProtocol = "grpc"
	}
	if cfg.Telemetry.SampleRatio == 0 {
		cfg.Telemetry.SampleRatio = 1.0
	}

	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "json"
	}
	if cfg.Logging.OutputPath == "" {
		cfg.Logging.OutputPath = "stdout"
	}
}

// Validate checks cross-field constraints after defaults are applied.
func (c *Config) Validate() error {
	if c.Server.HTTPAddr == "" {
		return fmt.Errorf("server.http_addr must not be empty")
	}
	if c.Server.RateBurst < 0 {
		return fmt.Errorf("server.rate_burst cannot be negative: %d", c.Server.RateBurst)
	}
	if c.Engine.MinRecencyWindow < 0 {
		return fmt.Errorf("engine.min_recency_window cannot be negative: %d", c.Engine.MinRecencyWindow)
	}
	if c.Ingest.Enabled {
		if len(c.Ingest.WatchDirs) == 0 {
			return fmt.Errorf("ingest.watch_dirs must not be empty when ingest is enabled")
		}
		if c.Ingest.Debounce.Duration() <= 0 {
			return fmt.Errorf("ingest.debounce must be positive when ingest is enabled")
		}
	}
	switch c.LLM.Provider {
	case "", "openai", "ollama":
	default:
		return fmt.Errorf("llm.provider must be openai or ollama, got %q", c.LLM.Provider)
	}
	if c.LLM.Temperature < 0 || c.LLM.Temperature > 2 {
		return fmt.Errorf("llm.temperature must be in [0, 2], got %v", c.LLM.Temperature)
	}
	if c.Telemetry.OTLPProtocol != "grpc" && c.Telemetry.OTLPProtocol != "http" {
		return fmt.Errorf("telemetry.otlp_protocol must be grpc or http, got %q", c.Telemetry.OTLPProtocol)
	}
	if c.Telemetry.SampleRatio < 0 || c.Telemetry.SampleRatio > 1 {
		return fmt.Errorf("telemetry.sample_ratio must be in [0, 1], got %v", c.Telemetry.SampleRatio)
	}
	if err := c.Logging.Validate(); err != nil {
		return fmt.Errorf("logging: %w", err)
	}
	return nil
}
