package telemetry

import (
	"fmt"
	"time"
)

// Config controls the telemetry bootstrap. The daemon fills it from its
// own configuration; tests usually leave Enabled false.
type Config struct {
	Enabled        bool
	ServiceName    string
	ServiceVersion string
	// Endpoint is the OTLP collector address, host:port. Empty disables
	// OTLP export; the Prometheus registry still works.
	Endpoint string
	// Protocol is "grpc" or "http". Empty selects grpc.
	Protocol string
	Insecure bool
	// SampleRatio is the trace sampling ratio in [0, 1]; 1 samples all.
	SampleRatio float64
	// ExportInterval is the OTLP metric push cadence. Zero selects 30s.
	ExportInterval time.Duration
	// ShutdownTimeout bounds Shutdown when the caller's context has no
	// deadline. Zero selects 5s.
	ShutdownTimeout time.Duration
}

// Validate checks the config before providers are built from it.
func (c Config) Validate() error {
	if !c.Enabled {
		return nil
	}
	if c.ServiceName == "" {
		return fmt.Errorf("service name must not be empty")
	}
	if c.Protocol != "" && c.Protocol != "grpc" && c.Protocol != "http" {
		return fmt.Errorf("protocol must be grpc or http, got %q", c.Protocol)
	}
	if c.SampleRatio < 0 || c.SampleRatio > 1 {
		return fmt.Errorf("sample ratio must be in [0, 1], got %v", c.SampleRatio)
	}
	return nil
}

func (c Config) exportInterval() time.Duration {
	if c.ExportInterval <= 0 {
		return 30 * time.Second
	}
	return c.ExportInterval
}

func (c Config) shutdownTimeout() time.Duration {
	if c.ShutdownTimeout <= 0 {
		return 5 * time.Second
	}
	return c.ShutdownTimeout
}
