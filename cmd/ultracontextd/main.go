// Ultracontextd is the context daemon behind the UltraContext API.
//
// This binary starts the HTTP API with full service initialization,
// including the compression engine, the versioned context store, the
// NATS event bus, and the session-log ingest daemon.
//
// Configuration is loaded from a YAML file and UC_-prefixed environment
// variables. See internal/config for details.
//
// Usage:
//
//	# Start the daemon with defaults
//	ultracontextd
//
//	# Start with a config file
//	ultracontextd -config /etc/ultracontext/config.yaml
//
//	# Configure via environment
//	UC_SERVER_HTTP_ADDR=:9090 UC_BUS_ENABLED=true ultracontextd
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/ultracontext/internal/bus"
	"github.com/fyrsmithlabs/ultracontext/internal/compress"
	"github.com/fyrsmithlabs/ultracontext/internal/config"
	"github.com/fyrsmithlabs/ultracontext/internal/httpapi"
	"github.com/fyrsmithlabs/ultracontext/internal/ingest"
	"github.com/fyrsmithlabs/ultracontext/internal/logging"
	"github.com/fyrsmithlabs/ultracontext/internal/store"
	"github.com/fyrsmithlabs/ultracontext/internal/summarize"
	"github.com/fyrsmithlabs/ultracontext/internal/telemetry"
	"github.com/fyrsmithlabs/ultracontext/pkg/llm"
)

// Version information (set via ldflags during build)
var (
	version   = "dev"
	gitCommit = "unknown"
	buildDate = "unknown"
)

func main() {
	configPath := flag.String("config", "", "path to the YAML config file")
	flag.Parse()
	args := flag.Args()

	// Handle subcommands
	if len(args) > 0 {
		switch args[0] {
		case "version":
			printVersion()
			os.Exit(0)
		default:
			fmt.Fprintf(os.Stderr, "Unknown command: %s\n", args[0])
			fmt.Fprintf(os.Stderr, "\nUsage:\n")
			fmt.Fprintf(os.Stderr, "  ultracontextd           Start the daemon\n")
			fmt.Fprintf(os.Stderr, "  ultracontextd version   Show version information\n")
			os.Exit(1)
		}
	}

	// Setup signal handling for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigCh
		log.Printf("Received signal %v, shutting down gracefully...", sig)
		cancel()
	}()

	if err := run(ctx, *configPath); err != nil {
		log.Fatalf("Server error: %v", err)
	}

	log.Println("Server shutdown complete")
}

// printVersion prints version information
func printVersion() {
	fmt.Printf("ultracontextd by Fyrsmith Labs\n")
	fmt.Printf("Version:    %s\n", version)
	fmt.Printf("Commit:     %s\n", gitCommit)
	fmt.Printf("Build Date: %s\n", buildDate)
}

// run starts the daemon and blocks until the context is cancelled.
//
// This function initializes all dependencies and services:
//  1. Loads and validates configuration
//  2. Initializes telemetry and the structured logger
//  3. Starts the event bus when enabled (embedded or external)
//  4. Creates the compression engine and the context store
//  5. Builds the LLM summarizer when a provider is configured
//  6. Starts the session-log ingest daemon when enabled
//  7. Starts the HTTP API and the metrics listener
//  8. Performs graceful shutdown on context cancellation
func run(ctx context.Context, configPath string) error {
	cfg, err := loadConfig(configPath)
	if err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	tel, err := telemetry.New(ctx, telemetry.Config{
		Enabled:        cfg.Telemetry.Enabled,
		ServiceName:    cfg.Telemetry.ServiceName,
		ServiceVersion: version,
		Endpoint:       cfg.Telemetry.OTLPEndpoint,
		Protocol:       cfg.Telemetry.OTLPProtocol,
		Insecure:       cfg.Telemetry.Insecure,
		SampleRatio:    cfg.Telemetry.SampleRatio,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize telemetry: %w", err)
	}
	defer func() {
		_ = tel.Shutdown(context.Background())
	}()

	logger, err := logging.NewLogger(cfg.Logging, tel.LoggerProvider())
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer func() {
		_ = logger.Sync() // Best-effort sync on shutdown
	}()

	logger.Info("Starting ultracontextd",
		zap.String("version", version),
		zap.String("http_addr", cfg.Server.HTTPAddr),
		zap.Duration("shutdown_timeout", cfg.Server.ShutdownTimeout.Duration()))

	deps, err := initDependencies(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("failed to initialize dependencies: %w", err)
	}
	defer deps.Close()

	logger.Info("Dependencies initialized",
		zap.Bool("bus_connected", deps.bus != nil),
		zap.Bool("summarizer_ready", deps.summarizer != nil),
		zap.Bool("ingest_running", deps.ingest != nil))

	srv, err := newAPIServer(cfg, deps, logger)
	if err != nil {
		return fmt.Errorf("failed to initialize http server: %w", err)
	}

	metricsSrv := newMetricsServer(cfg.Server.MetricsAddr, tel)

	logger.Info("Server configured",
		zap.String("http_addr", cfg.Server.HTTPAddr),
		zap.String("metrics_addr", cfg.Server.MetricsAddr))

	// Start both listeners
	errCh := make(chan error, 2)
	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("http server: %w", err)
		}
	}()
	go func() {
		if err := metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("metrics server: %w", err)
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	// Graceful shutdown, bounded by the configured timeout
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout.Duration())
	defer cancel()

	var errs []error
	if err := srv.Shutdown(shutdownCtx); err != nil {
		errs = append(errs, fmt.Errorf("http shutdown: %w", err))
	}
	if err := metricsSrv.Shutdown(shutdownCtx); err != nil {
		errs = append(errs, fmt.Errorf("metrics shutdown: %w", err))
	}
	return errors.Join(errs...)
}

// loadConfig loads from the given file when set, otherwise from the
// default locations and the environment. The loader tolerates a missing
// default file, but a file named on the command line must exist.
func loadConfig(path string) (*config.Config, error) {
	if path != "" {
		if _, err := os.Stat(path); err != nil {
			return nil, fmt.Errorf("config file %s: %w", path, err)
		}
		return config.LoadWithFile(path)
	}
	return config.Load()
}

// dependencies holds the daemon's long-lived collaborators.
type dependencies struct {
	bus        *bus.Bus
	engine     *compress.Service
	store      *store.Store
	ingest     *ingest.Daemon
	summarizer summarize.Summarizer
	logger     *logging.Logger
}

// Close releases all infrastructure resources.
func (d *dependencies) Close() {
	if d.ingest != nil {
		d.ingest.Stop()
	}
	if d.bus != nil {
		d.bus.Close()
	}
	if d.logger != nil {
		_ = d.logger.Sync() // Best-effort sync
	}
}

// initDependencies initializes all infrastructure dependencies.
//
// The bus comes up first so the engine can publish completion events to
// it, and the store wraps the engine so context compression flows
// through the same instrumented service as the stateless endpoint.
func initDependencies(ctx context.Context, cfg *config.Config, logger *logging.Logger) (*dependencies, error) {
	deps := &dependencies{logger: logger}

	if cfg.Bus.Enabled {
		b, err := bus.New(bus.Config{
			Embedded: cfg.Bus.URL == "",
			Host:     cfg.Bus.Host,
			Port:     cfg.Bus.Port,
			URL:      cfg.Bus.URL,
		}, logger)
		if err != nil {
			return nil, fmt.Errorf("failed to start event bus: %w", err)
		}
		deps.bus = b

		logger.Info("Event bus ready", zap.String("url", b.ClientURL()))
	}

	engineOpts := []compress.ServiceOption{
		compress.WithDefaults(cfg.Engine.Options()),
	}
	if deps.bus != nil {
		engineOpts = append(engineOpts, compress.WithEventSink(deps.bus))
	}
	engine, err := compress.NewService(engineOpts...)
	if err != nil {
		deps.Close()
		return nil, fmt.Errorf("failed to create compression engine: %w", err)
	}
	deps.engine = engine

	st, err := store.New(store.Config{
		MaxVersions: cfg.Store.MaxVersions,
		MaxContexts: cfg.Store.MaxContexts,
	}, engine, logger)
	if err != nil {
		deps.Close()
		return nil, fmt.Errorf("failed to create context store: %w", err)
	}
	deps.store = st

	if cfg.LLM.Provider != "" {
		llmSvc, err := llm.New(llm.Config{
			Provider:    cfg.LLM.Provider,
			Model:       cfg.LLM.Model,
			BaseURL:     cfg.LLM.BaseURL,
			APIKey:      cfg.LLM.APIKey.Value(),
			Temperature: cfg.LLM.Temperature,
			MaxTokens:   cfg.LLM.MaxResponseTokens,
		})
		if err != nil {
			deps.Close()
			return nil, fmt.Errorf("failed to create llm service: %w", err)
		}
		deps.summarizer = summarize.NewEscalating(llmSvc.Complete, summarize.Options{
			MaxResponseTokens: cfg.LLM.MaxResponseTokens,
		})

		logger.Info("Summarizer initialized",
			zap.String("provider", cfg.LLM.Provider),
			zap.String("model", cfg.LLM.Model))
	}

	if cfg.Ingest.Enabled {
		var pub ingest.Publisher
		if deps.bus != nil {
			pub = deps.bus
		}
		daemon, err := ingest.New(ingest.Config{
			Dirs:      cfg.Ingest.WatchDirs,
			Debounce:  cfg.Ingest.Debounce.Duration(),
			MaxErrors: cfg.Ingest.MaxErrors,
		}, st, pub, logger)
		if err != nil {
			deps.Close()
			return nil, fmt.Errorf("failed to create ingest daemon: %w", err)
		}
		if err := daemon.Start(ctx); err != nil {
			deps.Close()
			return nil, fmt.Errorf("failed to start ingest daemon: %w", err)
		}
		deps.ingest = daemon
	}

	return deps, nil
}

// newAPIServer builds the HTTP API over the initialized services.
func newAPIServer(cfg *config.Config, deps *dependencies, logger *logging.Logger) (*httpapi.Server, error) {
	opts := []httpapi.Option{
		httpapi.WithVersion(version),
		httpapi.WithEngineDefaults(cfg.Engine.Options()),
	}
	if deps.summarizer != nil {
		opts = append(opts, httpapi.WithSummarizer(deps.summarizer))
	}

	return httpapi.NewServer(httpapi.Config{
		Addr:         cfg.Server.HTTPAddr,
		ReadTimeout:  cfg.Server.ReadTimeout.Duration(),
		WriteTimeout: cfg.Server.WriteTimeout.Duration(),
		RateLimit:    cfg.Server.RateLimit,
		RateBurst:    cfg.Server.RateBurst,
		MaxBodyBytes: cfg.Server.MaxBodyBytes,
	}, deps.store, deps.engine, logger, opts...)
}

// newMetricsServer serves the Prometheus registry on its own listener.
func newMetricsServer(addr string, tel *telemetry.Telemetry) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", tel.MetricsHandler())

	return &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
}
