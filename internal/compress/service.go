package compress

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/fyrsmithlabs/ultracontext/internal/transcript"
)

const tracerName = "github.com/fyrsmithlabs/ultracontext/internal/compress"
const meterName = "compression"

// Event describes one completed compression run for subscribers.
type Event struct {
	Operation   string        `json:"operation"`
	MessagesIn  int           `json:"messages_in"`
	MessagesOut int           `json:"messages_out"`
	Stats       Stats         `json:"stats"`
	Duration    time.Duration `json:"duration"`
}

// EventSink receives completion events. Implementations must not block.
type EventSink interface {
	CompressionDone(ctx context.Context, ev Event)
}

// ServiceOption configures a Service.
type ServiceOption func(*Service)

// WithEventSink publishes a completion event after every successful run.
func WithEventSink(sink EventSink) ServiceOption {
	return func(s *Service) {
		s.sink = sink
	}
}

// WithDefaults sets the options used when a caller passes nil options.
func WithDefaults(opts Options) ServiceOption {
	return func(s *Service) {
		s.defaults = opts
	}
}

// Service wraps the compression entry points with tracing and metrics.
type Service struct {
	defaults Options
	sink     EventSink

	tracer trace.Tracer
	meter  metric.Meter

	// Metrics
	operations metric.Int64Counter
	duration   metric.Float64Histogram
	ratio      metric.Float64Histogram
	rewritten  metric.Int64Counter
	errors     metric.Int64Counter
}

// NewService creates a new compression service.
func NewService(opts ...ServiceOption) (*Service, error) {
	s := &Service{
		tracer: otel.Tracer(tracerName),
		meter:  otel.Meter(meterName),
	}
	for _, opt := range opts {
		opt(s)
	}

	if err := s.initMetrics(); err != nil {
		return nil, fmt.Errorf("failed to initialize metrics: %w", err)
	}

	return s, nil
}

// Compress runs the deterministic pipeline. A nil opts uses the service
// defaults.
func (s *Service) Compress(ctx context.Context, messages []transcript.Message, opts *Options) (*Result, error) {
	return s.instrumented(ctx, "sync", messages, opts, func(o Options) (*Result, error) {
		return Compress(messages, o)
	})
}

// CompressAsync runs the pipeline with summarizer substitution enabled. A
// nil opts uses the service defaults.
func (s *Service) CompressAsync(ctx context.Context, messages []transcript.Message, opts *Options) (*Result, error) {
	return s.instrumented(ctx, "async", messages, opts, func(o Options) (*Result, error) {
		return CompressAsync(ctx, messages, o)
	})
}

func (s *Service) instrumented(ctx context.Context, mode string, messages []transcript.Message, opts *Options, fn func(Options) (*Result, error)) (*Result, error) {
	ctx, span := s.tracer.Start(ctx, "compression.compress",
		trace.WithAttributes(
			attribute.String("mode", mode),
			attribute.Int("messages_in", len(messages)),
		),
	)
	defer span.End()

	o := s.defaults
	if opts != nil {
		o = *opts
	}

	start := time.Now()
	result, err := fn(o)
	elapsed := time.Since(start)
	if err != nil {
		span.RecordError(err)
		s.errors.Add(ctx, 1,
			metric.WithAttributes(
				attribute.String("mode", mode),
				attribute.String("error_type", "invalid_input"),
			),
		)
		return nil, fmt.Errorf("compression failed: %w", err)
	}

	s.operations.Add(ctx, 1,
		metric.WithAttributes(attribute.String("mode", mode)))
	s.duration.Record(ctx, elapsed.Seconds(),
		metric.WithAttributes(attribute.String("mode", mode)))
	s.ratio.Record(ctx, result.Compression.Ratio,
		metric.WithAttributes(attribute.String("mode", mode)))
	if n := result.Compression.MessagesCompressed; n > 0 {
		s.rewritten.Add(ctx, int64(n),
			metric.WithAttributes(attribute.String("kind", "compressed")))
	}
	if n := result.Compression.MessagesDeduped; n > 0 {
		s.rewritten.Add(ctx, int64(n),
			metric.WithAttributes(attribute.String("kind", "deduped")))
	}

	span.SetAttributes(
		attribute.Float64("compression_ratio", result.Compression.Ratio),
		attribute.Int("messages_out", len(result.Messages)),
		attribute.Int("messages_compressed", result.Compression.MessagesCompressed),
		attribute.Int("messages_deduped", result.Compression.MessagesDeduped),
	)
	if result.Fits != nil {
		span.SetAttributes(attribute.Bool("fits", *result.Fits))
	}

	if s.sink != nil {
		s.sink.CompressionDone(ctx, Event{
			Operation:   mode,
			MessagesIn:  len(messages),
			MessagesOut: len(result.Messages),
			Stats:       result.Compression,
			Duration:    elapsed,
		})
	}

	return result, nil
}

// initMetrics initializes OpenTelemetry metrics.
func (s *Service) initMetrics() error {
	var err error

	s.operations, err = s.meter.Int64Counter(
		"compression.operations_total",
		metric.WithDescription("Total number of compression operations"),
		metric.WithUnit("1"),
	)
	if err != nil {
		return fmt.Errorf("failed to create operations counter: %w", err)
	}

	s.duration, err = s.meter.Float64Histogram(
		"compression.duration_seconds",
		metric.WithDescription("Time spent on compression operations"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1.0, 5.0),
	)
	if err != nil {
		return fmt.Errorf("failed to create duration histogram: %w", err)
	}

	s.ratio, err = s.meter.Float64Histogram(
		"compression.ratio",
		metric.WithDescription("Compression ratios achieved"),
		metric.WithUnit("1"),
		metric.WithExplicitBucketBoundaries(1.0, 1.5, 2.0, 3.0, 5.0, 10.0, 20.0),
	)
	if err != nil {
		return fmt.Errorf("failed to create ratio histogram: %w", err)
	}

	s.rewritten, err = s.meter.Int64Counter(
		"compression.messages_rewritten_total",
		metric.WithDescription("Messages rewritten by compression passes"),
		metric.WithUnit("1"),
	)
	if err != nil {
		return fmt.Errorf("failed to create rewritten counter: %w", err)
	}

	s.errors, err = s.meter.Int64Counter(
		"compression.errors_total",
		metric.WithDescription("Total number of compression errors"),
		metric.WithUnit("1"),
	)
	if err != nil {
		return fmt.Errorf("failed to create errors counter: %w", err)
	}

	return nil
}
