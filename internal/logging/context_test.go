package logging

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/trace"
)

func TestContextFieldsEmptyForBackground(t *testing.T) {
	assert.Empty(t, ContextFields(context.Background()))
}

func TestContextIDRoundTrips(t *testing.T) {
	ctx := context.Background()
	assert.Empty(t, ContextIDFromContext(ctx))
	assert.Empty(t, SessionIDFromContext(ctx))
	assert.Empty(t, RequestIDFromContext(ctx))

	ctx = WithContextID(ctx, "ctx-1")
	ctx = WithSessionID(ctx, "sess-1")
	ctx = WithRequestID(ctx, "req-1")

	assert.Equal(t, "ctx-1", ContextIDFromContext(ctx))
	assert.Equal(t, "sess-1", SessionIDFromContext(ctx))
	assert.Equal(t, "req-1", RequestIDFromContext(ctx))
}

func TestContextFieldsCollectKnownIDs(t *testing.T) {
	ctx := WithRequestID(WithSessionID(WithContextID(context.Background(), "c"), "s"), "r")

	fields := ContextFields(ctx)

	require.Len(t, fields, 3)
	assert.Equal(t, "context.id", fields[0].Key)
	assert.Equal(t, "session.id", fields[1].Key)
	assert.Equal(t, "request.id", fields[2].Key)
}

func TestContextFieldsIncludeTrace(t *testing.T) {
	tid, err := trace.TraceIDFromHex("0102030405060708090a0b0c0d0e0f10")
	require.NoError(t, err)
	sid, err := trace.SpanIDFromHex("0102030405060708")
	require.NoError(t, err)
	sc := trace.NewSpanContext(trace.SpanContextConfig{TraceID: tid, SpanID: sid})
	ctx := trace.ContextWithSpanContext(context.Background(), sc)

	fields := ContextFields(ctx)

	require.Len(t, fields, 2)
	assert.Equal(t, "trace_id", fields[0].Key)
	assert.Equal(t, "span_id", fields[1].Key)
}
