package telemetry

import (
	"bytes"
	"context"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSetupTracingDefaults(t *testing.T) {
	ctx := context.Background()
	provider, err := SetupTracing(ctx, Options{})
	require.NoError(t, err)
	require.NotNil(t, provider)
	require.NoError(t, provider.Shutdown(ctx))
}

func TestSetupTracingLogsSpans(t *testing.T) {
	var buf bytes.Buffer
	ctx := context.Background()
	provider, err := SetupTracing(ctx, Options{ServiceName: "wlanboot-test", LogSpans: true, Logger: zerolog.New(&buf)})
	require.NoError(t, err)

	_, span := provider.Tracer("test").Start(ctx, "probe")
	span.End()
	require.NoError(t, provider.Shutdown(ctx))
	assert.Contains(t, buf.String(), `"component":"otel"`)
	assert.Contains(t, buf.String(), `"span_name":"probe"`)
}

func TestSetupTracingRejectsEmptyEndpoint(t *testing.T) {
	_, err := SetupTracing(context.Background(), Options{Endpoint: "https://"})
	require.Error(t, err)
}

func TestSpanRecorder(t *testing.T) {
	rec := NewSpanRecorder()
	provider, err := SetupTracing(context.Background(), Options{})
	require.NoError(t, err)
	provider.RegisterSpanProcessor(rec)

	_, a := provider.Tracer("test").Start(context.Background(), "a")
	a.End()
	assert.NotNil(t, rec.FirstSpanNamed("a"))
	assert.Nil(t, rec.FirstSpanNamed("b"))
	rec.Reset()
	assert.Empty(t, rec.Completed())
	require.NoError(t, provider.Shutdown(context.Background()))
}
