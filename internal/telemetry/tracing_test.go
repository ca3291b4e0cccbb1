package telemetry

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestNewTracerProviderRequiresExporter(t *testing.T) {
	t.Parallel()

	_, err := NewTracerProvider(context.Background(), ServiceName, nil)
	require.Error(t, err)
}

func TestNewTracerProviderExportsSynchronously(t *testing.T) {
	t.Parallel()

	exporter := tracetest.NewInMemoryExporter()
	tp, err := NewTracerProvider(context.Background(), ServiceName, exporter)
	require.NoError(t, err)
	t.Cleanup(func() { _ = tp.Shutdown(context.Background()) })

	_, span := Tracer(tp).Start(context.Background(), "DownloadPage")
	span.End()

	spans := exporter.GetSpans()
	require.Len(t, spans, 1)
	assert.Equal(t, "DownloadPage", spans[0].Name)
	assert.Equal(t, InstrumentationName, spans[0].InstrumentationScope.Name)

	var service string
	for _, kv := range spans[0].Resource.Attributes() {
		if kv.Key == "service.name" {
			service = kv.Value.AsString()
		}
	}
	assert.Equal(t, ServiceName, service)
}

func TestLogExporterWritesSpans(t *testing.T) {
	t.Parallel()

	core, logs := observer.New(zapcore.DebugLevel)
	exporter := NewLogExporter(zap.New(core))
	tp, err := NewTracerProvider(context.Background(), ServiceName, exporter)
	require.NoError(t, err)

	ctx, parent := Tracer(tp).Start(context.Background(), "DownloadPage")
	_, child := Tracer(tp).Start(ctx, "FetchResource")
	child.SetAttributes(attribute.String("url.full", "https://example.com/a.png"))
	child.SetStatus(codes.Error, "http status 404")
	child.End()
	parent.End()

	entries := logs.All()
	require.Len(t, entries, 2)
	assert.Equal(t, "span FetchResource", entries[0].Message)
	fields := entries[0].ContextMap()
	assert.Equal(t, "https://example.com/a.png", fields["url.full"])
	assert.Equal(t, "Error", fields["status"])
	assert.Equal(t, "http status 404", fields["status_description"])
	assert.Contains(t, fields, "parent_id")
	assert.Equal(t, "span DownloadPage", entries[1].Message)
	assert.NotContains(t, entries[1].ContextMap(), "parent_id")

	require.NoError(t, tp.Shutdown(context.Background()))
}

func TestLogExporterStopsAfterShutdown(t *testing.T) {
	t.Parallel()

	core, logs := observer.New(zapcore.DebugLevel)
	exporter := NewLogExporter(zap.New(core))
	require.NoError(t, exporter.Shutdown(context.Background()))
	require.NoError(t, exporter.ExportSpans(context.Background(), tracetest.SpanStubs{{Name: "late"}}.Snapshots()))
	assert.Zero(t, logs.Len())
}
