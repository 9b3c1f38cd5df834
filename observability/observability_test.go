package observability

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestNopTracer(t *testing.T) {
	tracer := NopTracer()
	ctx := context.Background()
	ctx2, span := tracer.StartSpan(ctx, "test")
	assert.Equal(t, ctx, ctx2)
	span.SetTag("key", "value")
	span.SetError(nil)
	span.Finish()
}

func TestZapLoggerFields(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	log := NewZapLogger(zap.New(core)).With(String("tool", "merge"))

	log.Info("done", Int("files", 3), Int64("bytes", 42), Float64("ratio", 0.5), Error("error", errors.New("boom")))
	log.Debug("quiet")

	entries := logs.All()
	require.Len(t, entries, 2)
	fields := entries[0].ContextMap()
	assert.Equal(t, "merge", fields["tool"])
	assert.Equal(t, int64(3), fields["files"])
	assert.Equal(t, int64(42), fields["bytes"])
	assert.Equal(t, 0.5, fields["ratio"])
	assert.Equal(t, "boom", fields["error"])
	assert.Equal(t, zapcore.DebugLevel, entries[1].Level)
}

func TestNewLogger(t *testing.T) {
	logger, level, err := NewLogger("warn", "console")
	require.NoError(t, err)
	assert.NotNil(t, logger)
	assert.Equal(t, zapcore.WarnLevel, level.Level())
	level.SetLevel(zapcore.DebugLevel)
	assert.True(t, logger.Core().Enabled(zapcore.DebugLevel))

	_, _, err = NewLogger("loud", "json")
	assert.Error(t, err)
	_, _, err = NewLogger("info", "xml")
	assert.Error(t, err)
}

func TestOtelTracerRecordsSpans(t *testing.T) {
	rec := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(rec))
	p := NewProviderFrom(tp)

	_, span := p.Tracer().StartSpan(context.Background(), "tool.compress")
	span.SetTag("tool", "compress")
	span.SetTag("files", 2)
	span.SetError(errors.New("bad pdf"))
	span.Finish()

	ended := rec.Ended()
	require.Len(t, ended, 1)
	s := ended[0]
	assert.Equal(t, "tool.compress", s.Name())
	assert.Contains(t, s.Attributes(), attribute.String("tool", "compress"))
	assert.Contains(t, s.Attributes(), attribute.Int("files", 2))
	assert.Equal(t, codes.Error, s.Status().Code)
	assert.Len(t, s.Events(), 1)
	require.NoError(t, p.Shutdown(context.Background()))
}

func TestDisabledProviderIsNoop(t *testing.T) {
	p, err := NewProvider(TracingConfig{})
	require.NoError(t, err)
	ctx, span := p.Tracer().StartSpan(context.Background(), "x")
	assert.NotNil(t, ctx)
	span.Finish()
	_, err = NewProvider(TracingConfig{Enabled: true, Exporter: "jaeger"})
	assert.Error(t, err)
}
