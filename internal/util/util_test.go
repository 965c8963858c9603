package util

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

func TestTraceFieldsWithoutSpan(t *testing.T) {
	assert.Nil(t, TraceFields(context.Background()))
}

func TestTraceFieldsCarrySpanIDs(t *testing.T) {
	traceID, err := trace.TraceIDFromHex("4bf92f3577b34da6a3ce929d0e0e4736")
	require.NoError(t, err)
	spanID, err := trace.SpanIDFromHex("00f067aa0ba902b7")
	require.NoError(t, err)

	ctx := trace.ContextWithSpanContext(context.Background(), trace.NewSpanContext(trace.SpanContextConfig{
		TraceID: traceID,
		SpanID:  spanID,
	}))

	fields := TraceFields(ctx)
	require.Len(t, fields, 2)
	assert.Equal(t, zap.String("trace_id", "4bf92f3577b34da6a3ce929d0e0e4736"), fields[0])
	assert.Equal(t, zap.String("span_id", "00f067aa0ba902b7"), fields[1])
}

func TestInitLoggerCreatesLogFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "settlement.log")
	t.Cleanup(func() { logger = nil })

	require.NoError(t, InitLogger("production", path))
	GetLogger().Info("settlement approved", zap.Int64("payment_id", 1))
	SyncLogger()

	content, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(content), `"msg":"settlement approved"`)
	assert.Contains(t, string(content), `"service":"settlement-service"`)
}
