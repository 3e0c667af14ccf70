package tracing

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chicogong/ytagents/pkg/logger"
)

func TestInit_Disabled(t *testing.T) {
	shutdown := Init(context.Background(), logger.Nop(), false, "")
	require.NotNil(t, shutdown)
	assert.NoError(t, shutdown(context.Background()))

	_, span := Tracer().Start(context.Background(), "noop")
	span.End()
	assert.False(t, span.SpanContext().IsValid())
}

func TestInit_Stdout(t *testing.T) {
	t.Setenv("OTEL_EXPORTER_OTLP_ENDPOINT", "")

	shutdown := Init(context.Background(), logger.Nop(), true, "ytagents-test")
	defer shutdown(context.Background())

	_, span := Tracer().Start(context.Background(), "stage")
	defer span.End()
	assert.True(t, span.SpanContext().IsValid())
}
