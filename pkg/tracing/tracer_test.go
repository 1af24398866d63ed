package tracing

import (
	"context"
	"errors"
	"testing"

	"github.com/richxcame/ridecore/pkg/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.uber.org/zap"
)

func TestInitTracerDisabled(t *testing.T) {
	err := InitTracer(context.Background(), "rides", "test", config.TracingConfig{Enabled: false}, zap.NewNop())
	require.NoError(t, err)
	assert.NoError(t, Shutdown(context.Background()))
}

func TestEndSpanRecordsError(t *testing.T) {
	recorder := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))

	_, span := tp.Tracer("test").Start(context.Background(), "rides.accept")
	EndSpan(span, errors.New("ride already assigned"))

	spans := recorder.Ended()
	require.Len(t, spans, 1)
	assert.Equal(t, codes.Error, spans[0].Status().Code)
	assert.Equal(t, "ride already assigned", spans[0].Status().Description)
}

func TestSamplerDefaults(t *testing.T) {
	assert.Contains(t, Sampler(0, "production").Description(), "0.1")
	assert.NotContains(t, Sampler(0, "development").Description(), "TraceIDRatioBased")
	assert.Contains(t, Sampler(0.25, "production").Description(), "0.25")
}
