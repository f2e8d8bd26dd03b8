package utils

import (
	"bytes"
	"context"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace/noop"
)

func TestSetupTracing_LogsSpans(t *testing.T) {
	var buf bytes.Buffer
	logger := logrus.New()
	logger.SetOutput(&buf)
	logger.SetLevel(logrus.DebugLevel)

	shutdown := SetupTracing(true, logger)
	t.Cleanup(func() { otel.SetTracerProvider(noop.NewTracerProvider()) })

	_, span := otel.Tracer("test").Start(context.Background(), "acquisition.caching")
	span.SetAttributes(attribute.String("provider", "real-debrid"))
	span.SetStatus(codes.Error, "quota exceeded")
	span.End()

	require.NoError(t, shutdown(context.Background()))
	out := buf.String()
	assert.Contains(t, out, "span=acquisition.caching")
	assert.Contains(t, out, "provider=real-debrid")
	assert.Contains(t, out, "Span failed")
}

func TestSetupTracing_Disabled(t *testing.T) {
	shutdown := SetupTracing(false, logrus.New())
	assert.NoError(t, shutdown(context.Background()))
}

func TestNewLogger(t *testing.T) {
	logger, err := NewLogger("debug", "")
	require.NoError(t, err)
	assert.Equal(t, logrus.DebugLevel, logger.GetLevel())

	logger, err = NewLogger("nonsense", "")
	require.NoError(t, err)
	assert.Equal(t, logrus.InfoLevel, logger.GetLevel())

	logger, err = NewLogger("info", t.TempDir()+"/logs/bridgarr.log")
	require.NoError(t, err)
	logger.Info("hello")
}
