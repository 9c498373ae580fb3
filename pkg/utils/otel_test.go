package utils

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/log/global"
	sdklog "go.opentelemetry.io/otel/sdk/log"
)

func TestTelemetryConfigEnabled(t *testing.T) {
	assert.False(t, TelemetryConfig{}.Enabled())
	assert.True(t, TelemetryConfig{DSN: "https://token@api.uptrace.dev/1"}.Enabled())
	assert.True(t, TelemetryConfig{Stdout: new(bytes.Buffer)}.Enabled())
}

func TestSetupOTelSDKDisabled(t *testing.T) {
	before := global.GetLoggerProvider()

	shutdown, err := SetupOTelSDK(context.Background(), TelemetryConfig{})
	require.NoError(t, err)
	require.NotNil(t, shutdown)

	assert.Equal(t, before, global.GetLoggerProvider())
	assert.NoError(t, shutdown(context.Background()))
}

func TestSetupOTelSDKStdout(t *testing.T) {
	before := global.GetLoggerProvider()
	t.Cleanup(func() { global.SetLoggerProvider(before) })

	var out bytes.Buffer
	shutdown, err := SetupOTelSDK(context.Background(), TelemetryConfig{Stdout: &out})
	require.NoError(t, err)

	_, ok := global.GetLoggerProvider().(*sdklog.LoggerProvider)
	assert.True(t, ok)

	assert.NoError(t, shutdown(context.Background()))
	// a second call has nothing left to shut down
	assert.NoError(t, shutdown(context.Background()))
}
