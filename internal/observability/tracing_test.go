package observability

import (
	"context"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSetupTracingDefaultEndpoint(t *testing.T) {
	cfg := Config{
		Endpoint:    "",
		Environment: "test",
		ServiceName: "test-service",
	}

	ctx := context.Background()
	shutdown, err := SetupTracing(ctx, cfg)

	require.NoError(t, err)
	require.NotNil(t, shutdown)

	assert.NoError(t, shutdown(ctx))
}

func TestSetupTracingSetsServiceEnv(t *testing.T) {
	t.Setenv("OTEL_SERVICE_NAME", "")
	t.Setenv("OTEL_RESOURCE_ATTRIBUTES", "")

	ctx := context.Background()
	shutdown, err := SetupTracing(ctx, Config{
		ServiceName: "heirloom",
		Environment: "staging",
	})
	require.NoError(t, err)
	defer func() { _ = shutdown(ctx) }()

	assert.Equal(t, "heirloom", os.Getenv("OTEL_SERVICE_NAME"))
	assert.Equal(t, "deployment.environment=staging", os.Getenv("OTEL_RESOURCE_ATTRIBUTES"))
}
