package telemetry

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"

	"github.com/tuanvumaihuynh/versioned-catalog/internal/config"
)

func TestInitTracerWithoutCollector(t *testing.T) {
	cleanup, err := InitTracer(context.Background(), config.Otel{ServiceName: "catalog"})
	require.NoError(t, err)
	assert.NoError(t, cleanup(context.Background()))
}

func TestResourceAttributes(t *testing.T) {
	attrs := resourceAttributes(config.Otel{ServiceName: "catalog", K8sPodName: "pod-1"})

	assert.Equal(t, semconv.ServiceName("catalog"), attrs[0])
	assert.Equal(t, semconv.K8SPodName("pod-1"), attrs[1])
	assert.Len(t, attrs, 2)
}

func TestResourceAttributesWithDeployment(t *testing.T) {
	attrs := resourceAttributes(config.Otel{ServiceName: "catalog", ServiceVersion: "1.2.0", Environment: "staging"})

	assert.Equal(t, []attribute.KeyValue{
		semconv.ServiceName("catalog"),
		semconv.ServiceVersion("1.2.0"),
		semconv.DeploymentEnvironment("staging"),
	}, attrs)
}
