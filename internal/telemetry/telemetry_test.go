package telemetry

import (
	"context"
	"testing"

	"qfree/queue-service/internal/logging"

	"github.com/stretchr/testify/assert"
	"go.opentelemetry.io/otel/sdk/trace"
)

func TestSetupWithoutEndpointIsNoop(t *testing.T) {
	shutdown := Setup(context.Background(), Config{ServiceName: "queue-service"}, logging.Discard())
	assert.NoError(t, shutdown(context.Background()))
}

func TestSamplerRootDecisions(t *testing.T) {
	root := trace.SamplingParameters{ParentContext: context.Background(), Name: "GET /api/queues"}

	assert.Equal(t, trace.RecordAndSample, Sampler(1).ShouldSample(root).Decision)
	assert.Equal(t, trace.RecordAndSample, Sampler(2.5).ShouldSample(root).Decision)
	assert.Equal(t, trace.Drop, Sampler(0).ShouldSample(root).Decision)
	assert.Equal(t, trace.Drop, Sampler(-1).ShouldSample(root).Decision)
}

func TestServiceResourceNamesService(t *testing.T) {
	res := serviceResource(context.Background(), "queue-service", logging.Discard())
	found := false
	for _, attr := range res.Attributes() {
		if attr.Key == "service.name" {
			found = true
			assert.Equal(t, "queue-service", attr.Value.AsString())
		}
	}
	assert.True(t, found, "service.name attribute missing")
}
