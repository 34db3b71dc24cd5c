package observability

import (
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
)

// ProbeBuildResource exposes buildResource for tests.
func ProbeBuildResource(cfg Config) (*resource.Resource, error) {
	return buildResource(cfg)
}

// ProbeSamplerSpan reports whether the configured sampler samples a fresh root span.
func ProbeSamplerSpan(cfg Config) bool {
	decision := selectSampler(cfg).ShouldSample(sdktrace.SamplingParameters{
		TraceID: trace.TraceID{0x01},
		Name:    "probe",
	})

	return decision.Decision == sdktrace.RecordAndSample
}
