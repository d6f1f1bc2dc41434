package service

import (
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	"go.opentelemetry.io/otel/trace"
)

const instrumentationName = "llm-arena/rating"

var tracer trace.Tracer = otel.Tracer(instrumentationName)

type engineMetrics struct {
	updates   metric.Int64Counter
	conflicts metric.Int64Counter
}

// newEngineMetrics binds to the global meter provider, which observability
// setup points at the prometheus exporter.
func newEngineMetrics() engineMetrics {
	meter := otel.Meter(instrumentationName)

	updates, err := meter.Int64Counter("arena_rating_updates",
		metric.WithDescription("Rating pair updates by match result"))
	if err != nil {
		updates = noop.Int64Counter{}
	}
	conflicts, err := meter.Int64Counter("arena_rating_conflicts",
		metric.WithDescription("Optimistic concurrency conflicts while updating ratings"))
	if err != nil {
		conflicts = noop.Int64Counter{}
	}
	return engineMetrics{updates: updates, conflicts: conflicts}
}
