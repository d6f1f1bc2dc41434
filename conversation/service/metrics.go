package service

import (
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	"go.opentelemetry.io/otel/trace"
)

const instrumentationName = "llm-arena/conversation"

var tracer trace.Tracer = otel.Tracer(instrumentationName)

type streamMetrics struct {
	chunks   metric.Int64Counter
	branches metric.Int64Counter
}

func newStreamMetrics() streamMetrics {
	meter := otel.Meter(instrumentationName)

	chunks, err := meter.Int64Counter("arena_stream_chunks",
		metric.WithDescription("Chunks relayed from model backends"))
	if err != nil {
		chunks = noop.Int64Counter{}
	}
	branches, err := meter.Int64Counter("arena_branch_results",
		metric.WithDescription("Finished generation branches by final status"))
	if err != nil {
		branches = noop.Int64Counter{}
	}
	return streamMetrics{chunks: chunks, branches: branches}
}
