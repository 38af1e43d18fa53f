package query

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

const (
	resultHit    = "hit"
	resultMiss   = "miss"
	resultShared = "shared"
	resultError  = "error"
)

var (
	metricsOnce        sync.Once
	queryFetches       metric.Int64Counter
	queryInvalidations metric.Int64Counter
	queryFetchDuration metric.Float64Histogram
)

func initMetrics() {
	metricsOnce.Do(func() {
		meter := otel.Meter("github.com/herdbook/herdbook/internal/query")

		var err error
		queryFetches, err = meter.Int64Counter(
			"query.fetches",
			metric.WithDescription("Query cache reads by result"),
		)
		if err != nil {
			otel.Handle(err)
		}

		queryInvalidations, err = meter.Int64Counter(
			"query.invalidations",
			metric.WithDescription("Invalidated key prefixes"),
		)
		if err != nil {
			otel.Handle(err)
		}

		queryFetchDuration, err = meter.Float64Histogram(
			"query.fetch.duration",
			metric.WithDescription("Duration of fetches that reached the server"),
			metric.WithUnit("s"),
		)
		if err != nil {
			otel.Handle(err)
		}
	})
}

func recordFetch(ctx context.Context, result string) {
	if queryFetches == nil {
		return
	}
	queryFetches.Add(ctx, 1,
		metric.WithAttributes(attribute.String("query.result", result)),
	)
	trace.SpanFromContext(ctx).SetAttributes(attribute.String("query.result", result))
}

func recordInvalidation(ctx context.Context) {
	if queryInvalidations == nil {
		return
	}
	queryInvalidations.Add(ctx, 1)
}

func recordDuration(ctx context.Context, d time.Duration) {
	if queryFetchDuration == nil {
		return
	}
	queryFetchDuration.Record(ctx, d.Seconds())
	trace.SpanFromContext(ctx).SetAttributes(attribute.Float64("query.fetch.duration", d.Seconds()))
}
