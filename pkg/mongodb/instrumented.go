package mongodb

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/wms-platform/returns-service/pkg/logging"
	"github.com/wms-platform/returns-service/pkg/metrics"
)

// Instrumentation wraps repository operations with a span, metrics and a debug log.
// A zero metrics or logger is allowed.
type Instrumentation struct {
	database string
	metrics  *metrics.Metrics
	logger   *logging.Logger
	tracer   trace.Tracer
}

// NewInstrumentation creates instrumentation for one database
func NewInstrumentation(database string, m *metrics.Metrics, logger *logging.Logger) *Instrumentation {
	return &Instrumentation{
		database: database,
		metrics:  m,
		logger:   logger,
		tracer:   otel.Tracer("mongodb"),
	}
}

// Observe runs fn inside a "mongodb.<operation>" span and records its outcome
func (i *Instrumentation) Observe(ctx context.Context, collection, operation string, fn func(ctx context.Context) error) error {
	if i == nil {
		return fn(ctx)
	}

	ctx, span := i.tracer.Start(ctx, "mongodb."+operation,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("db.system", "mongodb"),
			attribute.String("db.name", i.database),
			attribute.String("db.mongodb.collection", collection),
			attribute.String("db.operation", operation),
		),
	)
	defer span.End()

	start := time.Now()
	err := fn(ctx)
	duration := time.Since(start)

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	} else {
		span.SetStatus(codes.Ok, "")
	}
	if i.metrics != nil {
		i.metrics.RecordMongoDBOperation(collection, operation, err == nil, duration)
	}
	if i.logger != nil {
		i.logger.DatabaseQuery(ctx, collection, operation, duration, err == nil)
	}
	return err
}
