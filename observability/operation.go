package observability

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	apperrors "github.com/kbukum/dirtytables/errors"
)

// Operation tracks one traced operation on a connection.
type Operation struct {
	Name       string
	Connection string
	StartTime  time.Time
	Metrics    *Metrics

	ctx  context.Context
	span trace.Span
}

// StartOperation starts a span for an operation on a connection.
// metrics may be nil.
func StartOperation(ctx context.Context, name, connection string, metrics *Metrics) (context.Context, *Operation) {
	ctx, span := StartSpan(ctx, name, trace.WithAttributes(
		attribute.String(AttrConnection, connection),
	))
	return ctx, &Operation{
		Name:       name,
		Connection: connection,
		StartTime:  time.Now(),
		Metrics:    metrics,
		ctx:        ctx,
		span:       span,
	}
}

// SetAttributes adds attributes to the operation span.
func (o *Operation) SetAttributes(kv ...attribute.KeyValue) {
	o.span.SetAttributes(kv...)
}

// Duration returns the elapsed time since the operation started.
func (o *Operation) Duration() time.Duration {
	return time.Since(o.StartTime)
}

// Status returns "ok" for a nil error, "error" otherwise.
func Status(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}

// End ends the span. A non-nil err is recorded on the span and counted.
func (o *Operation) End(err error) {
	o.span.SetAttributes(
		attribute.String(AttrStatus, Status(err)),
		attribute.Int64(AttrDurationMs, o.Duration().Milliseconds()),
	)
	if err != nil {
		code := string(apperrors.CodeOf(err))
		if code == "" {
			code = "UNKNOWN"
		}
		o.span.RecordError(err)
		o.span.SetStatus(codes.Error, err.Error())
		o.span.SetAttributes(attribute.String(AttrErrorCode, code))
		o.Metrics.RecordError(o.ctx, o.Connection, o.Name, code)
	}
	o.span.End()
}
