// Package observability wires OpenTelemetry tracing and metrics for
// dirty-table cleanup runs.
//
// Exporting is opt-in: with an empty endpoint Setup leaves the global no-op
// providers in place and every span and instrument stays free.
//
//	shutdown, err := observability.Setup(ctx, cfg, "dirtytables", log)
//	defer shutdown(ctx)
//
//	metrics, err := observability.NewMetrics(observability.Meter(observability.InstrumentationName))
//	ctx, op := observability.StartOperation(ctx, observability.SpanTruncate, "test", metrics)
//	err = truncate(ctx)
//	op.End(err)
package observability
