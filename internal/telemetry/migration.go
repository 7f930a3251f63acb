package telemetry

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

const migrateScopeName = ScopeName + "/migrate"

// MigrationMetrics records one span per migrated item and the bbmigrate.*
// counters. The zero value is not usable; call NewMigrationMetrics.
type MigrationMetrics struct {
	tracer   trace.Tracer
	items    metric.Int64Counter
	dur      metric.Float64Histogram
	comments metric.Int64Counter
	failures metric.Int64Counter
}

// NewMigrationMetrics creates the instruments. With telemetry disabled the
// global providers are no-ops and recording costs nothing.
func NewMigrationMetrics() *MigrationMetrics {
	m := Meter(migrateScopeName)
	items, _ := m.Int64Counter("bbmigrate.issues.created",
		metric.WithDescription("Destination issues created (placeholders included)"),
	)
	dur, _ := m.Float64Histogram("bbmigrate.issue.duration",
		metric.WithDescription("Time to migrate one issue including comments"),
		metric.WithUnit("ms"),
	)
	comments, _ := m.Int64Counter("bbmigrate.comments.posted",
		metric.WithDescription("Comments and change notes posted"),
	)
	failures, _ := m.Int64Counter("bbmigrate.comments.failed",
		metric.WithDescription("Comments skipped after a permanent failure"),
	)
	return &MigrationMetrics{
		tracer:   Tracer(migrateScopeName),
		items:    items,
		dur:      dur,
		comments: comments,
		failures: failures,
	}
}

// StartItem starts the span for migrating source position pos.
func (m *MigrationMetrics) StartItem(ctx context.Context, pos int, placeholder bool) (context.Context, trace.Span, time.Time) {
	ctx, span := m.tracer.Start(ctx, "migrate.issue",
		trace.WithAttributes(
			attribute.Int("bbmigrate.position", pos),
			attribute.Bool("bbmigrate.placeholder", placeholder),
		),
		trace.WithSpanKind(trace.SpanKindClient),
	)
	return ctx, span, time.Now()
}

// EndItem ends the span, records duration and counts a created item when
// err is nil.
func (m *MigrationMetrics) EndItem(ctx context.Context, span trace.Span, start time.Time, err error) {
	ms := float64(time.Since(start).Milliseconds())
	status := "ok"
	if err != nil {
		status = "error"
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	} else {
		m.items.Add(ctx, 1)
	}
	m.dur.Record(ctx, ms, metric.WithAttributes(attribute.String("status", status)))
	span.End()
}

// CommentPosted counts a posted comment or change note.
func (m *MigrationMetrics) CommentPosted(ctx context.Context, kind string) {
	m.comments.Add(ctx, 1, metric.WithAttributes(attribute.String("kind", kind)))
}

// CommentFailed counts a comment skipped after a permanent failure.
func (m *MigrationMetrics) CommentFailed(ctx context.Context, kind string) {
	m.failures.Add(ctx, 1, metric.WithAttributes(attribute.String("kind", kind)))
}
