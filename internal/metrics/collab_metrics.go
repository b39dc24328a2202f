package metrics

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

var meter = otel.Meter("wallbounce-metrics")

// CollabMetrics provides metrics collection for collaboration runs
type CollabMetrics struct {
	collabStartedCounter   metric.Int64Counter
	collabCompletedCounter metric.Int64Counter
	collabFailedCounter    metric.Int64Counter
	collabActiveGauge      metric.Int64UpDownCounter
	bounceCountHistogram   metric.Int64Histogram
	invokeDuration         metric.Float64Histogram
	invokeFailedCounter    metric.Int64Counter
	sessionConflictCounter metric.Int64Counter
}

// NewCollabMetrics creates a new collaboration metrics collector
func NewCollabMetrics() (*CollabMetrics, error) {
	collabStartedCounter, err := meter.Int64Counter(
		"wallbounce.collaborations.started",
		metric.WithDescription("Total number of collaboration runs started"),
		metric.WithUnit("{collaboration}"),
	)
	if err != nil {
		return nil, err
	}

	collabCompletedCounter, err := meter.Int64Counter(
		"wallbounce.collaborations.completed",
		metric.WithDescription("Total number of collaboration runs completed successfully"),
		metric.WithUnit("{collaboration}"),
	)
	if err != nil {
		return nil, err
	}

	collabFailedCounter, err := meter.Int64Counter(
		"wallbounce.collaborations.failed",
		metric.WithDescription("Total number of collaboration runs that failed"),
		metric.WithUnit("{collaboration}"),
	)
	if err != nil {
		return nil, err
	}

	collabActiveGauge, err := meter.Int64UpDownCounter(
		"wallbounce.collaborations.active",
		metric.WithDescription("Number of collaboration runs currently in flight"),
		metric.WithUnit("{collaboration}"),
	)
	if err != nil {
		return nil, err
	}

	bounceCountHistogram, err := meter.Int64Histogram(
		"wallbounce.collaboration.bounces",
		metric.WithDescription("Completed phases per collaboration run"),
		metric.WithUnit("{bounce}"),
	)
	if err != nil {
		return nil, err
	}

	invokeDuration, err := meter.Float64Histogram(
		"wallbounce.invocation.duration",
		metric.WithDescription("Duration of individual model invocations in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, err
	}

	invokeFailedCounter, err := meter.Int64Counter(
		"wallbounce.invocations.failed",
		metric.WithDescription("Total number of failed model invocations"),
		metric.WithUnit("{invocation}"),
	)
	if err != nil {
		return nil, err
	}

	sessionConflictCounter, err := meter.Int64Counter(
		"wallbounce.session.conflicts",
		metric.WithDescription("Total number of session write conflicts"),
		metric.WithUnit("{conflict}"),
	)
	if err != nil {
		return nil, err
	}

	return &CollabMetrics{
		collabStartedCounter:   collabStartedCounter,
		collabCompletedCounter: collabCompletedCounter,
		collabFailedCounter:    collabFailedCounter,
		collabActiveGauge:      collabActiveGauge,
		bounceCountHistogram:   bounceCountHistogram,
		invokeDuration:         invokeDuration,
		invokeFailedCounter:    invokeFailedCounter,
		sessionConflictCounter: sessionConflictCounter,
	}, nil
}

// RecordCollaborationStarted records the start of a collaboration run
func (cm *CollabMetrics) RecordCollaborationStarted(ctx context.Context, taskType string) {
	cm.collabStartedCounter.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("task.type", taskType),
		),
	)
	cm.collabActiveGauge.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("task.type", taskType),
		),
	)
}

// RecordCollaborationCompleted records a successful collaboration run
func (cm *CollabMetrics) RecordCollaborationCompleted(ctx context.Context, taskType, quality string, bounces int) {
	cm.collabCompletedCounter.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("task.type", taskType),
			attribute.String("quality", quality),
			attribute.String("status", "completed"),
		),
	)
	cm.bounceCountHistogram.Record(ctx, int64(bounces),
		metric.WithAttributes(
			attribute.String("task.type", taskType),
			attribute.String("quality", quality),
		),
	)
	cm.collabActiveGauge.Add(ctx, -1,
		metric.WithAttributes(
			attribute.String("task.type", taskType),
		),
	)
}

// RecordCollaborationFailed records a collaboration run that failed outright
func (cm *CollabMetrics) RecordCollaborationFailed(ctx context.Context, taskType, errorType string) {
	cm.collabFailedCounter.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("task.type", taskType),
			attribute.String("status", "failed"),
			attribute.String("error.type", errorType),
		),
	)
	cm.collabActiveGauge.Add(ctx, -1,
		metric.WithAttributes(
			attribute.String("task.type", taskType),
		),
	)
}

// RecordInvocation records a single model invocation attempt
func (cm *CollabMetrics) RecordInvocation(ctx context.Context, model, phase string, duration time.Duration, success bool) {
	status := "success"
	if !success {
		status = "failed"
		cm.invokeFailedCounter.Add(ctx, 1,
			metric.WithAttributes(
				attribute.String("model", model),
				attribute.String("phase", phase),
			),
		)
	}
	cm.invokeDuration.Record(ctx, duration.Seconds(),
		metric.WithAttributes(
			attribute.String("model", model),
			attribute.String("phase", phase),
			attribute.String("status", status),
		),
	)
}

// RecordSessionConflict records a session write that lost its version check
func (cm *CollabMetrics) RecordSessionConflict(ctx context.Context, sessionID string) {
	cm.sessionConflictCounter.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("session.id", sessionID),
		),
	)
}
