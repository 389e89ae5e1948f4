package middleware

import (
	"context"
	"errors"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/ahrav/go-concord/internal/domain"
	"github.com/ahrav/go-concord/internal/ports"
)

var _ BudgetObserver = (*OTelBudgetObserver)(nil)

// OTelBudgetObserver implements observability for budget operations
// using OpenTelemetry tracing. It creates one span per admitted or
// denied invocation, records threshold events as consumption
// approaches the cap, and mirrors usage into the metrics collector.
//
// The observer carries no per-invocation state; the span travels in
// the context PreCheck returns, so one observer instance serves
// concurrent invocations safely.
type OTelBudgetObserver struct {
	metrics ports.MetricsCollector
	tracer  trace.Tracer
}

// NewOTelBudgetObserver creates a new OpenTelemetry budget observer.
// The metrics collector may be nil; spans are still produced.
func NewOTelBudgetObserver(metrics ports.MetricsCollector) *OTelBudgetObserver {
	return &OTelBudgetObserver{
		metrics: metrics,
		tracer:  otel.Tracer("budget-manager"),
	}
}

// PreCheck implements the BudgetObserver interface. It starts an
// OpenTelemetry span for the invocation and records the admission-time
// budget state and threshold warnings. The returned context carries
// the span for PostCheck.
func (o *OTelBudgetObserver) PreCheck(ctx context.Context, op string, usage Usage, budget Budget) context.Context {
	ctx, span := o.tracer.Start(ctx, "BudgetManager.Invoke",
		trace.WithAttributes(attribute.String("budget.operation", op)),
	)
	addBudgetAttributes(span, usage, budget)
	checkBudgetThresholds(span, usage, budget)
	return ctx
}

// PostCheck implements the BudgetObserver interface. It finalizes the
// span started by PreCheck, records metrics, and handles any error
// conditions that occurred.
func (o *OTelBudgetObserver) PostCheck(
	ctx context.Context,
	op string,
	usage Usage,
	budget Budget,
	elapsed time.Duration,
	err error,
) {
	span := trace.SpanFromContext(ctx)
	defer span.End()

	addBudgetAttributes(span, usage, budget)

	if o.metrics != nil {
		o.metrics.RecordLatency("budget_invocation", elapsed, budgetMetricLabels(op, budget))
	}

	if err != nil {
		var budgetErr *domain.BudgetExceededError
		if errors.As(err, &budgetErr) {
			span.AddEvent("budget.exceeded", trace.WithAttributes(
				attribute.String("limit_type", budgetErr.LimitType),
				attribute.Int64("limit_value", budgetErr.Limit),
				attribute.Int64("used_value", budgetErr.Used),
			))
			span.SetStatus(codes.Error, "budget limit exceeded")

			if o.metrics != nil {
				labels := budgetMetricLabels(op, budget)
				labels["limit_type"] = budgetErr.LimitType
				o.metrics.RecordCounter("budget_exceeded_total", 1, labels)
			}
		} else {
			span.SetStatus(codes.Error, err.Error())
		}
		return
	}

	span.AddEvent("budget.usage_tracked", trace.WithAttributes(
		attribute.Int64("calls_made", usage.Calls),
	))

	o.updateMetrics(op, usage, budget)
	span.SetStatus(codes.Ok, "invocation within budget")
}

// addBudgetAttributes sets OpenTelemetry span attributes for budget
// tracking: current usage, remaining budget, and configuration.
func addBudgetAttributes(span trace.Span, usage Usage, budget Budget) {
	span.SetAttributes(attribute.Int64("budget.calls_made", usage.Calls))

	if budget.MaxCalls > 0 {
		span.SetAttributes(
			attribute.Int64("budget.max_calls", budget.MaxCalls),
			attribute.Int64("budget.remaining_calls", budget.MaxCalls-usage.Calls),
		)
	}
}

// checkBudgetThresholds examines usage against fixed thresholds and
// generates span events for warning conditions to allow proactive
// monitoring before the cap trips.
func checkBudgetThresholds(span trace.Span, usage Usage, budget Budget) {
	// These thresholds may be configurable in future versions.
	const warningThreshold = 0.8
	const criticalThreshold = 0.9

	if budget.MaxCalls <= 0 {
		return
	}

	usagePercentage := float64(usage.Calls) / float64(budget.MaxCalls)
	if usagePercentage >= criticalThreshold {
		span.AddEvent("budget.threshold.critical", trace.WithAttributes(
			attribute.String("resource_type", "calls"),
			attribute.Float64("usage_percentage", usagePercentage*100),
		))
	} else if usagePercentage >= warningThreshold {
		span.AddEvent("budget.threshold.warning", trace.WithAttributes(
			attribute.String("resource_type", "calls"),
			attribute.Float64("usage_percentage", usagePercentage*100),
		))
	}
}

// updateMetrics sends current budget usage to the metrics collector.
func (o *OTelBudgetObserver) updateMetrics(op string, usage Usage, budget Budget) {
	if o.metrics == nil {
		return
	}

	labels := budgetMetricLabels(op, budget)
	o.metrics.RecordGauge("budget_calls_used", float64(usage.Calls), labels)

	if budget.MaxCalls > 0 {
		remaining := budget.MaxCalls - usage.Calls
		o.metrics.RecordGauge("budget_remaining_calls", float64(remaining), labels)
	}
}

// budgetMetricLabels creates the standard set of metric labels for
// budget observability.
func budgetMetricLabels(op string, budget Budget) map[string]string {
	return map[string]string{
		"budget_limit": budgetLimitLabel(budget),
		"operation":    op,
	}
}

// budgetLimitLabel creates a descriptive label for the current budget
// limits.
func budgetLimitLabel(budget Budget) string {
	if budget.MaxCalls > 0 {
		return "calls_only"
	}
	return "unlimited"
}
