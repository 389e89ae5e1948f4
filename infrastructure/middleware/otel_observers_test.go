package middleware

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/trace"

	"github.com/ahrav/go-concord/internal/domain"
	"github.com/ahrav/go-concord/internal/ports"
	"github.com/ahrav/go-concord/internal/testutils"
)

// recordingMetrics captures every collector call so tests can assert
// which metrics the observers emit. Safe for concurrent use.
type recordingMetrics struct {
	mu     sync.Mutex
	events []metricEvent
}

type metricEvent struct {
	kind   string
	name   string
	value  float64
	labels map[string]string
}

func (r *recordingMetrics) RecordLatency(operation string, duration time.Duration, labels map[string]string) {
	r.record("latency", operation, duration.Seconds(), labels)
}

func (r *recordingMetrics) RecordCounter(metric string, value float64, labels map[string]string) {
	r.record("counter", metric, value, labels)
}

func (r *recordingMetrics) RecordGauge(metric string, value float64, labels map[string]string) {
	r.record("gauge", metric, value, labels)
}

func (r *recordingMetrics) RecordHistogram(metric string, value float64, labels map[string]string) {
	r.record("histogram", metric, value, labels)
}

func (r *recordingMetrics) record(kind, name string, value float64, labels map[string]string) {
	copied := make(map[string]string, len(labels))
	for k, v := range labels {
		copied[k] = v
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, metricEvent{kind: kind, name: name, value: value, labels: copied})
}

func (r *recordingMetrics) byName(name string) []metricEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []metricEvent
	for _, ev := range r.events {
		if ev.name == name {
			out = append(out, ev)
		}
	}
	return out
}

var _ ports.MetricsCollector = (*recordingMetrics)(nil)

func TestOTelBudgetObserver_PreCheckCarriesSpan(t *testing.T) {
	observer := NewOTelBudgetObserver(nil)

	ctx := observer.PreCheck(context.Background(), "review.architect", Usage{Calls: 1}, Budget{MaxCalls: 10})

	require.NotNil(t, ctx)
	assert.NotNil(t, trace.SpanFromContext(ctx), "returned context should carry the invocation span")

	// PostCheck without metrics must still finalize the span cleanly.
	assert.NotPanics(t, func() {
		observer.PostCheck(ctx, "review.architect", Usage{Calls: 1}, Budget{MaxCalls: 10}, time.Millisecond, nil)
	})
}

func TestOTelBudgetObserver_SuccessEmitsUsageMetrics(t *testing.T) {
	metrics := &recordingMetrics{}
	observer := NewOTelBudgetObserver(metrics)
	budget := Budget{MaxCalls: 10}

	ctx := observer.PreCheck(context.Background(), "review.architect", Usage{Calls: 4}, budget)
	observer.PostCheck(ctx, "review.architect", Usage{Calls: 4}, budget, 25*time.Millisecond, nil)

	latencies := metrics.byName("budget_invocation")
	require.Len(t, latencies, 1)
	assert.Equal(t, "latency", latencies[0].kind)
	assert.Equal(t, "review.architect", latencies[0].labels["operation"])
	assert.Equal(t, "calls_only", latencies[0].labels["budget_limit"])

	used := metrics.byName("budget_calls_used")
	require.Len(t, used, 1)
	assert.Equal(t, 4.0, used[0].value)

	remaining := metrics.byName("budget_remaining_calls")
	require.Len(t, remaining, 1)
	assert.Equal(t, 6.0, remaining[0].value)

	assert.Empty(t, metrics.byName("budget_exceeded_total"))
}

func TestOTelBudgetObserver_UnlimitedBudgetOmitsRemaining(t *testing.T) {
	metrics := &recordingMetrics{}
	observer := NewOTelBudgetObserver(metrics)
	budget := Budget{}

	ctx := observer.PreCheck(context.Background(), "revise", Usage{Calls: 99}, budget)
	observer.PostCheck(ctx, "revise", Usage{Calls: 99}, budget, time.Millisecond, nil)

	used := metrics.byName("budget_calls_used")
	require.Len(t, used, 1)
	assert.Equal(t, "unlimited", used[0].labels["budget_limit"])
	assert.Empty(t, metrics.byName("budget_remaining_calls"))
}

func TestOTelBudgetObserver_BudgetErrorEmitsExceededCounter(t *testing.T) {
	metrics := &recordingMetrics{}
	observer := NewOTelBudgetObserver(metrics)
	budget := Budget{MaxCalls: 2}
	budgetErr := domain.NewBudgetExceededError("calls", 2, 3, "review.security_guard")

	ctx := observer.PreCheck(context.Background(), "review.security_guard", Usage{Calls: 2}, budget)
	observer.PostCheck(ctx, "review.security_guard", Usage{Calls: 2}, budget, 0, budgetErr)

	exceeded := metrics.byName("budget_exceeded_total")
	require.Len(t, exceeded, 1)
	assert.Equal(t, "counter", exceeded[0].kind)
	assert.Equal(t, 1.0, exceeded[0].value)
	assert.Equal(t, "calls", exceeded[0].labels["limit_type"])
	assert.Equal(t, "review.security_guard", exceeded[0].labels["operation"])

	// A denied invocation tracks no usage gauges; nothing ran.
	assert.Empty(t, metrics.byName("budget_calls_used"))
}

func TestOTelBudgetObserver_GenericErrorSkipsBudgetMetrics(t *testing.T) {
	metrics := &recordingMetrics{}
	observer := NewOTelBudgetObserver(metrics)
	budget := Budget{MaxCalls: 5}

	ctx := observer.PreCheck(context.Background(), "review.architect", Usage{Calls: 1}, budget)
	observer.PostCheck(ctx, "review.architect", Usage{Calls: 1}, budget, time.Millisecond, errors.New("provider unavailable"))

	assert.Len(t, metrics.byName("budget_invocation"), 1, "latency is recorded for failures too")
	assert.Empty(t, metrics.byName("budget_exceeded_total"))
	assert.Empty(t, metrics.byName("budget_calls_used"))
}

// TestOTelBudgetObserver_WiredThroughManager exercises the full
// manager-to-observer path for an admitted and a denied invocation.
func TestOTelBudgetObserver_WiredThroughManager(t *testing.T) {
	metrics := &recordingMetrics{}
	manager := NewBudgetManager(Budget{MaxCalls: 1}, NewOTelBudgetObserver(metrics))
	reviewer := manager.WrapReviewer(testutils.NewMockReviewer(domain.RoleArchitect))
	dctx := testutils.SampleContext()

	_, err := reviewer.Review(context.Background(), dctx)
	require.NoError(t, err)

	_, err = reviewer.Review(context.Background(), dctx)
	require.Error(t, err)

	assert.Len(t, metrics.byName("budget_invocation"), 2)
	assert.Len(t, metrics.byName("budget_exceeded_total"), 1)
	assert.Len(t, metrics.byName("budget_calls_used"), 1)
}

func TestOTelDebateObserver_RoundSpanLifecycle(t *testing.T) {
	observer := NewOTelDebateObserver()
	ctx := context.Background()
	proposal := testutils.SampleProposal()

	observer.RoundStarted(ctx, "debate-1", 1, proposal)
	assert.Equal(t, 1, observer.openRounds())

	round := domain.NewRound(1, proposal, testutils.PanelVerdicts(true))
	observer.RoundCompleted(ctx, "debate-1", round)
	assert.Zero(t, observer.openRounds())

	// Completing a round that never started must not panic.
	assert.NotPanics(t, func() {
		observer.RoundCompleted(ctx, "debate-1", round)
	})
}

func TestOTelDebateObserver_DebateCompletedClosesLeftoverRound(t *testing.T) {
	observer := NewOTelDebateObserver()
	ctx := context.Background()
	proposal := testutils.SampleProposal()

	observer.RoundStarted(ctx, "debate-2", 1, proposal)

	round := domain.NewRound(1, proposal, testutils.PanelVerdicts(false))
	result := domain.NewFallbackResult(round, []domain.Round{round})
	observer.DebateCompleted(ctx, "debate-2", result)

	assert.Zero(t, observer.openRounds(), "completion must close any open round span")
}

func TestOTelDebateObserver_TracksDebatesIndependently(t *testing.T) {
	observer := NewOTelDebateObserver()
	ctx := context.Background()
	proposal := testutils.SampleProposal()

	observer.DebateStarted(ctx, "debate-a", proposal, 10)
	observer.DebateStarted(ctx, "debate-b", proposal, 10)
	observer.RoundStarted(ctx, "debate-a", 1, proposal)
	observer.RoundStarted(ctx, "debate-b", 1, proposal)
	assert.Equal(t, 2, observer.openRounds())

	round := domain.NewRound(1, proposal, testutils.PanelVerdicts(true))
	observer.RoundCompleted(ctx, "debate-a", round)
	assert.Equal(t, 1, observer.openRounds())

	observer.RoundCompleted(ctx, "debate-b", round)
	observer.DebateCompleted(ctx, "debate-a", domain.NewConsensusResult(proposal, []domain.Round{round}))
	observer.DebateCompleted(ctx, "debate-b", domain.NewConsensusResult(proposal, []domain.Round{round}))
	assert.Zero(t, observer.openRounds())
}

// openRounds reports the number of in-flight round spans, for tests.
func (o *OTelDebateObserver) openRounds() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.rounds)
}
