package middleware

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/ahrav/go-concord/internal/domain"
	"github.com/ahrav/go-concord/internal/ports"
)

var _ ports.DebateObserver = (*OTelDebateObserver)(nil)

// OTelDebateObserver translates debate lifecycle notifications into
// OpenTelemetry spans and events. The engine's own span carries the
// debate as a whole; this observer adds one child span per round plus
// start and completion events, so traces show where a debate spends
// its time without the engine depending on tracing vocabulary.
//
// One observer instance can serve any number of engines and debates
// concurrently. Rounds of a single debate run sequentially, so at most
// one round span per debate ID is ever in flight.
type OTelDebateObserver struct {
	tracer trace.Tracer

	// mu guards rounds, the in-flight round span per debate ID.
	mu     sync.Mutex
	rounds map[string]trace.Span
}

// NewOTelDebateObserver creates a debate observer backed by the global
// OpenTelemetry tracer provider.
func NewOTelDebateObserver() *OTelDebateObserver {
	return &OTelDebateObserver{
		tracer: otel.Tracer("debate-observer"),
		rounds: make(map[string]trace.Span),
	}
}

// DebateStarted records the accepted initial proposal on the ambient
// debate span.
func (o *OTelDebateObserver) DebateStarted(ctx context.Context, debateID string, initial domain.Proposal, roundLimit int) {
	trace.SpanFromContext(ctx).AddEvent("debate.started", trace.WithAttributes(
		attribute.String("debate.id", debateID),
		attribute.Int("debate.round_limit", roundLimit),
		attribute.Int("proposal.version", initial.Version),
		attribute.Int("proposal.components", len(initial.Components)),
	))
}

// RoundStarted opens the round span. It stays open until the matching
// RoundCompleted, covering reviewer fan-out and verdict collection.
func (o *OTelDebateObserver) RoundStarted(ctx context.Context, debateID string, number int, proposal domain.Proposal) {
	_, span := o.tracer.Start(ctx, "Debate.Round", trace.WithAttributes(
		attribute.String("debate.id", debateID),
		attribute.Int("round.number", number),
		attribute.Int("proposal.version", proposal.Version),
	))

	o.mu.Lock()
	o.rounds[debateID] = span
	o.mu.Unlock()
}

// RoundCompleted closes the round span with the finalized verdict
// counts.
func (o *OTelDebateObserver) RoundCompleted(ctx context.Context, debateID string, round domain.Round) {
	span := o.takeRound(debateID)
	if span == nil {
		return
	}

	span.SetAttributes(
		attribute.Bool("round.consensus_reached", round.ConsensusReached),
		attribute.Int("round.genuine_approvals", round.GenuineApprovals()),
		attribute.Int("round.dissenting", len(round.Dissent())),
		attribute.Int("round.unavailable", len(round.Unavailable())),
	)
	span.SetStatus(codes.Ok, "round recorded")
	span.End()
}

// DebateCompleted records the terminal artifact on the ambient debate
// span. Any round span left open by an aborted debate is closed here
// so it is not leaked.
func (o *OTelDebateObserver) DebateCompleted(ctx context.Context, debateID string, result domain.Result) {
	if span := o.takeRound(debateID); span != nil {
		span.End()
	}

	outcome := "fallback"
	if result.ConsensusReached {
		outcome = "consensus"
	}
	trace.SpanFromContext(ctx).AddEvent("debate.completed", trace.WithAttributes(
		attribute.String("debate.id", debateID),
		attribute.String("debate.outcome", outcome),
		attribute.Int("debate.total_rounds", result.TotalRounds),
		attribute.Int("debate.final_version", result.FinalProposal.Version),
		attribute.Int("debate.open_concerns", len(result.Concerns)),
	))
}

// takeRound removes and returns the in-flight round span for a debate,
// or nil when none is open.
func (o *OTelDebateObserver) takeRound(debateID string) trace.Span {
	o.mu.Lock()
	defer o.mu.Unlock()

	span, ok := o.rounds[debateID]
	if !ok {
		return nil
	}
	delete(o.rounds, debateID)
	return span
}
