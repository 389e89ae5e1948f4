// Package application orchestrates debates: it wires reviewer
// capabilities into rounds, tracks consensus, and assembles the
// terminal result. All external calls flow through the resilient
// Invoker, so the orchestration layer itself never blocks on anything
// but the invocation boundary.
package application

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/ahrav/go-concord/internal/domain"
	"github.com/ahrav/go-concord/internal/ports"
)

// EngineConfig holds the tunable parameters for debate execution.
// The zero value is usable; every field falls back to its package
// default.
type EngineConfig struct {
	// RoundLimit caps the number of rounds per debate when the caller
	// passes no explicit limit to StartDebate.
	RoundLimit int `yaml:"round_limit" validate:"omitempty,min=1,max=100"`

	// DebateTimeout bounds the whole debate. When it expires, the
	// in-flight round finishes collecting verdicts and the debate is
	// force-terminated with a fallback decision. Zero means no debate
	// timeout beyond what the caller's context imposes.
	DebateTimeout time.Duration `yaml:"debate_timeout" validate:"omitempty,min=0"`

	// MaxConcurrency limits concurrent reviewer invocations per round.
	MaxConcurrency int `yaml:"max_concurrency" validate:"omitempty,min=1,max=64"`

	// Invoker configures retry, backoff, and per-attempt timeouts for
	// every reviewer and reviser call.
	Invoker InvokerConfig `yaml:"invoker"`
}

// Panel binds the reviewer capabilities for one debate: the reviewing
// seats plus the reviser that produces the next proposal version
// between rounds.
type Panel struct {
	// Reviewers holds one capability per seat. Every role in
	// domain.AllRoles must be covered exactly once.
	Reviewers []ports.Reviewer

	// Reviser produces proposal revisions from round feedback.
	Reviser ports.Reviser
}

// Engine drives debates to termination. It owns no per-debate state;
// a single Engine can run any number of debates concurrently.
type Engine struct {
	config      EngineConfig
	invoker     *Invoker
	coordinator *RoundCoordinator
	revision    *RevisionStep
	metrics     ports.MetricsCollector
	observer    ports.DebateObserver
	tracer      trace.Tracer
}

// NewEngine creates a debate engine with the provided configuration.
// The metrics collector and observer may be nil; they default to
// no-ops.
func NewEngine(config EngineConfig, metrics ports.MetricsCollector, observer ports.DebateObserver) *Engine {
	invoker := NewInvoker(config.Invoker, metrics)
	return &Engine{
		config:      config,
		invoker:     invoker,
		coordinator: NewRoundCoordinator(invoker, config.MaxConcurrency),
		revision:    NewRevisionStep(invoker),
		metrics:     metrics,
		observer:    observer,
		tracer:      otel.Tracer("debate-engine"),
	}
}

// StartDebate runs a full debate to termination and blocks until the
// result is available.
//
// The initial proposal and panel are validated before any round
// executes; a malformed proposal or an incomplete panel fails fast with
// a domain.ValidationError and no partial debate state. A roundLimit of
// zero selects the configured default; a negative value is rejected.
//
// The debate ends when a round reaches unanimous approval, when the
// round limit is exhausted, or when the debate deadline passes between
// phases. The last two cases select the fallback outcome. Cancelling
// ctx aborts the debate with an error once the in-flight round has
// finished collecting.
func (eng *Engine) StartDebate(
	ctx context.Context,
	initial domain.Proposal,
	panel Panel,
	roundLimit int,
) (domain.Result, error) {
	roundLimit, err := eng.resolveRoundLimit(roundLimit)
	if err != nil {
		return domain.Result{}, err
	}
	if err := validatePanel(panel); err != nil {
		return domain.Result{}, err
	}
	if err := initial.Validate(); err != nil {
		return domain.Result{}, err
	}

	debateID, err := newDebateID()
	if err != nil {
		return domain.Result{}, fmt.Errorf("generate debate id: %w", err)
	}

	ctx, span := eng.tracer.Start(ctx, "Engine.StartDebate",
		trace.WithAttributes(
			attribute.String("debate.id", debateID),
			attribute.Int("debate.round_limit", roundLimit),
			attribute.Int("debate.panel_size", len(panel.Reviewers)),
			attribute.Int("proposal.version", initial.Version),
			attribute.Int("proposal.components", len(initial.Components)),
		),
	)
	defer span.End()

	start := time.Now()
	deadline := eng.debateDeadline(ctx, start)
	tracker := NewConsensusTracker(roundLimit)

	if eng.observer != nil {
		eng.observer.DebateStarted(ctx, debateID, initial, roundLimit)
	}

	result, err := eng.run(ctx, debateID, initial, panel, tracker, deadline)
	if err != nil {
		span.RecordError(err)
		return domain.Result{}, err
	}

	span.SetAttributes(
		attribute.Bool("debate.consensus_reached", result.ConsensusReached),
		attribute.Int("debate.total_rounds", result.TotalRounds),
		attribute.Int("debate.final_version", result.FinalProposal.Version),
		attribute.Int64("debate.duration_ms", time.Since(start).Milliseconds()),
	)
	eng.recordDebate(result, time.Since(start))
	if eng.observer != nil {
		eng.observer.DebateCompleted(ctx, debateID, result)
	}
	return result, nil
}

// run executes the round/revision loop until a terminal condition.
func (eng *Engine) run(
	ctx context.Context,
	debateID string,
	initial domain.Proposal,
	panel Panel,
	tracker *ConsensusTracker,
	deadline time.Time,
) (domain.Result, error) {
	base := domain.NewDebateContext()
	base = domain.With(base, domain.KeyDebateID, debateID)
	base = domain.With(base, domain.KeyRoundLimit, tracker.RoundLimit())

	current := initial.Clone()
	var lastVerdicts []domain.Verdict

	for !tracker.LimitReached() {
		// The deadline is only consulted between phases so a dispatched
		// round always finishes collecting verdicts.
		if expired(deadline) {
			break
		}
		if err := ctx.Err(); err != nil {
			return eng.abort(tracker, err)
		}

		number := tracker.NextRoundNumber()
		dctx := domain.With(base, domain.KeyRoundNumber, number)
		dctx = domain.With(dctx, domain.KeyProposal, current)
		if len(lastVerdicts) > 0 {
			dctx = domain.With(dctx, domain.KeyPriorFeedback, lastVerdicts)
		}

		if eng.observer != nil {
			eng.observer.RoundStarted(ctx, debateID, number, current)
		}

		round := eng.coordinator.ExecuteRound(ctx, number, current, panel.Reviewers, dctx)
		if err := tracker.Record(round); err != nil {
			return domain.Result{}, fmt.Errorf("record round %d: %w", number, err)
		}
		eng.recordRound(round)
		if eng.observer != nil {
			eng.observer.RoundCompleted(ctx, debateID, round)
		}

		if round.ConsensusReached {
			break
		}
		lastVerdicts = round.Verdicts

		if tracker.LimitReached() || expired(deadline) {
			break
		}
		if err := ctx.Err(); err != nil {
			return eng.abort(tracker, err)
		}

		rdctx := domain.With(dctx, domain.KeyPriorFeedback, round.Verdicts)
		revised, applied := eng.revision.Apply(ctx, panel.Reviser, current, rdctx)
		if applied {
			current = revised
		}
	}

	result, err := tracker.Finalize()
	if err != nil {
		return domain.Result{}, fmt.Errorf("debate terminated before any round completed: %w", err)
	}
	return result, nil
}

// abort distinguishes a caller deadline from an explicit cancellation.
// A deadline is the debate-level timeout and still yields a fallback
// result when at least one round completed; a cancellation always
// surfaces as an error.
func (eng *Engine) abort(tracker *ConsensusTracker, cause error) (domain.Result, error) {
	if errors.Is(cause, context.DeadlineExceeded) && tracker.History().Len() > 0 {
		return tracker.Finalize()
	}
	return domain.Result{}, fmt.Errorf("debate aborted: %w", cause)
}

// resolveRoundLimit maps the caller's argument onto an effective limit.
func (eng *Engine) resolveRoundLimit(roundLimit int) (int, error) {
	if roundLimit < 0 {
		verr := domain.NewValidationError("debate")
		verr.Addf("round limit must not be negative, got %d", roundLimit)
		return 0, verr
	}
	if roundLimit == 0 {
		roundLimit = eng.config.RoundLimit
	}
	if roundLimit == 0 {
		roundLimit = DefaultRoundLimit
	}
	return roundLimit, nil
}

// debateDeadline combines the configured debate timeout with any
// deadline already carried by the caller's context, whichever is
// sooner.
func (eng *Engine) debateDeadline(ctx context.Context, start time.Time) time.Time {
	var deadline time.Time
	if eng.config.DebateTimeout > 0 {
		deadline = start.Add(eng.config.DebateTimeout)
	}
	if d, ok := ctx.Deadline(); ok && (deadline.IsZero() || d.Before(deadline)) {
		deadline = d
	}
	return deadline
}

func expired(deadline time.Time) bool {
	return !deadline.IsZero() && !time.Now().Before(deadline)
}

// validatePanel verifies the reviewer set before any round executes:
// every required role present exactly once, every capability
// well-formed, and a reviser available for the revision phase.
func validatePanel(panel Panel) error {
	verr := domain.NewValidationError("panel")

	seen := make(map[domain.Role]bool, len(panel.Reviewers))
	for i, reviewer := range panel.Reviewers {
		if reviewer == nil {
			verr.Addf("reviewer %d is nil", i)
			continue
		}
		role := reviewer.Role()
		if !role.Valid() {
			verr.Addf("reviewer %d has unknown role %q", i, role)
			continue
		}
		if seen[role] {
			verr.Addf("role %q supplied more than once", role)
			continue
		}
		seen[role] = true
		if err := reviewer.Validate(); err != nil {
			verr.Addf("reviewer %q: %v", role, err)
		}
	}
	for _, role := range domain.AllRoles() {
		if !seen[role] {
			verr.Addf("required role %q missing from panel", role)
		}
	}

	if panel.Reviser == nil {
		verr.AddError("reviser is required")
	} else if err := panel.Reviser.Validate(); err != nil {
		verr.Addf("reviser: %v", err)
	}

	return verr.ErrOrNil()
}

// recordRound emits per-round metrics.
func (eng *Engine) recordRound(round domain.Round) {
	if eng.metrics == nil {
		return
	}
	labels := map[string]string{
		"consensus": fmt.Sprintf("%t", round.ConsensusReached),
	}
	eng.metrics.RecordCounter("debate_rounds_total", 1, labels)
	eng.metrics.RecordHistogram("debate_round_approvals", float64(round.GenuineApprovals()), nil)
	eng.metrics.RecordGauge("debate_proposal_version", float64(round.Proposal.Version), nil)
}

// recordDebate emits terminal debate metrics.
func (eng *Engine) recordDebate(result domain.Result, elapsed time.Duration) {
	if eng.metrics == nil {
		return
	}
	labels := map[string]string{
		"outcome": "fallback",
	}
	if result.ConsensusReached {
		labels["outcome"] = "consensus"
	}
	eng.metrics.RecordCounter("debates_total", 1, labels)
	eng.metrics.RecordHistogram("debate_rounds_used", float64(result.TotalRounds), labels)
	eng.metrics.RecordLatency("debate", elapsed, labels)
}

// newDebateID returns a short random identifier for correlating
// observer callbacks, spans, and metrics of one debate.
func newDebateID() (string, error) {
	var buf [8]byte
	if _, err := rand.Read(buf[:]); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf[:]), nil
}
