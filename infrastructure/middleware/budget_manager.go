// Package middleware provides cross-cutting concerns for the debate
// engine. It implements the wrapper pattern to keep panel capabilities
// clean while adding invocation budgets and observability.
package middleware

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/ahrav/go-concord/internal/application"
	"github.com/ahrav/go-concord/internal/domain"
	"github.com/ahrav/go-concord/internal/ports"
)

// Budget defines resource consumption limits for one debate.
// It caps capability invocations to prevent runaway costs when a panel
// keeps failing to converge.
type Budget struct {
	// MaxCalls limits the total number of capability invocations
	// (reviews and revisions combined, retries included).
	// Zero means unlimited.
	MaxCalls int64
}

// Usage is a point-in-time snapshot of consumption against a Budget.
type Usage struct {
	// Calls is the number of capability invocations admitted so far.
	Calls int64
}

// BudgetObserver provides observability hooks for budget operations.
// Implementations can add tracing, metrics, and logging without
// coupling observability concerns to core budget logic.
// Implementations must be safe for concurrent use; panel reviews fan
// out in parallel.
type BudgetObserver interface {
	// PreCheck is called before the capability runs. The returned
	// context is used for the invocation, so observers can attach spans
	// that the capability's own instrumentation parents to.
	PreCheck(ctx context.Context, op string, usage Usage, budget Budget) context.Context

	// PostCheck is called after the capability returns, with the same
	// context PreCheck produced. Denied invocations also reach
	// PostCheck, carrying the budget error and zero elapsed time.
	PostCheck(ctx context.Context, op string, usage Usage, budget Budget, elapsed time.Duration, err error)
}

// BudgetManager enforces a shared invocation cap across every
// capability of one panel. Wrap the panel's reviewers and reviser
// through one manager and the cap spans all of them; reviews, retries,
// and revisions all draw from the same pool.
//
// A denied invocation never runs the capability. It returns a
// *domain.BudgetExceededError, which retry layers treat as permanent,
// so a reviewer over budget is recorded unavailable after a single
// attempt and the debate drains to its fallback under the round limit.
//
// Managers are scoped to one debate. Reusing a manager across debates
// accumulates usage against the same cap.
type BudgetManager struct {
	// budget holds the immutable limits for this manager.
	budget Budget

	// observer provides optional observability hooks for tracing and
	// metrics.
	observer BudgetObserver

	// calls counts admitted invocations across all wrapped capabilities.
	calls atomic.Int64
}

// NewBudgetManager creates a BudgetManager with the specified budget
// limits and optional observer. The manager is safe for concurrent use.
func NewBudgetManager(budget Budget, observer BudgetObserver) *BudgetManager {
	return &BudgetManager{
		budget:   budget,
		observer: observer,
	}
}

// BudgetFromConfig converts an application.BudgetConfig to a
// middleware.Budget. It simplifies creating Budget instances from
// loaded debate configuration.
func BudgetFromConfig(config application.BudgetConfig) Budget {
	return Budget{MaxCalls: config.MaxCalls}
}

// Usage returns the current consumption snapshot.
func (bm *BudgetManager) Usage() Usage {
	return Usage{Calls: bm.calls.Load()}
}

// Validate checks if the BudgetManager is properly configured.
func (bm *BudgetManager) Validate() error {
	if bm.budget.MaxCalls < 0 {
		return fmt.Errorf("budget manager: max_calls cannot be negative, got %d", bm.budget.MaxCalls)
	}
	return nil
}

// WrapReviewer returns a reviewer whose invocations draw from this
// manager's budget. Role and validation pass through to the wrapped
// capability.
func (bm *BudgetManager) WrapReviewer(next ports.Reviewer) ports.Reviewer {
	if next == nil {
		panic("budget manager: reviewer is required")
	}
	return &budgetReviewer{manager: bm, next: next}
}

// WrapReviser returns a reviser whose invocations draw from this
// manager's budget.
func (bm *BudgetManager) WrapReviser(next ports.Reviser) ports.Reviser {
	if next == nil {
		panic("budget manager: reviser is required")
	}
	return &budgetReviser{manager: bm, next: next}
}

// WrapPanel wraps every capability of a panel through this manager, so
// the whole panel shares one invocation pool. Nil seats pass through
// unchanged; panel validation rejects them later with a better message
// than a panic here would give.
func (bm *BudgetManager) WrapPanel(panel application.Panel) application.Panel {
	wrapped := application.Panel{
		Reviewers: make([]ports.Reviewer, len(panel.Reviewers)),
		Reviser:   panel.Reviser,
	}
	for i, reviewer := range panel.Reviewers {
		if reviewer == nil {
			continue
		}
		wrapped.Reviewers[i] = bm.WrapReviewer(reviewer)
	}
	if panel.Reviser != nil {
		wrapped.Reviser = bm.WrapReviser(panel.Reviser)
	}
	return wrapped
}

// invoke performs budget admission around one capability invocation.
// Admitted calls increment the shared counter before running; denied
// calls never run fn. Every attempt, admitted or denied, produces
// exactly one PreCheck/PostCheck pair on the observer.
func (bm *BudgetManager) invoke(ctx context.Context, op string, fn func(context.Context) error) error {
	n, ok := bm.admit()
	if !ok {
		usage := Usage{Calls: n}
		err := domain.NewBudgetExceededError("calls", bm.budget.MaxCalls, n+1, op)
		if bm.observer != nil {
			obsCtx := bm.observer.PreCheck(ctx, op, usage, bm.budget)
			bm.observer.PostCheck(obsCtx, op, usage, bm.budget, 0, err)
		}
		return err
	}

	usage := Usage{Calls: n}
	obsCtx := ctx
	if bm.observer != nil {
		obsCtx = bm.observer.PreCheck(ctx, op, usage, bm.budget)
	}

	start := time.Now()
	err := fn(obsCtx)
	elapsed := time.Since(start)

	if bm.observer != nil {
		bm.observer.PostCheck(obsCtx, op, usage, bm.budget, elapsed, err)
	}
	return err
}

// admit reserves one invocation slot against the cap. It returns the
// call count after the reservation, or the current count and false
// when the budget is spent. Admission is exact: concurrent callers
// never push the counter past MaxCalls.
func (bm *BudgetManager) admit() (int64, bool) {
	for {
		current := bm.calls.Load()
		if bm.budget.MaxCalls > 0 && current >= bm.budget.MaxCalls {
			return current, false
		}
		if bm.calls.CompareAndSwap(current, current+1) {
			return current + 1, true
		}
	}
}

// budgetReviewer is a ports.Reviewer that draws every Review call from
// a shared budget.
type budgetReviewer struct {
	manager *BudgetManager
	next    ports.Reviewer
}

// Role returns the wrapped reviewer's panel position.
func (br *budgetReviewer) Role() domain.Role { return br.next.Role() }

// Review invokes the wrapped reviewer if the budget admits the call.
func (br *budgetReviewer) Review(ctx context.Context, dctx domain.DebateContext) (domain.Verdict, error) {
	var verdict domain.Verdict
	op := "review." + string(br.next.Role())
	err := br.manager.invoke(ctx, op, func(ctx context.Context) error {
		var err error
		verdict, err = br.next.Review(ctx, dctx)
		return err
	})
	if err != nil {
		return domain.Verdict{}, err
	}
	return verdict, nil
}

// Validate checks the manager configuration and the wrapped reviewer.
func (br *budgetReviewer) Validate() error {
	if err := br.manager.Validate(); err != nil {
		return err
	}
	return br.next.Validate()
}

// budgetReviser is a ports.Reviser that draws every Revise call from a
// shared budget.
type budgetReviser struct {
	manager *BudgetManager
	next    ports.Reviser
}

// Revise invokes the wrapped reviser if the budget admits the call.
func (br *budgetReviser) Revise(ctx context.Context, dctx domain.DebateContext) (domain.Proposal, error) {
	var proposal domain.Proposal
	err := br.manager.invoke(ctx, "revise", func(ctx context.Context) error {
		var err error
		proposal, err = br.next.Revise(ctx, dctx)
		return err
	})
	if err != nil {
		return domain.Proposal{}, err
	}
	return proposal, nil
}

// Validate checks the manager configuration and the wrapped reviser.
func (br *budgetReviser) Validate() error {
	if err := br.manager.Validate(); err != nil {
		return err
	}
	return br.next.Validate()
}

// Compile-time verification that the wrappers implement the ports.
var (
	_ ports.Reviewer = (*budgetReviewer)(nil)
	_ ports.Reviser  = (*budgetReviser)(nil)
)
