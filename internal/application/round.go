package application

import (
	"context"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/ahrav/go-concord/internal/domain"
	"github.com/ahrav/go-concord/internal/ports"
)

// DefaultReviewMaxConcurrency is the default number of concurrent
// reviewer invocations per round.
const DefaultReviewMaxConcurrency = 5

// RoundCoordinator fans a proposal out to the full reviewer panel in
// parallel and collects exactly one verdict per role. Reviewers never
// see each other's in-flight work; they all evaluate the same proposal
// snapshot for the round.
type RoundCoordinator struct {
	invoker        *Invoker
	maxConcurrency int
}

// NewRoundCoordinator creates a RoundCoordinator that executes reviewer
// invocations through the provided invoker. A non-positive
// maxConcurrency falls back to DefaultReviewMaxConcurrency.
func NewRoundCoordinator(invoker *Invoker, maxConcurrency int) *RoundCoordinator {
	if maxConcurrency <= 0 {
		maxConcurrency = DefaultReviewMaxConcurrency
	}
	return &RoundCoordinator{
		invoker:        invoker,
		maxConcurrency: maxConcurrency,
	}
}

// ExecuteRound runs one debate round: every reviewer on the panel
// evaluates the proposal concurrently and the collected verdicts are
// assembled into an immutable Round record.
//
// The returned round always contains one verdict per panel entry, in
// panel order. Reviewers that exhausted their attempt budget appear as
// unavailable verdicts rather than aborting the round, so a round that
// started always finishes collecting.
func (rc *RoundCoordinator) ExecuteRound(
	ctx context.Context,
	number int,
	proposal domain.Proposal,
	panel []ports.Reviewer,
	dctx domain.DebateContext,
) domain.Round {
	verdicts := make([]domain.Verdict, len(panel))
	var mu sync.Mutex // Protect verdicts slice

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(rc.maxConcurrency)

	for i, reviewer := range panel {
		g.Go(func() error {
			verdict := rc.invoker.InvokeReviewer(gctx, reviewer, dctx)

			mu.Lock()
			verdicts[i] = verdict
			mu.Unlock()

			return nil
		})
	}

	// InvokeReviewer never fails, so Wait only synchronizes completion.
	_ = g.Wait()

	return domain.NewRound(number, proposal, verdicts)
}
