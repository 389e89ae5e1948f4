package application

import (
	"github.com/ahrav/go-concord/internal/domain"
)

// DefaultRoundLimit is the default maximum number of debate rounds
// before the fallback outcome is selected.
const DefaultRoundLimit = 10

// ConsensusTracker owns the debate history and decides when a debate
// terminates. It is the history's single writer; any number of
// concurrent readers may observe progress through History while rounds
// are still being recorded.
type ConsensusTracker struct {
	history    *domain.History
	roundLimit int
}

// NewConsensusTracker creates a tracker with an empty history. A
// non-positive roundLimit falls back to DefaultRoundLimit.
func NewConsensusTracker(roundLimit int) *ConsensusTracker {
	if roundLimit <= 0 {
		roundLimit = DefaultRoundLimit
	}
	return &ConsensusTracker{
		history:    domain.NewHistory(),
		roundLimit: roundLimit,
	}
}

// Record appends a completed round to the history. It fails when the
// round would violate the history invariants, such as an out-of-order
// round number or a proposal version regression.
func (ct *ConsensusTracker) Record(round domain.Round) error {
	return ct.history.Append(round)
}

// ConsensusReached reports whether the most recently recorded round
// achieved unanimous approval.
func (ct *ConsensusTracker) ConsensusReached() bool {
	last, ok := ct.history.Last()
	return ok && last.ConsensusReached
}

// LimitReached reports whether the round budget is exhausted.
func (ct *ConsensusTracker) LimitReached() bool {
	return ct.history.Len() >= ct.roundLimit
}

// NextRoundNumber returns the 1-based number the next recorded round
// must carry.
func (ct *ConsensusTracker) NextRoundNumber() int {
	return ct.history.Len() + 1
}

// RoundLimit returns the configured round budget.
func (ct *ConsensusTracker) RoundLimit() int { return ct.roundLimit }

// History exposes the underlying history for concurrent readers.
func (ct *ConsensusTracker) History() *domain.History { return ct.history }

// Finalize assembles the terminal result for the debate. A consensus in
// the latest round yields a consensus result carrying that round's
// proposal; otherwise the fallback round is selected by genuine
// approval count, later rounds winning ties, and its open concerns are
// attached. Finalizing before any round was recorded is an error.
func (ct *ConsensusTracker) Finalize() (domain.Result, error) {
	rounds := ct.history.Rounds()
	if len(rounds) == 0 {
		return domain.Result{}, domain.ErrNoRounds
	}

	last := rounds[len(rounds)-1]
	if last.ConsensusReached {
		return domain.NewConsensusResult(last.Proposal, rounds), nil
	}

	fallback, err := domain.SelectFallback(rounds)
	if err != nil {
		return domain.Result{}, err
	}
	return domain.NewFallbackResult(fallback, rounds), nil
}
