package ports

import (
	"context"

	"github.com/ahrav/go-concord/internal/domain"
)

// DebateObserver receives lifecycle notifications from a running
// debate. Observers are strictly passive: they cannot veto or reorder
// rounds, and a slow observer delays only the phase boundary it hooks,
// never verdict collection itself.
// Implementations must be safe for concurrent use across debates.
type DebateObserver interface {
	// DebateStarted fires after fail-fast validation passes and before
	// the first round is dispatched.
	DebateStarted(ctx context.Context, debateID string, initial domain.Proposal, roundLimit int)

	// RoundStarted fires immediately before the round's reviewer
	// fan-out begins.
	RoundStarted(ctx context.Context, debateID string, number int, proposal domain.Proposal)

	// RoundCompleted fires after the round has been appended to
	// history, with the finalized round.
	RoundCompleted(ctx context.Context, debateID string, round domain.Round)

	// DebateCompleted fires once with the terminal artifact, whether
	// the debate ended in consensus or fallback.
	DebateCompleted(ctx context.Context, debateID string, result domain.Result)
}
