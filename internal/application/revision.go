package application

import (
	"context"

	"github.com/ahrav/go-concord/internal/domain"
	"github.com/ahrav/go-concord/internal/ports"
)

// RevisionStep produces the next proposal version between rounds by
// asking the reviser to address the latest round's feedback.
type RevisionStep struct {
	invoker *Invoker
}

// NewRevisionStep creates a RevisionStep that executes reviser calls
// through the provided invoker.
func NewRevisionStep(invoker *Invoker) *RevisionStep {
	return &RevisionStep{invoker: invoker}
}

// Apply requests a revision of the current proposal. The debate context
// carries the proposal and the verdicts the revision must address.
//
// The returned proposal is either the revised version, exactly one
// version ahead of current, or the current proposal carried forward
// unchanged when the reviser was unavailable or produced a version that
// would corrupt the history. The boolean reports whether a revision was
// actually applied.
func (rs *RevisionStep) Apply(
	ctx context.Context,
	reviser ports.Reviser,
	current domain.Proposal,
	dctx domain.DebateContext,
) (domain.Proposal, bool) {
	revised, ok := rs.invoker.InvokeReviser(ctx, reviser, dctx)
	if !ok {
		return current, false
	}

	// Guard the history invariants against misbehaving reviser
	// implementations. Anything other than a clean +1 version bump is
	// treated the same as an unavailable reviser.
	if revised.Version != current.Version+1 {
		return current, false
	}
	if err := revised.Validate(); err != nil {
		return current, false
	}

	return revised, true
}
