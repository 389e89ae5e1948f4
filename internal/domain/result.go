package domain

// Concern is a dissenting or missing voice attached to a fallback
// result. It tells the consumer of a non-consensus debate exactly which
// reservations the selected proposal still carries.
type Concern struct {
	// Role identifies the panel position that raised the concern.
	Role Role `json:"role"`

	// RoundNumber is the round the concern was voiced in.
	RoundNumber int `json:"round_number"`

	// Feedback is the reviewer's critique, or the unavailability reason
	// when the reviewer never answered.
	Feedback string `json:"feedback,omitempty"`

	// SuggestedChanges carries the reviewer's requested revisions.
	SuggestedChanges []string `json:"suggested_changes,omitempty"`

	// Unavailable marks a concern that stands in for a reviewer who
	// could not be reached rather than one who dissented.
	Unavailable bool `json:"unavailable,omitempty"`
}

// Result is the terminal artifact of one debate: the final proposal,
// the complete round history, the consensus flag, and, for fallback
// outcomes, the concerns the selected round left open. A Result is
// created once when the debate terminates and never modified; all of
// its fields survive a JSON round-trip unchanged.
type Result struct {
	// FinalProposal is the consensus proposal, or the best-available
	// proposal selected by fallback.
	FinalProposal Proposal `json:"final_proposal"`

	// Rounds is the full debate history in order.
	Rounds []Round `json:"rounds"`

	// ConsensusReached reports whether the panel unanimously approved.
	ConsensusReached bool `json:"consensus_reached"`

	// TotalRounds is the number of rounds executed. It never exceeds
	// the configured round limit.
	TotalRounds int `json:"total_rounds"`

	// Concerns lists the dissenting and missing voices from the
	// fallback round. Empty on consensus outcomes.
	Concerns []Concern `json:"concerns,omitempty"`
}

// NewConsensusResult builds the terminal artifact for a debate that
// ended in unanimous approval.
func NewConsensusResult(final Proposal, rounds []Round) Result {
	return Result{
		FinalProposal:    final.Clone(),
		Rounds:           cloneRounds(rounds),
		ConsensusReached: true,
		TotalRounds:      len(rounds),
	}
}

// NewFallbackResult builds the terminal artifact for a debate that
// exhausted its round limit. The fallback round supplies the final
// proposal, and its dissenting and unavailable verdicts become the
// result's concerns.
func NewFallbackResult(fallback Round, rounds []Round) Result {
	return Result{
		FinalProposal:    fallback.Proposal.Clone(),
		Rounds:           cloneRounds(rounds),
		ConsensusReached: false,
		TotalRounds:      len(rounds),
		Concerns:         concernsFrom(fallback),
	}
}

// concernsFrom extracts every non-approving voice from a round: live
// dissent keeps its feedback and suggestions, unreachable reviewers are
// flagged so the consumer knows the seat was empty rather than opposed.
func concernsFrom(r Round) []Concern {
	var out []Concern
	for _, v := range r.Verdicts {
		switch {
		case v.Dissenting():
			out = append(out, Concern{
				Role:             v.Role,
				RoundNumber:      r.Number,
				Feedback:         v.Feedback,
				SuggestedChanges: cloneStrings(v.SuggestedChanges),
			})
		case !v.Available:
			out = append(out, Concern{
				Role:        v.Role,
				RoundNumber: r.Number,
				Feedback:    v.Feedback,
				Unavailable: true,
			})
		}
	}
	return out
}

func cloneRounds(in []Round) []Round {
	if in == nil {
		return nil
	}
	out := make([]Round, len(in))
	for i, r := range in {
		out[i] = r.Clone()
	}
	return out
}
