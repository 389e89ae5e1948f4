package domain

// Round is one full dispatch-to-all-reviewers cycle: the proposal
// version the panel evaluated, exactly one verdict per configured role,
// and the derived consensus flag. A round is assembled privately by the
// coordinator and becomes immutable once appended to a history.
type Round struct {
	// Number is the 1-based position of the round within its debate.
	Number int `json:"number"`

	// Proposal is the exact proposal the panel evaluated. The full
	// value is stored, not just its version, so history stays
	// self-contained for fallback selection and replay.
	Proposal Proposal `json:"proposal"`

	// Verdicts holds one entry per configured reviewer role, in panel
	// order, each either genuine or an unavailable placeholder.
	Verdicts []Verdict `json:"verdicts"`

	// ConsensusReached is true iff every verdict is genuine and
	// approving. An unavailable reviewer cannot approve, so any missing
	// voice keeps this false.
	ConsensusReached bool `json:"consensus_reached"`
}

// NewRound assembles a finalized round, deriving the consensus flag
// from the collected verdicts.
func NewRound(number int, proposal Proposal, verdicts []Verdict) Round {
	return Round{
		Number:           number,
		Proposal:         proposal.Clone(),
		Verdicts:         cloneVerdicts(verdicts),
		ConsensusReached: UnanimousApproval(verdicts),
	}
}

// UnanimousApproval reports whether a verdict set constitutes
// consensus: at least one verdict, every verdict genuine, and every
// verdict approving.
func UnanimousApproval(verdicts []Verdict) bool {
	if len(verdicts) == 0 {
		return false
	}
	for _, v := range verdicts {
		if !v.Available || !v.Approved {
			return false
		}
	}
	return true
}

// VerdictFor returns the verdict recorded for the given role.
func (r Round) VerdictFor(role Role) (Verdict, bool) {
	for _, v := range r.Verdicts {
		if v.Role == role {
			return v.Clone(), true
		}
	}
	return Verdict{}, false
}

// GenuineApprovals counts the live approving verdicts in the round.
// Unavailable placeholders never contribute.
func (r Round) GenuineApprovals() int {
	count := 0
	for _, v := range r.Verdicts {
		if v.Available && v.Approved {
			count++
		}
	}
	return count
}

// Dissent returns the live verdicts that withheld approval. Their
// feedback drives the next revision.
func (r Round) Dissent() []Verdict {
	var out []Verdict
	for _, v := range r.Verdicts {
		if v.Dissenting() {
			out = append(out, v.Clone())
		}
	}
	return out
}

// Unavailable returns the roles that recorded no live verdict this
// round.
func (r Round) Unavailable() []Role {
	var out []Role
	for _, v := range r.Verdicts {
		if !v.Available {
			out = append(out, v.Role)
		}
	}
	return out
}

// Clone returns a deep copy sharing no backing storage with the
// receiver.
func (r Round) Clone() Round {
	return Round{
		Number:           r.Number,
		Proposal:         r.Proposal.Clone(),
		Verdicts:         cloneVerdicts(r.Verdicts),
		ConsensusReached: r.ConsensusReached,
	}
}

// SelectFallback picks the best-available round from a finished,
// non-consensus debate: the round with the highest count of genuine
// approvals. Ties resolve in favor of the later round, on the grounds
// that the later proposal has absorbed more feedback. The scan uses >=
// in ascending order so the tie-break falls out of the comparison.
func SelectFallback(rounds []Round) (Round, error) {
	if len(rounds) == 0 {
		return Round{}, ErrNoRounds
	}

	best := rounds[0]
	bestApprovals := best.GenuineApprovals()
	for _, r := range rounds[1:] {
		if approvals := r.GenuineApprovals(); approvals >= bestApprovals {
			best = r
			bestApprovals = approvals
		}
	}
	return best.Clone(), nil
}

func cloneVerdicts(in []Verdict) []Verdict {
	if in == nil {
		return nil
	}
	out := make([]Verdict, len(in))
	for i, v := range in {
		out[i] = v.Clone()
	}
	return out
}
