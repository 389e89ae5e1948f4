package domain

// Verdict is one reviewer's structured response to one proposal
// version. A verdict is either genuine (the reviewer answered) or an
// "unavailable" placeholder recorded after every invocation attempt for
// that reviewer failed; the placeholder keeps the round complete while
// carrying no approval signal.
type Verdict struct {
	// Role identifies which panel position produced the verdict.
	Role Role `json:"role"`

	// Approved records the reviewer's approval signal. It is meaningful
	// only when Available is true; unavailable verdicts are excluded
	// from every approval tally.
	Approved bool `json:"approved"`

	// Feedback is the reviewer's free-text critique. On an unavailable
	// verdict it records why the reviewer could not be reached, so the
	// audit trail explains the empty panel seat.
	Feedback string `json:"feedback,omitempty"`

	// SuggestedChanges lists the concrete revisions the reviewer asked
	// for. Only dissenting verdicts usually carry them.
	SuggestedChanges []string `json:"suggested_changes,omitempty"`

	// Available distinguishes a genuine verdict from the recorded
	// placeholder for an unreachable reviewer.
	Available bool `json:"available"`
}

// NewVerdict builds a genuine verdict from a live reviewer response.
func NewVerdict(role Role, approved bool, feedback string, suggestedChanges []string) Verdict {
	return Verdict{
		Role:             role,
		Approved:         approved,
		Feedback:         feedback,
		SuggestedChanges: cloneStrings(suggestedChanges),
		Available:        true,
	}
}

// NewUnavailableVerdict records a reviewer whose every invocation
// attempt failed. The reason becomes the verdict feedback; the
// approval field carries no signal and must not be read.
func NewUnavailableVerdict(role Role, reason string) Verdict {
	return Verdict{
		Role:      role,
		Feedback:  reason,
		Available: false,
	}
}

// Genuine reports whether the verdict came from a live reviewer.
func (v Verdict) Genuine() bool { return v.Available }

// Dissenting reports whether a live reviewer withheld approval.
// Unavailable verdicts are never dissenting; they are simply absent
// voices.
func (v Verdict) Dissenting() bool { return v.Available && !v.Approved }

// Clone returns a copy sharing no slice backing with the receiver.
func (v Verdict) Clone() Verdict {
	out := v
	out.SuggestedChanges = cloneStrings(v.SuggestedChanges)
	return out
}

func cloneStrings(in []string) []string {
	if in == nil {
		return nil
	}
	out := make([]string, len(in))
	copy(out, in)
	return out
}
