package domain

import (
	"encoding/json"
	"fmt"
	"strings"
	"sync"
)

// History is the ordered, append-only record of every finalized round
// of one debate. It has a single writer (the consensus tracker) and any
// number of concurrent readers; readers only ever observe fully
// appended rounds because a round under construction is never inserted.
//
// Two invariants are enforced on every append and on reconstruction:
// round numbers are contiguous starting at 1, and proposal versions
// never regress (a carried-forward proposal may repeat a version, a
// revision raises it).
type History struct {
	mu     sync.RWMutex
	rounds []Round
}

// NewHistory creates an empty debate history.
func NewHistory() *History {
	return &History{}
}

// Append finalizes a round into the history. It rejects rounds that
// would break the numbering or version invariants; rounds are never
// reordered, replaced, or pruned during an active debate.
func (h *History) Append(r Round) error {
	if err := validateRoundShape(r); err != nil {
		return err
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	if want := len(h.rounds) + 1; r.Number != want {
		return fmt.Errorf("%w: got round %d, want %d", ErrRoundOutOfOrder, r.Number, want)
	}
	if n := len(h.rounds); n > 0 {
		if prev := h.rounds[n-1].Proposal.Version; r.Proposal.Version < prev {
			return fmt.Errorf("%w: round %d has version %d after version %d",
				ErrVersionRegression, r.Number, r.Proposal.Version, prev)
		}
	}

	h.rounds = append(h.rounds, r.Clone())
	return nil
}

// Len returns the number of recorded rounds.
func (h *History) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rounds)
}

// Rounds returns a fresh snapshot of the recorded rounds in insertion
// order. Calling it twice without an intervening append yields
// identical sequences, and mutating the returned slice never affects
// the history.
func (h *History) Rounds() []Round {
	h.mu.RLock()
	defer h.mu.RUnlock()

	out := make([]Round, len(h.rounds))
	for i, r := range h.rounds {
		out[i] = r.Clone()
	}
	return out
}

// Last returns the most recently appended round.
func (h *History) Last() (Round, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	if len(h.rounds) == 0 {
		return Round{}, false
	}
	return h.rounds[len(h.rounds)-1].Clone(), true
}

// FindRoundsMentioning returns the rounds whose proposal declares the
// named component or whose verdict feedback refers to it. The
// comparison is case-insensitive, the scan is read-only, and history
// state is never affected.
func (h *History) FindRoundsMentioning(component string) []Round {
	if component == "" {
		return nil
	}
	needle := strings.ToLower(component)

	h.mu.RLock()
	defer h.mu.RUnlock()

	var out []Round
	for _, r := range h.rounds {
		if roundMentions(r, needle) {
			out = append(out, r.Clone())
		}
	}
	return out
}

func roundMentions(r Round, lowerNeedle string) bool {
	for _, c := range r.Proposal.Components {
		if strings.ToLower(c.Name) == lowerNeedle {
			return true
		}
	}
	for _, v := range r.Verdicts {
		if strings.Contains(strings.ToLower(v.Feedback), lowerNeedle) {
			return true
		}
		for _, s := range v.SuggestedChanges {
			if strings.Contains(strings.ToLower(s), lowerNeedle) {
				return true
			}
		}
	}
	return false
}

// MarshalJSON serializes a consistent snapshot of the history as a JSON
// array of rounds. Serialization may run concurrently with appends; the
// snapshot reflects only fully appended rounds.
func (h *History) MarshalJSON() ([]byte, error) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return json.Marshal(h.rounds)
}

// UnmarshalJSON restores a history from its serialized form,
// re-validating every invariant so a tampered or truncated record is
// rejected rather than silently accepted.
func (h *History) UnmarshalJSON(data []byte) error {
	var rounds []Round
	if err := json.Unmarshal(data, &rounds); err != nil {
		return fmt.Errorf("failed to decode history: %w", err)
	}

	restored, err := ReconstructHistory(rounds)
	if err != nil {
		return err
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	h.rounds = restored.rounds
	return nil
}

// ReconstructHistory rebuilds a history from previously recorded
// rounds, enforcing the same invariants as live appends. It is the
// loss-less counterpart to MarshalJSON for session persistence.
func ReconstructHistory(rounds []Round) (*History, error) {
	h := NewHistory()
	for _, r := range rounds {
		if err := h.Append(r); err != nil {
			return nil, err
		}
	}
	return h, nil
}

// validateRoundShape checks the append-time knowable facts about a
// round: it has verdicts and no role appears twice. Whether the verdict
// set matches the configured panel is the coordinator's responsibility.
func validateRoundShape(r Round) error {
	if len(r.Verdicts) == 0 {
		return fmt.Errorf("%w: round %d", ErrEmptyRound, r.Number)
	}
	seen := make(map[Role]struct{}, len(r.Verdicts))
	for _, v := range r.Verdicts {
		if _, dup := seen[v.Role]; dup {
			return fmt.Errorf("%w: %s in round %d", ErrDuplicateVerdict, v.Role, r.Number)
		}
		seen[v.Role] = struct{}{}
	}
	return nil
}
