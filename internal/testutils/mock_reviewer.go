package testutils

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/ahrav/go-concord/internal/domain"
	"github.com/ahrav/go-concord/internal/ports"
)

// Verify interface compliance at compile time.
var (
	_ ports.Reviewer = (*MockReviewer)(nil)
	_ ports.Reviser  = (*MockReviser)(nil)
)

// ErrMockFailure is the default error returned by failing mock
// capabilities when the test configures no specific error.
var ErrMockFailure = errors.New("mock capability failure")

// MockReviewer implements the Reviewer interface with scripted behavior
// for exercising the invoker and engine without LLM calls. Configure
// the exported fields before the debate starts; the reviewer records
// every invocation so tests can assert call counts and backoff timing.
type MockReviewer struct {
	// ReviewerRole is the panel seat the mock answers for.
	ReviewerRole domain.Role

	// Failures is the number of leading Review calls that fail with
	// FailErr before the reviewer starts answering. Set a value larger
	// than the retry budget to keep the seat failing for the whole
	// debate.
	Failures int

	// FailErr is the error returned while failing. Defaults to
	// ErrMockFailure, which the invoker treats as retryable.
	FailErr error

	// ApproveFromVersion withholds approval until the proposal version
	// reaches this value, driving convergence scenarios. Zero approves
	// everything.
	ApproveFromVersion int

	// Feedback is the free-text critique attached to every verdict.
	Feedback string

	// SuggestedChanges is attached to dissenting verdicts.
	SuggestedChanges []string

	// Delay is slept before each answer, honoring context cancellation,
	// for timeout and parallelism tests.
	Delay time.Duration

	// ValidateErr, when set, is returned by Validate so panel assembly
	// failures can be exercised.
	ValidateErr error

	mu        sync.Mutex
	calls     int
	callTimes []time.Time
}

// NewMockReviewer creates an always-approving reviewer for the given
// role.
func NewMockReviewer(role domain.Role) *MockReviewer {
	return &MockReviewer{
		ReviewerRole: role,
		Feedback:     "no concerns from this seat",
	}
}

// Role returns the panel seat the mock answers for.
func (m *MockReviewer) Role() domain.Role { return m.ReviewerRole }

// Review answers according to the scripted configuration: delay first,
// then scripted failures, then a verdict derived from the proposal
// version carried in the debate context.
func (m *MockReviewer) Review(ctx context.Context, dctx domain.DebateContext) (domain.Verdict, error) {
	call := m.recordCall()

	if m.Delay > 0 {
		select {
		case <-ctx.Done():
			return domain.Verdict{}, ctx.Err()
		case <-time.After(m.Delay):
		}
	}

	if call <= m.Failures {
		return domain.Verdict{}, m.failure()
	}

	proposal, ok := domain.Get(dctx, domain.KeyProposal)
	if !ok {
		return domain.Verdict{}, fmt.Errorf("proposal not found in debate context")
	}

	if proposal.Version >= m.ApproveFromVersion {
		return domain.NewVerdict(m.ReviewerRole, true, m.Feedback, nil), nil
	}
	return domain.NewVerdict(m.ReviewerRole, false, m.Feedback, m.SuggestedChanges), nil
}

// Validate returns the configured validation error, if any.
func (m *MockReviewer) Validate() error { return m.ValidateErr }

// Calls reports how many times Review has been invoked.
func (m *MockReviewer) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

// CallTimes returns the wall-clock instants of every Review invocation,
// in order, for backoff timing assertions.
func (m *MockReviewer) CallTimes() []time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]time.Time, len(m.callTimes))
	copy(out, m.callTimes)
	return out
}

func (m *MockReviewer) recordCall() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	m.callTimes = append(m.callTimes, time.Now())
	return m.calls
}

func (m *MockReviewer) failure() error {
	if m.FailErr != nil {
		return m.FailErr
	}
	return ErrMockFailure
}

// MockReviser implements the Reviser interface with scripted behavior.
// By default it echoes the current design with the version advanced by
// one, which is the minimal contract the revision step checks.
type MockReviser struct {
	// Failures is the number of leading Revise calls that fail with
	// FailErr.
	Failures int

	// FailErr is the error returned while failing. Defaults to
	// ErrMockFailure.
	FailErr error

	// Delay is slept before each answer, honoring context cancellation.
	Delay time.Duration

	// ValidateErr, when set, is returned by Validate.
	ValidateErr error

	// ReviseFn, when set, replaces the default revision behavior
	// entirely. Used to exercise misbehaving revisers, for example ones
	// that skip or repeat versions.
	ReviseFn func(ctx context.Context, dctx domain.DebateContext) (domain.Proposal, error)

	mu    sync.Mutex
	calls int
}

// NewMockReviser creates a reviser that echoes the current design with
// the version advanced.
func NewMockReviser() *MockReviser { return &MockReviser{} }

// Revise produces the next proposal version per the scripted
// configuration.
func (m *MockReviser) Revise(ctx context.Context, dctx domain.DebateContext) (domain.Proposal, error) {
	call := m.recordCall()

	if m.Delay > 0 {
		select {
		case <-ctx.Done():
			return domain.Proposal{}, ctx.Err()
		case <-time.After(m.Delay):
		}
	}

	if call <= m.Failures {
		if m.FailErr != nil {
			return domain.Proposal{}, m.FailErr
		}
		return domain.Proposal{}, ErrMockFailure
	}

	if m.ReviseFn != nil {
		return m.ReviseFn(ctx, dctx)
	}

	current, ok := domain.Get(dctx, domain.KeyProposal)
	if !ok {
		return domain.Proposal{}, fmt.Errorf("proposal not found in debate context")
	}

	rationale := fmt.Sprintf("revision %d addressing prior dissent", current.Version+1)
	return current.Revise(current.Components, current.Connections, rationale)
}

// Validate returns the configured validation error, if any.
func (m *MockReviser) Validate() error { return m.ValidateErr }

// Calls reports how many times Revise has been invoked.
func (m *MockReviser) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

func (m *MockReviser) recordCall() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	return m.calls
}
