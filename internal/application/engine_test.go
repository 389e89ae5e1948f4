package application

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ahrav/go-concord/internal/domain"
	"github.com/ahrav/go-concord/internal/ports"
	"github.com/ahrav/go-concord/internal/testutils"
)

// fakeObserver records lifecycle callbacks in arrival order.
type fakeObserver struct {
	mu     sync.Mutex
	events []string
}

func (f *fakeObserver) DebateStarted(ctx context.Context, debateID string, initial domain.Proposal, roundLimit int) {
	f.record("debate_started")
}

func (f *fakeObserver) RoundStarted(ctx context.Context, debateID string, number int, proposal domain.Proposal) {
	f.record(fmt.Sprintf("round_started:%d", number))
}

func (f *fakeObserver) RoundCompleted(ctx context.Context, debateID string, round domain.Round) {
	f.record(fmt.Sprintf("round_completed:%d", round.Number))
}

func (f *fakeObserver) DebateCompleted(ctx context.Context, debateID string, result domain.Result) {
	f.record("debate_completed")
}

func (f *fakeObserver) record(event string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, event)
}

func (f *fakeObserver) Events() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.events))
	copy(out, f.events)
	return out
}

var _ ports.DebateObserver = (*fakeObserver)(nil)

// newScriptedPanel assembles a full panel of mock capabilities. The
// returned map and reviser allow per-seat scripting before the debate
// starts.
func newScriptedPanel() (Panel, map[domain.Role]*testutils.MockReviewer, *testutils.MockReviser) {
	reviewers, mocks := panelReviewers()
	reviser := testutils.NewMockReviser()
	return Panel{Reviewers: reviewers, Reviser: reviser}, mocks, reviser
}

func fastEngineConfig() EngineConfig {
	return EngineConfig{
		MaxConcurrency: 5,
		Invoker:        fastInvokerConfig(3),
	}
}

func TestStartDebate_ConsensusInFirstRound(t *testing.T) {
	panel, mocks, reviser := newScriptedPanel()
	eng := NewEngine(fastEngineConfig(), nil, nil)

	result, err := eng.StartDebate(context.Background(), testutils.SampleProposal(), panel, 10)
	require.NoError(t, err)

	assert.True(t, result.ConsensusReached)
	assert.Equal(t, 1, result.TotalRounds)
	assert.Equal(t, 0, result.FinalProposal.Version)
	assert.Empty(t, result.Concerns)
	assert.Equal(t, 0, reviser.Calls(), "no revision happens after a consensus round")

	for role, mock := range mocks {
		assert.Equal(t, 1, mock.Calls(), "role %s must be consulted exactly once", role)
	}
}

// TestStartDebate_ConsensusWithRoundLimitOne pins the boundary case: a
// limit of one still admits the first round, and a unanimous first
// round produces the same result it would under any larger limit.
func TestStartDebate_ConsensusWithRoundLimitOne(t *testing.T) {
	panel, mocks, reviser := newScriptedPanel()
	eng := NewEngine(fastEngineConfig(), nil, nil)

	result, err := eng.StartDebate(context.Background(), testutils.SampleProposal(), panel, 1)
	require.NoError(t, err)

	assert.True(t, result.ConsensusReached)
	assert.Equal(t, 1, result.TotalRounds)
	assert.Equal(t, 0, result.FinalProposal.Version)
	assert.Empty(t, result.Concerns)
	assert.Equal(t, 0, reviser.Calls())
	for role, mock := range mocks {
		assert.Equal(t, 1, mock.Calls(), "role %s must be consulted exactly once", role)
	}
}

// TestStartDebate_ConvergenceThroughRevision drives the full loop:
// round one dissents, the reviser produces version 1, and round two
// approves it unanimously.
func TestStartDebate_ConvergenceThroughRevision(t *testing.T) {
	panel, mocks, reviser := newScriptedPanel()
	for _, mock := range mocks {
		mock.ApproveFromVersion = 1
	}
	eng := NewEngine(fastEngineConfig(), nil, nil)

	result, err := eng.StartDebate(context.Background(), testutils.SampleProposal(), panel, 10)
	require.NoError(t, err)

	assert.True(t, result.ConsensusReached)
	assert.Equal(t, 2, result.TotalRounds)
	assert.Equal(t, 1, result.FinalProposal.Version)
	assert.Equal(t, 1, reviser.Calls())

	require.Len(t, result.Rounds, 2)
	assert.Equal(t, 0, result.Rounds[0].Proposal.Version)
	assert.False(t, result.Rounds[0].ConsensusReached)
	assert.Equal(t, 1, result.Rounds[1].Proposal.Version)
	assert.True(t, result.Rounds[1].ConsensusReached)

	for _, mock := range mocks {
		assert.Equal(t, 2, mock.Calls())
	}
}

// TestStartDebate_FallbackAtRoundLimit exhausts the budget without
// consensus and checks the fallback decision carries the open concerns.
func TestStartDebate_FallbackAtRoundLimit(t *testing.T) {
	panel, mocks, reviser := newScriptedPanel()
	for _, mock := range mocks {
		mock.ApproveFromVersion = 100
		mock.Feedback = "still not acceptable"
	}
	eng := NewEngine(fastEngineConfig(), nil, nil)

	result, err := eng.StartDebate(context.Background(), testutils.SampleProposal(), panel, 3)
	require.NoError(t, err, "hitting the round limit is a normal outcome, not an error")

	assert.False(t, result.ConsensusReached)
	assert.Equal(t, 3, result.TotalRounds)
	assert.Equal(t, 2, reviser.Calls(), "no revision happens after the final round")

	// Every round ties at zero approvals, so the latest proposal wins.
	assert.Equal(t, 2, result.FinalProposal.Version)

	require.Len(t, result.Concerns, 3)
	for _, concern := range result.Concerns {
		assert.Equal(t, 3, concern.RoundNumber)
		assert.Equal(t, "still not acceptable", concern.Feedback)
		assert.False(t, concern.Unavailable)
	}
}

// TestStartDebate_UnavailableReviewerDegradesGracefully keeps one seat
// failing beyond its whole retry budget; the debate still runs to its
// limit and the missing voice surfaces as an unavailable concern.
func TestStartDebate_UnavailableReviewerDegradesGracefully(t *testing.T) {
	panel, mocks, _ := newScriptedPanel()
	mocks[domain.RoleSecurityGuard].Failures = 1000
	eng := NewEngine(fastEngineConfig(), nil, nil)

	result, err := eng.StartDebate(context.Background(), testutils.SampleProposal(), panel, 2)
	require.NoError(t, err)

	assert.False(t, result.ConsensusReached, "an unavailable seat can never approve")
	assert.Equal(t, 2, result.TotalRounds)

	require.Len(t, result.Concerns, 1)
	assert.Equal(t, domain.RoleSecurityGuard, result.Concerns[0].Role)
	assert.True(t, result.Concerns[0].Unavailable)
	assert.Contains(t, result.Concerns[0].Feedback, "review failed after 3 attempts")
}

// TestStartDebate_FailedRevisionCarriesProposalForward keeps the
// reviser failing for the whole debate: rounds keep running against the
// unchanged proposal and still count against the limit.
func TestStartDebate_FailedRevisionCarriesProposalForward(t *testing.T) {
	panel, mocks, reviser := newScriptedPanel()
	for _, mock := range mocks {
		mock.ApproveFromVersion = 100
	}
	reviser.Failures = 1000
	eng := NewEngine(fastEngineConfig(), nil, nil)

	result, err := eng.StartDebate(context.Background(), testutils.SampleProposal(), panel, 2)
	require.NoError(t, err)

	assert.False(t, result.ConsensusReached)
	assert.Equal(t, 2, result.TotalRounds)
	require.Len(t, result.Rounds, 2)
	assert.Equal(t, 0, result.Rounds[0].Proposal.Version)
	assert.Equal(t, 0, result.Rounds[1].Proposal.Version, "round two evaluates the carried-forward proposal")
}

func TestStartDebate_FailFastValidation(t *testing.T) {
	validPanel := func() Panel {
		panel, _, _ := newScriptedPanel()
		return panel
	}

	tests := []struct {
		name          string
		proposal      domain.Proposal
		panel         func() Panel
		roundLimit    int
		expectedError string
	}{
		{
			name:          "malformed proposal",
			proposal:      domain.Proposal{},
			panel:         validPanel,
			roundLimit:    10,
			expectedError: "at least one component",
		},
		{
			name:     "missing panel roles",
			proposal: testutils.SampleProposal(),
			panel: func() Panel {
				panel, _, _ := newScriptedPanel()
				panel.Reviewers = panel.Reviewers[:1]
				return panel
			},
			roundLimit:    10,
			expectedError: `required role "latency_critic" missing`,
		},
		{
			name:     "duplicate role",
			proposal: testutils.SampleProposal(),
			panel: func() Panel {
				panel, _, _ := newScriptedPanel()
				panel.Reviewers = append(panel.Reviewers, testutils.NewMockReviewer(domain.RoleArchitect))
				return panel
			},
			roundLimit:    10,
			expectedError: `role "architect" supplied more than once`,
		},
		{
			name:     "unknown role",
			proposal: testutils.SampleProposal(),
			panel: func() Panel {
				panel, _, _ := newScriptedPanel()
				panel.Reviewers[2] = testutils.NewMockReviewer(domain.Role("moderator"))
				return panel
			},
			roundLimit:    10,
			expectedError: `unknown role "moderator"`,
		},
		{
			name:     "missing reviser",
			proposal: testutils.SampleProposal(),
			panel: func() Panel {
				panel, _, _ := newScriptedPanel()
				panel.Reviser = nil
				return panel
			},
			roundLimit:    10,
			expectedError: "reviser is required",
		},
		{
			name:     "reviewer fails validation",
			proposal: testutils.SampleProposal(),
			panel: func() Panel {
				panel, mocks, _ := newScriptedPanel()
				mocks[domain.RoleArchitect].ValidateErr = fmt.Errorf("prompt template missing")
				return panel
			},
			roundLimit:    10,
			expectedError: "prompt template missing",
		},
		{
			name:          "negative round limit",
			proposal:      testutils.SampleProposal(),
			panel:         validPanel,
			roundLimit:    -1,
			expectedError: "round limit must not be negative",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			observer := &fakeObserver{}
			eng := NewEngine(fastEngineConfig(), nil, observer)

			_, err := eng.StartDebate(context.Background(), tt.proposal, tt.panel(), tt.roundLimit)

			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.expectedError)

			var verr *domain.ValidationError
			require.ErrorAs(t, err, &verr, "fail-fast rejections are validation errors")
			assert.Empty(t, observer.Events(), "no debate state may exist after a fail-fast rejection")
		})
	}
}

func TestStartDebate_FailFastHappensBeforeAnyReviewerCall(t *testing.T) {
	panel, mocks, reviser := newScriptedPanel()
	eng := NewEngine(fastEngineConfig(), nil, nil)

	_, err := eng.StartDebate(context.Background(), domain.Proposal{}, panel, 10)
	require.Error(t, err)

	for role, mock := range mocks {
		assert.Equal(t, 0, mock.Calls(), "role %s must not be consulted", role)
	}
	assert.Equal(t, 0, reviser.Calls())
}

func TestStartDebate_ZeroRoundLimitUsesConfiguredDefault(t *testing.T) {
	panel, mocks, _ := newScriptedPanel()
	for _, mock := range mocks {
		mock.ApproveFromVersion = 100
	}

	config := fastEngineConfig()
	config.RoundLimit = 2
	eng := NewEngine(config, nil, nil)

	result, err := eng.StartDebate(context.Background(), testutils.SampleProposal(), panel, 0)
	require.NoError(t, err)
	assert.Equal(t, 2, result.TotalRounds)
}

// TestStartDebate_TimeoutForcesFallback bounds the debate tighter than
// its round budget: the in-flight round finishes collecting, then the
// debate terminates with a fallback decision instead of an error.
func TestStartDebate_TimeoutForcesFallback(t *testing.T) {
	panel, mocks, _ := newScriptedPanel()
	for _, mock := range mocks {
		mock.ApproveFromVersion = 100
		mock.Delay = 30 * time.Millisecond
	}

	config := fastEngineConfig()
	config.DebateTimeout = 50 * time.Millisecond
	eng := NewEngine(config, nil, nil)

	result, err := eng.StartDebate(context.Background(), testutils.SampleProposal(), panel, 10)
	require.NoError(t, err, "a debate timeout is a forced decision, not a failure")

	assert.False(t, result.ConsensusReached)
	assert.GreaterOrEqual(t, result.TotalRounds, 1, "the dispatched round finishes collecting")
	assert.Less(t, result.TotalRounds, 10, "the timeout must cut the debate short of its round budget")
	assert.NotEmpty(t, result.Concerns)

	for _, round := range result.Rounds {
		assert.Len(t, round.Verdicts, 3, "every recorded round holds the full panel")
	}
}

func TestStartDebate_CancellationAbortsWithError(t *testing.T) {
	panel, mocks, _ := newScriptedPanel()
	for _, mock := range mocks {
		mock.ApproveFromVersion = 100
		mock.Delay = 20 * time.Millisecond
	}
	eng := NewEngine(fastEngineConfig(), nil, nil)

	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(5*time.Millisecond, cancel)

	_, err := eng.StartDebate(ctx, testutils.SampleProposal(), panel, 10)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "debate aborted")
}

func TestStartDebate_ObserverSeesLifecycleInOrder(t *testing.T) {
	panel, mocks, _ := newScriptedPanel()
	for _, mock := range mocks {
		mock.ApproveFromVersion = 1
	}
	observer := &fakeObserver{}
	eng := NewEngine(fastEngineConfig(), nil, observer)

	_, err := eng.StartDebate(context.Background(), testutils.SampleProposal(), panel, 10)
	require.NoError(t, err)

	assert.Equal(t, []string{
		"debate_started",
		"round_started:1",
		"round_completed:1",
		"round_started:2",
		"round_completed:2",
		"debate_completed",
	}, observer.Events())
}

func TestStartDebate_EmitsTerminalMetrics(t *testing.T) {
	panel, _, _ := newScriptedPanel()
	metrics := &fakeMetrics{}
	eng := NewEngine(fastEngineConfig(), metrics, nil)

	_, err := eng.StartDebate(context.Background(), testutils.SampleProposal(), panel, 10)
	require.NoError(t, err)

	debates := metrics.counterEvents("debates_total")
	require.Len(t, debates, 1)
	assert.Equal(t, "consensus", debates[0].labels["outcome"])

	rounds := metrics.counterEvents("debate_rounds_total")
	require.Len(t, rounds, 1)
	assert.Equal(t, "true", rounds[0].labels["consensus"])
}

// TestStartDebate_ConcurrentDebatesShareOneEngine runs several debates
// against a single engine instance; the engine holds no per-debate
// state, so they must not interfere.
func TestStartDebate_ConcurrentDebatesShareOneEngine(t *testing.T) {
	eng := NewEngine(fastEngineConfig(), nil, nil)

	const debates = 4
	results := make([]domain.Result, debates)
	errs := make([]error, debates)

	var wg sync.WaitGroup
	for i := range debates {
		wg.Add(1)
		go func() {
			defer wg.Done()
			panel, mocks, _ := newScriptedPanel()
			for _, mock := range mocks {
				mock.ApproveFromVersion = 1
			}
			results[i], errs[i] = eng.StartDebate(context.Background(), testutils.SampleProposal(), panel, 10)
		}()
	}
	wg.Wait()

	for i := range debates {
		require.NoError(t, errs[i])
		assert.True(t, results[i].ConsensusReached)
		assert.Equal(t, 2, results[i].TotalRounds)
	}
}
