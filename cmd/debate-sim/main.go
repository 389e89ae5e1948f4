// Command debate-sim runs a scripted debate against the engine and
// writes the resulting transcript as JSON. The panel is deterministic:
// each seat approves once the proposal reaches a configurable version,
// so the same flags always produce the same outcome. Use it to inspect
// transcript shape, to exercise budget enforcement, or to generate
// fixture data without spending LLM calls.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"

	"github.com/ahrav/go-concord/infrastructure/middleware"
	"github.com/ahrav/go-concord/internal/application"
	"github.com/ahrav/go-concord/internal/domain"
	"github.com/ahrav/go-concord/internal/ports"
	"github.com/ahrav/go-concord/internal/testutils"
)

func main() {
	var (
		roundLimit = flag.Int("rounds", 5, "Maximum debate rounds before fallback selection")
		convergeAt = flag.Int("converge-at", 2, "Proposal version at which the strictest seat approves")
		maxCalls   = flag.Int64("max-calls", 0, "Invocation budget for the debate (0 = unlimited)")
		timeout    = flag.Duration("timeout", 30*time.Second, "Debate deadline")
		outputPath = flag.String("output", "testdata/transcripts/debate_transcript.json", "Transcript output path")
	)
	flag.Parse()

	if *convergeAt < 0 {
		log.Fatalf("converge-at must be non-negative, got %d", *convergeAt)
	}

	panel := scriptedPanel(*convergeAt)

	// An optional budget wraps every seat so the simulation can show how
	// a debate drains to fallback when the call pool runs dry.
	if *maxCalls > 0 {
		manager := middleware.NewBudgetManager(middleware.Budget{MaxCalls: *maxCalls}, nil)
		if err := manager.Validate(); err != nil {
			log.Fatalf("Invalid budget: %v", err)
		}
		panel = manager.WrapPanel(panel)
	}

	engine := application.NewEngine(application.EngineConfig{
		RoundLimit:     *roundLimit,
		DebateTimeout:  *timeout,
		MaxConcurrency: len(panel.Reviewers),
		Invoker: application.InvokerConfig{
			MaxAttempts:    2,
			BaseDelay:      50 * time.Millisecond,
			MaxDelay:       500 * time.Millisecond,
			AttemptTimeout: 5 * time.Second,
		},
	}, nil, nil)

	result, err := engine.StartDebate(context.Background(), testutils.SampleProposal(), panel, *roundLimit)
	if err != nil {
		log.Fatalf("Debate failed: %v", err)
	}

	if err := writeTranscript(result, *outputPath); err != nil {
		log.Fatalf("Failed to write transcript: %v", err)
	}

	fmt.Printf("Debate transcript:\n")
	fmt.Printf("- Path: %s\n", *outputPath)
	fmt.Printf("- Consensus reached: %t\n", result.ConsensusReached)
	fmt.Printf("- Rounds used: %d of %d\n", result.TotalRounds, *roundLimit)
	fmt.Printf("- Final proposal version: %d\n", result.FinalProposal.Version)
	if len(result.Concerns) > 0 {
		fmt.Printf("- Open concerns: %d\n", len(result.Concerns))
		for _, c := range result.Concerns {
			state := "dissenting"
			if c.Unavailable {
				state = "unavailable"
			}
			fmt.Printf("  - %s (%s, round %d): %s\n", c.Role, state, c.RoundNumber, c.Feedback)
		}
	}
	fmt.Printf("\nTranscript saved successfully!\n")
}

// scriptedPanel builds a deterministic panel whose seats approve at
// staggered proposal versions. The architect approves immediately, the
// latency critic one revision before the security guard, and the
// security guard holds out until convergeAt. With the default reviser
// advancing one version per round, consensus lands exactly at round
// convergeAt+1 when the round limit allows it.
func scriptedPanel(convergeAt int) application.Panel {
	criticAt := convergeAt - 1
	if criticAt < 0 {
		criticAt = 0
	}

	return application.Panel{
		Reviewers: []ports.Reviewer{
			&testutils.MockReviewer{
				ReviewerRole: domain.RoleArchitect,
				Feedback:     "layering and component boundaries are sound",
			},
			&testutils.MockReviewer{
				ReviewerRole:       domain.RoleLatencyCritic,
				ApproveFromVersion: criticAt,
				Feedback:           "order lookups add a synchronous hop on the hot path",
				SuggestedChanges:   []string{"cache order reads in the gateway"},
			},
			&testutils.MockReviewer{
				ReviewerRole:       domain.RoleSecurityGuard,
				ApproveFromVersion: convergeAt,
				Feedback:           "service-to-store traffic is unauthenticated",
				SuggestedChanges:   []string{"require mTLS between order_service and order_store"},
			},
		},
		Reviser: testutils.NewMockReviser(),
	}
}

// writeTranscript serializes the result and writes it to path, creating
// parent directories as needed.
func writeTranscript(result domain.Result, path string) error {
	data, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal result: %w", err)
	}

	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0750); err != nil {
			return fmt.Errorf("failed to create output directory: %w", err)
		}
	}

	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write file: %w", err)
	}
	return nil
}
