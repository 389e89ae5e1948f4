// Package testutils provides mock capabilities and fixtures for
// testing the debate engine without live LLM providers.
package testutils

import (
	"fmt"

	"github.com/ahrav/go-concord/internal/domain"
)

// SampleProposal returns a small, valid version-0 design shared across
// tests. It panics on construction failure since the fixture is static.
func SampleProposal() domain.Proposal {
	p, err := domain.NewProposal(
		[]domain.Component{
			{Name: "api_gateway", Category: "service", Responsibility: "request routing", EstimatedCost: 2},
			{Name: "order_service", Category: "service", Responsibility: "order workflow", EstimatedCost: 3},
			{Name: "order_store", Category: "datastore", Responsibility: "order persistence", EstimatedCost: 3},
		},
		[]domain.Connection{
			{From: "api_gateway", To: "order_service", Mode: domain.ModeSynchronous},
			{From: "order_service", To: "order_store", Mode: domain.ModeAsynchronous},
		},
		"Gateway fronts a single order service with asynchronous persistence.",
	)
	if err != nil {
		panic(fmt.Sprintf("sample proposal must validate: %v", err))
	}
	return p
}

// SampleContext returns a debate context carrying the sample proposal
// and correlation fields, shaped the way the engine hands context to a
// reviewer in round one.
func SampleContext() domain.DebateContext {
	dctx := domain.NewDebateContext()
	dctx = domain.With(dctx, domain.KeyDebateID, "fixture-debate")
	dctx = domain.With(dctx, domain.KeyRoundNumber, 1)
	dctx = domain.With(dctx, domain.KeyRoundLimit, 10)
	dctx = domain.With(dctx, domain.KeyProposal, SampleProposal())
	return dctx
}

// PanelVerdicts returns one genuine verdict per panel role carrying the
// given approval flag.
func PanelVerdicts(approved bool) []domain.Verdict {
	roles := domain.AllRoles()
	verdicts := make([]domain.Verdict, len(roles))
	for i, role := range roles {
		feedback := "approved without concern"
		if !approved {
			feedback = "needs another pass"
		}
		verdicts[i] = domain.NewVerdict(role, approved, feedback, nil)
	}
	return verdicts
}
