// Package ports defines the core interfaces that form the contract between
// the domain/application layers and the infrastructure layer.
// These interfaces enable dependency inversion and make the system testable.
package ports

import (
	"context"

	"github.com/ahrav/go-concord/internal/domain"
)

// Reviewer is one panel position's capability: given the structured
// debate context (current proposal, prior dissent), it produces a
// verdict or fails. The engine treats every reviewer as a black box;
// it never builds prompts or interprets reasoning, it only sequences,
// retries, and records outcomes.
// Implementations must be safe for concurrent use; one reviewer may be
// invoked from several debates at once.
type Reviewer interface {
	// Role returns the fixed panel position this reviewer is bound to.
	// A reviewer never answers for more than one role.
	Role() domain.Role

	// Review evaluates the proposal carried in the debate context and
	// returns a genuine verdict. Any failure (transport error, timeout,
	// output that does not parse into the verdict shape) is returned as
	// an error; the resilient invoker decides whether to retry or record
	// the reviewer as unavailable.
	//
	// The context parameter carries the per-attempt deadline set by the
	// invoker; implementations should respect cancellation and return
	// promptly.
	Review(ctx context.Context, dctx domain.DebateContext) (domain.Verdict, error)

	// Validate checks if the reviewer is properly configured and ready
	// for invocation. It is called during panel assembly, before any
	// round executes. Return nil if validation passes, or an error
	// describing what is invalid.
	Validate() error
}

// Reviser is the Architect-role revision capability: given the debate
// context (current proposal plus the round's dissenting feedback), it
// produces the next proposal version. Revision failures are returned as
// errors; after retries are exhausted the engine carries the previous
// proposal forward unchanged.
type Reviser interface {
	// Revise produces a new proposal that addresses the dissent carried
	// in the debate context. The returned proposal's version must be
	// exactly one greater than the current proposal's.
	Revise(ctx context.Context, dctx domain.DebateContext) (domain.Proposal, error)

	// Validate checks if the reviser is properly configured and ready
	// for invocation.
	Validate() error
}

// ReviewerFactory creates a Reviewer for the given role from a flat
// configuration map. Factories are registered per reviewer type so new
// capability implementations can be added without touching the loader.
type ReviewerFactory func(role domain.Role, config map[string]any) (Reviewer, error)

// ReviserFactory creates a Reviser from a flat configuration map.
type ReviserFactory func(config map[string]any) (Reviser, error)

// ReviewerRegistry creates reviewer and reviser capabilities from
// declarative configuration. Implementations manage the dependencies
// the capabilities need, such as LLM clients.
type ReviewerRegistry interface {
	// CreateReviewer instantiates a reviewer of the given type bound to
	// the given role. The config map carries type-specific parameters.
	CreateReviewer(reviewerType string, role domain.Role, config map[string]any) (Reviewer, error)

	// CreateReviser instantiates the revision capability.
	CreateReviser(config map[string]any) (Reviser, error)

	// RegisterReviewerFactory adds support for a custom reviewer type.
	// Registering a type that already exists is an error.
	RegisterReviewerFactory(reviewerType string, factory ReviewerFactory) error

	// SupportedTypes lists the reviewer types this registry can create.
	SupportedTypes() []string
}
