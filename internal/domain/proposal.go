// Package domain contains pure, dependency-free domain models and types
// for the debate engine.
package domain

import (
	"math"
	"strings"
)

// InteractionMode tags a directed connection with how the two endpoints
// communicate.
type InteractionMode string

const (
	// ModeSynchronous marks a blocking request/response interaction.
	ModeSynchronous InteractionMode = "synchronous"

	// ModeAsynchronous marks a fire-and-forget or queued interaction.
	ModeAsynchronous InteractionMode = "asynchronous"

	// ModeStreaming marks a continuous data-flow interaction.
	ModeStreaming InteractionMode = "streaming"
)

// Valid reports whether the mode is one of the recognized interaction
// kinds.
func (m InteractionMode) Valid() bool {
	switch m {
	case ModeSynchronous, ModeAsynchronous, ModeStreaming:
		return true
	default:
		return false
	}
}

// Component is one named element of a proposed design.
type Component struct {
	// Name uniquely identifies the component within a proposal.
	Name string `json:"name"`

	// Category declares the component's architectural role,
	// for example "service", "datastore", or "queue".
	Category string `json:"category"`

	// Responsibility is a short statement of what the component owns.
	Responsibility string `json:"responsibility,omitempty"`

	// EstimatedCost is a unitless relative cost metric carried with the
	// component and refined across revisions.
	EstimatedCost float64 `json:"estimated_cost"`
}

// Connection is a directed edge between two named components.
type Connection struct {
	// From is the name of the originating component.
	From string `json:"from"`

	// To is the name of the receiving component.
	To string `json:"to"`

	// Mode describes how the two components interact.
	Mode InteractionMode `json:"mode"`
}

// Proposal is an immutable, versioned design under debate. A revision
// never mutates a proposal in place; it produces a new value with the
// version advanced by exactly one, and every prior version remains
// reachable through the debate history.
type Proposal struct {
	// Version starts at 0 for the initial proposal and increases by
	// exactly 1 on every applied revision.
	Version int `json:"version"`

	// Components is the ordered list of design elements.
	Components []Component `json:"components"`

	// Connections lists the directed interactions between components.
	Connections []Connection `json:"connections,omitempty"`

	// Rationale is the author's free-text justification for the design.
	Rationale string `json:"rationale,omitempty"`
}

// NewProposal builds and validates the initial, version-0 proposal.
func NewProposal(components []Component, connections []Connection, rationale string) (Proposal, error) {
	p := Proposal{
		Version:     0,
		Components:  cloneComponents(components),
		Connections: cloneConnections(connections),
		Rationale:   rationale,
	}
	if err := p.Validate(); err != nil {
		return Proposal{}, err
	}
	return p, nil
}

// Revise produces the next version of the proposal carrying the revised
// content. The receiver is left unchanged. The revised content is
// validated before the new value is returned.
func (p Proposal) Revise(components []Component, connections []Connection, rationale string) (Proposal, error) {
	next := Proposal{
		Version:     p.Version + 1,
		Components:  cloneComponents(components),
		Connections: cloneConnections(connections),
		Rationale:   rationale,
	}
	if err := next.Validate(); err != nil {
		return Proposal{}, err
	}
	return next, nil
}

// Validate checks structural well-formedness: a non-empty component
// list with unique non-empty names and finite non-negative costs, and
// connections that reference declared components with a recognized
// interaction mode. All failures are reported together.
func (p Proposal) Validate() error {
	verr := NewValidationError("proposal")

	if p.Version < 0 {
		verr.Addf("version must not be negative, got %d", p.Version)
	}

	if len(p.Components) == 0 {
		verr.AddError("proposal must declare at least one component")
	}

	names := make(map[string]struct{}, len(p.Components))
	for i, c := range p.Components {
		if c.Name == "" {
			verr.Addf("component %d has an empty name", i)
			continue
		}
		if _, dup := names[c.Name]; dup {
			verr.Addf("component name %q declared more than once", c.Name)
		}
		names[c.Name] = struct{}{}

		if math.IsNaN(c.EstimatedCost) || math.IsInf(c.EstimatedCost, 0) {
			verr.Addf("component %q has a non-finite estimated cost", c.Name)
		} else if c.EstimatedCost < 0 {
			verr.Addf("component %q has a negative estimated cost", c.Name)
		}
	}

	for i, conn := range p.Connections {
		if _, ok := names[conn.From]; !ok {
			verr.Addf("connection %d references unknown component %q", i, conn.From)
		}
		if _, ok := names[conn.To]; !ok {
			verr.Addf("connection %d references unknown component %q", i, conn.To)
		}
		if !conn.Mode.Valid() {
			verr.Addf("connection %d has unrecognized interaction mode %q", i, conn.Mode)
		}
	}

	return verr.ErrOrNil()
}

// Clone returns a deep copy sharing no slice backing with the receiver.
func (p Proposal) Clone() Proposal {
	return Proposal{
		Version:     p.Version,
		Components:  cloneComponents(p.Components),
		Connections: cloneConnections(p.Connections),
		Rationale:   p.Rationale,
	}
}

// ComponentNames returns the declared component names in order.
func (p Proposal) ComponentNames() []string {
	names := make([]string, len(p.Components))
	for i, c := range p.Components {
		names[i] = c.Name
	}
	return names
}

// Mentions reports whether the proposal declares a component with the
// given name, compared case-insensitively.
func (p Proposal) Mentions(component string) bool {
	for _, c := range p.Components {
		if strings.EqualFold(c.Name, component) {
			return true
		}
	}
	return false
}

func cloneComponents(components []Component) []Component {
	if components == nil {
		return nil
	}
	out := make([]Component, len(components))
	copy(out, components)
	return out
}

func cloneConnections(connections []Connection) []Connection {
	if connections == nil {
		return nil
	}
	out := make([]Connection, len(connections))
	copy(out, connections)
	return out
}
