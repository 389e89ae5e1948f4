package domain

import "fmt"

// Role identifies one fixed position on the review panel.
// The set of roles is closed: adding a reviewer specialty means
// extending this variant set, and every variant is reached through the
// same capability interface rather than through subtyping.
type Role string

const (
	// RoleArchitect owns overall structural soundness. It is also the
	// only role consulted when a rejected proposal needs revision.
	RoleArchitect Role = "architect"

	// RoleLatencyCritic evaluates the latency characteristics implied by
	// component interactions.
	RoleLatencyCritic Role = "latency_critic"

	// RoleSecurityGuard evaluates trust boundaries and exposure.
	RoleSecurityGuard Role = "security_guard"
)

// AllRoles returns the panel in canonical order. Verdicts within a
// round are stored in this order so serialized debates are
// deterministic regardless of which reviewer answered first.
func AllRoles() []Role {
	return []Role{RoleArchitect, RoleLatencyCritic, RoleSecurityGuard}
}

// ParseRole converts a wire-format string into a Role.
// It returns ErrUnknownRole for anything outside the closed set.
func ParseRole(s string) (Role, error) {
	switch Role(s) {
	case RoleArchitect, RoleLatencyCritic, RoleSecurityGuard:
		return Role(s), nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownRole, s)
	}
}

// Valid reports whether the role belongs to the closed panel set.
func (r Role) Valid() bool {
	_, err := ParseRole(string(r))
	return err == nil
}

// String returns the wire name of the role.
func (r Role) String() string { return string(r) }
