package reviewers

import (
	"encoding/json"
	"fmt"
	"strings"
	"text/template"

	"github.com/ahrav/go-concord/internal/domain"
)

// PromptData is the payload handed to reviewer and reviser prompt
// templates. Field names are part of the configuration contract:
// operator-supplied templates reference them directly, for example
// {{.Proposal}} or {{range .PriorFeedback}}.
type PromptData struct {
	// Role is the panel position the prompt speaks for.
	Role string

	// DebateID correlates the invocation with observer events and spans.
	DebateID string

	// RoundNumber is the 1-based round the invocation belongs to.
	RoundNumber int

	// RoundLimit is the configured round budget of the debate.
	RoundLimit int

	// ProposalVersion is the version of the proposal under evaluation.
	ProposalVersion int

	// Proposal is the indented JSON encoding of the full proposal.
	Proposal string

	// Rationale is the proposal author's free-text justification.
	Rationale string

	// PriorFeedback carries the previous round's dissent, one entry per
	// dissenting reviewer.
	PriorFeedback []FeedbackEntry
}

// FeedbackEntry is one dissenting voice from the previous round as seen
// by a prompt template.
type FeedbackEntry struct {
	// Role identifies the dissenting reviewer.
	Role string

	// Feedback is the dissenting critique.
	Feedback string

	// SuggestedChanges lists the concrete revisions the dissenter asked
	// for.
	SuggestedChanges []string
}

// buildPromptData assembles the template payload from the structured
// debate context. The proposal is required; correlation fields and
// prior feedback are optional. Only dissenting verdicts are surfaced:
// approvals and unavailable seats carry no revision signal.
func buildPromptData(role domain.Role, dctx domain.DebateContext) (PromptData, error) {
	proposal, ok := domain.Get(dctx, domain.KeyProposal)
	if !ok {
		return PromptData{}, ErrProposalMissing
	}

	encoded, err := json.MarshalIndent(proposal, "", "  ")
	if err != nil {
		return PromptData{}, fmt.Errorf("failed to encode proposal: %w", err)
	}

	data := PromptData{
		Role:            string(role),
		ProposalVersion: proposal.Version,
		Proposal:        string(encoded),
		Rationale:       proposal.Rationale,
	}

	if id, ok := domain.Get(dctx, domain.KeyDebateID); ok {
		data.DebateID = id
	}
	if number, ok := domain.Get(dctx, domain.KeyRoundNumber); ok {
		data.RoundNumber = number
	}
	if limit, ok := domain.Get(dctx, domain.KeyRoundLimit); ok {
		data.RoundLimit = limit
	}
	if verdicts, ok := domain.Get(dctx, domain.KeyPriorFeedback); ok {
		for _, v := range verdicts {
			if !v.Dissenting() {
				continue
			}
			data.PriorFeedback = append(data.PriorFeedback, FeedbackEntry{
				Role:             string(v.Role),
				Feedback:         v.Feedback,
				SuggestedChanges: v.SuggestedChanges,
			})
		}
	}

	return data, nil
}

// promptFuncs returns the function map available to prompt templates.
// Functions are stateless and safe for concurrent template execution,
// and return safe defaults instead of panicking so a malformed template
// surfaces as a render error, never a crash.
func promptFuncs() template.FuncMap {
	return template.FuncMap{
		// add performs integer addition.
		// Template usage: {{add .RoundNumber 1}}
		"add": func(a, b int) int { return a + b },

		// sub performs integer subtraction.
		// Template usage: {{sub .RoundLimit .RoundNumber}}
		"sub": func(a, b int) int { return a - b },

		// join concatenates elements with separator between them.
		// Template usage: {{join .SuggestedChanges "; "}}
		"join": func(elems []string, sep string) string {
			return strings.Join(elems, sep)
		},

		// truncate limits string length, adding "..." if truncated.
		// Template usage: {{truncate .Rationale 200}}
		"truncate": func(s string, length int) string {
			if length <= 0 {
				return ""
			}
			if len(s) <= length {
				return s
			}
			if length > 3 {
				return s[:length-3] + "..."
			}
			return s[:length]
		},

		// lower maps Unicode letters to lowercase.
		// Template usage: {{lower .Role}}
		"lower": func(s string) string { return strings.ToLower(s) },
	}
}

// compilePrompt parses a prompt template with the shared function map.
func compilePrompt(name, text string) (*template.Template, error) {
	tmpl, err := template.New(name).Funcs(promptFuncs()).Parse(text)
	if err != nil {
		return nil, fmt.Errorf("failed to parse %s template: %w", name, err)
	}
	return tmpl, nil
}

// sharedPromptPreamble renders the negotiation context common to every
// seat: round position, the design under review, and the previous
// round's dissent.
const sharedPromptPreamble = `This is round {{.RoundNumber}} of at most {{.RoundLimit}} in a design debate.
You are the {{.Role}} reviewer on a fixed three-seat panel.

Proposed design (version {{.ProposalVersion}}):
{{.Proposal}}
{{if .PriorFeedback}}
Unresolved dissent from the previous round:
{{range .PriorFeedback}}- [{{.Role}}] {{.Feedback}}{{if .SuggestedChanges}} (suggested: {{join .SuggestedChanges "; "}}){{end}}
{{end}}{{end}}`

// Role-specific review instructions appended to the shared preamble.
// Each seat evaluates the same design through a different lens; the
// JSON output contract is appended in code, not written here, so
// operator overrides cannot accidentally drop it.
var roleInstructions = map[domain.Role]string{
	domain.RoleArchitect: `Evaluate the design as the system architect.
Approve only if the design is structurally sound: every component has a
single clear responsibility, no component is orphaned, connections
reference real components, and the decomposition matches the stated
rationale. Flag missing components, overlapping responsibilities, and
interaction modes that contradict the component categories.`,

	domain.RoleLatencyCritic: `Evaluate the design as the latency critic.
Approve only if the hot paths are defensible: look for long synchronous
call chains, blocking calls into datastores on request paths, missing
caches or queues where load patterns demand them, and streaming
declared where request/response would be cheaper. Quantify the latency
concern when you dissent.`,

	domain.RoleSecurityGuard: `Evaluate the design as the security guard.
Approve only if the attack surface is controlled: look for datastores
reachable without an intermediary service, components that mix trust
levels, flows that would carry sensitive data unprotected, and missing
authentication or authorization boundaries between zones. Name the
exposed component when you dissent.`,
}

// DefaultReviewPrompt returns the built-in prompt template for a panel
// role. Operators can replace it per seat through configuration; the
// default keeps each seat's lens distinct so a panel of identical
// models still debates from three directions.
func DefaultReviewPrompt(role domain.Role) string {
	instructions, ok := roleInstructions[role]
	if !ok {
		instructions = `Evaluate the design and approve only if you find no significant concern.`
	}
	return sharedPromptPreamble + "\n" + instructions
}

// DefaultRevisePrompt returns the built-in prompt template for the
// revision step.
func DefaultRevisePrompt() string {
	return sharedPromptPreamble + `
You are revising the design to address the dissent above. Produce the
complete next version of the design, not a diff. Keep every component
the dissent did not challenge, change what it did, and explain in the
rationale how each dissenting concern was addressed. There are
{{sub .RoundLimit .RoundNumber}} rounds remaining, so prefer the
smallest revision that can win unanimous approval.`
}

// reviewJSONContract is appended to every rendered review prompt. The
// contract lives in code so configured templates cannot drop it.
const reviewJSONContract = "\n\nIMPORTANT: You must respond with valid JSON in exactly this format:\n" +
	`{"approved": <true|false>, "feedback": "<your critique>", "suggested_changes": ["<concrete change>"], "version": 1}`

// revisionJSONContract is appended to every rendered revision prompt.
const revisionJSONContract = "\n\nIMPORTANT: You must respond with valid JSON in exactly this format:\n" +
	`{"components": [{"name": "<name>", "category": "<category>", "responsibility": "<what it owns>", "estimated_cost": <number>}], ` +
	`"connections": [{"from": "<name>", "to": "<name>", "mode": "<synchronous|asynchronous|streaming>"}], ` +
	`"rationale": "<how the dissent was addressed>", "version": 1}`
