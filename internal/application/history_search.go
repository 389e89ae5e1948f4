package application

import (
	"context"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/agnivade/levenshtein"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/text/cases"

	"github.com/ahrav/go-concord/internal/domain"
)

// foldCaser is a package-level Unicode case folder for performance.
// This avoids creating a new caser for each string preparation.
var foldCaser = cases.Fold()

// HistorySearchConfig defines the matching behavior for fuzzy searches
// over a debate history.
type HistorySearchConfig struct {
	// Threshold defines the minimum similarity score (0.0-1.0) for a
	// match. Scores below this threshold are filtered out.
	Threshold float64 `yaml:"threshold" json:"threshold"`

	// CaseSensitive determines whether string comparison is
	// case-sensitive. When false, both strings are case-folded before
	// comparison.
	CaseSensitive bool `yaml:"case_sensitive" json:"case_sensitive"`
}

// DefaultHistorySearchConfig returns a HistorySearchConfig with
// sensible defaults.
func DefaultHistorySearchConfig() HistorySearchConfig {
	return HistorySearchConfig{
		Threshold:     0.8,
		CaseSensitive: false,
	}
}

// FeedbackMatch records a verdict whose feedback or suggested changes
// approximately matched a search query.
type FeedbackMatch struct {
	// Round is the 1-based round number the verdict belongs to.
	Round int `json:"round"`
	// Role identifies the panel seat that produced the verdict.
	Role domain.Role `json:"role"`
	// Similarity is the best normalized similarity found (0.0-1.0).
	Similarity float64 `json:"similarity"`
	// Feedback is the full feedback text of the matched verdict.
	Feedback string `json:"feedback"`
}

// ComponentMatch records a proposal component whose name approximately
// matched a search query.
type ComponentMatch struct {
	// Round is the 1-based round number the proposal belongs to.
	Round int `json:"round"`
	// Component is the declared component name that matched.
	Component string `json:"component"`
	// Similarity is the normalized similarity score (0.0-1.0).
	Similarity float64 `json:"similarity"`
}

// HistorySearch performs fuzzy matching over recorded debate rounds
// using Levenshtein distance. Exact substring lookups are served by
// History.FindRoundsMentioning; this type exists for audit tooling
// that must tolerate typos and morphological drift ("cache" versus
// "caching") in reviewer feedback and component naming.
//
// The search is deterministic and requires no LLM. HistorySearch is
// stateless and safe for concurrent use.
type HistorySearch struct {
	config HistorySearchConfig
	tracer trace.Tracer
}

// NewHistorySearch creates a HistorySearch with the given
// configuration. Returns an error if the threshold is outside the
// [0.0, 1.0] range.
func NewHistorySearch(config HistorySearchConfig) (*HistorySearch, error) {
	if config.Threshold < 0.0 || config.Threshold > 1.0 {
		return nil, fmt.Errorf("threshold must be between 0.0 and 1.0, got %f", config.Threshold)
	}

	return &HistorySearch{
		config: config,
		tracer: otel.Tracer("history-search"),
	}, nil
}

// SearchFeedback scans every verdict in the history and reports those
// whose feedback or suggested changes approximately match the query.
// Each verdict yields at most one match carrying its best similarity.
// Results are ordered by round number, then panel order.
func (hs *HistorySearch) SearchFeedback(ctx context.Context, history *domain.History, query string) []FeedbackMatch {
	_, span := hs.tracer.Start(ctx, "HistorySearch.SearchFeedback",
		trace.WithAttributes(
			attribute.Float64("search.threshold", hs.config.Threshold),
			attribute.Int("search.query_length", len(query)),
		),
	)
	defer span.End()

	prepared := hs.prepareString(query)

	var matches []FeedbackMatch
	for _, round := range history.Rounds() {
		for _, verdict := range round.Verdicts {
			best := hs.bestSimilarity(prepared, verdict.Feedback)
			for _, change := range verdict.SuggestedChanges {
				if s := hs.bestSimilarity(prepared, change); s > best {
					best = s
				}
			}

			if best >= hs.config.Threshold {
				matches = append(matches, FeedbackMatch{
					Round:      round.Number,
					Role:       verdict.Role,
					Similarity: best,
					Feedback:   verdict.Feedback,
				})
			}
		}
	}

	span.SetAttributes(attribute.Int("search.matches", len(matches)))
	return matches
}

// SearchComponents scans every proposal in the history and reports
// component names that approximately match the query. A component
// appearing in several rounds yields one match per round, so callers
// can see when a component entered or left the design.
func (hs *HistorySearch) SearchComponents(ctx context.Context, history *domain.History, query string) []ComponentMatch {
	_, span := hs.tracer.Start(ctx, "HistorySearch.SearchComponents",
		trace.WithAttributes(
			attribute.Float64("search.threshold", hs.config.Threshold),
			attribute.Int("search.query_length", len(query)),
		),
	)
	defer span.End()

	prepared := hs.prepareString(query)

	var matches []ComponentMatch
	for _, round := range history.Rounds() {
		for _, name := range round.Proposal.ComponentNames() {
			similarity := hs.calculateSimilarity(prepared, hs.prepareString(name))
			if similarity >= hs.config.Threshold {
				matches = append(matches, ComponentMatch{
					Round:      round.Number,
					Component:  name,
					Similarity: similarity,
				})
			}
		}
	}

	span.SetAttributes(attribute.Int("search.matches", len(matches)))
	return matches
}

// bestSimilarity computes the highest similarity between the prepared
// query and any whitespace-delimited token of the candidate text.
// Token-level comparison keeps short queries useful against long
// feedback paragraphs, where whole-string distance would drown the
// signal.
func (hs *HistorySearch) bestSimilarity(preparedQuery, text string) float64 {
	best := 0.0
	for _, token := range strings.Fields(text) {
		similarity := hs.calculateSimilarity(preparedQuery, hs.prepareString(token))
		if similarity > best {
			best = similarity
		}
		if best == 1.0 {
			break
		}
	}
	return best
}

// prepareString normalizes a string according to the search
// configuration, applying Unicode case folding when the search is
// case-insensitive.
func (hs *HistorySearch) prepareString(s string) string {
	if hs.config.CaseSensitive {
		return s
	}
	return foldCaser.String(s)
}

// calculateSimilarity computes the similarity score between two
// strings using the Levenshtein distance algorithm. Returns a value
// between 0.0 and 1.0 where 1.0 indicates identical strings and 0.0
// indicates maximum dissimilarity.
func (hs *HistorySearch) calculateSimilarity(s1, s2 string) float64 {
	if s1 == s2 {
		return 1.0
	}

	// The levenshtein library operates on runes, so the maximum
	// possible distance must use rune counts for Unicode correctness.
	distance := levenshtein.ComputeDistance(s1, s2)

	maxLen := utf8.RuneCountInString(s1)
	if n := utf8.RuneCountInString(s2); n > maxLen {
		maxLen = n
	}

	// Two empty strings are identical.
	if maxLen == 0 {
		return 1.0
	}

	similarity := 1.0 - float64(distance)/float64(maxLen)

	// Guard against floating-point drift below zero.
	if similarity < 0 {
		similarity = 0
	}

	return similarity
}
