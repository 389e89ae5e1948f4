package application

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"time"

	"github.com/ahrav/go-concord/internal/domain"
	"github.com/ahrav/go-concord/internal/ports"
)

// Default invocation resilience constants.
const (
	// DefaultMaxAttempts is the default total number of attempts per
	// invocation, the first try included.
	DefaultMaxAttempts = 3
	// DefaultBaseDelay is the default initial delay before the first retry.
	DefaultBaseDelay = 1 * time.Second
	// DefaultMaxDelay is the default maximum delay between retry attempts.
	DefaultMaxDelay = 30 * time.Second
	// DefaultAttemptTimeout is the default deadline applied to each
	// individual attempt.
	DefaultAttemptTimeout = 30 * time.Second
	// DefaultJitterPercent is the default jitter percentage.
	DefaultJitterPercent = 0.1
)

// InvokerConfig defines the configuration for invocation resilience.
// These settings control the exponential backoff, jitter, and
// per-attempt deadlines used when calling reviewers and revisers.
type InvokerConfig struct {
	// MaxAttempts specifies the total number of attempts per invocation,
	// including the first try. A value of 1 means no retries.
	MaxAttempts int `yaml:"max_attempts" validate:"omitempty,min=1,max=10"`

	// BaseDelay sets the delay before the first retry. Subsequent delays
	// grow exponentially.
	BaseDelay time.Duration `yaml:"base_delay" validate:"omitempty,min=0"`

	// MaxDelay caps the delay between retry attempts to prevent
	// excessively long waits during exponential backoff.
	MaxDelay time.Duration `yaml:"max_delay" validate:"omitempty,min=0"`

	// AttemptTimeout bounds each individual attempt. A hung call is
	// abandoned when this deadline passes and counts as one failure.
	AttemptTimeout time.Duration `yaml:"attempt_timeout" validate:"omitempty,min=0"`

	// JitterPercent adds a random percentage of the current delay to
	// prevent a "thundering herd" scenario. It should be between 0.0 and 1.0.
	JitterPercent float64 `yaml:"jitter_percent" validate:"omitempty,min=0,max=1"`
}

// DefaultInvokerConfig returns an InvokerConfig with sensible default
// values suitable for most use cases.
func DefaultInvokerConfig() InvokerConfig {
	return InvokerConfig{
		MaxAttempts:    DefaultMaxAttempts,
		BaseDelay:      DefaultBaseDelay,
		MaxDelay:       DefaultMaxDelay,
		AttemptTimeout: DefaultAttemptTimeout,
		JitterPercent:  DefaultJitterPercent,
	}
}

// withDefaults fills zero-valued fields with the package defaults so a
// partially specified config behaves predictably.
func (c InvokerConfig) withDefaults() InvokerConfig {
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = DefaultMaxAttempts
	}
	if c.BaseDelay <= 0 {
		c.BaseDelay = DefaultBaseDelay
	}
	if c.MaxDelay <= 0 {
		c.MaxDelay = DefaultMaxDelay
	}
	if c.AttemptTimeout <= 0 {
		c.AttemptTimeout = DefaultAttemptTimeout
	}
	if c.JitterPercent < 0 || c.JitterPercent > 1 {
		c.JitterPercent = DefaultJitterPercent
	}
	return c
}

// Invoker executes reviewer and reviser calls with bounded retries,
// exponential backoff, and per-attempt timeouts. It is the only place
// in the engine that retries: transport-level middleware deliberately
// carries no retry logic so a single invocation is never retried at two
// levels.
//
// The Invoker is thread-safe and can be shared across concurrent
// invocations.
type Invoker struct {
	config  InvokerConfig
	metrics ports.MetricsCollector
}

// NewInvoker creates an Invoker with the provided configuration.
// Zero-valued config fields fall back to package defaults. The metrics
// collector may be nil, in which case attempt accounting is skipped.
func NewInvoker(config InvokerConfig, metrics ports.MetricsCollector) *Invoker {
	return &Invoker{
		config:  config.withDefaults(),
		metrics: metrics,
	}
}

// InvokeReviewer runs a single reviewer against the debate context with
// full resilience semantics. It never returns an error: when every
// attempt fails, the returned verdict is marked unavailable and carries
// the final failure reason, so one misbehaving reviewer can never abort
// the debate.
//
// A verdict obtained after retries is indistinguishable from one
// obtained on the first try. Attempt counts surface only through the
// metrics collector.
func (inv *Invoker) InvokeReviewer(ctx context.Context, reviewer ports.Reviewer, dctx domain.DebateContext) domain.Verdict {
	role := reviewer.Role()
	verdict, err := invokeWithRetry(ctx, inv, role, "review", func(attemptCtx context.Context) (domain.Verdict, error) {
		return reviewer.Review(attemptCtx, dctx)
	})
	if err != nil {
		return domain.NewUnavailableVerdict(role, err.Error())
	}
	return verdict
}

// InvokeReviser runs the reviser against the debate context with the
// same resilience semantics as InvokeReviewer. When every attempt
// fails, it reports ok=false so the caller can carry the current
// proposal forward unchanged.
func (inv *Invoker) InvokeReviser(ctx context.Context, reviser ports.Reviser, dctx domain.DebateContext) (domain.Proposal, bool) {
	proposal, err := invokeWithRetry(ctx, inv, domain.RoleArchitect, "revise", func(attemptCtx context.Context) (domain.Proposal, error) {
		return reviser.Revise(attemptCtx, dctx)
	})
	if err != nil {
		return domain.Proposal{}, false
	}
	return proposal, true
}

// invokeWithRetry executes fn with exponential backoff until it
// succeeds, the attempt budget is exhausted, a non-retryable error
// occurs, or the parent context ends. Each attempt runs under its own
// timeout derived from the parent context.
func invokeWithRetry[T any](
	ctx context.Context,
	inv *Invoker,
	role domain.Role,
	operation string,
	fn func(context.Context) (T, error),
) (T, error) {
	var zero T
	var lastErr error

	attempts := 0
	for attempt := 0; attempt < inv.config.MaxAttempts; attempt++ {
		if ctx.Err() != nil {
			break
		}
		attempts++

		attemptCtx, cancel := context.WithTimeout(ctx, inv.config.AttemptTimeout)
		result, err := fn(attemptCtx)
		cancel()
		if err == nil {
			inv.recordOutcome(role, operation, attempts, "success")
			return result, nil
		}

		lastErr = err

		// The parent ending mid-attempt is not a transient provider
		// failure; stop immediately rather than burning the budget.
		if ctx.Err() != nil || !isRetryable(err) {
			break
		}
		if attempt == inv.config.MaxAttempts-1 {
			break
		}

		select {
		case <-ctx.Done():
			inv.recordOutcome(role, operation, attempts, "exhausted")
			return zero, fmt.Errorf("context cancelled during retry: %w", ctx.Err())
		case <-time.After(inv.calculateDelay(attempt)):
		}
	}

	if lastErr == nil {
		lastErr = ctx.Err()
	}
	inv.recordOutcome(role, operation, attempts, "exhausted")
	return zero, fmt.Errorf("%s failed after %d attempts: %w", operation, attempts, lastErr)
}

// calculateDelay calculates the appropriate delay for an exponential
// backoff strategy, including jitter to prevent request storms.
func (inv *Invoker) calculateDelay(attempt int) time.Duration {
	if attempt < 0 {
		attempt = 0
	}
	if attempt > 30 {
		attempt = 30
	}
	// #nosec G115 - attempt is bounded between 0 and 30
	multiplier := 1 << uint(attempt)
	delay := inv.config.BaseDelay * time.Duration(multiplier)
	if delay > inv.config.MaxDelay || delay <= 0 {
		delay = inv.config.MaxDelay
	}

	jitter := int64(float64(delay) * inv.config.JitterPercent)
	if jitter > 0 {
		//nolint:gosec // G404: math/rand is acceptable for retry jitter timing.
		delay += time.Duration(rand.Int64N(2*jitter) - jitter)
	}

	if delay < inv.config.BaseDelay {
		return inv.config.BaseDelay
	}
	return delay
}

// recordOutcome emits attempt accounting without attaching anything to
// the returned value itself.
func (inv *Invoker) recordOutcome(role domain.Role, operation string, attempts int, status string) {
	if inv.metrics == nil {
		return
	}
	labels := map[string]string{
		"role":      string(role),
		"operation": operation,
		"status":    status,
	}
	inv.metrics.RecordCounter("debate_invocations_total", 1, labels)
	inv.metrics.RecordHistogram("debate_invocation_attempts", float64(attempts), labels)
}

// isRetryable reports whether an invocation error is worth another
// attempt. Errors that classify themselves via IsRetryable are
// respected; anything unclassified is assumed transient.
func isRetryable(err error) bool {
	if err == nil {
		return false
	}
	var retryable interface{ IsRetryable() bool }
	if errors.As(err, &retryable) {
		return retryable.IsRetryable()
	}
	return true
}
