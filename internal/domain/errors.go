package domain

import (
	"errors"
	"fmt"
)

// Common domain errors that can occur while assembling or replaying a
// debate.
var (
	// ErrUnknownRole indicates a role outside the closed panel set.
	ErrUnknownRole = errors.New("unknown reviewer role")

	// ErrNoRounds indicates an operation that requires at least one
	// recorded round was applied to an empty history.
	ErrNoRounds = errors.New("history contains no rounds")

	// ErrRoundOutOfOrder indicates an append that would break the
	// contiguous 1-based round numbering of a history.
	ErrRoundOutOfOrder = errors.New("round number out of order")

	// ErrVersionRegression indicates an append whose proposal version is
	// lower than the previous round's version.
	ErrVersionRegression = errors.New("proposal version regression")

	// ErrDuplicateVerdict indicates a round carrying more than one
	// verdict for the same role.
	ErrDuplicateVerdict = errors.New("duplicate verdict for role")

	// ErrEmptyRound indicates a round with no verdicts at all.
	ErrEmptyRound = errors.New("round has no verdicts")
)

// BudgetExceededError reports a capability invocation denied because
// the debate's invocation budget is spent. The wrapping middleware
// returns it instead of invoking the capability; retry layers treat it
// as permanent.
type BudgetExceededError struct {
	// LimitType names the exhausted resource, currently always "calls".
	LimitType string

	// Limit is the configured maximum for the resource.
	Limit int64

	// Used is the consumption the denied invocation would have reached.
	Used int64

	// Operation names the capability invocation that was denied.
	Operation string
}

// Error implements the error interface for BudgetExceededError.
func (e *BudgetExceededError) Error() string {
	return fmt.Sprintf("%s budget exceeded for %s: %d of %d", e.LimitType, e.Operation, e.Used, e.Limit)
}

// IsRetryable marks the error permanent. A spent budget cannot recover
// within the same debate, so retrying the invocation is never useful.
func (e *BudgetExceededError) IsRetryable() bool { return false }

// NewBudgetExceededError creates a BudgetExceededError for the given
// resource and operation.
func NewBudgetExceededError(limitType string, limit, used int64, operation string) *BudgetExceededError {
	return &BudgetExceededError{
		LimitType: limitType,
		Limit:     limit,
		Used:      used,
		Operation: operation,
	}
}

// ValidationError represents a fail-fast configuration or input error.
// It can contain multiple validation failures so callers see every
// problem at once instead of fixing them one by one.
type ValidationError struct {
	// Entity is the name of the entity that failed validation.
	Entity string

	// Errors contains the list of validation error messages.
	Errors []string
}

// Error implements the error interface for ValidationError.
func (e *ValidationError) Error() string {
	if len(e.Errors) == 1 {
		return fmt.Sprintf("validation error for %s: %s", e.Entity, e.Errors[0])
	}
	return fmt.Sprintf("validation errors for %s: %v", e.Entity, e.Errors)
}

// AddError adds a new error message to the validation error.
func (e *ValidationError) AddError(msg string) { e.Errors = append(e.Errors, msg) }

// Addf formats and adds a new error message to the validation error.
func (e *ValidationError) Addf(format string, args ...any) {
	e.Errors = append(e.Errors, fmt.Sprintf(format, args...))
}

// HasErrors returns true if there are any validation errors.
func (e *ValidationError) HasErrors() bool { return len(e.Errors) > 0 }

// ErrOrNil returns the error itself when it has accumulated failures
// and nil otherwise, so validators can return it unconditionally.
func (e *ValidationError) ErrOrNil() error {
	if e.HasErrors() {
		return e
	}
	return nil
}

// NewValidationError creates a new ValidationError for the given entity.
func NewValidationError(entity string) *ValidationError {
	return &ValidationError{
		Entity: entity,
		Errors: make([]string, 0),
	}
}
