package router

import "errors"

var (
	// ErrUnauthorized is returned when the caller lacks the authority the
	// operation requires.
	ErrUnauthorized = errors.New("unauthorized")
	// ErrInactiveStrategy is returned when the vault does not report the
	// strategy as active.
	ErrInactiveStrategy = errors.New("inactive strategy")
	// ErrStackFull is returned when appending to a stack that already holds
	// MaxStackSize strategies.
	ErrStackFull = errors.New("stack full")
	// ErrStackTooLong is returned when a replacement stack exceeds MaxStackSize.
	ErrStackTooLong = errors.New("stack too long")
	// ErrSameStrategy is returned when replacing a stack entry with itself.
	ErrSameStrategy = errors.New("same strategy")
	// ErrDuplicateStrategy is returned when a strategy would appear in a
	// stack more than once.
	ErrDuplicateStrategy = errors.New("duplicate strategy")
	// ErrStrategyNotFound is returned when removing a strategy that is not
	// in the stack.
	ErrStrategyNotFound = errors.New("strategy not in stack")
	// ErrInvalidIndex is returned when a stack position is not occupied.
	ErrInvalidIndex = errors.New("invalid stack index")
	// ErrZeroGovernance is returned when constructing a router without
	// a governance address.
	ErrZeroGovernance = errors.New("governance must not be the zero address")
)

var errorKinds = []struct {
	err  error
	kind string
}{
	{ErrUnauthorized, "unauthorized"},
	{ErrInactiveStrategy, "inactive_strategy"},
	{ErrStackFull, "stack_full"},
	{ErrStackTooLong, "stack_too_long"},
	{ErrSameStrategy, "same_strategy"},
	{ErrDuplicateStrategy, "duplicate_strategy"},
	{ErrStrategyNotFound, "not_found"},
	{ErrInvalidIndex, "invalid_index"},
}

// Kind classifies err into a short label suitable for metrics.
// Errors not produced by the router (e.g. storage failures) are "error".
func Kind(err error) string {
	if err == nil {
		return "success"
	}
	for _, k := range errorKinds {
		if errors.Is(err, k.err) {
			return k.kind
		}
	}
	return "error"
}

// IsRejection reports whether err is one of the router's precondition
// failures, as opposed to a collaborator or storage failure.
func IsRejection(err error) bool {
	k := Kind(err)
	return k != "success" && k != "error"
}
