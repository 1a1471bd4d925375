package domain

import (
	"fmt"
	"strconv"
)

// AttemptBudget bounds how many attempts the loop may spend on one image.
// The zero value is not valid; use Bounded or Unbounded.
type AttemptBudget struct {
	max       int
	unbounded bool
}

// Bounded returns a budget of n attempts. Values below one are raised to one.
func Bounded(n int) AttemptBudget {
	if n < 1 {
		n = 1
	}
	return AttemptBudget{max: n}
}

// Unbounded returns a budget that never runs out. A loop using it only stops
// on success or on a non-retryable failure.
func Unbounded() AttemptBudget {
	return AttemptBudget{unbounded: true}
}

// ParseAttemptBudget maps the legacy configuration encoding, where 0 meant
// "retry forever", onto an explicit budget.
func ParseAttemptBudget(n int) (AttemptBudget, error) {
	switch {
	case n == 0:
		return Unbounded(), nil
	case n < 0:
		return AttemptBudget{}, fmt.Errorf("%w: max attempts must be >= 0, got %d", ErrInvalidPlan, n)
	default:
		return Bounded(n), nil
	}
}

// IsUnbounded reports whether the budget never runs out.
func (b AttemptBudget) IsUnbounded() bool { return b.unbounded }

// Max returns the bound, or 0 for an unbounded budget.
func (b AttemptBudget) Max() int {
	if b.unbounded {
		return 0
	}
	return b.max
}

// Exhausted reports whether `attempt` attempts used up the budget.
func (b AttemptBudget) Exhausted(attempt int) bool {
	if b.unbounded {
		return false
	}
	return attempt >= b.max
}

func (b AttemptBudget) valid() bool {
	return b.unbounded || b.max >= 1
}

func (b AttemptBudget) String() string {
	if b.unbounded {
		return "unbounded"
	}
	return strconv.Itoa(b.max)
}

// BatchPlan is created once per user-initiated run and not modified after.
type BatchPlan struct {
	Base        GenerationRequest
	TotalImages int
	MaxAttempts AttemptBudget
}

// Validate checks the plan invariants.
func (p BatchPlan) Validate() error {
	if p.TotalImages < 1 {
		return fmt.Errorf("%w: total images must be >= 1, got %d", ErrInvalidPlan, p.TotalImages)
	}
	if !p.MaxAttempts.valid() {
		return fmt.Errorf("%w: attempt budget is not set", ErrInvalidPlan)
	}
	return nil
}
