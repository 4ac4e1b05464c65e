package sweep

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/time/rate"
)

// Budget is the global delete-call allowance shared across all chats.  It
// spaces calls evenly at window/calls intervals with no burst credit, which
// guarantees that no sliding window of the configured size ever contains more
// than the allowed number of calls.  Acquire blocks, it never busy-spins.
type Budget struct {
	lim    *rate.Limiter
	calls  int
	window time.Duration
}

// NewBudget creates a budget of calls per window.  calls <= 0 means
// unlimited.
func NewBudget(calls int, window time.Duration) *Budget {
	b := &Budget{calls: calls, window: window}
	if calls <= 0 || window <= 0 {
		b.lim = rate.NewLimiter(rate.Inf, 1)
		return b
	}
	b.lim = rate.NewLimiter(rate.Every(window/time.Duration(calls)), 1)
	return b
}

// Acquire blocks until one call is allowed, or until ctx is cancelled.
func (b *Budget) Acquire(ctx context.Context) error {
	return b.lim.Wait(ctx)
}

func (b *Budget) String() string {
	if b.calls <= 0 {
		return "unlimited"
	}
	return fmt.Sprintf("%d calls per %s", b.calls, b.window)
}
