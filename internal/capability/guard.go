package capability

import (
	"context"
	"errors"
	"fmt"

	"github.com/kryptik-dev/omni/internal/resilience"
)

// Guard wraps c's handler in the given circuit breaker. While the breaker is
// open, calls fail immediately with an "unavailable" error instead of hitting
// the backing service; the dispatcher turns that into an error result like
// any other handler failure.
func Guard(c Capability, cb *resilience.CircuitBreaker) Capability {
	inner := c.Handler
	name := c.Definition.Name
	c.Handler = func(ctx context.Context, args map[string]any) (map[string]any, error) {
		var out map[string]any
		err := cb.Execute(func() error {
			var innerErr error
			out, innerErr = inner(ctx, args)
			return innerErr
		})
		if errors.Is(err, resilience.ErrCircuitOpen) {
			return nil, fmt.Errorf("capability %q is temporarily unavailable: %w", name, err)
		}
		return out, err
	}
	return c
}

// GuardAll wraps every capability with its own circuit breaker. The breakers
// share cfg's thresholds; each is named after its capability so log lines
// identify which backend tripped.
func GuardAll(caps []Capability, cfg resilience.CircuitBreakerConfig) []Capability {
	guarded := make([]Capability, len(caps))
	for i, c := range caps {
		perCap := cfg
		perCap.Name = c.Definition.Name
		guarded[i] = Guard(c, resilience.NewCircuitBreaker(perCap))
	}
	return guarded
}
