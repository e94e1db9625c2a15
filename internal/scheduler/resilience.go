package scheduler

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/sony/gobreaker"

	"github.com/crewlab/conductor/internal/log"
)

// breakerRegistry keeps one circuit breaker per role. A role whose worker
// keeps failing is cut off for a cooldown period instead of burning the
// retry budget of every queued task.
type breakerRegistry struct {
	mu       sync.Mutex
	breakers map[string]*gobreaker.CircuitBreaker
}

func newBreakerRegistry() *breakerRegistry {
	return &breakerRegistry{
		breakers: make(map[string]*gobreaker.CircuitBreaker),
	}
}

// get returns the breaker for the role, creating it on first use.
func (r *breakerRegistry) get(role string) *gobreaker.CircuitBreaker {
	r.mu.Lock()
	defer r.mu.Unlock()

	if cb, ok := r.breakers[role]; ok {
		return cb
	}

	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        role,
		MaxRequests: 3,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Get().Warnf("circuit breaker for role %q: %s -> %s", name, from, to)
		},
		IsSuccessful: func(err error) bool {
			// Caller cancellation is not a worker fault.
			if err == nil || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return true
			}
			return false
		},
	})
	r.breakers[role] = cb
	return cb
}
