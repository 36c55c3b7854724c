package limited

import (
	"context"
	"fmt"
	"strings"
)

// UnknownIdentity is the shared bucket for callers whose address cannot be determined.
const UnknownIdentity = "unknown"

// Limiter applies the fixed policy table over a Store.
type Limiter struct {
	store Store
	clock Clock
}

func NewLimiter(store Store) *Limiter {
	if store == nil {
		store = NewMemoryStore()
	}
	return &Limiter{store: store, clock: RealClock{}}
}

func (l *Limiter) SetClock(clock Clock) {
	if clock == nil {
		clock = RealClock{}
	}
	l.clock = clock
}

// Check counts one request for identity against the category policy.
//
// When the store fails, Check admits the request and returns both the permissive
// decision and the store error so the caller can report it.
func (l *Limiter) Check(ctx context.Context, identity string, category Category) (*Decision, error) {
	policy, ok := PolicyFor(category)
	if !ok {
		return nil, NewError(ErrorTypeInvalidInput, fmt.Sprintf("unknown rate limit category %q", category))
	}
	return l.CheckPolicy(ctx, identity, category, policy)
}

// CheckPolicy is Check with an explicit policy.
func (l *Limiter) CheckPolicy(ctx context.Context, identity string, category Category, policy Policy) (*Decision, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	if policy.Threshold <= 0 || policy.Window <= 0 {
		return nil, NewError(ErrorTypeInvalidInput, "policy threshold and window must be positive")
	}

	identity = strings.TrimSpace(identity)
	if identity == "" {
		identity = UnknownIdentity
	}

	now := l.clock.Now()
	window := GetFixedWindow(now, policy.Window)

	decision := &Decision{
		Allowed:     true,
		Limit:       policy.Threshold,
		WindowStart: window.Start,
		ResetsAt:    window.End,
	}

	count, err := l.store.Increment(ctx, Bucket{
		Identity:    identity,
		Category:    category,
		WindowStart: window.Start,
		Window:      policy.Window,
	})
	if err != nil {
		return decision, WrapError(err, ErrorTypeStore, "rate limit store unavailable")
	}

	decision.Count = int(count)
	if decision.Count > policy.Threshold {
		decision.Allowed = false
		decision.RetryAfter = RetryAfter(now, window)
	}
	return decision, nil
}
