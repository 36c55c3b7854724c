// Package limited provides fixed-window rate limiting for the music API.
//
// Counters live in a pluggable Store: an in-process map, Redis, or DynamoDB via TableTheory.
package limited

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Category names a rate limit tier.
type Category string

const (
	CategoryExternalAPI Category = "EXTERNAL_API"
	CategoryAdmin       Category = "ADMIN"
	CategoryRead        Category = "READ"
	CategoryWrite       Category = "WRITE"
)

// Policy is the admission rule for one category: at most Threshold requests per Window.
type Policy struct {
	Threshold int
	Window    time.Duration
}

// NewPolicy validates and builds a Policy.
func NewPolicy(threshold int, window time.Duration) (Policy, error) {
	if threshold <= 0 {
		return Policy{}, NewError(ErrorTypeInvalidInput, fmt.Sprintf("threshold must be positive, got %d", threshold))
	}
	if window <= 0 {
		return Policy{}, NewError(ErrorTypeInvalidInput, fmt.Sprintf("window must be positive, got %s", window))
	}
	return Policy{Threshold: threshold, Window: window}, nil
}

var policies = map[Category]Policy{
	CategoryExternalAPI: {Threshold: 30, Window: time.Minute},
	CategoryAdmin:       {Threshold: 100, Window: time.Minute},
	CategoryRead:        {Threshold: 30, Window: time.Minute},
	CategoryWrite:       {Threshold: 10, Window: time.Minute},
}

// PolicyFor returns the fixed policy for category.
func PolicyFor(category Category) (Policy, bool) {
	p, ok := policies[category]
	return p, ok
}

// Categories returns every known category in a stable order.
func Categories() []Category {
	return []Category{CategoryExternalAPI, CategoryAdmin, CategoryRead, CategoryWrite}
}

// Decision is the outcome of a single Check.
type Decision struct {
	Allowed     bool
	Count       int
	Limit       int
	WindowStart time.Time
	ResetsAt    time.Time
	RetryAfter  time.Duration
}

// Remaining is the number of requests still admitted in the current window.
func (d *Decision) Remaining() int {
	if d == nil {
		return 0
	}
	if rem := d.Limit - d.Count; rem > 0 {
		return rem
	}
	return 0
}

// Store increments the counter for a bucket and returns the post-increment count.
//
// Implementations must serialize concurrent increments of the same bucket so that
// no two callers observe the same count.
type Store interface {
	Increment(ctx context.Context, bucket Bucket) (int64, error)
}

// Bucket identifies one counter: an identity, a category, and a window.
type Bucket struct {
	Identity    string
	Category    Category
	WindowStart time.Time
	Window      time.Duration
}

// ExpiresAt is when the bucket can be discarded.
func (b Bucket) ExpiresAt() time.Time {
	return b.WindowStart.Add(b.Window)
}

// Clock allows deterministic testing of time-sensitive logic.
type Clock interface {
	Now() time.Time
}

// RealClock implements Clock using actual time.
type RealClock struct{}

func (RealClock) Now() time.Time { return time.Now() }

// ErrorType identifies the category of a rate limiter error.
type ErrorType string

const (
	ErrorTypeInternal     ErrorType = "internal_error"
	ErrorTypeStore        ErrorType = "store_error"
	ErrorTypeInvalidInput ErrorType = "invalid_input"
)

// Error represents a rate limiter error.
type Error struct {
	Type    ErrorType
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e == nil {
		return "rate limiter error"
	}
	if e.Cause != nil {
		return e.Message + ": " + e.Cause.Error()
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Cause
}

func NewError(errorType ErrorType, message string) *Error {
	return &Error{Type: errorType, Message: message}
}

func WrapError(cause error, errorType ErrorType, message string) *Error {
	return &Error{Type: errorType, Message: message, Cause: cause}
}

// IsStoreError reports whether err came from the backing store.
func IsStoreError(err error) bool {
	var limitErr *Error
	return errors.As(err, &limitErr) && limitErr.Type == ErrorTypeStore
}
