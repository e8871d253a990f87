package throttling

import (
	"context"
	"time"
)

// CheckType is the category of subject being throttled.
type CheckType string

const (
	IP     CheckType = "ip"
	UserID CheckType = "user_id"
	Custom CheckType = "custom"
)

// CheckRequest defines a single check against an action's limits.
type CheckRequest struct {
	Type  CheckType
	Value any
	// DryRun evaluates the limits without incrementing any counter.
	DryRun bool
}

// State represents the outcome of a check.
type State int64

const (
	Deny State = iota
	Allow
)

// State strings for HTTP headers and metrics
var stateStrings = map[State]string{
	Allow: "Allow",
	Deny:  "Deny",
}

func (s State) String() string {
	return stateStrings[s]
}

// Result is the outcome of a check.
type Result struct {
	State State
	// Tiered is set when the result came from a tier table, in which case
	// Value holds the selected tier value.
	Tiered bool
	Value  any
	// Period names the period that decided the result, empty when every
	// period allowed or no period was evaluated.
	Period string
}

// Allowed reports whether the subject may proceed.
func (r *Result) Allowed() bool {
	return r.State == Allow
}

// Store is the counter store consulted by a Throttle.
//
// Fetch returns the value stored at key, storing def with the given expiry
// when the key is absent. Increment adds one to the value at key, creating it
// at 1 if absent, and must not touch the expiry set by Fetch.
type Store interface {
	Fetch(ctx context.Context, key string, expiresIn time.Duration, def string) (string, error)
	Increment(ctx context.Context, key string) error
}
