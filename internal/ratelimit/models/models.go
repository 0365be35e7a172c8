// Package models holds the rate limit vocabulary shared by stores and middleware.
package models

import (
	"strconv"
	"time"
)

// Class groups endpoints that share a budget.
type Class string

const (
	// ClassSensitive covers consent requests and responses, which notify or
	// bind a patient.
	ClassSensitive Class = "sensitive"
	// ClassWrite covers record creation and other mutations.
	ClassWrite Class = "write"
	// ClassRead covers record, log and search reads.
	ClassRead Class = "read"
)

// Limit allows Requests per sliding Window.
type Limit struct {
	Requests int
	Window   time.Duration
}

func (l Limit) Enabled() bool { return l.Requests > 0 && l.Window > 0 }

// Policy maps each class to its limit. A class without a limit is unlimited.
type Policy map[Class]Limit

func DefaultPolicy() Policy {
	return Policy{
		ClassSensitive: {Requests: 20, Window: time.Minute},
		ClassWrite:     {Requests: 60, Window: time.Minute},
		ClassRead:      {Requests: 300, Window: time.Minute},
	}
}

// Result is the outcome of one Allow call.
type Result struct {
	Allowed   bool
	Limit     int
	Remaining int
	ResetAt   time.Time
}

// RetryAfter is how long a rejected caller should wait, rounded up to a second.
func (r Result) RetryAfter(now time.Time) time.Duration {
	if r.Allowed || !r.ResetAt.After(now) {
		return 0
	}
	return (r.ResetAt.Sub(now) + time.Second - 1).Truncate(time.Second)
}

// Key is the bucket for one subject (a user or an IP) within one class.
func Key(class Class, subject string) string {
	return "ratelimit:" + string(class) + ":" + subject
}

// Headers returns the X-RateLimit-* response headers for r.
func (r Result) Headers() map[string]string {
	return map[string]string{
		"X-RateLimit-Limit":     strconv.Itoa(r.Limit),
		"X-RateLimit-Remaining": strconv.Itoa(r.Remaining),
		"X-RateLimit-Reset":     strconv.FormatInt(r.ResetAt.Unix(), 10),
	}
}
