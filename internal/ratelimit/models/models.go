package models

import (
	"fmt"
	"time"
)

// EndpointClass categorizes endpoints for differentiated rate limiting.
type EndpointClass string

const (
	// ClassVerification: license verification (10 req/15min). Failures here
	// signal key guessing.
	ClassVerification EndpointClass = "verification"
	// ClassDownload: download authorization (20 req/15min).
	ClassDownload EndpointClass = "download"
)

// IsValid checks if the endpoint class is one of the supported enum values.
func (c EndpointClass) IsValid() bool {
	switch c {
	case ClassVerification, ClassDownload:
		return true
	}
	return false
}

// Limit is a fixed-window threshold.
type Limit struct {
	Requests int
	Window   time.Duration
}

// RateLimitResult represents the outcome of a rate limit check.
type RateLimitResult struct {
	Allowed    bool      `json:"allowed"`
	Limit      int       `json:"limit"`
	Remaining  int       `json:"remaining"`
	ResetAt    time.Time `json:"reset_at"`
	RetryAfter int       `json:"retry_after,omitempty"` // seconds, only set when not allowed
}

// ExceededError carries the retry hint of a denied admission.
type ExceededError struct {
	Class      EndpointClass
	RetryAfter int
}

func (e *ExceededError) Error() string {
	return fmt.Sprintf("rate limit exceeded for %s, retry after %ds", e.Class, e.RetryAfter)
}

func (e *ExceededError) RetryAfterSeconds() int {
	return e.RetryAfter
}

// RetryAfterSeconds rounds up so a client never retries before the reset.
func RetryAfterSeconds(resetAt, now time.Time) int {
	d := resetAt.Sub(now)
	if d <= 0 {
		return 1
	}
	secs := int(d / time.Second)
	if d%time.Second != 0 {
		secs++
	}
	return secs
}
