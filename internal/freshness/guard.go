// Package freshness rejects stale and replayed download requests.
package freshness

import (
	"context"
	"errors"
	"log/slog"
	"time"

	dErrors "downloadgate/pkg/domain-errors"
)

var (
	// ErrStale marks a client timestamp outside the skew window.
	ErrStale = errors.New("request timestamp outside skew window")
	// ErrReplayed marks a request id seen within its retention window.
	ErrReplayed = errors.New("request id already used")
)

// RejectedMessage is shared by both failure kinds so the client cannot tell
// which check failed.
const RejectedMessage = "Timestamp is too old or invalid."

const defaultSkew = 5 * time.Minute

// ReplayStore remembers request ids. Remember reports whether id was new and
// stores it for ttl in the same atomic step.
type ReplayStore interface {
	Remember(ctx context.Context, requestID string, ttl time.Duration) (bool, error)
}

type Guard struct {
	replays ReplayStore
	skew    time.Duration
	now     func() time.Time
	logger  *slog.Logger
}

type Option func(*Guard)

func WithSkew(d time.Duration) Option {
	return func(g *Guard) {
		if d > 0 {
			g.skew = d
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(g *Guard) {
		g.now = now
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(g *Guard) {
		g.logger = logger
	}
}

func New(replays ReplayStore, opts ...Option) (*Guard, error) {
	if replays == nil {
		return nil, errors.New("replay store is required")
	}
	g := &Guard{
		replays: replays,
		skew:    defaultSkew,
		now:     time.Now,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g, nil
}

// Skew returns the configured window.
func (g *Guard) Skew() time.Duration {
	return g.skew
}

// Check accepts a request whose timestamp is within the skew window of
// server time and whose id has not been seen while it could still be fresh.
func (g *Guard) Check(ctx context.Context, clientTimestamp time.Time, requestID string) error {
	if requestID == "" {
		return dErrors.New(dErrors.CodeBadRequest, "Missing or invalid request id")
	}

	now := g.now()
	drift := now.Sub(clientTimestamp)
	if drift < 0 {
		drift = -drift
	}
	if clientTimestamp.IsZero() || drift > g.skew {
		g.logger.InfoContext(ctx, "stale download request",
			"request_id", requestID,
			"drift_ms", drift.Milliseconds(),
		)
		return dErrors.Wrap(ErrStale, dErrors.CodeRequestRejected, RejectedMessage)
	}

	// A future-dated request stays fresh until clientTimestamp+skew, so its
	// id is kept at least that long.
	ttl := g.skew
	if clientTimestamp.After(now) {
		ttl += clientTimestamp.Sub(now)
	}

	fresh, err := g.replays.Remember(ctx, requestID, ttl)
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to check request id")
	}
	if !fresh {
		g.logger.WarnContext(ctx, "replayed download request", "request_id", requestID)
		return dErrors.Wrap(ErrReplayed, dErrors.CodeRequestRejected, RejectedMessage)
	}
	return nil
}
