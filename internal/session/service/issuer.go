package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	licensemodels "downloadgate/internal/license/models"
	"downloadgate/internal/platform/metrics"
	"downloadgate/internal/session/models"
	dErrors "downloadgate/pkg/domain-errors"
	"downloadgate/pkg/platform/sentinel"
	"downloadgate/pkg/requestcontext"
)

// Store is the live session table.
type Store interface {
	Create(ctx context.Context, session *models.Session) error
	FindActive(ctx context.Context, token string, now time.Time) (*models.Session, error)
	DeleteExpired(ctx context.Context, now time.Time) (int, error)
	Count() int
}

const defaultTTL = 15 * time.Minute

const invalidSessionMessage = "Invalid or expired session."

// Issuer mints sessions for validated licenses and checks them on every
// authenticated request.
type Issuer struct {
	store   Store
	ttl     time.Duration
	now     func() time.Time
	logger  *slog.Logger
	metrics *metrics.Metrics
}

type Option func(*Issuer)

func WithTTL(ttl time.Duration) Option {
	return func(i *Issuer) {
		if ttl > 0 {
			i.ttl = ttl
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(i *Issuer) {
		i.now = now
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(i *Issuer) {
		i.logger = logger
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(i *Issuer) {
		i.metrics = m
	}
}

func New(store Store, opts ...Option) (*Issuer, error) {
	if store == nil {
		return nil, errors.New("session store is required")
	}
	i := &Issuer{
		store:  store,
		ttl:    defaultTTL,
		now:    time.Now,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(i)
	}
	return i, nil
}

// Issue creates a session for profile. The session ends at the earlier of
// now+TTL and the license expiry.
func (i *Issuer) Issue(ctx context.Context, profile *licensemodels.Profile) (*models.Session, error) {
	if profile == nil {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "session requires a license profile")
	}
	now := i.now()
	expiresAt := now.Add(i.ttl)
	if profile.Expiry.Before(expiresAt) {
		expiresAt = profile.Expiry
	}
	if !now.Before(expiresAt) {
		return nil, dErrors.Wrap(sentinel.ErrExpired, dErrors.CodeForbidden, "License has expired.")
	}

	session := &models.Session{
		Token:     models.NewToken(),
		License:   profile,
		IssuedAt:  now,
		ExpiresAt: expiresAt,
		ClientIP:  requestcontext.ClientIP(ctx),
		UserAgent: requestcontext.UserAgent(ctx),
	}
	if err := i.store.Create(ctx, session); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to store session")
	}
	return session, nil
}

// Validate resolves token against the live table.
func (i *Issuer) Validate(ctx context.Context, token string) (*licensemodels.Profile, error) {
	session, err := i.Lookup(ctx, token)
	if err != nil {
		return nil, err
	}
	return session.License, nil
}

// Lookup is Validate returning the whole session.
func (i *Issuer) Lookup(ctx context.Context, token string) (*models.Session, error) {
	if !models.ValidTokenShape(token) {
		return nil, dErrors.New(dErrors.CodeUnauthorized, invalidSessionMessage)
	}
	session, err := i.store.FindActive(ctx, token, i.now())
	switch {
	case errors.Is(err, sentinel.ErrNotFound),
		errors.Is(err, sentinel.ErrExpired),
		errors.Is(err, sentinel.ErrInvalidState):
		return nil, dErrors.Wrap(err, dErrors.CodeUnauthorized, invalidSessionMessage)
	case err != nil:
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to look up session")
	}
	return session, nil
}

// RunJanitor sweeps expired sessions every interval until ctx is done.
func (i *Issuer) RunJanitor(ctx context.Context, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			i.Sweep(ctx)
		}
	}
}

// Sweep runs one janitor pass.
func (i *Issuer) Sweep(ctx context.Context) int {
	removed, err := i.store.DeleteExpired(ctx, i.now())
	if err != nil {
		i.logger.ErrorContext(ctx, "session sweep failed", "error", err)
		return 0
	}
	if removed > 0 {
		i.logger.DebugContext(ctx, "expired sessions removed", "count", removed)
	}
	i.metrics.SetActiveSessions(i.store.Count())
	return removed
}
