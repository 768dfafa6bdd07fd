package service

import (
	"context"
	"errors"
	"log/slog"
	"net/netip"
	"time"

	"downloadgate/internal/ratelimit/metrics"
	"downloadgate/internal/ratelimit/models"
	dErrors "downloadgate/pkg/domain-errors"
	"downloadgate/pkg/platform/privacy"
)

// BucketStore defines the persistence interface for rate limit buckets.
// Allow must check and increment in one atomic step.
type BucketStore interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) (*models.RateLimitResult, error)
}

// Service admits requests per (identity, endpoint class).
type Service struct {
	buckets BucketStore
	limits  map[models.EndpointClass]models.Limit
	now     func() time.Time
	logger  *slog.Logger
	metrics *metrics.Metrics
}

type Option func(*Service)

// WithLimit overrides the threshold of one class.
func WithLimit(class models.EndpointClass, requests int, window time.Duration) Option {
	return func(s *Service) {
		s.limits[class] = models.Limit{Requests: requests, Window: window}
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		s.now = now
	}
}

// DefaultLimits returns the built-in thresholds.
func DefaultLimits() map[models.EndpointClass]models.Limit {
	return map[models.EndpointClass]models.Limit{
		models.ClassVerification: {Requests: 10, Window: 15 * time.Minute},
		models.ClassDownload:     {Requests: 20, Window: 15 * time.Minute},
	}
}

func New(buckets BucketStore, opts ...Option) (*Service, error) {
	if buckets == nil {
		return nil, errors.New("buckets store is required")
	}
	svc := &Service{
		buckets: buckets,
		limits:  DefaultLimits(),
		now:     time.Now,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(svc)
	}
	return svc, nil
}

// Admit runs one admission check. A denied result comes back with a nil
// error; callers turn it into a response with Denied.
func (s *Service) Admit(ctx context.Context, identity string, class models.EndpointClass) (*models.RateLimitResult, error) {
	s.metrics.IncrementChecks(string(class))

	limit, ok := s.limits[class]
	if !ok || limit.Requests <= 0 {
		// Default-deny: no limit configured for this class
		s.logger.WarnContext(ctx, "rate limit config missing",
			"endpoint_class", class,
			"identity", logIdentity(identity),
		)
		return &models.RateLimitResult{
			Allowed:    false,
			ResetAt:    s.now(),
			RetryAfter: 60,
		}, nil
	}

	result, err := s.buckets.Allow(ctx, models.BucketKey(identity, class), limit.Requests, limit.Window)
	if err != nil {
		s.metrics.IncrementStoreErrors()
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to check rate limit")
	}

	if !result.Allowed {
		s.metrics.IncrementDenials(string(class))
		s.logger.InfoContext(ctx, "rate limit exceeded",
			"identity", logIdentity(identity),
			"endpoint_class", class,
			"limit", limit.Requests,
			"window_seconds", int(limit.Window.Seconds()),
			"retry_after", result.RetryAfter,
		)
	}
	return result, nil
}

// Denied converts a denied result into the client-facing error.
func Denied(class models.EndpointClass, result *models.RateLimitResult) error {
	return dErrors.Wrap(
		&models.ExceededError{Class: class, RetryAfter: result.RetryAfter},
		dErrors.CodeRateLimited,
		models.ExceededMessage,
	)
}

func logIdentity(identity string) string {
	if _, err := netip.ParseAddr(identity); err == nil {
		return privacy.AnonymizeIP(identity)
	}
	return identity
}
