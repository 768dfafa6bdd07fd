package service

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"downloadgate/internal/license/models"
	"downloadgate/internal/platform/metrics"
	dErrors "downloadgate/pkg/domain-errors"
	"downloadgate/pkg/platform/privacy"
	"downloadgate/pkg/platform/sentinel"
)

//go:generate mockgen -source=validator.go -destination=mocks/mocks.go -package=mocks Store

// Store is the read side of the license record store.
type Store interface {
	FindByKey(ctx context.Context, key string) (*models.License, error)
}

const defaultTimeout = 3 * time.Second

// Verification outcomes, used as metric labels.
const (
	OutcomeValid      = "valid"
	OutcomeMissingKey = "missing_key"
	OutcomeUnknownKey = "unknown_key"
	OutcomeExpired    = "expired"
	OutcomeError      = "error"
)

// Validator turns a presented key into a validated license profile.
type Validator struct {
	store   Store
	timeout time.Duration
	now     func() time.Time
	logger  *slog.Logger
	metrics *metrics.Metrics
}

type Option func(*Validator)

// WithTimeout bounds each store lookup.
func WithTimeout(d time.Duration) Option {
	return func(v *Validator) {
		if d > 0 {
			v.timeout = d
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(v *Validator) {
		v.now = now
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(v *Validator) {
		v.logger = logger
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(v *Validator) {
		v.metrics = m
	}
}

func New(store Store, opts ...Option) (*Validator, error) {
	if store == nil {
		return nil, errors.New("license store is required")
	}
	v := &Validator{
		store:   store,
		timeout: defaultTimeout,
		now:     time.Now,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(v)
	}
	return v, nil
}

// Validate looks the key up exactly as presented (after trimming surrounding
// whitespace) and checks it has not expired.
func (v *Validator) Validate(ctx context.Context, rawKey string) (*models.Profile, error) {
	key := strings.TrimSpace(rawKey)
	if key == "" {
		v.metrics.ObserveVerify(OutcomeMissingKey)
		return nil, dErrors.New(dErrors.CodeBadRequest, "License key is required.")
	}

	lookupCtx, cancel := context.WithTimeout(ctx, v.timeout)
	defer cancel()

	lic, err := v.store.FindByKey(lookupCtx, key)
	switch {
	case errors.Is(err, sentinel.ErrNotFound):
		v.metrics.ObserveVerify(OutcomeUnknownKey)
		v.logger.InfoContext(ctx, "license verification failed",
			"reason", OutcomeUnknownKey,
			"license_key", privacy.MaskKey(key),
		)
		return nil, dErrors.Wrap(sentinel.ErrNotFound, dErrors.CodeForbidden, "Invalid license key.")
	case errors.Is(err, context.DeadlineExceeded):
		v.metrics.ObserveVerify(OutcomeError)
		return nil, dErrors.Wrap(err, dErrors.CodeTimeout, "License lookup timed out.")
	case err != nil:
		v.metrics.ObserveVerify(OutcomeError)
		v.logger.ErrorContext(ctx, "license store lookup failed", "error", err)
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to look up license")
	}

	if lic.ExpiredAt(v.now()) {
		v.metrics.ObserveVerify(OutcomeExpired)
		v.logger.InfoContext(ctx, "license verification failed",
			"reason", OutcomeExpired,
			"license_key", privacy.MaskKey(key),
			"expiry", lic.Expiry.Format(models.ExpiryLayout),
		)
		return nil, dErrors.Wrap(sentinel.ErrExpired, dErrors.CodeForbidden, "License has expired.")
	}

	v.metrics.ObserveVerify(OutcomeValid)
	return lic.Profile(), nil
}
