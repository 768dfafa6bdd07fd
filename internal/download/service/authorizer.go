// Package service authorizes downloads and serves file checksums.
package service

//go:generate mockgen -source=authorizer.go -destination=mocks/mocks.go -package=mocks Signer

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"downloadgate/internal/audit"
	"downloadgate/internal/catalog"
	"downloadgate/internal/download/models"
	licensemodels "downloadgate/internal/license/models"
	"downloadgate/internal/platform/metrics"
	rlmodels "downloadgate/internal/ratelimit/models"
	rlservice "downloadgate/internal/ratelimit/service"
	dErrors "downloadgate/pkg/domain-errors"
	"downloadgate/pkg/requestcontext"
)

const (
	defaultURLTTL      = 60 * time.Second
	defaultSignTimeout = 5 * time.Second

	tracerName = "downloadgate/download"
)

// RateLimiter admits a request for an endpoint class.
type RateLimiter interface {
	Admit(ctx context.Context, identity string, class rlmodels.EndpointClass) (*rlmodels.RateLimitResult, error)
}

// Sessions resolves a session token against the live session table.
type Sessions interface {
	Validate(ctx context.Context, token string) (*licensemodels.Profile, error)
}

// FreshnessChecker rejects stale and replayed requests.
type FreshnessChecker interface {
	Check(ctx context.Context, clientTimestamp time.Time, requestID string) error
}

// Catalog resolves a file id and checks entitlement in one step.
type Catalog interface {
	ResolveFor(profile *licensemodels.Profile, fileID string) (*catalog.Entry, error)
}

// Signer mints time-limited fetch URLs.
type Signer interface {
	PresignGet(ctx context.Context, key string, ttl time.Duration, filename string) (string, error)
}

// AuditRecorder appends audit records. It never fails the caller.
type AuditRecorder interface {
	Record(ctx context.Context, rec audit.Record)
}

// IdentityFunc picks the rate-limit identity of a download request.
type IdentityFunc func(ctx context.Context, req *models.DownloadRequest) string

// SourceIPIdentity keys rate limiting on the request's source address.
func SourceIPIdentity(ctx context.Context, req *models.DownloadRequest) string {
	if req.SourceIP != "" {
		return req.SourceIP
	}
	return requestcontext.ClientIP(ctx)
}

// Authorizer runs the download state machine:
// received → session checked → freshness checked → entitled → signed →
// audited → completed, leaving early as rejected.
type Authorizer struct {
	limiter   RateLimiter
	sessions  Sessions
	freshness FreshnessChecker
	catalog   Catalog
	signer    Signer
	audit     AuditRecorder

	ttl         time.Duration
	signTimeout time.Duration
	identity    IdentityFunc
	now         func() time.Time
	logger      *slog.Logger
	metrics     *metrics.Metrics
	tracer      trace.Tracer
}

type Option func(*Authorizer)

// WithURLTTL sets how long a signed URL stays valid.
func WithURLTTL(ttl time.Duration) Option {
	return func(a *Authorizer) {
		if ttl > 0 {
			a.ttl = ttl
		}
	}
}

// WithSignTimeout bounds the blob store signing call.
func WithSignTimeout(d time.Duration) Option {
	return func(a *Authorizer) {
		if d > 0 {
			a.signTimeout = d
		}
	}
}

func WithIdentity(fn IdentityFunc) Option {
	return func(a *Authorizer) {
		if fn != nil {
			a.identity = fn
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(a *Authorizer) {
		a.now = now
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(a *Authorizer) {
		a.logger = logger
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(a *Authorizer) {
		a.metrics = m
	}
}

func WithTracer(tracer trace.Tracer) Option {
	return func(a *Authorizer) {
		a.tracer = tracer
	}
}

// NewAuthorizer wires the state machine. limiter may be nil to run without
// rate limiting; every other collaborator is required.
func NewAuthorizer(
	limiter RateLimiter,
	sessions Sessions,
	freshness FreshnessChecker,
	resolver Catalog,
	signer Signer,
	recorder AuditRecorder,
	opts ...Option,
) (*Authorizer, error) {
	switch {
	case sessions == nil:
		return nil, errors.New("session validator is required")
	case freshness == nil:
		return nil, errors.New("freshness guard is required")
	case resolver == nil:
		return nil, errors.New("catalog resolver is required")
	case signer == nil:
		return nil, errors.New("signer is required")
	case recorder == nil:
		return nil, errors.New("audit recorder is required")
	}
	a := &Authorizer{
		limiter:     limiter,
		sessions:    sessions,
		freshness:   freshness,
		catalog:     resolver,
		signer:      signer,
		audit:       recorder,
		ttl:         defaultURLTTL,
		signTimeout: defaultSignTimeout,
		identity:    SourceIPIdentity,
		now:         time.Now,
		logger:      slog.Default(),
		tracer:      otel.Tracer(tracerName),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a, nil
}

// URLTTL is the lifetime of every issued URL.
func (a *Authorizer) URLTTL() time.Duration {
	return a.ttl
}

// Authorize turns a download request into a signed URL. Exactly one audit
// record is appended per issued URL; nothing is audited for a rejection.
func (a *Authorizer) Authorize(ctx context.Context, req *models.DownloadRequest) (*models.DownloadPermission, error) {
	if req == nil {
		return nil, dErrors.New(dErrors.CodeBadRequest, "Invalid request")
	}
	ctx, span := a.tracer.Start(ctx, "download.authorize", trace.WithAttributes(
		attribute.String("download.request_id", req.RequestID),
		attribute.String("download.file_id", req.FileID),
	))
	defer span.End()

	perm, reason, err := a.authorize(ctx, span, req)
	a.metrics.ObserveDownload(string(reason))
	if err != nil {
		span.AddEvent(string(models.StateRejected), trace.WithAttributes(
			attribute.String("download.reason", string(reason)),
		))
		span.SetStatus(codes.Error, string(reason))
		return nil, err
	}
	span.SetStatus(codes.Ok, "")
	return perm, nil
}

func (a *Authorizer) authorize(ctx context.Context, span trace.Span, req *models.DownloadRequest) (*models.DownloadPermission, models.Reason, error) {
	if err := validateRequest(req); err != nil {
		return nil, models.ReasonMalformed, err
	}
	span.AddEvent(string(models.StateReceived))

	if a.limiter != nil {
		result, err := a.limiter.Admit(ctx, a.identity(ctx, req), rlmodels.ClassDownload)
		switch {
		case err != nil:
			a.logger.WarnContext(ctx, "download rate limit check failed, allowing request",
				"request_id", req.RequestID,
				"error", err,
			)
		case !result.Allowed:
			return nil, models.ReasonRateLimited, rlservice.Denied(rlmodels.ClassDownload, result)
		}
	}

	profile, err := a.sessions.Validate(ctx, req.SessionToken)
	if err != nil {
		return nil, reasonFor(err, models.ReasonUnauthenticated), err
	}
	span.AddEvent(string(models.StateSessionChecked))

	if err := a.freshness.Check(ctx, req.Timestamp, req.RequestID); err != nil {
		a.logger.InfoContext(ctx, "download request rejected",
			"request_id", req.RequestID,
			"error", err,
		)
		return nil, reasonFor(err, models.ReasonRequestRejected), err
	}
	span.AddEvent(string(models.StateFreshnessChecked))

	entry, err := a.catalog.ResolveFor(profile, req.FileID)
	if err != nil {
		reason := models.ReasonNotFound
		if errors.Is(err, catalog.ErrNotEntitled) {
			reason = models.ReasonForbidden
		}
		return nil, reason, err
	}
	span.AddEvent(string(models.StateEntitled))

	url, issuedAt, err := a.sign(ctx, req, entry)
	if err != nil {
		return nil, models.ReasonUpstreamFailure, err
	}
	expiresAt := issuedAt.Add(a.ttl)
	span.AddEvent(string(models.StateSigned))

	a.audit.Record(ctx, audit.NewRecord(audit.RecordInput{
		RequestID:       req.RequestID,
		FileID:          entry.FileID,
		ClientID:        req.ClientID,
		LicenseKey:      profile.Key,
		SourceIP:        req.SourceIP,
		UserAgent:       req.UserAgent,
		ClientTimestamp: req.Timestamp,
		IssuedAt:        issuedAt,
		ExpiresAt:       expiresAt,
	}))
	span.AddEvent(string(models.StateAudited))

	a.logger.InfoContext(ctx, "download authorized",
		"request_id", req.RequestID,
		"file_id", entry.FileID,
		"client_id", req.ClientID,
		"expires_at", expiresAt,
	)
	span.AddEvent(string(models.StateCompleted))

	return &models.DownloadPermission{
		FileID:    entry.FileID,
		URL:       url,
		IssuedAt:  issuedAt,
		ExpiresAt: expiresAt,
		Checksum:  entry.Checksum,
	}, models.ReasonCompleted, nil
}

// sign makes a single attempt. A retry could issue a second URL under
// ambiguous store state.
func (a *Authorizer) sign(ctx context.Context, req *models.DownloadRequest, entry *catalog.Entry) (string, time.Time, error) {
	signCtx, cancel := context.WithTimeout(ctx, a.signTimeout)
	defer cancel()

	issuedAt := a.now()
	start := time.Now()
	url, err := a.signer.PresignGet(signCtx, entry.StorageKey, a.ttl, entry.DisplayName)
	a.metrics.ObserveSigning(time.Since(start).Seconds())
	if err != nil {
		a.logger.ErrorContext(ctx, "failed to sign download url",
			"request_id", req.RequestID,
			"file_id", entry.FileID,
			"storage_key", entry.StorageKey,
			"error", err,
		)
		return "", time.Time{}, dErrors.Wrap(err, dErrors.CodeUpstream, "Download failed")
	}
	a.metrics.IncrementSignedURLs()
	return url, issuedAt, nil
}

func validateRequest(req *models.DownloadRequest) error {
	if strings.TrimSpace(req.FileID) == "" || strings.TrimSpace(req.ClientID) == "" {
		return dErrors.New(dErrors.CodeBadRequest, "fileId and clientId are required")
	}
	if req.Timestamp.IsZero() {
		return dErrors.New(dErrors.CodeBadRequest, "timestamp is required")
	}
	if strings.TrimSpace(req.RequestID) == "" {
		return dErrors.New(dErrors.CodeBadRequest, "Missing or invalid request id")
	}
	return nil
}

// reasonFor keeps store and infrastructure failures apart from client
// rejections in the outcome metric.
func reasonFor(err error, fallback models.Reason) models.Reason {
	switch dErrors.CodeOf(err) {
	case dErrors.CodeInternal, dErrors.CodeUpstream, dErrors.CodeTimeout:
		return models.ReasonUpstreamFailure
	case dErrors.CodeBadRequest:
		return models.ReasonMalformed
	}
	return fallback
}
