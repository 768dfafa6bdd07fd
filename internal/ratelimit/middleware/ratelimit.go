package middleware

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"

	"downloadgate/internal/ratelimit/models"
	"downloadgate/internal/ratelimit/service"
	"downloadgate/pkg/platform/httputil"
	"downloadgate/pkg/platform/privacy"
	"downloadgate/pkg/requestcontext"
)

type RateLimiter interface {
	Admit(ctx context.Context, identity string, class models.EndpointClass) (*models.RateLimitResult, error)
}

// IdentityFunc picks the rate limit identity of a request.
type IdentityFunc func(r *http.Request) string

// ClientIPIdentity uses the address stored by the metadata middleware.
func ClientIPIdentity(r *http.Request) string {
	return requestcontext.ClientIP(r.Context())
}

type Middleware struct {
	limiter  RateLimiter
	identity IdentityFunc
	logger   *slog.Logger
	disabled bool
}

type Option func(*Middleware)

// WithDisabled disables rate limiting entirely (for testing/demo mode).
func WithDisabled(disabled bool) Option {
	return func(m *Middleware) {
		m.disabled = disabled
	}
}

func WithIdentity(fn IdentityFunc) Option {
	return func(m *Middleware) {
		m.identity = fn
	}
}

func New(limiter RateLimiter, logger *slog.Logger, opts ...Option) *Middleware {
	m := &Middleware{
		limiter:  limiter,
		identity: ClientIPIdentity,
		logger:   logger,
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.disabled {
		logger.Info("rate limiting disabled")
	}
	return m
}

// RateLimit guards a route with the bucket of class.
func (m *Middleware) RateLimit(class models.EndpointClass) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if m.disabled {
				next.ServeHTTP(w, r)
				return
			}

			ctx := r.Context()
			identity := m.identity(r)

			result, err := m.limiter.Admit(ctx, identity, class)
			if err != nil {
				m.logger.ErrorContext(ctx, "failed to check rate limit",
					"error", err,
					"ip_prefix", privacy.AnonymizeIP(identity),
					"request_id", requestcontext.RequestID(ctx),
				)
				next.ServeHTTP(w, r)
				return
			}

			AddHeaders(w, result)

			if !result.Allowed {
				httputil.WriteError(w, service.Denied(class, result))
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// AddHeaders sets the X-RateLimit-* headers.
func AddHeaders(w http.ResponseWriter, result *models.RateLimitResult) {
	if result == nil || result.Limit == 0 {
		return
	}
	w.Header().Set("X-RateLimit-Limit", strconv.Itoa(result.Limit))
	w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(result.Remaining))
	w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(result.ResetAt.Unix(), 10))
}
