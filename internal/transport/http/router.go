// Package httptransport is the gateway's HTTP surface. Handlers decode and
// render; every decision is made by the services they delegate to.
package httptransport

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	rlmiddleware "downloadgate/internal/ratelimit/middleware"
	rlmodels "downloadgate/internal/ratelimit/models"
	dErrors "downloadgate/pkg/domain-errors"
	"downloadgate/pkg/platform/httputil"
	"downloadgate/pkg/platform/middleware/auth"
	"downloadgate/pkg/platform/middleware/metadata"
	"downloadgate/pkg/platform/middleware/request"
)

// HealthFunc reports whether the gateway's dependencies are reachable.
type HealthFunc func(ctx context.Context) error

// Handler holds the services behind the public endpoints.
type Handler struct {
	licenses  LicenseValidator
	sessions  SessionIssuer
	catalog   CatalogLister
	downloads DownloadAuthorizer
	checksums ChecksumService
	limiter   *rlmiddleware.Middleware
	logger    *slog.Logger
}

func NewHandler(
	licenses LicenseValidator,
	sessions SessionIssuer,
	catalog CatalogLister,
	downloads DownloadAuthorizer,
	checksums ChecksumService,
	limiter *rlmiddleware.Middleware,
	logger *slog.Logger,
) (*Handler, error) {
	switch {
	case licenses == nil:
		return nil, errors.New("license validator is required")
	case sessions == nil:
		return nil, errors.New("session issuer is required")
	case catalog == nil:
		return nil, errors.New("catalog is required")
	case downloads == nil:
		return nil, errors.New("download authorizer is required")
	case checksums == nil:
		return nil, errors.New("checksum service is required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		licenses:  licenses,
		sessions:  sessions,
		catalog:   catalog,
		downloads: downloads,
		checksums: checksums,
		limiter:   limiter,
		logger:    logger,
	}, nil
}

// RouterOptions carries the router's transport settings.
type RouterOptions struct {
	TrustProxy     bool
	RequestTimeout time.Duration
	CORSOrigins    []string
	// Metrics serves GET /metrics when set.
	Metrics http.Handler
	// Blobs serves GET /blob/* when set; only the in-memory backend needs it.
	Blobs  BlobServer
	Health HealthFunc
}

// NewRouter wires all public endpoints.
func NewRouter(h *Handler, opts RouterOptions) http.Handler {
	r := chi.NewRouter()
	r.Use(chimw.Recoverer)
	r.Use(metadata.ClientMetadata(opts.TrustProxy))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: opts.CORSOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Content-Type", "Authorization", request.HeaderRequestID},
		ExposedHeaders: []string{"Retry-After", "X-RateLimit-Limit", "X-RateLimit-Remaining", "X-RateLimit-Reset"},
		MaxAge:         300,
	}))
	if opts.RequestTimeout > 0 {
		r.Use(chimw.Timeout(opts.RequestTimeout))
	}

	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		httputil.WriteError(w, dErrors.New(dErrors.CodeNotFound, "Not found"))
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		httputil.WriteJSON(w, http.StatusMethodNotAllowed, httputil.ErrorResponse{Error: "Method not allowed"})
	})

	r.Get("/healthz", h.handleHealth(opts.Health))
	if opts.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", opts.Metrics)
	}
	if opts.Blobs != nil {
		r.Get("/blob/*", h.handleBlob(opts.Blobs))
	}

	r.Route("/api", func(r chi.Router) {
		verify := r.With()
		if h.limiter != nil {
			verify = r.With(h.limiter.RateLimit(rlmodels.ClassVerification))
		}
		verify.Post("/auth/verify-license", h.handleVerifyLicense)

		r.Group(func(r chi.Router) {
			r.Use(request.RequireRequestID)
			r.With(auth.RequireSession(h.sessions, h.logger)).Get("/downloads/available", h.handleAvailable)
			// The authorizer rate-limits and validates the session itself so
			// the checks run in state machine order.
			r.Post("/downloads/request", h.handleRequestDownload)
			r.Get("/downloads/{fileId}/checksum", h.handleChecksum)
		})
	})
	return r
}

func (h *Handler) handleHealth(check HealthFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if check != nil {
			if err := check(r.Context()); err != nil {
				h.logger.ErrorContext(r.Context(), "health check failed", "error", err)
				httputil.WriteJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
				return
			}
		}
		httputil.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}
}
