package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"downloadgate/internal/ratelimit/models"
	"downloadgate/internal/ratelimit/service"
	"downloadgate/internal/ratelimit/store/bucket"
	"downloadgate/pkg/platform/httputil"
)

type brokenLimiter struct{}

func (brokenLimiter) Admit(context.Context, string, models.EndpointClass) (*models.RateLimitResult, error) {
	return nil, errors.New("store down")
}

func newTestMiddleware(t *testing.T, limiter RateLimiter) http.Handler {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	mw := New(limiter, logger, WithIdentity(func(r *http.Request) string { return r.Header.Get("X-Test-Identity") }))
	return mw.RateLimit(models.ClassVerification)(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
}

func TestRateLimitMiddleware(t *testing.T) {
	now := time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)
	svc, err := service.New(bucket.NewInMemoryBucketStore(bucket.WithClock(func() time.Time { return now })),
		service.WithLimit(models.ClassVerification, 2, 15*time.Minute),
	)
	require.NoError(t, err)
	handler := newTestMiddleware(t, svc)

	do := func(identity string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/api/auth/verify-license", nil)
		req.Header.Set("X-Test-Identity", identity)
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		return rec
	}

	assert.Equal(t, http.StatusOK, do("198.51.100.1").Code)
	rec := do("198.51.100.1")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "0", rec.Header().Get("X-RateLimit-Remaining"))

	rec = do("198.51.100.1")
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "900", rec.Header().Get("Retry-After"))

	var body httputil.ErrorResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	assert.False(t, body.Success)
	assert.Equal(t, models.ExceededMessage, body.Error)
	assert.Equal(t, 900, body.RetryAfter)

	assert.Equal(t, http.StatusOK, do("198.51.100.2").Code)
}

func TestRateLimitMiddlewareFailsOpenOnStoreError(t *testing.T) {
	handler := newTestMiddleware(t, brokenLimiter{})
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}
