// Package auth guards routes with a live license session.
package auth

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	licensemodels "downloadgate/internal/license/models"
	dErrors "downloadgate/pkg/domain-errors"
	"downloadgate/pkg/platform/httputil"
	"downloadgate/pkg/requestcontext"
)

// SessionValidator resolves a bearer token against the live session table.
type SessionValidator interface {
	Validate(ctx context.Context, token string) (*licensemodels.Profile, error)
}

type contextKeySessionToken struct{}
type contextKeyLicense struct{}

var (
	ContextKeySessionToken = contextKeySessionToken{}
	ContextKeyLicense      = contextKeyLicense{}
)

// GetSessionToken retrieves the validated session token from the context.
func GetSessionToken(ctx context.Context) string {
	token, ok := ctx.Value(ContextKeySessionToken).(string)
	if !ok {
		return ""
	}
	return token
}

// GetLicense retrieves the license profile bound to the session.
func GetLicense(ctx context.Context) *licensemodels.Profile {
	profile, ok := ctx.Value(ContextKeyLicense).(*licensemodels.Profile)
	if !ok {
		return nil
	}
	return profile
}

// WithSession injects a validated session into a context.
func WithSession(ctx context.Context, token string, profile *licensemodels.Profile) context.Context {
	ctx = context.WithValue(ctx, ContextKeySessionToken, token)
	return context.WithValue(ctx, ContextKeyLicense, profile)
}

// BearerToken extracts the token of an "Authorization: Bearer <token>"
// header. The scheme is matched case-insensitively.
func BearerToken(r *http.Request) (string, bool) {
	header := r.Header.Get("Authorization")
	scheme, token, ok := strings.Cut(header, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}

// RequireSession rejects requests without a live session with 401. A bearer
// prefix alone is not enough; the token is looked up on every request.
func RequireSession(validator SessionValidator, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			token, ok := BearerToken(r)
			if !ok {
				logger.WarnContext(ctx, "unauthorized access - missing session token",
					"request_id", requestcontext.RequestID(ctx),
				)
				httputil.WriteError(w, dErrors.New(dErrors.CodeUnauthorized, "Authentication required"))
				return
			}

			profile, err := validator.Validate(ctx, token)
			if err != nil {
				if dErrors.Is(err, dErrors.CodeUnauthorized) {
					logger.WarnContext(ctx, "unauthorized access - invalid session",
						"request_id", requestcontext.RequestID(ctx),
						"error", err,
					)
				} else {
					logger.ErrorContext(ctx, "failed to validate session",
						"request_id", requestcontext.RequestID(ctx),
						"error", err,
					)
				}
				httputil.WriteError(w, err)
				return
			}

			next.ServeHTTP(w, r.WithContext(WithSession(ctx, token, profile)))
		})
	}
}
