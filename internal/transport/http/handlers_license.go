package httptransport

import (
	"context"
	"net/http"
	"strings"

	licensemodels "downloadgate/internal/license/models"
	sessionmodels "downloadgate/internal/session/models"
	"downloadgate/pkg/platform/httputil"
	"downloadgate/pkg/platform/privacy"
	"downloadgate/pkg/requestcontext"
)

// LicenseValidator checks a raw license key against the license store.
type LicenseValidator interface {
	Validate(ctx context.Context, rawKey string) (*licensemodels.Profile, error)
}

// SessionIssuer creates sessions and resolves their tokens.
type SessionIssuer interface {
	Issue(ctx context.Context, profile *licensemodels.Profile) (*sessionmodels.Session, error)
	Validate(ctx context.Context, token string) (*licensemodels.Profile, error)
}

type verifyLicenseRequest struct {
	LicenseKey string `json:"licenseKey"`
}

type licenseData struct {
	Organization   string   `json:"organization"`
	LicenseType    string   `json:"licenseType"`
	Products       []string `json:"products"`
	ExpiryDate     string   `json:"expiryDate"`
	SupportContact string   `json:"supportContact"`
	SessionID      string   `json:"sessionId"`
}

type verifyLicenseResponse struct {
	Success   bool        `json:"success"`
	SessionID string      `json:"sessionId"`
	Data      licenseData `json:"data"`
}

func (h *Handler) handleVerifyLicense(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req verifyLicenseRequest
	if err := decodeJSON(w, r, &req); err != nil {
		h.logger.WarnContext(ctx, "invalid verify license request",
			"ip_prefix", privacy.AnonymizeIP(requestcontext.ClientIP(ctx)),
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}
	keyHint := privacy.MaskKey(strings.TrimSpace(req.LicenseKey))

	profile, err := h.licenses.Validate(ctx, req.LicenseKey)
	if err != nil {
		h.logger.InfoContext(ctx, "license verification failed",
			"ip_prefix", privacy.AnonymizeIP(requestcontext.ClientIP(ctx)),
			"key_hint", keyHint,
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}

	session, err := h.sessions.Issue(ctx, profile)
	if err != nil {
		h.logger.ErrorContext(ctx, "failed to issue session",
			"key_hint", keyHint,
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}

	h.logger.InfoContext(ctx, "license verified",
		"key_hint", keyHint,
		"organization", profile.Organization,
		"session_expires_at", session.ExpiresAt,
	)
	products := profile.Products
	if products == nil {
		products = []string{}
	}
	httputil.WriteJSON(w, http.StatusOK, verifyLicenseResponse{
		Success:   true,
		SessionID: session.Token,
		Data: licenseData{
			Organization:   profile.Organization,
			LicenseType:    string(profile.Type),
			Products:       products,
			ExpiryDate:     profile.ExpiryDate(),
			SupportContact: profile.SupportContact,
			SessionID:      session.Token,
		},
	})
}
