package httptransport

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"downloadgate/internal/catalog"
	downloadmodels "downloadgate/internal/download/models"
	licensemodels "downloadgate/internal/license/models"
	"downloadgate/pkg/platform/httputil"
	"downloadgate/pkg/platform/middleware/auth"
	"downloadgate/pkg/requestcontext"
)

// DownloadAuthorizer turns a download request into a signed URL.
type DownloadAuthorizer interface {
	Authorize(ctx context.Context, req *downloadmodels.DownloadRequest) (*downloadmodels.DownloadPermission, error)
}

// ChecksumService serves file digests to session holders.
type ChecksumService interface {
	Checksum(ctx context.Context, token, fileID string) (*downloadmodels.Checksum, error)
}

// CatalogLister lists the files a license may fetch.
type CatalogLister interface {
	ListFor(profile *licensemodels.Profile) []catalog.Entry
}

type downloadRequestBody struct {
	FileID    string `json:"fileId" validate:"required,max=200"`
	ClientID  string `json:"clientId" validate:"required,max=200"`
	Timestamp int64  `json:"timestamp" validate:"required,gt=0"`
	UserAgent string `json:"userAgent" validate:"max=512"`
}

type downloadResponse struct {
	Success     bool      `json:"success"`
	DownloadURL string    `json:"downloadUrl"`
	ExpiresAt   time.Time `json:"expiresAt"`
	Checksum    string    `json:"checksum"`
}

type fileView struct {
	ID              string `json:"id"`
	Name            string `json:"name"`
	Type            string `json:"type"`
	Size            string `json:"size"`
	OS              string `json:"os"`
	Icon            string `json:"icon"`
	RequiresLicense bool   `json:"requiresLicense"`
	Version         string `json:"version"`
	Checksum        string `json:"checksum"`
}

type availableResponse struct {
	Success bool       `json:"success"`
	Files   []fileView `json:"files"`
}

type checksumResponse struct {
	Checksum  string `json:"checksum"`
	Algorithm string `json:"algorithm"`
}

func (h *Handler) handleAvailable(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	entries := h.catalog.ListFor(auth.GetLicense(ctx))

	files := make([]fileView, 0, len(entries))
	for i := range entries {
		e := &entries[i]
		files = append(files, fileView{
			ID:              e.FileID,
			Name:            e.DisplayName,
			Type:            e.ContentType,
			Size:            e.SizeLabel(),
			OS:              e.OS,
			Icon:            e.Icon,
			RequiresLicense: e.RequiresLicense(),
			Version:         e.Version,
			Checksum:        e.Checksum,
		})
	}
	httputil.WriteJSON(w, http.StatusOK, availableResponse{Success: true, Files: files})
}

func (h *Handler) handleRequestDownload(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	var body downloadRequestBody
	if err := decodeJSON(w, r, &body); err != nil {
		h.logger.WarnContext(ctx, "invalid download request",
			"request_id", requestID,
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}

	token, _ := auth.BearerToken(r)
	userAgent := strings.TrimSpace(body.UserAgent)
	if userAgent == "" {
		userAgent = requestcontext.UserAgent(ctx)
	}

	perm, err := h.downloads.Authorize(ctx, &downloadmodels.DownloadRequest{
		SessionToken: token,
		RequestID:    requestID,
		FileID:       strings.TrimSpace(body.FileID),
		ClientID:     strings.TrimSpace(body.ClientID),
		Timestamp:    time.UnixMilli(body.Timestamp).UTC(),
		UserAgent:    userAgent,
		SourceIP:     requestcontext.ClientIP(ctx),
	})
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, downloadResponse{
		Success:     true,
		DownloadURL: perm.URL,
		ExpiresAt:   perm.ExpiresAt.UTC(),
		Checksum:    perm.Checksum,
	})
}

func (h *Handler) handleChecksum(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	token, _ := auth.BearerToken(r)

	sum, err := h.checksums.Checksum(ctx, token, chi.URLParam(r, "fileId"))
	if err != nil {
		h.logger.InfoContext(ctx, "checksum lookup failed",
			"request_id", requestcontext.RequestID(ctx),
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, checksumResponse{Checksum: sum.Value, Algorithm: sum.Algorithm})
}
