package httptransport

import (
	"bytes"
	"errors"
	"net/http"
	"net/url"

	"github.com/go-chi/chi/v5"

	"downloadgate/internal/blob"
	blobmemory "downloadgate/internal/blob/memory"
	dErrors "downloadgate/pkg/domain-errors"
	"downloadgate/pkg/platform/httputil"
	"downloadgate/pkg/platform/sentinel"
)

// BlobServer opens objects behind URLs signed by the in-memory blob store.
type BlobServer interface {
	Open(key string, query url.Values) (*blob.ObjectInfo, []byte, error)
}

func (h *Handler) handleBlob(blobs BlobServer) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		key := chi.URLParam(r, "*")
		if r.URL.RawPath != "" {
			unescaped, err := url.PathUnescape(key)
			if err != nil {
				httputil.WriteError(w, dErrors.New(dErrors.CodeNotFound, "File not found"))
				return
			}
			key = unescaped
		}

		info, data, err := blobs.Open(key, r.URL.Query())
		switch {
		case errors.Is(err, blobmemory.ErrLinkExpired):
			httputil.WriteError(w, dErrors.Wrap(err, dErrors.CodeForbidden, "Download link has expired"))
			return
		case errors.Is(err, blobmemory.ErrSignatureInvalid):
			httputil.WriteError(w, dErrors.Wrap(err, dErrors.CodeForbidden, "Invalid download link"))
			return
		case errors.Is(err, sentinel.ErrNotFound):
			httputil.WriteError(w, dErrors.Wrap(err, dErrors.CodeNotFound, "File not found"))
			return
		case err != nil:
			h.logger.ErrorContext(r.Context(), "failed to open blob", "error", err)
			httputil.WriteError(w, err)
			return
		}

		w.Header().Set("Content-Disposition", blob.AttachmentDisposition(r.URL.Query().Get("fn")))
		if info.ContentType != "" {
			w.Header().Set("Content-Type", info.ContentType)
		}
		http.ServeContent(w, r, "", info.LastModified, bytes.NewReader(data))
	}
}
