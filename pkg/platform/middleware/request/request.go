// Package request enforces the client-supplied request identifier.
package request

import (
	"net/http"
	"strings"

	dErrors "downloadgate/pkg/domain-errors"
	"downloadgate/pkg/platform/httputil"
	"downloadgate/pkg/requestcontext"
)

// HeaderRequestID carries the per-attempt request identifier.
const HeaderRequestID = "X-Request-ID"

const maxRequestIDLength = 128

// RequireRequestID rejects requests without a usable request ID with 400. It
// runs before authentication so a missing ID is reported distinctly from a
// missing session.
func RequireRequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := strings.TrimSpace(r.Header.Get(HeaderRequestID))
		if id == "" || len(id) > maxRequestIDLength {
			httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "Missing or invalid request id"))
			return
		}
		w.Header().Set(HeaderRequestID, id)
		next.ServeHTTP(w, r.WithContext(requestcontext.WithRequestID(r.Context(), id)))
	})
}
