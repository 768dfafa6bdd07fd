package models

import (
	"strings"
	"time"

	"github.com/google/uuid"

	licensemodels "downloadgate/internal/license/models"
)

// TokenPrefix marks every session token minted by the gateway.
const TokenPrefix = "sess-"

// Session binds a short-lived token to the license profile it was issued for.
type Session struct {
	Token     string
	License   *licensemodels.Profile
	IssuedAt  time.Time
	ExpiresAt time.Time
	ClientIP  string
	UserAgent string
}

// ActiveAt reports whether the session is inside [IssuedAt, ExpiresAt).
func (s *Session) ActiveAt(now time.Time) bool {
	return !now.Before(s.IssuedAt) && now.Before(s.ExpiresAt)
}

// NewToken returns sess-<uuidv4>. uuid.New reads crypto/rand.
func NewToken() string {
	return TokenPrefix + uuid.New().String()
}

// ValidTokenShape is a cheap pre-check; it never stands in for a table lookup.
func ValidTokenShape(token string) bool {
	raw, ok := strings.CutPrefix(token, TokenPrefix)
	if !ok {
		return false
	}
	id, err := uuid.Parse(raw)
	return err == nil && id.Version() == 4 && len(raw) == 36
}
