package audit

import (
	"time"

	"github.com/google/uuid"
	"github.com/mssola/useragent"

	"downloadgate/pkg/platform/privacy"
)

// Record is one minted download permission. Append-only; never mutated.
type Record struct {
	ID              uuid.UUID `json:"id"`
	RequestID       string    `json:"requestId"`
	FileID          string    `json:"fileId"`
	ClientID        string    `json:"clientId"`
	LicenseKeyHint  string    `json:"licenseKeyHint"`
	SourceIP        string    `json:"sourceIp"`
	UserAgent       string    `json:"userAgent"`
	ClientPlatform  string    `json:"clientPlatform,omitempty"`
	ClientTimestamp time.Time `json:"timestamp"`
	IssuedAt        time.Time `json:"issuedAt"`
	ExpiresAt       time.Time `json:"expiresAt"`
}

// RecordInput is what the authorizer knows about a granted request.
type RecordInput struct {
	RequestID       string
	FileID          string
	ClientID        string
	LicenseKey      string
	SourceIP        string
	UserAgent       string
	ClientTimestamp time.Time
	IssuedAt        time.Time
	ExpiresAt       time.Time
}

// NewRecord masks the license key and derives the client platform from the
// user agent.
func NewRecord(in RecordInput) Record {
	return Record{
		ID:              uuid.New(),
		RequestID:       in.RequestID,
		FileID:          in.FileID,
		ClientID:        in.ClientID,
		LicenseKeyHint:  privacy.MaskKey(in.LicenseKey),
		SourceIP:        in.SourceIP,
		UserAgent:       in.UserAgent,
		ClientPlatform:  Platform(in.UserAgent),
		ClientTimestamp: in.ClientTimestamp.UTC(),
		IssuedAt:        in.IssuedAt.UTC(),
		ExpiresAt:       in.ExpiresAt.UTC(),
	}
}

// Platform summarises a user agent as "<os> / <browser>", or the OS alone for
// non-browser clients.
func Platform(ua string) string {
	if ua == "" {
		return ""
	}
	parsed := useragent.New(ua)
	os := parsed.OS()
	name, version := parsed.Browser()
	if parsed.Bot() {
		return "bot"
	}
	switch {
	case os != "" && name != "" && version != "":
		return os + " / " + name + " " + version
	case os != "":
		return os
	default:
		return name
	}
}
