package models

import (
	"time"
)

// State is a step of the authorization state machine.
type State string

const (
	StateReceived         State = "received"
	StateSessionChecked   State = "session_checked"
	StateFreshnessChecked State = "freshness_checked"
	StateEntitled         State = "entitled"
	StateSigned           State = "signed"
	StateAudited          State = "audited"
	StateCompleted        State = "completed"
	StateRejected         State = "rejected"
)

// Reason labels why a request left the state machine early.
type Reason string

const (
	ReasonMalformed       Reason = "malformed"
	ReasonRateLimited     Reason = "rate_limited"
	ReasonUnauthenticated Reason = "unauthenticated"
	ReasonRequestRejected Reason = "request_rejected"
	ReasonNotFound        Reason = "not_found"
	ReasonForbidden       Reason = "forbidden"
	ReasonUpstreamFailure Reason = "upstream_failure"
	ReasonCompleted       Reason = "completed"
)

// DownloadRequest is one attempt to obtain a signed URL.
type DownloadRequest struct {
	SessionToken string
	RequestID    string
	FileID       string
	ClientID     string
	Timestamp    time.Time
	UserAgent    string
	SourceIP     string
}

// DownloadPermission is the ephemeral grant returned to the client. It is
// never persisted.
type DownloadPermission struct {
	FileID    string
	URL       string
	IssuedAt  time.Time
	ExpiresAt time.Time
	Checksum  string
}

// Checksum is the integrity digest of a catalog file.
type Checksum struct {
	FileID    string
	Value     string
	Algorithm string
}
