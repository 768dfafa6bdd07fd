// Package blob describes the object store that backs the catalog and mints
// time-limited download URLs.
package blob

import (
	"context"
	"path"
	"strings"
	"time"
)

// ObjectInfo is the head metadata of one stored object.
type ObjectInfo struct {
	Key          string
	Size         int64
	LastModified time.Time
	ContentType  string
	// SHA256 is the hex digest of the object body, empty when the store has
	// none recorded.
	SHA256 string
}

// Store lists objects, reads their metadata and signs fetch URLs.
// Head returns sentinel.ErrNotFound for a missing key.
type Store interface {
	List(ctx context.Context) ([]ObjectInfo, error)
	Head(ctx context.Context, key string) (*ObjectInfo, error)
	Signer
}

// Signer mints a URL that fetches key for ttl, hinting the client to save it
// as filename.
type Signer interface {
	PresignGet(ctx context.Context, key string, ttl time.Duration, filename string) (string, error)
}

// AttachmentDisposition builds a Content-Disposition value that names the
// download. Quotes, backslashes and control characters are dropped from the
// name.
func AttachmentDisposition(filename string) string {
	clean := strings.Map(func(r rune) rune {
		if r == '"' || r == '\\' || r < 0x20 || r == 0x7f {
			return -1
		}
		return r
	}, filename)
	if clean == "" {
		return "attachment"
	}
	return `attachment; filename="` + clean + `"`
}

// BaseName is the last path segment of a storage key.
func BaseName(key string) string {
	return path.Base(key)
}
