package service

import (
	"context"
	"errors"
	"log/slog"

	"downloadgate/internal/catalog"
	"downloadgate/internal/download/models"
	dErrors "downloadgate/pkg/domain-errors"
	"downloadgate/pkg/platform/sentinel"
)

// Checksums serves file digests to holders of a live session. Read-only, so
// no freshness or replay check applies.
type Checksums struct {
	sessions Sessions
	catalog  Catalog
	logger   *slog.Logger
}

func NewChecksums(sessions Sessions, resolver Catalog, logger *slog.Logger) (*Checksums, error) {
	if sessions == nil {
		return nil, errors.New("session validator is required")
	}
	if resolver == nil {
		return nil, errors.New("catalog resolver is required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Checksums{sessions: sessions, catalog: resolver, logger: logger}, nil
}

// Checksum returns the digest recorded for fileID. Unknown, unentitled and
// digest-less files are all NotFound.
func (c *Checksums) Checksum(ctx context.Context, token, fileID string) (*models.Checksum, error) {
	profile, err := c.sessions.Validate(ctx, token)
	if err != nil {
		return nil, err
	}

	entry, err := c.catalog.ResolveFor(profile, fileID)
	switch {
	case errors.Is(err, catalog.ErrNotEntitled):
		return nil, dErrors.Wrap(err, dErrors.CodeNotFound, catalog.NotFoundMessage)
	case err != nil:
		return nil, err
	}

	if entry.Checksum == "" {
		c.logger.WarnContext(ctx, "catalog entry has no checksum", "file_id", entry.FileID)
		return nil, dErrors.Wrap(sentinel.ErrNotFound, dErrors.CodeNotFound, catalog.NotFoundMessage)
	}
	return &models.Checksum{
		FileID:    entry.FileID,
		Value:     entry.Checksum,
		Algorithm: catalog.ChecksumAlgorithm,
	}, nil
}
