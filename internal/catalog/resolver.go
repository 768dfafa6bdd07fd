// Package catalog maps client-facing file ids to blob storage keys.
package catalog

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"downloadgate/internal/blob"
	licensemodels "downloadgate/internal/license/models"
	"downloadgate/internal/platform/metrics"
	dErrors "downloadgate/pkg/domain-errors"
	"downloadgate/pkg/platform/sentinel"
)

// ErrNotEntitled marks a known file the license may not fetch.
var ErrNotEntitled = errors.New("license not entitled to file")

// NotFoundMessage is also used for unentitled files so the catalog cannot be
// enumerated.
const NotFoundMessage = "File not found"

// Source is the blob listing the catalog is refreshed from.
type Source interface {
	List(ctx context.Context) ([]blob.ObjectInfo, error)
	Head(ctx context.Context, key string) (*blob.ObjectInfo, error)
}

const headConcurrency = 8

// Resolver holds the current catalog snapshot.
type Resolver struct {
	manifest *Manifest
	source   Source
	logger   *slog.Logger
	metrics  *metrics.Metrics
	timeout  time.Duration

	mu      sync.RWMutex
	entries []Entry
	byID    map[string]int
}

type Option func(*Resolver)

func WithLogger(logger *slog.Logger) Option {
	return func(r *Resolver) {
		r.logger = logger
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(r *Resolver) {
		r.metrics = m
	}
}

// WithRefreshTimeout bounds one refresh.
func WithRefreshTimeout(d time.Duration) Option {
	return func(r *Resolver) {
		if d > 0 {
			r.timeout = d
		}
	}
}

func NewResolver(manifest *Manifest, source Source, opts ...Option) (*Resolver, error) {
	if manifest == nil {
		return nil, errors.New("catalog manifest is required")
	}
	if source == nil {
		return nil, errors.New("catalog source is required")
	}
	r := &Resolver{
		manifest: manifest,
		source:   source,
		logger:   slog.Default(),
		timeout:  30 * time.Second,
		byID:     map[string]int{},
	}
	for _, opt := range opts {
		opt(r)
	}
	return r, nil
}

// Resolve returns the entry for fileID. Ids are compared exactly; nothing is
// derived from the client's string.
func (r *Resolver) Resolve(fileID string) (*Entry, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	i, ok := r.byID[fileID]
	if !ok {
		return nil, dErrors.Wrap(sentinel.ErrNotFound, dErrors.CodeNotFound, NotFoundMessage)
	}
	e := r.entries[i]
	return &e, nil
}

// ResolveFor resolves fileID and checks profile is entitled to it. The two
// failures keep distinct causes but render identically.
func (r *Resolver) ResolveFor(profile *licensemodels.Profile, fileID string) (*Entry, error) {
	entry, err := r.Resolve(fileID)
	if err != nil {
		return nil, err
	}
	if !Entitled(profile, entry) {
		return nil, dErrors.Wrap(ErrNotEntitled, dErrors.CodeForbidden, NotFoundMessage)
	}
	return entry, nil
}

// Entitled reports whether profile may fetch entry.
func (r *Resolver) Entitled(profile *licensemodels.Profile, entry *Entry) bool {
	return Entitled(profile, entry)
}

// List returns the available entries in manifest order.
func (r *Resolver) List() []Entry {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Entry, len(r.entries))
	copy(out, r.entries)
	return out
}

// ListFor returns the entries profile is entitled to.
func (r *Resolver) ListFor(profile *licensemodels.Profile) []Entry {
	all := r.List()
	out := all[:0]
	for i := range all {
		if Entitled(profile, &all[i]) {
			out = append(out, all[i])
		}
	}
	return out
}

// Refresh rebuilds the snapshot from the blob listing. Manifest files whose
// key is not listed are hidden. On error the previous snapshot stays.
func (r *Resolver) Refresh(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	listed, err := r.source.List(ctx)
	if err != nil {
		r.metrics.IncrementCatalogRefreshFailures()
		return fmt.Errorf("list blob store: %w", err)
	}
	present := make(map[string]blob.ObjectInfo, len(listed))
	for _, obj := range listed {
		present[obj.Key] = obj
	}

	entries := make([]Entry, len(r.manifest.Files))
	found := make([]bool, len(r.manifest.Files))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(headConcurrency)
	for i, f := range r.manifest.Files {
		obj, ok := present[f.Key]
		if !ok {
			continue
		}
		g.Go(func() error {
			if f.Checksum == "" {
				head, err := r.source.Head(gctx, f.Key)
				switch {
				case errors.Is(err, sentinel.ErrNotFound):
					return nil
				case err != nil:
					return fmt.Errorf("head %s: %w", f.ID, err)
				}
				obj.SHA256 = head.SHA256
				if head.Size > 0 {
					obj.Size = head.Size
				}
			}
			entries[i] = newEntry(f, obj)
			found[i] = true
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		r.metrics.IncrementCatalogRefreshFailures()
		return err
	}

	snapshot := make([]Entry, 0, len(entries))
	byID := make(map[string]int, len(entries))
	for i := range entries {
		if !found[i] {
			r.logger.WarnContext(ctx, "catalog file missing from blob store", "file_id", r.manifest.Files[i].ID)
			continue
		}
		byID[entries[i].FileID] = len(snapshot)
		snapshot = append(snapshot, entries[i])
	}

	r.mu.Lock()
	r.entries = snapshot
	r.byID = byID
	r.mu.Unlock()

	r.metrics.SetCatalogEntries(len(snapshot))
	r.logger.InfoContext(ctx, "catalog refreshed", "entries", len(snapshot), "manifest_files", len(r.manifest.Files))
	return nil
}

// Run refreshes every interval until ctx is done. Failures are logged.
func (r *Resolver) Run(ctx context.Context, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if err := r.Refresh(ctx); err != nil {
				r.logger.ErrorContext(ctx, "catalog refresh failed", "error", err)
			}
		}
	}
}
