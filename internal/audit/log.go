// Package audit appends a record for every minted download permission.
package audit

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"downloadgate/internal/platform/metrics"
)

// Store is an append-only audit sink. Sinks that can enforce it keep one
// record per RequestID; a log-structured sink keys records by RequestID and
// leaves deduplication to its consumers.
type Store interface {
	Append(ctx context.Context, rec Record) error
}

const defaultTimeout = 3 * time.Second

// Log writes audit records on a best-effort basis.
type Log struct {
	store   Store
	timeout time.Duration
	logger  *slog.Logger
	metrics *metrics.Metrics
}

type Option func(*Log)

func WithTimeout(d time.Duration) Option {
	return func(l *Log) {
		if d > 0 {
			l.timeout = d
		}
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(l *Log) {
		l.logger = logger
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(l *Log) {
		l.metrics = m
	}
}

func NewLog(store Store, opts ...Option) (*Log, error) {
	if store == nil {
		return nil, errors.New("audit store is required")
	}
	l := &Log{
		store:   store,
		timeout: defaultTimeout,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l, nil
}

// Record appends rec. The write outlives a cancelled request but not the
// timeout; a failure is logged and counted, never returned.
func (l *Log) Record(ctx context.Context, rec Record) {
	writeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), l.timeout)
	defer cancel()

	if err := l.store.Append(writeCtx, rec); err != nil {
		l.metrics.IncrementAuditFailures()
		l.logger.ErrorContext(ctx, "audit write failed",
			"error", err,
			"request_id", rec.RequestID,
			"file_id", rec.FileID,
			"client_id", rec.ClientID,
		)
	}
}
