package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"downloadgate/internal/audit"
)

// Execer is satisfied by *pgxpool.Pool and pgx.Tx.
type Execer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// Store appends audit records to the download_audit table.
type Store struct {
	db Execer
}

func New(db Execer) *Store {
	return &Store{db: db}
}

// Connect opens a pool against dsn and checks it.
func Connect(ctx context.Context, dsn string) (*pgxpool.Pool, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("open audit pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping audit database: %w", err)
	}
	return pool, nil
}

const insertRecord = `
	INSERT INTO download_audit (
		id, request_id, file_id, client_id, license_key_hint,
		source_ip, user_agent, client_platform,
		client_timestamp, issued_at, expires_at
	)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	ON CONFLICT (request_id) DO NOTHING
`

// Append is idempotent per request id.
func (s *Store) Append(ctx context.Context, rec audit.Record) error {
	_, err := s.db.Exec(ctx, insertRecord,
		rec.ID,
		rec.RequestID,
		rec.FileID,
		rec.ClientID,
		rec.LicenseKeyHint,
		rec.SourceIP,
		rec.UserAgent,
		rec.ClientPlatform,
		rec.ClientTimestamp,
		rec.IssuedAt,
		rec.ExpiresAt,
	)
	if err != nil {
		return fmt.Errorf("insert audit record: %w", err)
	}
	return nil
}
