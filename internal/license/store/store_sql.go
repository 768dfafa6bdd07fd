package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	sq "github.com/Masterminds/squirrel"
	"github.com/lib/pq"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"downloadgate/internal/license/models"
	"downloadgate/internal/platform/database"
	"downloadgate/pkg/platform/sentinel"
	pstrings "downloadgate/pkg/platform/strings"
)

const licensesTable = "licenses"

var licenseColumns = []string{
	"license_key", "organization", "license_type", "expiry", "products", "support_contact",
}

// SQLStore reads and writes the licenses table on postgres or sqlite.
type SQLStore struct {
	db *sql.DB
	sb sq.StatementBuilderType
}

// NewSQLStore picks the placeholder format for driver.
func NewSQLStore(db *sql.DB, driver string) *SQLStore {
	sb := sq.StatementBuilder.PlaceholderFormat(sq.Question)
	if driver == database.DriverPostgres {
		sb = sq.StatementBuilder.PlaceholderFormat(sq.Dollar)
	}
	return &SQLStore{db: db, sb: sb}
}

// FindByKey is an exact, case-sensitive match on the primary key.
func (s *SQLStore) FindByKey(ctx context.Context, key string) (*models.License, error) {
	query, args, err := s.sb.Select(licenseColumns...).
		From(licensesTable).
		Where(sq.Eq{"license_key": key}).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("building license query: %w", err)
	}

	l, err := scanLicense(s.db.QueryRowContext(ctx, query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, sentinel.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying license: %w", err)
	}
	return l, nil
}

func (s *SQLStore) Create(ctx context.Context, l *models.License) error {
	query, args, err := s.sb.Insert(licensesTable).
		Columns(licenseColumns...).
		Values(l.Key, l.Organization, string(l.Type), l.Expiry.Format(models.ExpiryLayout),
			pstrings.JoinList(l.Products), l.SupportContact).
		ToSql()
	if err != nil {
		return fmt.Errorf("building license insert: %w", err)
	}

	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("license %w", sentinel.ErrConflict)
		}
		return fmt.Errorf("inserting license: %w", err)
	}
	return nil
}

func (s *SQLStore) List(ctx context.Context) ([]*models.License, error) {
	query, args, err := s.sb.Select(licenseColumns...).
		From(licensesTable).
		OrderBy("license_key").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("building license list: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing licenses: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []*models.License
	for rows.Next() {
		l, err := scanLicense(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning license: %w", err)
		}
		out = append(out, l)
	}
	return out, rows.Err()
}

func (s *SQLStore) Delete(ctx context.Context, key string) error {
	query, args, err := s.sb.Delete(licensesTable).
		Where(sq.Eq{"license_key": key}).
		ToSql()
	if err != nil {
		return fmt.Errorf("building license delete: %w", err)
	}

	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("deleting license: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("deleting license: %w", err)
	}
	if n == 0 {
		return sentinel.ErrNotFound
	}
	return nil
}

func (s *SQLStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanLicense(row rowScanner) (*models.License, error) {
	var (
		l        models.License
		typ      string
		expiry   string
		products string
	)
	if err := row.Scan(&l.Key, &l.Organization, &typ, &expiry, &products, &l.SupportContact); err != nil {
		return nil, err
	}
	exp, err := models.ParseExpiry(expiry)
	if err != nil {
		return nil, fmt.Errorf("license %q: %w", l.Key, err)
	}
	l.Type = models.LicenseType(typ)
	l.Expiry = exp
	l.Products = pstrings.SplitList(products)
	return &l, nil
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == "23505"
	}
	var liteErr *sqlite.Error
	if errors.As(err, &liteErr) {
		code := liteErr.Code()
		return code == sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY || code == sqlite3.SQLITE_CONSTRAINT_UNIQUE
	}
	return false
}
