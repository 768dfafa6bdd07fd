package store

import (
	"context"
	"database/sql"
	"errors"
	"io"
	"log/slog"
	"path/filepath"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"downloadgate/internal/license/models"
	"downloadgate/internal/platform/database"
	"downloadgate/pkg/platform/sentinel"
)

var selectColumns = []string{"license_key", "organization", "license_type", "expiry", "products", "support_contact"}

func TestSQLStoreFindByKey(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer func() { _ = db.Close() }()
	store := NewSQLStore(db, database.DriverPostgres)

	t.Run("maps row to license", func(t *testing.T) {
		mock.ExpectQuery(regexp.QuoteMeta("FROM licenses WHERE license_key = $1")).
			WithArgs("MNGO-AAAA-BBBB-CCCC").
			WillReturnRows(sqlmock.NewRows(selectColumns).
				AddRow("MNGO-AAAA-BBBB-CCCC", "Acme", "Full", "2099-01-01", "studio, cli", "ops@acme.test"))

		l, err := store.FindByKey(context.Background(), "MNGO-AAAA-BBBB-CCCC")
		require.NoError(t, err)
		assert.Equal(t, "Acme", l.Organization)
		assert.Equal(t, models.LicenseTypeFull, l.Type)
		assert.Equal(t, []string{"studio", "cli"}, l.Products)
		assert.Equal(t, time.Date(2099, 1, 1, 0, 0, 0, 0, time.UTC), l.Expiry)
	})

	t.Run("no rows is ErrNotFound", func(t *testing.T) {
		mock.ExpectQuery(regexp.QuoteMeta("FROM licenses WHERE license_key = $1")).
			WithArgs("BOGUS-KEY").
			WillReturnError(sql.ErrNoRows)

		_, err := store.FindByKey(context.Background(), "BOGUS-KEY")
		assert.ErrorIs(t, err, sentinel.ErrNotFound)
	})

	t.Run("driver failure is wrapped", func(t *testing.T) {
		mock.ExpectQuery(regexp.QuoteMeta("FROM licenses")).
			WillReturnError(errors.New("connection reset"))

		_, err := store.FindByKey(context.Background(), "K")
		require.Error(t, err)
		assert.NotErrorIs(t, err, sentinel.ErrNotFound)
	})

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSQLStoreDelete(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer func() { _ = db.Close() }()
	store := NewSQLStore(db, database.DriverSQLite)

	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM licenses WHERE license_key = ?")).
		WithArgs("gone").
		WillReturnResult(sqlmock.NewResult(0, 0))

	err = store.Delete(context.Background(), "gone")
	assert.ErrorIs(t, err, sentinel.ErrNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

// SQLiteStoreSuite runs the store against a real embedded database.
type SQLiteStoreSuite struct {
	suite.Suite
	db    *sql.DB
	store *SQLStore
}

func TestSQLiteStoreSuite(t *testing.T) {
	suite.Run(t, new(SQLiteStoreSuite))
}

func (s *SQLiteStoreSuite) SetupTest() {
	ctx := context.Background()
	db, err := database.Open(ctx, database.DriverSQLite, "file:"+filepath.Join(s.T().TempDir(), "lic.db"))
	s.Require().NoError(err)
	s.Require().NoError(database.Migrate(db, database.DriverSQLite, slog.New(slog.NewTextHandler(io.Discard, nil))))
	s.db = db
	s.store = NewSQLStore(db, database.DriverSQLite)
}

func (s *SQLiteStoreSuite) TearDownTest() {
	_ = s.db.Close()
}

func (s *SQLiteStoreSuite) newLicense(key string) *models.License {
	l, err := models.NewLicense(key, "Acme", models.LicenseTypeFull, "2099-01-01", []string{"studio"}, "ops@acme.test")
	s.Require().NoError(err)
	return l
}

func (s *SQLiteStoreSuite) TestRoundTrip() {
	ctx := context.Background()
	s.Require().NoError(s.store.Create(ctx, s.newLicense("MNGO-AAAA-BBBB-CCCC")))

	got, err := s.store.FindByKey(ctx, "MNGO-AAAA-BBBB-CCCC")
	s.Require().NoError(err)
	s.Equal([]string{"studio"}, got.Products)
	s.Equal("ops@acme.test", got.SupportContact)
}

func (s *SQLiteStoreSuite) TestLookupIsExactAndCaseSensitive() {
	ctx := context.Background()
	s.Require().NoError(s.store.Create(ctx, s.newLicense("MNGO-AAAA-BBBB-CCCC")))

	_, err := s.store.FindByKey(ctx, "mngo-aaaa-bbbb-cccc")
	s.ErrorIs(err, sentinel.ErrNotFound)

	_, err = s.store.FindByKey(ctx, "MNGO-AAAA")
	s.ErrorIs(err, sentinel.ErrNotFound)
}

func (s *SQLiteStoreSuite) TestDuplicateKeyIsConflict() {
	ctx := context.Background()
	s.Require().NoError(s.store.Create(ctx, s.newLicense("DUP")))
	err := s.store.Create(ctx, s.newLicense("DUP"))
	s.ErrorIs(err, sentinel.ErrConflict)
}

func (s *SQLiteStoreSuite) TestListAndDelete() {
	ctx := context.Background()
	s.Require().NoError(s.store.Create(ctx, s.newLicense("B")))
	s.Require().NoError(s.store.Create(ctx, s.newLicense("A")))

	all, err := s.store.List(ctx)
	s.Require().NoError(err)
	s.Require().Len(all, 2)
	s.Equal("A", all[0].Key)

	s.Require().NoError(s.store.Delete(ctx, "A"))
	s.ErrorIs(s.store.Delete(ctx, "A"), sentinel.ErrNotFound)
}
