//go:build integration

package store_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/suite"

	"downloadgate/internal/license/models"
	"downloadgate/internal/license/store"
	"downloadgate/internal/platform/database"
	"downloadgate/pkg/platform/sentinel"
	"downloadgate/pkg/testutil/containers"
)

type PostgresLicenseStoreSuite struct {
	suite.Suite
	pg    *containers.PostgresContainer
	store *store.SQLStore
}

func TestPostgresLicenseStoreSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(PostgresLicenseStoreSuite))
}

func (s *PostgresLicenseStoreSuite) SetupSuite() {
	s.pg = containers.NewPostgresContainer(s.T())
	s.store = store.NewSQLStore(s.pg.DB, database.DriverPostgres)
}

func (s *PostgresLicenseStoreSuite) SetupTest() {
	s.Require().NoError(s.pg.TruncateTables(context.Background(), "licenses"))
}

func (s *PostgresLicenseStoreSuite) TestCreateFindDelete() {
	ctx := context.Background()
	lic, err := models.NewLicense("MNGO-AAAA-BBBB-CCCC", "Acme", models.LicenseTypeTrial, "2099-01-01", []string{"studio", "cli"}, "ops@acme.test")
	s.Require().NoError(err)
	s.Require().NoError(s.store.Create(ctx, lic))
	s.ErrorIs(s.store.Create(ctx, lic), sentinel.ErrConflict)

	got, err := s.store.FindByKey(ctx, "MNGO-AAAA-BBBB-CCCC")
	s.Require().NoError(err)
	s.Equal(models.LicenseTypeTrial, got.Type)
	s.Equal([]string{"studio", "cli"}, got.Products)

	_, err = s.store.FindByKey(ctx, "MNGO-AAAA-BBBB-CCC")
	s.ErrorIs(err, sentinel.ErrNotFound)

	s.Require().NoError(s.store.Delete(ctx, "MNGO-AAAA-BBBB-CCCC"))
}
