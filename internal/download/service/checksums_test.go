package service

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	blobmemory "downloadgate/internal/blob/memory"
	"downloadgate/internal/catalog"
	licensemodels "downloadgate/internal/license/models"
	sessionservice "downloadgate/internal/session/service"
	sessionstore "downloadgate/internal/session/store"
	dErrors "downloadgate/pkg/domain-errors"
)

type ChecksumsSuite struct {
	suite.Suite
	now       time.Time
	checksums *Checksums
	token     string
}

func TestChecksumsSuite(t *testing.T) {
	suite.Run(t, new(ChecksumsSuite))
}

func (s *ChecksumsSuite) SetupTest() {
	s.now = time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	clock := func() time.Time { return s.now }

	blobs, err := blobmemory.New("secret", "http://localhost/blob")
	s.Require().NoError(err)
	blobs.Put("docs/Marengo-Manual.pdf", []byte("manual"))
	blobs.Put("releases/sdk.zip", []byte("sdk"))
	blobs.Put("releases/legacy.tar.gz", []byte("legacy"))

	manifest, err := catalog.ParseManifest(strings.NewReader(`
files:
  - id: documentation
    key: docs/Marengo-Manual.pdf
    checksum: 2c26b46b68ffc68ff99b453c1d30413413422d706483bfa0f98a5e886266e7ae
  - id: sdk
    key: releases/sdk.zip
    products: [sdk]
  - id: legacy
    key: releases/legacy.tar.gz
`))
	s.Require().NoError(err)
	resolver, err := catalog.NewResolver(manifest, blobs)
	s.Require().NoError(err)
	s.Require().NoError(resolver.Refresh(context.Background()))

	issuer, err := sessionservice.New(sessionstore.New(), sessionservice.WithClock(clock))
	s.Require().NoError(err)
	lic, err := licensemodels.NewLicense("MNGO-AAAA-BBBB-CCCC", "Acme", licensemodels.LicenseTypeLite, "2099-01-01", []string{"studio"}, "")
	s.Require().NoError(err)
	session, err := issuer.Issue(context.Background(), lic.Profile())
	s.Require().NoError(err)
	s.token = session.Token

	checksums, err := NewChecksums(issuer, resolver, nil)
	s.Require().NoError(err)
	s.checksums = checksums
}

func (s *ChecksumsSuite) TestChecksumIsIdempotent() {
	first, err := s.checksums.Checksum(context.Background(), s.token, "documentation")
	s.Require().NoError(err)
	s.Equal("2c26b46b68ffc68ff99b453c1d30413413422d706483bfa0f98a5e886266e7ae", first.Value)
	s.Equal("sha256", first.Algorithm)

	second, err := s.checksums.Checksum(context.Background(), s.token, "documentation")
	s.Require().NoError(err)
	s.Equal(first, second)
}

func (s *ChecksumsSuite) TestBlobDigestUsedWithoutManifestChecksum() {
	sum, err := s.checksums.Checksum(context.Background(), s.token, "legacy")
	s.Require().NoError(err)
	s.Len(sum.Value, 64)
}

func (s *ChecksumsSuite) TestRequiresLiveSession() {
	_, err := s.checksums.Checksum(context.Background(), "sess-not-a-uuid", "documentation")
	s.True(dErrors.Is(err, dErrors.CodeUnauthorized))

	s.now = s.now.Add(time.Hour)
	_, err = s.checksums.Checksum(context.Background(), s.token, "documentation")
	s.True(dErrors.Is(err, dErrors.CodeUnauthorized))
}

func (s *ChecksumsSuite) TestUnknownAndUnentitledAreNotFound() {
	for _, id := range []string{"nonexistent", "sdk", "../docs/Marengo-Manual.pdf"} {
		_, err := s.checksums.Checksum(context.Background(), s.token, id)
		s.True(dErrors.Is(err, dErrors.CodeNotFound), id)
		s.Equal("File not found", dErrors.MessageOf(err), id)
	}
}
