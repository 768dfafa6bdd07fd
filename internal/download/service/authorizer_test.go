package service

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/suite"
	"go.uber.org/mock/gomock"

	"downloadgate/internal/audit"
	auditmemory "downloadgate/internal/audit/store/memory"
	blobmemory "downloadgate/internal/blob/memory"
	"downloadgate/internal/catalog"
	"downloadgate/internal/download/models"
	"downloadgate/internal/download/service/mocks"
	"downloadgate/internal/freshness"
	replaystore "downloadgate/internal/freshness/store"
	licensemodels "downloadgate/internal/license/models"
	"downloadgate/internal/platform/metrics"
	rlmodels "downloadgate/internal/ratelimit/models"
	rlservice "downloadgate/internal/ratelimit/service"
	"downloadgate/internal/ratelimit/store/bucket"
	sessionservice "downloadgate/internal/session/service"
	sessionstore "downloadgate/internal/session/store"
	dErrors "downloadgate/pkg/domain-errors"
	"downloadgate/pkg/platform/sentinel"
)

type failingAuditStore struct {
	calls int
}

func (f *failingAuditStore) Append(context.Context, audit.Record) error {
	f.calls++
	return errors.New("audit sink unavailable")
}

type brokenLimiter struct{}

func (brokenLimiter) Admit(context.Context, string, rlmodels.EndpointClass) (*rlmodels.RateLimitResult, error) {
	return nil, errors.New("redis down")
}

type AuthorizerSuite struct {
	suite.Suite
	ctrl       *gomock.Controller
	signer     *mocks.MockSigner
	now        time.Time
	clock      func() time.Time
	limiter    *rlservice.Service
	issuer     *sessionservice.Issuer
	guard      *freshness.Guard
	resolver   *catalog.Resolver
	auditStore *auditmemory.InMemoryStore
	auditLog   *audit.Log
	metrics    *metrics.Metrics
	authorizer *Authorizer
	token      string
	requests   int
}

func TestAuthorizerSuite(t *testing.T) {
	suite.Run(t, new(AuthorizerSuite))
}

func (s *AuthorizerSuite) SetupTest() {
	s.ctrl = gomock.NewController(s.T())
	s.signer = mocks.NewMockSigner(s.ctrl)
	s.now = time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	s.clock = func() time.Time { return s.now }
	s.metrics = metrics.New(prometheus.NewRegistry())
	s.requests = 0

	limiter, err := rlservice.New(bucket.NewInMemoryBucketStore(bucket.WithClock(s.clock)),
		rlservice.WithClock(s.clock),
		rlservice.WithLimit(rlmodels.ClassDownload, 3, 15*time.Minute),
	)
	s.Require().NoError(err)
	s.limiter = limiter

	issuer, err := sessionservice.New(sessionstore.New(), sessionservice.WithClock(s.clock))
	s.Require().NoError(err)
	s.issuer = issuer

	guard, err := freshness.New(replaystore.NewInMemory(replaystore.WithClock(s.clock)), freshness.WithClock(s.clock))
	s.Require().NoError(err)
	s.guard = guard

	blobs, err := blobmemory.New("secret", "http://localhost/blob")
	s.Require().NoError(err)
	blobs.Put("docs/Marengo-Manual.pdf", []byte("manual"))
	blobs.Put("releases/MarengoStudio-gui-win64.exe", []byte("studio"))
	blobs.Put("releases/sdk.zip", []byte("sdk"))
	manifest, err := catalog.ParseManifest(strings.NewReader(`
files:
  - id: documentation
    key: docs/Marengo-Manual.pdf
  - id: studio-win
    key: releases/MarengoStudio-gui-win64.exe
    name: MarengoStudio.exe
    products: [studio]
  - id: sdk
    key: releases/sdk.zip
    products: [sdk]
`))
	s.Require().NoError(err)
	resolver, err := catalog.NewResolver(manifest, blobs)
	s.Require().NoError(err)
	s.Require().NoError(resolver.Refresh(context.Background()))
	s.resolver = resolver

	s.auditStore = auditmemory.NewInMemoryStore()
	auditLog, err := audit.NewLog(s.auditStore)
	s.Require().NoError(err)
	s.auditLog = auditLog

	s.authorizer = s.newAuthorizer(s.limiter, s.auditLog)

	lic, err := licensemodels.NewLicense("MNGO-AAAA-BBBB-CCCC", "Acme", licensemodels.LicenseTypeFull, "2099-01-01", []string{"studio"}, "ops@acme.test")
	s.Require().NoError(err)
	session, err := s.issuer.Issue(context.Background(), lic.Profile())
	s.Require().NoError(err)
	s.token = session.Token
}

func (s *AuthorizerSuite) TearDownTest() {
	s.ctrl.Finish()
}

func (s *AuthorizerSuite) newAuthorizer(limiter RateLimiter, recorder AuditRecorder) *Authorizer {
	a, err := NewAuthorizer(limiter, s.issuer, s.guard, s.resolver, s.signer, recorder,
		WithClock(s.clock),
		WithMetrics(s.metrics),
	)
	s.Require().NoError(err)
	return a
}

func (s *AuthorizerSuite) request(fileID string) *models.DownloadRequest {
	s.requests++
	return &models.DownloadRequest{
		SessionToken: s.token,
		RequestID:    "req-" + fileID + "-" + string(rune('a'+s.requests)),
		FileID:       fileID,
		ClientID:     "client-1",
		Timestamp:    s.now.Add(-10 * time.Second),
		UserAgent:    "MarengoStudio/2.1 (Windows NT 10.0; Win64; x64)",
		SourceIP:     "203.0.113.7",
	}
}

func (s *AuthorizerSuite) auditCount() int {
	records, err := s.auditStore.ListAll(context.Background())
	s.Require().NoError(err)
	return len(records)
}

func (s *AuthorizerSuite) outcome(reason models.Reason) float64 {
	return testutil.ToFloat64(s.metrics.DownloadOutcomes.WithLabelValues(string(reason)))
}

func (s *AuthorizerSuite) TestGrantedDownload() {
	s.signer.EXPECT().
		PresignGet(gomock.Any(), "docs/Marengo-Manual.pdf", 60*time.Second, "Marengo-Manual.pdf").
		Return("https://blob.test/docs/Marengo-Manual.pdf?sig=x", nil)

	req := s.request("documentation")
	perm, err := s.authorizer.Authorize(context.Background(), req)
	s.Require().NoError(err)

	s.Equal("https://blob.test/docs/Marengo-Manual.pdf?sig=x", perm.URL)
	s.Equal(s.now, perm.IssuedAt)
	s.True(perm.ExpiresAt.Equal(s.now.Add(60*time.Second)))
	s.Len(perm.Checksum, 64)

	records, err := s.auditStore.ListAll(context.Background())
	s.Require().NoError(err)
	s.Require().Len(records, 1)
	s.Equal("documentation", records[0].FileID)
	s.Equal("client-1", records[0].ClientID)
	s.Equal(req.RequestID, records[0].RequestID)
	s.Equal("203.0.113.7", records[0].SourceIP)
	s.Equal("MNGO****", records[0].LicenseKeyHint[:8])
	s.True(records[0].ExpiresAt.Equal(perm.ExpiresAt))

	s.Equal(1.0, s.outcome(models.ReasonCompleted))
	s.Equal(1.0, testutil.ToFloat64(s.metrics.SignedURLsIssued))
}

func (s *AuthorizerSuite) TestRateLimited() {
	s.signer.EXPECT().PresignGet(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).
		Return("https://blob.test/x", nil).Times(3)

	for range 3 {
		_, err := s.authorizer.Authorize(context.Background(), s.request("documentation"))
		s.Require().NoError(err)
	}

	_, err := s.authorizer.Authorize(context.Background(), s.request("documentation"))
	s.True(dErrors.Is(err, dErrors.CodeRateLimited))
	var exceeded *rlmodels.ExceededError
	s.Require().ErrorAs(err, &exceeded)
	s.Equal(15*60, exceeded.RetryAfterSeconds())
	s.Equal(3, s.auditCount())
	s.Equal(1.0, s.outcome(models.ReasonRateLimited))
}

func (s *AuthorizerSuite) TestRateLimiterFailureFailsOpen() {
	s.authorizer = s.newAuthorizer(brokenLimiter{}, s.auditLog)
	s.signer.EXPECT().PresignGet(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).Return("https://blob.test/x", nil)

	_, err := s.authorizer.Authorize(context.Background(), s.request("documentation"))
	s.Require().NoError(err)
}

func (s *AuthorizerSuite) TestUnauthenticated() {
	for name, token := range map[string]string{
		"empty":     "",
		"malformed": "Bearer abc",
		"unknown":   "sess-6f9c1a52-3b7e-4d8a-9c0f-2e1d5a7b8c90",
	} {
		s.Run(name, func() {
			req := s.request("documentation")
			req.SessionToken = token
			_, err := s.authorizer.Authorize(context.Background(), req)
			s.True(dErrors.Is(err, dErrors.CodeUnauthorized))
		})
	}
	s.Zero(s.auditCount())
}

func (s *AuthorizerSuite) TestExpiredSessionIsUnauthenticated() {
	s.now = s.now.Add(16 * time.Minute)

	req := s.request("documentation")
	_, err := s.authorizer.Authorize(context.Background(), req)
	s.True(dErrors.Is(err, dErrors.CodeUnauthorized))
	s.ErrorIs(err, sentinel.ErrExpired)
}

func (s *AuthorizerSuite) TestStaleTimestampRejected() {
	req := s.request("documentation")
	req.Timestamp = s.now.Add(-10 * time.Minute)

	_, err := s.authorizer.Authorize(context.Background(), req)
	s.True(dErrors.Is(err, dErrors.CodeRequestRejected))
	s.ErrorIs(err, freshness.ErrStale)
	s.Equal(freshness.RejectedMessage, dErrors.MessageOf(err))
	s.Zero(s.auditCount())
}

func (s *AuthorizerSuite) TestReplayRejected() {
	s.signer.EXPECT().PresignGet(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).Return("https://blob.test/x", nil)

	req := s.request("documentation")
	_, err := s.authorizer.Authorize(context.Background(), req)
	s.Require().NoError(err)

	replay := *req
	_, err = s.authorizer.Authorize(context.Background(), &replay)
	s.True(dErrors.Is(err, dErrors.CodeRequestRejected))
	s.ErrorIs(err, freshness.ErrReplayed)
	s.Equal(freshness.RejectedMessage, dErrors.MessageOf(err))
	s.Equal(1, s.auditCount())
}

func (s *AuthorizerSuite) TestUnknownAndUnentitledAreDistinguishable() {
	_, err := s.authorizer.Authorize(context.Background(), s.request("nonexistent"))
	s.True(dErrors.Is(err, dErrors.CodeNotFound))
	s.ErrorIs(err, sentinel.ErrNotFound)
	s.Equal("File not found", dErrors.MessageOf(err))

	_, err = s.authorizer.Authorize(context.Background(), s.request("sdk"))
	s.True(dErrors.Is(err, dErrors.CodeForbidden))
	s.ErrorIs(err, catalog.ErrNotEntitled)
	s.Equal("File not found", dErrors.MessageOf(err))

	s.Zero(s.auditCount())
	s.Equal(1.0, s.outcome(models.ReasonNotFound))
	s.Equal(1.0, s.outcome(models.ReasonForbidden))
}

func (s *AuthorizerSuite) TestSignsDisplayNameAsAttachment() {
	s.signer.EXPECT().
		PresignGet(gomock.Any(), "releases/MarengoStudio-gui-win64.exe", 60*time.Second, "MarengoStudio.exe").
		Return("https://blob.test/studio", nil)

	_, err := s.authorizer.Authorize(context.Background(), s.request("studio-win"))
	s.Require().NoError(err)
}

func (s *AuthorizerSuite) TestSignFailureIsUpstreamAndNotAudited() {
	s.signer.EXPECT().PresignGet(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).
		Return("", errors.New("s3: connection reset")).Times(1)

	_, err := s.authorizer.Authorize(context.Background(), s.request("documentation"))
	s.True(dErrors.Is(err, dErrors.CodeUpstream))
	s.NotContains(dErrors.MessageOf(err), "docs/")
	s.Zero(s.auditCount())
	s.Equal(1.0, s.outcome(models.ReasonUpstreamFailure))
}

func (s *AuthorizerSuite) TestSignIsBoundedByTimeout() {
	a, err := NewAuthorizer(s.limiter, s.issuer, s.guard, s.resolver, s.signer, s.auditLog,
		WithClock(s.clock),
		WithSignTimeout(10*time.Millisecond),
	)
	s.Require().NoError(err)

	s.signer.EXPECT().PresignGet(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).
		DoAndReturn(func(ctx context.Context, _ string, _ time.Duration, _ string) (string, error) {
			<-ctx.Done()
			return "", ctx.Err()
		})

	_, err = a.Authorize(context.Background(), s.request("documentation"))
	s.True(dErrors.Is(err, dErrors.CodeUpstream))
	s.ErrorIs(err, context.DeadlineExceeded)
}

func (s *AuthorizerSuite) TestAuditFailureIsNonFatal() {
	failing := &failingAuditStore{}
	auditLog, err := audit.NewLog(failing, audit.WithMetrics(s.metrics))
	s.Require().NoError(err)
	s.authorizer = s.newAuthorizer(s.limiter, auditLog)

	s.signer.EXPECT().PresignGet(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).Return("https://blob.test/x", nil)

	perm, err := s.authorizer.Authorize(context.Background(), s.request("documentation"))
	s.Require().NoError(err)
	s.Equal("https://blob.test/x", perm.URL)
	s.Equal(1, failing.calls)
	s.Equal(1.0, testutil.ToFloat64(s.metrics.AuditWriteFailures))
}

func (s *AuthorizerSuite) TestMalformedRequest() {
	for name, mutate := range map[string]func(*models.DownloadRequest){
		"missing file id":    func(r *models.DownloadRequest) { r.FileID = "" },
		"missing client id":  func(r *models.DownloadRequest) { r.ClientID = " " },
		"missing timestamp":  func(r *models.DownloadRequest) { r.Timestamp = time.Time{} },
		"missing request id": func(r *models.DownloadRequest) { r.RequestID = "" },
	} {
		s.Run(name, func() {
			req := s.request("documentation")
			mutate(req)
			_, err := s.authorizer.Authorize(context.Background(), req)
			s.True(dErrors.Is(err, dErrors.CodeBadRequest))
		})
	}

	_, err := s.authorizer.Authorize(context.Background(), nil)
	s.True(dErrors.Is(err, dErrors.CodeBadRequest))
}

func (s *AuthorizerSuite) TestMalformedRequestDoesNotSpendRateLimit() {
	for range 5 {
		req := s.request("documentation")
		req.ClientID = ""
		_, err := s.authorizer.Authorize(context.Background(), req)
		s.True(dErrors.Is(err, dErrors.CodeBadRequest))
	}

	s.signer.EXPECT().PresignGet(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).Return("https://blob.test/x", nil)
	_, err := s.authorizer.Authorize(context.Background(), s.request("documentation"))
	s.Require().NoError(err)
}

func (s *AuthorizerSuite) TestNewRequiresCollaborators() {
	_, err := NewAuthorizer(nil, nil, s.guard, s.resolver, s.signer, s.auditLog)
	s.Error(err)
	_, err = NewAuthorizer(nil, s.issuer, s.guard, s.resolver, nil, s.auditLog)
	s.Error(err)

	a, err := NewAuthorizer(nil, s.issuer, s.guard, s.resolver, s.signer, s.auditLog, WithURLTTL(2*time.Minute))
	s.Require().NoError(err)
	s.Equal(2*time.Minute, a.URLTTL())
}
