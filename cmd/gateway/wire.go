package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"downloadgate/internal/audit"
	auditkafka "downloadgate/internal/audit/store/kafka"
	auditmemory "downloadgate/internal/audit/store/memory"
	auditpostgres "downloadgate/internal/audit/store/postgres"
	"downloadgate/internal/blob"
	blobmemory "downloadgate/internal/blob/memory"
	"downloadgate/internal/blob/s3store"
	"downloadgate/internal/catalog"
	downloadservice "downloadgate/internal/download/service"
	"downloadgate/internal/freshness"
	replaystore "downloadgate/internal/freshness/store"
	licenseservice "downloadgate/internal/license/service"
	licensestore "downloadgate/internal/license/store"
	"downloadgate/internal/platform/config"
	"downloadgate/internal/platform/database"
	"downloadgate/internal/platform/metrics"
	"downloadgate/internal/platform/redis"
	rlmetrics "downloadgate/internal/ratelimit/metrics"
	rlmiddleware "downloadgate/internal/ratelimit/middleware"
	rlmodels "downloadgate/internal/ratelimit/models"
	rlservice "downloadgate/internal/ratelimit/service"
	"downloadgate/internal/ratelimit/store/bucket"
	sessionservice "downloadgate/internal/session/service"
	sessionstore "downloadgate/internal/session/store"
	httptransport "downloadgate/internal/transport/http"
)

const (
	kafkaPartitions        = 3
	kafkaReplicationFactor = 1
)

type licenseStore interface {
	licenseservice.Store
	Ping(ctx context.Context) error
}

// app holds the wired services and the resources to release on exit.
type app struct {
	validator  *licenseservice.Validator
	issuer     *sessionservice.Issuer
	resolver   *catalog.Resolver
	authorizer *downloadservice.Authorizer
	checksums  *downloadservice.Checksums
	rateLimit  *rlmiddleware.Middleware
	blobServer httptransport.BlobServer
	health     httptransport.HealthFunc
	sweepers   []func(ctx context.Context, interval time.Duration) error
	closers    []func()
}

func (a *app) close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
}

func build(ctx context.Context, cfg *config.Config, log *slog.Logger, m *metrics.Metrics, rlm *rlmetrics.Metrics) (_ *app, err error) {
	a := &app{}
	defer func() {
		if err != nil {
			a.close()
		}
	}()

	licenses, err := openLicenseStore(ctx, a, cfg.License, log)
	if err != nil {
		return nil, err
	}

	var rdb *redis.Client
	if cfg.RateLimit.Backend == "redis" || cfg.Freshness.Backend == "redis" {
		rdb, err = redis.New(ctx, cfg.Redis)
		if err != nil {
			return nil, fmt.Errorf("connect redis: %w", err)
		}
		a.closers = append(a.closers, func() { _ = rdb.Close() })
	}

	a.health = func(ctx context.Context) error {
		if err := licenses.Ping(ctx); err != nil {
			return fmt.Errorf("license store: %w", err)
		}
		if rdb != nil {
			if err := rdb.Health(ctx); err != nil {
				return fmt.Errorf("redis: %w", err)
			}
		}
		return nil
	}

	a.validator, err = licenseservice.New(licenses,
		licenseservice.WithTimeout(cfg.License.Timeout),
		licenseservice.WithLogger(log),
		licenseservice.WithMetrics(m),
	)
	if err != nil {
		return nil, err
	}

	a.issuer, err = sessionservice.New(sessionstore.New(),
		sessionservice.WithTTL(cfg.Session.TTL),
		sessionservice.WithLogger(log),
		sessionservice.WithMetrics(m),
	)
	if err != nil {
		return nil, err
	}

	var buckets rlservice.BucketStore
	if cfg.RateLimit.Backend == "redis" {
		buckets = bucket.NewRedis(rdb.Client)
	} else {
		mem := bucket.NewInMemoryBucketStore()
		buckets = mem
		a.sweepers = append(a.sweepers, mem.Run)
	}
	limiter, err := rlservice.New(buckets,
		rlservice.WithLimit(rlmodels.ClassVerification, cfg.RateLimit.VerifyLimit, cfg.RateLimit.VerifyWindow),
		rlservice.WithLimit(rlmodels.ClassDownload, cfg.RateLimit.DownloadLimit, cfg.RateLimit.DownloadWindow),
		rlservice.WithLogger(log),
		rlservice.WithMetrics(rlm),
	)
	if err != nil {
		return nil, err
	}
	a.rateLimit = rlmiddleware.New(limiter, log, rlmiddleware.WithDisabled(cfg.RateLimit.Disabled))

	var replays freshness.ReplayStore
	if cfg.Freshness.Backend == "redis" {
		replays = replaystore.NewRedis(rdb.Client)
	} else {
		mem := replaystore.NewInMemory()
		replays = mem
		a.sweepers = append(a.sweepers, mem.Run)
	}
	guard, err := freshness.New(replays,
		freshness.WithSkew(cfg.Freshness.SkewWindow),
		freshness.WithLogger(log),
	)
	if err != nil {
		return nil, err
	}

	blobs, err := openBlobStore(ctx, a, cfg.Blob, log)
	if err != nil {
		return nil, err
	}

	manifest, err := catalog.LoadManifest(cfg.Catalog.ManifestPath)
	if err != nil {
		return nil, err
	}
	a.resolver, err = catalog.NewResolver(manifest, blobs,
		catalog.WithLogger(log),
		catalog.WithMetrics(m),
		catalog.WithRefreshTimeout(cfg.Catalog.RefreshTimeout),
	)
	if err != nil {
		return nil, err
	}
	if err := a.resolver.Refresh(ctx); err != nil {
		// The refresh loop retries; until then every file resolves as NotFound.
		log.Error("initial catalog refresh failed", "error", err)
	}

	sink, err := openAuditSink(ctx, a, cfg.Audit, log)
	if err != nil {
		return nil, err
	}
	auditLog, err := audit.NewLog(sink,
		audit.WithTimeout(cfg.Audit.Timeout),
		audit.WithLogger(log),
		audit.WithMetrics(m),
	)
	if err != nil {
		return nil, err
	}

	var downloadLimiter downloadservice.RateLimiter
	if !cfg.RateLimit.Disabled {
		downloadLimiter = limiter
	}
	a.authorizer, err = downloadservice.NewAuthorizer(downloadLimiter, a.issuer, guard, a.resolver, blobs, auditLog,
		downloadservice.WithURLTTL(cfg.Download.URLTTL),
		downloadservice.WithSignTimeout(cfg.Download.SignTimeout),
		downloadservice.WithLogger(log),
		downloadservice.WithMetrics(m),
	)
	if err != nil {
		return nil, err
	}
	a.checksums, err = downloadservice.NewChecksums(a.issuer, a.resolver, log)
	if err != nil {
		return nil, err
	}
	return a, nil
}

func openLicenseStore(ctx context.Context, a *app, cfg config.LicenseConfig, log *slog.Logger) (licenseStore, error) {
	if cfg.Driver == "memory" {
		log.Warn("license store is in memory; no license will validate until one is created")
		return licensestore.NewInMemoryStore(), nil
	}
	db, err := database.Open(ctx, cfg.Driver, cfg.DSN)
	if err != nil {
		return nil, err
	}
	a.closers = append(a.closers, func() { _ = db.Close() })
	if cfg.Migrate {
		if err := database.Migrate(db, cfg.Driver, log); err != nil {
			return nil, err
		}
	}
	return licensestore.NewSQLStore(db, cfg.Driver), nil
}

func openBlobStore(ctx context.Context, a *app, cfg config.BlobConfig, log *slog.Logger) (blob.Store, error) {
	if cfg.Backend != "memory" {
		store, err := s3store.NewFromConfig(ctx, s3store.Config{
			Bucket:       cfg.Bucket,
			Region:       cfg.Region,
			Endpoint:     cfg.Endpoint,
			UsePathStyle: cfg.UsePathStyle,
		})
		if err != nil {
			return nil, err
		}
		log.Info("blob store ready", "backend", "s3", "bucket", cfg.Bucket, "region", cfg.Region)
		return store, nil
	}

	store, err := blobmemory.New(cfg.SigningSecret, cfg.BaseURL)
	if err != nil {
		return nil, err
	}
	if cfg.Dir != "" {
		n, err := store.LoadDir(cfg.Dir)
		if err != nil {
			return nil, fmt.Errorf("load blob dir: %w", err)
		}
		log.Info("blob store ready", "backend", "memory", "dir", cfg.Dir, "objects", n)
	}
	a.blobServer = store
	return store, nil
}

func openAuditSink(ctx context.Context, a *app, cfg config.AuditConfig, log *slog.Logger) (audit.Store, error) {
	switch cfg.Sink {
	case "postgres":
		db, err := database.Open(ctx, database.DriverPostgres, cfg.PostgresDSN)
		if err != nil {
			return nil, fmt.Errorf("audit database: %w", err)
		}
		err = database.Migrate(db, database.DriverPostgres, log)
		_ = db.Close()
		if err != nil {
			return nil, fmt.Errorf("audit migrations: %w", err)
		}
		pool, err := auditpostgres.Connect(ctx, cfg.PostgresDSN)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, pool.Close)
		return auditpostgres.New(pool), nil

	case "kafka":
		client, err := auditkafka.NewClient(cfg.KafkaBrokers, cfg.KafkaTopic)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, client.Close)
		if err := auditkafka.EnsureTopic(ctx, client, cfg.KafkaTopic, kafkaPartitions, kafkaReplicationFactor); err != nil {
			log.Warn("could not ensure audit topic", "topic", cfg.KafkaTopic, "error", err)
		}
		return auditkafka.New(client, cfg.KafkaTopic)

	case "memory":
		log.Warn("audit records are kept in memory only")
		return auditmemory.NewInMemoryStore(), nil
	}
	return nil, errors.New("unknown audit sink " + cfg.Sink)
}
