package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"downloadgate/internal/platform/config"
	"downloadgate/internal/platform/httpserver"
	"downloadgate/internal/platform/logger"
	"downloadgate/internal/platform/metrics"
	rlmetrics "downloadgate/internal/ratelimit/metrics"
	httptransport "downloadgate/internal/transport/http"
)

const sweepInterval = time.Minute

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "downloadgate: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	log := logger.New(cfg.Logging)
	slog.SetDefault(log)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	app, err := build(ctx, cfg, log, metrics.New(reg), rlmetrics.New(reg))
	if err != nil {
		return err
	}
	defer app.close()

	handler, err := httptransport.NewHandler(app.validator, app.issuer, app.resolver, app.authorizer, app.checksums, app.rateLimit, log)
	if err != nil {
		return err
	}
	router := httptransport.NewRouter(handler, httptransport.RouterOptions{
		TrustProxy:     cfg.Server.TrustProxy,
		RequestTimeout: cfg.Server.RequestTimeout,
		CORSOrigins:    cfg.Server.CORSOrigins,
		Metrics:        promhttp.HandlerFor(reg, promhttp.HandlerOpts{}),
		Blobs:          app.blobServer,
		Health:         app.health,
	})
	srv := httpserver.New(cfg.Server, router)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("downloadgate listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	g.Go(func() error {
		return app.resolver.Run(gctx, cfg.Catalog.RefreshInterval)
	})
	g.Go(func() error {
		return app.issuer.RunJanitor(gctx, cfg.Session.JanitorInterval)
	})
	for _, loop := range app.sweepers {
		g.Go(func() error {
			return loop(gctx, sweepInterval)
		})
	}

	if err := g.Wait(); err != nil {
		log.Error("downloadgate stopped with error", "error", err)
		return err
	}
	log.Info("downloadgate stopped")
	return nil
}
