package main

import (
	"context"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/mosaicdocs/mosaic/pkg/api"
	"github.com/mosaicdocs/mosaic/pkg/async"
	"github.com/mosaicdocs/mosaic/pkg/config"
	"github.com/mosaicdocs/mosaic/pkg/fga"
	"github.com/mosaicdocs/mosaic/pkg/observability"
	"github.com/mosaicdocs/mosaic/pkg/resources"
	"github.com/mosaicdocs/mosaic/pkg/storage/postgres"
	"github.com/mosaicdocs/mosaic/pkg/syncer"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		observability.NewLogger(observability.ErrorLevel, os.Stderr).
			WithError(err).Error("failed to load configuration")
		os.Exit(1)
	}

	log := observability.NewLogger(cfg.Observability.LogLevel, os.Stdout)
	log.Info("starting mosaic")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Database.
	cm, err := postgres.NewConnectionManager(postgres.ConnectionConfig{
		URL:         cfg.Database.URL,
		MaxConns:    cfg.Database.MaxConns,
		MinConns:    cfg.Database.MinConns,
		Timeout:     cfg.Database.Timeout,
		MaxLifetime: cfg.Database.MaxLifetime,
		MaxIdleTime: cfg.Database.MaxIdleTime,
	}, log)
	if err != nil {
		log.WithError(err).Error("failed to connect to database")
		os.Exit(1)
	}
	defer cm.Close()

	if err := postgres.RunMigrations(ctx, cm.DB(), log); err != nil {
		log.WithError(err).Error("failed to run migrations")
		os.Exit(1)
	}

	// Authorization store.
	authz := fga.NewHTTPClient(fga.Config{
		APIURL:  cfg.Authz.APIURL,
		StoreID: cfg.Authz.StoreID,
		ModelID: cfg.Authz.ModelID,
		Timeout: cfg.Authz.Timeout,
	})

	// HTTP surface.
	store := resources.NewSQLStore(cm.DB())
	server := api.NewServer(store, authz, log)

	var metrics *observability.Metrics
	registry := prometheus.NewRegistry()
	if cfg.Observability.MetricsEnabled {
		metrics = observability.NewMetrics(registry)
		server.SetMetrics(metrics)
	}

	// Permission sync engine.
	engine := syncer.NewEngine(
		authz,
		syncer.NewSQLCache(cm.DB()),
		syncer.NewSQLCheckpoints(cm.DB()),
		log,
		syncer.Options{Interval: cfg.Sync.Interval, Workers: cfg.Sync.Workers},
	)
	if metrics != nil {
		engine.SetMetrics(metrics)
	}
	syncDone := async.Go(ctx, engine.Run)

	mux := http.NewServeMux()
	mux.Handle("/", server)
	if cfg.Observability.MetricsEnabled {
		mux.Handle("/metrics", observability.MetricsHandler(registry))
	}

	httpServer := &http.Server{
		Addr:         net.JoinHostPort(cfg.Server.Host, cfg.Server.Port),
		Handler:      mux,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	serverErr := make(chan error, 1)
	go func() {
		log.WithField("addr", httpServer.Addr).Info("http server listening")
		serverErr <- httpServer.ListenAndServe()
	}()

	if metrics != nil {
		go reportDBStats(ctx, cm, metrics)
	}

	select {
	case <-ctx.Done():
		log.Info("shutdown signal received")
	case err := <-serverErr:
		log.WithError(err).Error("http server failed")
		stop()
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Warn("http server shutdown incomplete")
	}

	select {
	case <-syncDone:
	case <-shutdownCtx.Done():
		log.Warn("sync engine did not stop in time")
	}

	log.Info("mosaic stopped")
}

// reportDBStats mirrors pool statistics into gauges.
func reportDBStats(ctx context.Context, cm *postgres.ConnectionManager, metrics *observability.Metrics) {
	ticker := time.NewTicker(15 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			stats := cm.Stats()
			metrics.DBConnectionsActive.Set(float64(stats.InUse))
			metrics.DBConnectionsIdle.Set(float64(stats.Idle))
		case <-ctx.Done():
			return
		}
	}
}
