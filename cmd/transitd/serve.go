package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/urfave/cli/v2"
	"go.uber.org/zap"

	"github.com/nshi/gtfs-rt/internal/api"
	"github.com/nshi/gtfs-rt/internal/metrics"
	"github.com/nshi/gtfs-rt/internal/publisher"
	"github.com/nshi/gtfs-rt/internal/realtime"
	"github.com/nshi/gtfs-rt/internal/static"
)

func serveCommand() *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "serve the HTTP API, poll the trip update feed and expire old reports",
		Action: func(c *cli.Context) error {
			e, err := setup(c)
			if err != nil {
				return err
			}
			defer e.close()
			return serve(e)
		},
	}
}

func serve(e *env) error {
	log := e.logger
	cfg := e.cfg
	log.Info("starting transitd",
		zap.String("listen_addr", cfg.ListenAddr),
		zap.String("timezone", cfg.Timezone),
		zap.Duration("poll_interval", cfg.PollInterval),
		zap.Duration("retention", cfg.Retention),
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	collector := metrics.NewCollector()
	opts := []realtime.Option{
		realtime.WithRecorder(collector),
		realtime.WithHistory(cfg.Retention),
	}

	// ═══════════════════════════════════════════════════════
	// PHASE 1: Publisher (optional)
	// ═══════════════════════════════════════════════════════
	if cfg.NATSURL != "" {
		pub, err := publisher.NewNATSPublisher(cfg.NATSURL, cfg.NATSSubjectPrefix, log.Named("nats"), collector)
		if err != nil {
			log.Warn("NATS unavailable, schedules will not be published", zap.Error(err))
		} else {
			defer pub.Close()
			opts = append(opts, realtime.WithPublisher(pub))
		}
	}

	ingestor := realtime.NewIngestor(e.db, e.clock, log.Named("ingest"), opts...)
	importer := static.NewImporter(e.db, e.clock, log.Named("static"))

	// ═══════════════════════════════════════════════════════
	// PHASE 2: Static schedule (startup)
	// ═══════════════════════════════════════════════════════
	if cfg.StaticGTFSURL != "" {
		if _, err := importer.RefreshIfStale(ctx, cfg.StaticGTFSURL, cfg.CacheDir, cfg.StaticRefreshInterval); err != nil {
			log.Warn("static schedule refresh failed, using stored schedule", zap.Error(err))
		}
	}

	// ═══════════════════════════════════════════════════════
	// PHASE 3: Background jobs
	// ═══════════════════════════════════════════════════════
	jobs := cron.New()
	if cfg.TripUpdatesURL != "" {
		poller := realtime.NewPoller(ingestor, cfg.TripUpdatesURL, log.Named("poller"))
		pollOnce := func() {
			if _, err := poller.Poll(ctx); err != nil {
				log.Error("poll failed", zap.Error(err))
			}
		}
		pollOnce()
		if _, err := jobs.AddFunc(every(cfg.PollInterval), pollOnce); err != nil {
			return fmt.Errorf("failed to schedule polling: %w", err)
		}
	}
	_, err := jobs.AddFunc(every(cfg.CleanupInterval), func() {
		deleted, err := e.db.Cleanup(ctx, time.Now(), cfg.Retention)
		if err != nil {
			log.Error("cleanup failed", zap.Error(err))
			return
		}
		collector.CleanupCompleted(deleted)
	})
	if err != nil {
		return fmt.Errorf("failed to schedule cleanup: %w", err)
	}
	if cfg.StaticGTFSURL != "" {
		_, err := jobs.AddFunc("@daily", func() {
			if _, err := importer.RefreshIfStale(ctx, cfg.StaticGTFSURL, cfg.CacheDir, cfg.StaticRefreshInterval); err != nil {
				log.Error("static schedule refresh failed", zap.Error(err))
			}
		})
		if err != nil {
			return fmt.Errorf("failed to schedule static refresh: %w", err)
		}
	}
	jobs.Start()
	defer func() { <-jobs.Stop().Done() }()

	// ═══════════════════════════════════════════════════════
	// PHASE 4: HTTP API
	// ═══════════════════════════════════════════════════════
	handler := api.NewHandler(e.service(collector), e.db, ingestor, e.db, log.Named("api"))
	srv := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           api.NewRouter(handler, collector.Handler(), cfg.CORSOrigins),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("API server listening", zap.String("addr", cfg.ListenAddr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	// ═══════════════════════════════════════════════════════
	// PHASE 5: Graceful Shutdown
	// ═══════════════════════════════════════════════════════
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	select {
	case s := <-sig:
		log.Info("shutting down", zap.String("signal", s.String()))
	case err := <-errCh:
		return fmt.Errorf("server failed: %w", err)
	}

	cancel()
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	return srv.Shutdown(shutdownCtx)
}

func every(d time.Duration) string {
	return "@every " + d.String()
}
