package main

import (
	"context"
	"fmt"

	"github.com/urfave/cli/v2"
	"go.uber.org/zap"

	"github.com/nshi/gtfs-rt/internal/config"
	"github.com/nshi/gtfs-rt/internal/db"
	"github.com/nshi/gtfs-rt/internal/schedule"
	"github.com/nshi/gtfs-rt/internal/serviceday"
)

// env bundles the dependencies every command needs.
type env struct {
	cfg    *config.Config
	logger *zap.Logger
	clock  *serviceday.Clock
	db     *db.DB
}

func setup(c *cli.Context) (*env, error) {
	cfg, err := config.Load(c.String("env-file"))
	if err != nil {
		return nil, err
	}

	logger, err := newLogger(cfg.LogDevelopment)
	if err != nil {
		return nil, fmt.Errorf("failed to build logger: %w", err)
	}

	clock, err := serviceday.Load(cfg.Timezone)
	if err != nil {
		return nil, err
	}

	database, err := db.Connect(db.Options{
		Driver: cfg.DBDriver,
		DSN:    cfg.DatabasePath,
		Logger: logger.Named("db"),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	if err := database.EnsureSchema(context.Background()); err != nil {
		database.Close()
		return nil, fmt.Errorf("failed to ensure database schema: %w", err)
	}

	return &env{cfg: cfg, logger: logger, clock: clock, db: database}, nil
}

func (e *env) close() {
	e.db.Close()
	e.logger.Sync()
}

func (e *env) service(recorder schedule.Recorder) *schedule.Service {
	return schedule.NewService(e.db, e.clock, e.logger.Named("schedule"), recorder)
}

func newLogger(development bool) (*zap.Logger, error) {
	if development {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}
