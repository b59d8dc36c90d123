package static

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"

	"github.com/nshi/gtfs-rt/internal/db"
	"github.com/nshi/gtfs-rt/internal/serviceday"
	"github.com/nshi/gtfs-rt/internal/static/gtfs"
)

// Manifest records when the static schedule was last imported.
type Manifest struct {
	GeneratedAt string         `json:"generated_at"`
	Source      string         `json:"source"`
	Stats       db.ImportStats `json:"stats"`
}

// Importer loads static GTFS feeds into the database.
type Importer struct {
	db     *db.DB
	clock  *serviceday.Clock
	logger *zap.Logger
}

func NewImporter(database *db.DB, clock *serviceday.Clock, logger *zap.Logger) *Importer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Importer{db: database, clock: clock, logger: logger}
}

// Import parses the feed at path (zip or directory) and stores it.
func (im *Importer) Import(ctx context.Context, path string) (db.ImportStats, error) {
	feed, err := gtfs.Load(path, im.logger)
	if err != nil {
		return db.ImportStats{}, err
	}
	if tz := feed.Timezone(); tz != "" && tz != im.clock.Location().String() {
		im.logger.Warn("feed timezone differs from the service-day clock",
			zap.String("feed_timezone", tz),
			zap.String("clock_timezone", im.clock.Location().String()),
		)
	}

	ref, err := feed.Reference(im.clock, im.logger)
	if err != nil {
		return db.ImportStats{}, err
	}
	stats, err := im.db.ImportReference(ctx, ref)
	if err != nil {
		return stats, err
	}
	im.logger.Info("imported static schedule",
		zap.String("path", path),
		zap.Int("trips", stats.Trips),
		zap.Int("stop_times", stats.StopTimes),
	)
	return stats, nil
}

// RefreshIfStale downloads and imports url when the manifest in cacheDir is older than maxAge.
func (im *Importer) RefreshIfStale(ctx context.Context, url, cacheDir string, maxAge time.Duration) (bool, error) {
	manifestPath := filepath.Join(cacheDir, "manifest.json")
	if !isStaleOrMissing(manifestPath, maxAge) {
		im.logger.Debug("static schedule is fresh, skipping refresh")
		return false, nil
	}

	if err := os.MkdirAll(cacheDir, 0755); err != nil {
		return false, err
	}

	zipPath := filepath.Join(cacheDir, "gtfs.zip")
	im.logger.Info("refreshing static schedule", zap.String("url", url))
	if err := gtfs.Download(ctx, url, zipPath); err != nil {
		return false, err
	}

	stats, err := im.Import(ctx, zipPath)
	if err != nil {
		return false, err
	}
	return true, writeManifest(manifestPath, Manifest{
		GeneratedAt: time.Now().UTC().Format(time.RFC3339),
		Source:      url,
		Stats:       stats,
	})
}

func writeManifest(path string, m Manifest) error {
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write manifest: %w", err)
	}
	return nil
}

func isStaleOrMissing(manifestPath string, maxAge time.Duration) bool {
	data, err := os.ReadFile(manifestPath)
	if err != nil {
		// File doesn't exist or can't be read
		return true
	}

	var manifest Manifest
	if err := json.Unmarshal(data, &manifest); err != nil {
		return true
	}

	generatedAt, err := time.Parse(time.RFC3339, manifest.GeneratedAt)
	if err != nil {
		return true
	}
	return time.Since(generatedAt) > maxAge
}
