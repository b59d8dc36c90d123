package db

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
)

// DefaultRetention is how long real-time reports and their derived rows are kept.
const DefaultRetention = 30 * 24 * time.Hour

// Cleanup deletes real-time data older than the retention window and returns the row count.
func (db *DB) Cleanup(ctx context.Context, now time.Time, retention time.Duration) (int64, error) {
	if retention < time.Hour {
		retention = time.Hour
	}
	cutoff := now.Add(-retention).UnixMicro()

	queries := []struct {
		name  string
		query string
	}{
		{"stop_time_updates", "DELETE FROM stop_time_updates WHERE ts < ?"},
		{"trip_updates", "DELETE FROM trip_updates WHERE ts < ?"},
		{"effective_stop_times", "DELETE FROM effective_stop_times WHERE ts < ?"},
		{"vehicle_positions", "DELETE FROM vehicle_positions WHERE ts < ?"},
		{"snapshots", "DELETE FROM rt_snapshots WHERE polled_at_usec < ?"},
	}

	var total int64
	err := db.Update(ctx, func(tx *Tx) error {
		for _, q := range queries {
			result, err := tx.exec(ctx, q.query, cutoff)
			if err != nil {
				return fmt.Errorf("failed to cleanup %s: %w", q.name, err)
			}
			rows, _ := result.RowsAffected()
			total += rows
		}
		return nil
	})
	if err != nil {
		return 0, err
	}

	if total > 0 {
		db.logger.Info("cleanup deleted expired records",
			zap.Int64("deleted", total),
			zap.Duration("retention", retention),
		)
	}
	return total, nil
}
