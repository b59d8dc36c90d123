package db

import (
	"context"
	"database/sql"
	"fmt"
	"sort"

	"github.com/nshi/gtfs-rt/internal/metrics"
)

// DelayObservation is one reported delay at one stop of a trip.
type DelayObservation struct {
	TripID       string
	StopSequence int
	DelaySeconds int
}

type stopKey struct {
	tripID string
	seq    int
}

// UpdateStopDelayStats folds observations into the per-stop running statistics.
func (t *Tx) UpdateStopDelayStats(ctx context.Context, observations []DelayObservation, now int64) error {
	if len(observations) == 0 {
		return nil
	}

	byStop := make(map[stopKey][]int)
	for _, obs := range observations {
		key := stopKey{obs.TripID, obs.StopSequence}
		byStop[key] = append(byStop[key], obs.DelaySeconds)
	}

	for key, delays := range byStop {
		var stats metrics.DelayStats
		err := t.queryRow(ctx, `
			SELECT observation_count, delay_mean_seconds, delay_m2, max_delay_seconds
			FROM stop_delay_stats
			WHERE trip_id = ? AND stop_sequence = ?
		`, key.tripID, key.seq).Scan(&stats.Count, &stats.Mean, &stats.M2, &stats.Max)
		if err != nil && err != sql.ErrNoRows {
			return fmt.Errorf("failed to read delay stats for %s/%d: %w", key.tripID, key.seq, err)
		}

		for _, d := range delays {
			stats.Observe(d)
		}

		_, err = t.exec(ctx, `
			INSERT INTO stop_delay_stats (trip_id, stop_sequence, observation_count,
				delay_mean_seconds, delay_m2, max_delay_seconds, updated_at_usec)
			VALUES (?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT (trip_id, stop_sequence) DO UPDATE SET
				observation_count = excluded.observation_count,
				delay_mean_seconds = excluded.delay_mean_seconds,
				delay_m2 = excluded.delay_m2,
				max_delay_seconds = excluded.max_delay_seconds,
				updated_at_usec = excluded.updated_at_usec
		`, key.tripID, key.seq, stats.Count, stats.Mean, stats.M2, stats.Max, now)
		if err != nil {
			return fmt.Errorf("failed to upsert delay stats for %s/%d: %w", key.tripID, key.seq, err)
		}
	}
	return nil
}

// StopDelayStat is the delay summary of one stop of a trip.
type StopDelayStat struct {
	StopSequence  int     `json:"stopSequence"`
	StopID        string  `json:"stopId"`
	StopName      string  `json:"stopName"`
	Observations  int     `json:"observations"`
	MeanSeconds   float64 `json:"meanSeconds"`
	StdDevSeconds float64 `json:"stdDevSeconds"`
	MaxSeconds    int     `json:"maxSeconds"`
}

// AverageStopDelays returns the delay statistics of every observed stop of the trip.
func (db *DB) AverageStopDelays(ctx context.Context, tripID string) ([]StopDelayStat, error) {
	var out []StopDelayStat
	err := db.View(ctx, func(tx *Tx) error {
		rows, err := tx.query(ctx, `
			SELECT ds.stop_sequence, COALESCE(st.stop_id, ''), COALESCE(s.stop_name, ''),
				ds.observation_count, ds.delay_mean_seconds, ds.delay_m2, ds.max_delay_seconds
			FROM stop_delay_stats ds
			LEFT JOIN stop_times st ON st.trip_id = ds.trip_id AND st.stop_sequence = ds.stop_sequence
			LEFT JOIN stops s ON s.stop_id = st.stop_id
			WHERE ds.trip_id = ?
		`, tripID)
		if err != nil {
			return fmt.Errorf("failed to query delay stats: %w", err)
		}
		defer rows.Close()

		for rows.Next() {
			var stat StopDelayStat
			var stats metrics.DelayStats
			if err := rows.Scan(&stat.StopSequence, &stat.StopID, &stat.StopName,
				&stats.Count, &stats.Mean, &stats.M2, &stats.Max); err != nil {
				return fmt.Errorf("failed to scan delay stats: %w", err)
			}
			stat.Observations = stats.Count
			stat.MeanSeconds = stats.Mean
			stat.StdDevSeconds = stats.StdDev()
			stat.MaxSeconds = stats.Max
			out = append(out, stat)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, err
	}

	sort.Slice(out, func(i, j int) bool { return out[i].StopSequence < out[j].StopSequence })
	return out, nil
}
