package db

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// TripUpdate is a row of the trip_updates table.
type TripUpdate struct {
	TripID               string
	StartDate            string
	Start                int64
	Timestamp            int64
	ScheduleRelationship string
	SnapshotID           string
}

// VehiclePosition is a row of the vehicle_positions table.
type VehiclePosition struct {
	VehicleID           string
	Timestamp           int64
	TripID              *string
	StartDate           *string
	StopID              *string
	CurrentStopSequence *int
	Latitude            *float64
	Longitude           *float64
	SnapshotID          string
}

// CreateSnapshot records one ingestion run and returns its ID
func (t *Tx) CreateSnapshot(ctx context.Context, source string, polledAt time.Time, entityCount int) (string, error) {
	snapshotID := uuid.New().String()

	_, err := t.exec(ctx,
		"INSERT INTO rt_snapshots (snapshot_id, source, polled_at_usec, entity_count) VALUES (?, ?, ?, ?)",
		snapshotID, source, polledAt.UnixMicro(), entityCount,
	)
	if err != nil {
		return "", fmt.Errorf("failed to create snapshot: %w", err)
	}

	return snapshotID, nil
}

// HasTripUpdateSince reports whether a report at or after ts exists for the trip instance.
func (t *Tx) HasTripUpdateSince(ctx context.Context, tripID string, start, ts int64) (bool, error) {
	var n int
	err := t.queryRow(ctx,
		"SELECT COUNT(*) FROM trip_updates WHERE trip_id = ? AND start_usec = ? AND ts >= ?",
		tripID, start, ts,
	).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("failed to query trip updates: %w", err)
	}
	return n > 0, nil
}

// InsertTripUpdate stores the header of one trip delay report.
func (t *Tx) InsertTripUpdate(ctx context.Context, u TripUpdate) error {
	var snapshotID *string
	if u.SnapshotID != "" {
		snapshotID = &u.SnapshotID
	}
	_, err := t.exec(ctx, `
		INSERT INTO trip_updates (trip_id, start_date, start_usec, ts, schedule_relationship, snapshot_id)
		VALUES (?, ?, ?, ?, ?, ?)
	`, u.TripID, u.StartDate, u.Start, u.Timestamp, u.ScheduleRelationship, snapshotID)
	if err != nil {
		return fmt.Errorf("failed to insert trip update: %w", err)
	}
	return nil
}

// InsertStopTimeUpdate stores the delay reported for one stop of a trip instance.
func (t *Tx) InsertStopTimeUpdate(ctx context.Context, tripID string, start, ts int64, stopSequence int, delay int64) error {
	_, err := t.exec(ctx, `
		INSERT INTO stop_time_updates (trip_id, start_usec, ts, stop_sequence, delay_usec)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (trip_id, start_usec, ts, stop_sequence) DO UPDATE SET
			delay_usec = excluded.delay_usec
	`, tripID, start, ts, stopSequence, delay)
	if err != nil {
		return fmt.Errorf("failed to insert stop time update: %w", err)
	}
	return nil
}

// DeleteTripHistory removes reports and derived rows of the trip older than cutoff.
func (t *Tx) DeleteTripHistory(ctx context.Context, tripID string, cutoff int64) (int64, error) {
	queries := []struct {
		name  string
		query string
	}{
		{"stop_time_updates", "DELETE FROM stop_time_updates WHERE trip_id = ? AND ts < ?"},
		{"trip_updates", "DELETE FROM trip_updates WHERE trip_id = ? AND ts < ?"},
		{"effective_stop_times", "DELETE FROM effective_stop_times WHERE trip_id = ? AND ts < ?"},
	}

	var total int64
	for _, q := range queries {
		result, err := t.exec(ctx, q.query, tripID, cutoff)
		if err != nil {
			return total, fmt.Errorf("failed to delete %s history: %w", q.name, err)
		}
		rows, _ := result.RowsAffected()
		total += rows
	}
	return total, nil
}

// DeleteVehicleHistory removes positions of the vehicle older than cutoff.
func (t *Tx) DeleteVehicleHistory(ctx context.Context, vehicleID string, cutoff int64) (int64, error) {
	result, err := t.exec(ctx, "DELETE FROM vehicle_positions WHERE vehicle_id = ? AND ts < ?", vehicleID, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to delete vehicle_positions history: %w", err)
	}
	rows, _ := result.RowsAffected()
	return rows, nil
}

// HasVehiclePositionSince reports whether a position at or after ts exists for the vehicle.
func (t *Tx) HasVehiclePositionSince(ctx context.Context, vehicleID string, ts int64) (bool, error) {
	var n int
	err := t.queryRow(ctx,
		"SELECT COUNT(*) FROM vehicle_positions WHERE vehicle_id = ? AND ts >= ?",
		vehicleID, ts,
	).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("failed to query vehicle positions: %w", err)
	}
	return n > 0, nil
}

// InsertVehiclePosition stores one vehicle position report.
func (t *Tx) InsertVehiclePosition(ctx context.Context, p VehiclePosition) error {
	var snapshotID *string
	if p.SnapshotID != "" {
		snapshotID = &p.SnapshotID
	}
	_, err := t.exec(ctx, `
		INSERT INTO vehicle_positions (vehicle_id, ts, trip_id, start_date, stop_id, current_stop_sequence, latitude, longitude, snapshot_id)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, p.VehicleID, p.Timestamp, p.TripID, p.StartDate, p.StopID, p.CurrentStopSequence, p.Latitude, p.Longitude, snapshotID)
	if err != nil {
		return fmt.Errorf("failed to insert vehicle position: %w", err)
	}
	return nil
}

// LatestVehiclePosition returns the newest stored position of a vehicle, or nil.
func (db *DB) LatestVehiclePosition(ctx context.Context, vehicleID string) (*VehiclePosition, error) {
	var p *VehiclePosition
	err := db.View(ctx, func(tx *Tx) error {
		rows, err := tx.query(ctx, `
			SELECT vehicle_id, ts, trip_id, start_date, stop_id, current_stop_sequence, latitude, longitude
			FROM vehicle_positions
			WHERE vehicle_id = ?
			ORDER BY ts DESC
			LIMIT 1
		`, vehicleID)
		if err != nil {
			return fmt.Errorf("failed to query vehicle position: %w", err)
		}
		defer rows.Close()
		if !rows.Next() {
			return rows.Err()
		}
		var v VehiclePosition
		if err := rows.Scan(&v.VehicleID, &v.Timestamp, &v.TripID, &v.StartDate, &v.StopID, &v.CurrentStopSequence, &v.Latitude, &v.Longitude); err != nil {
			return fmt.Errorf("failed to scan vehicle position: %w", err)
		}
		p = &v
		return nil
	})
	return p, err
}
