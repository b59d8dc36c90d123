package db

import (
	"context"
	"fmt"

	"github.com/nshi/gtfs-rt/internal/schedule"
	"github.com/nshi/gtfs-rt/internal/serviceday"
)

// Stop is a row of the stops table.
type Stop struct {
	StopID string
	Name   string
	Lat    float64
	Lon    float64
}

// Trip is a row of the trips table.
type Trip struct {
	TripID    string
	RouteID   string
	ServiceID string
	Headsign  string
}

// Calendar is a row of the calendars table.
type Calendar struct {
	ServiceID string
	Weekdays  serviceday.WeekdayMask
	StartDate string
	EndDate   string
	Start     int64
	End       int64
}

// CalendarDate is a row of the calendar_dates table.
type CalendarDate struct {
	ServiceID string
	Date      string
	Day       int64
	Kind      schedule.ExceptionKind
}

// Reference is a complete static schedule ready to be stored.
type Reference struct {
	Stops         []Stop
	Trips         []Trip
	Calendars     []Calendar
	CalendarDates []CalendarDate
	StopTimes     []schedule.StopTime
}

// ImportStats counts the rows written by ImportReference.
type ImportStats struct {
	Stops         int
	Trips         int
	Calendars     int
	CalendarDates int
	StopTimes     int
}

// ImportReference upserts a static schedule in a single transaction.
func (db *DB) ImportReference(ctx context.Context, ref *Reference) (ImportStats, error) {
	var stats ImportStats
	err := db.Update(ctx, func(tx *Tx) error {
		stmt, err := tx.prepare(ctx, `
			INSERT INTO stops (stop_id, stop_name, stop_lat, stop_lon)
			VALUES (?, ?, ?, ?)
			ON CONFLICT (stop_id) DO UPDATE SET
				stop_name = excluded.stop_name,
				stop_lat = excluded.stop_lat,
				stop_lon = excluded.stop_lon
		`)
		if err != nil {
			return fmt.Errorf("failed to prepare stop statement: %w", err)
		}
		defer stmt.Close()
		for _, s := range ref.Stops {
			if _, err := stmt.ExecContext(ctx, s.StopID, s.Name, s.Lat, s.Lon); err != nil {
				return fmt.Errorf("failed to upsert stop %s: %w", s.StopID, err)
			}
			stats.Stops++
		}

		tripStmt, err := tx.prepare(ctx, `
			INSERT INTO trips (trip_id, route_id, service_id, trip_headsign)
			VALUES (?, ?, ?, ?)
			ON CONFLICT (trip_id) DO UPDATE SET
				route_id = excluded.route_id,
				service_id = excluded.service_id,
				trip_headsign = excluded.trip_headsign
		`)
		if err != nil {
			return fmt.Errorf("failed to prepare trip statement: %w", err)
		}
		defer tripStmt.Close()
		for _, t := range ref.Trips {
			if _, err := tripStmt.ExecContext(ctx, t.TripID, t.RouteID, t.ServiceID, t.Headsign); err != nil {
				return fmt.Errorf("failed to upsert trip %s: %w", t.TripID, err)
			}
			stats.Trips++
		}

		calStmt, err := tx.prepare(ctx, `
			INSERT INTO calendars (service_id, weekdays, start_date, end_date, start_usec, end_usec)
			VALUES (?, ?, ?, ?, ?, ?)
			ON CONFLICT (service_id) DO UPDATE SET
				weekdays = excluded.weekdays,
				start_date = excluded.start_date,
				end_date = excluded.end_date,
				start_usec = excluded.start_usec,
				end_usec = excluded.end_usec
		`)
		if err != nil {
			return fmt.Errorf("failed to prepare calendar statement: %w", err)
		}
		defer calStmt.Close()
		for _, c := range ref.Calendars {
			if _, err := calStmt.ExecContext(ctx, c.ServiceID, int(c.Weekdays), c.StartDate, c.EndDate, c.Start, c.End); err != nil {
				return fmt.Errorf("failed to upsert calendar %s: %w", c.ServiceID, err)
			}
			stats.Calendars++
		}

		dateStmt, err := tx.prepare(ctx, `
			INSERT INTO calendar_dates (service_id, date, date_usec, exception_type)
			VALUES (?, ?, ?, ?)
			ON CONFLICT (service_id, date, exception_type) DO UPDATE SET
				date_usec = excluded.date_usec
		`)
		if err != nil {
			return fmt.Errorf("failed to prepare calendar date statement: %w", err)
		}
		defer dateStmt.Close()
		for _, d := range ref.CalendarDates {
			if _, err := dateStmt.ExecContext(ctx, d.ServiceID, d.Date, d.Day, int(d.Kind)); err != nil {
				return fmt.Errorf("failed to upsert calendar date %s/%s: %w", d.ServiceID, d.Date, err)
			}
			stats.CalendarDates++
		}

		stStmt, err := tx.prepare(ctx, `
			INSERT INTO stop_times (trip_id, stop_sequence, stop_id, arrival_usec, departure_usec)
			VALUES (?, ?, ?, ?, ?)
			ON CONFLICT (trip_id, stop_sequence) DO UPDATE SET
				stop_id = excluded.stop_id,
				arrival_usec = excluded.arrival_usec,
				departure_usec = excluded.departure_usec
		`)
		if err != nil {
			return fmt.Errorf("failed to prepare stop time statement: %w", err)
		}
		defer stStmt.Close()
		for _, st := range ref.StopTimes {
			if _, err := stStmt.ExecContext(ctx, st.TripID, st.StopSequence, st.StopID, st.Arrival, st.Departure); err != nil {
				return fmt.Errorf("failed to upsert stop time %s/%d: %w", st.TripID, st.StopSequence, err)
			}
			stats.StopTimes++
		}
		return nil
	})
	if err != nil {
		return ImportStats{}, err
	}

	db.logger.Info("imported static schedule")
	return stats, nil
}

// TripExists reports whether the trip is part of the static schedule.
func (t *Tx) TripExists(ctx context.Context, tripID string) (bool, error) {
	var n int
	if err := t.queryRow(ctx, "SELECT COUNT(*) FROM trips WHERE trip_id = ?", tripID).Scan(&n); err != nil {
		return false, fmt.Errorf("failed to look up trip: %w", err)
	}
	return n > 0, nil
}

// StopSequences returns the stop sequence numbers of the trip, keyed by stop id.
func (t *Tx) StopSequences(ctx context.Context, tripID string) (map[int]string, error) {
	rows, err := t.query(ctx, "SELECT stop_sequence, stop_id FROM stop_times WHERE trip_id = ?", tripID)
	if err != nil {
		return nil, fmt.Errorf("failed to query stop sequences: %w", err)
	}
	defer rows.Close()

	out := make(map[int]string)
	for rows.Next() {
		var seq int
		var stopID string
		if err := rows.Scan(&seq, &stopID); err != nil {
			return nil, fmt.Errorf("failed to scan stop sequence: %w", err)
		}
		out[seq] = stopID
	}
	return out, rows.Err()
}

// Counts summarizes table sizes for health reporting.
type Counts struct {
	Trips              int `json:"trips"`
	StopTimes          int `json:"stopTimes"`
	TripUpdates        int `json:"tripUpdates"`
	EffectiveStopTimes int `json:"effectiveStopTimes"`
}

// Counts returns the current table sizes.
func (db *DB) Counts(ctx context.Context) (Counts, error) {
	var c Counts
	err := db.View(ctx, func(tx *Tx) error {
		targets := []struct {
			table string
			dest  *int
		}{
			{"trips", &c.Trips},
			{"stop_times", &c.StopTimes},
			{"trip_updates", &c.TripUpdates},
			{"effective_stop_times", &c.EffectiveStopTimes},
		}
		for _, target := range targets {
			if err := tx.queryRow(ctx, "SELECT COUNT(*) FROM "+target.table).Scan(target.dest); err != nil {
				return fmt.Errorf("failed to count %s: %w", target.table, err)
			}
		}
		return nil
	})
	return c, err
}
