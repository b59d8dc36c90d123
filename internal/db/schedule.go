package db

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/nshi/gtfs-rt/internal/schedule"
	"github.com/nshi/gtfs-rt/internal/serviceday"
)

// TripCalendar returns the calendar of the trip's service overlapping [notBefore, notAfter).
func (t *Tx) TripCalendar(ctx context.Context, tripID string, notBefore, notAfter int64) (*schedule.Calendar, error) {
	var cal schedule.Calendar
	var weekdays int
	err := t.queryRow(ctx, `
		SELECT c.service_id, c.weekdays, c.start_usec, c.end_usec
		FROM trips t
		JOIN calendars c ON c.service_id = t.service_id
		WHERE t.trip_id = ? AND c.end_usec >= ? AND c.start_usec < ?
		ORDER BY c.start_usec
		LIMIT 1
	`, tripID, notBefore, notAfter).Scan(&cal.ServiceID, &weekdays, &cal.Start, &cal.End)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query calendar: %w", err)
	}
	cal.Weekdays = serviceday.WeekdayMask(weekdays)
	return &cal, nil
}

// CalendarExceptions returns exception dates of one kind in [notBefore, notAfter), ascending.
func (t *Tx) CalendarExceptions(ctx context.Context, tripID string, kind schedule.ExceptionKind, notBefore, notAfter int64) ([]int64, error) {
	rows, err := t.query(ctx, `
		SELECT cd.date_usec
		FROM trips t
		JOIN calendar_dates cd ON cd.service_id = t.service_id
		WHERE t.trip_id = ? AND cd.exception_type = ? AND cd.date_usec >= ? AND cd.date_usec < ?
		ORDER BY cd.date_usec
	`, tripID, int(kind), notBefore, notAfter)
	if err != nil {
		return nil, fmt.Errorf("failed to query calendar dates: %w", err)
	}
	defer rows.Close()

	var days []int64
	for rows.Next() {
		var day int64
		if err := rows.Scan(&day); err != nil {
			return nil, fmt.Errorf("failed to scan calendar date: %w", err)
		}
		days = append(days, day)
	}
	return days, rows.Err()
}

// StopTimesWithDelays joins the trip's stop times with the delays reported at asOf.
func (t *Tx) StopTimesWithDelays(ctx context.Context, tripID string, start, asOf int64) ([]schedule.StopDelay, error) {
	rows, err := t.query(ctx, `
		SELECT st.stop_sequence, st.stop_id, st.arrival_usec, st.departure_usec, stu.delay_usec
		FROM stop_times st
		LEFT JOIN stop_time_updates stu
			ON stu.trip_id = st.trip_id
			AND stu.stop_sequence = st.stop_sequence
			AND stu.start_usec = ?
			AND stu.ts = ?
		WHERE st.trip_id = ?
		ORDER BY st.stop_sequence, stu.delay_usec, st.arrival_usec, st.departure_usec
	`, start, asOf, tripID)
	if err != nil {
		return nil, fmt.Errorf("failed to query stop time updates: %w", err)
	}
	defer rows.Close()

	var out []schedule.StopDelay
	for rows.Next() {
		row := schedule.StopDelay{StopTime: schedule.StopTime{TripID: tripID}}
		var delay sql.NullInt64
		if err := rows.Scan(&row.StopSequence, &row.StopID, &row.Arrival, &row.Departure, &delay); err != nil {
			return nil, fmt.Errorf("failed to scan stop time update: %w", err)
		}
		if delay.Valid {
			d := delay.Int64
			row.Delay = &d
		}
		out = append(out, row)
	}
	return out, rows.Err()
}

// DeleteEffectiveStopTimes removes every effective stop time of one trip instance.
func (t *Tx) DeleteEffectiveStopTimes(ctx context.Context, tripID string, start int64) error {
	_, err := t.exec(ctx, "DELETE FROM effective_stop_times WHERE trip_id = ? AND start_usec = ?", tripID, start)
	return err
}

// InsertEffectiveStopTime stores one effective stop time.
func (t *Tx) InsertEffectiveStopTime(ctx context.Context, est schedule.EffectiveStopTime) error {
	_, err := t.exec(ctx, `
		INSERT INTO effective_stop_times (trip_id, start_date, start_usec, stop_sequence, arrival_usec, departure_usec, ts)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, est.TripID, est.StartDate, est.Start, est.StopSequence, est.Arrival, est.Departure, est.Timestamp)
	return err
}

// StopTimes returns the trip's static stop times ordered by stop sequence.
func (t *Tx) StopTimes(ctx context.Context, tripID string) ([]schedule.StopTime, error) {
	rows, err := t.query(ctx, `
		SELECT stop_sequence, stop_id, arrival_usec, departure_usec
		FROM stop_times
		WHERE trip_id = ?
		ORDER BY stop_sequence
	`, tripID)
	if err != nil {
		return nil, fmt.Errorf("failed to query stop times: %w", err)
	}
	defer rows.Close()

	var out []schedule.StopTime
	for rows.Next() {
		st := schedule.StopTime{TripID: tripID}
		if err := rows.Scan(&st.StopSequence, &st.StopID, &st.Arrival, &st.Departure); err != nil {
			return nil, fmt.Errorf("failed to scan stop time: %w", err)
		}
		out = append(out, st)
	}
	return out, rows.Err()
}

// EffectiveStopTimes returns the effective stop times of one trip instance.
func (t *Tx) EffectiveStopTimes(ctx context.Context, tripID string, start int64) ([]schedule.EffectiveStopTime, error) {
	rows, err := t.query(ctx, `
		SELECT start_date, stop_sequence, arrival_usec, departure_usec, ts
		FROM effective_stop_times
		WHERE trip_id = ? AND start_usec = ?
		ORDER BY stop_sequence
	`, tripID, start)
	if err != nil {
		return nil, fmt.Errorf("failed to query effective stop times: %w", err)
	}
	defer rows.Close()

	var out []schedule.EffectiveStopTime
	for rows.Next() {
		est := schedule.EffectiveStopTime{TripID: tripID, Start: start}
		if err := rows.Scan(&est.StartDate, &est.StopSequence, &est.Arrival, &est.Departure, &est.Timestamp); err != nil {
			return nil, fmt.Errorf("failed to scan effective stop time: %w", err)
		}
		out = append(out, est)
	}
	return out, rows.Err()
}

// EffectiveArrivals joins one stop time with the effective arrivals of the trip's instances.
func (t *Tx) EffectiveArrivals(ctx context.Context, tripID string, stopSequence int, earliest, tooLateToStart int64) ([]schedule.ArrivalRow, error) {
	rows, err := t.query(ctx, `
		SELECT st.stop_sequence, st.arrival_usec, est.arrival_usec, est.start_usec
		FROM stop_times st
		LEFT JOIN effective_stop_times est
			ON est.trip_id = st.trip_id
			AND est.stop_sequence = st.stop_sequence
			AND est.start_usec < ?
			AND (est.arrival_usec >= ? OR est.start_usec + st.arrival_usec >= ?)
		WHERE st.trip_id = ? AND st.stop_sequence = ?
		ORDER BY est.arrival_usec, est.start_usec, st.arrival_usec, st.stop_sequence
	`, tooLateToStart, earliest, earliest, tripID, stopSequence)
	if err != nil {
		return nil, fmt.Errorf("failed to query effective arrivals: %w", err)
	}
	defer rows.Close()

	var out []schedule.ArrivalRow
	for rows.Next() {
		var row schedule.ArrivalRow
		var arrival, start sql.NullInt64
		if err := rows.Scan(&row.StopSequence, &row.Scheduled, &arrival, &start); err != nil {
			return nil, fmt.Errorf("failed to scan effective arrival: %w", err)
		}
		if arrival.Valid && start.Valid {
			row.Updated = true
			row.Arrival = arrival.Int64
			row.Start = start.Int64
		}
		out = append(out, row)
	}
	return out, rows.Err()
}
