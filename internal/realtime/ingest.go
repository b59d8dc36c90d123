package realtime

import (
	"context"
	"errors"
	"fmt"
	"time"

	gtfs "github.com/MobilityData/gtfs-realtime-bindings/golang/gtfs"
	"go.uber.org/zap"

	"github.com/nshi/gtfs-rt/internal/db"
	"github.com/nshi/gtfs-rt/internal/publisher"
	"github.com/nshi/gtfs-rt/internal/schedule"
	"github.com/nshi/gtfs-rt/internal/serviceday"
)

var (
	// ErrStaleReport is returned for a report not newer than the latest one recorded.
	ErrStaleReport = errors.New("report is not newer than the latest recorded")
	// ErrUnknownTrip is returned for a report about a trip missing from the static schedule.
	ErrUnknownTrip = errors.New("unknown trip")
	// ErrUnknownStop marks a stop update whose stop is not served by the trip.
	ErrUnknownStop = errors.New("unknown stop")
)

// Report kinds passed to the Recorder.
const (
	KindTripUpdate      = "trip_update"
	KindVehiclePosition = "vehicle_position"
)

// Recorder receives ingestion outcomes.
type Recorder interface {
	ReportApplied(kind string)
	ReportRejected(kind, reason string)
}

// Publisher announces the effective schedule of a trip instance after it changes.
type Publisher interface {
	PublishSchedule(ctx context.Context, msg publisher.ScheduleMessage) error
}

// TripResult summarizes one applied trip update.
type TripResult struct {
	StopsApplied  int
	StopsSkipped  int
	EffectiveRows int
}

// FeedResult summarizes one applied feed.
type FeedResult struct {
	SnapshotID       string
	TripUpdates      int
	VehiclePositions int
	Rejected         int
	StopsSkipped     int
}

// Ingestor validates real-time reports, stores them and re-projects the affected trip instance
// inside one write transaction.
type Ingestor struct {
	db        *db.DB
	clock     *serviceday.Clock
	logger    *zap.Logger
	history   time.Duration
	publisher Publisher
	recorder  Recorder
	now       func() time.Time
}

type Option func(*Ingestor)

// WithPublisher publishes every re-projected schedule.
func WithPublisher(p Publisher) Option {
	return func(i *Ingestor) { i.publisher = p }
}

func WithRecorder(r Recorder) Option {
	return func(i *Ingestor) { i.recorder = r }
}

// WithHistory sets how long reports of a trip are kept when a newer one arrives.
func WithHistory(d time.Duration) Option {
	return func(i *Ingestor) { i.history = d }
}

func withNow(now func() time.Time) Option {
	return func(i *Ingestor) { i.now = now }
}

func NewIngestor(database *db.DB, clock *serviceday.Clock, logger *zap.Logger, opts ...Option) *Ingestor {
	if logger == nil {
		logger = zap.NewNop()
	}
	i := &Ingestor{
		db:      database,
		clock:   clock,
		logger:  logger,
		history: db.DefaultRetention,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(i)
	}
	return i
}

// ApplyTripUpdate stores r and refreshes the effective stop times of its trip instance.
func (i *Ingestor) ApplyTripUpdate(ctx context.Context, r TripReport, snapshotID string) (TripResult, error) {
	var result TripResult
	start, err := i.clock.DateToServiceDayStart(r.StartDate)
	if err != nil {
		i.reject(KindTripUpdate, "invalid_date")
		return result, err
	}

	var effective []schedule.EffectiveStopTime
	err = i.db.Update(ctx, func(tx *db.Tx) error {
		cutoff := i.now().Add(-i.history).UnixMicro()
		if _, err := tx.DeleteTripHistory(ctx, r.TripID, cutoff); err != nil {
			return err
		}

		seen, err := tx.HasTripUpdateSince(ctx, r.TripID, start, r.Timestamp)
		if err != nil {
			return err
		}
		if seen {
			return ErrStaleReport
		}

		exists, err := tx.TripExists(ctx, r.TripID)
		if err != nil {
			return err
		}
		if !exists {
			return ErrUnknownTrip
		}

		stops, err := tx.StopSequences(ctx, r.TripID)
		if err != nil {
			return err
		}
		byStopID := make(map[string]int, len(stops))
		for seq, stopID := range stops {
			byStopID[stopID] = seq
		}

		err = tx.InsertTripUpdate(ctx, db.TripUpdate{
			TripID:               r.TripID,
			StartDate:            r.StartDate,
			Start:                start,
			Timestamp:            r.Timestamp,
			ScheduleRelationship: r.ScheduleRelationship,
			SnapshotID:           snapshotID,
		})
		if err != nil {
			return err
		}

		var observations []db.DelayObservation
		for _, stop := range r.Stops {
			seq, err := resolveSequence(stop, stops, byStopID)
			if err != nil {
				i.logger.Debug("skipping stop update",
					zap.String("trip_id", r.TripID),
					zap.Int("stop_sequence", stop.StopSequence),
					zap.String("stop_id", stop.StopID),
					zap.Error(err),
				)
				result.StopsSkipped++
				continue
			}
			if err := tx.InsertStopTimeUpdate(ctx, r.TripID, start, r.Timestamp, seq, stop.Delay); err != nil {
				return err
			}
			observations = append(observations, db.DelayObservation{
				TripID:       r.TripID,
				StopSequence: seq,
				DelaySeconds: int(stop.Delay / microsPerSecond),
			})
			result.StopsApplied++
		}

		if err := tx.UpdateStopDelayStats(ctx, observations, r.Timestamp); err != nil {
			return err
		}

		projector := schedule.NewProjector(tx, i.clock, i.logger.Named("projector"))
		written, err := projector.Project(ctx, r.TripID, r.StartDate, r.Timestamp)
		if err != nil {
			return err
		}
		result.EffectiveRows = written

		if i.publisher != nil {
			effective, err = tx.EffectiveStopTimes(ctx, r.TripID, start)
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		i.reject(KindTripUpdate, reason(err))
		return result, fmt.Errorf("trip %s on %s: %w", r.TripID, r.StartDate, err)
	}
	i.applied(KindTripUpdate)

	if i.publisher != nil {
		if err := i.publisher.PublishSchedule(ctx, i.scheduleMessage(r, effective)); err != nil {
			i.logger.Warn("failed to publish schedule", zap.String("trip_id", r.TripID), zap.Error(err))
		}
	}
	return result, nil
}

func resolveSequence(stop StopReport, stops map[int]string, byStopID map[string]int) (int, error) {
	if stop.StopSequence >= 0 {
		stopID, ok := stops[stop.StopSequence]
		if !ok || (stop.StopID != "" && stop.StopID != stopID) {
			return 0, ErrUnknownStop
		}
		return stop.StopSequence, nil
	}
	if seq, ok := byStopID[stop.StopID]; ok && stop.StopID != "" {
		return seq, nil
	}
	return 0, ErrUnknownStop
}

func (i *Ingestor) scheduleMessage(r TripReport, rows []schedule.EffectiveStopTime) publisher.ScheduleMessage {
	msg := publisher.ScheduleMessage{
		TripID:    r.TripID,
		StartDate: r.StartDate,
		Timestamp: i.clock.Time(r.Timestamp),
	}
	for _, row := range rows {
		msg.Stops = append(msg.Stops, publisher.StopMessage{
			StopSequence: row.StopSequence,
			Arrival:      i.clock.Time(row.Arrival),
			Departure:    i.clock.Time(row.Departure),
		})
	}
	return msg
}

// ApplyVehiclePosition stores p unless a newer position of the vehicle is already recorded or
// p names a trip that is not in the reference data.
func (i *Ingestor) ApplyVehiclePosition(ctx context.Context, p PositionReport, snapshotID string) error {
	row := db.VehiclePosition{
		VehicleID:           p.VehicleID,
		Timestamp:           p.Timestamp,
		CurrentStopSequence: p.CurrentStopSequence,
		Latitude:            p.Latitude,
		Longitude:           p.Longitude,
		SnapshotID:          snapshotID,
	}
	if p.TripID != "" {
		row.TripID = &p.TripID
		row.StartDate = &p.StartDate
	}
	if p.StopID != "" {
		row.StopID = &p.StopID
	}

	err := i.db.Update(ctx, func(tx *db.Tx) error {
		cutoff := i.now().Add(-i.history).UnixMicro()
		if _, err := tx.DeleteVehicleHistory(ctx, p.VehicleID, cutoff); err != nil {
			return err
		}

		seen, err := tx.HasVehiclePositionSince(ctx, p.VehicleID, p.Timestamp)
		if err != nil {
			return err
		}
		if seen {
			return ErrStaleReport
		}

		if p.TripID != "" {
			exists, err := tx.TripExists(ctx, p.TripID)
			if err != nil {
				return err
			}
			if !exists {
				return ErrUnknownTrip
			}
		}
		return tx.InsertVehiclePosition(ctx, row)
	})
	if err != nil {
		i.reject(KindVehiclePosition, reason(err))
		return fmt.Errorf("vehicle %s: %w", p.VehicleID, err)
	}
	i.applied(KindVehiclePosition)
	return nil
}

// ApplyFeed records a snapshot and applies every report of feed. Rejected reports are counted
// and logged; storage failures abort the run.
func (i *Ingestor) ApplyFeed(ctx context.Context, feed *gtfs.FeedMessage, source string) (FeedResult, error) {
	var result FeedResult
	receivedAt := i.now()
	trips, positions := Extract(feed, i.clock, receivedAt)

	err := i.db.Update(ctx, func(tx *db.Tx) error {
		id, err := tx.CreateSnapshot(ctx, source, receivedAt, len(feed.GetEntity()))
		result.SnapshotID = id
		return err
	})
	if err != nil {
		return result, err
	}

	for _, r := range trips {
		tr, err := i.ApplyTripUpdate(ctx, r, result.SnapshotID)
		if err != nil {
			if !isRejection(err) {
				return result, err
			}
			i.logger.Debug("trip update rejected", zap.String("trip_id", r.TripID), zap.Error(err))
			result.Rejected++
			continue
		}
		result.TripUpdates++
		result.StopsSkipped += tr.StopsSkipped
	}

	for _, p := range positions {
		if err := i.ApplyVehiclePosition(ctx, p, result.SnapshotID); err != nil {
			if !isRejection(err) {
				return result, err
			}
			result.Rejected++
			continue
		}
		result.VehiclePositions++
	}

	i.logger.Info("feed applied",
		zap.String("source", source),
		zap.String("snapshot_id", result.SnapshotID),
		zap.Int("trip_updates", result.TripUpdates),
		zap.Int("vehicle_positions", result.VehiclePositions),
		zap.Int("rejected", result.Rejected),
		zap.Int("stops_skipped", result.StopsSkipped),
	)
	return result, nil
}

func isRejection(err error) bool {
	return errors.Is(err, ErrStaleReport) || errors.Is(err, ErrUnknownTrip) || errors.Is(err, serviceday.ErrDateParse)
}

func reason(err error) string {
	switch {
	case errors.Is(err, ErrStaleReport):
		return "stale"
	case errors.Is(err, ErrUnknownTrip):
		return "unknown_trip"
	case errors.Is(err, serviceday.ErrDateParse):
		return "invalid_date"
	default:
		return "error"
	}
}

func (i *Ingestor) applied(kind string) {
	if i.recorder != nil {
		i.recorder.ReportApplied(kind)
	}
}

func (i *Ingestor) reject(kind, why string) {
	if i.recorder != nil {
		i.recorder.ReportRejected(kind, why)
	}
}
