package schedule

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/nshi/gtfs-rt/internal/serviceday"
)

// Projector materializes the delay-adjusted stop times of one trip instance.
//
// Delays carry forward along the stop sequence until another report overrides them. A reported
// delay of exactly zero resets the trip to schedule. Only delayed stops are stored; a missing row
// means the stop runs on time. Delays are not clamped against the next stop's times, so a large
// correction can leave a stop departing after the next one arrives.
type Projector struct {
	store  ProjectionStore
	clock  *serviceday.Clock
	logger *zap.Logger
}

func NewProjector(store ProjectionStore, clock *serviceday.Clock, logger *zap.Logger) *Projector {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Projector{store: store, clock: clock, logger: logger}
}

// Project replaces the effective stop times of (tripID, startDate) from the reports received at
// asOf and returns the number of rows written.
func (p *Projector) Project(ctx context.Context, tripID, startDate string, asOf int64) (int, error) {
	start, err := p.clock.DateToServiceDayStart(startDate)
	if err != nil {
		return 0, err
	}

	if err := p.store.DeleteEffectiveStopTimes(ctx, tripID, start); err != nil {
		return 0, fmt.Errorf("failed to clear effective stop times: %w", err)
	}

	rows, err := p.store.StopTimesWithDelays(ctx, tripID, start, asOf)
	if err != nil {
		return 0, fmt.Errorf("failed to read stop time updates: %w", err)
	}

	var delay int64
	written := 0
	for _, row := range rows {
		if row.Delay != nil {
			delay = *row.Delay
		}
		if delay == 0 {
			continue
		}
		est := EffectiveStopTime{
			TripID:       tripID,
			StartDate:    startDate,
			Start:        start,
			StopSequence: row.StopSequence,
			Arrival:      start + row.Arrival + delay,
			Departure:    start + row.Departure + delay,
			Timestamp:    asOf,
		}
		if err := p.store.InsertEffectiveStopTime(ctx, est); err != nil {
			return written, fmt.Errorf("failed to insert effective stop time %d: %w", row.StopSequence, err)
		}
		written++
	}

	p.logger.Debug("projected trip instance",
		zap.String("trip_id", tripID),
		zap.String("start_date", startDate),
		zap.Int("stops", len(rows)),
		zap.Int("written", written),
	)
	return written, nil
}

// Schedule returns every stop of the trip instance with its effective times. Stops without an
// effective row are reported at their on-time schedule.
func (p *Projector) Schedule(ctx context.Context, tripID, startDate string) ([]ScheduledStop, error) {
	start, err := p.clock.DateToServiceDayStart(startDate)
	if err != nil {
		return nil, err
	}

	stopTimes, err := p.store.StopTimes(ctx, tripID)
	if err != nil {
		return nil, fmt.Errorf("failed to read stop times: %w", err)
	}
	effective, err := p.store.EffectiveStopTimes(ctx, tripID, start)
	if err != nil {
		return nil, fmt.Errorf("failed to read effective stop times: %w", err)
	}

	bySequence := make(map[int]EffectiveStopTime, len(effective))
	for _, est := range effective {
		bySequence[est.StopSequence] = est
	}

	stops := make([]ScheduledStop, 0, len(stopTimes))
	for _, st := range stopTimes {
		stop := ScheduledStop{
			StopSequence: st.StopSequence,
			StopID:       st.StopID,
			Arrival:      start + st.Arrival,
			Departure:    start + st.Departure,
		}
		if est, ok := bySequence[st.StopSequence]; ok {
			stop.Delay = est.Arrival - stop.Arrival
			stop.Arrival = est.Arrival
			stop.Departure = est.Departure
			stop.Updated = true
		}
		stops = append(stops, stop)
	}
	return stops, nil
}
