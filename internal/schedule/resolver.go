package schedule

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/nshi/gtfs-rt/internal/serviceday"
)

// Resolver finds the next arrival of a trip at one of its stops.
type Resolver struct {
	store      ArrivalStore
	enumerator *Enumerator
	clock      *serviceday.Clock
	logger     *zap.Logger
}

func NewResolver(store ArrivalStore, clock *serviceday.Clock, logger *zap.Logger) *Resolver {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Resolver{
		store:      store,
		enumerator: NewEnumerator(store, clock, logger),
		clock:      clock,
		logger:     logger,
	}
}

// FindNextArrival returns the earliest arrival at stopSequence in [earliest, latest], or nil.
//
// An instance that has effective stop times is only ever offered at its updated arrival. Its
// on-time arrival would be a phantom, so its start date is excluded from the calendar search.
func (r *Resolver) FindNextArrival(ctx context.Context, tripID string, stopSequence int, earliest, latest int64) (*Arrival, error) {
	earliest = max(earliest, serviceday.MinInstant)
	latest = min(latest, serviceday.MaxInstant)
	if latest < earliest {
		return nil, nil
	}

	rows, err := r.store.EffectiveArrivals(ctx, tripID, stopSequence, earliest, latest+1)
	if err != nil {
		return nil, fmt.Errorf("failed to read effective arrivals: %w", err)
	}
	if len(rows) == 0 {
		return nil, nil
	}

	scheduled := rows[0].Scheduled
	notBefore := earliest - scheduled
	// an on-time instance starting at or after this arrives after latest
	windowEnd := latest - scheduled + 1
	tooLateToStart := windowEnd

	forbidden := make(map[int64]struct{})
	var best *Arrival
	for _, row := range rows {
		if !row.Updated {
			continue
		}
		forbidden[row.Start] = struct{}{}
		if best != nil || row.Arrival < earliest || row.Arrival > latest {
			continue
		}
		best = r.arrival(tripID, stopSequence, row.Arrival, row.Start, true)
		if slot := row.Arrival - scheduled; slot < tooLateToStart {
			tooLateToStart = slot
		}
	}

	start, ok, err := r.enumerator.NextServiceDate(ctx, tripID, notBefore, tooLateToStart, forbidden)
	if err != nil {
		return nil, err
	}
	if ok {
		return r.arrival(tripID, stopSequence, start+scheduled, start, false), nil
	}
	if best == nil {
		return nil, nil
	}

	inService, err := r.enumerator.InService(ctx, tripID, min(notBefore, best.Start), max(windowEnd, best.Start+1))
	if err != nil {
		return nil, err
	}
	if !inService {
		r.logger.Warn("effective stop times for a trip without service",
			zap.String("trip_id", tripID),
			zap.String("start_date", best.StartDate),
			zap.Int("stop_sequence", stopSequence),
		)
		return nil, nil
	}
	return best, nil
}

func (r *Resolver) arrival(tripID string, stopSequence int, instant, start int64, updated bool) *Arrival {
	return &Arrival{
		TripID:       tripID,
		StopSequence: stopSequence,
		Instant:      instant,
		Start:        start,
		StartDate:    r.clock.ServiceDayStart(start),
		Updated:      updated,
	}
}
