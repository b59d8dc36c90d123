package schedule

import "context"

// CalendarStore reads service patterns for the trip's service id.
type CalendarStore interface {
	// TripCalendar returns the trip's calendar row overlapping [notBefore, notAfter), or nil.
	TripCalendar(ctx context.Context, tripID string, notBefore, notAfter int64) (*Calendar, error)
	// CalendarExceptions returns exception dates of one kind in [notBefore, notAfter), ascending.
	CalendarExceptions(ctx context.Context, tripID string, kind ExceptionKind, notBefore, notAfter int64) ([]int64, error)
}

// ProjectionStore reads static stop times with their reports and rewrites effective stop times.
type ProjectionStore interface {
	// StopTimesWithDelays returns the trip's stop times ordered by stop sequence, each joined with
	// the delay reported at asOf for the instance starting at start.
	StopTimesWithDelays(ctx context.Context, tripID string, start, asOf int64) ([]StopDelay, error)
	DeleteEffectiveStopTimes(ctx context.Context, tripID string, start int64) error
	InsertEffectiveStopTime(ctx context.Context, est EffectiveStopTime) error
	StopTimes(ctx context.Context, tripID string) ([]StopTime, error)
	EffectiveStopTimes(ctx context.Context, tripID string, start int64) ([]EffectiveStopTime, error)
}

// ArrivalStore reads what the resolver needs.
type ArrivalStore interface {
	CalendarStore
	// EffectiveArrivals joins one stop time with the effective arrivals of the trip instances
	// starting before tooLateToStart whose updated arrival is at or after earliest, or whose
	// on-time arrival would be. Rows are ordered by arrival, start, scheduled arrival, stop
	// sequence. An empty result means the stop is not part of the trip.
	EffectiveArrivals(ctx context.Context, tripID string, stopSequence int, earliest, tooLateToStart int64) ([]ArrivalRow, error)
}

// Store is everything the schedule components read and write.
type Store interface {
	ProjectionStore
	ArrivalStore
}

// TxRunner runs fn against a Store inside one atomic storage transaction.
type TxRunner interface {
	ReadTx(ctx context.Context, fn func(Store) error) error
	WriteTx(ctx context.Context, fn func(Store) error) error
}
