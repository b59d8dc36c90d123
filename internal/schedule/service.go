package schedule

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/nshi/gtfs-rt/internal/serviceday"
)

// Outcomes reported to a Recorder.
const (
	OutcomeUpdated = "updated"
	OutcomeOnTime  = "on_time"
	OutcomeNone    = "none"
	OutcomeError   = "error"
)

// Recorder receives timings of completed calls.
type Recorder interface {
	ProjectionCompleted(rows int, elapsed time.Duration)
	ArrivalResolved(outcome string, elapsed time.Duration)
}

type nopRecorder struct{}

func (nopRecorder) ProjectionCompleted(int, time.Duration) {}
func (nopRecorder) ArrivalResolved(string, time.Duration)  {}

// Service runs the schedule components inside storage transactions, one transaction per call.
type Service struct {
	tx       TxRunner
	clock    *serviceday.Clock
	logger   *zap.Logger
	recorder Recorder
}

func NewService(tx TxRunner, clock *serviceday.Clock, logger *zap.Logger, recorder Recorder) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	if recorder == nil {
		recorder = nopRecorder{}
	}
	return &Service{tx: tx, clock: clock, logger: logger, recorder: recorder}
}

// Clock returns the service-day clock the service resolves dates with.
func (s *Service) Clock() *serviceday.Clock {
	return s.clock
}

// Project re-derives the effective stop times of one trip instance.
func (s *Service) Project(ctx context.Context, tripID, startDate string, asOf int64) (int, error) {
	begin := time.Now()
	var written int
	err := s.tx.WriteTx(ctx, func(store Store) error {
		var err error
		written, err = NewProjector(store, s.clock, s.logger.Named("projector")).Project(ctx, tripID, startDate, asOf)
		return err
	})
	if err != nil {
		return 0, err
	}
	s.recorder.ProjectionCompleted(written, time.Since(begin))
	return written, nil
}

// FindNextArrival resolves the next arrival at a stop in [earliest, latest].
func (s *Service) FindNextArrival(ctx context.Context, tripID string, stopSequence int, earliest, latest int64) (*Arrival, error) {
	begin := time.Now()
	var arrival *Arrival
	err := s.tx.ReadTx(ctx, func(store Store) error {
		var err error
		arrival, err = NewResolver(store, s.clock, s.logger.Named("resolver")).FindNextArrival(ctx, tripID, stopSequence, earliest, latest)
		return err
	})

	outcome := OutcomeNone
	switch {
	case err != nil:
		outcome = OutcomeError
	case arrival != nil && arrival.Updated:
		outcome = OutcomeUpdated
	case arrival != nil:
		outcome = OutcomeOnTime
	}
	s.recorder.ArrivalResolved(outcome, time.Since(begin))

	if err != nil {
		return nil, err
	}
	return arrival, nil
}

// Schedule returns the currently effective stop times of one trip instance.
func (s *Service) Schedule(ctx context.Context, tripID, startDate string) ([]ScheduledStop, error) {
	var stops []ScheduledStop
	err := s.tx.ReadTx(ctx, func(store Store) error {
		var err error
		stops, err = NewProjector(store, s.clock, s.logger.Named("projector")).Schedule(ctx, tripID, startDate)
		return err
	})
	return stops, err
}

// ServiceDates lists the service dates of a trip between two yyyyMMdd dates, both inclusive.
func (s *Service) ServiceDates(ctx context.Context, tripID, from, to string) ([]string, error) {
	notBefore, err := s.clock.DateToServiceDayStart(from)
	if err != nil {
		return nil, err
	}
	last, err := s.clock.DateToServiceDayStart(to)
	if err != nil {
		return nil, err
	}

	var days []int64
	err = s.tx.ReadTx(ctx, func(store Store) error {
		var err error
		days, err = NewEnumerator(store, s.clock, s.logger.Named("calendar")).Enumerate(ctx, tripID, notBefore, last+1)
		return err
	})
	if err != nil {
		return nil, err
	}

	dates := make([]string, 0, len(days))
	for _, day := range days {
		dates = append(dates, s.clock.ServiceDayStart(day))
	}
	return dates, nil
}
