package schedule

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/nshi/gtfs-rt/internal/serviceday"
)

// Enumerator lists the service start dates of a trip from its weekly calendar and
// its calendar_dates exceptions. All windows are half-open: [notBefore, notAfter).
type Enumerator struct {
	store  CalendarStore
	clock  *serviceday.Clock
	logger *zap.Logger
}

func NewEnumerator(store CalendarStore, clock *serviceday.Clock, logger *zap.Logger) *Enumerator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Enumerator{store: store, clock: clock, logger: logger}
}

// NextServiceDate returns the start of the earliest service day of the trip in the window that
// is not in forbidden. An Added exception wins over any later weekly-pattern date.
func (e *Enumerator) NextServiceDate(ctx context.Context, tripID string, notBefore, notAfter int64, forbidden map[int64]struct{}) (int64, bool, error) {
	if notBefore >= notAfter {
		return 0, false, nil
	}

	cal, err := e.store.TripCalendar(ctx, tripID, notBefore, notAfter)
	if err != nil {
		return 0, false, fmt.Errorf("failed to read calendar for trip %s: %w", tripID, err)
	}
	added, err := e.store.CalendarExceptions(ctx, tripID, Added, notBefore, notAfter)
	if err != nil {
		return 0, false, fmt.Errorf("failed to read added dates for trip %s: %w", tripID, err)
	}

	firstAdded, hasAdded := firstNotIn(added, forbidden)
	if cal == nil && !hasAdded {
		return 0, false, nil
	}

	limit := notAfter
	if hasAdded {
		limit = firstAdded
	}

	if cal != nil && cal.Start < limit {
		removed, err := e.DroppedDates(ctx, tripID, notBefore, limit)
		if err != nil {
			return 0, false, err
		}
		// End is the start of the last service day, so the day itself is still in range.
		if cal.End+1 < limit {
			limit = cal.End + 1
		}
		for day := max(cal.Start, e.clock.FirstServiceDayAtOrAfter(notBefore)); day < limit; day = e.clock.NextServiceDay(day) {
			if !cal.Weekdays.Has(e.clock.WeekdayOf(day)) {
				continue
			}
			if _, ok := removed[day]; ok {
				continue
			}
			if _, ok := forbidden[day]; ok {
				continue
			}
			return day, true, nil
		}
	}

	if hasAdded {
		return firstAdded, true, nil
	}
	return 0, false, nil
}

// DroppedDates returns the Removed exception dates of the trip in the window.
func (e *Enumerator) DroppedDates(ctx context.Context, tripID string, notBefore, notAfter int64) (map[int64]struct{}, error) {
	removed, err := e.store.CalendarExceptions(ctx, tripID, Removed, notBefore, notAfter)
	if err != nil {
		return nil, fmt.Errorf("failed to read removed dates for trip %s: %w", tripID, err)
	}
	dropped := make(map[int64]struct{}, len(removed))
	for _, day := range removed {
		dropped[day] = struct{}{}
	}
	return dropped, nil
}

// InService reports whether the trip has a calendar row or an Added date in the window.
func (e *Enumerator) InService(ctx context.Context, tripID string, notBefore, notAfter int64) (bool, error) {
	if notBefore >= notAfter {
		return false, nil
	}
	cal, err := e.store.TripCalendar(ctx, tripID, notBefore, notAfter)
	if err != nil {
		return false, fmt.Errorf("failed to read calendar for trip %s: %w", tripID, err)
	}
	if cal != nil {
		return true, nil
	}
	added, err := e.store.CalendarExceptions(ctx, tripID, Added, notBefore, notAfter)
	if err != nil {
		return false, fmt.Errorf("failed to read added dates for trip %s: %w", tripID, err)
	}
	return len(added) > 0, nil
}

// Enumerate returns every service day start of the trip in the window, in order.
func (e *Enumerator) Enumerate(ctx context.Context, tripID string, notBefore, notAfter int64) ([]int64, error) {
	var days []int64
	for {
		day, ok, err := e.NextServiceDate(ctx, tripID, notBefore, notAfter, nil)
		if err != nil {
			return nil, err
		}
		if !ok {
			return days, nil
		}
		days = append(days, day)
		notBefore = day + 1
	}
}

func firstNotIn(days []int64, skip map[int64]struct{}) (int64, bool) {
	for _, day := range days {
		if _, ok := skip[day]; !ok {
			return day, true
		}
	}
	return 0, false
}
