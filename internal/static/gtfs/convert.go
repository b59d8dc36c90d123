package gtfs

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/nshi/gtfs-rt/internal/db"
	"github.com/nshi/gtfs-rt/internal/schedule"
	"github.com/nshi/gtfs-rt/internal/serviceday"
)

// Reference converts the feed into storage rows, resolving dates against clock. Stop times
// without any time and calendar dates with an unknown exception type are skipped.
func (f *Feed) Reference(clock *serviceday.Clock, logger *zap.Logger) (*db.Reference, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	ref := &db.Reference{
		Stops:         make([]db.Stop, 0, len(f.Stops)),
		Trips:         make([]db.Trip, 0, len(f.Trips)),
		Calendars:     make([]db.Calendar, 0, len(f.Calendars)),
		CalendarDates: make([]db.CalendarDate, 0, len(f.CalendarDates)),
		StopTimes:     make([]schedule.StopTime, 0, len(f.StopTimes)),
	}

	for _, s := range f.Stops {
		ref.Stops = append(ref.Stops, db.Stop{StopID: s.StopID, Name: s.StopName, Lat: s.StopLat, Lon: s.StopLon})
	}
	for _, t := range f.Trips {
		ref.Trips = append(ref.Trips, db.Trip{TripID: t.TripID, RouteID: t.RouteID, ServiceID: t.ServiceID, Headsign: t.TripHeadsign})
	}

	for _, c := range f.Calendars {
		start, err := clock.DateToServiceDayStart(c.StartDate)
		if err != nil {
			return nil, fmt.Errorf("calendar %s: %w", c.ServiceID, err)
		}
		end, err := clock.DateToServiceDayStart(c.EndDate)
		if err != nil {
			return nil, fmt.Errorf("calendar %s: %w", c.ServiceID, err)
		}
		days := [7]bool{c.Monday == 1, c.Tuesday == 1, c.Wednesday == 1, c.Thursday == 1, c.Friday == 1, c.Saturday == 1, c.Sunday == 1}
		ref.Calendars = append(ref.Calendars, db.Calendar{
			ServiceID: c.ServiceID,
			Weekdays:  serviceday.MaskFromDays(days),
			StartDate: c.StartDate,
			EndDate:   c.EndDate,
			Start:     start,
			End:       end,
		})
	}

	var skippedDates int
	for _, cd := range f.CalendarDates {
		kind := schedule.ExceptionKind(cd.ExceptionType)
		if kind != schedule.Added && kind != schedule.Removed {
			skippedDates++
			continue
		}
		d, err := clock.DateToServiceDayStart(cd.Date)
		if err != nil {
			return nil, fmt.Errorf("calendar date for %s: %w", cd.ServiceID, err)
		}
		ref.CalendarDates = append(ref.CalendarDates, db.CalendarDate{ServiceID: cd.ServiceID, Date: cd.Date, Day: d, Kind: kind})
	}

	var skippedTimes int
	for _, st := range f.StopTimes {
		arrivalText, departureText := st.ArrivalTime, st.DepartureTime
		if arrivalText == "" {
			arrivalText = departureText
		}
		if departureText == "" {
			departureText = arrivalText
		}
		if arrivalText == "" {
			skippedTimes++
			continue
		}
		arrival, err := serviceday.ParseOffset(arrivalText)
		if err != nil {
			return nil, fmt.Errorf("stop time %s/%d: %w", st.TripID, st.StopSequence, err)
		}
		departure, err := serviceday.ParseOffset(departureText)
		if err != nil {
			return nil, fmt.Errorf("stop time %s/%d: %w", st.TripID, st.StopSequence, err)
		}
		ref.StopTimes = append(ref.StopTimes, schedule.StopTime{
			TripID:       st.TripID,
			StopSequence: st.StopSequence,
			StopID:       st.StopID,
			Arrival:      arrival,
			Departure:    departure,
		})
	}

	if skippedDates > 0 || skippedTimes > 0 {
		logger.Warn("skipped unusable GTFS rows",
			zap.Int("calendar_dates", skippedDates),
			zap.Int("stop_times", skippedTimes),
		)
	}
	return ref, nil
}
