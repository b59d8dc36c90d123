package schedule

import "github.com/nshi/gtfs-rt/internal/serviceday"

// ExceptionKind follows the GTFS calendar_dates exception_type values.
type ExceptionKind int

const (
	Added   ExceptionKind = 1
	Removed ExceptionKind = 2
)

func (k ExceptionKind) String() string {
	switch k {
	case Added:
		return "added"
	case Removed:
		return "removed"
	default:
		return "unknown"
	}
}

// Calendar is a weekly service pattern. Start and End are inclusive service-day starts.
type Calendar struct {
	ServiceID string
	Weekdays  serviceday.WeekdayMask
	Start     int64
	End       int64
}

// StopTime is a static stop time. Arrival and Departure are offsets from the service-day start.
type StopTime struct {
	TripID       string
	StopSequence int
	StopID       string
	Arrival      int64
	Departure    int64
}

// StopDelay is a static stop time paired with the delay reported for it, if any.
type StopDelay struct {
	StopTime
	Delay *int64
}

// EffectiveStopTime is a delay-adjusted stop time of one trip instance.
// Arrival and Departure are absolute instants.
type EffectiveStopTime struct {
	TripID       string
	StartDate    string
	Start        int64
	StopSequence int
	Arrival      int64
	Departure    int64
	Timestamp    int64
}

// ArrivalRow is one row of a stop time joined with the effective arrivals of its trip instances.
// Updated is false for the single row returned when no effective arrival matched.
type ArrivalRow struct {
	StopSequence int
	Scheduled    int64
	Updated      bool
	Arrival      int64
	Start        int64
}

// Arrival is a resolved arrival at a stop.
type Arrival struct {
	TripID       string
	StopSequence int
	Instant      int64
	Start        int64
	StartDate    string
	Updated      bool
}

// ScheduledStop is one stop of the currently effective schedule of a trip instance.
type ScheduledStop struct {
	StopSequence int
	StopID       string
	Arrival      int64
	Departure    int64
	Delay        int64
	Updated      bool
}
