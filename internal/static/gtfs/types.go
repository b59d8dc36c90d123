package gtfs

// Feed holds the static GTFS tables the schedule engine needs.
type Feed struct {
	Agencies      []*Agency
	Stops         []*Stop
	Trips         []*Trip
	StopTimes     []*StopTime
	Calendars     []*Calendar
	CalendarDates []*CalendarDate
}

// Agency represents a row of agency.txt
type Agency struct {
	AgencyID string `csv:"agency_id"`
	Name     string `csv:"agency_name"`
	Timezone string `csv:"agency_timezone"`
}

// Stop represents a row of stops.txt
type Stop struct {
	StopID   string  `csv:"stop_id"`
	StopCode string  `csv:"stop_code"`
	StopName string  `csv:"stop_name"`
	StopLat  float64 `csv:"stop_lat"`
	StopLon  float64 `csv:"stop_lon"`
}

// Trip represents a row of trips.txt
type Trip struct {
	RouteID      string `csv:"route_id"`
	ServiceID    string `csv:"service_id"`
	TripID       string `csv:"trip_id"`
	TripHeadsign string `csv:"trip_headsign"`
}

// StopTime represents a row of stop_times.txt. Times are GTFS "HH:MM:SS" offsets from the
// service day start and may exceed 24:00:00.
type StopTime struct {
	TripID        string `csv:"trip_id"`
	ArrivalTime   string `csv:"arrival_time"`
	DepartureTime string `csv:"departure_time"`
	StopID        string `csv:"stop_id"`
	StopSequence  int    `csv:"stop_sequence"`
}

// Calendar represents a row of calendar.txt
type Calendar struct {
	ServiceID string `csv:"service_id"`
	Monday    int    `csv:"monday"`
	Tuesday   int    `csv:"tuesday"`
	Wednesday int    `csv:"wednesday"`
	Thursday  int    `csv:"thursday"`
	Friday    int    `csv:"friday"`
	Saturday  int    `csv:"saturday"`
	Sunday    int    `csv:"sunday"`
	StartDate string `csv:"start_date"`
	EndDate   string `csv:"end_date"`
}

// CalendarDate represents a row of calendar_dates.txt
type CalendarDate struct {
	ServiceID     string `csv:"service_id"`
	Date          string `csv:"date"`
	ExceptionType int    `csv:"exception_type"`
}

// Timezone returns the first agency timezone, or "" when agency.txt is absent.
func (f *Feed) Timezone() string {
	for _, a := range f.Agencies {
		if a.Timezone != "" {
			return a.Timezone
		}
	}
	return ""
}
