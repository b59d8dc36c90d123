package serviceday

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
	_ "time/tzdata"
)

// DateLayout is the GTFS service date format (yyyyMMdd).
const DateLayout = "20060102"

// DefaultTimezone is used when no reference zone is configured.
const DefaultTimezone = "America/New_York"

const (
	// noonOffset moves a service-day start to local noon, where no DST transition happens.
	noonOffset = 12 * time.Hour
	// formatOffset lands a day start (23:00, 00:00 or 01:00 local) safely inside the same date.
	formatOffset = 11*time.Hour + 30*time.Minute
	// dayAdvance always lands inside the next day's noon-safe zone, even across a DST jump.
	dayAdvance = 35 * time.Hour
)

// Instants outside [MinInstant, MaxInstant] (years 1 through 9999) are not representable as
// service dates.
const (
	MinInstant int64 = -62135596800000000
	MaxInstant int64 = 253402300799999999
)

// ErrDateParse is matched by every ParseError.
var ErrDateParse = errors.New("invalid service date")

// ParseError reports a date string that is not a valid yyyyMMdd calendar date.
type ParseError struct {
	Date string
	Err  error
}

func (e *ParseError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("invalid service date %q", e.Date)
	}
	return fmt.Sprintf("invalid service date %q: %v", e.Date, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

func (e *ParseError) Is(target error) bool { return target == ErrDateParse }

// weekdayIndex maps time.Weekday onto the GTFS calendar column order (Monday=0 ... Sunday=6).
var weekdayIndex = [7]int{
	time.Monday:    0,
	time.Tuesday:   1,
	time.Wednesday: 2,
	time.Thursday:  3,
	time.Friday:    4,
	time.Saturday:  5,
	time.Sunday:    6,
}

// Clock converts between service dates and service-day-start instants in one reference zone.
// Instants are microseconds since the Unix epoch.
//
// A service day starts at local noon minus 12 hours. On DST transition dates that is 23:00 of
// the previous day or 01:00 of the same day, which is why every conversion goes through noon.
type Clock struct {
	loc *time.Location
}

// New returns a Clock for loc. A nil location means UTC.
func New(loc *time.Location) *Clock {
	if loc == nil {
		loc = time.UTC
	}
	return &Clock{loc: loc}
}

// Load returns a Clock for the named IANA time zone.
func Load(name string) (*Clock, error) {
	loc, err := time.LoadLocation(name)
	if err != nil {
		return nil, fmt.Errorf("failed to load time zone %q: %w", name, err)
	}
	return New(loc), nil
}

// Location returns the reference zone.
func (c *Clock) Location() *time.Location {
	return c.loc
}

// DateToServiceDayStart parses a yyyyMMdd date and returns the start of that service day.
func (c *Clock) DateToServiceDayStart(date string) (int64, error) {
	if len(date) != len(DateLayout) {
		return 0, &ParseError{Date: date}
	}
	noon, err := time.ParseInLocation(DateLayout+" 15:04:05", date+" 12:00:00", c.loc)
	if err != nil {
		return 0, &ParseError{Date: date, Err: err}
	}
	return noon.Add(-noonOffset).UnixMicro(), nil
}

// ServiceDayStart formats the service date a day-start instant belongs to.
func (c *Clock) ServiceDayStart(instant int64) string {
	return time.UnixMicro(instant).Add(formatOffset).In(c.loc).Format(DateLayout)
}

// ServiceDayOf returns the start of the service day containing instant: the latest service-day
// start at or before it.
func (c *Clock) ServiceDayOf(instant int64) int64 {
	t := time.UnixMicro(instant).In(c.loc)
	day := c.startOf(t.Year(), t.Month(), t.Day())
	if day > instant {
		// 00:xx on a fall-back date still belongs to the previous service day
		prev := t.AddDate(0, 0, -1)
		return c.startOf(prev.Year(), prev.Month(), prev.Day())
	}
	if next := c.NextServiceDay(day); next <= instant {
		// 23:xx before a spring-forward date is already the next service day
		return next
	}
	return day
}

// ServiceDateOf formats the service date containing an arbitrary instant.
func (c *Clock) ServiceDateOf(instant int64) string {
	return c.ServiceDayStart(c.ServiceDayOf(instant))
}

// WeekdayOf returns the weekday (Monday=0) of the service day starting at instant.
func (c *Clock) WeekdayOf(instant int64) int {
	return weekdayIndex[time.UnixMicro(instant).Add(noonOffset).In(c.loc).Weekday()]
}

// Truncate snaps an instant near a day start back onto that day's exact start.
func (c *Clock) Truncate(instant int64) int64 {
	t := time.UnixMicro(instant).Add(formatOffset).In(c.loc)
	return c.startOf(t.Year(), t.Month(), t.Day())
}

// NextServiceDay returns the start of the service day after the one starting at dayStart.
func (c *Clock) NextServiceDay(dayStart int64) int64 {
	return c.Truncate(dayStart + dayAdvance.Microseconds())
}

// FirstServiceDayAtOrAfter returns the earliest service-day start that is >= instant.
func (c *Clock) FirstServiceDayAtOrAfter(instant int64) int64 {
	t := time.UnixMicro(instant).In(c.loc)
	day := c.startOf(t.Year(), t.Month(), t.Day())
	for day < instant {
		day = c.NextServiceDay(day)
	}
	return day
}

// Time converts an instant to a time.Time in the reference zone.
func (c *Clock) Time(instant int64) time.Time {
	return time.UnixMicro(instant).In(c.loc)
}

func (c *Clock) startOf(year int, month time.Month, day int) int64 {
	return time.Date(year, month, day, 12, 0, 0, 0, c.loc).Add(-noonOffset).UnixMicro()
}

// ParseOffset parses a GTFS time of day ("HH:MM:SS", hours may exceed 23) into microseconds
// since the service-day start.
func ParseOffset(value string) (int64, error) {
	parts := strings.Split(strings.TrimSpace(value), ":")
	if len(parts) != 3 {
		return 0, fmt.Errorf("invalid time of day %q", value)
	}
	var fields [3]int
	for i, p := range parts {
		n, err := strconv.Atoi(p)
		if err != nil || n < 0 {
			return 0, fmt.Errorf("invalid time of day %q", value)
		}
		fields[i] = n
	}
	if fields[1] > 59 || fields[2] > 59 {
		return 0, fmt.Errorf("invalid time of day %q", value)
	}
	d := time.Duration(fields[0])*time.Hour + time.Duration(fields[1])*time.Minute + time.Duration(fields[2])*time.Second
	return d.Microseconds(), nil
}

// FormatOffset renders a service-day offset as "HH:MM:SS".
func FormatOffset(offset int64) string {
	d := time.Duration(offset) * time.Microsecond
	sign := ""
	if d < 0 {
		sign = "-"
		d = -d
	}
	h := int(d / time.Hour)
	m := int(d % time.Hour / time.Minute)
	s := int(d % time.Minute / time.Second)
	return fmt.Sprintf("%s%02d:%02d:%02d", sign, h, m, s)
}
