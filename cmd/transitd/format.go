package main

import (
	"fmt"
	"io"
	"net/url"
	"strings"
	"time"

	"github.com/fatih/color"

	"github.com/nshi/gtfs-rt/internal/db"
	"github.com/nshi/gtfs-rt/internal/realtime"
	"github.com/nshi/gtfs-rt/internal/schedule"
	"github.com/nshi/gtfs-rt/internal/serviceday"
)

var (
	tripColor    = color.New(color.FgCyan)
	valueColor   = color.New(color.FgMagenta)
	onTimeColor  = color.New(color.FgGreen)
	delayedColor = color.New(color.FgRed)
)

const instantLayout = "2006-01-02 15:04:05 MST"

func isURL(target string) bool {
	u, err := url.Parse(target)
	return err == nil && (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}

func formatInstant(clock *serviceday.Clock, instant int64) string {
	return clock.Time(instant).Format(instantLayout)
}

func formatArrival(clock *serviceday.Clock, a *schedule.Arrival) string {
	status := onTimeColor.Sprint("on time")
	if a.Updated {
		status = delayedColor.Sprint("updated")
	}
	return fmt.Sprintf("Trip %s (service date %s) arrives at stop %s at %s [%s]",
		tripColor.Sprint(a.TripID),
		a.StartDate,
		valueColor.Sprint(a.StopSequence),
		valueColor.Sprint(formatInstant(clock, a.Instant)),
		status,
	)
}

func formatDelay(delay int64) string {
	if delay == 0 {
		return onTimeColor.Sprint("on time")
	}
	d := time.Duration(delay) * time.Microsecond
	if d > 0 {
		return delayedColor.Sprintf("+%s", d)
	}
	return onTimeColor.Sprintf("-%s", -d)
}

func printSchedule(w io.Writer, clock *serviceday.Clock, tripID, startDate string, stops []schedule.ScheduledStop) {
	fmt.Fprintf(w, "Trip %s on %s, %d stops:\n", tripColor.Sprint(tripID), startDate, len(stops))
	for _, s := range stops {
		fmt.Fprintf(w, "  %3d  %-12s arr %s  dep %s  %s\n",
			s.StopSequence,
			s.StopID,
			clock.Time(s.Arrival).Format("15:04:05"),
			clock.Time(s.Departure).Format("15:04:05"),
			formatDelay(s.Delay),
		)
	}
}

func printServiceDates(w io.Writer, clock *serviceday.Clock, tripID string, dates []string) {
	fmt.Fprintf(w, "Trip %s runs on %d dates:\n", tripColor.Sprint(tripID), len(dates))
	for _, d := range dates {
		weekday := ""
		if start, err := clock.DateToServiceDayStart(d); err == nil {
			weekday = serviceday.WeekdayName(clock.WeekdayOf(start))
		}
		fmt.Fprintf(w, "  %s %s\n", d, valueColor.Sprint(weekday))
	}
}

func printDelays(w io.Writer, tripID string, stats []db.StopDelayStat) {
	if len(stats) == 0 {
		fmt.Fprintf(w, "No delays observed for trip %s\n", tripColor.Sprint(tripID))
		return
	}
	fmt.Fprintf(w, "Delays of trip %s:\n", tripColor.Sprint(tripID))
	for _, s := range stats {
		name := s.StopName
		if name == "" {
			name = s.StopID
		}
		fmt.Fprintf(w, "  %3d  %-24s mean %7.1fs  sd %7.1fs  max %5ds  (%d reports)\n",
			s.StopSequence, name, s.MeanSeconds, s.StdDevSeconds, s.MaxSeconds, s.Observations)
	}
}

func printImportStats(w io.Writer, stats db.ImportStats, elapsed time.Duration) {
	fmt.Fprintf(w, "Imported %s stops, %s trips, %s calendars, %s calendar dates and %s stop times in %s\n",
		valueColor.Sprint(stats.Stops),
		valueColor.Sprint(stats.Trips),
		valueColor.Sprint(stats.Calendars),
		valueColor.Sprint(stats.CalendarDates),
		valueColor.Sprint(stats.StopTimes),
		elapsed.Round(time.Millisecond),
	)
}

func printFeedResult(w io.Writer, r realtime.FeedResult) {
	var b strings.Builder
	fmt.Fprintf(&b, "Applied %s trip updates and %s vehicle positions",
		valueColor.Sprint(r.TripUpdates), valueColor.Sprint(r.VehiclePositions))
	if r.Rejected > 0 {
		fmt.Fprintf(&b, ", rejected %s", delayedColor.Sprint(r.Rejected))
	}
	if r.StopsSkipped > 0 {
		fmt.Fprintf(&b, ", skipped %d unknown stops", r.StopsSkipped)
	}
	fmt.Fprintln(w, b.String())
}
