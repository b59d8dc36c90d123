package serviceday

import (
	"errors"
	"testing"
	"time"
)

func newYorkClock(t *testing.T) *Clock {
	t.Helper()
	c, err := Load(DefaultTimezone)
	if err != nil {
		t.Fatalf("Load(%q) error: %v", DefaultTimezone, err)
	}
	return c
}

func TestDateToServiceDayStart(t *testing.T) {
	c := newYorkClock(t)

	tests := []struct {
		name string
		date string
		want time.Time
	}{
		{"winter day starts at local midnight", "20240101", time.Date(2024, 1, 1, 5, 0, 0, 0, time.UTC)},
		{"spring forward starts at 23:00 the day before", "20240310", time.Date(2024, 3, 10, 4, 0, 0, 0, time.UTC)},
		{"summer day starts at local midnight", "20240704", time.Date(2024, 7, 4, 4, 0, 0, 0, time.UTC)},
		{"fall back starts at 01:00 daylight time", "20241103", time.Date(2024, 11, 3, 5, 0, 0, 0, time.UTC)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := c.DateToServiceDayStart(tt.date)
			if err != nil {
				t.Fatalf("DateToServiceDayStart(%q) error: %v", tt.date, err)
			}
			if got != tt.want.UnixMicro() {
				t.Errorf("DateToServiceDayStart(%q) = %v, expected %v", tt.date, time.UnixMicro(got).UTC(), tt.want)
			}
		})
	}
}

func TestServiceDayRoundTrip(t *testing.T) {
	c := newYorkClock(t)

	dates := []string{"20240101", "20240229", "20240309", "20240310", "20240311", "20241102", "20241103", "20241104", "20241231"}
	for _, date := range dates {
		start, err := c.DateToServiceDayStart(date)
		if err != nil {
			t.Fatalf("DateToServiceDayStart(%q) error: %v", date, err)
		}
		if got := c.ServiceDayStart(start); got != date {
			t.Errorf("ServiceDayStart(DateToServiceDayStart(%q)) = %q, expected %q", date, got, date)
		}
		if got := c.Truncate(start); got != start {
			t.Errorf("Truncate(start of %q) moved the instant by %v", date, time.Duration(got-start)*time.Microsecond)
		}
	}
}

func TestNextServiceDayWalksEveryDate(t *testing.T) {
	c := newYorkClock(t)

	start, err := c.DateToServiceDayStart("20240101")
	if err != nil {
		t.Fatal(err)
	}
	want := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < 366; i++ {
		if got := c.ServiceDayStart(start); got != want.Format(DateLayout) {
			t.Fatalf("day %d: ServiceDayStart = %q, expected %q", i, got, want.Format(DateLayout))
		}
		start = c.NextServiceDay(start)
		want = want.AddDate(0, 0, 1)
	}
	if got := c.ServiceDayStart(start); got != "20250101" {
		t.Errorf("after 366 advances got %q, expected 20250101", got)
	}
}

func TestWeekdayOfStableWithinDay(t *testing.T) {
	c := newYorkClock(t)

	tests := []struct {
		date string
		want int
	}{
		{"20240101", 0},
		{"20240103", 2},
		{"20240229", 3},
		{"20240310", 6},
		{"20241103", 6},
		{"20241104", 0},
	}
	shifts := []time.Duration{-10 * time.Hour, -time.Hour, 0, time.Minute, time.Hour, 6 * time.Hour, 10*time.Hour + 59*time.Minute}

	for _, tt := range tests {
		start, err := c.DateToServiceDayStart(tt.date)
		if err != nil {
			t.Fatal(err)
		}
		for _, shift := range shifts {
			if got := c.WeekdayOf(start + shift.Microseconds()); got != tt.want {
				t.Errorf("WeekdayOf(%s %+v) = %s, expected %s", tt.date, shift, WeekdayName(got), WeekdayName(tt.want))
			}
		}
	}
}

func TestDateToServiceDayStartRejectsMalformed(t *testing.T) {
	c := newYorkClock(t)

	for _, date := range []string{"", "2024-01-01", "2024011", "202401011", "20241301", "20240230", "abcdefgh"} {
		_, err := c.DateToServiceDayStart(date)
		if !errors.Is(err, ErrDateParse) {
			t.Errorf("DateToServiceDayStart(%q) error = %v, expected ErrDateParse", date, err)
			continue
		}
		var pe *ParseError
		if !errors.As(err, &pe) || pe.Date != date {
			t.Errorf("DateToServiceDayStart(%q) did not return a ParseError for the input", date)
		}
	}
}

func TestFirstServiceDayAtOrAfter(t *testing.T) {
	c := newYorkClock(t)

	mar10, _ := c.DateToServiceDayStart("20240310")
	mar11, _ := c.DateToServiceDayStart("20240311")
	nov03, _ := c.DateToServiceDayStart("20241103")

	tests := []struct {
		name    string
		instant int64
		want    int64
	}{
		{"exact day start", mar10, mar10},
		{"one tick after start", mar10 + 1, mar11},
		{"late evening before spring forward", time.Date(2024, 3, 9, 23, 30, 0, 0, c.Location()).UnixMicro(), mar11},
		{"just after local midnight on fall back", time.Date(2024, 11, 3, 4, 30, 0, 0, time.UTC).UnixMicro(), nov03},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := c.FirstServiceDayAtOrAfter(tt.instant); got != tt.want {
				t.Errorf("FirstServiceDayAtOrAfter = %s, expected %s", c.ServiceDayStart(got), c.ServiceDayStart(tt.want))
			}
		})
	}
}

func TestServiceDateOf(t *testing.T) {
	c := newYorkClock(t)
	local := func(year int, month time.Month, day, hour, min int) int64 {
		return time.Date(year, month, day, hour, min, 0, 0, c.Location()).UnixMicro()
	}
	mar10, _ := c.DateToServiceDayStart("20240310")
	nov03, _ := c.DateToServiceDayStart("20241103")

	tests := []struct {
		name    string
		instant int64
		want    string
	}{
		{"early morning", local(2024, 1, 1, 8, 0), "20240101"},
		{"noon", local(2024, 1, 1, 12, 0), "20240101"},
		{"afternoon", local(2024, 1, 1, 14, 0), "20240101"},
		{"late evening", local(2024, 1, 1, 23, 59), "20240101"},
		{"exact day start", mar10, "20240310"},
		{"one tick before spring forward start", mar10 - 1, "20240309"},
		{"late evening before spring forward", local(2024, 3, 9, 23, 30), "20240310"},
		{"after local midnight on fall back", time.Date(2024, 11, 3, 4, 30, 0, 0, time.UTC).UnixMicro(), "20241102"},
		{"fall back day start", nov03, "20241103"},
		{"fall back afternoon", local(2024, 11, 3, 14, 0), "20241103"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := c.ServiceDateOf(tt.instant); got != tt.want {
				t.Errorf("ServiceDateOf(%v) = %q, expected %q", time.UnixMicro(tt.instant).In(c.Location()), got, tt.want)
			}
		})
	}
}

func TestParseOffset(t *testing.T) {
	tests := []struct {
		input   string
		want    time.Duration
		wantErr bool
	}{
		{"00:00:00", 0, false},
		{"08:05:03", 8*time.Hour + 5*time.Minute + 3*time.Second, false},
		{"7:30:00", 7*time.Hour + 30*time.Minute, false},
		{"25:10:00", 25*time.Hour + 10*time.Minute, false},
		{"12:60:00", 0, true},
		{"12:00", 0, true},
		{"ab:cd:ef", 0, true},
	}

	for _, tt := range tests {
		got, err := ParseOffset(tt.input)
		if tt.wantErr {
			if err == nil {
				t.Errorf("ParseOffset(%q) expected error", tt.input)
			}
			continue
		}
		if err != nil {
			t.Errorf("ParseOffset(%q) error: %v", tt.input, err)
			continue
		}
		if got != tt.want.Microseconds() {
			t.Errorf("ParseOffset(%q) = %d, expected %d", tt.input, got, tt.want.Microseconds())
		}
		if back := FormatOffset(got); len(tt.input) == 8 && back != tt.input {
			t.Errorf("FormatOffset(ParseOffset(%q)) = %q", tt.input, back)
		}
	}
}

func TestWeekdayMask(t *testing.T) {
	mask := MaskFromDays([7]bool{true, false, true, false, true, false, false})
	if mask != Monday|Wednesday|Friday {
		t.Fatalf("MaskFromDays = %b, expected %b", mask, Monday|Wednesday|Friday)
	}
	if mask.String() != "Mon,Wed,Fri" {
		t.Errorf("String() = %q", mask.String())
	}
	if mask.Has(1) || !mask.Has(4) || mask.Has(7) || mask.Has(-1) {
		t.Errorf("Has() mismatch for %s", mask)
	}
	if MaskFromDays(mask.Days()) != mask {
		t.Errorf("Days() does not round trip")
	}
}
