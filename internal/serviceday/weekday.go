package serviceday

import "strings"

// WeekdayMask is a GTFS calendar weekday pattern, Monday in bit 0 through Sunday in bit 6.
type WeekdayMask uint8

const (
	Monday WeekdayMask = 1 << iota
	Tuesday
	Wednesday
	Thursday
	Friday
	Saturday
	Sunday
)

// Everyday has all seven bits set.
const Everyday = Monday | Tuesday | Wednesday | Thursday | Friday | Saturday | Sunday

var weekdayNames = [7]string{"Mon", "Tue", "Wed", "Thu", "Fri", "Sat", "Sun"}

// MaskFromDays builds a mask from the seven GTFS calendar columns in Monday-first order.
func MaskFromDays(days [7]bool) WeekdayMask {
	var m WeekdayMask
	for i, on := range days {
		if on {
			m |= 1 << i
		}
	}
	return m
}

// Has reports whether weekday (Monday=0) is part of the pattern.
func (m WeekdayMask) Has(weekday int) bool {
	if weekday < 0 || weekday > 6 {
		return false
	}
	return m&(1<<weekday) != 0
}

// Days expands the mask back into calendar columns.
func (m WeekdayMask) Days() [7]bool {
	var days [7]bool
	for i := range days {
		days[i] = m.Has(i)
	}
	return days
}

func (m WeekdayMask) String() string {
	var names []string
	for i, name := range weekdayNames {
		if m.Has(i) {
			names = append(names, name)
		}
	}
	if len(names) == 0 {
		return "none"
	}
	return strings.Join(names, ",")
}

// WeekdayName returns the short English name for a Monday=0 weekday index.
func WeekdayName(weekday int) string {
	if weekday < 0 || weekday > 6 {
		return "?"
	}
	return weekdayNames[weekday]
}
