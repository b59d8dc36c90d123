package schedule

import (
	"context"
	"sort"
	"testing"
	"time"

	"github.com/nshi/gtfs-rt/internal/serviceday"
)

type exception struct {
	date int64
	kind ExceptionKind
}

type updateKey struct {
	tripID string
	start  int64
	ts     int64
	seq    int
}

type instanceKey struct {
	tripID string
	start  int64
}

// memStore is an in-memory Store following the same ordering rules as the SQL store.
type memStore struct {
	calendars  map[string]Calendar
	exceptions map[string][]exception
	stopTimes  map[string][]StopTime
	updates    map[updateKey]int64
	effective  map[instanceKey][]EffectiveStopTime
}

func newMemStore() *memStore {
	return &memStore{
		calendars:  make(map[string]Calendar),
		exceptions: make(map[string][]exception),
		stopTimes:  make(map[string][]StopTime),
		updates:    make(map[updateKey]int64),
		effective:  make(map[instanceKey][]EffectiveStopTime),
	}
}

func (m *memStore) TripCalendar(_ context.Context, tripID string, notBefore, notAfter int64) (*Calendar, error) {
	cal, ok := m.calendars[tripID]
	if !ok || cal.End < notBefore || cal.Start >= notAfter {
		return nil, nil
	}
	return &cal, nil
}

func (m *memStore) CalendarExceptions(_ context.Context, tripID string, kind ExceptionKind, notBefore, notAfter int64) ([]int64, error) {
	var days []int64
	for _, ex := range m.exceptions[tripID] {
		if ex.kind == kind && ex.date >= notBefore && ex.date < notAfter {
			days = append(days, ex.date)
		}
	}
	sort.Slice(days, func(i, j int) bool { return days[i] < days[j] })
	return days, nil
}

func (m *memStore) StopTimesWithDelays(_ context.Context, tripID string, start, asOf int64) ([]StopDelay, error) {
	var rows []StopDelay
	for _, st := range m.sortedStopTimes(tripID) {
		row := StopDelay{StopTime: st}
		if delay, ok := m.updates[updateKey{tripID, start, asOf, st.StopSequence}]; ok {
			d := delay
			row.Delay = &d
		}
		rows = append(rows, row)
	}
	return rows, nil
}

func (m *memStore) DeleteEffectiveStopTimes(_ context.Context, tripID string, start int64) error {
	delete(m.effective, instanceKey{tripID, start})
	return nil
}

func (m *memStore) InsertEffectiveStopTime(_ context.Context, est EffectiveStopTime) error {
	key := instanceKey{est.TripID, est.Start}
	m.effective[key] = append(m.effective[key], est)
	return nil
}

func (m *memStore) StopTimes(_ context.Context, tripID string) ([]StopTime, error) {
	return m.sortedStopTimes(tripID), nil
}

func (m *memStore) EffectiveStopTimes(_ context.Context, tripID string, start int64) ([]EffectiveStopTime, error) {
	return append([]EffectiveStopTime(nil), m.effective[instanceKey{tripID, start}]...), nil
}

func (m *memStore) EffectiveArrivals(_ context.Context, tripID string, stopSequence int, earliest, tooLateToStart int64) ([]ArrivalRow, error) {
	var stop *StopTime
	for _, st := range m.stopTimes[tripID] {
		if st.StopSequence == stopSequence {
			st := st
			stop = &st
		}
	}
	if stop == nil {
		return nil, nil
	}

	var rows []ArrivalRow
	for key, ests := range m.effective {
		if key.tripID != tripID {
			continue
		}
		for _, est := range ests {
			if est.StopSequence != stopSequence || est.Start >= tooLateToStart {
				continue
			}
			if est.Arrival < earliest && est.Start+stop.Arrival < earliest {
				continue
			}
			rows = append(rows, ArrivalRow{
				StopSequence: stopSequence,
				Scheduled:    stop.Arrival,
				Updated:      true,
				Arrival:      est.Arrival,
				Start:        est.Start,
			})
		}
	}
	if len(rows) == 0 {
		return []ArrivalRow{{StopSequence: stopSequence, Scheduled: stop.Arrival}}, nil
	}
	sort.Slice(rows, func(i, j int) bool {
		if rows[i].Arrival != rows[j].Arrival {
			return rows[i].Arrival < rows[j].Arrival
		}
		return rows[i].Start < rows[j].Start
	})
	return rows, nil
}

func (m *memStore) sortedStopTimes(tripID string) []StopTime {
	sts := append([]StopTime(nil), m.stopTimes[tripID]...)
	sort.Slice(sts, func(i, j int) bool { return sts[i].StopSequence < sts[j].StopSequence })
	return sts
}

// memTx runs every transaction directly against the wrapped store.
type memTx struct {
	store  *memStore
	writes int
	reads  int
}

func (t *memTx) ReadTx(_ context.Context, fn func(Store) error) error {
	t.reads++
	return fn(t.store)
}

func (t *memTx) WriteTx(_ context.Context, fn func(Store) error) error {
	t.writes++
	return fn(t.store)
}

func testClock(t *testing.T) *serviceday.Clock {
	t.Helper()
	c, err := serviceday.Load(serviceday.DefaultTimezone)
	if err != nil {
		t.Fatal(err)
	}
	return c
}

func mustDay(t *testing.T, c *serviceday.Clock, date string) int64 {
	t.Helper()
	day, err := c.DateToServiceDayStart(date)
	if err != nil {
		t.Fatal(err)
	}
	return day
}

func hours(h float64) int64 {
	return time.Duration(h * float64(time.Hour)).Microseconds()
}

func seconds(s int64) int64 {
	return (time.Duration(s) * time.Second).Microseconds()
}
