package schedule

import (
	"context"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nshi/gtfs-rt/internal/serviceday"
)

// dailyTrip runs every day of January 2024 and reaches stop 3 at 10:00.
func dailyTrip(t *testing.T, c *serviceday.Clock) *memStore {
	t.Helper()
	store := newMemStore()
	store.calendars["T1"] = Calendar{
		ServiceID: "DAILY",
		Weekdays:  serviceday.Everyday,
		Start:     mustDay(t, c, "20240101"),
		End:       mustDay(t, c, "20240131"),
	}
	for seq, at := range []float64{9, 9.5, 10, 10.5} {
		store.stopTimes["T1"] = append(store.stopTimes["T1"], StopTime{
			TripID:       "T1",
			StopSequence: seq + 1,
			StopID:       "S",
			Arrival:      hours(at),
			Departure:    hours(at),
		})
	}
	return store
}

// delayInstance materializes stop 3 of the instance on date with the given delay.
func delayInstance(t *testing.T, c *serviceday.Clock, store *memStore, date string, delay time.Duration) {
	t.Helper()
	start := mustDay(t, c, date)
	store.effective[instanceKey{"T1", start}] = append(store.effective[instanceKey{"T1", start}], EffectiveStopTime{
		TripID:       "T1",
		StartDate:    date,
		Start:        start,
		StopSequence: 3,
		Arrival:      start + hours(10) + delay.Microseconds(),
		Departure:    start + hours(10) + delay.Microseconds(),
		Timestamp:    1,
	})
}

func at(t *testing.T, c *serviceday.Clock, date string, h float64) int64 {
	t.Helper()
	return mustDay(t, c, date) + hours(h)
}

func TestFindNextArrivalOnTime(t *testing.T) {
	c := testClock(t)
	store := dailyTrip(t, c)

	got, err := NewResolver(store, c, nil).FindNextArrival(context.Background(), "T1", 3, at(t, c, "20240105", 9), at(t, c, "20240107", 0))
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, at(t, c, "20240105", 10), got.Instant)
	assert.Equal(t, "20240105", got.StartDate)
	assert.Equal(t, mustDay(t, c, "20240105"), got.Start)
	assert.False(t, got.Updated)
}

func TestFindNextArrivalSkipsPhantomOfDelayedInstance(t *testing.T) {
	c := testClock(t)
	store := dailyTrip(t, c)
	delayInstance(t, c, store, "20240105", 3*time.Hour)

	got, err := NewResolver(store, c, nil).FindNextArrival(context.Background(), "T1", 3, at(t, c, "20240105", 9), at(t, c, "20240105", 12))
	require.NoError(t, err)
	assert.Nil(t, got, "the on-time 10:00 arrival of a delayed instance must not be offered")
}

func TestFindNextArrivalSkipsPhantomOfEarlyInstance(t *testing.T) {
	c := testClock(t)
	store := dailyTrip(t, c)
	delayInstance(t, c, store, "20240105", -2*time.Hour)

	got, err := NewResolver(store, c, nil).FindNextArrival(context.Background(), "T1", 3, at(t, c, "20240105", 9), at(t, c, "20240105", 12))
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestFindNextArrivalMerge(t *testing.T) {
	c := testClock(t)

	tests := []struct {
		name        string
		delayed     string
		delay       time.Duration
		earliest    int64
		latest      int64
		wantInstant int64
		wantDate    string
		wantUpdated bool
	}{
		{
			name:        "updated arrival earlier than next on-time",
			delayed:     "20240105",
			delay:       5 * time.Minute,
			earliest:    at(t, c, "20240105", 9),
			latest:      at(t, c, "20240106", 12),
			wantInstant: at(t, c, "20240105", 10) + (5 * time.Minute).Microseconds(),
			wantDate:    "20240105",
			wantUpdated: true,
		},
		{
			name:        "on-time arrival earlier than updated one",
			delayed:     "20240105",
			delay:       26 * time.Hour,
			earliest:    at(t, c, "20240105", 9),
			latest:      at(t, c, "20240106", 13),
			wantInstant: at(t, c, "20240106", 10),
			wantDate:    "20240106",
			wantUpdated: false,
		},
		{
			name:        "delayed instance is the only arrival in window",
			delayed:     "20240105",
			delay:       3 * time.Hour,
			earliest:    at(t, c, "20240105", 9),
			latest:      at(t, c, "20240106", 9),
			wantInstant: at(t, c, "20240105", 13),
			wantDate:    "20240105",
			wantUpdated: true,
		},
		{
			name:        "previous day instance delayed into window",
			delayed:     "20240104",
			delay:       24*time.Hour + 30*time.Minute,
			earliest:    at(t, c, "20240105", 10) + 1,
			latest:      at(t, c, "20240105", 12),
			wantInstant: at(t, c, "20240105", 10.5),
			wantDate:    "20240104",
			wantUpdated: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := dailyTrip(t, c)
			delayInstance(t, c, store, tt.delayed, tt.delay)

			got, err := NewResolver(store, c, nil).FindNextArrival(context.Background(), "T1", 3, tt.earliest, tt.latest)
			require.NoError(t, err)
			require.NotNil(t, got)
			assert.Equal(t, tt.wantInstant, got.Instant)
			assert.Equal(t, tt.wantDate, got.StartDate)
			assert.Equal(t, mustDay(t, c, tt.wantDate), got.Start)
			assert.Equal(t, tt.wantUpdated, got.Updated)
		})
	}
}

func TestFindNextArrivalNoResult(t *testing.T) {
	c := testClock(t)

	tests := []struct {
		name     string
		tripID   string
		seq      int
		earliest int64
		latest   int64
	}{
		{"calendar ended before window", "T1", 3, at(t, c, "20240201", 0), at(t, c, "20240210", 0)},
		{"window closes before the stop is reached", "T1", 3, at(t, c, "20240105", 10) + 1, at(t, c, "20240106", 9)},
		{"unknown stop", "T1", 9, at(t, c, "20240105", 0), at(t, c, "20240110", 0)},
		{"unknown trip", "T9", 3, at(t, c, "20240105", 0), at(t, c, "20240110", 0)},
		{"inverted window", "T1", 3, at(t, c, "20240110", 0), at(t, c, "20240105", 0)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := dailyTrip(t, c)
			got, err := NewResolver(store, c, nil).FindNextArrival(context.Background(), tt.tripID, tt.seq, tt.earliest, tt.latest)
			require.NoError(t, err)
			assert.Nil(t, got)
		})
	}
}

func TestFindNextArrivalWindowIsInclusive(t *testing.T) {
	c := testClock(t)
	store := dailyTrip(t, c)
	r := NewResolver(store, c, nil)
	tenAM := at(t, c, "20240105", 10)

	got, err := r.FindNextArrival(context.Background(), "T1", 3, tenAM, tenAM)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, tenAM, got.Instant)
}

func TestFindNextArrivalEffectiveRowsWithoutServiceReportNothing(t *testing.T) {
	c := testClock(t)
	store := dailyTrip(t, c)
	delete(store.calendars, "T1")
	delayInstance(t, c, store, "20240105", 5*time.Minute)

	got, err := NewResolver(store, c, nil).FindNextArrival(context.Background(), "T1", 3, at(t, c, "20240105", 9), at(t, c, "20240105", 12))
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestFindNextArrivalAddedDateOnly(t *testing.T) {
	c := testClock(t)
	store := dailyTrip(t, c)
	delete(store.calendars, "T1")
	store.exceptions["T1"] = []exception{{date: mustDay(t, c, "20240210"), kind: Added}}

	got, err := NewResolver(store, c, nil).FindNextArrival(context.Background(), "T1", 3, at(t, c, "20240201", 0), at(t, c, "20240301", 0))
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "20240210", got.StartDate)
	assert.Equal(t, at(t, c, "20240210", 10), got.Instant)
}

func TestFindNextArrivalEarlyInstanceOnAddedDate(t *testing.T) {
	c := testClock(t)
	store := dailyTrip(t, c)
	delete(store.calendars, "T1")
	store.exceptions["T1"] = []exception{{date: mustDay(t, c, "20240210"), kind: Added}}
	// two hours early: 08:00 is inside the window, the on-time 10:00 is not
	delayInstance(t, c, store, "20240210", -2*time.Hour)

	got, err := NewResolver(store, c, nil).FindNextArrival(context.Background(), "T1", 3, at(t, c, "20240210", 7), at(t, c, "20240210", 9))
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, at(t, c, "20240210", 8), got.Instant)
	assert.Equal(t, "20240210", got.StartDate)
	assert.True(t, got.Updated)
}

func TestFindNextArrivalUnboundedWindow(t *testing.T) {
	c := testClock(t)
	store := dailyTrip(t, c)

	got, err := NewResolver(store, c, nil).FindNextArrival(context.Background(), "T1", 3, at(t, c, "20240105", 9), math.MaxInt64)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, at(t, c, "20240105", 10), got.Instant)

	got, err = NewResolver(store, c, nil).FindNextArrival(context.Background(), "T1", 3, math.MinInt64, at(t, c, "20240101", 11))
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, at(t, c, "20240101", 10), got.Instant)
}

func TestFindNextArrivalIsDeterministic(t *testing.T) {
	c := testClock(t)
	store := dailyTrip(t, c)
	delayInstance(t, c, store, "20240105", 5*time.Minute)
	delayInstance(t, c, store, "20240106", 5*time.Minute)
	r := NewResolver(store, c, nil)

	first, err := r.FindNextArrival(context.Background(), "T1", 3, at(t, c, "20240105", 9), at(t, c, "20240107", 0))
	require.NoError(t, err)
	for i := 0; i < 5; i++ {
		again, err := r.FindNextArrival(context.Background(), "T1", 3, at(t, c, "20240105", 9), at(t, c, "20240107", 0))
		require.NoError(t, err)
		assert.Equal(t, first, again)
	}
}

func TestServiceRecordsOutcomes(t *testing.T) {
	c := testClock(t)
	store := dailyTrip(t, c)
	tx := &memTx{store: store}
	rec := &countingRecorder{outcomes: make(map[string]int)}
	svc := NewService(tx, c, nil, rec)
	ctx := context.Background()

	_, err := svc.FindNextArrival(ctx, "T1", 3, at(t, c, "20240105", 9), at(t, c, "20240105", 12))
	require.NoError(t, err)
	_, err = svc.FindNextArrival(ctx, "T1", 3, at(t, c, "20240201", 9), at(t, c, "20240201", 12))
	require.NoError(t, err)

	store.updates[updateKey{"T1", mustDay(t, c, "20240105"), 7, 1}] = seconds(120)
	written, err := svc.Project(ctx, "T1", "20240105", 7)
	require.NoError(t, err)
	assert.Equal(t, 4, written)

	got, err := svc.FindNextArrival(ctx, "T1", 3, at(t, c, "20240105", 9), at(t, c, "20240105", 12))
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.True(t, got.Updated)

	assert.Equal(t, map[string]int{OutcomeOnTime: 1, OutcomeNone: 1, OutcomeUpdated: 1}, rec.outcomes)
	assert.Equal(t, 4, rec.rows)
	assert.Equal(t, 1, tx.writes)
	assert.Equal(t, 3, tx.reads)

	dates, err := svc.ServiceDates(ctx, "T1", "20240129", "20240205")
	require.NoError(t, err)
	assert.Equal(t, []string{"20240129", "20240130", "20240131"}, dates)
}

type countingRecorder struct {
	outcomes map[string]int
	rows     int
}

func (r *countingRecorder) ProjectionCompleted(rows int, _ time.Duration) { r.rows += rows }

func (r *countingRecorder) ArrivalResolved(outcome string, _ time.Duration) { r.outcomes[outcome]++ }
