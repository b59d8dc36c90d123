package realtime

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	gtfs "github.com/MobilityData/gtfs-realtime-bindings/golang/gtfs"
	"github.com/stretchr/testify/require"
	"google.golang.org/protobuf/proto"

	"github.com/nshi/gtfs-rt/internal/db"
	"github.com/nshi/gtfs-rt/internal/publisher"
	"github.com/nshi/gtfs-rt/internal/schedule"
	"github.com/nshi/gtfs-rt/internal/serviceday"
)

func testClock(t *testing.T) *serviceday.Clock {
	t.Helper()
	c, err := serviceday.Load(serviceday.DefaultTimezone)
	require.NoError(t, err)
	return c
}

func day(t *testing.T, c *serviceday.Clock, date string) int64 {
	t.Helper()
	d, err := c.DateToServiceDayStart(date)
	require.NoError(t, err)
	return d
}

func offset(d time.Duration) int64 {
	return d.Microseconds()
}

// openSeededDB stores trip T1, running Mon/Wed/Fri in January 2024 over six stops from
// 08:00 every ten minutes.
func openSeededDB(t *testing.T, c *serviceday.Clock) *db.DB {
	t.Helper()
	database, err := db.Connect(db.Options{DSN: filepath.Join(t.TempDir(), "transit.db")})
	require.NoError(t, err)
	t.Cleanup(func() { database.Close() })
	require.NoError(t, database.EnsureSchema(context.Background()))

	ref := &db.Reference{
		Trips: []db.Trip{{TripID: "T1", RouteID: "R1", ServiceID: "MWF"}},
		Calendars: []db.Calendar{{
			ServiceID: "MWF",
			Weekdays:  serviceday.Monday | serviceday.Wednesday | serviceday.Friday,
			StartDate: "20240101", EndDate: "20240131",
			Start: day(t, c, "20240101"), End: day(t, c, "20240131"),
		}},
	}
	for seq := 1; seq <= 6; seq++ {
		stopID := "S" + string(rune('0'+seq))
		ref.Stops = append(ref.Stops, db.Stop{StopID: stopID, Name: "Stop " + stopID})
		at := offset(8*time.Hour + time.Duration(seq-1)*10*time.Minute)
		ref.StopTimes = append(ref.StopTimes, schedule.StopTime{
			TripID: "T1", StopSequence: seq, StopID: stopID, Arrival: at, Departure: at + offset(time.Minute),
		})
	}
	_, err = database.ImportReference(context.Background(), ref)
	require.NoError(t, err)
	return database
}

type fakePublisher struct {
	messages []publisher.ScheduleMessage
}

func (f *fakePublisher) PublishSchedule(_ context.Context, msg publisher.ScheduleMessage) error {
	f.messages = append(f.messages, msg)
	return nil
}

type fakeRecorder struct {
	applied  map[string]int
	rejected map[string]int
}

func newFakeRecorder() *fakeRecorder {
	return &fakeRecorder{applied: map[string]int{}, rejected: map[string]int{}}
}

func (f *fakeRecorder) ReportApplied(kind string) { f.applied[kind]++ }

func (f *fakeRecorder) ReportRejected(kind, reason string) { f.rejected[kind+"/"+reason]++ }

func fixedNow(t time.Time) Option {
	return withNow(func() time.Time { return t })
}

func tripUpdateEntity(id, tripID, startDate string, ts uint64, stops ...*gtfs.TripUpdate_StopTimeUpdate) *gtfs.FeedEntity {
	trip := &gtfs.TripDescriptor{TripId: proto.String(tripID)}
	if startDate != "" {
		trip.StartDate = proto.String(startDate)
	}
	tu := &gtfs.TripUpdate{Trip: trip, StopTimeUpdate: stops}
	if ts > 0 {
		tu.Timestamp = proto.Uint64(ts)
	}
	return &gtfs.FeedEntity{Id: proto.String(id), TripUpdate: tu}
}

func arrivalDelay(seq uint32, delay int32) *gtfs.TripUpdate_StopTimeUpdate {
	return &gtfs.TripUpdate_StopTimeUpdate{
		StopSequence: proto.Uint32(seq),
		Arrival:      &gtfs.TripUpdate_StopTimeEvent{Delay: proto.Int32(delay)},
	}
}

func feedMessage(ts uint64, entities ...*gtfs.FeedEntity) *gtfs.FeedMessage {
	return &gtfs.FeedMessage{
		Header: &gtfs.FeedHeader{
			GtfsRealtimeVersion: proto.String("2.0"),
			Timestamp:           proto.Uint64(ts),
		},
		Entity: entities,
	}
}

func writeFeed(t *testing.T, path string, feed *gtfs.FeedMessage) {
	t.Helper()
	body, err := proto.Marshal(feed)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, body, 0o644))
}
