package realtime

import (
	"fmt"
	"time"

	gtfs "github.com/MobilityData/gtfs-realtime-bindings/golang/gtfs"
	"google.golang.org/protobuf/proto"

	"github.com/nshi/gtfs-rt/internal/serviceday"
)

const microsPerSecond = int64(time.Second / time.Microsecond)

// StopReport is the delay reported for one stop of a trip.
type StopReport struct {
	StopSequence int
	StopID       string
	// Delay is in microseconds.
	Delay int64
}

// TripReport is one decoded trip delay report.
type TripReport struct {
	TripID               string
	StartDate            string
	Timestamp            int64
	ScheduleRelationship string
	Stops                []StopReport
}

// PositionReport is one decoded vehicle position.
type PositionReport struct {
	VehicleID           string
	Timestamp           int64
	TripID              string
	StartDate           string
	StopID              string
	CurrentStopSequence *int
	Latitude            *float64
	Longitude           *float64
}

// Decode parses a GTFS-realtime FeedMessage.
func Decode(body []byte) (*gtfs.FeedMessage, error) {
	feed := &gtfs.FeedMessage{}
	if err := proto.Unmarshal(body, feed); err != nil {
		return nil, fmt.Errorf("failed to parse protobuf: %w", err)
	}
	return feed, nil
}

// Extract converts the entities of feed into reports. Entity timestamps fall back to the
// header timestamp, then to receivedAt. A missing start date is taken from the report's
// service day.
func Extract(feed *gtfs.FeedMessage, clock *serviceday.Clock, receivedAt time.Time) ([]TripReport, []PositionReport) {
	fallback := receivedAt.UnixMicro()
	if ts := feed.GetHeader().GetTimestamp(); ts > 0 {
		fallback = int64(ts) * microsPerSecond
	}

	var trips []TripReport
	var positions []PositionReport
	for _, entity := range feed.GetEntity() {
		if entity.GetIsDeleted() {
			continue
		}
		if tu := entity.GetTripUpdate(); tu != nil {
			if r, ok := tripReport(tu, clock, fallback); ok {
				trips = append(trips, r)
			}
		}
		if vp := entity.GetVehicle(); vp != nil {
			if r, ok := positionReport(vp, clock, fallback); ok {
				positions = append(positions, r)
			}
		}
	}
	return trips, positions
}

func tripReport(tu *gtfs.TripUpdate, clock *serviceday.Clock, fallback int64) (TripReport, bool) {
	trip := tu.GetTrip()
	if trip.GetTripId() == "" {
		return TripReport{}, false
	}

	ts := fallback
	if t := tu.GetTimestamp(); t > 0 {
		ts = int64(t) * microsPerSecond
	}

	r := TripReport{
		TripID:               trip.GetTripId(),
		StartDate:            trip.GetStartDate(),
		Timestamp:            ts,
		ScheduleRelationship: trip.GetScheduleRelationship().String(),
	}
	if r.StartDate == "" {
		r.StartDate = clock.ServiceDateOf(ts)
	}

	for _, stu := range tu.GetStopTimeUpdate() {
		if stu.GetScheduleRelationship() != gtfs.TripUpdate_StopTimeUpdate_SCHEDULED {
			continue
		}
		delay, ok := stopDelay(stu)
		if !ok {
			continue
		}
		stop := StopReport{StopID: stu.GetStopId(), Delay: delay, StopSequence: -1}
		if stu.StopSequence != nil {
			stop.StopSequence = int(stu.GetStopSequence())
		}
		r.Stops = append(r.Stops, stop)
	}
	return r, true
}

// stopDelay prefers the arrival delay over the departure delay.
func stopDelay(stu *gtfs.TripUpdate_StopTimeUpdate) (int64, bool) {
	if ev := stu.GetArrival(); ev != nil && ev.Delay != nil {
		return int64(ev.GetDelay()) * microsPerSecond, true
	}
	if ev := stu.GetDeparture(); ev != nil && ev.Delay != nil {
		return int64(ev.GetDelay()) * microsPerSecond, true
	}
	return 0, false
}

func positionReport(vp *gtfs.VehiclePosition, clock *serviceday.Clock, fallback int64) (PositionReport, bool) {
	vehicleID := vp.GetVehicle().GetId()
	if vehicleID == "" {
		vehicleID = vp.GetVehicle().GetLabel()
	}
	if vehicleID == "" {
		return PositionReport{}, false
	}

	ts := fallback
	if t := vp.GetTimestamp(); t > 0 {
		ts = int64(t) * microsPerSecond
	}

	r := PositionReport{
		VehicleID: vehicleID,
		Timestamp: ts,
		TripID:    vp.GetTrip().GetTripId(),
		StartDate: vp.GetTrip().GetStartDate(),
		StopID:    vp.GetStopId(),
	}
	if r.TripID != "" && r.StartDate == "" {
		r.StartDate = clock.ServiceDateOf(ts)
	}
	if vp.CurrentStopSequence != nil {
		seq := int(vp.GetCurrentStopSequence())
		r.CurrentStopSequence = &seq
	}
	if pos := vp.GetPosition(); pos != nil {
		lat := float64(pos.GetLatitude())
		lon := float64(pos.GetLongitude())
		r.Latitude = &lat
		r.Longitude = &lon
	}
	return r, true
}
