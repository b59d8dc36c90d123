package api

import (
	"time"

	"github.com/nshi/gtfs-rt/internal/db"
)

// ErrorResponse is the JSON error response structure
type ErrorResponse struct {
	Error   string                 `json:"error"`
	Details map[string]interface{} `json:"details,omitempty"`
}

// ArrivalResponse is the JSON response for GET /api/trips/{tripId}/stops/{stopSequence}/next-arrival
type ArrivalResponse struct {
	TripID       string    `json:"tripId"`
	StopSequence int       `json:"stopSequence"`
	Arrival      time.Time `json:"arrival"`
	StartDate    string    `json:"startDate"`
	Updated      bool      `json:"updated"`
}

// ScheduledStop is one stop of a trip instance with its effective times.
type ScheduledStop struct {
	StopSequence int       `json:"stopSequence"`
	StopID       string    `json:"stopId"`
	Arrival      time.Time `json:"arrival"`
	Departure    time.Time `json:"departure"`
	DelaySeconds int64     `json:"delaySeconds"`
	Updated      bool      `json:"updated"`
}

// ScheduleResponse is the JSON response for GET /api/trips/{tripId}/schedule
type ScheduleResponse struct {
	TripID    string          `json:"tripId"`
	StartDate string          `json:"startDate"`
	Stops     []ScheduledStop `json:"stops"`
	Count     int             `json:"count"`
}

// ServiceDatesResponse is the JSON response for GET /api/trips/{tripId}/service-dates
type ServiceDatesResponse struct {
	TripID string   `json:"tripId"`
	From   string   `json:"from"`
	To     string   `json:"to"`
	Dates  []string `json:"dates"`
	Count  int      `json:"count"`
}

// DelaysResponse is the JSON response for GET /api/trips/{tripId}/delays
type DelaysResponse struct {
	TripID      string             `json:"tripId"`
	Stops       []db.StopDelayStat `json:"stops"`
	Count       int                `json:"count"`
	LastChecked time.Time          `json:"lastChecked"`
}

// IngestResponse is the JSON response for POST /api/realtime
type IngestResponse struct {
	SnapshotID       string `json:"snapshotId"`
	TripUpdates      int    `json:"tripUpdates"`
	VehiclePositions int    `json:"vehiclePositions"`
	Rejected         int    `json:"rejected"`
	StopsSkipped     int    `json:"stopsSkipped"`
}
