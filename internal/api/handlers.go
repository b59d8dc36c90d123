package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	gtfs "github.com/MobilityData/gtfs-realtime-bindings/golang/gtfs"
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/nshi/gtfs-rt/internal/db"
	"github.com/nshi/gtfs-rt/internal/realtime"
	"github.com/nshi/gtfs-rt/internal/schedule"
	"github.com/nshi/gtfs-rt/internal/serviceday"
)

// DefaultArrivalWindow is the lookahead used when latest is omitted.
const DefaultArrivalWindow = 2 * time.Hour

const maxFeedBytes = 32 << 20

// ScheduleService answers schedule queries.
type ScheduleService interface {
	Clock() *serviceday.Clock
	FindNextArrival(ctx context.Context, tripID string, stopSequence int, earliest, latest int64) (*schedule.Arrival, error)
	Schedule(ctx context.Context, tripID, startDate string) ([]schedule.ScheduledStop, error)
	ServiceDates(ctx context.Context, tripID, from, to string) ([]string, error)
}

// DelayRepository reads per-stop delay statistics.
type DelayRepository interface {
	AverageStopDelays(ctx context.Context, tripID string) ([]db.StopDelayStat, error)
}

// FeedIngestor applies GTFS-realtime feeds.
type FeedIngestor interface {
	ApplyFeed(ctx context.Context, feed *gtfs.FeedMessage, source string) (realtime.FeedResult, error)
}

// HealthChecker reports table sizes.
type HealthChecker interface {
	Counts(ctx context.Context) (db.Counts, error)
}

// Handler serves the schedule API.
type Handler struct {
	service  ScheduleService
	delays   DelayRepository
	ingestor FeedIngestor
	health   HealthChecker
	logger   *zap.Logger
	now      func() time.Time
}

func NewHandler(service ScheduleService, delays DelayRepository, ingestor FeedIngestor, health HealthChecker, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{
		service:  service,
		delays:   delays,
		ingestor: ingestor,
		health:   health,
		logger:   logger,
		now:      time.Now,
	}
}

// Health handles GET /health
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	counts, err := h.health.Counts(ctx)
	if err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]interface{}{
			"status":    "error",
			"database":  "disconnected",
			"timestamp": time.Now().UTC(),
			"error":     err.Error(),
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":    "ok",
		"database":  "connected",
		"timestamp": time.Now().UTC(),
		"counts":    counts,
	})
}

// GetNextArrival handles GET /api/trips/{tripId}/stops/{stopSequence}/next-arrival
// Query params: earliest, latest (RFC3339 or epoch microseconds; default now and now+2h)
func (h *Handler) GetNextArrival(w http.ResponseWriter, r *http.Request) {
	tripID := chi.URLParam(r, "tripId")
	seq, err := strconv.Atoi(chi.URLParam(r, "stopSequence"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "stopSequence must be an integer", nil)
		return
	}

	earliest := h.now().UnixMicro()
	if v := r.URL.Query().Get("earliest"); v != "" {
		if earliest, err = parseInstant(v); err != nil {
			writeError(w, http.StatusBadRequest, "invalid earliest", map[string]interface{}{"value": v})
			return
		}
	}
	latest := earliest + DefaultArrivalWindow.Microseconds()
	if v := r.URL.Query().Get("latest"); v != "" {
		if latest, err = parseInstant(v); err != nil {
			writeError(w, http.StatusBadRequest, "invalid latest", map[string]interface{}{"value": v})
			return
		}
	}
	if latest < earliest {
		writeError(w, http.StatusBadRequest, "latest must not be before earliest", nil)
		return
	}

	arrival, err := h.service.FindNextArrival(r.Context(), tripID, seq, earliest, latest)
	if err != nil {
		h.internalError(w, "Failed to resolve next arrival", err)
		return
	}
	if arrival == nil {
		writeError(w, http.StatusNotFound, "No arrival in window", map[string]interface{}{
			"tripId":       tripID,
			"stopSequence": seq,
		})
		return
	}

	clock := h.service.Clock()
	writeJSON(w, http.StatusOK, ArrivalResponse{
		TripID:       arrival.TripID,
		StopSequence: arrival.StopSequence,
		Arrival:      clock.Time(arrival.Instant),
		StartDate:    arrival.StartDate,
		Updated:      arrival.Updated,
	})
}

// GetSchedule handles GET /api/trips/{tripId}/schedule
// Query params: start_date (yyyyMMdd, default today's service date)
func (h *Handler) GetSchedule(w http.ResponseWriter, r *http.Request) {
	tripID := chi.URLParam(r, "tripId")
	clock := h.service.Clock()

	startDate := r.URL.Query().Get("start_date")
	if startDate == "" {
		startDate = clock.ServiceDateOf(h.now().UnixMicro())
	}

	stops, err := h.service.Schedule(r.Context(), tripID, startDate)
	if err != nil {
		if errors.Is(err, serviceday.ErrDateParse) {
			writeError(w, http.StatusBadRequest, err.Error(), nil)
			return
		}
		h.internalError(w, "Failed to retrieve schedule", err)
		return
	}
	if len(stops) == 0 {
		writeError(w, http.StatusNotFound, "Trip not found", map[string]interface{}{"tripId": tripID})
		return
	}

	resp := ScheduleResponse{TripID: tripID, StartDate: startDate, Stops: make([]ScheduledStop, 0, len(stops))}
	for _, s := range stops {
		resp.Stops = append(resp.Stops, ScheduledStop{
			StopSequence: s.StopSequence,
			StopID:       s.StopID,
			Arrival:      clock.Time(s.Arrival),
			Departure:    clock.Time(s.Departure),
			DelaySeconds: s.Delay / int64(time.Second/time.Microsecond),
			Updated:      s.Updated,
		})
	}
	resp.Count = len(resp.Stops)
	writeJSON(w, http.StatusOK, resp)
}

// GetServiceDates handles GET /api/trips/{tripId}/service-dates
// Query params: from, to (yyyyMMdd, inclusive; default the next seven days)
func (h *Handler) GetServiceDates(w http.ResponseWriter, r *http.Request) {
	tripID := chi.URLParam(r, "tripId")
	clock := h.service.Clock()

	from := r.URL.Query().Get("from")
	if from == "" {
		from = clock.ServiceDateOf(h.now().UnixMicro())
	}
	to := r.URL.Query().Get("to")
	if to == "" {
		start, err := clock.DateToServiceDayStart(from)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error(), nil)
			return
		}
		end := start
		for i := 0; i < 6; i++ {
			end = clock.NextServiceDay(end)
		}
		to = clock.ServiceDayStart(end)
	}

	dates, err := h.service.ServiceDates(r.Context(), tripID, from, to)
	if err != nil {
		if errors.Is(err, serviceday.ErrDateParse) {
			writeError(w, http.StatusBadRequest, err.Error(), nil)
			return
		}
		h.internalError(w, "Failed to list service dates", err)
		return
	}
	if dates == nil {
		dates = []string{}
	}
	writeJSON(w, http.StatusOK, ServiceDatesResponse{TripID: tripID, From: from, To: to, Dates: dates, Count: len(dates)})
}

// GetDelays handles GET /api/trips/{tripId}/delays
func (h *Handler) GetDelays(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	tripID := chi.URLParam(r, "tripId")
	stats, err := h.delays.AverageStopDelays(ctx, tripID)
	if err != nil {
		h.internalError(w, "Failed to get delay stats", err)
		return
	}
	if stats == nil {
		stats = []db.StopDelayStat{}
	}
	writeJSON(w, http.StatusOK, DelaysResponse{
		TripID:      tripID,
		Stops:       stats,
		Count:       len(stats),
		LastChecked: time.Now().UTC(),
	})
}

// PostRealtime handles POST /api/realtime with a protobuf FeedMessage body.
func (h *Handler) PostRealtime(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxFeedBytes+1))
	if err != nil {
		writeError(w, http.StatusBadRequest, "Failed to read body", nil)
		return
	}
	if len(body) > maxFeedBytes {
		writeError(w, http.StatusRequestEntityTooLarge, "Feed too large", nil)
		return
	}

	feed, err := realtime.Decode(body)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid GTFS-realtime feed", map[string]interface{}{"internal": err.Error()})
		return
	}

	result, err := h.ingestor.ApplyFeed(r.Context(), feed, "http:"+r.RemoteAddr)
	if err != nil {
		h.internalError(w, "Failed to apply feed", err)
		return
	}
	writeJSON(w, http.StatusOK, IngestResponse{
		SnapshotID:       result.SnapshotID,
		TripUpdates:      result.TripUpdates,
		VehiclePositions: result.VehiclePositions,
		Rejected:         result.Rejected,
		StopsSkipped:     result.StopsSkipped,
	})
}

func (h *Handler) internalError(w http.ResponseWriter, message string, err error) {
	h.logger.Error(message, zap.Error(err))
	writeError(w, http.StatusInternalServerError, message, map[string]interface{}{"internal": err.Error()})
}

// parseInstant accepts RFC3339 or an integer count of microseconds since the epoch.
func parseInstant(value string) (int64, error) {
	n, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		t, perr := time.Parse(time.RFC3339, value)
		if perr != nil {
			return 0, fmt.Errorf("invalid instant %q", value)
		}
		n = t.UnixMicro()
	}
	if n < serviceday.MinInstant || n > serviceday.MaxInstant {
		return 0, fmt.Errorf("instant %q out of range", value)
	}
	return n, nil
}

func writeError(w http.ResponseWriter, status int, message string, details map[string]interface{}) {
	writeJSON(w, status, ErrorResponse{Error: message, Details: details})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
