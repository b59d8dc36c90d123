package metrics

import (
	"errors"
	"io"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCollectorCounters(t *testing.T) {
	c := NewCollector()

	c.ProjectionCompleted(3, time.Millisecond)
	c.ProjectionCompleted(2, time.Millisecond)
	c.ArrivalResolved("updated", time.Millisecond)
	c.ArrivalResolved("none", time.Millisecond)
	c.ArrivalResolved("none", time.Millisecond)
	c.ReportApplied("trip_update")
	c.ReportRejected("trip_update", "stale")
	c.PublishObserve(time.Millisecond, nil)
	c.PublishObserve(time.Millisecond, errors.New("closed"))
	c.NATSSetConnected(true)
	c.CleanupCompleted(7)

	assert.Equal(t, 2.0, testutil.ToFloat64(c.Projections))
	assert.Equal(t, 5.0, testutil.ToFloat64(c.ProjectedRows))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.Arrivals.WithLabelValues("updated")))
	assert.Equal(t, 2.0, testutil.ToFloat64(c.Arrivals.WithLabelValues("none")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.ReportsApplied.WithLabelValues("trip_update")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.ReportsRejected.WithLabelValues("trip_update", "stale")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.NATSPublished))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.NATSPublishErrs))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.NATSConnected))
	assert.Equal(t, 7.0, testutil.ToFloat64(c.CleanupDeleted))

	c.NATSSetConnected(false)
	assert.Equal(t, 0.0, testutil.ToFloat64(c.NATSConnected))
}

func TestCollectorHandler(t *testing.T) {
	c := NewCollector()
	c.ArrivalResolved("on_time", time.Millisecond)

	rec := httptest.NewRecorder()
	c.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	require.Equal(t, 200, rec.Code)

	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), `transit_arrival_lookups_total{outcome="on_time"} 1`)
}

func TestDelayStats(t *testing.T) {
	var s DelayStats
	assert.Equal(t, 0.0, s.StdDev())

	for _, d := range []int{60, 120, 180, -240} {
		s.Observe(d)
	}
	assert.Equal(t, 4, s.Count)
	assert.InDelta(t, 30, s.Mean, 1e-9)
	// deviations 30, 90, 150, -270: squares sum to 104400
	assert.InDelta(t, 161.55494421403512, s.StdDev(), 1e-9)
	assert.Equal(t, 240, s.Max)
}
