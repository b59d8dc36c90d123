package publisher

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"
)

// DefaultSubjectPrefix is prepended to every published subject.
const DefaultSubjectPrefix = "transit.schedule"

// PublisherMetrics receives publish outcomes.
type PublisherMetrics interface {
	PublishObserve(d time.Duration, err error)
	NATSSetConnected(connected bool)
}

type conn interface {
	Publish(subject string, data []byte) error
}

// NATSPublisher announces refreshed effective schedules on NATS.
type NATSPublisher struct {
	nc      *nats.Conn
	pub     conn
	prefix  string
	logger  *zap.Logger
	metrics PublisherMetrics
}

// StopMessage is one delay-adjusted stop of a published schedule.
type StopMessage struct {
	StopSequence int       `json:"stopSequence"`
	Arrival      time.Time `json:"arrival"`
	Departure    time.Time `json:"departure"`
}

// ScheduleMessage announces the effective stop times of one trip instance.
type ScheduleMessage struct {
	TripID    string        `json:"tripId"`
	StartDate string        `json:"startDate"`
	Timestamp time.Time     `json:"timestamp"`
	Stops     []StopMessage `json:"stops"`
}

func NewNATSPublisher(url, prefix string, logger *zap.Logger, m PublisherMetrics) (*NATSPublisher, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	nc, err := nats.Connect(url,
		nats.Name("transitd"),
		nats.DisconnectHandler(func(_ *nats.Conn) {
			if m != nil {
				m.NATSSetConnected(false)
			}
			logger.Warn("nats disconnected")
		}),
		nats.ReconnectHandler(func(_ *nats.Conn) {
			if m != nil {
				m.NATSSetConnected(true)
			}
			logger.Info("nats reconnected")
		}),
		nats.ClosedHandler(func(_ *nats.Conn) {
			if m != nil {
				m.NATSSetConnected(false)
			}
			logger.Info("nats closed")
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to nats: %w", err)
	}
	if m != nil {
		m.NATSSetConnected(true)
	}
	p := newPublisher(nc, prefix, logger, m)
	p.nc = nc
	return p, nil
}

func newPublisher(pub conn, prefix string, logger *zap.Logger, m PublisherMetrics) *NATSPublisher {
	if prefix == "" {
		prefix = DefaultSubjectPrefix
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &NATSPublisher{pub: pub, prefix: prefix, logger: logger, metrics: m}
}

func (p *NATSPublisher) Close() {
	if p.nc != nil {
		p.nc.Drain()
		p.nc.Close()
	}
}

// Subject returns the subject a trip instance's schedule is published on.
func (p *NATSPublisher) Subject(tripID, startDate string) string {
	return fmt.Sprintf("%s.%s.%s", p.prefix, subjectToken(tripID), subjectToken(startDate))
}

// PublishSchedule sends msg as JSON.
func (p *NATSPublisher) PublishSchedule(_ context.Context, msg ScheduleMessage) error {
	b, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to encode schedule message: %w", err)
	}
	subject := p.Subject(msg.TripID, msg.StartDate)
	p.logger.Debug("nats publish", zap.String("subject", subject), zap.Int("stops", len(msg.Stops)))

	start := time.Now()
	err = p.pub.Publish(subject, b)
	if p.metrics != nil {
		p.metrics.PublishObserve(time.Since(start), err)
	}
	if err != nil {
		return fmt.Errorf("failed to publish %s: %w", subject, err)
	}
	return nil
}

func subjectToken(s string) string {
	s = strings.TrimSpace(s)
	// NATS token cannot contain spaces, '>', '*', or trailing '.'
	repl := strings.NewReplacer(" ", "_", ".", "_", ">", "_", "*", "_", "/", "_", "\t", "_")
	s = repl.Replace(s)
	if s == "" {
		s = "_"
	}
	return s
}
