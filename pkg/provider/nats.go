package provider

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/1F47E/go-proximity/pkg/models"
)

// PositionMessage is the JSON payload carried on the position subject
type PositionMessage struct {
	DeviceID  string    `json:"deviceId,omitempty"`
	Timestamp time.Time `json:"timestamp"`
	Lat       float64   `json:"lat"`
	Lon       float64   `json:"lon"`
	Accuracy  *float64  `json:"accuracy,omitempty"`
}

// DecodePositionMessage parses a payload into a sample. A missing timestamp
// is replaced by the receive time.
func DecodePositionMessage(data []byte) (models.PositionSample, error) {
	var msg PositionMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return models.PositionSample{}, fmt.Errorf("decode position: %w", err)
	}
	coord := models.Coordinate{Lat: msg.Lat, Lon: msg.Lon}
	if !coord.Valid() {
		return models.PositionSample{}, fmt.Errorf("position out of range (%.6f, %.6f)", msg.Lat, msg.Lon)
	}
	ts := msg.Timestamp
	if ts.IsZero() {
		ts = time.Now()
	}
	return models.PositionSample{Coords: &coord, Accuracy: msg.Accuracy, Timestamp: ts}, nil
}

// EncodePositionMessage is the inverse of DecodePositionMessage
func EncodePositionMessage(deviceID string, sample models.PositionSample) ([]byte, error) {
	if sample.Coords == nil {
		return nil, errors.New("sample has no coordinates")
	}
	return json.Marshal(PositionMessage{
		DeviceID:  deviceID,
		Timestamp: sample.Timestamp,
		Lat:       sample.Coords.Lat,
		Lon:       sample.Coords.Lon,
		Accuracy:  sample.Accuracy,
	})
}

func connectNATS(url, name string, logger *slog.Logger) (*nats.Conn, error) {
	return nats.Connect(url,
		nats.Name(name),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			logger.Warn("nats_disconnected", "err", err)
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			logger.Info("nats_reconnected", "url", nc.ConnectedUrl())
		}),
		nats.ClosedHandler(func(_ *nats.Conn) {
			logger.Info("nats_closed")
		}),
	)
}

// NATSSource publishes positions received on a NATS subject into a Feed
type NATSSource struct {
	nc     *nats.Conn
	sub    *nats.Subscription
	logger *slog.Logger
}

// ListenNATS connects to url and feeds every valid message on subject into feed
func ListenNATS(url, subject string, feed *Feed, logger *slog.Logger) (*NATSSource, error) {
	if logger == nil {
		logger = slog.Default()
	}
	nc, err := connectNATS(url, "go-proximity-source", logger)
	if err != nil {
		return nil, fmt.Errorf("nats connect: %w", err)
	}

	src := &NATSSource{nc: nc, logger: logger}
	src.sub, err = nc.Subscribe(subject, func(m *nats.Msg) {
		sample, err := DecodePositionMessage(m.Data)
		if err != nil {
			logger.Warn("nats_bad_position", "subject", m.Subject, "err", err)
			return
		}
		feed.Publish(sample)
	})
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("nats subscribe %s: %w", subject, err)
	}

	logger.Info("nats_listening", "subject", subject)
	return src, nil
}

// Close drains the subscription and the connection. Drain closes the
// connection itself once pending messages are handled.
func (s *NATSSource) Close() {
	if s.nc != nil {
		_ = s.nc.Drain()
	}
}

// NATSPublisher sends samples to a subject, e.g. when replaying a track for remote listeners
type NATSPublisher struct {
	nc       *nats.Conn
	subject  string
	deviceID string
	logger   *slog.Logger
}

// NewNATSPublisher connects to url and publishes on subject
func NewNATSPublisher(url, subject, deviceID string, logger *slog.Logger) (*NATSPublisher, error) {
	if logger == nil {
		logger = slog.Default()
	}
	nc, err := connectNATS(url, "go-proximity-publisher", logger)
	if err != nil {
		return nil, fmt.Errorf("nats connect: %w", err)
	}
	return &NATSPublisher{nc: nc, subject: subject, deviceID: deviceID, logger: logger}, nil
}

// Publish encodes and sends one sample
func (p *NATSPublisher) Publish(sample models.PositionSample) error {
	b, err := EncodePositionMessage(p.deviceID, sample)
	if err != nil {
		return err
	}
	return p.nc.Publish(p.subject, b)
}

// Close flushes pending messages and closes the connection
func (p *NATSPublisher) Close() {
	if p.nc != nil {
		if err := p.nc.Flush(); err != nil {
			p.logger.Warn("nats_flush_error", "err", err)
		}
		p.nc.Close()
	}
}
