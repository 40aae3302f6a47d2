package websocket

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/anafarta/telemetry-link/internal/geo"
	"github.com/anafarta/telemetry-link/pkg/core"
	"github.com/anafarta/telemetry-link/pkg/streaming"
)

// ErrNoURL is returned by Init when no live-view URL is configured.
var ErrNoURL = errors.New("websocket URL not configured")

// Config holds WebSocket backend configuration.
type Config struct {
	URL    string
	Secret string
}

// Backend streams ticks over WebSocket to a live-view server.
type Backend struct {
	stream *stream
	cfg    Config
}

// New creates a new WebSocket storage backend.
func New(cfg Config, logger *slog.Logger) *Backend {
	if logger == nil {
		logger = slog.Default()
	}
	return &Backend{
		stream: newStream(logger),
		cfg:    cfg,
	}
}

// Init connects to the WebSocket server.
func (b *Backend) Init(context.Context) error {
	if b.cfg.URL == "" {
		return ErrNoURL
	}
	return b.stream.open(b.cfg.URL, b.cfg.Secret)
}

// Close disconnects from the WebSocket server.
func (b *Backend) Close() error {
	return b.stream.close()
}

// marshalEnvelope builds a JSON-encoded Envelope from a message type and payload.
func marshalEnvelope(msgType string, payload any) ([]byte, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal %s payload: %w", msgType, err)
	}
	env := streaming.Envelope{Type: msgType, Payload: raw}
	data, err := json.Marshal(env)
	if err != nil {
		return nil, fmt.Errorf("marshal %s envelope: %w", msgType, err)
	}
	return data, nil
}

// StartSession sends the session and waits for server ack.
func (b *Backend) StartSession(ctx context.Context, s *core.Session) error {
	data, err := marshalEnvelope(streaming.TypeStartSession, streaming.StartSessionPayload{Session: s})
	if err != nil {
		return err
	}

	b.stream.setHello(data)
	return b.stream.request(ctx, data, streaming.TypeStartSession, ackTimeout)
}

// EndSession sends end_session and waits for server ack.
func (b *Backend) EndSession(ctx context.Context) error {
	data, err := marshalEnvelope(streaming.TypeEndSession, nil)
	if err != nil {
		return err
	}
	defer b.stream.setHello(nil)
	return b.stream.request(ctx, data, streaming.TypeEndSession, ackTimeout)
}

// RecordTick sends the tick without waiting (fire-and-forget).
func (b *Backend) RecordTick(_ context.Context, t core.Tick) error {
	data, err := marshalEnvelope(streaming.TypeTick, NewTickPayload(t))
	if err != nil {
		return err
	}
	b.stream.send(data)
	return nil
}

// NewTickPayload converts a tick for the live view, adding the line to the
// nearest peer when there is one.
func NewTickPayload(t core.Tick) streaming.TickPayload {
	p := streaming.TickPayload{
		Time:       t.Time,
		Outcome:    t.Outcome,
		StatusCode: t.StatusCode,
		Message:    t.Message,
		Local:      t.Local,
		Peers:      t.Peers,
		Nearest:    t.Nearest,
	}
	if t.Nearest != nil {
		if line, err := geo.LineGeoJSON(t.Local.Position(), t.Nearest.Position); err == nil {
			p.NearestLine = line
		}
	}
	return p
}
