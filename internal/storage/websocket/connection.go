package websocket

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"sync"
	"time"

	ws "github.com/gorilla/websocket"

	"github.com/anafarta/telemetry-link/pkg/streaming"
)

const (
	outboxSize = 1024
	maxRedials = 10
	maxBackoff = 30 * time.Second
	writeWait  = 10 * time.Second
	ackTimeout = 10 * time.Second
)

var errStreamClosed = errors.New("live-view stream closed")

// stream owns one live-view socket. A single goroutine writes to it and
// redials after failures. Waiters for server acks are keyed by message type.
type stream struct {
	target string
	dialer *ws.Dialer
	logger *slog.Logger

	outbox chan []byte
	quit   chan struct{}
	exited chan struct{}
	once   sync.Once

	mu      sync.Mutex
	started bool
	hello   []byte
	waiters map[string]chan struct{}
}

func newStream(logger *slog.Logger) *stream {
	return &stream{
		dialer:  &ws.Dialer{HandshakeTimeout: writeWait},
		logger:  logger,
		outbox:  make(chan []byte, outboxSize),
		quit:    make(chan struct{}),
		exited:  make(chan struct{}),
		waiters: make(map[string]chan struct{}),
	}
}

// open dials once and starts the writer. The secret travels as a query
// parameter.
func (s *stream) open(rawURL, secret string) error {
	u, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("invalid websocket URL: %w", err)
	}
	q := u.Query()
	q.Set("secret", secret)
	u.RawQuery = q.Encode()
	s.target = u.String()

	conn, err := s.dial()
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.started = true
	s.mu.Unlock()
	go s.run(conn)
	return nil
}

func (s *stream) dial() (*ws.Conn, error) {
	conn, _, err := s.dialer.Dial(s.target, nil)
	if err != nil {
		return nil, fmt.Errorf("websocket dial failed: %w", err)
	}
	return conn, nil
}

// setHello stores the message written first on every reconnect, so the
// server can tell which session the following ticks belong to. nil clears it.
func (s *stream) setHello(msg []byte) {
	s.mu.Lock()
	s.hello = msg
	s.mu.Unlock()
}

func (s *stream) run(conn *ws.Conn) {
	defer close(s.exited)
	for {
		err := s.serve(conn)
		if err == nil {
			return
		}
		s.logger.Warn("Live-view connection lost", "error", err)
		if conn = s.redial(); conn == nil {
			return
		}
	}
}

// serve pumps the outbox into conn until it fails or the stream is closed,
// which returns nil.
func (s *stream) serve(conn *ws.Conn) error {
	readErr := make(chan error, 1)
	go func() { readErr <- s.readAcks(conn) }()

	for {
		select {
		case <-s.quit:
			_ = conn.WriteControl(ws.CloseMessage,
				ws.FormatCloseMessage(ws.CloseNormalClosure, ""), time.Now().Add(writeWait))
			_ = conn.Close()
			return nil
		case err := <-readErr:
			_ = conn.Close()
			return err
		case msg := <-s.outbox:
			if err := writeText(conn, msg); err != nil {
				_ = conn.Close()
				return err
			}
		}
	}
}

func writeText(conn *ws.Conn, msg []byte) error {
	if err := conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		return err
	}
	return conn.WriteMessage(ws.TextMessage, msg)
}

func (s *stream) readAcks(conn *ws.Conn) error {
	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			return err
		}
		var ack streaming.AckMessage
		if json.Unmarshal(raw, &ack) != nil || ack.Type != streaming.TypeAck {
			s.logger.Debug("Ignoring live-view message", "raw", string(raw))
			continue
		}
		s.mu.Lock()
		if ch, ok := s.waiters[ack.For]; ok {
			close(ch)
			delete(s.waiters, ack.For)
		}
		s.mu.Unlock()
	}
}

// redial retries with doubling backoff and replays the hello message. It
// returns nil when the stream is closed or every attempt failed.
func (s *stream) redial() *ws.Conn {
	backoff := time.Second
	for attempt := 1; attempt <= maxRedials; attempt++ {
		select {
		case <-s.quit:
			return nil
		case <-time.After(backoff):
		}
		backoff = min(2*backoff, maxBackoff)

		conn, err := s.dial()
		if err != nil {
			s.logger.Warn("Live-view redial failed", "attempt", attempt, "error", err)
			continue
		}
		s.mu.Lock()
		hello := s.hello
		s.mu.Unlock()
		if hello != nil {
			if err := writeText(conn, hello); err != nil {
				s.logger.Warn("Live-view session replay failed", "attempt", attempt, "error", err)
				_ = conn.Close()
				continue
			}
		}
		s.logger.Info("Live-view reconnected", "attempt", attempt)
		return conn
	}
	s.logger.Error("Giving up on live-view server", "attempts", maxRedials)
	return nil
}

// send queues msg and never blocks. A full outbox drops it.
func (s *stream) send(msg []byte) {
	select {
	case s.outbox <- msg:
	default:
		s.logger.Warn("Live-view outbox full, dropping message")
	}
}

// request sends msg and waits until the server acks kind.
func (s *stream) request(ctx context.Context, msg []byte, kind string, timeout time.Duration) error {
	acked := make(chan struct{})
	s.mu.Lock()
	s.waiters[kind] = acked
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		if s.waiters[kind] == acked {
			delete(s.waiters, kind)
		}
		s.mu.Unlock()
	}()

	s.send(msg)

	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case <-acked:
		return nil
	case <-timer.C:
		return fmt.Errorf("timeout waiting for ack of %q", kind)
	case <-ctx.Done():
		return ctx.Err()
	case <-s.quit:
		return fmt.Errorf("%w while waiting for ack of %q", errStreamClosed, kind)
	}
}

// close stops the writer, sending a close frame on the live socket.
func (s *stream) close() error {
	s.once.Do(func() { close(s.quit) })
	s.mu.Lock()
	started := s.started
	s.mu.Unlock()
	if started {
		<-s.exited
	}
	return nil
}
