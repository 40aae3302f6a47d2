package display

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/anafarta/telemetry-link/pkg/core"
)

// Kind identifies a display event.
type Kind int

const (
	KindStatusLine Kind = iota
	KindPeersUpdated
	KindNearestUpdated
	KindReauthRequired
)

func (k Kind) String() string {
	switch k {
	case KindStatusLine:
		return "status_line"
	case KindPeersUpdated:
		return "peers_updated"
	case KindNearestUpdated:
		return "nearest_updated"
	case KindReauthRequired:
		return "reauth_required"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Event is one update headed for the display.
type Event struct {
	Kind       Kind
	Server     string
	Line       string
	Peers      []core.AnnotatedPeer
	Nearest    core.NearestPeerResult
	HasNearest bool
	Timestamp  time.Time
}

// Logger interface for pluggable logging.
type Logger interface {
	Debug(msg string, keysAndValues ...any)
	Info(msg string, keysAndValues ...any)
	Error(msg string, keysAndValues ...any)
}

// Option configures a Dispatcher.
type Option func(*config)

type config struct {
	bufferSize int
	blocking   bool
	logged     bool
}

// Buffered makes delivery async with a queue of the given size. Re-auth
// events always wait for room in the queue.
func Buffered(size int) Option {
	return func(c *config) {
		c.bufferSize = size
	}
}

// Blocking makes a buffered dispatcher block when the queue is full instead of dropping.
func Blocking() Option {
	return func(c *config) {
		c.blocking = true
	}
}

// Logged adds debug logging of every delivered event.
func Logged() Option {
	return func(c *config) {
		c.logged = true
	}
}

// Dispatcher delivers display events to its sinks from a single goroutine, in
// the order they were published. It implements Sink itself so producers never
// touch the display directly.
type Dispatcher struct {
	logger Logger
	cfg    config

	// OTEL metrics
	queueSize metric.Int64ObservableGauge
	processed metric.Int64Counter
	dropped   metric.Int64Counter

	sinksMu sync.RWMutex
	sinks   []Sink

	// mu guards buffer against a send after Close.
	mu      sync.RWMutex
	closed  bool
	buffer  chan Event
	done    chan struct{}
	deliver sync.Mutex
}

// New creates a Dispatcher. Without Buffered, events are delivered inline on
// the publishing goroutine, serialized by a lock.
// Uses the global OTel meter for metrics (no-op if not configured).
func New(logger Logger, opts ...Option) (*Dispatcher, error) {
	d := &Dispatcher{logger: logger, done: make(chan struct{})}
	for _, opt := range opts {
		opt(&d.cfg)
	}

	m := otel.Meter("github.com/anafarta/telemetry-link/internal/display")

	var err error

	d.queueSize, err = m.Int64ObservableGauge(
		"display.queue.size",
		metric.WithDescription("Current number of display events in queue"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating queue size gauge: %w", err)
	}

	_, err = m.RegisterCallback(
		func(ctx context.Context, o metric.Observer) error {
			o.ObserveInt64(d.queueSize, int64(d.Len()))
			return nil
		},
		d.queueSize,
	)
	if err != nil {
		return nil, fmt.Errorf("registering queue callback: %w", err)
	}

	d.processed, err = m.Int64Counter(
		"display.events.processed",
		metric.WithDescription("Total display events delivered"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating processed counter: %w", err)
	}

	d.dropped, err = m.Int64Counter(
		"display.events.dropped",
		metric.WithDescription("Total display events dropped due to full queue"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating dropped counter: %w", err)
	}

	if d.cfg.bufferSize > 0 {
		d.buffer = make(chan Event, d.cfg.bufferSize)
		go d.run()
	} else {
		close(d.done)
	}

	return d, nil
}

// Subscribe adds a sink. Events published before the call are not replayed.
func (d *Dispatcher) Subscribe(s Sink) {
	d.sinksMu.Lock()
	defer d.sinksMu.Unlock()
	d.sinks = append(d.sinks, s)
}

// Len returns the number of queued events.
func (d *Dispatcher) Len() int {
	if d.buffer == nil {
		return 0
	}
	return len(d.buffer)
}

// Publish queues an event. It returns an error when the queue is full in
// non-blocking mode or the dispatcher is closed.
func (d *Dispatcher) Publish(e Event) error {
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now()
	}

	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		return ErrClosed
	}

	if d.buffer == nil {
		d.deliver.Lock()
		defer d.deliver.Unlock()
		d.handle(e)
		return nil
	}

	// re-auth ends the run, so it waits for room rather than being dropped
	if d.cfg.blocking || e.Kind == KindReauthRequired {
		d.buffer <- e
		return nil
	}

	select {
	case d.buffer <- e:
		return nil
	default:
		d.dropped.Add(context.Background(), 1, metric.WithAttributes(attribute.String("kind", e.Kind.String())))
		return fmt.Errorf("%w: %s", ErrQueueFull, e.Kind)
	}
}

// Close stops accepting events, delivers what is queued and waits for the
// delivery goroutine to exit. It is safe to call more than once.
func (d *Dispatcher) Close() {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		<-d.done
		return
	}
	d.closed = true
	if d.buffer != nil {
		close(d.buffer)
	}
	d.mu.Unlock()
	<-d.done
}

func (d *Dispatcher) run() {
	defer close(d.done)
	for e := range d.buffer {
		d.handle(e)
	}
}

func (d *Dispatcher) handle(e Event) {
	var start time.Time
	if d.cfg.logged {
		start = time.Now()
		d.logger.Debug("delivering display event", "kind", e.Kind.String(), "server", e.Server)
	}

	d.sinksMu.RLock()
	sinks := d.sinks
	d.sinksMu.RUnlock()

	for _, s := range sinks {
		switch e.Kind {
		case KindStatusLine:
			s.StatusLine(e.Server, e.Line)
		case KindPeersUpdated:
			s.PeersUpdated(e.Peers)
		case KindNearestUpdated:
			s.NearestUpdated(e.Nearest, e.HasNearest)
		case KindReauthRequired:
			s.ReauthRequired(e.Server)
		default:
			d.logger.Error("unknown display event", "kind", e.Kind.String())
		}
	}

	d.processed.Add(context.Background(), 1, metric.WithAttributes(attribute.String("kind", e.Kind.String())))
	if d.cfg.logged {
		d.logger.Debug("display event delivered", "kind", e.Kind.String(), "duration", time.Since(start))
	}
}

// StatusLine publishes a status line for server.
func (d *Dispatcher) StatusLine(server, line string) {
	d.publish(Event{Kind: KindStatusLine, Server: server, Line: line})
}

// PeersUpdated publishes a new sorted peer list.
func (d *Dispatcher) PeersUpdated(peers []core.AnnotatedPeer) {
	d.publish(Event{Kind: KindPeersUpdated, Peers: peers})
}

// NearestUpdated publishes the nearest peer, or its absence.
func (d *Dispatcher) NearestUpdated(nearest core.NearestPeerResult, ok bool) {
	d.publish(Event{Kind: KindNearestUpdated, Nearest: nearest, HasNearest: ok})
}

// ReauthRequired publishes a login prompt for server.
func (d *Dispatcher) ReauthRequired(server string) {
	d.publish(Event{Kind: KindReauthRequired, Server: server})
}

func (d *Dispatcher) publish(e Event) {
	if err := d.Publish(e); err != nil {
		d.logger.Debug("display event not delivered", "kind", e.Kind.String(), "error", err)
	}
}
