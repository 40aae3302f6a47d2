// Package scheduler posts the local vehicle state to the competition server
// on a fixed period and fans the replies out to the tracker and display.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/anafarta/telemetry-link/internal/api"
	"github.com/anafarta/telemetry-link/internal/display"
	"github.com/anafarta/telemetry-link/internal/tracker"
	"github.com/anafarta/telemetry-link/internal/vehicle"
	"github.com/anafarta/telemetry-link/pkg/core"
)

// DefaultInterval is the telemetry period.
const DefaultInterval = time.Second

var (
	ErrNoSession   = errors.New("no server session")
	ErrNotLoggedIn = errors.New("not logged in")
)

// Poster is the part of api.Session the scheduler needs.
type Poster interface {
	Host() string
	IsLoggedIn() bool
	PostTelemetry(ctx context.Context, state core.LocalVehicleState) api.Result
}

// Recorder stores the outcome of each tick.
type Recorder interface {
	RecordTick(ctx context.Context, t core.Tick) error
}

// State of the scheduler.
type State int

const (
	StateIdle State = iota
	StateRunning
)

func (s State) String() string {
	if s == StateRunning {
		return "running"
	}
	return "idle"
}

// Config holds scheduler settings.
type Config struct {
	Interval   time.Duration
	TeamNumber int
}

// Option configures a Scheduler.
type Option func(*Scheduler)

// WithLogger sets the logger that receives one line per tick outcome.
func WithLogger(l *slog.Logger) Option {
	return func(s *Scheduler) {
		s.logger = l
	}
}

// WithRecorder stores every tick.
func WithRecorder(r Recorder) Option {
	return func(s *Scheduler) {
		s.recorder = r
	}
}

// WithClock replaces time.Now, mostly for tests.
func WithClock(now func() time.Time) Option {
	return func(s *Scheduler) {
		s.now = now
	}
}

// Stats counts ticks since the scheduler was created.
type Stats struct {
	Ticks   int64
	Skipped int64
	Posts   int64
}

// Scheduler runs the telemetry loop. At most one post is in flight; a tick
// that fires while the previous post is unresolved is skipped.
type Scheduler struct {
	cfg      Config
	provider vehicle.Provider
	tracker  *tracker.Tracker
	sink     display.Sink
	recorder Recorder
	logger   *slog.Logger
	now      func() time.Time

	mu     sync.Mutex
	state  State
	run    uint64
	cancel context.CancelFunc
	done   chan struct{}

	inFlight atomic.Bool
	posts    sync.WaitGroup

	ticks, skipped, posted atomic.Int64

	// OTEL metrics
	tickCounter    metric.Int64Counter
	skippedCounter metric.Int64Counter
	outcomeCounter metric.Int64Counter
}

// New creates an idle scheduler. sink may be nil.
// Uses the global OTel meter for metrics (no-op if not configured).
func New(cfg Config, provider vehicle.Provider, tr *tracker.Tracker, sink display.Sink, opts ...Option) (*Scheduler, error) {
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultInterval
	}
	if tr == nil {
		tr = tracker.New()
	}
	if sink == nil {
		sink = display.NopSink{}
	}
	s := &Scheduler{
		cfg:      cfg,
		provider: provider,
		tracker:  tr,
		sink:     sink,
		logger:   slog.Default(),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}

	m := otel.Meter("github.com/anafarta/telemetry-link/internal/scheduler")
	var err error
	s.tickCounter, err = m.Int64Counter(
		"scheduler.ticks",
		metric.WithDescription("Total telemetry ticks fired"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating ticks counter: %w", err)
	}
	s.skippedCounter, err = m.Int64Counter(
		"scheduler.ticks.skipped",
		metric.WithDescription("Ticks skipped because a post was still in flight"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating skipped counter: %w", err)
	}
	s.outcomeCounter, err = m.Int64Counter(
		"scheduler.outcomes",
		metric.WithDescription("Telemetry post outcomes"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating outcome counter: %w", err)
	}
	return s, nil
}

// State returns the current state.
func (s *Scheduler) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Stats returns the tick counters.
func (s *Scheduler) Stats() Stats {
	return Stats{Ticks: s.ticks.Load(), Skipped: s.skipped.Load(), Posts: s.posted.Load()}
}

// Start begins posting through session. The first tick fires immediately.
// Starting a running scheduler is a no-op.
func (s *Scheduler) Start(session Poster) error {
	if session == nil {
		return ErrNoSession
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == StateRunning {
		return nil
	}
	if !session.IsLoggedIn() {
		return ErrNotLoggedIn
	}

	ctx, cancel := context.WithCancel(context.Background())
	s.run++
	s.state = StateRunning
	s.cancel = cancel
	s.done = make(chan struct{})
	go s.loop(ctx, session, s.run, s.done)

	s.logger.Info("Telemetry started", "server", session.Host(), "interval", s.cfg.Interval)
	return nil
}

// Stop halts the timer. A post already in flight finishes on its own.
// Stopping an idle scheduler is a no-op.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if s.state != StateRunning {
		s.mu.Unlock()
		return
	}
	done := s.halt()
	s.mu.Unlock()

	<-done
	s.logger.Info("Telemetry stopped")
}

// Wait blocks until no post is in flight.
func (s *Scheduler) Wait() {
	s.posts.Wait()
}

// halt must be called with mu held.
func (s *Scheduler) halt() chan struct{} {
	s.state = StateIdle
	s.cancel()
	return s.done
}

// haltRun stops the loop only if it is still the run identified by run.
func (s *Scheduler) haltRun(run uint64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateRunning || s.run != run {
		return false
	}
	s.halt()
	return true
}

func (s *Scheduler) loop(ctx context.Context, session Poster, run uint64, done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()

	s.tick(ctx, session, run)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.tick(ctx, session, run)
		}
	}
}

func (s *Scheduler) tick(ctx context.Context, session Poster, run uint64) {
	if ctx.Err() != nil {
		return
	}
	s.ticks.Add(1)
	s.tickCounter.Add(ctx, 1)

	if !s.inFlight.CompareAndSwap(false, true) {
		s.skipped.Add(1)
		s.skippedCounter.Add(ctx, 1)
		s.logger.Debug("Tick skipped, previous post still in flight", "server", session.Host())
		return
	}

	s.posts.Add(1)
	go func() {
		defer s.posts.Done()
		defer s.inFlight.Store(false)
		// the post outlives Stop; the client timeout bounds it
		s.post(context.WithoutCancel(ctx), session, run)
	}()
}

func (s *Scheduler) post(ctx context.Context, session Poster, run uint64) {
	s.posted.Add(1)
	host := session.Host()
	state := vehicle.Snapshot(s.provider, s.cfg.TeamNumber, s.now())

	res := session.PostTelemetry(ctx, state)
	s.outcomeCounter.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", res.Outcome.String())))

	msg := res.Message()
	level := slog.LevelInfo
	switch {
	case res.Outcome == api.OutcomeSuccess && res.DecodeErr != nil:
		level = slog.LevelWarn
	case res.Outcome == api.OutcomeNetworkError, res.Outcome == api.OutcomeServerFault:
		level = slog.LevelError
	case res.Outcome != api.OutcomeSuccess:
		level = slog.LevelWarn
	}
	s.logger.Log(ctx, level, msg, "server", host, "outcome", res.Outcome.String(), "status", res.StatusCode)
	s.sink.StatusLine(host, msg)

	tick := core.Tick{
		Time:       s.now(),
		Server:     host,
		Outcome:    res.Outcome.String(),
		StatusCode: res.StatusCode,
		Message:    msg,
		Local:      state,
		ServerTime: res.ServerTime,
	}

	if res.PeersUpdated() {
		nearest, ok := s.tracker.Update(state.Position(), res.Peers)
		annotated := s.tracker.Annotated()
		s.sink.PeersUpdated(annotated)
		s.sink.NearestUpdated(nearest, ok)
		tick.Peers = annotated
		if ok {
			tick.Nearest = &nearest
		}
	}

	if res.Outcome == api.OutcomeUnauthorized {
		if s.haltRun(run) {
			s.logger.Debug("Telemetry halted until next login", "server", host)
		}
		s.sink.ReauthRequired(host)
	}

	if s.recorder != nil {
		if err := s.recorder.RecordTick(ctx, tick); err != nil {
			s.logger.Warn("Failed to record tick", "server", host, "error", err)
		}
	}
}
