// Package link ties the session client, the telemetry scheduler, the peer
// tracker, the display sink and the tick storage together behind the
// operations a ground-control front end calls.
package link

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/anafarta/telemetry-link/internal/api"
	"github.com/anafarta/telemetry-link/internal/display"
	"github.com/anafarta/telemetry-link/internal/scheduler"
	"github.com/anafarta/telemetry-link/internal/storage"
	"github.com/anafarta/telemetry-link/internal/tracker"
	"github.com/anafarta/telemetry-link/internal/vehicle"
	"github.com/anafarta/telemetry-link/pkg/core"
)

// ErrClosed is returned by every operation after Close.
var ErrClosed = errors.New("link service closed")

// Config holds the service settings.
type Config struct {
	TeamNumber int
	Interval   time.Duration
	Timeout    time.Duration
}

// Dependencies are the collaborators the service drives. Only Provider is
// required.
type Dependencies struct {
	Provider vehicle.Provider
	Sink     display.Sink
	Storage  storage.Backend
	Logger   *slog.Logger
	// Transport replaces the HTTP transport of every session, mostly for tests.
	Transport http.RoundTripper
}

// Service is safe for concurrent use.
type Service struct {
	cfg       Config
	provider  vehicle.Provider
	sink      display.Sink
	storage   storage.Backend
	logger    *slog.Logger
	transport http.RoundTripper

	tracker   *tracker.Tracker
	scheduler *scheduler.Scheduler
	active    atomic.Pointer[string]

	mu        sync.Mutex
	session   *api.Session
	username  string
	recording bool
	closed    bool
}

// New creates an idle, disconnected service. The storage backend must
// already be initialized; the service closes it on Close.
func New(cfg Config, deps Dependencies) (*Service, error) {
	if deps.Sink == nil {
		deps.Sink = display.NopSink{}
	}
	if deps.Storage == nil {
		deps.Storage = storage.Discard{}
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = api.DefaultTimeout
	}

	s := &Service{
		cfg:       cfg,
		provider:  deps.Provider,
		sink:      deps.Sink,
		storage:   deps.Storage,
		logger:    deps.Logger,
		transport: deps.Transport,
		tracker:   tracker.New(),
	}

	sched, err := scheduler.New(scheduler.Config{
		Interval:   cfg.Interval,
		TeamNumber: cfg.TeamNumber,
	}, deps.Provider, s.tracker, deps.Sink,
		scheduler.WithLogger(deps.Logger),
		scheduler.WithRecorder(deps.Storage),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create scheduler: %w", err)
	}
	s.scheduler = sched
	return s, nil
}

// Connect opens a session to the server at urlText. Any previous session is
// torn down first. An unreachable server still yields a session; only an
// invalid address fails.
func (s *Service) Connect(ctx context.Context, urlText string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	s.teardownLocked(ctx)

	opts := []api.Option{api.WithTimeout(s.cfg.Timeout), api.WithLogger(s.logger)}
	if s.transport != nil {
		opts = append(opts, api.WithTransport(s.transport))
	}
	session, err := api.Connect(ctx, urlText, opts...)
	if err != nil {
		s.status(slog.LevelError, urlText, fmt.Sprintf("Connection failed: %v", err))
		return err
	}
	s.session = session
	host := session.Host()
	s.active.Store(&host)

	if probeErr := session.ProbeErr(); probeErr != nil {
		s.status(slog.LevelWarn, session.Host(), fmt.Sprintf("Connected to %s, server did not answer the probe: %v", session.BaseURL(), probeErr))
	} else {
		s.status(slog.LevelInfo, session.Host(), fmt.Sprintf("Connected to %s", session.BaseURL()))
	}
	return nil
}

// Login authenticates the current session.
func (s *Service) Login(ctx context.Context, username, password string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	if s.session == nil {
		return scheduler.ErrNoSession
	}

	host := s.session.Host()
	if err := s.session.Login(ctx, username, password); err != nil {
		level := slog.LevelWarn
		if errors.Is(err, api.ErrNetwork) {
			level = slog.LevelError
		}
		s.status(level, host, fmt.Sprintf("Login failed: %v", err))
		return err
	}
	s.username = username
	s.status(slog.LevelInfo, host, fmt.Sprintf("Logged in as %s", username))
	return nil
}

// Start begins the telemetry loop and opens a storage session for it. It
// fails without a session or when the session is not logged in; no
// telemetry is sent in that case.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	if s.session == nil {
		return scheduler.ErrNoSession
	}
	if !s.session.IsLoggedIn() {
		s.status(slog.LevelWarn, s.session.Host(), "Cannot start telemetry: not logged in")
		return scheduler.ErrNotLoggedIn
	}
	if s.scheduler.State() == scheduler.StateRunning {
		return nil
	}

	// the first tick fires at once, so the storage session has to exist first
	s.startRecordingLocked(ctx)
	if err := s.scheduler.Start(s.session); err != nil {
		s.endRecordingLocked(ctx)
		return err
	}
	return nil
}

// Stop halts the telemetry loop and closes the storage session once the
// post in flight, if any, has finished.
func (s *Service) Stop(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopLocked(ctx)
}

// State reports whether telemetry is running.
func (s *Service) State() scheduler.State {
	return s.scheduler.State()
}

// Stats returns the scheduler counters.
func (s *Service) Stats() scheduler.Stats {
	return s.scheduler.Stats()
}

// IsLoggedIn reports whether the current session holds credentials.
func (s *Service) IsLoggedIn() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.session != nil && s.session.IsLoggedIn()
}

// CurrentNearestPeer returns the nearest peer of the last successful tick.
func (s *Service) CurrentNearestPeer() (core.NearestPeerResult, bool) {
	return s.tracker.Nearest()
}

// CurrentPeerList returns the peers of the last successful tick in server
// order.
func (s *Service) CurrentPeerList() []core.PeerRecord {
	return s.tracker.Peers()
}

// AnnotatedPeers returns the peers sorted by distance, closest first.
func (s *Service) AnnotatedPeers() []core.AnnotatedPeer {
	return s.tracker.Annotated()
}

// ActiveServer returns the host of the current session or "".
func (s *Service) ActiveServer() string {
	if p := s.active.Load(); p != nil {
		return *p
	}
	return ""
}

// LogContext adds the active server to log records. It matches
// logging.ContextProvider and never takes the service lock.
func (s *Service) LogContext() []slog.Attr {
	if server := s.ActiveServer(); server != "" {
		return []slog.Attr{slog.String("activeServer", server)}
	}
	return nil
}

// Close tears the session down, closes the storage backend and then the
// sink when it has a Close method, such as a display.Dispatcher. Further
// calls are no-ops.
func (s *Service) Close(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	s.teardownLocked(ctx)

	err := s.storage.Close()
	if c, ok := s.sink.(interface{ Close() }); ok {
		c.Close()
	}
	if err != nil {
		return fmt.Errorf("failed to close storage: %w", err)
	}
	return nil
}

func (s *Service) stopLocked(ctx context.Context) {
	s.scheduler.Stop()
	// a post still in flight must not land on the next session
	s.scheduler.Wait()
	if s.recording {
		s.endRecordingLocked(ctx)
	}
}

// teardownLocked stops telemetry, closes the session and forgets the peers.
func (s *Service) teardownLocked(ctx context.Context) {
	s.stopLocked(ctx)
	if s.session == nil {
		return
	}
	s.session.Close()
	s.logger.Debug("Session closed", "server", s.session.Host())
	s.session = nil
	s.active.Store(nil)
	s.username = ""
	s.tracker.Reset()
	s.sink.PeersUpdated(nil)
	s.sink.NearestUpdated(core.NearestPeerResult{}, false)
}

func (s *Service) startRecordingLocked(ctx context.Context) {
	if s.recording {
		return
	}
	rec := &core.Session{
		Server:     s.session.Host(),
		Username:   s.username,
		TeamNumber: s.cfg.TeamNumber,
		StartTime:  time.Now().UTC(),
	}
	if err := s.storage.StartSession(ctx, rec); err != nil {
		s.logger.Warn("Failed to start storage session", "server", rec.Server, "error", err)
		return
	}
	s.recording = true
}

func (s *Service) endRecordingLocked(ctx context.Context) {
	if !s.recording {
		return
	}
	s.recording = false
	if err := s.storage.EndSession(ctx); err != nil {
		s.logger.Warn("Failed to end storage session", "error", err)
	}
}

// status emits the single status line of a connect or login.
func (s *Service) status(level slog.Level, server, msg string) {
	s.logger.Log(context.Background(), level, msg, "server", server)
	s.sink.StatusLine(server, msg)
}
