package monitor

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/anafarta/telemetry-link/internal/scheduler"
	"github.com/anafarta/telemetry-link/pkg/core"
)

// DefaultInterval is how often the status is refreshed.
const DefaultInterval = 30 * time.Second

// Source is the part of link.Service the monitor reads.
type Source interface {
	ActiveServer() string
	State() scheduler.State
	Stats() scheduler.Stats
	CurrentNearestPeer() (core.NearestPeerResult, bool)
	CurrentPeerList() []core.PeerRecord
}

// Dependencies holds all dependencies for the monitor service
type Dependencies struct {
	Source Source
	Logger *slog.Logger
	// StatusFile is rewritten with the JSON status on every refresh. Empty
	// disables the file.
	StatusFile string
	Interval   time.Duration
}

// Status is one snapshot of the telemetry link.
type Status struct {
	Time            time.Time `json:"time"`
	Server          string    `json:"server"`
	State           string    `json:"state"`
	Ticks           int64     `json:"ticks"`
	Skipped         int64     `json:"skipped"`
	Posts           int64     `json:"posts"`
	Peers           int       `json:"peers"`
	NearestTeam     *int      `json:"nearestTeam,omitempty"`
	NearestDistance *float64  `json:"nearestDistance,omitempty"`
}

// Service manages status monitoring
type Service struct {
	deps      Dependencies
	isRunning bool
	mu        sync.RWMutex
	stopChan  chan struct{}
	done      chan struct{}
}

// NewService creates a new monitor service
func NewService(deps Dependencies) *Service {
	if deps.Interval <= 0 {
		deps.Interval = DefaultInterval
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	return &Service{
		deps:     deps,
		stopChan: make(chan struct{}),
	}
}

// IsRunning returns whether the status monitor is running
func (s *Service) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.isRunning
}

// GetStatus returns the current link status.
func (s *Service) GetStatus() Status {
	src := s.deps.Source
	st := src.Stats()
	status := Status{
		Time:    time.Now().UTC(),
		Server:  src.ActiveServer(),
		State:   src.State().String(),
		Ticks:   st.Ticks,
		Skipped: st.Skipped,
		Posts:   st.Posts,
		Peers:   len(src.CurrentPeerList()),
	}
	if nearest, ok := src.CurrentNearestPeer(); ok {
		status.NearestTeam = &nearest.TeamNumber
		status.NearestDistance = &nearest.DistanceMeters
	}
	return status
}

// LogAttrs returns the status as slog key-value pairs.
func (st Status) LogAttrs() []any {
	attrs := []any{
		"server", st.Server,
		"state", st.State,
		"ticks", st.Ticks,
		"skipped", st.Skipped,
		"posts", st.Posts,
		"peers", st.Peers,
	}
	if st.NearestTeam != nil {
		attrs = append(attrs, "nearestTeam", *st.NearestTeam, "nearestDistance", *st.NearestDistance)
	}
	return attrs
}

// WriteStatusFile replaces the content of path with the indented status.
func WriteStatusFile(path string, st Status) error {
	data, err := json.MarshalIndent(st, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal status: %w", err)
	}
	if err := os.WriteFile(path, append(data, '\n'), 0644); err != nil {
		return fmt.Errorf("failed to write status file: %w", err)
	}
	return nil
}

// Start starts the status monitor goroutine
func (s *Service) Start() error {
	s.mu.Lock()
	if s.isRunning {
		s.mu.Unlock()
		return nil
	}
	s.isRunning = true
	s.stopChan = make(chan struct{})
	s.done = make(chan struct{})
	stop, done := s.stopChan, s.done
	s.mu.Unlock()

	go func() {
		defer close(done)

		logger := s.deps.Logger
		logger.Debug("Starting status monitor", "interval", s.deps.Interval, "file", s.deps.StatusFile)

		ticker := time.NewTicker(s.deps.Interval)
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
				s.refresh()
			}
		}
	}()

	return nil
}

// refresh logs the status and rewrites the status file.
func (s *Service) refresh() {
	st := s.GetStatus()
	s.deps.Logger.Info("Telemetry status", st.LogAttrs()...)
	if s.deps.StatusFile == "" {
		return
	}
	if err := WriteStatusFile(s.deps.StatusFile, st); err != nil {
		s.deps.Logger.Error("Error writing status file", "error", err)
	}
}

// Stop stops the status monitor and waits for its goroutine. The final
// status is written once more.
func (s *Service) Stop() {
	s.mu.Lock()
	if !s.isRunning {
		s.mu.Unlock()
		return
	}
	s.isRunning = false
	close(s.stopChan)
	done := s.done
	s.mu.Unlock()

	<-done
	s.refresh()
}
