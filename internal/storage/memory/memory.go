// internal/storage/memory/memory.go
package memory

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/anafarta/telemetry-link/internal/config"
	"github.com/anafarta/telemetry-link/internal/queue"
	"github.com/anafarta/telemetry-link/pkg/core"
)

// ErrNoSession is returned when a session is ended before one was started.
var ErrNoSession = errors.New("no session started")

// Backend keeps the most recent ticks in memory and exports them to JSON
// when a session ends.
type Backend struct {
	cfg     config.MemoryConfig
	session *core.Session
	ticks   *queue.Queue[core.Tick]

	lastExportPath string
	now            func() time.Time
	mu             sync.RWMutex
}

// New creates a new memory backend holding at most cfg.MaxTicks ticks.
func New(cfg config.MemoryConfig) *Backend {
	return &Backend{
		cfg:   cfg,
		ticks: queue.New[core.Tick](cfg.MaxTicks),
		now:   time.Now,
	}
}

// Init initializes the backend
func (b *Backend) Init(context.Context) error {
	return nil
}

// Close cleans up resources
func (b *Backend) Close() error {
	return nil
}

// StartSession begins recording a new session and drops any earlier ticks.
func (b *Backend) StartSession(_ context.Context, s *core.Session) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	cp := *s
	b.session = &cp
	b.ticks.Clear()
	return nil
}

// EndSession stamps the end time and writes the export file when an output
// directory is configured. The ticks stay readable until the next session.
func (b *Backend) EndSession(context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.session == nil {
		return ErrNoSession
	}
	b.session.EndTime = b.now()

	if b.cfg.OutputDir == "" {
		return nil
	}
	return b.exportJSON()
}

// RecordTick appends the tick, evicting the oldest once full.
func (b *Backend) RecordTick(_ context.Context, t core.Tick) error {
	b.ticks.Push(t)
	return nil
}

// RecentTicks returns up to n ticks, newest first. n <= 0 means all.
func (b *Backend) RecentTicks(n int) []core.Tick {
	ticks := b.ticks.Newest()
	if n > 0 && len(ticks) > n {
		ticks = ticks[:n]
	}
	return ticks
}

// Len returns the number of ticks held.
func (b *Backend) Len() int {
	return b.ticks.Len()
}

// Session returns a copy of the current session.
func (b *Backend) Session() (core.Session, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.session == nil {
		return core.Session{}, false
	}
	return *b.session, true
}

// LastExportPath returns the file written by the most recent EndSession.
func (b *Backend) LastExportPath() string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.lastExportPath
}
