// Package gormstorage records ticks through GORM into Postgres or SQLite,
// with an internal queue drained by a background writer goroutine.
package gormstorage

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/anafarta/telemetry-link/internal/database"
	"github.com/anafarta/telemetry-link/internal/model"
	"github.com/anafarta/telemetry-link/internal/model/convert"
	"github.com/anafarta/telemetry-link/internal/queue"
	"github.com/anafarta/telemetry-link/pkg/core"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// DefaultFlushInterval is how often queued ticks are written.
const DefaultFlushInterval = 2 * time.Second

var (
	// ErrNoDatabase is returned by Init when no DB was injected.
	ErrNoDatabase = errors.New("no database connection")
	// ErrNoSession is returned when a session is ended before one was started.
	ErrNoSession = errors.New("no session started")
)

// Dependencies holds all dependencies for the GORM storage backend.
type Dependencies struct {
	DB            *gorm.DB
	Logger        *slog.Logger
	TeamName      string
	FlushInterval time.Duration
}

// Backend implements storage.Backend using GORM with queue-based batch writes.
type Backend struct {
	deps      Dependencies
	ticks     *queue.Queue[core.Tick]
	sessionID atomic.Uint64

	mu      sync.Mutex // serializes flushes and session changes
	session core.Session

	stopChan  chan struct{}
	done      chan struct{}
	closeOnce sync.Once
}

// New creates a new GORM storage backend.
func New(deps Dependencies) *Backend {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.FlushInterval <= 0 {
		deps.FlushInterval = DefaultFlushInterval
	}
	return &Backend{
		deps:  deps,
		ticks: queue.New[core.Tick](0),
	}
}

// Init runs schema migration and starts the DB writer goroutine.
func (b *Backend) Init(context.Context) error {
	if b.deps.DB == nil {
		return ErrNoDatabase
	}
	if err := database.Migrate(b.deps.DB, b.deps.TeamName); err != nil {
		return fmt.Errorf("failed to setup DB: %w", err)
	}

	b.stopChan = make(chan struct{})
	b.done = make(chan struct{})
	go b.writeLoop()
	return nil
}

// Close stops the writer goroutine, writes what is still queued and closes
// the connection pool.
func (b *Backend) Close() error {
	var err error
	b.closeOnce.Do(func() {
		if b.stopChan != nil {
			close(b.stopChan)
			<-b.done
		}
		if b.deps.DB == nil {
			return
		}
		err = b.Flush(context.Background())
		if sqlDB, dbErr := b.deps.DB.DB(); dbErr == nil {
			err = errors.Join(err, sqlDB.Close())
		}
	})
	return err
}

// StartSession writes out ticks of the previous session, then inserts the
// session row. The DB-assigned ID is written back into s.
func (b *Backend) StartSession(ctx context.Context, s *core.Session) error {
	if err := b.Flush(ctx); err != nil {
		b.deps.Logger.Warn("Failed to flush ticks before new session", "error", err)
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	row := convert.CoreToSession(*s)
	row.ID = 0
	if err := b.deps.DB.WithContext(ctx).Create(&row).Error; err != nil {
		return fmt.Errorf("failed to insert session: %w", err)
	}

	s.ID = row.ID
	b.session = *s
	b.sessionID.Store(uint64(row.ID))
	b.deps.Logger.Debug("Session recorded", "session", row.ID, "server", row.Server)
	return nil
}

// EndSession writes queued ticks and stamps the session end time.
func (b *Backend) EndSession(ctx context.Context) error {
	if err := b.Flush(ctx); err != nil {
		return err
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	id := uint(b.sessionID.Load())
	if id == 0 {
		return ErrNoSession
	}
	end := time.Now()
	if err := b.deps.DB.WithContext(ctx).Model(&model.Session{}).
		Where("id = ?", id).
		Update("end_time", end).Error; err != nil {
		return fmt.Errorf("failed to close session: %w", err)
	}
	b.session.EndTime = end
	b.sessionID.Store(0)
	return nil
}

// RecordTick queues the tick for the next write cycle.
func (b *Backend) RecordTick(_ context.Context, t core.Tick) error {
	b.ticks.Push(t)
	return nil
}

// Pending returns the number of queued ticks.
func (b *Backend) Pending() int {
	return b.ticks.Len()
}

// Flush writes every queued tick under the current session. Ticks recorded
// while no session is open are dropped.
func (b *Backend) Flush(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	ticks := b.ticks.Drain()
	if len(ticks) == 0 {
		return nil
	}

	sessionID := uint(b.sessionID.Load())
	if sessionID == 0 {
		b.deps.Logger.Warn("Dropping ticks recorded outside a session", "count", len(ticks))
		return nil
	}

	rows := make([]model.Tick, 0, len(ticks))
	var sightings []model.PeerSighting
	for _, t := range ticks {
		row, err := convert.CoreToTick(t, sessionID)
		if err != nil {
			b.deps.Logger.Warn("Skipping tick that cannot be stored", "error", err)
			continue
		}
		rows = append(rows, row)
		sightings = append(sightings, convert.CoreToPeerSightings(t, sessionID)...)
	}
	if len(rows) == 0 {
		return nil
	}

	start := time.Now()
	err := b.deps.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Omit(clause.Associations).Create(&rows).Error; err != nil {
			return fmt.Errorf("failed to insert ticks: %w", err)
		}
		if len(sightings) > 0 {
			if err := tx.Omit(clause.Associations).Create(&sightings).Error; err != nil {
				return fmt.Errorf("failed to insert peer sightings: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	b.deps.Logger.Debug("Ticks written", "count", len(rows), "sightings", len(sightings), "duration", time.Since(start))
	return nil
}

// RecentTicks reads up to n ticks of the current session, newest first.
// n <= 0 means all.
func (b *Backend) RecentTicks(n int) []core.Tick {
	b.mu.Lock()
	session := b.session
	b.mu.Unlock()

	if session.ID == 0 {
		return nil
	}

	q := b.deps.DB.Where("session_id = ?", session.ID).Order("time desc").Order("id desc")
	if n > 0 {
		q = q.Limit(n)
	}
	var rows []model.Tick
	if err := q.Find(&rows).Error; err != nil {
		b.deps.Logger.Warn("Failed to read recent ticks", "error", err)
		return nil
	}

	out := make([]core.Tick, 0, len(rows))
	for _, r := range rows {
		out = append(out, convert.TickToCore(r, session.Server, session.TeamNumber))
	}
	return out
}

// writeLoop drains the tick queue every flush interval.
func (b *Backend) writeLoop() {
	defer close(b.done)

	ticker := time.NewTicker(b.deps.FlushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-b.stopChan:
			return
		case <-ticker.C:
			if err := b.Flush(context.Background()); err != nil {
				b.deps.Logger.Error("Failed to write ticks", "error", err)
			}
		}
	}
}
