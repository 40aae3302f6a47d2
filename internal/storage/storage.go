// internal/storage/storage.go
package storage

import (
	"context"

	"github.com/anafarta/telemetry-link/pkg/core"
)

// Backend is the interface all tick recorders must satisfy
type Backend interface {
	// Lifecycle
	Init(ctx context.Context) error
	Close() error

	// Session management
	StartSession(ctx context.Context, s *core.Session) error
	EndSession(ctx context.Context) error

	// RecordTick stores one telemetry exchange. It must not block the
	// scheduler for longer than a single write.
	RecordTick(ctx context.Context, t core.Tick) error
}

// Reader is an optional interface for backends that keep recent ticks
// available for inspection.
type Reader interface {
	// RecentTicks returns up to n ticks, newest first. n <= 0 means all.
	RecentTicks(n int) []core.Tick
}

// Discard is the backend used when recording is disabled.
type Discard struct{}

func (Discard) Init(context.Context) error                        { return nil }
func (Discard) Close() error                                      { return nil }
func (Discard) StartSession(context.Context, *core.Session) error { return nil }
func (Discard) EndSession(context.Context) error                  { return nil }
func (Discard) RecordTick(context.Context, core.Tick) error       { return nil }
