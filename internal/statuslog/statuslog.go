// Package statuslog keeps a short, newest-first history of status lines for
// each competition server the operator has talked to.
package statuslog

import (
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/anafarta/telemetry-link/internal/display"
	"github.com/anafarta/telemetry-link/internal/queue"
)

const (
	DefaultMaxLines   = 500
	DefaultMaxServers = 4
	minServers        = 2
	timeLayout        = "15:04:05"
)

// ErrUnknownServer is returned for a server that has no log.
var ErrUnknownServer = errors.New("no status log for server")

// Log is the history of one server.
type Log struct {
	Server string
	Slot   int
	lines  *queue.Queue[string]
}

// Lines returns the log newest first.
func (l *Log) Lines() []string {
	return l.lines.Newest()
}

// Option configures a Board.
type Option func(*Board)

// WithClock replaces time.Now, mostly for tests.
func WithClock(now func() time.Time) Option {
	return func(b *Board) {
		b.now = now
	}
}

// Board holds one Log per server. Servers get a slot in first-seen order;
// when every slot is taken the least recently written server is evicted and
// its slot handed to the newcomer.
type Board struct {
	mu       sync.Mutex
	maxLines int
	logs     *lru.Cache[string, *Log]
	free     []int
	now      func() time.Time
}

// NewBoard creates a board keeping maxLines per server for up to maxServers
// servers. Values below the minimum are raised to it.
func NewBoard(maxLines, maxServers int, opts ...Option) (*Board, error) {
	if maxLines <= 0 {
		maxLines = DefaultMaxLines
	}
	if maxServers < minServers {
		maxServers = minServers
	}

	b := &Board{
		maxLines: maxLines,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(b)
	}
	for i := maxServers - 1; i >= 0; i-- {
		b.free = append(b.free, i)
	}

	cache, err := lru.NewWithEvict(maxServers, func(_ string, l *Log) {
		b.free = append(b.free, l.Slot)
	})
	if err != nil {
		return nil, fmt.Errorf("creating server cache: %w", err)
	}
	b.logs = cache
	return b, nil
}

// Append records msg for server and returns the formatted line.
func (b *Board) Append(server, msg string) string {
	line := fmt.Sprintf("[%s] %s", b.now().Format(timeLayout), msg)

	b.mu.Lock()
	defer b.mu.Unlock()
	l, ok := b.logs.Get(server)
	if !ok {
		l = b.newLog(server)
	}
	l.lines.Push(line)
	return line
}

// newLog must be called with mu held.
func (b *Board) newLog(server string) *Log {
	if len(b.free) == 0 {
		// evicting frees a slot through the callback
		b.logs.RemoveOldest()
	}
	slot := b.free[len(b.free)-1]
	b.free = b.free[:len(b.free)-1]

	l := &Log{Server: server, Slot: slot, lines: queue.New[string](b.maxLines)}
	b.logs.Add(server, l)
	return l
}

// Lines returns the log of server newest first.
func (b *Board) Lines(server string) ([]string, error) {
	b.mu.Lock()
	l, ok := b.logs.Peek(server)
	b.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownServer, server)
	}
	return l.Lines(), nil
}

// Logs returns every live log ordered by slot.
func (b *Board) Logs() []*Log {
	b.mu.Lock()
	logs := b.logs.Values()
	b.mu.Unlock()
	slices.SortFunc(logs, func(x, y *Log) int { return x.Slot - y.Slot })
	return logs
}

// Clear empties the log of server without giving up its slot.
func (b *Board) Clear(server string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if l, ok := b.logs.Peek(server); ok {
		l.lines.Clear()
	}
}

// Sink returns a display sink that appends status lines to the board.
func (b *Board) Sink() display.Sink {
	return boardSink{board: b}
}

type boardSink struct {
	display.NopSink
	board *Board
}

func (s boardSink) StatusLine(server, line string) {
	s.board.Append(server, line)
}
