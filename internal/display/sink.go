// Package display carries status lines and peer updates from the telemetry
// loop to whatever renders them.
package display

import (
	"errors"

	"github.com/anafarta/telemetry-link/pkg/core"
)

var (
	// ErrClosed is returned by Publish after Close.
	ErrClosed = errors.New("display dispatcher closed")
	// ErrQueueFull is returned by a non-blocking Publish when the queue is full.
	ErrQueueFull = errors.New("display queue full")
)

// Sink receives display updates. Implementations are called from a single
// goroutine and need no locking of their own against each other.
type Sink interface {
	StatusLine(server, line string)
	PeersUpdated(peers []core.AnnotatedPeer)
	NearestUpdated(nearest core.NearestPeerResult, ok bool)
	ReauthRequired(server string)
}

// NopSink ignores every update. Embed it to implement only part of Sink.
type NopSink struct{}

func (NopSink) StatusLine(string, string)                   {}
func (NopSink) PeersUpdated([]core.AnnotatedPeer)           {}
func (NopSink) NearestUpdated(core.NearestPeerResult, bool) {}
func (NopSink) ReauthRequired(string)                       {}
