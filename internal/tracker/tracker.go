// Package tracker keeps the latest peer list reported by the competition
// server and the peer nearest to the local vehicle.
package tracker

import (
	"slices"
	"sync"

	"github.com/anafarta/telemetry-link/internal/geo"
	"github.com/anafarta/telemetry-link/pkg/core"
)

// Tracker is safe for concurrent use. Update replaces the whole state.
type Tracker struct {
	mu         sync.RWMutex
	local      core.Position
	peers      []core.PeerRecord
	nearest    core.NearestPeerResult
	hasNearest bool
}

// New returns an empty tracker.
func New() *Tracker {
	return &Tracker{}
}

// Update stores a fresh peer list and recomputes the nearest peer. It reports
// false when the list is empty or the local position is unknown; the previous
// nearest result is cleared in that case.
func (t *Tracker) Update(local core.Position, peers []core.PeerRecord) (core.NearestPeerResult, bool) {
	nearest, ok := Nearest(local, peers)

	t.mu.Lock()
	defer t.mu.Unlock()
	t.local = local
	t.peers = slices.Clone(peers)
	t.nearest = nearest
	t.hasNearest = ok
	return nearest, ok
}

// Nearest returns the result of the last Update.
func (t *Tracker) Nearest() (core.NearestPeerResult, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.nearest, t.hasNearest
}

// Peers returns the last peer list in server order.
func (t *Tracker) Peers() []core.PeerRecord {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return slices.Clone(t.peers)
}

// Annotated returns the last peer list sorted by distance from the local
// vehicle, closest first. Peers at equal distance keep server order.
func (t *Tracker) Annotated() []core.AnnotatedPeer {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return Annotate(t.local, t.peers)
}

// Reset forgets every peer, used when the session changes.
func (t *Tracker) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.local = core.Position{}
	t.peers = nil
	t.nearest = core.NearestPeerResult{}
	t.hasNearest = false
}

// Nearest picks the peer closest to local. Ties go to the first occurrence.
func Nearest(local core.Position, peers []core.PeerRecord) (core.NearestPeerResult, bool) {
	if len(peers) == 0 || geo.IsUnknownPosition(local.Latitude, local.Longitude) {
		return core.NearestPeerResult{}, false
	}

	best := -1
	bestDist := geo.Unreachable
	for i, p := range peers {
		d := geo.Distance(local, p.Position())
		if best < 0 || d < bestDist {
			best = i
			bestDist = d
		}
	}

	p := peers[best]
	return core.NearestPeerResult{
		TeamNumber:     p.TeamNumber,
		DistanceMeters: bestDist,
		Position:       p.Position(),
	}, true
}

// Annotate pairs each peer with its distance from local. When local is
// unknown every distance is geo.Unreachable and server order is kept.
func Annotate(local core.Position, peers []core.PeerRecord) []core.AnnotatedPeer {
	out := make([]core.AnnotatedPeer, len(peers))
	unknown := geo.IsUnknownPosition(local.Latitude, local.Longitude)
	for i, p := range peers {
		d := geo.Unreachable
		if !unknown {
			d = geo.Distance(local, p.Position())
		}
		out[i] = core.AnnotatedPeer{PeerRecord: p, DistanceMeters: d}
	}
	slices.SortStableFunc(out, func(a, b core.AnnotatedPeer) int {
		switch {
		case a.DistanceMeters < b.DistanceMeters:
			return -1
		case a.DistanceMeters > b.DistanceMeters:
			return 1
		}
		return 0
	})
	return out
}
