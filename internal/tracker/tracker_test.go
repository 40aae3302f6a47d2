package tracker

import (
	"math"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/anafarta/telemetry-link/internal/geo"
	"github.com/anafarta/telemetry-link/pkg/core"
)

// metersPerDegree is the length of one degree of latitude on the sphere.
var metersPerDegree = geo.EarthRadiusMeters * math.Pi / 180

func northOf(origin core.Position, team int, meters float64) core.PeerRecord {
	return core.PeerRecord{
		TeamNumber: team,
		Latitude:   origin.Latitude + meters/metersPerDegree,
		Longitude:  origin.Longitude,
	}
}

func TestUpdate_PicksNearest(t *testing.T) {
	local := core.Position{Latitude: 40.1, Longitude: 26.4}
	peers := []core.PeerRecord{
		northOf(local, 1, 500),
		northOf(local, 2, 120),
		northOf(local, 3, 300),
	}

	tr := New()
	got, ok := tr.Update(local, peers)
	require.True(t, ok)
	assert.Equal(t, 2, got.TeamNumber)
	assert.InDelta(t, 120, got.DistanceMeters, 0.01)
	assert.Equal(t, peers[1].Position(), got.Position)

	again, ok := tr.Nearest()
	require.True(t, ok)
	assert.Equal(t, got, again)
}

func TestUpdate_TieGoesToFirst(t *testing.T) {
	local := core.Position{Latitude: 40.1, Longitude: 26.4}
	peers := []core.PeerRecord{
		northOf(local, 8, 200),
		northOf(local, 4, 200),
	}

	got, ok := New().Update(local, peers)
	require.True(t, ok)
	assert.Equal(t, 8, got.TeamNumber)
}

func TestUpdate_OriginHasNoResult(t *testing.T) {
	tr := New()
	_, ok := tr.Update(core.Position{}, []core.PeerRecord{{TeamNumber: 1, Latitude: 1, Longitude: 1}})
	assert.False(t, ok)

	_, ok = tr.Nearest()
	assert.False(t, ok)
	assert.Len(t, tr.Peers(), 1)
}

func TestUpdate_EmptyListClearsPrevious(t *testing.T) {
	local := core.Position{Latitude: 40.1, Longitude: 26.4}
	tr := New()
	_, ok := tr.Update(local, []core.PeerRecord{northOf(local, 1, 50)})
	require.True(t, ok)

	_, ok = tr.Update(local, []core.PeerRecord{})
	assert.False(t, ok)
	_, ok = tr.Nearest()
	assert.False(t, ok)
	assert.Empty(t, tr.Peers())
}

func TestUpdate_NonFinitePeerNeverWins(t *testing.T) {
	local := core.Position{Latitude: 40.1, Longitude: 26.4}
	peers := []core.PeerRecord{
		{TeamNumber: 1, Latitude: math.NaN(), Longitude: 26.4},
		northOf(local, 2, 900),
	}

	got, ok := New().Update(local, peers)
	require.True(t, ok)
	assert.Equal(t, 2, got.TeamNumber)
}

func TestPeers_ServerOrderAndCopy(t *testing.T) {
	local := core.Position{Latitude: 40.1, Longitude: 26.4}
	peers := []core.PeerRecord{northOf(local, 3, 300), northOf(local, 1, 100)}

	tr := New()
	tr.Update(local, peers)
	peers[0].TeamNumber = 99

	got := tr.Peers()
	require.Len(t, got, 2)
	assert.Equal(t, 3, got[0].TeamNumber)
	assert.Equal(t, 1, got[1].TeamNumber)
}

func TestAnnotated_SortedByDistance(t *testing.T) {
	local := core.Position{Latitude: 40.1, Longitude: 26.4}
	tr := New()
	tr.Update(local, []core.PeerRecord{
		northOf(local, 1, 500),
		northOf(local, 2, 120),
		northOf(local, 3, 300),
	})

	got := tr.Annotated()
	require.Len(t, got, 3)
	assert.Equal(t, []int{2, 3, 1}, []int{got[0].TeamNumber, got[1].TeamNumber, got[2].TeamNumber})
	assert.InDelta(t, 300, got[1].DistanceMeters, 0.01)
}

func TestAnnotated_UnknownLocalKeepsOrder(t *testing.T) {
	tr := New()
	tr.Update(core.Position{}, []core.PeerRecord{
		{TeamNumber: 5, Latitude: 2, Longitude: 2},
		{TeamNumber: 6, Latitude: 1, Longitude: 1},
	})

	got := tr.Annotated()
	require.Len(t, got, 2)
	assert.Equal(t, 5, got[0].TeamNumber)
	assert.Equal(t, geo.Unreachable, got[0].DistanceMeters)
	assert.Equal(t, geo.Unreachable, got[1].DistanceMeters)
}

func TestReset(t *testing.T) {
	local := core.Position{Latitude: 40.1, Longitude: 26.4}
	tr := New()
	tr.Update(local, []core.PeerRecord{northOf(local, 1, 10)})

	tr.Reset()

	_, ok := tr.Nearest()
	assert.False(t, ok)
	assert.Empty(t, tr.Peers())
	assert.Empty(t, tr.Annotated())
}

func TestTracker_ConcurrentAccess(t *testing.T) {
	local := core.Position{Latitude: 40.1, Longitude: 26.4}
	tr := New()
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(2)
		go func(i int) {
			defer wg.Done()
			tr.Update(local, []core.PeerRecord{northOf(local, i, float64(10*i+1))})
		}(i)
		go func() {
			defer wg.Done()
			_ = tr.Annotated()
			_, _ = tr.Nearest()
		}()
	}
	wg.Wait()

	_, ok := tr.Nearest()
	assert.True(t, ok)
}
