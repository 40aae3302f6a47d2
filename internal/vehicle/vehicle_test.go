package vehicle

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/anafarta/telemetry-link/internal/geo"
	"github.com/anafarta/telemetry-link/pkg/core"
)

var fixedNow = time.Date(2026, 10, 16, 9, 41, 5, 372_000_000, time.UTC)

func TestSnapshot_NilProviderIsZero(t *testing.T) {
	s := Snapshot(nil, 20, fixedNow)

	assert.Equal(t, 20, s.TeamNumber)
	assert.Zero(t, s.Latitude)
	assert.Zero(t, s.Battery)
	assert.False(t, s.Autonomous)
	assert.Equal(t, core.TimeOfDay{Day: 16, Hour: 9, Minute: 41, Second: 5, Millisecond: 372}, s.Time)
}

func TestSnapshot_EmptyStaticIsZero(t *testing.T) {
	s := Snapshot(NewStatic(StaticState{}), 5, fixedNow)

	assert.Equal(t, core.LocalVehicleState{
		TeamNumber: 5,
		Time:       core.TimeOfDayFrom(fixedNow),
	}, s)
}

func TestSnapshot_AllFields(t *testing.T) {
	gps := time.Date(2026, 10, 16, 9, 40, 0, 0, time.FixedZone("TRT", 3*3600))
	p := NewStatic(StaticState{
		Latitude:    Ptr(40.23),
		Longitude:   Ptr(26.41),
		Altitude:    Ptr(120.0),
		Pitch:       Ptr(2.0),
		Roll:        Ptr(-4.0),
		Yaw:         Ptr(90.0),
		GroundSpeed: Ptr(21.5),
		Battery:     Ptr(76),
		Armed:       Ptr(true),
		GPSTime:     gps,
		Target:      core.BoundingBox{CenterX: 10, CenterY: 20, Width: 30, Height: 40},
		LockedOn:    true,
	})

	s := Snapshot(p, 20, fixedNow)

	assert.Equal(t, 40.23, s.Latitude)
	assert.Equal(t, 26.41, s.Longitude)
	assert.Equal(t, 120.0, s.Altitude)
	assert.Equal(t, 2.0, s.Pitch)
	assert.Equal(t, -4.0, s.Roll)
	assert.Equal(t, 90.0, s.Yaw)
	assert.Equal(t, 21.5, s.GroundSpeed)
	assert.Equal(t, 76, s.Battery)
	assert.True(t, s.Autonomous)
	assert.True(t, s.LockedOn)
	assert.Equal(t, 30, s.Target.Width)
	// GPS time is converted to UTC.
	assert.Equal(t, core.TimeOfDay{Day: 16, Hour: 6, Minute: 40}, s.Time)
}

func TestSnapshot_GroundCourseWinsOverYaw(t *testing.T) {
	p := NewStatic(StaticState{Yaw: Ptr(10.0), GroundCourse: Ptr(200.0)})
	assert.Equal(t, 200.0, Snapshot(p, 1, fixedNow).Yaw)
}

func TestSnapshot_BatteryClamped(t *testing.T) {
	p := NewStatic(StaticState{Battery: Ptr(-7)})
	assert.Equal(t, 0, Snapshot(p, 1, fixedNow).Battery)

	p.Set(StaticState{Battery: Ptr(250)})
	assert.Equal(t, 100, Snapshot(p, 1, fixedNow).Battery)
}

func TestSnapshot_PartialPositionIgnored(t *testing.T) {
	p := NewStatic(StaticState{Latitude: Ptr(40.0)})
	s := Snapshot(p, 1, fixedNow)
	assert.Zero(t, s.Latitude)
	assert.Zero(t, s.Longitude)
}

func TestSimulated_StaysOnOrbit(t *testing.T) {
	home := core.Position{Latitude: 40.2, Longitude: 26.4, Altitude: 100}
	start := fixedNow
	sim := NewSimulated(SimulatedConfig{Home: home, RadiusMeters: 150, Speed: 25}, start)

	for _, offset := range []time.Duration{0, 3 * time.Second, 17 * time.Second, 40 * time.Second} {
		now := start.Add(offset)
		sim.now = func() time.Time { return now }

		lat, lon, ok := sim.Position()
		require.True(t, ok)
		d := geo.DistanceMeters(home.Latitude, home.Longitude, lat, lon)
		assert.InDelta(t, 150, d, 0.5, "offset %s", offset)
	}
}

func TestSimulated_UnknownHome(t *testing.T) {
	sim := NewSimulated(SimulatedConfig{RadiusMeters: 100}, fixedNow)
	_, _, ok := sim.Position()
	assert.False(t, ok)

	s := Snapshot(sim, 3, fixedNow)
	assert.True(t, geo.IsUnknownPosition(s.Latitude, s.Longitude))
}

func TestSimulated_BatteryDrain(t *testing.T) {
	sim := NewSimulated(SimulatedConfig{
		Home:         core.Position{Latitude: 1, Longitude: 1},
		BatteryDrain: time.Second,
	}, fixedNow)

	now := fixedNow.Add(30 * time.Second)
	sim.now = func() time.Time { return now }
	pct, ok := sim.BatteryRemaining()
	require.True(t, ok)
	assert.Equal(t, 70, pct)

	now = fixedNow.Add(time.Hour)
	pct, _ = sim.BatteryRemaining()
	assert.Equal(t, 0, pct)
}

func TestSimulated_BankAngle(t *testing.T) {
	sim := NewSimulated(SimulatedConfig{Home: core.Position{Latitude: 1, Longitude: 1}, RadiusMeters: 100, Speed: 20}, fixedNow)
	_, roll, ok := sim.Attitude()
	require.True(t, ok)
	want := math.Atan(400.0/981.0) * 180 / math.Pi
	assert.InDelta(t, want, roll, 1e-9)
}
