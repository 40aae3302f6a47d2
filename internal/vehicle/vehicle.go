// Package vehicle reads the local aircraft state through a narrow provider
// interface and turns it into the snapshot reported every tick.
package vehicle

import (
	"time"

	"github.com/anafarta/telemetry-link/pkg/core"
)

// Provider gives read-only access to the live flight controller state.
// Each accessor reports ok=false when the value is not available.
type Provider interface {
	Position() (lat, lon float64, ok bool)
	Altitude() (float64, bool)
	Attitude() (pitch, roll float64, ok bool)
	Yaw() (float64, bool)
	GroundCourse() (float64, bool)
	GroundSpeed() (float64, bool)
	BatteryRemaining() (int, bool)
	Armed() (bool, bool)
	GPSTime() (time.Time, bool)
}

// TargetSource supplies the lock-on state of the onboard tracker.
type TargetSource interface {
	Target() (box core.BoundingBox, locked bool)
}

// Snapshot builds the state reported to the server. Missing values become
// zero, yaw prefers the ground course, and the time falls back to now.
func Snapshot(p Provider, team int, now time.Time) core.LocalVehicleState {
	s := core.LocalVehicleState{
		TeamNumber: team,
		Time:       core.TimeOfDayFrom(now),
	}
	if p == nil {
		return s
	}

	if lat, lon, ok := p.Position(); ok {
		s.Latitude, s.Longitude = lat, lon
	}
	if alt, ok := p.Altitude(); ok {
		s.Altitude = alt
	}
	if pitch, roll, ok := p.Attitude(); ok {
		s.Pitch, s.Roll = pitch, roll
	}
	if course, ok := p.GroundCourse(); ok {
		s.Yaw = course
	} else if yaw, ok := p.Yaw(); ok {
		s.Yaw = yaw
	}
	if gs, ok := p.GroundSpeed(); ok {
		s.GroundSpeed = gs
	}
	if pct, ok := p.BatteryRemaining(); ok {
		s.Battery = core.ClampBattery(pct)
	}
	if armed, ok := p.Armed(); ok {
		s.Autonomous = armed
	}
	if gps, ok := p.GPSTime(); ok && !gps.IsZero() {
		s.Time = core.TimeOfDayFrom(gps)
	}
	if ts, ok := p.(TargetSource); ok {
		s.Target, s.LockedOn = ts.Target()
	}
	return s
}
