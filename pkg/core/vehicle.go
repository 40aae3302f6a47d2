// pkg/core/vehicle.go
package core

import "time"

// LocalVehicleState is the snapshot of our own aircraft that is reported to the
// competition server every tick. Every field has a usable zero value.
type LocalVehicleState struct {
	TeamNumber  int
	Latitude    float64 // degrees
	Longitude   float64 // degrees
	Altitude    float64 // meters
	Pitch       float64 // degrees
	Yaw         float64 // degrees
	Roll        float64 // degrees
	GroundSpeed float64 // m/s
	Battery     int     // percent, always within [0,100]
	Autonomous  bool
	LockedOn    bool
	Target      BoundingBox
	Time        TimeOfDay
}

// BoundingBox is the lock-on target rectangle in camera pixels.
type BoundingBox struct {
	CenterX int
	CenterY int
	Width   int
	Height  int
}

// Position returns the horizontal position of the vehicle.
func (s LocalVehicleState) Position() Position {
	return Position{Latitude: s.Latitude, Longitude: s.Longitude, Altitude: s.Altitude}
}

// ClampBattery bounds a battery percentage to [0,100].
func ClampBattery(pct int) int {
	if pct < 0 {
		return 0
	}
	if pct > 100 {
		return 100
	}
	return pct
}

// TimeOfDay is the day-of-month plus wall clock split into fields, as the
// server expects it.
type TimeOfDay struct {
	Day         int
	Hour        int
	Minute      int
	Second      int
	Millisecond int
}

// TimeOfDayFrom decomposes t in UTC.
func TimeOfDayFrom(t time.Time) TimeOfDay {
	t = t.UTC()
	return TimeOfDay{
		Day:         t.Day(),
		Hour:        t.Hour(),
		Minute:      t.Minute(),
		Second:      t.Second(),
		Millisecond: t.Nanosecond() / int(time.Millisecond),
	}
}
