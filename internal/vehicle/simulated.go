package vehicle

import (
	"math"
	"sync"
	"time"

	"github.com/anafarta/telemetry-link/internal/geo"
	"github.com/anafarta/telemetry-link/pkg/core"
)

// SimulatedConfig describes a circular orbit flown by the simulated aircraft.
type SimulatedConfig struct {
	Home         core.Position
	RadiusMeters float64
	Speed        float64       // m/s along the orbit
	BatteryDrain time.Duration // time to lose one percent; zero disables drain
}

// Simulated is a Provider that flies a constant-speed orbit around Home.
// It stands in for a flight controller when none is attached.
type Simulated struct {
	cfg   SimulatedConfig
	start time.Time
	now   func() time.Time
	mu    sync.Mutex
}

// NewSimulated creates a simulated provider starting its orbit at start.
func NewSimulated(cfg SimulatedConfig, start time.Time) *Simulated {
	if cfg.Speed <= 0 {
		cfg.Speed = 20
	}
	return &Simulated{cfg: cfg, start: start, now: time.Now}
}

func (s *Simulated) elapsed() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.now().Sub(s.start)
}

// angle is the current orbit angle in radians, clockwise from north.
func (s *Simulated) angle() float64 {
	if s.cfg.RadiusMeters <= 0 {
		return 0
	}
	omega := s.cfg.Speed / s.cfg.RadiusMeters
	return math.Mod(omega*s.elapsed().Seconds(), 2*math.Pi)
}

func (s *Simulated) Position() (float64, float64, bool) {
	if geo.IsUnknownPosition(s.cfg.Home.Latitude, s.cfg.Home.Longitude) {
		return 0, 0, false
	}
	a := s.angle()
	north := s.cfg.RadiusMeters * math.Cos(a)
	east := s.cfg.RadiusMeters * math.Sin(a)
	lat := s.cfg.Home.Latitude + north/geo.EarthRadiusMeters*180/math.Pi
	lon := s.cfg.Home.Longitude + east/(geo.EarthRadiusMeters*math.Cos(s.cfg.Home.Latitude*math.Pi/180))*180/math.Pi
	return lat, lon, true
}

func (s *Simulated) Altitude() (float64, bool) { return s.cfg.Home.Altitude, true }

func (s *Simulated) Attitude() (float64, float64, bool) {
	if s.cfg.RadiusMeters <= 0 {
		return 0, 0, true
	}
	// coordinated turn bank angle
	bank := math.Atan(s.cfg.Speed*s.cfg.Speed/(9.81*s.cfg.RadiusMeters)) * 180 / math.Pi
	return 0, bank, true
}

func (s *Simulated) Yaw() (float64, bool) {
	deg := math.Mod(s.angle()*180/math.Pi+90, 360)
	return deg, true
}

func (s *Simulated) GroundCourse() (float64, bool) { return 0, false }

func (s *Simulated) GroundSpeed() (float64, bool) { return s.cfg.Speed, true }

func (s *Simulated) BatteryRemaining() (int, bool) {
	if s.cfg.BatteryDrain <= 0 {
		return 100, true
	}
	used := int(s.elapsed() / s.cfg.BatteryDrain)
	return core.ClampBattery(100 - used), true
}

func (s *Simulated) Armed() (bool, bool) { return true, true }

func (s *Simulated) GPSTime() (time.Time, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.now().UTC(), true
}
