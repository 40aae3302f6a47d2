package vehicle

import (
	"sync"
	"time"

	"github.com/anafarta/telemetry-link/pkg/core"
)

// Static is a Provider holding fixed values that can be replaced at runtime.
// Fields left unset report ok=false.
type Static struct {
	mu    sync.RWMutex
	state StaticState
}

// StaticState is the value set of a Static provider. Nil pointers are
// unavailable readings.
type StaticState struct {
	Latitude     *float64
	Longitude    *float64
	Altitude     *float64
	Pitch        *float64
	Roll         *float64
	Yaw          *float64
	GroundCourse *float64
	GroundSpeed  *float64
	Battery      *int
	Armed        *bool
	GPSTime      time.Time
	Target       core.BoundingBox
	LockedOn     bool
}

// NewStatic creates a Static provider.
func NewStatic(state StaticState) *Static {
	return &Static{state: state}
}

// Set replaces every reading.
func (s *Static) Set(state StaticState) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = state
}

func (s *Static) get() StaticState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

func (s *Static) Position() (float64, float64, bool) {
	st := s.get()
	if st.Latitude == nil || st.Longitude == nil {
		return 0, 0, false
	}
	return *st.Latitude, *st.Longitude, true
}

func (s *Static) Altitude() (float64, bool)     { return deref(s.get().Altitude) }
func (s *Static) Yaw() (float64, bool)          { return deref(s.get().Yaw) }
func (s *Static) GroundCourse() (float64, bool) { return deref(s.get().GroundCourse) }
func (s *Static) GroundSpeed() (float64, bool)  { return deref(s.get().GroundSpeed) }
func (s *Static) BatteryRemaining() (int, bool) { return deref(s.get().Battery) }
func (s *Static) Armed() (bool, bool)           { return deref(s.get().Armed) }

func (s *Static) Attitude() (float64, float64, bool) {
	st := s.get()
	if st.Pitch == nil || st.Roll == nil {
		return 0, 0, false
	}
	return *st.Pitch, *st.Roll, true
}

func (s *Static) GPSTime() (time.Time, bool) {
	st := s.get()
	return st.GPSTime, !st.GPSTime.IsZero()
}

func (s *Static) Target() (core.BoundingBox, bool) {
	st := s.get()
	return st.Target, st.LockedOn
}

func deref[T any](v *T) (T, bool) {
	if v == nil {
		var zero T
		return zero, false
	}
	return *v, true
}

// Ptr returns a pointer to v, for filling StaticState literals.
func Ptr[T any](v T) *T {
	return &v
}
