package geo

import (
	"errors"
	"math"
	"testing"

	"github.com/anafarta/telemetry-link/pkg/core"
)

const epsilon = 1e-9

func TestDistanceMeters_SamePointIsZero(t *testing.T) {
	points := [][2]float64{
		{0, 0},
		{40.123456, 26.654321},
		{-33.8688, 151.2093},
		{89.9999, -179.9999},
	}
	for _, p := range points {
		d := DistanceMeters(p[0], p[1], p[0], p[1])
		if math.Abs(d) > epsilon {
			t.Errorf("expected 0 for %v, got %f", p, d)
		}
	}
}

func TestDistanceMeters_Symmetric(t *testing.T) {
	pairs := [][4]float64{
		{40.0, 26.0, 40.1, 26.2},
		{-10.5, 100.25, 35.0, -120.0},
		{0.999, 1.001, 1.0, 1.0},
	}
	for _, p := range pairs {
		ab := DistanceMeters(p[0], p[1], p[2], p[3])
		ba := DistanceMeters(p[2], p[3], p[0], p[1])
		if math.Abs(ab-ba) > epsilon {
			t.Errorf("distance not symmetric for %v: %f vs %f", p, ab, ba)
		}
	}
}

func TestDistanceMeters_OneDegreeOfLatitude(t *testing.T) {
	d := DistanceMeters(0, 0, 1, 0)
	want := EarthRadiusMeters * math.Pi / 180
	if math.Abs(d-want) > 0.001 {
		t.Errorf("expected %f, got %f", want, d)
	}
}

func TestDistanceMeters_KnownCityPair(t *testing.T) {
	// Istanbul to Ankara is roughly 350 km great-circle.
	d := DistanceMeters(41.0082, 28.9784, 39.9334, 32.8597)
	if d < 345000 || d > 355000 {
		t.Errorf("expected ~350km, got %f", d)
	}
}

func TestDistanceMeters_NonFiniteReturnsSentinel(t *testing.T) {
	cases := [][4]float64{
		{math.NaN(), 0, 0, 0},
		{0, math.Inf(1), 0, 0},
		{0, 0, math.Inf(-1), 0},
		{0, 0, 0, math.NaN()},
	}
	for _, c := range cases {
		if d := DistanceMeters(c[0], c[1], c[2], c[3]); d != Unreachable {
			t.Errorf("expected Unreachable for %v, got %f", c, d)
		}
	}
}

func TestDistanceMeters_AntipodalIsFinite(t *testing.T) {
	halfCircumference := math.Pi * EarthRadiusMeters
	for lat := -89.9; lat <= 89.9; lat += 0.37 {
		for lon := -179.9; lon <= 0; lon += 0.53 {
			d := DistanceMeters(lat, lon, -lat, lon+180)
			if math.IsNaN(d) || d > halfCircumference+1e-6 {
				t.Fatalf("antipodal (%.2f,%.2f): got %f, want about %f", lat, lon, d, halfCircumference)
			}
		}
	}
	if d := DistanceMeters(-85.46, -179.9, 85.46, 0.1); math.IsNaN(d) {
		t.Fatal("near-polar antipodal pair gave NaN")
	}
}

func TestDistance_Positions(t *testing.T) {
	a := core.Position{Latitude: 0.999, Longitude: 1.001}
	b := core.Position{Latitude: 1.0, Longitude: 1.0}
	d := Distance(a, b)
	if d <= 0 || d > 200 {
		t.Errorf("expected a small nonzero distance, got %f", d)
	}
}

func TestIsUnknownPosition(t *testing.T) {
	if !IsUnknownPosition(0, 0) {
		t.Error("expected origin to be unknown")
	}
	if IsUnknownPosition(0, 1) || IsUnknownPosition(1, 0) {
		t.Error("expected a position on one axis to be known")
	}
}

func TestParsePosition_WithAltitude(t *testing.T) {
	p, err := ParsePosition("40.5, 26.25, 120")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if p.Latitude != 40.5 || p.Longitude != 26.25 || p.Altitude != 120 {
		t.Errorf("unexpected position %+v", p)
	}
}

func TestParsePosition_WithoutAltitude(t *testing.T) {
	p, err := ParsePosition("40.5,26.25")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if p.Altitude != 0 {
		t.Errorf("expected altitude=0, got %f", p.Altitude)
	}
}

func TestParsePosition_Invalid(t *testing.T) {
	for _, in := range []string{"", "40.5", "a,b", "40,26,x", "91,0", "0,181", "1,2,3,4"} {
		_, err := ParsePosition(in)
		if !errors.Is(err, ErrInvalidCoordinates) {
			t.Errorf("expected ErrInvalidCoordinates for %q, got %v", in, err)
		}
	}
}

func TestProjectWebMercator_Origin(t *testing.T) {
	point := ProjectWebMercator(core.Position{Altitude: 50})

	coords, ok := point.Coordinates()
	if !ok {
		t.Fatal("expected valid coordinates")
	}
	if math.Abs(coords.X) > 1e-6 || math.Abs(coords.Y) > 1e-6 {
		t.Errorf("expected origin, got (%f, %f)", coords.X, coords.Y)
	}
	if coords.Z != 50 {
		t.Errorf("expected Z=50, got %f", coords.Z)
	}
}

func TestProjectWebMercator_NonZero(t *testing.T) {
	point := ProjectWebMercator(core.Position{Latitude: 10, Longitude: 10})

	coords, ok := point.Coordinates()
	if !ok {
		t.Fatal("expected valid coordinates")
	}
	// 10 degrees of longitude is ~1113194.9 m in web mercator.
	if math.Abs(coords.X-1113194.9) > 1 {
		t.Errorf("unexpected X=%f", coords.X)
	}
	if coords.Y <= coords.X {
		t.Errorf("expected Y > X at 10N, got X=%f Y=%f", coords.X, coords.Y)
	}
}
