package geo

import (
	"errors"
	"math"
	"strconv"
	"strings"

	"github.com/anafarta/telemetry-link/pkg/core"
	geom "github.com/peterstace/simplefeatures/geom"
	"github.com/wroge/wgs84"
)

// EarthRadiusMeters is the mean earth radius used by the haversine formula.
const EarthRadiusMeters = 6371000.0

// Unreachable is returned by DistanceMeters when an input is not finite.
// It sorts after every real distance.
const Unreachable = math.MaxFloat64

// ErrInvalidCoordinates is returned when the coordinates are invalid
var ErrInvalidCoordinates = errors.New("invalid coordinates provided")

// DistanceMeters returns the great-circle distance between two WGS84 points
// given in degrees.
func DistanceMeters(lat1, lon1, lat2, lon2 float64) float64 {
	for _, v := range [...]float64{lat1, lon1, lat2, lon2} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return Unreachable
		}
	}

	dLat := toRadians(lat2 - lat1)
	dLon := toRadians(lon2 - lon1)
	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(toRadians(lat1))*math.Cos(toRadians(lat2))*
			math.Sin(dLon/2)*math.Sin(dLon/2)
	// rounding can push a just past 1 for antipodal points
	a = math.Min(1, math.Max(0, a))
	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))
	return EarthRadiusMeters * c
}

// Distance is DistanceMeters for two positions.
func Distance(a, b core.Position) float64 {
	return DistanceMeters(a.Latitude, a.Longitude, b.Latitude, b.Longitude)
}

// IsUnknownPosition reports whether lat/lon is the origin sentinel (0,0),
// which providers report before the first GPS fix.
func IsUnknownPosition(lat, lon float64) bool {
	return lat == 0 && lon == 0
}

func toRadians(deg float64) float64 {
	return deg * math.Pi / 180
}

// ParsePosition parses "lat,lon" or "lat,lon,alt" into a core.Position.
func ParsePosition(coords string) (core.Position, error) {
	parts := strings.Split(coords, ",")
	if len(parts) < 2 || len(parts) > 3 {
		return core.Position{}, ErrInvalidCoordinates
	}
	lat, err := strconv.ParseFloat(strings.TrimSpace(parts[0]), 64)
	if err != nil {
		return core.Position{}, ErrInvalidCoordinates
	}
	lon, err := strconv.ParseFloat(strings.TrimSpace(parts[1]), 64)
	if err != nil {
		return core.Position{}, ErrInvalidCoordinates
	}
	var alt float64
	if len(parts) == 3 {
		alt, err = strconv.ParseFloat(strings.TrimSpace(parts[2]), 64)
		if err != nil {
			return core.Position{}, ErrInvalidCoordinates
		}
	}
	if lat < -90 || lat > 90 || lon < -180 || lon > 180 {
		return core.Position{}, ErrInvalidCoordinates
	}
	return core.Position{Latitude: lat, Longitude: lon, Altitude: alt}, nil
}

// ProjectWebMercator converts a WGS84 position to an EPSG:3857 point with the
// altitude carried as Z. Stored positions always use 3857 so SQLite rows can be
// compared with the Postgres ones.
func ProjectWebMercator(p core.Position) geom.Point {
	f := wgs84.EPSG().Transform(4326, 3857)
	x, y, _ := f(p.Longitude, p.Latitude, 0)
	return geom.NewPoint(
		geom.Coordinates{
			XY:   geom.XY{X: x, Y: y},
			Z:    p.Altitude,
			Type: geom.DimXYZ,
		},
	)
}
