package geo

import (
	"encoding/json"
	"fmt"

	"github.com/anafarta/telemetry-link/pkg/core"
	geom "github.com/peterstace/simplefeatures/geom"
)

// LineBetween builds the two-point WGS84 line from a to b, in lon/lat order.
// The live view draws it from our aircraft to the nearest peer.
func LineBetween(a, b core.Position) geom.LineString {
	seq := geom.NewSequence([]float64{
		a.Longitude, a.Latitude,
		b.Longitude, b.Latitude,
	}, geom.DimXY)
	return geom.NewLineString(seq)
}

// LineGeoJSON returns the GeoJSON geometry of the line from a to b.
func LineGeoJSON(a, b core.Position) (json.RawMessage, error) {
	raw, err := LineBetween(a, b).MarshalJSON()
	if err != nil {
		return nil, fmt.Errorf("failed to encode line geometry: %w", err)
	}
	return raw, nil
}
