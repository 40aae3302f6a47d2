package core

// Position is a WGS84 location. Altitude is in meters.
type Position struct {
	Latitude  float64
	Longitude float64
	Altitude  float64
}

// PeerRecord is another team's aircraft as reported by the server.
// A record is never modified after decoding; the next response replaces the
// whole list.
type PeerRecord struct {
	TeamNumber int
	Latitude   float64
	Longitude  float64
	Altitude   float64
	Pitch      float64
	Yaw        float64
	Roll       float64
	Speed      float64
	TimeSkew   int // milliseconds, computed by the server
}

// Position returns the peer location.
func (p PeerRecord) Position() Position {
	return Position{Latitude: p.Latitude, Longitude: p.Longitude, Altitude: p.Altitude}
}

// AnnotatedPeer pairs a peer with its distance from the local vehicle.
type AnnotatedPeer struct {
	PeerRecord
	DistanceMeters float64
}

// NearestPeerResult is the closest peer to the local vehicle for one tick.
type NearestPeerResult struct {
	TeamNumber     int
	DistanceMeters float64
	Position       Position
}
