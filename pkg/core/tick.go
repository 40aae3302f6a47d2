// pkg/core/tick.go
package core

import "time"

// Tick is the record of one telemetry exchange, handed to storage backends.
type Tick struct {
	Time       time.Time
	Server     string
	Outcome    string
	StatusCode int
	Message    string
	Local      LocalVehicleState
	ServerTime TimeOfDay
	// Peers is nil when the reply carried no usable peer list.
	Peers   []AnnotatedPeer
	Nearest *NearestPeerResult
}

// PeersUpdated reports whether the tick carried a fresh peer list.
func (t Tick) PeersUpdated() bool {
	return t.Peers != nil
}
