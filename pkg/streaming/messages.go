package streaming

import (
	"encoding/json"
	"time"

	"github.com/anafarta/telemetry-link/pkg/core"
)

// Message type constants matching the live-view protocol.
const (
	TypeStartSession = "start_session"
	TypeEndSession   = "end_session"
	TypeTick         = "tick"
	TypeAck          = "ack"
)

// Envelope wraps all messages sent over the WebSocket.
type Envelope struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// AckMessage is the server's acknowledgement response.
type AckMessage struct {
	Type string `json:"type"` // always "ack"
	For  string `json:"for"`  // the message type being acknowledged
}

// StartSessionPayload identifies the run that following ticks belong to.
type StartSessionPayload struct {
	Session *core.Session `json:"session"`
}

// TickPayload is one telemetry exchange as shown by the live view.
type TickPayload struct {
	Time       time.Time               `json:"time"`
	Outcome    string                  `json:"outcome"`
	StatusCode int                     `json:"statusCode"`
	Message    string                  `json:"message"`
	Local      core.LocalVehicleState  `json:"local"`
	Peers      []core.AnnotatedPeer    `json:"peers,omitempty"`
	Nearest    *core.NearestPeerResult `json:"nearest,omitempty"`
	// NearestLine is the GeoJSON LineString from the local vehicle to the
	// nearest peer.
	NearestLine json.RawMessage `json:"nearestLine,omitempty"`
}
