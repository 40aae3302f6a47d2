package convert

import (
	"encoding/json"

	"github.com/anafarta/telemetry-link/internal/model"
	"github.com/anafarta/telemetry-link/pkg/core"
	geom "github.com/peterstace/simplefeatures/geom"
)

// pointToPosition converts a lon/lat point back to a core.Position
func pointToPosition(p geom.Point) core.Position {
	coord, ok := p.Coordinates()
	if !ok {
		return core.Position{}
	}
	return core.Position{Latitude: coord.XY.Y, Longitude: coord.XY.X, Altitude: coord.Z}
}

// SessionToCore converts a GORM Session to a core.Session.
func SessionToCore(s model.Session) core.Session {
	out := core.Session{
		ID:         s.ID,
		Server:     s.Server,
		Username:   s.Username,
		TeamNumber: s.TeamNumber,
		StartTime:  s.StartTime,
	}
	if s.EndTime.Valid {
		out.EndTime = s.EndTime.Time
	}
	return out
}

// TickToCore converts a GORM Tick to a core.Tick. The server string is not
// stored per tick and is taken from the session.
func TickToCore(t model.Tick, server string, teamNumber int) core.Tick {
	pos := pointToPosition(t.Position)

	out := core.Tick{
		Time:       t.Time,
		Server:     server,
		Outcome:    t.Outcome,
		StatusCode: t.StatusCode,
		Message:    t.Message,
		Local: core.LocalVehicleState{
			TeamNumber:  teamNumber,
			Latitude:    pos.Latitude,
			Longitude:   pos.Longitude,
			Altitude:    t.Altitude,
			Pitch:       t.Pitch,
			Yaw:         t.Yaw,
			Roll:        t.Roll,
			GroundSpeed: t.GroundSpeed,
			Battery:     t.Battery,
			Autonomous:  t.Autonomous,
			LockedOn:    t.LockedOn,
			Target: core.BoundingBox{
				CenterX: t.Target.CenterX,
				CenterY: t.Target.CenterY,
				Width:   t.Target.Width,
				Height:  t.Target.Height,
			},
		},
		ServerTime: core.TimeOfDay{
			Day:         t.ServerTime.Day,
			Hour:        t.ServerTime.Hour,
			Minute:      t.ServerTime.Minute,
			Second:      t.ServerTime.Second,
			Millisecond: t.ServerTime.Millisecond,
		},
	}

	if len(t.Peers) > 0 {
		var peers []core.AnnotatedPeer
		if err := json.Unmarshal(t.Peers, &peers); err == nil {
			out.Peers = peers
		}
	}

	if t.NearestTeam.Valid {
		nearest := core.NearestPeerResult{
			TeamNumber:     int(t.NearestTeam.Int32),
			DistanceMeters: t.NearestDistance.Float64,
		}
		for _, p := range out.Peers {
			if p.TeamNumber == nearest.TeamNumber {
				nearest.Position = p.Position()
				break
			}
		}
		out.Nearest = &nearest
	}

	return out
}
