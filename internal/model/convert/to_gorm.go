// Package convert provides functions to convert between GORM models and core models
package convert

import (
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/anafarta/telemetry-link/internal/geo"
	"github.com/anafarta/telemetry-link/internal/model"
	"github.com/anafarta/telemetry-link/pkg/core"
	geom "github.com/peterstace/simplefeatures/geom"
	"gorm.io/datatypes"
)

// positionToPoint converts a WGS84 position to a lon/lat point with altitude as Z
func positionToPoint(p core.Position) geom.Point {
	return geom.NewPoint(geom.Coordinates{
		XY:   geom.XY{X: p.Longitude, Y: p.Latitude},
		Z:    p.Altitude,
		Type: geom.DimXYZ,
	})
}

// peersToJSON encodes the peer list. A nil list stays JSON null so a tick
// without a peer update reads back as nil.
func peersToJSON(peers []core.AnnotatedPeer) (datatypes.JSON, error) {
	if peers == nil {
		return datatypes.JSON("null"), nil
	}
	data, err := json.Marshal(peers)
	if err != nil {
		return nil, fmt.Errorf("failed to encode peers: %w", err)
	}
	return datatypes.JSON(data), nil
}

// CoreToSession converts a core.Session to a GORM model.Session.
func CoreToSession(s core.Session) model.Session {
	out := model.Session{
		ID:         s.ID,
		Server:     s.Server,
		Username:   s.Username,
		TeamNumber: s.TeamNumber,
		StartTime:  s.StartTime,
	}
	if !s.EndTime.IsZero() {
		out.EndTime = sql.NullTime{Time: s.EndTime, Valid: true}
	}
	return out
}

// CoreToTick converts a core.Tick to a GORM model.Tick for the given session.
func CoreToTick(t core.Tick, sessionID uint) (model.Tick, error) {
	peers, err := peersToJSON(t.Peers)
	if err != nil {
		return model.Tick{}, err
	}

	local := t.Local
	out := model.Tick{
		Time:        t.Time,
		SessionID:   sessionID,
		Outcome:     t.Outcome,
		StatusCode:  t.StatusCode,
		Message:     t.Message,
		Position:    positionToPoint(local.Position()),
		Mercator:    geo.ProjectWebMercator(local.Position()),
		Altitude:    local.Altitude,
		Pitch:       local.Pitch,
		Yaw:         local.Yaw,
		Roll:        local.Roll,
		GroundSpeed: local.GroundSpeed,
		Battery:     local.Battery,
		Autonomous:  local.Autonomous,
		LockedOn:    local.LockedOn,
		Target: model.BoundingBox{
			CenterX: local.Target.CenterX,
			CenterY: local.Target.CenterY,
			Width:   local.Target.Width,
			Height:  local.Target.Height,
		},
		ServerTime: model.TimeOfDay{
			Day:         t.ServerTime.Day,
			Hour:        t.ServerTime.Hour,
			Minute:      t.ServerTime.Minute,
			Second:      t.ServerTime.Second,
			Millisecond: t.ServerTime.Millisecond,
		},
		PeerCount: len(t.Peers),
		Peers:     peers,
	}
	if t.Nearest != nil {
		out.NearestTeam = sql.NullInt32{Int32: int32(t.Nearest.TeamNumber), Valid: true}
		out.NearestDistance = sql.NullFloat64{Float64: t.Nearest.DistanceMeters, Valid: true}
	}
	return out, nil
}

// CoreToPeerSightings flattens the tick's peer list into one row per peer.
func CoreToPeerSightings(t core.Tick, sessionID uint) []model.PeerSighting {
	if len(t.Peers) == 0 {
		return nil
	}
	out := make([]model.PeerSighting, 0, len(t.Peers))
	for _, p := range t.Peers {
		out = append(out, model.PeerSighting{
			Time:           t.Time,
			SessionID:      sessionID,
			TeamNumber:     p.TeamNumber,
			Position:       positionToPoint(p.Position()),
			Altitude:       p.Altitude,
			Pitch:          p.Pitch,
			Yaw:            p.Yaw,
			Roll:           p.Roll,
			Speed:          p.Speed,
			TimeSkewMs:     p.TimeSkew,
			DistanceMeters: p.DistanceMeters,
		})
	}
	return out
}
