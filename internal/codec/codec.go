// Package codec maps between the local domain types and the competition
// server's wire schema.
package codec

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/anafarta/telemetry-link/pkg/core"
	"github.com/anafarta/telemetry-link/pkg/wire"
)

// ErrDecode is returned for any body that is not valid JSON or does not match
// the expected schema.
var ErrDecode = errors.New("decode error")

// ToWire converts a vehicle snapshot into its wire form.
func ToWire(s core.LocalVehicleState) wire.Telemetry {
	return wire.Telemetry{
		TeamNumber:   s.TeamNumber,
		Latitude:     s.Latitude,
		Longitude:    s.Longitude,
		Altitude:     s.Altitude,
		Pitch:        s.Pitch,
		Yaw:          s.Yaw,
		Roll:         s.Roll,
		Speed:        s.GroundSpeed,
		Battery:      core.ClampBattery(s.Battery),
		Autonomous:   boolToInt(s.Autonomous),
		LockedOn:     boolToInt(s.LockedOn),
		TargetX:      s.Target.CenterX,
		TargetY:      s.Target.CenterY,
		TargetWidth:  s.Target.Width,
		TargetHeight: s.Target.Height,
		GPSTime:      timeToWire(s.Time),
	}
}

// FromWire converts a wire telemetry body back into a vehicle snapshot.
func FromWire(t wire.Telemetry) core.LocalVehicleState {
	return core.LocalVehicleState{
		TeamNumber:  t.TeamNumber,
		Latitude:    t.Latitude,
		Longitude:   t.Longitude,
		Altitude:    t.Altitude,
		Pitch:       t.Pitch,
		Yaw:         t.Yaw,
		Roll:        t.Roll,
		GroundSpeed: t.Speed,
		Battery:     core.ClampBattery(t.Battery),
		Autonomous:  t.Autonomous != 0,
		LockedOn:    t.LockedOn != 0,
		Target: core.BoundingBox{
			CenterX: t.TargetX,
			CenterY: t.TargetY,
			Width:   t.TargetWidth,
			Height:  t.TargetHeight,
		},
		Time: timeFromWire(t.GPSTime),
	}
}

// EncodeTelemetry serializes a vehicle snapshot to the telemetry body.
func EncodeTelemetry(s core.LocalVehicleState) ([]byte, error) {
	data, err := json.Marshal(ToWire(s))
	if err != nil {
		return nil, fmt.Errorf("marshal telemetry: %w", err)
	}
	return data, nil
}

// DecodeTelemetry parses a telemetry body. The server never sends one back;
// it exists so the schema can be checked in both directions.
func DecodeTelemetry(data []byte) (core.LocalVehicleState, error) {
	var t wire.Telemetry
	if err := json.Unmarshal(data, &t); err != nil {
		return core.LocalVehicleState{}, fmt.Errorf("%w: telemetry: %v", ErrDecode, err)
	}
	return FromWire(t), nil
}

// DecodeServerResponse parses the reply to a telemetry post into the server
// clock and the list of peers, in server order.
func DecodeServerResponse(data []byte) (core.TimeOfDay, []core.PeerRecord, error) {
	var resp wire.TelemetryResponse
	if err := json.Unmarshal(data, &resp); err != nil {
		return core.TimeOfDay{}, nil, fmt.Errorf("%w: response: %v", ErrDecode, err)
	}
	if resp.Peers == nil {
		return core.TimeOfDay{}, nil, fmt.Errorf("%w: response: missing konumBilgileri", ErrDecode)
	}

	peers := make([]core.PeerRecord, 0, len(*resp.Peers))
	for i, p := range *resp.Peers {
		if p.TeamNumber == nil || p.Latitude == nil || p.Longitude == nil {
			return core.TimeOfDay{}, nil, fmt.Errorf("%w: peer %d: missing team number or position", ErrDecode, i)
		}
		peers = append(peers, core.PeerRecord{
			TeamNumber: *p.TeamNumber,
			Latitude:   *p.Latitude,
			Longitude:  *p.Longitude,
			Altitude:   p.Altitude,
			Pitch:      p.Pitch,
			Yaw:        p.Yaw,
			Roll:       p.Roll,
			Speed:      p.Speed,
			TimeSkew:   p.TimeSkew,
		})
	}
	return timeFromWire(resp.ServerTime), peers, nil
}

func timeToWire(t core.TimeOfDay) wire.GPSTime {
	return wire.GPSTime{
		Day:         t.Day,
		Hour:        t.Hour,
		Minute:      t.Minute,
		Second:      t.Second,
		Millisecond: t.Millisecond,
	}
}

func timeFromWire(t wire.GPSTime) core.TimeOfDay {
	return core.TimeOfDay{
		Day:         t.Day,
		Hour:        t.Hour,
		Minute:      t.Minute,
		Second:      t.Second,
		Millisecond: t.Millisecond,
	}
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
