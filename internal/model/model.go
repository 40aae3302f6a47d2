package model

import (
	"database/sql"
	"time"

	geom "github.com/peterstace/simplefeatures/geom"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

////////////////////////
// DATABASE STRUCTURES //
////////////////////////

// DatabaseModels is a list of all the structs exported here which represent tables in the database schema
var DatabaseModels = []interface{}{
	&LinkInfo{},
	&Session{},
	&Tick{},
	&PeerSighting{},
}

////////////////////////
// SYSTEM MODELS
////////////////////////

// LinkInfo identifies the team that owns the database
type LinkInfo struct {
	gorm.Model
	TeamName    string `json:"teamName" gorm:"size:127"`
	Description string `json:"description" gorm:"size:255"`
}

func (*LinkInfo) TableName() string {
	return "link_infos"
}

////////////////////////
// SESSION DATA
////////////////////////

// Session is one logged-in telemetry run
type Session struct {
	ID         uint         `json:"id" gorm:"primarykey;autoIncrement;"`
	Server     string       `json:"server" gorm:"size:255;index:idx_session_server"`
	Username   string       `json:"username" gorm:"size:64"`
	TeamNumber int          `json:"teamNumber"`
	StartTime  time.Time    `json:"startTime"`
	EndTime    sql.NullTime `json:"endTime" gorm:"default:NULL"`
}

func (*Session) TableName() string {
	return "sessions"
}

// Tick is one telemetry exchange with the competition server
type Tick struct {
	ID        uint      `json:"id" gorm:"primarykey;autoIncrement;"`
	Time      time.Time `json:"time" gorm:"index:idx_tick_time"`
	SessionID uint      `json:"sessionId" gorm:"index:idx_tick_session_id"`
	Session   Session   `gorm:"constraint:OnUpdate:CASCADE,OnDelete:CASCADE;foreignkey:SessionID;"`

	Outcome    string `json:"outcome" gorm:"size:32"`
	StatusCode int    `json:"statusCode"`
	Message    string `json:"message" gorm:"size:255"`

	Position    geom.Point  `json:"position"`    // WGS84 lon/lat
	Mercator    geom.Point  `json:"mercator"`    // EPSG:3857 projection of Position
	Altitude    float64     `json:"altitude"`    // meters
	Pitch       float64     `json:"pitch"`       // degrees
	Yaw         float64     `json:"yaw"`         // degrees
	Roll        float64     `json:"roll"`        // degrees
	GroundSpeed float64     `json:"groundSpeed"` // m/s
	Battery     int         `json:"battery"`     // percent
	Autonomous  bool        `json:"autonomous" gorm:"default:false"`
	LockedOn    bool        `json:"lockedOn" gorm:"default:false"`
	Target      BoundingBox `json:"target" gorm:"embedded;embeddedPrefix:target_"`
	ServerTime  TimeOfDay   `json:"serverTime" gorm:"embedded;embeddedPrefix:server_"`

	PeerCount       int             `json:"peerCount"`
	Peers           datatypes.JSON  `json:"peers"`
	NearestTeam     sql.NullInt32   `json:"nearestTeam" gorm:"default:NULL"`
	NearestDistance sql.NullFloat64 `json:"nearestDistance" gorm:"default:NULL"`
}

func (*Tick) TableName() string {
	return "ticks"
}

// BoundingBox is the lock-on rectangle in camera pixels
type BoundingBox struct {
	CenterX int `json:"centerX"`
	CenterY int `json:"centerY"`
	Width   int `json:"width"`
	Height  int `json:"height"`
}

// TimeOfDay is the server clock split into fields
type TimeOfDay struct {
	Day         int `json:"day"`
	Hour        int `json:"hour"`
	Minute      int `json:"minute"`
	Second      int `json:"second"`
	Millisecond int `json:"millisecond"`
}

// PeerSighting is one peer as seen in one tick
type PeerSighting struct {
	ID         uint      `json:"id" gorm:"primarykey;autoIncrement;"`
	Time       time.Time `json:"time"`
	SessionID  uint      `json:"sessionId" gorm:"index:idx_sighting_session_id"`
	Session    Session   `gorm:"constraint:OnUpdate:CASCADE,OnDelete:CASCADE;foreignkey:SessionID;"`
	TeamNumber int       `json:"teamNumber" gorm:"index:idx_sighting_team"`

	Position       geom.Point `json:"position"`
	Altitude       float64    `json:"altitude"`
	Pitch          float64    `json:"pitch"`
	Yaw            float64    `json:"yaw"`
	Roll           float64    `json:"roll"`
	Speed          float64    `json:"speed"`
	TimeSkewMs     int        `json:"timeSkewMs"`
	DistanceMeters float64    `json:"distanceMeters"`
}

func (*PeerSighting) TableName() string {
	return "peer_sightings"
}
