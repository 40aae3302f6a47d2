// Package wire holds the JSON schema spoken by the competition server.
// Field names are fixed by the server and must not be renamed.
package wire

// Endpoint paths relative to the server base URL.
const (
	PathServerTime = "/api/sunucusaati"
	PathLogin      = "/api/giris"
	PathTelemetry  = "/api/telemetri_gonder"
)

// GPSTime is the time-of-day object used both for our GPS time and the
// server clock.
type GPSTime struct {
	Day         int `json:"gun"`
	Hour        int `json:"saat"`
	Minute      int `json:"dakika"`
	Second      int `json:"saniye"`
	Millisecond int `json:"milisaniye"`
}

// Telemetry is the body of a telemetry post. Flags travel as 0/1.
type Telemetry struct {
	TeamNumber   int     `json:"takim_numarasi"`
	Latitude     float64 `json:"iha_enlem"`
	Longitude    float64 `json:"iha_boylam"`
	Altitude     float64 `json:"iha_irtifa"`
	Pitch        float64 `json:"iha_dikilme"`
	Yaw          float64 `json:"iha_yonelme"`
	Roll         float64 `json:"iha_yatis"`
	Speed        float64 `json:"iha_hiz"`
	Battery      int     `json:"iha_batarya"`
	Autonomous   int     `json:"iha_otonom"`
	LockedOn     int     `json:"iha_kilitlenme"`
	TargetX      int     `json:"hedef_merkez_X"`
	TargetY      int     `json:"hedef_merkez_Y"`
	TargetWidth  int     `json:"hedef_genislik"`
	TargetHeight int     `json:"hedef_yukseklik"`
	GPSTime      GPSTime `json:"gps_saati"`
}

// Peer is one entry of the server's position list. Pointer fields let the
// decoder tell a missing key from a zero value.
type Peer struct {
	TeamNumber *int     `json:"takim_numarasi"`
	Latitude   *float64 `json:"iha_enlem"`
	Longitude  *float64 `json:"iha_boylam"`
	Altitude   float64  `json:"iha_irtifa"`
	Pitch      float64  `json:"iha_dikilme"`
	Yaw        float64  `json:"iha_yonelme"`
	Roll       float64  `json:"iha_yatis"`
	Speed      float64  `json:"iha_hizi"`
	TimeSkew   int      `json:"zaman_farki"`
}

// TelemetryResponse is the body of a 200 reply to a telemetry post.
type TelemetryResponse struct {
	ServerTime GPSTime `json:"sunucusaati"`
	Peers      *[]Peer `json:"konumBilgileri"`
}

// LoginRequest is the body of a login post.
type LoginRequest struct {
	Username string `json:"kadi"`
	Password string `json:"sifre"`
}

// LoginResponse is the optional JSON body of a successful login.
type LoginResponse struct {
	Token string `json:"token"`
}
