// pkg/core/session.go
package core

import "time"

// Session is one logged-in telemetry run against a competition server.
// Storage backends group ticks under it.
type Session struct {
	ID         uint
	Server     string
	Username   string
	TeamNumber int
	StartTime  time.Time
	EndTime    time.Time
}
