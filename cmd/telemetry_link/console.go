package main

import (
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/anafarta/telemetry-link/internal/display"
	"github.com/anafarta/telemetry-link/internal/geo"
	"github.com/anafarta/telemetry-link/pkg/core"
)

// consoleSink prints display events for an operator watching the terminal.
// The dispatcher calls it from a single goroutine.
type consoleSink struct {
	out    io.Writer
	reauth chan string
}

var _ display.Sink = (*consoleSink)(nil)

func newConsoleSink(out io.Writer) *consoleSink {
	return &consoleSink{out: out, reauth: make(chan string, 1)}
}

func (s *consoleSink) StatusLine(server, line string) {
	fmt.Fprintf(s.out, "%-21s %s\n", server, line)
}

func (s *consoleSink) PeersUpdated(peers []core.AnnotatedPeer) {
	if len(peers) == 0 {
		return
	}
	tw := tabwriter.NewWriter(s.out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "TEAM\tLAT\tLON\tALT\tSPEED\tDISTANCE")
	for _, p := range peers {
		fmt.Fprintf(tw, "%d\t%.6f\t%.6f\t%.1f\t%.1f\t%s\n",
			p.TeamNumber, p.Latitude, p.Longitude, p.Altitude, p.Speed, formatDistance(p.DistanceMeters))
	}
	_ = tw.Flush()
}

func (s *consoleSink) NearestUpdated(nearest core.NearestPeerResult, ok bool) {
	if !ok {
		return
	}
	fmt.Fprintf(s.out, "Nearest peer: team %d at %s\n", nearest.TeamNumber, formatDistance(nearest.DistanceMeters))
}

// ReauthRequired hands the server to the run loop, which exits. Later
// signals are dropped until it does.
func (s *consoleSink) ReauthRequired(server string) {
	fmt.Fprintf(s.out, "%-21s re-authentication required\n", server)
	select {
	case s.reauth <- server:
	default:
	}
}

func formatDistance(m float64) string {
	switch {
	case m == geo.Unreachable:
		return "-"
	case m >= 1000:
		return fmt.Sprintf("%.2f km", m/1000)
	default:
		return fmt.Sprintf("%.1f m", m)
	}
}
