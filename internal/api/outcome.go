package api

import (
	"fmt"
	"net/http"

	"github.com/anafarta/telemetry-link/pkg/core"
)

// Outcome classifies the result of one telemetry post.
type Outcome int

const (
	OutcomeSuccess Outcome = iota
	OutcomeMalformedRequest
	OutcomeUnauthorized
	OutcomeForbidden
	OutcomeNotFound
	OutcomeServerFault
	OutcomeUnknownStatus
	OutcomeNetworkError
)

var outcomeNames = map[Outcome]string{
	OutcomeSuccess:          "success",
	OutcomeMalformedRequest: "malformed_request",
	OutcomeUnauthorized:     "unauthorized",
	OutcomeForbidden:        "forbidden",
	OutcomeNotFound:         "not_found",
	OutcomeServerFault:      "server_fault",
	OutcomeUnknownStatus:    "unknown_status",
	OutcomeNetworkError:     "network_error",
}

func (o Outcome) String() string {
	if name, ok := outcomeNames[o]; ok {
		return name
	}
	return fmt.Sprintf("outcome(%d)", int(o))
}

// ClassifyStatus maps an HTTP status of a telemetry reply to an Outcome.
func ClassifyStatus(code int) Outcome {
	switch code {
	case http.StatusOK:
		return OutcomeSuccess
	case http.StatusNoContent, http.StatusBadRequest:
		return OutcomeMalformedRequest
	case http.StatusUnauthorized:
		return OutcomeUnauthorized
	case http.StatusForbidden:
		return OutcomeForbidden
	case http.StatusNotFound:
		return OutcomeNotFound
	case http.StatusInternalServerError:
		return OutcomeServerFault
	default:
		return OutcomeUnknownStatus
	}
}

// Result is everything a telemetry post produced.
type Result struct {
	Outcome    Outcome
	StatusCode int // zero for OutcomeNetworkError
	ServerTime core.TimeOfDay
	Peers      []core.PeerRecord
	// DecodeErr is set when the server answered 200 but the body could not
	// be parsed. Peers is empty in that case.
	DecodeErr error
	// Err is set for every non-success outcome.
	Err error
}

// PeersUpdated reports whether the result carries a fresh peer list.
func (r Result) PeersUpdated() bool {
	return r.Outcome == OutcomeSuccess && r.DecodeErr == nil
}

// Message is the single status line describing the result.
func (r Result) Message() string {
	switch r.Outcome {
	case OutcomeSuccess:
		if r.DecodeErr != nil {
			return fmt.Sprintf("Telemetry sent (200) but the reply could not be parsed: %v", r.DecodeErr)
		}
		return fmt.Sprintf("Telemetry sent (200), %d peers received", len(r.Peers))
	case OutcomeMalformedRequest:
		return fmt.Sprintf("Server: %d - telemetry packet rejected as malformed", r.StatusCode)
	case OutcomeUnauthorized:
		return "Server: 401 - unauthorized, login again"
	case OutcomeForbidden:
		return "Server: 403 - forbidden"
	case OutcomeNotFound:
		return "Server: 404 - invalid url"
	case OutcomeServerFault:
		return "Server: 500 - internal server error"
	case OutcomeUnknownStatus:
		return fmt.Sprintf("Server status code: %d %s", r.StatusCode, http.StatusText(r.StatusCode))
	case OutcomeNetworkError:
		return fmt.Sprintf("HTTP POST failed: %v", r.Err)
	default:
		return r.Outcome.String()
	}
}
