// internal/api/client_test.go
package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/anafarta/telemetry-link/internal/codec"
	"github.com/anafarta/telemetry-link/pkg/core"
	"github.com/anafarta/telemetry-link/pkg/wire"
)

// competitionServer is a fake server recording what the client sent.
type competitionServer struct {
	*httptest.Server
	probes     atomic.Int32
	telemetry  atomic.Int32
	lastAuth   atomic.Value
	lastBody   atomic.Value
	loginReply func(w http.ResponseWriter, r *http.Request)
	telReply   func(w http.ResponseWriter, r *http.Request)
}

func newCompetitionServer(t *testing.T) *competitionServer {
	t.Helper()
	cs := &competitionServer{}
	cs.lastAuth.Store("")
	cs.lastBody.Store([]byte(nil))

	mux := http.NewServeMux()
	mux.HandleFunc(wire.PathServerTime, func(w http.ResponseWriter, r *http.Request) {
		cs.probes.Add(1)
		if r.Method != http.MethodGet {
			t.Errorf("expected GET probe, got %s", r.Method)
		}
		_, _ = w.Write([]byte(`{"gun":16,"saat":9,"dakika":0,"saniye":0,"milisaniye":0}`))
	})
	mux.HandleFunc(wire.PathLogin, func(w http.ResponseWriter, r *http.Request) {
		if cs.loginReply != nil {
			cs.loginReply(w, r)
			return
		}
		w.WriteHeader(http.StatusOK)
	})
	mux.HandleFunc(wire.PathTelemetry, func(w http.ResponseWriter, r *http.Request) {
		cs.telemetry.Add(1)
		cs.lastAuth.Store(r.Header.Get("Authorization"))
		body, _ := io.ReadAll(r.Body)
		cs.lastBody.Store(body)
		if cs.telReply != nil {
			cs.telReply(w, r)
			return
		}
		_, _ = w.Write([]byte(`{"sunucusaati":{},"konumBilgileri":[]}`))
	})

	cs.Server = httptest.NewServer(mux)
	t.Cleanup(cs.Close)
	return cs
}

func tokenLogin(token string) func(w http.ResponseWriter, r *http.Request) {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]string{"token": token})
	}
}

func statusReply(code int) func(w http.ResponseWriter, r *http.Request) {
	return func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(code)
	}
}

func TestNormalizeURL(t *testing.T) {
	cases := map[string]string{
		"http://host:5000":     "http://host:5000",
		"host:5000":            "http://host:5000",
		"  10.0.0.5:8080/  ":   "http://10.0.0.5:8080",
		"HTTPS://secure.local": "https://secure.local",
		"http://host/base/":    "http://host/base",
	}
	for in, want := range cases {
		u, err := NormalizeURL(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, u.String(), in)
	}
}

func TestNormalizeURL_Invalid(t *testing.T) {
	for _, in := range []string{"", "   ", "http://", "http://:5000", "ht tp://bad host"} {
		_, err := NormalizeURL(in)
		assert.ErrorIs(t, err, ErrInvalidURL, in)
	}
}

func TestConnect_ProbesServer(t *testing.T) {
	cs := newCompetitionServer(t)

	s, err := Connect(context.Background(), cs.URL)
	require.NoError(t, err)
	defer s.Close()

	assert.Equal(t, int32(1), cs.probes.Load())
	assert.NoError(t, s.ProbeErr())
	assert.False(t, s.IsLoggedIn())
}

func TestConnect_ProbeFailureStillConnects(t *testing.T) {
	s, err := Connect(context.Background(), "http://127.0.0.1:1")
	require.NoError(t, err)
	defer s.Close()

	assert.ErrorIs(t, s.ProbeErr(), ErrNetwork)
	assert.Equal(t, "127.0.0.1:1", s.Host())
}

func TestConnect_ProbeNon2xx(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	s, err := Connect(context.Background(), srv.URL)
	require.NoError(t, err)

	var se *StatusError
	require.ErrorAs(t, s.ProbeErr(), &se)
	assert.Equal(t, http.StatusServiceUnavailable, se.Code)
}

func TestConnect_InvalidURL(t *testing.T) {
	s, err := Connect(context.Background(), "http://")
	assert.Nil(t, s)
	assert.ErrorIs(t, err, ErrInvalidURL)
}

func TestLogin_TokenAttachedToLaterRequests(t *testing.T) {
	cs := newCompetitionServer(t)
	var gotBody wire.LoginRequest
	cs.loginReply = func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		_ = json.NewDecoder(r.Body).Decode(&gotBody)
		tokenLogin("abc123")(w, r)
	}

	s, err := Connect(context.Background(), cs.URL)
	require.NoError(t, err)

	require.NoError(t, s.Login(context.Background(), "takimkadi", "takimsifresi"))
	assert.Equal(t, wire.LoginRequest{Username: "takimkadi", Password: "takimsifresi"}, gotBody)
	assert.True(t, s.IsLoggedIn())
	assert.Equal(t, "abc123", s.Token())

	res := s.PostTelemetry(context.Background(), core.LocalVehicleState{TeamNumber: 20})
	require.Equal(t, OutcomeSuccess, res.Outcome)
	assert.Equal(t, "Bearer abc123", cs.lastAuth.Load())
}

func TestLogin_CookieOnly(t *testing.T) {
	cs := newCompetitionServer(t)
	cs.loginReply = func(w http.ResponseWriter, r *http.Request) {
		http.SetCookie(w, &http.Cookie{Name: "session", Value: "xyz", Path: "/"})
		_, _ = w.Write([]byte("OK"))
	}

	s, err := Connect(context.Background(), cs.URL)
	require.NoError(t, err)

	require.NoError(t, s.Login(context.Background(), "u", "p"))
	assert.Empty(t, s.Token())
	assert.True(t, s.IsLoggedIn())
}

func TestLogin_SuccessWithoutCredentialsIsNotLoggedIn(t *testing.T) {
	cs := newCompetitionServer(t)

	s, err := Connect(context.Background(), cs.URL)
	require.NoError(t, err)

	require.NoError(t, s.Login(context.Background(), "u", "p"))
	assert.False(t, s.IsLoggedIn())
}

func TestLogin_Errors(t *testing.T) {
	cs := newCompetitionServer(t)
	s, err := Connect(context.Background(), cs.URL)
	require.NoError(t, err)

	assert.ErrorIs(t, s.Login(context.Background(), "", "p"), ErrMissingCredentials)
	assert.ErrorIs(t, s.Login(context.Background(), "u", "  "), ErrMissingCredentials)

	cs.loginReply = statusReply(http.StatusUnauthorized)
	err = s.Login(context.Background(), "u", "wrong")
	assert.ErrorIs(t, err, ErrUnauthorized)
	assert.False(t, s.IsLoggedIn())

	cs.loginReply = statusReply(http.StatusBadGateway)
	err = s.Login(context.Background(), "u", "p")
	assert.ErrorIs(t, err, ErrServer)
	var se *StatusError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, http.StatusBadGateway, se.Code)
}

func TestLogin_NetworkError(t *testing.T) {
	s, err := NewSession("http://127.0.0.1:1")
	require.NoError(t, err)
	assert.ErrorIs(t, s.Login(context.Background(), "u", "p"), ErrNetwork)
}

func TestPostTelemetry_SendsWireSchema(t *testing.T) {
	cs := newCompetitionServer(t)
	s, err := NewSession(cs.URL)
	require.NoError(t, err)

	state := core.LocalVehicleState{TeamNumber: 20, Latitude: 40.1, Longitude: 26.2, Battery: 55, Autonomous: true}
	res := s.PostTelemetry(context.Background(), state)
	require.Equal(t, OutcomeSuccess, res.Outcome)

	got, err := codec.DecodeTelemetry(cs.lastBody.Load().([]byte))
	require.NoError(t, err)
	assert.Equal(t, state, got)
}

func TestPostTelemetry_DecodesPeers(t *testing.T) {
	cs := newCompetitionServer(t)
	cs.telReply = func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"sunucusaati":{"gun":1,"saat":2,"dakika":3,"saniye":4,"milisaniye":5},
			"konumBilgileri":[{"takim_numarasi":7,"iha_enlem":1.0,"iha_boylam":1.0,"iha_irtifa":30,"iha_hizi":22,"zaman_farki":40}]}`))
	}
	s, err := NewSession(cs.URL)
	require.NoError(t, err)

	res := s.PostTelemetry(context.Background(), core.LocalVehicleState{})
	assert.Equal(t, OutcomeSuccess, res.Outcome)
	assert.True(t, res.PeersUpdated())
	assert.NoError(t, res.DecodeErr)
	assert.Equal(t, core.TimeOfDay{Day: 1, Hour: 2, Minute: 3, Second: 4, Millisecond: 5}, res.ServerTime)
	require.Len(t, res.Peers, 1)
	assert.Equal(t, 7, res.Peers[0].TeamNumber)
	assert.Equal(t, 22.0, res.Peers[0].Speed)
	assert.Equal(t, 40, res.Peers[0].TimeSkew)
	assert.Contains(t, res.Message(), "1 peers")
}

func TestPostTelemetry_UnparsableBodyIsPartialSuccess(t *testing.T) {
	cs := newCompetitionServer(t)
	cs.telReply = func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`not json`))
	}
	s, err := NewSession(cs.URL)
	require.NoError(t, err)

	res := s.PostTelemetry(context.Background(), core.LocalVehicleState{})
	assert.Equal(t, OutcomeSuccess, res.Outcome)
	assert.False(t, res.PeersUpdated())
	assert.ErrorIs(t, res.DecodeErr, codec.ErrDecode)
	assert.NotNil(t, res.Peers)
	assert.Empty(t, res.Peers)
	assert.NoError(t, res.Err)
}

func TestPostTelemetry_StatusMapping(t *testing.T) {
	cases := []struct {
		code int
		want Outcome
	}{
		{http.StatusNoContent, OutcomeMalformedRequest},
		{http.StatusBadRequest, OutcomeMalformedRequest},
		{http.StatusUnauthorized, OutcomeUnauthorized},
		{http.StatusForbidden, OutcomeForbidden},
		{http.StatusNotFound, OutcomeNotFound},
		{http.StatusInternalServerError, OutcomeServerFault},
		{http.StatusTeapot, OutcomeUnknownStatus},
		{http.StatusBadGateway, OutcomeUnknownStatus},
	}
	for _, tc := range cases {
		t.Run(http.StatusText(tc.code), func(t *testing.T) {
			cs := newCompetitionServer(t)
			cs.telReply = statusReply(tc.code)
			s, err := NewSession(cs.URL)
			require.NoError(t, err)

			res := s.PostTelemetry(context.Background(), core.LocalVehicleState{})
			assert.Equal(t, tc.want, res.Outcome)
			assert.Equal(t, tc.code, res.StatusCode)
			assert.Error(t, res.Err)
			assert.Nil(t, res.Peers)
			assert.NotEmpty(t, res.Message())
		})
	}
}

func TestPostTelemetry_UnauthorizedDropsCredentials(t *testing.T) {
	cs := newCompetitionServer(t)
	cs.loginReply = func(w http.ResponseWriter, r *http.Request) {
		http.SetCookie(w, &http.Cookie{Name: "session", Value: "xyz", Path: "/"})
		tokenLogin("abc123")(w, r)
	}
	cs.telReply = statusReply(http.StatusUnauthorized)

	s, err := Connect(context.Background(), cs.URL)
	require.NoError(t, err)
	require.NoError(t, s.Login(context.Background(), "u", "p"))
	require.True(t, s.IsLoggedIn())

	res := s.PostTelemetry(context.Background(), core.LocalVehicleState{})
	assert.Equal(t, OutcomeUnauthorized, res.Outcome)
	assert.ErrorIs(t, res.Err, ErrUnauthorized)
	assert.False(t, s.IsLoggedIn())
}

func TestPostTelemetry_NetworkError(t *testing.T) {
	s, err := NewSession("http://127.0.0.1:1")
	require.NoError(t, err)

	res := s.PostTelemetry(context.Background(), core.LocalVehicleState{})
	assert.Equal(t, OutcomeNetworkError, res.Outcome)
	assert.Zero(t, res.StatusCode)
	assert.True(t, errors.Is(res.Err, ErrNetwork))
	assert.Contains(t, res.Message(), "HTTP POST failed")
}

func TestClose_Idempotent(t *testing.T) {
	cs := newCompetitionServer(t)
	cs.loginReply = tokenLogin("abc123")
	s, err := Connect(context.Background(), cs.URL)
	require.NoError(t, err)
	require.NoError(t, s.Login(context.Background(), "u", "p"))

	s.Close()
	s.Close()

	assert.False(t, s.IsLoggedIn())
	assert.ErrorIs(t, s.Probe(context.Background()), ErrSessionClosed)
	res := s.PostTelemetry(context.Background(), core.LocalVehicleState{})
	assert.Equal(t, OutcomeNetworkError, res.Outcome)
	assert.ErrorIs(t, res.Err, ErrSessionClosed)
}

func TestClassifyStatus_OK(t *testing.T) {
	assert.Equal(t, OutcomeSuccess, ClassifyStatus(http.StatusOK))
	assert.Equal(t, "server_fault", OutcomeServerFault.String())
	assert.Equal(t, "outcome(99)", Outcome(99).String())
}
