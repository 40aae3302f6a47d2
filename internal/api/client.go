// internal/api/client.go
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/anafarta/telemetry-link/internal/codec"
	"github.com/anafarta/telemetry-link/pkg/core"
	"github.com/anafarta/telemetry-link/pkg/wire"
)

// DefaultTimeout bounds every request made by a Session.
const DefaultTimeout = 5 * time.Second

// maxBodySize caps how much of a reply is read.
const maxBodySize = 1 << 20

// Option configures a Session.
type Option func(*options)

type options struct {
	timeout   time.Duration
	transport http.RoundTripper
	logger    *slog.Logger
}

// WithTimeout overrides the per-request timeout.
func WithTimeout(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.timeout = d
		}
	}
}

// WithTransport sets the HTTP transport, mostly for tests.
func WithTransport(rt http.RoundTripper) Option {
	return func(o *options) {
		o.transport = rt
	}
}

// WithLogger sets the logger used for debug output.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) {
		o.logger = l
	}
}

// Session owns the connection to one competition server: the HTTP client,
// its cookie jar and the bearer token.
type Session struct {
	baseURL    *url.URL
	httpClient *http.Client
	logger     *slog.Logger

	jar *resettableJar

	mu       sync.RWMutex
	token    string
	probeErr error
	closed   bool
}

// NormalizeURL turns user input such as "10.0.0.5:5000" into an absolute URL,
// defaulting to http when no scheme is given.
func NormalizeURL(text string) (*url.URL, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, fmt.Errorf("%w: empty address", ErrInvalidURL)
	}
	lower := strings.ToLower(text)
	if !strings.HasPrefix(lower, "http://") && !strings.HasPrefix(lower, "https://") {
		text = "http://" + text
	}
	u, err := url.Parse(text)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidURL, err)
	}
	if !u.IsAbs() || u.Host == "" || u.Hostname() == "" {
		return nil, fmt.Errorf("%w: %q is not an absolute url", ErrInvalidURL, text)
	}
	u.Path = strings.TrimRight(u.Path, "/")
	u.RawQuery = ""
	u.Fragment = ""
	return u, nil
}

// NewSession creates a session without contacting the server.
func NewSession(urlText string, opts ...Option) (*Session, error) {
	o := options{timeout: DefaultTimeout, logger: slog.Default()}
	for _, opt := range opts {
		opt(&o)
	}

	base, err := NormalizeURL(urlText)
	if err != nil {
		return nil, err
	}

	jar, err := newResettableJar()
	if err != nil {
		return nil, fmt.Errorf("failed to create cookie jar: %w", err)
	}

	s := &Session{
		baseURL: base,
		jar:     jar,
		logger:  o.logger.With("server", base.Host),
	}
	s.httpClient = &http.Client{
		Timeout:   o.timeout,
		Transport: o.transport,
		Jar:       jar,
	}
	return s, nil
}

// Connect creates a session and probes the server. A failed probe is kept
// in ProbeErr but does not fail the connect.
func Connect(ctx context.Context, urlText string, opts ...Option) (*Session, error) {
	s, err := NewSession(urlText, opts...)
	if err != nil {
		return nil, err
	}
	probeErr := s.Probe(ctx)
	s.mu.Lock()
	s.probeErr = probeErr
	s.mu.Unlock()
	if probeErr != nil {
		s.logger.Debug("Reachability probe failed", "error", probeErr)
	}
	return s, nil
}

// BaseURL returns a copy of the server base URL.
func (s *Session) BaseURL() *url.URL {
	u := *s.baseURL
	return &u
}

// Host returns the server host:port, used as the key of its status log.
func (s *Session) Host() string {
	return s.baseURL.Host
}

// ProbeErr returns the result of the probe issued by Connect.
func (s *Session) ProbeErr() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.probeErr
}

// Probe checks that the server is reachable. Any 2xx is accepted.
func (s *Session) Probe(ctx context.Context) error {
	req, err := s.newRequest(ctx, http.MethodGet, wire.PathServerTime, nil)
	if err != nil {
		return err
	}
	resp, err := s.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: probe request failed: %v", ErrNetwork, err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxBodySize))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &StatusError{Op: "probe", Code: resp.StatusCode}
	}
	return nil
}

// Login posts the team credentials. A token in the reply is attached as a
// bearer header to every later request; cookies are kept by the jar.
func (s *Session) Login(ctx context.Context, username, password string) error {
	username = strings.TrimSpace(username)
	password = strings.TrimSpace(password)
	if username == "" || password == "" {
		return ErrMissingCredentials
	}

	body, err := json.Marshal(wire.LoginRequest{Username: username, Password: password})
	if err != nil {
		return fmt.Errorf("failed to marshal login: %w", err)
	}
	req, err := s.newRequest(ctx, http.MethodPost, wire.PathLogin, body)
	if err != nil {
		return err
	}

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: login request failed: %v", ErrNetwork, err)
	}
	defer resp.Body.Close()
	data, _ := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &StatusError{Op: "login", Code: resp.StatusCode}
	}

	var lr wire.LoginResponse
	if len(bytes.TrimSpace(data)) > 0 {
		if err := json.Unmarshal(data, &lr); err != nil {
			// a non-JSON body is fine; the server may rely on cookies only
			s.logger.Debug("Login reply is not JSON", "error", err)
		}
	}
	if lr.Token != "" {
		s.mu.Lock()
		s.token = lr.Token
		s.mu.Unlock()
		s.logger.Debug("Bearer token stored")
	}
	return nil
}

// IsLoggedIn reports whether a token is held or the jar has a cookie for the
// server.
func (s *Session) IsLoggedIn() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return false
	}
	if s.token != "" {
		return true
	}
	return len(s.jar.Cookies(s.baseURL)) > 0
}

// Token returns the bearer token, if any.
func (s *Session) Token() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.token
}

// PostTelemetry sends one vehicle snapshot and classifies the reply. It never
// returns a Go error; failures are carried in the Result.
func (s *Session) PostTelemetry(ctx context.Context, state core.LocalVehicleState) Result {
	body, err := codec.EncodeTelemetry(state)
	if err != nil {
		return Result{Outcome: OutcomeMalformedRequest, Err: err}
	}
	req, err := s.newRequest(ctx, http.MethodPost, wire.PathTelemetry, body)
	if err != nil {
		return Result{Outcome: OutcomeNetworkError, Err: err}
	}

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return Result{Outcome: OutcomeNetworkError, Err: fmt.Errorf("%w: %v", ErrNetwork, err)}
	}
	defer resp.Body.Close()
	data, readErr := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))

	res := Result{
		Outcome:    ClassifyStatus(resp.StatusCode),
		StatusCode: resp.StatusCode,
	}
	switch res.Outcome {
	case OutcomeSuccess:
		if readErr != nil {
			res.DecodeErr = fmt.Errorf("%w: read body: %v", codec.ErrDecode, readErr)
			res.Peers = []core.PeerRecord{}
			return res
		}
		serverTime, peers, err := codec.DecodeServerResponse(data)
		if err != nil {
			res.DecodeErr = err
			res.Peers = []core.PeerRecord{}
			return res
		}
		res.ServerTime = serverTime
		res.Peers = peers
	case OutcomeUnauthorized:
		s.resetCredentials()
		res.Err = &StatusError{Op: "telemetry", Code: resp.StatusCode}
	default:
		res.Err = &StatusError{Op: "telemetry", Code: resp.StatusCode}
	}
	return res
}

// Close drops the credentials and idle connections. It is safe to call more
// than once.
func (s *Session) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	s.mu.Unlock()

	s.resetCredentials()
	s.httpClient.CloseIdleConnections()
}

// resetCredentials forgets the token and every cookie.
func (s *Session) resetCredentials() {
	s.mu.Lock()
	s.token = ""
	s.mu.Unlock()
	s.jar.reset()
}

func (s *Session) isClosed() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.closed
}

func (s *Session) newRequest(ctx context.Context, method, path string, body []byte) (*http.Request, error) {
	if s.isClosed() {
		return nil, ErrSessionClosed
	}

	u := s.baseURL.JoinPath(path)
	var rdr io.Reader
	if body != nil {
		rdr = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, u.String(), rdr)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	if tok := s.Token(); tok != "" {
		req.Header.Set("Authorization", "Bearer "+tok)
	}
	return req, nil
}
