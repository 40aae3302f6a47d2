package influx

import (
	"compress/gzip"
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	influxdb2_api "github.com/influxdata/influxdb-client-go/v2/api"
	influxdb2_write "github.com/influxdata/influxdb-client-go/v2/api/write"
	"github.com/influxdata/influxdb-client-go/v2/domain"
	"github.com/rs/zerolog"

	"github.com/anafarta/telemetry-link/internal/config"
	"github.com/anafarta/telemetry-link/pkg/core"
)

// Measurement names written by the backend.
const (
	MeasurementTelemetry = "telemetry"
	MeasurementPeer      = "peer"
	MeasurementSession   = "session"
)

// retentionSeconds is the bucket retention applied when the bucket is created.
const retentionSeconds = 60 * 60 * 24 * 90

// ErrNotConnected is returned when writing before Init.
var ErrNotConnected = errors.New("influxDB client not initialized and backup writer not available")

// Manager handles InfluxDB connections and writes. When the server cannot be
// reached it writes line protocol to a gzip backup file instead.
type Manager struct {
	Client       influxdb2.Client
	Writer       influxdb2_api.WriteAPI
	BackupWriter *gzip.Writer
	IsValid      bool
	Logger       zerolog.Logger

	cfg        config.InfluxConfig
	backupFile *os.File
	session    core.Session
	mu         sync.Mutex
}

// NewManager creates a new InfluxDB manager.
func NewManager(log zerolog.Logger, cfg config.InfluxConfig) *Manager {
	return &Manager{
		IsValid: false,
		Logger:  log,
		cfg:     cfg,
	}
}

// ServerURL builds the InfluxDB base URL from the config.
func ServerURL(cfg config.InfluxConfig) string {
	return fmt.Sprintf("%s://%s:%s", cfg.Protocol, cfg.Host, cfg.Port)
}

// Init establishes a connection to InfluxDB, falling back to the backup
// file when the server does not answer the health check.
func (m *Manager) Init(ctx context.Context) error {
	m.Client = influxdb2.NewClientWithOptions(
		ServerURL(m.cfg),
		m.cfg.Token,
		influxdb2.DefaultOptions().
			SetBatchSize(500).
			SetFlushInterval(1000),
	)

	// validate client connection health
	running, err := m.Client.Ping(ctx)

	if err != nil || !running {
		m.IsValid = false
		if m.BackupWriter == nil {
			m.Logger.Info().Str("backupPath", m.cfg.BackupPath).
				Msg("Failed to initialize InfluxDB client, writing to backup file")

			file, err := os.OpenFile(m.cfg.BackupPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
			if err != nil {
				return fmt.Errorf("error creating backup file: %v", err)
			}
			m.backupFile = file
			m.BackupWriter = gzip.NewWriter(file)
		}
		m.Logger.Warn().Msg("InfluxDB client failed to initialize, using backup writer")
		return nil
	}

	m.IsValid = true
	if err := m.setupOrganizationAndBucket(ctx); err != nil {
		return err
	}
	m.createWriter()
	m.Logger.Info().Msg("InfluxDB client initialized")
	return nil
}

func (m *Manager) setupOrganizationAndBucket(ctx context.Context) error {
	orgName := m.cfg.Org

	// ensure org exists
	influxOrg, err := m.Client.OrganizationsAPI().FindOrganizationByName(ctx, orgName)
	if err != nil {
		m.Logger.Info().Str("org", orgName).Msg("Organization not found, creating")
		influxOrg, err = m.Client.OrganizationsAPI().CreateOrganizationWithName(ctx, orgName)
		if err != nil {
			m.Logger.Error().Err(err).Str("org", orgName).Msg("Error creating organization")
			return err
		}
	}

	// ensure bucket exists with 90 day retention
	if _, err = m.Client.BucketsAPI().FindBucketByName(ctx, m.cfg.Bucket); err != nil {
		m.Logger.Info().Str("bucket", m.cfg.Bucket).Msg("Bucket not found, creating")

		rule := domain.RetentionRuleTypeExpire
		_, err = m.Client.BucketsAPI().CreateBucketWithName(ctx, influxOrg, m.cfg.Bucket, domain.RetentionRule{
			Type:         &rule,
			EverySeconds: retentionSeconds,
		})
		if err != nil {
			m.Logger.Error().Err(err).Str("bucket", m.cfg.Bucket).Msg("Error creating bucket")
			return err
		}
	}

	return nil
}

// createWriter creates the non-blocking write API and drains its error channel.
func (m *Manager) createWriter() {
	m.Writer = m.Client.WriteAPI(m.cfg.Org, m.cfg.Bucket)

	errorsCh := m.Writer.Errors()
	go func() {
		for writeErr := range errorsCh {
			m.Logger.Error().Err(writeErr).Str("bucket", m.cfg.Bucket).
				Msg("Error sending data to InfluxDB")
		}
	}()

	m.Logger.Debug().Str("bucket", m.cfg.Bucket).Msg("InfluxDB writer initialized")
}

// WritePoint writes a point to InfluxDB or backup file.
func (m *Manager) WritePoint(point *influxdb2_write.Point) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.IsValid {
		if m.Writer == nil {
			return fmt.Errorf("influxDB bucket '%s' not registered", m.cfg.Bucket)
		}
		m.Writer.WritePoint(point)
		return nil
	}

	if m.BackupWriter == nil {
		return ErrNotConnected
	}

	lineProtocol := strings.TrimSuffix(influxdb2_write.PointToLineProtocol(point, time.Nanosecond), "\n")
	if _, err := m.BackupWriter.Write([]byte(lineProtocol + "\n")); err != nil {
		return fmt.Errorf("error writing to InfluxDB backup file: %s", err)
	}
	return nil
}

// StartSession writes a session marker point and tags later points with the
// session's server and team.
func (m *Manager) StartSession(_ context.Context, s *core.Session) error {
	m.mu.Lock()
	m.session = *s
	m.mu.Unlock()

	return m.WritePoint(SessionPoint(*s, "start", s.StartTime))
}

// EndSession writes the closing session marker and flushes pending points.
func (m *Manager) EndSession(context.Context) error {
	m.mu.Lock()
	s := m.session
	m.mu.Unlock()

	if err := m.WritePoint(SessionPoint(s, "end", time.Now())); err != nil {
		return err
	}
	m.flush()
	return nil
}

// RecordTick writes the telemetry point and one point per peer.
func (m *Manager) RecordTick(_ context.Context, t core.Tick) error {
	m.mu.Lock()
	team := m.session.TeamNumber
	m.mu.Unlock()

	if err := m.WritePoint(TickPoint(t, team)); err != nil {
		return err
	}
	for _, p := range t.Peers {
		if err := m.WritePoint(PeerPoint(t.Server, t.Time, p)); err != nil {
			return err
		}
	}
	return nil
}

func (m *Manager) flush() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Writer != nil {
		m.Writer.Flush()
	}
	if m.BackupWriter != nil {
		if err := m.BackupWriter.Flush(); err != nil {
			m.Logger.Warn().Err(err).Msg("Failed to flush InfluxDB backup file")
		}
	}
}

// Close flushes and releases the client and backup file.
func (m *Manager) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	var err error
	if m.Client != nil {
		m.Client.Close() // flushes the write API
		m.Client = nil
		m.Writer = nil
	}
	if m.BackupWriter != nil {
		err = errors.Join(err, m.BackupWriter.Close())
		m.BackupWriter = nil
	}
	if m.backupFile != nil {
		err = errors.Join(err, m.backupFile.Close())
		m.backupFile = nil
	}
	return err
}

// TickPoint builds the telemetry point for one tick.
func TickPoint(t core.Tick, team int) *influxdb2_write.Point {
	if team == 0 {
		team = t.Local.TeamNumber
	}
	local := t.Local
	point := influxdb2_write.NewPointWithMeasurement(MeasurementTelemetry).
		AddTag("server", t.Server).
		AddTag("team", strconv.Itoa(team)).
		AddTag("outcome", t.Outcome).
		AddField("status", t.StatusCode).
		AddField("lat", local.Latitude).
		AddField("lon", local.Longitude).
		AddField("alt", local.Altitude).
		AddField("pitch", local.Pitch).
		AddField("yaw", local.Yaw).
		AddField("roll", local.Roll).
		AddField("speed", local.GroundSpeed).
		AddField("battery", local.Battery).
		AddField("autonomous", local.Autonomous).
		AddField("locked_on", local.LockedOn).
		AddField("peers", len(t.Peers)).
		SetTime(t.Time)

	if t.Nearest != nil {
		point.AddField("nearest_team", t.Nearest.TeamNumber)
		point.AddField("nearest_distance", t.Nearest.DistanceMeters)
	}
	return point
}

// PeerPoint builds the point for one peer seen in a tick.
func PeerPoint(server string, at time.Time, p core.AnnotatedPeer) *influxdb2_write.Point {
	return influxdb2_write.NewPointWithMeasurement(MeasurementPeer).
		AddTag("server", server).
		AddTag("team", strconv.Itoa(p.TeamNumber)).
		AddField("lat", p.Latitude).
		AddField("lon", p.Longitude).
		AddField("alt", p.Altitude).
		AddField("speed", p.Speed).
		AddField("skew_ms", p.TimeSkew).
		AddField("distance", p.DistanceMeters).
		SetTime(at)
}

// SessionPoint marks a session boundary.
func SessionPoint(s core.Session, event string, at time.Time) *influxdb2_write.Point {
	return influxdb2_write.NewPointWithMeasurement(MeasurementSession).
		AddTag("server", s.Server).
		AddTag("team", strconv.Itoa(s.TeamNumber)).
		AddTag("event", event).
		AddField("username", s.Username).
		SetTime(at)
}
