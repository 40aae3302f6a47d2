package memory

import (
	"compress/gzip"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/anafarta/telemetry-link/internal/config"
	"github.com/anafarta/telemetry-link/pkg/core"
)

var sessionStart = time.Date(2024, 5, 1, 10, 30, 0, 0, time.UTC)

func testSession() *core.Session {
	return &core.Session{Server: "127.0.0.1:5000", Username: "takim", TeamNumber: 20, StartTime: sessionStart}
}

func tickAt(sec int, outcome string) core.Tick {
	return core.Tick{
		Time:       sessionStart.Add(time.Duration(sec) * time.Second),
		Server:     "127.0.0.1:5000",
		Outcome:    outcome,
		StatusCode: 200,
		Local:      core.LocalVehicleState{TeamNumber: 20, Latitude: 41.5, Longitude: 36.1},
	}
}

func TestRecordTick_KeepsNewestWithinBound(t *testing.T) {
	b := New(config.MemoryConfig{MaxTicks: 3})
	ctx := context.Background()
	require.NoError(t, b.Init(ctx))
	require.NoError(t, b.StartSession(ctx, testSession()))

	for i := 0; i < 5; i++ {
		require.NoError(t, b.RecordTick(ctx, tickAt(i, "success")))
	}

	assert.Equal(t, 3, b.Len())
	recent := b.RecentTicks(0)
	require.Len(t, recent, 3)
	assert.Equal(t, sessionStart.Add(4*time.Second), recent[0].Time)
	assert.Equal(t, sessionStart.Add(2*time.Second), recent[2].Time)

	assert.Len(t, b.RecentTicks(2), 2)
	assert.Len(t, b.RecentTicks(10), 3)
}

func TestRecordTick_UnboundedWhenZero(t *testing.T) {
	b := New(config.MemoryConfig{})
	for i := 0; i < 100; i++ {
		require.NoError(t, b.RecordTick(context.Background(), tickAt(i, "success")))
	}
	assert.Equal(t, 100, b.Len())
}

func TestStartSession_ResetsTicksAndCopiesSession(t *testing.T) {
	b := New(config.MemoryConfig{MaxTicks: 10})
	ctx := context.Background()

	require.NoError(t, b.RecordTick(ctx, tickAt(0, "success")))
	s := testSession()
	require.NoError(t, b.StartSession(ctx, s))
	s.Username = "changed"

	assert.Equal(t, 0, b.Len())
	got, ok := b.Session()
	require.True(t, ok)
	assert.Equal(t, "takim", got.Username)
}

func TestEndSession_WithoutStart(t *testing.T) {
	b := New(config.MemoryConfig{})
	assert.ErrorIs(t, b.EndSession(context.Background()), ErrNoSession)
}

func TestEndSession_NoOutputDirSkipsExport(t *testing.T) {
	b := New(config.MemoryConfig{MaxTicks: 10})
	b.now = func() time.Time { return sessionStart.Add(time.Minute) }
	ctx := context.Background()

	require.NoError(t, b.StartSession(ctx, testSession()))
	require.NoError(t, b.RecordTick(ctx, tickAt(1, "success")))
	require.NoError(t, b.EndSession(ctx))

	assert.Empty(t, b.LastExportPath())
	got, _ := b.Session()
	assert.Equal(t, sessionStart.Add(time.Minute), got.EndTime)
	assert.Equal(t, 1, b.Len())
}

func TestEndSession_ExportsGzipJSON(t *testing.T) {
	dir := t.TempDir()
	b := New(config.MemoryConfig{MaxTicks: 10, OutputDir: dir, CompressOutput: true})
	b.now = func() time.Time { return sessionStart.Add(time.Minute) }
	ctx := context.Background()

	require.NoError(t, b.StartSession(ctx, testSession()))
	require.NoError(t, b.RecordTick(ctx, tickAt(1, "success")))
	require.NoError(t, b.RecordTick(ctx, tickAt(2, "unauthorized")))
	require.NoError(t, b.EndSession(ctx))

	path := b.LastExportPath()
	assert.Equal(t, filepath.Join(dir, "127.0.0.1_5000_20240501_103000.json.gz"), path)

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()
	gz, err := gzip.NewReader(f)
	require.NoError(t, err)

	var export SessionExport
	require.NoError(t, json.NewDecoder(gz).Decode(&export))
	assert.Equal(t, "127.0.0.1:5000", export.Server)
	assert.Equal(t, 20, export.TeamNumber)
	assert.Equal(t, "2024-05-01T10:30:00Z", export.StartTime)
	assert.Equal(t, "2024-05-01T10:31:00Z", export.EndTime)
	require.Len(t, export.Ticks, 2)
	assert.Equal(t, "success", export.Ticks[0].Outcome)
	assert.Equal(t, "unauthorized", export.Ticks[1].Outcome)
}

func TestEndSession_ExportsPlainJSON(t *testing.T) {
	dir := t.TempDir()
	b := New(config.MemoryConfig{OutputDir: dir})
	ctx := context.Background()

	require.NoError(t, b.StartSession(ctx, testSession()))
	require.NoError(t, b.EndSession(ctx))

	data, err := os.ReadFile(b.LastExportPath())
	require.NoError(t, err)
	assert.Contains(t, string(data), `"server":"127.0.0.1:5000"`)
	assert.Equal(t, ".json", filepath.Ext(b.LastExportPath()))
}

func TestExportFileName(t *testing.T) {
	assert.Equal(t, "host_5000_x.json", exportFileName("host:5000", "x", false))
	assert.Equal(t, "session_x.json.gz", exportFileName("", "x", true))
}
