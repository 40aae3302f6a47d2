package logging

import (
	"bytes"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLogFilePath(t *testing.T) {
	sessionStart := time.Date(2026, 2, 12, 21, 38, 36, 0, time.UTC)

	tests := []struct {
		name    string
		logsDir string
		appName string
		want    string
	}{
		{
			name:    "basic path",
			logsDir: "tlinklogs",
			appName: "telemetry_link",
			want:    filepath.Join("tlinklogs", "telemetry_link.20260212_213836.log"),
		},
		{
			name:    "relative path with dot",
			logsDir: "./tlinklogs",
			appName: "telemetry_link",
			want:    filepath.Join(".", "tlinklogs", "telemetry_link.20260212_213836.log"),
		},
		{
			name:    "absolute path",
			logsDir: filepath.Join("/var", "log", "tlink"),
			appName: "telemetry_link",
			want:    filepath.Join("/var", "log", "tlink", "telemetry_link.20260212_213836.log"),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := LogFilePath(tt.logsDir, tt.appName, sessionStart)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestNewRotatingFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "tlink.log")
	w := NewRotatingFile(path)
	defer w.Close()

	assert.Equal(t, path, w.Filename)
	assert.Equal(t, maxLogSizeMB, w.MaxSize)
	assert.True(t, w.Compress)

	m := NewSlogManager()
	m.Setup(w, "info", nil)
	m.Logger().Info("rotating output")
	require.NoError(t, w.Close())
	assert.FileExists(t, path)
}

func TestNewGELFWriter(t *testing.T) {
	// UDP needs no listener to create the writer
	w, err := NewGELFWriter("127.0.0.1:12201")
	require.NoError(t, err)
	require.NoError(t, w.Close())
}

func TestNewGELFWriter_BadAddress(t *testing.T) {
	_, err := NewGELFWriter("not-an-address")
	assert.Error(t, err)
}

func TestNewZerolog(t *testing.T) {
	var buf bytes.Buffer
	log := NewZerolog(&buf, "warn", "gorm")

	log.Info().Msg("filtered")
	log.Warn().Str("table", "ticks").Msg("slow insert")

	out := buf.String()
	assert.NotContains(t, out, "filtered")
	assert.Contains(t, out, `"component":"gorm"`)
	assert.Contains(t, out, `"table":"ticks"`)
}

func TestNewZerolog_InvalidLevelDefaultsToInfo(t *testing.T) {
	var buf bytes.Buffer
	log := NewZerolog(&buf, "loud", "influx")

	log.Debug().Msg("hidden")
	log.Info().Msg("shown")

	assert.NotContains(t, buf.String(), "hidden")
	assert.Contains(t, buf.String(), "shown")
}
