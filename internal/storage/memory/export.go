// internal/storage/memory/export.go
package memory

import (
	"compress/gzip"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/anafarta/telemetry-link/pkg/core"
)

// SessionExport is the root JSON structure of an exported session.
type SessionExport struct {
	Server     string      `json:"server"`
	Username   string      `json:"username"`
	TeamNumber int         `json:"teamNumber"`
	StartTime  string      `json:"startTime"`
	EndTime    string      `json:"endTime"`
	Ticks      []core.Tick `json:"ticks"`
}

// exportFileName builds "<server>_<start>.json[.gz]" with separators that are
// safe on every filesystem.
func exportFileName(server, stamp string, compress bool) string {
	name := strings.NewReplacer(":", "_", "/", "_", " ", "_").Replace(server)
	if name == "" {
		name = "session"
	}
	if compress {
		return fmt.Sprintf("%s_%s.json.gz", name, stamp)
	}
	return fmt.Sprintf("%s_%s.json", name, stamp)
}

// exportJSON writes the session to a JSON file. Callers hold b.mu.
func (b *Backend) exportJSON() error {
	export := SessionExport{
		Server:     b.session.Server,
		Username:   b.session.Username,
		TeamNumber: b.session.TeamNumber,
		StartTime:  b.session.StartTime.UTC().Format(time.RFC3339),
		EndTime:    b.session.EndTime.UTC().Format(time.RFC3339),
		Ticks:      b.ticks.Items(),
	}

	filename := exportFileName(b.session.Server, b.session.StartTime.Format("20060102_150405"), b.cfg.CompressOutput)
	outputPath := filepath.Join(b.cfg.OutputDir, filename)

	if err := os.MkdirAll(b.cfg.OutputDir, 0755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}

	if b.cfg.CompressOutput {
		if err := writeGzipJSON(outputPath, export); err != nil {
			return err
		}
	} else {
		if err := writeJSON(outputPath, export); err != nil {
			return err
		}
	}

	b.lastExportPath = outputPath
	return nil
}

func writeJSON(path string, data SessionExport) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create file: %w", err)
	}
	defer f.Close()

	encoder := json.NewEncoder(f)
	return encoder.Encode(data)
}

func writeGzipJSON(path string, data SessionExport) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create file: %w", err)
	}
	defer f.Close()

	gzWriter := gzip.NewWriter(f)
	defer gzWriter.Close()

	encoder := json.NewEncoder(gzWriter)
	return encoder.Encode(data)
}
