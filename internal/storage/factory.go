// internal/storage/factory.go
package storage

import (
	"fmt"
	"log/slog"

	"github.com/rs/zerolog"

	"github.com/anafarta/telemetry-link/internal/config"
	"github.com/anafarta/telemetry-link/internal/database"
	"github.com/anafarta/telemetry-link/internal/influx"
	gormstorage "github.com/anafarta/telemetry-link/internal/storage/gorm"
	"github.com/anafarta/telemetry-link/internal/storage/memory"
	"github.com/anafarta/telemetry-link/internal/storage/websocket"
)

// Backend type names accepted in storage.type.
const (
	TypeNone      = "none"
	TypeMemory    = "memory"
	TypeSQLite    = "sqlite"
	TypePostgres  = "postgres"
	TypeInflux    = "influx"
	TypeWebSocket = "websocket"
)

// Options carries the loggers and identity shared by the backends.
type Options struct {
	Logger   *slog.Logger
	DBLogger zerolog.Logger // database and influx managers
	TeamName string
}

// NewBackend creates a storage backend based on configuration. Database
// backends are connected here; Init still has to be called.
func NewBackend(cfg config.StorageConfig, opts Options) (Backend, error) {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	switch cfg.Type {
	case "", TypeNone:
		return Discard{}, nil
	case TypeMemory:
		return memory.New(cfg.Memory), nil
	case TypeSQLite, TypePostgres:
		m := database.NewManager(opts.DBLogger, cfg.DB, cfg.SQLite.Path)
		var err error
		if cfg.Type == TypePostgres {
			err = m.Connect()
		} else {
			err = m.ConnectSqlite()
		}
		if err != nil {
			return nil, fmt.Errorf("failed to open %s storage: %w", cfg.Type, err)
		}
		return gormstorage.New(gormstorage.Dependencies{
			DB:       m.DB,
			Logger:   opts.Logger.With("storage", m.DB.Dialector.Name()),
			TeamName: opts.TeamName,
		}), nil
	case TypeInflux:
		return influx.NewManager(opts.DBLogger, cfg.Influx), nil
	case TypeWebSocket:
		return websocket.New(websocket.Config{
			URL:    cfg.WebSocket.URL,
			Secret: cfg.WebSocket.Secret,
		}, opts.Logger.With("storage", TypeWebSocket)), nil
	default:
		return nil, fmt.Errorf("unknown storage type: %s", cfg.Type)
	}
}
