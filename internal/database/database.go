package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/anafarta/telemetry-link/internal/config"
	"github.com/anafarta/telemetry-link/internal/model"
	"github.com/glebarez/sqlite"
	"github.com/rs/zerolog"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// MemoryPath opens a shared in-memory SQLite database.
const MemoryPath = ""

const pingTimeout = 5 * time.Second

// sqlitePragmas tune SQLite for a steady stream of small inserts.
var sqlitePragmas = []string{
	"PRAGMA user_version = 1;",
	"PRAGMA journal_mode = WAL;",
	"PRAGMA synchronous = NORMAL;",
	"PRAGMA cache_size = -8000;",
	"PRAGMA temp_store = MEMORY;",
	"PRAGMA foreign_keys = ON;",
}

// Manager opens the tick history database. Postgres is tried first when
// configured; SQLite at the fallback path serves otherwise.
type Manager struct {
	DB *gorm.DB
	// Local is set when the history lives in the SQLite file.
	Local  bool
	Logger zerolog.Logger

	pg         config.DBConfig
	sqlitePath string
	pool       *sql.DB
}

func NewManager(log zerolog.Logger, pg config.DBConfig, sqlitePath string) *Manager {
	return &Manager{Logger: log, pg: pg, sqlitePath: sqlitePath}
}

// Valid reports whether a database is open.
func (m *Manager) Valid() bool {
	return m.pool != nil
}

// Connect opens Postgres and falls back to SQLite when it cannot be opened
// or does not answer a ping.
func (m *Manager) Connect() error {
	db, err := OpenPostgres(m.pg)
	if err == nil {
		err = m.adopt(db, false)
	}
	if err != nil {
		m.Logger.Error().Err(err).Str("host", m.pg.Host).Msg("Postgres unavailable, using SQLite")
		return m.ConnectSqlite()
	}
	m.pool.SetMaxOpenConns(10)
	m.Logger.Info().Str("host", m.pg.Host).Str("database", m.pg.Database).Msg("Connected to Postgres")
	return nil
}

// ConnectSqlite opens the SQLite database directly, without trying Postgres.
func (m *Manager) ConnectSqlite() error {
	db, err := OpenSqlite(m.sqlitePath)
	if err != nil {
		return fmt.Errorf("failed to open local SQLite DB: %w", err)
	}
	if err := m.adopt(db, true); err != nil {
		return err
	}
	where := m.sqlitePath
	if where == MemoryPath {
		where = "memory"
	}
	m.Logger.Info().Str("path", where).Msg("Using local SQLite DB")
	return nil
}

func (m *Manager) adopt(db *gorm.DB, local bool) error {
	pool, err := db.DB()
	if err != nil {
		return fmt.Errorf("failed to access sql interface: %w", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), pingTimeout)
	defer cancel()
	if err := pool.PingContext(ctx); err != nil {
		_ = pool.Close()
		return fmt.Errorf("database did not answer ping: %w", err)
	}
	m.DB, m.pool, m.Local = db, pool, local
	return nil
}

// DSN builds the Postgres connection string.
func DSN(c config.DBConfig) string {
	return fmt.Sprintf(`host=%s port=%s user=%s password=%s dbname=%s sslmode=disable`,
		c.Host, c.Port, c.Username, c.Password, c.Database)
}

func OpenPostgres(c config.DBConfig) (*gorm.DB, error) {
	return gorm.Open(postgres.New(postgres.Config{
		DSN:                  DSN(c),
		PreferSimpleProtocol: true,
	}), &gorm.Config{
		SkipDefaultTransaction: true,
		CreateBatchSize:        1000,
		Logger:                 logger.Default.LogMode(logger.Silent),
	})
}

// OpenSqlite opens a SQLite database at path, or a shared in-memory one when
// path is empty, and applies sqlitePragmas.
func OpenSqlite(path string) (*gorm.DB, error) {
	dsn := path
	if path == MemoryPath {
		dsn = "file::memory:?cache=shared"
	}
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		PrepareStmt:            true,
		SkipDefaultTransaction: true,
		CreateBatchSize:        500,
		Logger:                 logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, err
	}
	for _, pragma := range sqlitePragmas {
		if err := db.Exec(pragma).Error; err != nil {
			return nil, fmt.Errorf("failed to apply %q: %w", pragma, err)
		}
	}
	return db, nil
}

// Setup migrates tables and creates default settings if they don't exist.
func (m *Manager) Setup(teamName string) error {
	if err := Migrate(m.DB, teamName); err != nil {
		return err
	}
	m.Logger.Info().Msg("Database setup complete")
	return nil
}

// Migrate creates the info row on first use, enables PostGIS on Postgres and
// migrates every model.
func Migrate(db *gorm.DB, teamName string) error {
	if !db.Migrator().HasTable(&model.LinkInfo{}) {
		if err := db.AutoMigrate(&model.LinkInfo{}); err != nil {
			return fmt.Errorf("failed to create link_info table: %w", err)
		}
		if err := db.Create(&model.LinkInfo{
			TeamName:    teamName,
			Description: "telemetry-link tick history",
		}).Error; err != nil {
			return fmt.Errorf("failed to create link_info entry: %w", err)
		}
	}

	// Ensure PostGIS Extension is installed for Postgres
	if db.Dialector.Name() == "postgres" {
		if err := db.Exec(`CREATE Extension IF NOT EXISTS postgis;`).Error; err != nil {
			return fmt.Errorf("failed to create PostGIS extension: %w", err)
		}
	}

	if err := db.AutoMigrate(model.DatabaseModels...); err != nil {
		return fmt.Errorf("failed to migrate schema: %w", err)
	}
	return nil
}

// Close releases the underlying connection pool.
func (m *Manager) Close() error {
	if m.pool == nil {
		return nil
	}
	err := m.pool.Close()
	m.pool = nil
	return err
}
