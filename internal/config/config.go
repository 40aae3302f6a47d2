package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// FileName is the config file looked up in the config directory.
const FileName = "telemetry_link.cfg.json"

// EnvPrefix prefixes environment overrides, e.g. TLINK_SERVER_URL.
const EnvPrefix = "TLINK"

// ServerConfig holds the competition server address and team credentials.
type ServerConfig struct {
	URL      string `json:"url" mapstructure:"url"`
	Username string `json:"username" mapstructure:"username"`
	Password string `json:"password" mapstructure:"password"`
}

// TelemetryConfig holds scheduler settings.
type TelemetryConfig struct {
	TeamNumber int           `json:"teamNumber" mapstructure:"teamNumber"`
	Interval   time.Duration `json:"interval" mapstructure:"interval"`
	Timeout    time.Duration `json:"timeout" mapstructure:"timeout"`
}

// StatusLogConfig holds status board limits.
type StatusLogConfig struct {
	MaxLines   int `json:"maxLines" mapstructure:"maxLines"`
	MaxServers int `json:"maxServers" mapstructure:"maxServers"`
}

// VehicleConfig selects the vehicle state provider.
type VehicleConfig struct {
	Source       string        `json:"source" mapstructure:"source"`
	Home         string        `json:"home" mapstructure:"home"`
	OrbitRadius  float64       `json:"orbitRadius" mapstructure:"orbitRadius"`
	Speed        float64       `json:"speed" mapstructure:"speed"`
	BatteryDrain time.Duration `json:"batteryDrain" mapstructure:"batteryDrain"`
}

// MemoryConfig holds in-memory storage backend settings
type MemoryConfig struct {
	MaxTicks       int    `json:"maxTicks" mapstructure:"maxTicks"`
	OutputDir      string `json:"outputDir" mapstructure:"outputDir"`
	CompressOutput bool   `json:"compressOutput" mapstructure:"compressOutput"`
}

// SQLiteConfig holds SQLite storage backend settings
type SQLiteConfig struct {
	Path string `json:"path" mapstructure:"path"`
}

// DBConfig holds Postgres connection settings
type DBConfig struct {
	Host     string `json:"host" mapstructure:"host"`
	Port     string `json:"port" mapstructure:"port"`
	Username string `json:"username" mapstructure:"username"`
	Password string `json:"password" mapstructure:"password"`
	Database string `json:"database" mapstructure:"database"`
}

// InfluxConfig holds InfluxDB settings
type InfluxConfig struct {
	Host       string `json:"host" mapstructure:"host"`
	Port       string `json:"port" mapstructure:"port"`
	Protocol   string `json:"protocol" mapstructure:"protocol"`
	Token      string `json:"token" mapstructure:"token"`
	Org        string `json:"org" mapstructure:"org"`
	Bucket     string `json:"bucket" mapstructure:"bucket"`
	BackupPath string `json:"backupPath" mapstructure:"backupPath"`
}

// WebSocketConfig holds live-view streaming settings
type WebSocketConfig struct {
	URL    string `json:"url" mapstructure:"url"`
	Secret string `json:"secret" mapstructure:"secret"`
}

// StorageConfig selects where ticks are recorded.
type StorageConfig struct {
	Type      string          `json:"type" mapstructure:"type"`
	Memory    MemoryConfig    `json:"memory" mapstructure:"memory"`
	SQLite    SQLiteConfig    `json:"sqlite" mapstructure:"sqlite"`
	DB        DBConfig        `json:"db" mapstructure:"db"`
	Influx    InfluxConfig    `json:"influx" mapstructure:"influx"`
	WebSocket WebSocketConfig `json:"websocket" mapstructure:"websocket"`
}

// GraylogConfig holds GELF output settings.
type GraylogConfig struct {
	Enabled bool   `json:"enabled" mapstructure:"enabled"`
	Address string `json:"address" mapstructure:"address"`
}

// OTelConfig holds OpenTelemetry settings.
type OTelConfig struct {
	Enabled      bool          `json:"enabled" mapstructure:"enabled"`
	ServiceName  string        `json:"serviceName" mapstructure:"serviceName"`
	BatchTimeout time.Duration `json:"batchTimeout" mapstructure:"batchTimeout"`
	Endpoint     string        `json:"endpoint" mapstructure:"endpoint"`
	Insecure     bool          `json:"insecure" mapstructure:"insecure"`
}

// Settings is a typed snapshot of the whole configuration.
type Settings struct {
	LogLevel  string
	LogsDir   string
	Server    ServerConfig
	Telemetry TelemetryConfig
	StatusLog StatusLogConfig
	Display   int // event queue size
	Vehicle   VehicleConfig
	Storage   StorageConfig
	Graylog   GraylogConfig
	OTel      OTelConfig
}

// SetDefaults registers every default value.
func SetDefaults() {
	viper.SetDefault("logLevel", "info")
	viper.SetDefault("logsDir", "./tlinklogs")

	viper.SetDefault("server.url", "http://localhost:5000")
	viper.SetDefault("server.username", "")
	viper.SetDefault("server.password", "")

	viper.SetDefault("team.number", 20)
	viper.SetDefault("telemetry.interval", "1s")
	viper.SetDefault("telemetry.timeout", "5s")

	viper.SetDefault("statuslog.maxLines", 500)
	viper.SetDefault("statuslog.maxServers", 4)
	viper.SetDefault("display.bufferSize", 256)

	viper.SetDefault("vehicle.source", "simulated")
	viper.SetDefault("vehicle.home", "0,0,0")
	viper.SetDefault("vehicle.orbitRadius", 150.0)
	viper.SetDefault("vehicle.speed", 20.0)
	viper.SetDefault("vehicle.batteryDrain", "30s")

	viper.SetDefault("storage.type", "none")
	viper.SetDefault("storage.memory.maxTicks", 3600)
	viper.SetDefault("storage.memory.outputDir", "")
	viper.SetDefault("storage.memory.compressOutput", true)
	viper.SetDefault("storage.sqlite.path", "./tlink_ticks.db")

	viper.SetDefault("db.host", "localhost")
	viper.SetDefault("db.port", "5432")
	viper.SetDefault("db.username", "postgres")
	viper.SetDefault("db.password", "postgres")
	viper.SetDefault("db.database", "telemetry")

	viper.SetDefault("influx.host", "localhost")
	viper.SetDefault("influx.port", "8086")
	viper.SetDefault("influx.protocol", "http")
	viper.SetDefault("influx.token", "supersecrettoken")
	viper.SetDefault("influx.org", "telemetry-link")
	viper.SetDefault("influx.bucket", "telemetry")
	viper.SetDefault("influx.backupPath", "./tlink_influx_backup.lp.gz")

	viper.SetDefault("websocket.url", "")
	viper.SetDefault("websocket.secret", "")

	viper.SetDefault("graylog.enabled", false)
	viper.SetDefault("graylog.address", "localhost:12201")

	viper.SetDefault("otel.enabled", false)
	viper.SetDefault("otel.serviceName", "telemetry-link")
	viper.SetDefault("otel.batchTimeout", "5s")
	viper.SetDefault("otel.endpoint", "")
	viper.SetDefault("otel.insecure", true)
}

// Load reads configuration from JSON file and sets default values.
// configDir is the directory containing the config file. A missing file is
// not an error; defaults and TLINK_ environment variables still apply.
func Load(configDir string) error {
	SetDefaults()

	viper.SetEnvPrefix(EnvPrefix)
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	viper.SetConfigName(FileName)
	viper.AddConfigPath(configDir)
	viper.SetConfigType("json")

	err := viper.ReadInConfig()
	if err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) {
			return nil
		}
		return fmt.Errorf("error reading config file: %v", err)
	}

	return nil
}

// GetString returns a string config value.
func GetString(key string) string {
	return viper.GetString(key)
}

// GetInt returns an int config value.
func GetInt(key string) int {
	return viper.GetInt(key)
}

// GetBool returns a bool config value.
func GetBool(key string) bool {
	return viper.GetBool(key)
}

// GetDuration returns a duration config value.
func GetDuration(key string) time.Duration {
	return viper.GetDuration(key)
}

// GetServerConfig returns the competition server settings.
func GetServerConfig() ServerConfig {
	return ServerConfig{
		URL:      viper.GetString("server.url"),
		Username: viper.GetString("server.username"),
		Password: viper.GetString("server.password"),
	}
}

// GetTelemetryConfig returns the scheduler settings.
func GetTelemetryConfig() TelemetryConfig {
	return TelemetryConfig{
		TeamNumber: viper.GetInt("team.number"),
		Interval:   viper.GetDuration("telemetry.interval"),
		Timeout:    viper.GetDuration("telemetry.timeout"),
	}
}

// GetVehicleConfig returns the vehicle provider settings.
func GetVehicleConfig() VehicleConfig {
	return VehicleConfig{
		Source:       viper.GetString("vehicle.source"),
		Home:         viper.GetString("vehicle.home"),
		OrbitRadius:  viper.GetFloat64("vehicle.orbitRadius"),
		Speed:        viper.GetFloat64("vehicle.speed"),
		BatteryDrain: viper.GetDuration("vehicle.batteryDrain"),
	}
}

// GetStorageConfig returns the storage backend settings.
func GetStorageConfig() StorageConfig {
	return StorageConfig{
		Type:   viper.GetString("storage.type"),
		Memory: MemoryConfig{
			MaxTicks:       viper.GetInt("storage.memory.maxTicks"),
			OutputDir:      viper.GetString("storage.memory.outputDir"),
			CompressOutput: viper.GetBool("storage.memory.compressOutput"),
		},
		SQLite: SQLiteConfig{Path: viper.GetString("storage.sqlite.path")},
		DB: DBConfig{
			Host:     viper.GetString("db.host"),
			Port:     viper.GetString("db.port"),
			Username: viper.GetString("db.username"),
			Password: viper.GetString("db.password"),
			Database: viper.GetString("db.database"),
		},
		Influx: InfluxConfig{
			Host:       viper.GetString("influx.host"),
			Port:       viper.GetString("influx.port"),
			Protocol:   viper.GetString("influx.protocol"),
			Token:      viper.GetString("influx.token"),
			Org:        viper.GetString("influx.org"),
			Bucket:     viper.GetString("influx.bucket"),
			BackupPath: viper.GetString("influx.backupPath"),
		},
		WebSocket: WebSocketConfig{
			URL:    viper.GetString("websocket.url"),
			Secret: viper.GetString("websocket.secret"),
		},
	}
}

// GetGraylogConfig returns the GELF output settings.
func GetGraylogConfig() GraylogConfig {
	return GraylogConfig{
		Enabled: viper.GetBool("graylog.enabled"),
		Address: viper.GetString("graylog.address"),
	}
}

// GetOTelConfig returns the OpenTelemetry settings.
func GetOTelConfig() OTelConfig {
	return OTelConfig{
		Enabled:      viper.GetBool("otel.enabled"),
		ServiceName:  viper.GetString("otel.serviceName"),
		BatchTimeout: viper.GetDuration("otel.batchTimeout"),
		Endpoint:     viper.GetString("otel.endpoint"),
		Insecure:     viper.GetBool("otel.insecure"),
	}
}

// GetSettings returns a typed snapshot of every setting.
func GetSettings() Settings {
	return Settings{
		LogLevel:  viper.GetString("logLevel"),
		LogsDir:   viper.GetString("logsDir"),
		Server:    GetServerConfig(),
		Telemetry: GetTelemetryConfig(),
		StatusLog: StatusLogConfig{
			MaxLines:   viper.GetInt("statuslog.maxLines"),
			MaxServers: viper.GetInt("statuslog.maxServers"),
		},
		Display: viper.GetInt("display.bufferSize"),
		Vehicle: GetVehicleConfig(),
		Storage: GetStorageConfig(),
		Graylog: GetGraylogConfig(),
		OTel:    GetOTelConfig(),
	}
}
