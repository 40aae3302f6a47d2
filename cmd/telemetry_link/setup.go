package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/anafarta/telemetry-link/internal/config"
	"github.com/anafarta/telemetry-link/internal/geo"
	"github.com/anafarta/telemetry-link/internal/logging"
	intOtel "github.com/anafarta/telemetry-link/internal/otel"
	"github.com/anafarta/telemetry-link/internal/storage"
	"github.com/anafarta/telemetry-link/internal/vehicle"
)

// Vehicle sources accepted in vehicle.source.
const (
	SourceSimulated = "simulated"
	SourceStatic    = "static"
)

const shutdownTimeout = 10 * time.Second

// runtime is the logging and config state shared by every command.
type runtime struct {
	Settings    config.Settings
	SlogManager *logging.SlogManager
	Logger      *slog.Logger
	LogFilePath string

	logOut io.Writer
	closer []io.Closer
	otel   *intOtel.Provider
}

// setupRuntime loads the config and sets up logging. ctxProvider may be nil.
func setupRuntime(c *cli.Context, command string, ctxProvider logging.ContextProvider) (*runtime, error) {
	if err := config.Load(c.String("config-dir")); err != nil {
		return nil, err
	}
	rt := &runtime{Settings: config.GetSettings()}
	if lvl := c.String("log-level"); lvl != "" {
		rt.Settings.LogLevel = lvl
	}

	var file io.Writer
	if !c.Bool("console-log") {
		rt.LogFilePath = logging.LogFilePath(rt.Settings.LogsDir, AppName+"."+command, time.Now())
		rotating := logging.NewRotatingFile(rt.LogFilePath)
		rt.closer = append(rt.closer, rotating)
		file = rotating
		rt.logOut = rotating
	} else {
		rt.logOut = os.Stdout
	}

	var warnings []any
	opts := logging.Options{Context: ctxProvider}
	if rt.Settings.Graylog.Enabled {
		w, err := logging.NewGELFWriter(rt.Settings.Graylog.Address)
		if err != nil {
			warnings = append(warnings, "graylog", err)
		} else {
			opts.GELF = w
			rt.closer = append(rt.closer, w)
		}
	}

	otelCfg := intOtel.ConfigFrom(rt.Settings.OTel, rt.logOut)
	otelCfg.ServiceVersion = CurrentVersion
	provider, err := intOtel.New(otelCfg)
	if err != nil {
		warnings = append(warnings, "otel", err)
	} else {
		rt.otel = provider
	}

	rt.SlogManager = logging.NewSlogManager()
	rt.SlogManager.Setup(file, rt.Settings.LogLevel, rt.otel.LoggerProvider(), opts)
	rt.Logger = rt.SlogManager.Logger()
	if len(warnings) > 0 {
		rt.Logger.Warn("Some log outputs could not be set up", warnings...)
	}
	if rt.LogFilePath != "" {
		rt.Logger.Info("Logging to file", "path", rt.LogFilePath)
	}
	return rt, nil
}

// Close flushes the log providers and closes the log outputs.
func (rt *runtime) Close() {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := rt.SlogManager.Flush(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "Failed to flush logs:", err)
	}
	if rt.otel != nil {
		if err := rt.otel.Shutdown(ctx); err != nil {
			fmt.Fprintln(os.Stderr, "Failed to shut down OTel:", err)
		}
	}
	for i := len(rt.closer) - 1; i >= 0; i-- {
		_ = rt.closer[i].Close()
	}
}

// newProvider builds the vehicle state provider selected in the config.
func newProvider(cfg config.VehicleConfig, start time.Time) (vehicle.Provider, error) {
	home, err := geo.ParsePosition(cfg.Home)
	if err != nil {
		return nil, fmt.Errorf("invalid vehicle.home %q: %w", cfg.Home, err)
	}

	switch cfg.Source {
	case "", SourceSimulated:
		return vehicle.NewSimulated(vehicle.SimulatedConfig{
			Home:         home,
			RadiusMeters: cfg.OrbitRadius,
			Speed:        cfg.Speed,
			BatteryDrain: cfg.BatteryDrain,
		}, start), nil
	case SourceStatic:
		return vehicle.NewStatic(vehicle.StaticState{
			Latitude:    vehicle.Ptr(home.Latitude),
			Longitude:   vehicle.Ptr(home.Longitude),
			Altitude:    vehicle.Ptr(home.Altitude),
			GroundSpeed: vehicle.Ptr(0.0),
			Battery:     vehicle.Ptr(100),
			Armed:       vehicle.Ptr(false),
		}), nil
	default:
		return nil, fmt.Errorf("unknown vehicle source: %s", cfg.Source)
	}
}

// newStorage creates and initializes the configured tick storage. A backend
// that fails to initialize is replaced by storage.Discard so telemetry still
// runs.
func newStorage(ctx context.Context, rt *runtime) storage.Backend {
	s := rt.Settings
	backend, err := storage.NewBackend(s.Storage, storage.Options{
		Logger:   rt.Logger,
		DBLogger: logging.NewZerolog(rt.logOut, s.LogLevel, "storage"),
		TeamName: fmt.Sprintf("Team %d", s.Telemetry.TeamNumber),
	})
	if err != nil {
		rt.Logger.Error("Failed to create storage backend, ticks will not be stored", "type", s.Storage.Type, "error", err)
		return storage.Discard{}
	}
	if err := backend.Init(ctx); err != nil {
		rt.Logger.Error("Failed to initialize storage backend, ticks will not be stored", "type", s.Storage.Type, "error", err)
		_ = backend.Close()
		return storage.Discard{}
	}
	rt.Logger.Info("Storage backend initialized", "type", s.Storage.Type)
	return backend
}
