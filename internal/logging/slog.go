package logging

import (
	"context"
	"io"
	"log/slog"
	"os"
	"time"

	"go.opentelemetry.io/contrib/bridges/otelslog"
	sdklog "go.opentelemetry.io/otel/sdk/log"
)

const instrumentationName = "telemetry-link"

// Replaced in tests.
var (
	osStdout io.Writer = os.Stdout
	osPipe             = os.Pipe
)

// SlogManager owns the process logger and the OTel log provider it feeds.
type SlogManager struct {
	logger      *slog.Logger
	logProvider *sdklog.LoggerProvider
}

func NewSlogManager() *SlogManager {
	return &SlogManager{}
}

// parseLevel accepts the slog level names in any case, including offsets
// such as "INFO+2". Anything else means info.
func parseLevel(level string) slog.Level {
	var l slog.Level
	if err := l.UnmarshalText([]byte(level)); err != nil {
		return slog.LevelInfo
	}
	return l
}

// Options holds the outputs that Setup can attach besides the log file.
type Options struct {
	// GELF receives every record as JSON when set.
	GELF io.Writer
	// Context adds link state, such as the active server, to every record.
	Context ContextProvider
}

func mergeOptions(opts []Options) Options {
	var o Options
	for _, opt := range opts {
		if opt.GELF != nil {
			o.GELF = opt.GELF
		}
		if opt.Context != nil {
			o.Context = opt.Context
		}
	}
	return o
}

// HandlerOptions returns the shared handler options. Times are written as
// RFC3339 in UTC, matching the telemetry payload clock.
func HandlerOptions(level string) *slog.HandlerOptions {
	return &slog.HandlerOptions{
		Level: parseLevel(level),
		ReplaceAttr: func(_ []string, a slog.Attr) slog.Attr {
			if t, ok := a.Value.Any().(time.Time); ok && a.Key == slog.TimeKey {
				a.Value = slog.StringValue(t.UTC().Format(time.RFC3339))
			}
			return a
		},
	}
}

// Setup replaces the logger. Text records go to file, or to stdout when file
// is nil. A nil provider disables the OTel bridge.
func (m *SlogManager) Setup(file io.Writer, level string, provider *sdklog.LoggerProvider, opts ...Options) {
	m.logProvider = provider
	o := mergeOptions(opts)
	ho := HandlerOptions(level)

	if file == nil {
		file = osStdout
	}
	tee := NewTee(slog.NewTextHandler(file, ho))
	if o.GELF != nil {
		tee = append(tee, slog.NewJSONHandler(o.GELF, ho))
	}
	if provider != nil {
		tee = append(tee, otelslog.NewHandler(instrumentationName, otelslog.WithLoggerProvider(provider)))
	}

	var h slog.Handler = tee
	if o.Context != nil {
		h = stateHandler{next: tee, attrs: o.Context}
	}
	m.logger = slog.New(h)
	m.logger.Info("Logging initialized", "level", parseLevel(level).String())
}

// Logger returns the configured logger, or slog.Default before Setup.
func (m *SlogManager) Logger() *slog.Logger {
	if m.logger != nil {
		return m.logger
	}
	return slog.Default()
}

// Flush pushes buffered OTel records to the exporter.
func (m *SlogManager) Flush(ctx context.Context) error {
	if m.logProvider == nil {
		return nil
	}
	return m.logProvider.ForceFlush(ctx)
}
