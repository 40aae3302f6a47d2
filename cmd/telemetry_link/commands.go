package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/urfave/cli/v2"
	"go.opentelemetry.io/otel/metric"
	"golang.org/x/sync/errgroup"

	"github.com/anafarta/telemetry-link/internal/api"
	"github.com/anafarta/telemetry-link/internal/codec"
	"github.com/anafarta/telemetry-link/internal/display"
	"github.com/anafarta/telemetry-link/internal/link"
	"github.com/anafarta/telemetry-link/internal/logging"
	"github.com/anafarta/telemetry-link/internal/monitor"
	"github.com/anafarta/telemetry-link/internal/statuslog"
	"github.com/anafarta/telemetry-link/internal/vehicle"
)

var errReauthRequired = errors.New("server requires a new login")

func runCommand() *cli.Command {
	return &cli.Command{
		Name:  "run",
		Usage: "Connect, log in and report telemetry until interrupted",
		Description: `Connects to the competition server, logs in with the team credentials and
posts the vehicle state every telemetry.interval. Peers and the nearest peer
are printed as they arrive. A 401 from the server stops the run.

Examples:
  telemetry_link run --server 10.0.0.5:5000 --username team20 --password secret
  telemetry_link -c /etc/tlink run --duration 10m`,
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "server", Aliases: []string{"s"}, Usage: "Server address, overrides server.url"},
			&cli.StringFlag{Name: "username", Aliases: []string{"u"}, Usage: "Overrides server.username"},
			&cli.StringFlag{Name: "password", Aliases: []string{"p"}, Usage: "Overrides server.password"},
			&cli.IntFlag{Name: "team", Aliases: []string{"t"}, Usage: "Overrides team.number"},
			&cli.DurationFlag{Name: "duration", Aliases: []string{"d"}, Usage: "Stop after this long (0 runs until interrupted)"},
			&cli.StringFlag{Name: "status-file", Usage: "Rewrite this file with the JSON link status"},
			&cli.DurationFlag{Name: "status-every", Value: monitor.DefaultInterval, Usage: "Status log and file refresh period"},
		},
		Action: runAction,
	}
}

func runAction(c *cli.Context) error {
	var active atomic.Pointer[link.Service]
	rt, err := setupRuntime(c, "run", func() []slog.Attr {
		if svc := active.Load(); svc != nil {
			return svc.LogContext()
		}
		return nil
	})
	if err != nil {
		return err
	}
	defer rt.Close()

	s := rt.Settings
	if v := c.String("server"); v != "" {
		s.Server.URL = v
	}
	if v := c.String("username"); v != "" {
		s.Server.Username = v
	}
	if v := c.String("password"); v != "" {
		s.Server.Password = v
	}
	if v := c.Int("team"); v != 0 {
		s.Telemetry.TeamNumber = v
	}
	rt.Settings = s

	ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
	defer stop()
	if d := c.Duration("duration"); d > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d)
		defer cancel()
	}

	board, err := statuslog.NewBoard(s.StatusLog.MaxLines, s.StatusLog.MaxServers)
	if err != nil {
		return err
	}
	dispatcher, err := display.New(logging.NewDispatcherLogger(rt.Logger), display.Buffered(s.Display))
	if err != nil {
		return fmt.Errorf("failed to create display dispatcher: %w", err)
	}
	console := newConsoleSink(os.Stdout)
	dispatcher.Subscribe(board.Sink())
	dispatcher.Subscribe(console)

	provider, err := newProvider(s.Vehicle, time.Now())
	if err != nil {
		dispatcher.Close()
		return err
	}

	svc, err := link.New(link.Config{
		TeamNumber: s.Telemetry.TeamNumber,
		Interval:   s.Telemetry.Interval,
		Timeout:    s.Telemetry.Timeout,
	}, link.Dependencies{
		Provider: provider,
		Sink:     dispatcher,
		Storage:  newStorage(ctx, rt),
		Logger:   rt.Logger,
	})
	if err != nil {
		dispatcher.Close()
		return err
	}
	active.Store(svc)
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := svc.Close(closeCtx); err != nil {
			rt.Logger.Error("Failed to close link service", "error", err)
		}
		logStatusBoard(rt.Logger, board)
	}()

	if err := registerLinkMetrics(rt, svc); err != nil {
		rt.Logger.Warn("Failed to register link metrics", "error", err)
	}

	if err := svc.Connect(ctx, s.Server.URL); err != nil {
		return err
	}
	if err := svc.Login(ctx, s.Server.Username, s.Server.Password); err != nil {
		return err
	}
	if err := svc.Start(ctx); err != nil {
		return err
	}

	mon := monitor.NewService(monitor.Dependencies{
		Source:     svc,
		Logger:     rt.Logger,
		StatusFile: c.String("status-file"),
		Interval:   c.Duration("status-every"),
	})
	if err := mon.Start(); err != nil {
		return err
	}
	defer mon.Stop()

	eg, egCtx := errgroup.WithContext(ctx)
	eg.Go(func() error {
		select {
		case <-egCtx.Done():
			return nil
		case server := <-console.reauth:
			return fmt.Errorf("%w: %s", errReauthRequired, server)
		}
	})

	err = eg.Wait()
	svc.Stop(context.Background())
	if err != nil {
		return cli.Exit(err.Error(), 2)
	}
	rt.Logger.Info("Run finished", "reason", context.Cause(ctx))
	return nil
}

// registerLinkMetrics exposes the nearest peer distance and the peer count as
// gauges on the global meter.
func registerLinkMetrics(rt *runtime, svc *link.Service) error {
	m := rt.otel.Meter("github.com/anafarta/telemetry-link/internal/link")

	distance, err := m.Float64ObservableGauge(
		"link.nearest.distance",
		metric.WithDescription("Distance to the nearest peer"),
		metric.WithUnit("m"),
	)
	if err != nil {
		return fmt.Errorf("creating nearest distance gauge: %w", err)
	}
	peers, err := m.Int64ObservableGauge(
		"link.peers",
		metric.WithDescription("Peers in the last server reply"),
	)
	if err != nil {
		return fmt.Errorf("creating peer gauge: %w", err)
	}

	_, err = m.RegisterCallback(func(_ context.Context, o metric.Observer) error {
		if nearest, ok := svc.CurrentNearestPeer(); ok {
			o.ObserveFloat64(distance, nearest.DistanceMeters)
		}
		o.ObserveInt64(peers, int64(len(svc.CurrentPeerList())))
		return nil
	}, distance, peers)
	if err != nil {
		return fmt.Errorf("registering link callback: %w", err)
	}
	return nil
}

func logStatusBoard(logger *slog.Logger, board *statuslog.Board) {
	for _, l := range board.Logs() {
		lines := l.Lines()
		last := ""
		if len(lines) > 0 {
			last = lines[0]
		}
		logger.Info("Status log", "server", l.Server, "slot", l.Slot, "lines", len(lines), "last", last)
	}
}

func probeCommand() *cli.Command {
	return &cli.Command{
		Name:      "probe",
		Usage:     "Check that a competition server answers",
		ArgsUsage: "[server]",
		Action: func(c *cli.Context) error {
			rt, err := setupRuntime(c, "probe", nil)
			if err != nil {
				return err
			}
			defer rt.Close()

			target := rt.Settings.Server.URL
			if c.Args().Present() {
				target = c.Args().First()
			}

			session, err := api.Connect(c.Context, target,
				api.WithTimeout(rt.Settings.Telemetry.Timeout),
				api.WithLogger(rt.Logger),
			)
			if err != nil {
				return err
			}
			defer session.Close()

			if err := session.ProbeErr(); err != nil {
				rt.Logger.Warn("Server not reachable", "server", session.Host(), "error", err)
				return cli.Exit(fmt.Sprintf("%s: %v", session.BaseURL(), err), 1)
			}
			rt.Logger.Info("Server reachable", "server", session.Host())
			fmt.Printf("%s is reachable\n", session.BaseURL())
			return nil
		},
	}
}

func sampleCommand() *cli.Command {
	return &cli.Command{
		Name:  "sample",
		Usage: "Print the telemetry payload the configured vehicle would send",
		Flags: []cli.Flag{
			&cli.IntFlag{Name: "count", Aliases: []string{"n"}, Value: 1, Usage: "Number of samples"},
			&cli.DurationFlag{Name: "every", Value: time.Second, Usage: "Delay between samples"},
		},
		Action: func(c *cli.Context) error {
			rt, err := setupRuntime(c, "sample", nil)
			if err != nil {
				return err
			}
			defer rt.Close()

			provider, err := newProvider(rt.Settings.Vehicle, time.Now())
			if err != nil {
				return err
			}
			for i := 0; i < c.Int("count"); i++ {
				if i > 0 {
					select {
					case <-c.Context.Done():
						return nil
					case <-time.After(c.Duration("every")):
					}
				}
				out, err := samplePayload(provider, rt.Settings.Telemetry.TeamNumber, time.Now())
				if err != nil {
					return err
				}
				fmt.Println(string(out))
			}
			return nil
		},
	}
}

// samplePayload encodes one snapshot of p exactly as it goes on the wire,
// indented for reading.
func samplePayload(p vehicle.Provider, team int, now time.Time) ([]byte, error) {
	body, err := codec.EncodeTelemetry(vehicle.Snapshot(p, team, now))
	if err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	if err := json.Indent(&buf, body, "", "  "); err != nil {
		return nil, fmt.Errorf("failed to indent payload: %w", err)
	}
	return buf.Bytes(), nil
}
