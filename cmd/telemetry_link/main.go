package main

import (
	"fmt"
	"os"

	"github.com/urfave/cli/v2"

	"github.com/anafarta/telemetry-link/internal/config"
)

// module defs - BuildDate can be set at build time via ldflags
var (
	CurrentVersion string = "0.0.1"
	BuildDate      string = "unknown"

	AppName string = "telemetry_link"
)

func main() {
	app := &cli.App{
		Name:    AppName,
		Usage:   "Report UAV telemetry to a competition server and track the nearest peer",
		Version: fmt.Sprintf("%s (built %s)", CurrentVersion, BuildDate),
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config-dir",
				Aliases: []string{"c"},
				Value:   ".",
				Usage:   "Directory holding " + config.FileName,
				EnvVars: []string{"TLINK_CONFIG_DIR"},
			},
			&cli.StringFlag{
				Name:  "log-level",
				Usage: "Override logLevel (debug, info, warn, error)",
			},
			&cli.BoolFlag{
				Name:  "console-log",
				Usage: "Log to stdout instead of a file in logsDir",
			},
		},
		Commands: []*cli.Command{
			runCommand(),
			probeCommand(),
			sampleCommand(),
		},
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
