// Package main provides the CLI entry point for framelab.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/ideamans/go-l10n"
	"github.com/urfave/cli/v2"

	"github.com/user/framelab/pkg/adapters/logger"
	"github.com/user/framelab/pkg/config"
	"github.com/user/framelab/pkg/ports"
)

var version = "dev"

func main() {
	app := newApp()
	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, l10n.F("Error: %v", err))
		os.Exit(1)
	}
}

func newApp() *cli.App {
	return &cli.App{
		Name:        "framelab",
		Usage:       l10n.T("Inspect, filter and cut images, videos and camera streams"),
		Version:     version,
		Description: l10n.T("framelab runs frames from an image, a video file or a camera through a filter chain, lets you zoom into regions, mark cut points and export the segments between them."),
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "config", Aliases: []string{"c"}, Usage: l10n.T("YAML configuration file"), Category: l10n.T("Configuration")},
			&cli.StringFlag{Name: "ffmpeg-path", Usage: l10n.T("Path to the ffmpeg binary (falls back to FFMPEG_PATH, then PATH)"), Category: l10n.T("Configuration")},
			&cli.StringFlag{Name: "log-level", Aliases: []string{"l"}, Usage: l10n.T("Log level (debug, info, warn, error)"), Category: l10n.T("Logging")},
			&cli.BoolFlag{Name: "quiet", Aliases: []string{"Q"}, Usage: l10n.T("Suppress all log output"), Category: l10n.T("Logging")},
		},
		Commands: []*cli.Command{
			filterCommand(),
			extractCommand(),
			exportCommand(),
			recordCommand(),
			playCommand(),
			{
				Name:  "version",
				Usage: l10n.T("Show version information"),
				Action: func(c *cli.Context) error {
					fmt.Println(l10n.F("framelab version %s", version))
					return nil
				},
			},
		},
	}
}

// loadConfig reads the configuration file, if any, and applies global flags.
func loadConfig(c *cli.Context) (config.Config, error) {
	cfg := config.Defaults()
	if path := c.String("config"); path != "" {
		var err error
		cfg, err = config.LoadFromFile(path)
		if err != nil {
			return cfg, fmt.Errorf("load config: %w", err)
		}
	}
	if v := c.String("ffmpeg-path"); v != "" {
		cfg.FFmpegPath = v
	}
	if v := c.String("log-level"); v != "" {
		cfg.LogLevel = v
	}
	return cfg, nil
}

func newLogger(c *cli.Context, cfg config.Config) ports.Logger {
	if c.Bool("quiet") {
		return logger.NewNoop()
	}
	return logger.NewConsole(ports.ParseLogLevel(cfg.LogLevel))
}

// signalContext returns a context cancelled on SIGINT or SIGTERM.
func signalContext(log ports.Logger) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		select {
		case <-sigCh:
			log.Warn("Interrupted, shutting down...")
			cancel()
		case <-ctx.Done():
		}
		signal.Stop(sigCh)
	}()
	return ctx, cancel
}
