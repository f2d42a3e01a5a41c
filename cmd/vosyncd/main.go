// SPDX-License-Identifier: MIT

// Command vosyncd is the local co-watching daemon: it hosts sync rooms,
// resolves playback media into short-lived tokens and streams or proxies
// the bytes to every player in the room.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/vosync/vosync/internal/api"
	"github.com/vosync/vosync/internal/bili"
	"github.com/vosync/vosync/internal/config"
	"github.com/vosync/vosync/internal/daemon"
	"github.com/vosync/vosync/internal/hub"
	volog "github.com/vosync/vosync/internal/log"
	"github.com/vosync/vosync/internal/rooms"
	"github.com/vosync/vosync/internal/telemetry"
)

var (
	version   = "v0.3.0"
	commit    = "none"
	buildDate = "unknown"
)

func main() {
	showVersion := flag.Bool("version", false, "print version and exit")
	configPath := flag.String("config", "", "path to config file (YAML)")
	flag.Parse()

	if *showVersion {
		fmt.Printf("%s (commit: %s, built: %s)\n", version, commit, buildDate)
		os.Exit(0)
	}

	// The logger must exist before config loading can report anything.
	// Format and level come straight from the environment here; a level
	// set only in the config file is applied right after loading.
	var out io.Writer = os.Stdout
	if strings.EqualFold(os.Getenv(config.EnvLogFormat), "console") {
		out = zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}
	}
	volog.Configure(volog.Config{
		Output:  out,
		Service: "vosync",
		Version: version,
	})
	logger := volog.WithComponent("daemon")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Config path: --config wins, then VO_SYNC_CONFIG, then env-only.
	effectiveConfigPath := strings.TrimSpace(*configPath)
	if effectiveConfigPath == "" {
		effectiveConfigPath = strings.TrimSpace(config.ParseString(config.EnvConfigFile, ""))
	}

	cfg, err := config.Load(effectiveConfigPath)
	if err != nil {
		logger.Fatal().Err(err).
			Str("event", "config.load_failed").
			Str("config_path", effectiveConfigPath).
			Msg("failed to load configuration")
	}
	volog.SetLevel(cfg.LogLevel)

	if effectiveConfigPath != "" {
		logger.Info().
			Str("event", "config.loaded").
			Str("source", "file").
			Str("path", effectiveConfigPath).
			Msg("loaded configuration from file")
	} else {
		logger.Info().
			Str("event", "config.loaded").
			Str("source", "env+defaults").
			Msg("loaded configuration from environment and defaults")
	}

	provider, err := telemetry.NewProvider(ctx, telemetry.Config{
		Enabled:        cfg.Trace.Enabled,
		ServiceName:    "vosync",
		ServiceVersion: version,
		ExporterType:   cfg.Trace.Exporter,
		Endpoint:       cfg.Trace.Endpoint,
		SamplingRate:   cfg.Trace.SampleRate,
	})
	if err != nil {
		logger.Fatal().Err(err).
			Str("event", "telemetry.init_failed").
			Msg("failed to initialize tracing")
	}

	resolver := bili.New(bili.Options{
		RateLimit: rate.Limit(cfg.BiliRate),
		Burst:     cfg.BiliBurst,
	})

	registry := rooms.NewRegistry(rooms.Options{
		RoomTTL:            cfg.RoomTTL,
		TokenTTL:           cfg.TokenTTL,
		SweepInterval:      cfg.SweepInterval,
		AllowMemberControl: cfg.AllowMemberControl,
	}, resolver)

	if cfg.MediaRoot != "" {
		if root, rootErr := registry.SetMediaRoot(cfg.MediaRoot); rootErr != nil {
			logger.Warn().Err(rootErr).
				Str("media_root", cfg.MediaRoot).
				Msg("configured media root rejected, local playback disabled until set via API")
		} else {
			logger.Info().Msgf("→ Media root: %s", root)
		}
	} else {
		logger.Info().Msg("→ Media root: not configured (set via POST /api/media/root)")
	}
	logger.Info().Msgf("→ Member control: %v", cfg.AllowMemberControl)
	logger.Info().Msgf("→ Room TTL: %s, token TTL: %s", cfg.RoomTTL, cfg.TokenTTL)

	tracingService := ""
	if cfg.Trace.Enabled {
		tracingService = "vosync"
	}
	server := api.New(registry, hub.New(), api.Options{TracingService: tracingService})

	// Hot reload only makes sense with a config file to watch.
	var holder *config.Holder
	if effectiveConfigPath != "" {
		holder = config.NewHolder(cfg, effectiveConfigPath)
		if watchErr := holder.StartWatcher(ctx); watchErr != nil {
			logger.Warn().Err(watchErr).Msg("config hot reload unavailable")
			holder = nil
		} else {
			updates := make(chan config.Config, 1)
			holder.RegisterListener(updates)
			go applyReloads(ctx, logger, registry, updates)
		}
	}

	registry.StartSweeper(ctx)

	deps := daemon.Deps{
		Logger:         logger,
		APIHandler:     server.Handler(),
		MetricsHandler: promhttp.Handler(),
		MetricsAddr:    strings.TrimSpace(cfg.MetricsAddr),
		AddrFile:       strings.TrimSpace(cfg.AddrFile),
	}

	mgr, err := daemon.NewManager(daemon.ServerConfig{
		ListenAddr:      cfg.ListenAddr,
		ShutdownTimeout: cfg.ShutdownTimeout,
	}, deps)
	if err != nil {
		logger.Fatal().Err(err).
			Str("event", "manager.creation.failed").
			Msg("failed to create daemon manager")
	}

	mgr.RegisterShutdownHook("room sweeper", func(context.Context) error {
		registry.Stop()
		return nil
	})
	if holder != nil {
		mgr.RegisterShutdownHook("config watcher", func(context.Context) error {
			holder.Stop()
			return nil
		})
	}
	mgr.RegisterShutdownHook("telemetry", provider.Shutdown)

	logger.Info().
		Str("event", "startup").
		Str("version", version).
		Str("commit", commit).
		Str("build_date", buildDate).
		Str("addr", cfg.ListenAddr).
		Msg("starting vosyncd")

	if err := mgr.Start(ctx); err != nil {
		logger.Fatal().Err(err).
			Str("event", "manager.failed").
			Msg("daemon failed")
	}

	logger.Info().Msg("server exiting")
}

// applyReloads pushes watched config changes into the running daemon. Only
// the runtime-safe knobs move; listen addresses stay fixed until restart.
func applyReloads(ctx context.Context, logger zerolog.Logger, registry *rooms.Registry, updates <-chan config.Config) {
	for {
		select {
		case <-ctx.Done():
			return
		case next, ok := <-updates:
			if !ok {
				return
			}
			registry.SetAllowMemberControl(next.AllowMemberControl)
			volog.SetLevel(next.LogLevel)
			if next.MediaRoot != "" {
				if _, err := registry.SetMediaRoot(next.MediaRoot); err != nil {
					logger.Warn().Err(err).
						Str("media_root", next.MediaRoot).
						Msg("reloaded media root rejected, keeping previous")
				}
			}
			logger.Info().
				Str("event", "config.reloaded").
				Bool("allow_member_control", next.AllowMemberControl).
				Msg("applied configuration reload")
		}
	}
}
