// Command toolharness serves a set of tools to orchestrators over HTTP,
// WebSocket and the Model Context Protocol.
//
// Exit codes: 0 after a clean shutdown, 1 for configuration and runtime
// errors, 2 when tool registration fails at startup.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/MrWong99/toolharness/internal/app"
	"github.com/MrWong99/toolharness/internal/config"
	"github.com/MrWong99/toolharness/internal/observe"
	"github.com/MrWong99/toolharness/pkg/harness"
	"github.com/MrWong99/toolharness/pkg/tool"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

const (
	exitOK           = 0
	exitError        = 1
	exitStartupFatal = 2

	shutdownTimeout = 15 * time.Second
)

func main() {
	os.Exit(run())
}

func run() int {
	// ── CLI flags ──────────────────────────────────────────────────────────────
	configPath := flag.String("config", "config.yaml", "path to the YAML configuration file")
	watch := flag.Bool("watch", true, "reload the log level when the configuration file changes")
	flag.Parse()

	// ── Load configuration ────────────────────────────────────────────────────
	cfg, err := config.Load(*configPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			fmt.Fprintf(os.Stderr, "toolharness: config file %q not found\n", *configPath)
		} else {
			fmt.Fprintf(os.Stderr, "toolharness: %v\n", err)
		}
		return exitError
	}

	// ── Logger ────────────────────────────────────────────────────────────────
	// Logs always go to stderr; stdout belongs to the stdio MCP transport.
	level := new(slog.LevelVar)
	level.Set(slogLevel(cfg.Server.LogLevel))
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	slog.Info("toolharness starting",
		"version", version,
		"config", *configPath,
		"listen_addr", cfg.Server.ListenAddr,
		"log_level", cfg.Server.LogLevel,
		"tools", strings.Join(cfg.Tools.Enabled, ","),
	)

	// ── Telemetry ─────────────────────────────────────────────────────────────
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	otelShutdown, err := observe.InitProvider(ctx, observe.ProviderConfig{
		ServiceName:    cfg.Telemetry.ServiceName,
		ServiceVersion: version,
	})
	if err != nil {
		slog.Error("failed to initialise telemetry", "err", err)
		return exitError
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := otelShutdown(shutdownCtx); err != nil {
			slog.Warn("telemetry shutdown error", "err", err)
		}
	}()

	// ── Application ───────────────────────────────────────────────────────────
	application, err := app.New(cfg, app.WithLogger(logger), app.WithVersion(version))
	if err != nil {
		if tool.IsStartupFatal(err) || errors.Is(err, harness.ErrNoTools) {
			slog.Error("tool registration failed", "err", err)
			return exitStartupFatal
		}
		slog.Error("failed to initialise application", "err", err)
		return exitError
	}

	// ── Config watcher (log level only) ───────────────────────────────────────
	if *watch {
		w, err := config.NewWatcher(*configPath, func(diff config.ConfigDiff, _ *config.Config) {
			if diff.LogLevelChanged {
				level.Set(slogLevel(diff.NewLogLevel))
				slog.Info("log level changed", "level", diff.NewLogLevel)
			}
			if len(diff.RestartRequired) > 0 {
				slog.Warn("configuration changed; restart to apply", "sections", diff.RestartRequired)
			}
		}, config.WithWatcherLogger(logger))
		if err != nil {
			slog.Warn("config watcher disabled", "err", err)
		} else {
			defer w.Stop()
		}
	}

	slog.Info("server ready, press Ctrl+C to shut down")

	runErr := application.Run(ctx)
	if runErr != nil && !errors.Is(runErr, context.Canceled) {
		slog.Error("run error", "err", runErr)
	}

	// ── Graceful shutdown ─────────────────────────────────────────────────────
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	slog.Info("stopping")
	if err := application.Shutdown(shutdownCtx); err != nil {
		slog.Error("shutdown error", "err", err)
		return exitError
	}
	if runErr != nil && !errors.Is(runErr, context.Canceled) {
		return exitError
	}
	slog.Info("goodbye")
	return exitOK
}

// slogLevel maps a config log level to a slog level. Unknown values map to
// info.
func slogLevel(level config.LogLevel) slog.Level {
	switch level {
	case config.LogDebug:
		return slog.LevelDebug
	case config.LogWarn:
		return slog.LevelWarn
	case config.LogError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
