// Package main provides the launchmate binary: an HTTP API and a small CLI
// over the founder project lifecycle.
package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"runtime"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/c360studio/launchmate/config"
)

const (
	Version   = "0.1.0"
	BuildTime = "dev"
	appName   = "launchmate"
)

// shutdownTimeout bounds the wait for pending remote writes on exit.
const shutdownTimeout = 15 * time.Second

func main() {
	defer func() {
		if r := recover(); r != nil {
			buf := make([]byte, 4096)
			n := runtime.Stack(buf, false)
			_, _ = fmt.Fprintf(os.Stderr, "PANIC: %v\nStack trace:\n%s\n", r, string(buf[:n]))
			os.Exit(2)
		}
	}()

	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// globals are the persistent flags shared by every subcommand.
type globals struct {
	configPath string
	logLevel   string
	identity   string
}

func rootCmd() *cobra.Command {
	g := &globals{}

	cmd := &cobra.Command{
		Use:   appName,
		Short: "Founder project lifecycle and insight engine",
		Long: `Launchmate tracks founder projects through their phases (idea,
validation, MVP, early users, scaling), advances a project when every task
of its current phase is done, and keeps at least three generated market
insights on each project's feed.

Projects live in a remote store: memory, NATS JetStream KV, MongoDB or
SQLite.`,
		SilenceUsage: true,
	}

	cmd.PersistentFlags().StringVarP(&g.configPath, "config", "c", "", "Config file path (YAML)")
	cmd.PersistentFlags().StringVar(&g.logLevel, "log-level", "", "Log level (debug, info, warn, error)")
	cmd.PersistentFlags().StringVar(&g.identity, "identity", "", "Identity whose projects to work on")

	cmd.AddCommand(
		serveCmd(g),
		projectsCmd(g),
		toggleCmd(g),
		backfillCmd(g),
		phasesCmd(g),
		configCmd(g),
		&cobra.Command{
			Use:   "version",
			Short: "Print version information",
			Run: func(cmd *cobra.Command, _ []string) {
				fmt.Fprintf(cmd.OutOrStdout(), "%s version %s (build: %s)\n", appName, Version, BuildTime)
			},
		},
	)
	return cmd
}

// loadConfig resolves the layered configuration and applies flag overrides.
func (g *globals) loadConfig() (*config.Config, error) {
	cfg, err := config.NewLoader(slog.Default()).Load(g.configPath)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if g.logLevel != "" {
		cfg.Log.Level = g.logLevel
	}
	if g.identity != "" {
		cfg.Identity = g.identity
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// newLogger builds the process logger from cfg.Log and makes it the default.
func newLogger(cfg *config.Config, w io.Writer) *slog.Logger {
	level := slog.LevelInfo
	switch strings.ToLower(cfg.Log.Level) {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}
	opts := &slog.HandlerOptions{Level: level}

	var logger *slog.Logger
	if cfg.Log.Format == "json" {
		logger = slog.New(slog.NewJSONHandler(w, opts))
	} else {
		logger = slog.New(slog.NewTextHandler(w, opts))
	}
	slog.SetDefault(logger)
	return logger
}

// startApp loads config, builds the app and connects the store. The caller
// must call Shutdown.
func (g *globals) startApp(ctx context.Context) (*App, error) {
	cfg, err := g.loadConfig()
	if err != nil {
		return nil, err
	}
	logger := newLogger(cfg, os.Stderr)

	app, err := NewApp(cfg, logger)
	if err != nil {
		return nil, err
	}
	if err := app.Start(ctx); err != nil {
		app.Shutdown(shutdownTimeout)
		return nil, err
	}
	return app, nil
}

// withApp runs fn with a started app and a signal-aware context.
func (g *globals) withApp(cmd *cobra.Command, fn func(ctx context.Context, app *App) error) error {
	ctx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	app, err := g.startApp(ctx)
	if err != nil {
		return err
	}
	defer app.Shutdown(shutdownTimeout)
	return fn(ctx, app)
}

func serveCmd(g *globals) *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return g.withApp(cmd, func(ctx context.Context, app *App) error {
				if addr != "" {
					app.cfg.HTTP.Addr = addr
				}
				if app.cfg.Identity != "" {
					if err := app.Load(ctx); err != nil {
						return err
					}
				}
				app.logger.Info("Launchmate ready", "version", Version, "store", app.cfg.Store.Backend)
				return app.Serve(ctx)
			})
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "Listen address (overrides http.addr)")
	return cmd
}
