// Package main is the entry point for the bacup binary.
//
// Startup sequence:
//  1. Parse CLI flags / environment variables
//  2. Build logger
//  3. Load and decode the TOML configuration document
//  4. Wire every source and destination adapter, building one pipeline.Backup
//     per [backup.*] section
//  5. Register every backup with the scheduler and start it
//  6. Block until SIGINT/SIGTERM, then graceful shutdown
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/galeone/bacup/internal/config"
	"github.com/galeone/bacup/internal/pipeline"
	"github.com/galeone/bacup/internal/scheduler"
	"github.com/galeone/bacup/internal/wiring"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

type appConfig struct {
	configPath string
	logLevel   string
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	cfg := &appConfig{}

	root := &cobra.Command{
		Use:   "bacup",
		Short: "bacup — a declarative backup daemon",
		Long: `bacup reads a TOML configuration document describing sources, destinations,
and cadences, and runs each backup on its own schedule: dump, enumerate,
optionally compress, upload, and apply retention.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.Context(), cfg)
		},
	}

	root.AddCommand(newVersionCmd())

	root.PersistentFlags().StringVar(&cfg.configPath, "config", envOrDefault(config.EnvVar, config.DefaultFile),
		fmt.Sprintf("path to the TOML configuration document (env: %s)", config.EnvVar))
	root.PersistentFlags().StringVar(&cfg.logLevel, "log-level", envOrDefault("BACUP_LOG_LEVEL", "info"),
		"log level (debug, info, warn, error)")

	return root
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("bacup %s (commit: %s, built: %s)\n", version, commit, date)
		},
	}
}

func run(ctx context.Context, cfg *appConfig) error {
	logger, err := buildLogger(cfg.logLevel)
	if err != nil {
		return fmt.Errorf("failed to build logger: %w", err)
	}
	defer logger.Sync() //nolint:errcheck

	logger.Info("starting bacup",
		zap.String("version", version),
		zap.String("config", cfg.configPath),
	)

	doc, err := config.Load(cfg.configPath)
	if err != nil {
		// ConfigInvalid: fatal, non-zero exit, per spec.md §7.
		return fmt.Errorf("config invalid: %w", err)
	}

	ctx, cancel := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer cancel()

	p := pipeline.New(logger)
	sched, err := scheduler.New(p, logger)
	if err != nil {
		return fmt.Errorf("failed to create scheduler: %w", err)
	}

	if err := wiring.Wire(ctx, doc, sched, logger); err != nil {
		// A backup referencing an unresolvable source/destination name is
		// ConfigInvalid too, per spec.md §8 scenario 5 — fatal at startup.
		return fmt.Errorf("config invalid: %w", err)
	}

	sched.Start()
	logger.Info("bacup running, waiting for signal to stop")

	<-ctx.Done()

	if err := sched.Stop(); err != nil {
		logger.Warn("scheduler shutdown reported an error", zap.Error(err))
	}
	logger.Info("bacup stopped")
	return nil
}

func buildLogger(level string) (*zap.Logger, error) {
	var cfg zap.Config

	switch level {
	case "debug":
		cfg = zap.NewDevelopmentConfig()
	default:
		cfg = zap.NewProductionConfig()
	}

	switch level {
	case "debug":
		cfg.Level = zap.NewAtomicLevelAt(zap.DebugLevel)
	case "info":
		cfg.Level = zap.NewAtomicLevelAt(zap.InfoLevel)
	case "warn":
		cfg.Level = zap.NewAtomicLevelAt(zap.WarnLevel)
	case "error":
		cfg.Level = zap.NewAtomicLevelAt(zap.ErrorLevel)
	default:
		cfg.Level = zap.NewAtomicLevelAt(zap.InfoLevel)
	}

	return cfg.Build()
}

func envOrDefault(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}
