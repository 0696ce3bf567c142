// Package main implements the entry point for gatherd, the Power PMAC
// gather data server. It maps the capture region, serves the TCP telemetry
// protocol, and optionally relays frames to NATS and exports Prometheus
// metrics.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/c360/gatherd/config"
	"github.com/c360/gatherd/gather"
	"github.com/c360/gatherd/metric"
	"github.com/c360/gatherd/natsclient"
	"github.com/c360/gatherd/relay"
	"github.com/c360/gatherd/server"
)

// Build information constants
const (
	Version   = "0.1.0"
	BuildTime = "dev"
	appName   = "gatherd"
)

const shutdownTimeout = 10 * time.Second

func main() {
	// Add panic recovery
	defer func() {
		if r := recover(); r != nil {
			buf := make([]byte, 4096)
			n := runtime.Stack(buf, false)
			_, _ = fmt.Fprintf(os.Stderr, "PANIC: %v\nStack trace:\n%s\n", r, string(buf[:n]))
			os.Exit(2)
		}
	}()

	if err := run(os.Args[1:]); err != nil {
		slog.Error("Application failed", "error", err, "exit_code", 1)
		os.Exit(1)
	}
}

func run(args []string) error {
	cliCfg, err := parseFlags(args)
	if err != nil {
		return err
	}
	if cliCfg.ShowHelp {
		return nil
	}
	if cliCfg.ShowVersion {
		fmt.Printf("%s %s (built %s)\n", appName, Version, BuildTime)
		return nil
	}

	logger := setupLogger(cliCfg.LogLevel, cliCfg.LogFormat)
	slog.SetDefault(logger)

	cfg, err := loadConfig(cliCfg)
	if err != nil {
		return err
	}
	if cliCfg.Validate {
		logger.Info("configuration is valid")
		return nil
	}

	// The capture region must map before the listener opens: a client that
	// connects to a source-less server would only ever see empty frames.
	sourcePath := cfg.Source.Path
	if sourcePath == "" {
		sourcePath = gather.DefaultRegionPath
	}
	region, err := gather.OpenRegion(sourcePath)
	if err != nil {
		return err
	}
	defer func() { _ = region.Close() }()
	logger.Info("gather region mapped", "path", sourcePath)

	var registry *metric.MetricsRegistry
	var metricsServer *metric.Server
	if cfg.Metrics.Enabled {
		registry = metric.NewMetricsRegistry()
		metricsServer = metric.NewServer(cfg.Metrics.Port, cfg.Metrics.Path, registry)
		if err := metricsServer.Start(); err != nil {
			return err
		}
		defer func() { _ = metricsServer.Stop(shutdownTimeout) }()
		logger.Info("metrics endpoint up", "port", cfg.Metrics.Port, "path", cfg.Metrics.Path)
	}

	srv := server.New(cfg.Server, server.Deps{
		Source:          region,
		MetricsRegistry: registry,
		Logger:          logger,
	})
	if err := srv.Initialize(); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := srv.Start(ctx); err != nil {
		return err
	}
	logger.Info("server listening", "bind", cfg.Server.Bind, "port", cfg.Server.Port)

	var busRelay *relay.Relay
	if cfg.Relay.Enabled {
		bus, err := natsclient.New(cfg.Relay.URL, logger, natsclient.WithName(appName))
		if err != nil {
			return err
		}
		if err := bus.Connect(ctx); err != nil {
			return err
		}
		defer bus.Close()

		busRelay = relay.New(relay.Config{
			SubjectPrefix: cfg.Relay.SubjectPrefix,
			Interval:      time.Duration(cfg.Relay.Interval),
		}, relay.Deps{
			Source:          region,
			Publisher:       bus,
			MetricsRegistry: registry,
			Logger:          logger,
		})
		if err := busRelay.Initialize(); err != nil {
			return err
		}
		if err := busRelay.Start(ctx); err != nil {
			return err
		}
	}

	<-ctx.Done()
	logger.Info("shutdown signal received")

	if busRelay != nil {
		if err := busRelay.Stop(shutdownTimeout); err != nil {
			logger.Warn("relay shutdown incomplete", "error", err)
		}
	}
	if err := srv.Stop(shutdownTimeout); err != nil {
		logger.Warn("server shutdown incomplete", "error", err)
	}
	logger.Info("shutdown complete")
	return nil
}

// loadConfig merges file config with the CLI surface. The positional port
// argument wins over the file, matching how the daemon was always invoked.
func loadConfig(cliCfg *CLIConfig) (config.Config, error) {
	cfg := config.Default()
	if cliCfg.ConfigPath != "" {
		var err error
		cfg, err = config.Load(cliCfg.ConfigPath)
		if err != nil {
			return cfg, err
		}
	}
	if cliCfg.PortSet {
		cfg.Server.Port = cliCfg.Port
	}
	cfg.Log.Level = cliCfg.LogLevel
	cfg.Log.Format = cliCfg.LogFormat
	return cfg, nil
}
