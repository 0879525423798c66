// Package main implements dslsupervisor, the process that hosts a single
// Controller and its configured streams for the lifetime of the process.
//
// Usage:
//
//	dslsupervisor [options]
//
// Options:
//
//	-config=PATH       Path to config file (default: /etc/dslsupervisor/config.yaml)
//	-health-addr=ADDR  Override the pipeline's configured health listener address
//	-interactive       Launch the terminal menu instead of blocking silently
//	-help              Show this help message
//
// The process loads configuration, starts the controller's ambient services
// (watchdog, health monitor, health HTTP listener), and waits for
// SIGINT/SIGTERM to shut down gracefully. Concrete Source/Sink kinds are out
// of scope for this module (spec.md §1); streams are added to a running
// Controller by an embedding program via AddSource/AddSink, not by this
// binary.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/destenson/dsl-rs-go/internal/config"
	"github.com/destenson/dsl-rs-go/internal/controller"
	"github.com/destenson/dsl-rs-go/internal/graph"
	"github.com/destenson/dsl-rs-go/internal/healthmon"
	"github.com/destenson/dsl-rs-go/internal/menu"
	"github.com/destenson/dsl-rs-go/internal/watchdog"
)

// Build information (set by ldflags).
var (
	Version = "dev"
	Commit  = "unknown"
)

var (
	configPath  = flag.String("config", config.ConfigFilePath, "Path to configuration file")
	healthAddr  = flag.String("health-addr", "", "Override the configured health listener address")
	interactive = flag.Bool("interactive", false, "Launch the terminal menu")
	showHelp    = flag.Bool("help", false, "Show help message")
)

func main() {
	flag.Parse()

	if *showHelp {
		printUsage()
		os.Exit(0)
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))
	logger.Info("dslsupervisor starting", "version", Version, "commit", Commit)

	cfg, err := loadConfiguration(*configPath)
	if err != nil {
		logger.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}
	logger.Info("configuration loaded", "path", *configPath, "name", cfg.Pipeline.Name)

	ctrlCfg := controllerConfigFromPipeline(cfg.Pipeline, logger)
	if *healthAddr != "" {
		ctrlCfg.HealthAddr = *healthAddr
	}

	ctrl := controller.New(ctrlCfg, graph.NewFakeBuilder())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logger.Info("received signal, shutting down", "signal", sig.String())
		cancel()
	}()

	if err := ctrl.Start(ctx); err != nil {
		logger.Error("failed to start controller", "error", err)
		os.Exit(1)
	}

	if *interactive {
		m := menu.BuildMainMenu(ctrl, os.Stdin, os.Stdout)
		if err := m.Display(); err != nil {
			logger.Error("menu exited with error", "error", err)
		}
		cancel()
	} else {
		<-ctx.Done()
	}

	if err := ctrl.Stop(30 * time.Second); err != nil {
		logger.Error("shutdown did not complete cleanly", "error", err)
		os.Exit(1)
	}

	logger.Info("shutdown complete")
}

// loadConfiguration loads the config file, falling back to defaults when it
// does not exist.
func loadConfiguration(path string) (*config.Config, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return config.DefaultConfig(), nil
	}
	return config.LoadConfig(path)
}

// controllerConfigFromPipeline translates the file-serializable
// PipelineConfig into the controller's runtime Config, applying the
// watchdog/health package defaults for any sub-config PipelineConfig does
// not expose directly.
func controllerConfigFromPipeline(p config.PipelineConfig, logger *slog.Logger) controller.Config {
	ctrlCfg := controller.DefaultConfig()
	ctrlCfg.Logger = logger
	ctrlCfg.MaxStreams = p.MaxStreams
	ctrlCfg.HealthAddr = p.HealthAddr

	if p.EnableWatchdog {
		ctrlCfg.Watchdog = watchdog.Config{
			TickInterval: watchdog.DefaultConfig().TickInterval,
			Timeout:      p.WatchdogTimeout,
		}
	} else {
		// No watchdog.Config field disables trips outright; a timeout far
		// longer than any realistic stall keeps the tick loop harmless.
		ctrlCfg.Watchdog.Timeout = 365 * 24 * time.Hour
	}

	if p.EnableMetrics {
		health := healthmon.DefaultConfig()
		health.CheckInterval = p.MetricsInterval
		ctrlCfg.Health = health
	}

	return ctrlCfg
}

func printUsage() {
	fmt.Printf("dslsupervisor %s (%s)\n\n", Version, Commit)
	fmt.Println("Usage: dslsupervisor [options]")
	fmt.Println()
	fmt.Println("Options:")
	flag.PrintDefaults()
	fmt.Println()
	fmt.Println("Signals:")
	fmt.Println("  SIGINT, SIGTERM  Graceful shutdown")
}
