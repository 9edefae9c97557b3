// Prismatad is the prismata task orchestration daemon.
//
// It loads configuration, wires the capability stack behind the
// orchestrator and serves the HTTP API until SIGINT or SIGTERM.
//
// Usage:
//
//	# Start with ~/.config/prismata/config.yaml and environment overrides
//	prismatad
//
//	# Use an explicit config file
//	prismatad -config /etc/prismata/config.yaml
//
//	# Configure via environment
//	PRISMATA_SERVER_PORT=9090 PRISMATA_LLM_API_KEY=sk-... prismatad
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"go.opentelemetry.io/otel/log/global"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/prismata/internal/config"
	"github.com/fyrsmithlabs/prismata/internal/logging"
	"github.com/fyrsmithlabs/prismata/internal/telemetry"
)

// Version information (set via ldflags during build)
var (
	version   = "dev"
	gitCommit = "unknown"
	buildDate = "unknown"
)

func main() {
	configPath := flag.String("config", "", "path to config file")
	flag.Parse()
	args := flag.Args()

	if len(args) > 0 {
		switch args[0] {
		case "version":
			printVersion()
			os.Exit(0)
		default:
			fmt.Fprintf(os.Stderr, "Unknown command: %s\n", args[0])
			fmt.Fprintf(os.Stderr, "\nUsage:\n")
			fmt.Fprintf(os.Stderr, "  prismatad [-config path]   Start the daemon\n")
			fmt.Fprintf(os.Stderr, "  prismatad version          Show version information\n")
			os.Exit(1)
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, *configPath); err != nil {
		log.Fatalf("prismatad: %v", err)
	}
}

func printVersion() {
	fmt.Printf("prismatad by Fyrsmith Labs\n")
	fmt.Printf("Version:    %s\n", version)
	fmt.Printf("Commit:     %s\n", gitCommit)
	fmt.Printf("Build Date: %s\n", buildDate)
}

// run loads configuration, serves until ctx is cancelled, then drains the
// server and flushes telemetry within the configured shutdown timeout.
func run(ctx context.Context, configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	logCfg, err := logging.ConfigFor(cfg.Logging.Level, cfg.Logging.Format)
	if err != nil {
		return fmt.Errorf("invalid logging config: %w", err)
	}
	logCfg.Output.OTEL = cfg.Telemetry.Enabled
	logger, err := logging.New(logCfg, global.GetLoggerProvider())
	if err != nil {
		return fmt.Errorf("initializing logger: %w", err)
	}
	defer func() {
		_ = logger.Sync()
	}()

	tel, err := telemetry.New(ctx, telemetry.ConfigFrom(cfg.Telemetry, version),
		telemetry.WithLogger(logger.Zap()))
	if err != nil {
		return fmt.Errorf("initializing telemetry: %w", err)
	}

	logger.Info(ctx, "starting prismatad",
		zap.String("version", version),
		zap.String("addr", cfg.Server.Addr()),
		zap.Bool("telemetry", tel.Health().Enabled),
		zap.String("llm_model", cfg.LLM.Model),
		zap.Bool("llm_api_key_set", cfg.LLM.APIKey.IsSet()),
	)

	a, err := newApp(ctx, cfg, logger, tel)
	if err != nil {
		return err
	}
	defer a.Close()

	errCh := make(chan error, 1)
	go func() {
		errCh <- a.server.Start()
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info(context.Background(), "shutdown signal received")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout.Duration())
	defer cancel()

	var errs []error
	if err := a.server.Shutdown(shutdownCtx); err != nil {
		errs = append(errs, fmt.Errorf("http shutdown: %w", err))
	}
	if err := tel.Shutdown(shutdownCtx); err != nil {
		errs = append(errs, fmt.Errorf("telemetry shutdown: %w", err))
	}
	logger.Info(context.Background(), "shutdown complete")
	return errors.Join(errs...)
}
