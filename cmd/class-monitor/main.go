package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"github.com/davideleoni90/TinysOSClassMonitoring/internal/config"
	"github.com/davideleoni90/TinysOSClassMonitoring/internal/logging"
	"github.com/davideleoni90/TinysOSClassMonitoring/internal/observability"
)

func main() {
	configPath := flag.String("config", "", "Path to config.properties (defaults to ./config.properties when present)")
	flag.Parse()

	log := logging.NewFromEnv()
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Error(ctx, "failed to load configuration", logging.Err(err))
		os.Exit(1)
	}

	shutdownTracing, err := observability.InitTracing(ctx, observability.TracingConfigFromEnv(), log)
	if err != nil {
		log.Error(ctx, "failed to initialise tracing", logging.Err(err))
		os.Exit(1)
	}
	defer observability.ShutdownWithTimeout(context.Background(), shutdownTracing, log)

	app, err := newApp(cfg, log, nil)
	if err != nil {
		log.Error(ctx, "failed to build monitor", logging.Err(err))
		os.Exit(1)
	}
	defer app.Close()

	if err := app.Run(ctx); err != nil {
		log.Error(ctx, "monitor exited", logging.Err(err))
		os.Exit(1)
	}
	log.Info(ctx, "monitor stopped")
}
