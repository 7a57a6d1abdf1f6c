package main

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"marketpulse/internal/app"
	"marketpulse/internal/config"
	"marketpulse/internal/metrics"
	"marketpulse/internal/util"
)

func main() {
	// Load config.
	cfgPath := "config/marketpulse.yaml"
	if p := os.Getenv("PULSE_CONFIG"); p != "" {
		cfgPath = p
	}
	cfg, err := config.LoadOrDefault(cfgPath)
	if err != nil {
		log.Fatalf("loading config: %v", err)
	}

	// Setup logging.
	logFileName := fmt.Sprintf("/tmp/pulse-server-%s.log", time.Now().Format("2006-01-02"))
	logFile, err := os.OpenFile(logFileName, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		log.Fatalf("opening log file: %v", err)
	}
	defer logFile.Close()

	w := io.MultiWriter(os.Stdout, logFile)
	logger := util.NewLoggerTo(w, cfg.Logging.Level, cfg.Logging.Format)
	util.SetDefault(logger)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	a, err := app.New(ctx, cfg, metrics.NewCollector(), logger)
	if err != nil {
		log.Fatalf("building pipeline: %v", err)
	}
	defer a.Close()

	logger.Info("marketpulse server starting",
		"config", cfgPath,
		"reference", cfg.Universe.ReferenceURL,
		"provider", cfg.Quotes.Provider,
		"refresh", cfg.Refresh.Interval,
	)
	if err := a.Serve(ctx); err != nil {
		logger.Error("server error", "error", err)
		os.Exit(1)
	}
	logger.Info("marketpulse server stopped")
}
