package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"marketpulse/internal/config"
	"marketpulse/internal/util"
)

type rootOptions struct {
	configPath string
	logLevel   string
}

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := rootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	opts := &rootOptions{}
	cmd := &cobra.Command{
		Use:           "pulse",
		Short:         "Market breadth for an index's constituents",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	defaultPath := "config/marketpulse.yaml"
	if p := os.Getenv("PULSE_CONFIG"); p != "" {
		defaultPath = p
	}
	cmd.PersistentFlags().StringVarP(&opts.configPath, "config", "c", defaultPath, "config file (missing file uses defaults)")
	cmd.PersistentFlags().StringVar(&opts.logLevel, "log-level", "", "override log level (debug, info, warn, error)")

	cmd.AddCommand(runCmd(opts), universeCmd(opts), serveCmd(opts))
	return cmd
}

// load reads the config and installs the default logger. CLI output goes to
// stdout, so logs are written to stderr.
func (o *rootOptions) load() (*config.Config, error) {
	cfg, err := config.LoadOrDefault(o.configPath)
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	if o.logLevel != "" {
		cfg.Logging.Level = o.logLevel
	}
	util.SetDefault(util.NewLoggerTo(os.Stderr, cfg.Logging.Level, cfg.Logging.Format))
	return cfg, nil
}
