package main

import (
	"log/slog"

	"github.com/spf13/cobra"

	"marketpulse/internal/app"
	"marketpulse/internal/metrics"
)

func serveCmd(root *rootOptions) *cobra.Command {
	var port, grpcPort int
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the breadth API (HTTP, WebSocket and gRPC) with scheduled refreshes",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := root.load()
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("port") {
				cfg.Server.Port = port
			}
			if cmd.Flags().Changed("grpc-port") {
				cfg.Server.GRPCPort = grpcPort
			}

			a, err := app.New(cmd.Context(), cfg, metrics.NewCollector(), slog.Default())
			if err != nil {
				return err
			}
			defer a.Close()
			return a.Serve(cmd.Context())
		},
	}
	cmd.Flags().IntVar(&port, "port", 8080, "HTTP port")
	cmd.Flags().IntVar(&grpcPort, "grpc-port", 9090, "gRPC port (0 disables)")
	return cmd
}
