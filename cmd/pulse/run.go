package main

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/spf13/cobra"

	"marketpulse/internal/app"
	"marketpulse/internal/dashboard"
	"marketpulse/internal/httpapi"
)

func runCmd(root *rootOptions) *cobra.Command {
	var (
		asJSON  bool
		sortBy  string
		workers int
		watch   time.Duration
	)
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run one refresh cycle and print the breadth table",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := root.load()
			if err != nil {
				return err
			}
			if workers > 0 {
				cfg.Quotes.Workers = workers
			}

			a, err := app.New(cmd.Context(), cfg, nil, slog.Default())
			if err != nil {
				return err
			}
			defer a.Close()

			mode := dashboard.ParseSortMode(sortBy)
			for {
				snap := a.Refresher.RunOnce(cmd.Context())
				if asJSON {
					enc := json.NewEncoder(os.Stdout)
					enc.SetIndent("", "  ")
					if err := enc.Encode(httpapi.ToSnapshotJSON(snap)); err != nil {
						return err
					}
				} else {
					fmt.Print(dashboard.RenderSnapshot(snap, mode))
				}

				if watch <= 0 {
					return nil
				}
				select {
				case <-cmd.Context().Done():
					return nil
				case <-time.After(watch):
				}
			}
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the snapshot as JSON")
	cmd.Flags().StringVar(&sortBy, "sort", "index", "row order: index, gain, loss, symbol")
	cmd.Flags().IntVar(&workers, "workers", 0, "override concurrent quote fetches (1 = sequential)")
	cmd.Flags().DurationVar(&watch, "watch", 0, "repeat every interval until interrupted")
	return cmd
}
