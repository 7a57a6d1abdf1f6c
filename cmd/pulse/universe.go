package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"marketpulse/internal/tables"
	"marketpulse/internal/universe"
)

func universeCmd(root *rootOptions) *cobra.Command {
	var export string
	cmd := &cobra.Command{
		Use:   "universe",
		Short: "Print the instrument universe and where it came from",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := root.load()
			if err != nil {
				return err
			}
			src, err := universe.NewSource(tables.NewRouter(nil), universe.Options{
				URL:      cfg.Universe.ReferenceURL,
				Columns:  cfg.Universe.Columns,
				Suffix:   cfg.Universe.Suffix,
				Fallback: cfg.Universe.Fallback,
			})
			if err != nil {
				return err
			}

			u := src.FetchUniverse(cmd.Context())
			status := "ok"
			if u.Degraded {
				status = "degraded: " + u.Reason
			}
			fmt.Printf("source=%s instruments=%d status=%s\n", u.Source, len(u.Instruments), status)
			for _, s := range u.Symbols() {
				fmt.Println(s)
			}

			if export != "" {
				if err := exportUniverse(export, u.Symbols()); err != nil {
					return err
				}
				fmt.Fprintf(os.Stderr, "wrote %d symbols to %s\n", len(u.Instruments), export)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&export, "export", "", "also write the universe to a .csv or .parquet file usable as reference_url")
	return cmd
}

func exportUniverse(path string, symbols []string) error {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".parquet":
		return tables.WriteConstituents(path, symbols)
	case ".csv":
		f, err := os.Create(path)
		if err != nil {
			return err
		}
		t := tables.Table{Name: filepath.Base(path), Columns: []string{"Symbol"}}
		for _, s := range symbols {
			t.Rows = append(t.Rows, []string{s})
		}
		if err := tables.WriteCSV(f, t); err != nil {
			f.Close()
			return err
		}
		return f.Close()
	default:
		return fmt.Errorf("unsupported export format %q (want .csv or .parquet)", filepath.Ext(path))
	}
}
