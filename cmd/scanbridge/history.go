package main

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"scanbridge/internal/config"
	"scanbridge/internal/history"
)

func newHistoryCmd(root *rootOptions) *cobra.Command {
	var (
		limit    int
		asJSON   bool
		clearAll bool
	)

	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show recently detected barcodes",
		Long: `Show captures recorded while scanning, newest first.

History is stored in a badger database under $XDG_DATA_HOME/scanbridge/history
unless history.path is configured. The store can only be opened by one process,
so stop a running scanner before reading it.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(root.configPath)
			if err != nil {
				return err
			}

			store, err := history.Open(cfg.History.Path)
			if err != nil {
				return err
			}
			defer store.Close()

			out := cmd.OutOrStdout()
			if clearAll {
				if err := store.Clear(); err != nil {
					return err
				}
				fmt.Fprintln(out, "History cleared.")
				return nil
			}

			records, err := store.Recent(limit)
			if err != nil {
				return err
			}

			if asJSON {
				encoder := json.NewEncoder(out)
				for _, record := range records {
					if err := encoder.Encode(record); err != nil {
						return err
					}
				}
				return nil
			}

			if len(records) == 0 {
				fmt.Fprintln(out, "No captures recorded.")
				return nil
			}
			for _, record := range records {
				for _, barcode := range record.Capture.Barcodes {
					fmt.Fprintf(out, "%s  %-10s  %s\n", record.At.Local().Format(time.DateTime), barcode.Format, barcode.RawValue)
				}
			}
			return nil
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "l", 20, "maximum number of captures to show (0 = all)")
	cmd.Flags().BoolVarP(&asJSON, "json", "j", false, "print records as JSON lines")
	cmd.Flags().BoolVar(&clearAll, "clear", false, "delete all recorded captures")
	return cmd
}
