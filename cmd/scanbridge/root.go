package main

import (
	"context"
	"time"

	"github.com/spf13/cobra"

	"scanbridge/internal/bootstrap"
)

// shutdownTimeout bounds how long a command waits for the scanner to close.
const shutdownTimeout = 5 * time.Second

type rootOptions struct {
	configPath string
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}

	cmd := &cobra.Command{
		Use:   "scanbridge",
		Short: "Scan barcodes from a camera or image",
		Long: `scanbridge drives a barcode scanner (zbar or a remote device agent)
from the command line.

Examples:
  scanbridge scan                  # Print captures as JSON lines until interrupted
  scanbridge scan --limit 1        # Exit after the first capture
  scanbridge analyze ticket.png    # Scan a still image
  scanbridge history -l 5          # Show the five most recent captures
  scanbridge config                # Show the effective configuration`,
		SilenceUsage: true,
	}

	cmd.PersistentFlags().StringVar(&opts.configPath, "config", "", "config file (default: $XDG_CONFIG_HOME/scanbridge/config.yaml)")

	cmd.AddCommand(newScanCmd(opts))
	cmd.AddCommand(newAnalyzeCmd(opts))
	cmd.AddCommand(newHistoryCmd(opts))
	cmd.AddCommand(newConfigCmd(opts))
	return cmd
}

func closeServices(services *bootstrap.Services) {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := services.Close(ctx); err != nil {
		services.Logger.Warn("scanner did not shut down cleanly", "err", err)
	}
}
