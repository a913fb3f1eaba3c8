package main

import (
	"encoding/json"
	"errors"

	"github.com/spf13/cobra"

	"scanbridge/internal/bootstrap"
)

var errNoBarcode = errors.New("no barcode found")

func newAnalyzeCmd(root *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "analyze <image>",
		Short: "Scan a still image and print the capture as JSON",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			services, err := bootstrap.Boot(cmd.Context(), root.configPath)
			if err != nil {
				return err
			}
			defer closeServices(services)

			capture, err := services.Controller.AnalyzeImage(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if capture == nil {
				return errNoBarcode
			}

			encoder := json.NewEncoder(cmd.OutOrStdout())
			encoder.SetIndent("", "  ")
			return encoder.Encode(capture)
		},
	}
}
