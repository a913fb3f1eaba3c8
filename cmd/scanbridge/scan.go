package main

import (
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"scanbridge/internal/bootstrap"
	"scanbridge/internal/domain"
)

func newScanCmd(root *rootOptions) *cobra.Command {
	var (
		facing string
		limit  int
	)

	cmd := &cobra.Command{
		Use:   "scan",
		Short: "Scan with the camera and print captures as JSON lines",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runScan(cmd, root, facing, limit)
		},
	}
	cmd.Flags().StringVarP(&facing, "facing", "f", "", "camera to use: front or back (default from config)")
	cmd.Flags().IntVarP(&limit, "limit", "l", 0, "stop after this many captures (0 = until interrupted)")
	return cmd
}

func runScan(cmd *cobra.Command, root *rootOptions, facing string, limit int) error {
	var override *domain.CameraFacing
	if strings.TrimSpace(facing) != "" {
		parsed, err := domain.ParseCameraFacing(facing)
		if err != nil {
			return err
		}
		override = &parsed
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	services, err := bootstrap.Boot(ctx, root.configPath)
	if err != nil {
		return err
	}
	defer closeServices(services)

	controller := services.Controller
	detections := controller.Subscribe()
	defer controller.Unsubscribe(detections.ID)

	if err := controller.Start(ctx, override); err != nil {
		return err
	}
	if state := controller.State(); state.Error != nil {
		return fmt.Errorf("camera did not start: %w", state.Error)
	}

	encoder := json.NewEncoder(cmd.OutOrStdout())
	seen := 0
	for {
		select {
		case <-ctx.Done():
			return nil
		case capture, ok := <-detections.C:
			if !ok {
				return nil
			}
			if err := encoder.Encode(capture); err != nil {
				return err
			}
			seen++
			if limit > 0 && seen >= limit {
				return nil
			}
		}
	}
}
