package main

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"scanbridge/internal/config"
)

func newConfigCmd(root *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "config",
		Short: "Show the effective configuration",
		Long: `Display the configuration after merging the config file, environment and defaults.

Configuration is loaded from:
  1. --config, if given
  2. $XDG_CONFIG_HOME/scanbridge/config.yaml

Environment variables override file settings with the SCANBRIDGE_ prefix:
  SCANBRIDGE_SCANNER_FACING=front
  SCANBRIDGE_PLATFORM_DRIVER=remote
  SCANBRIDGE_SCANNER_FORMATS=qrCode,ean13`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(root.configPath)
			if err != nil {
				return err
			}
			printConfig(cmd, root.configPath, cfg)
			return nil
		},
	}
}

func printConfig(cmd *cobra.Command, path string, cfg config.Config) {
	out := cmd.OutOrStdout()

	if path == "" {
		path = filepath.Join(config.ConfigDir(), "config.yaml")
	}
	fmt.Fprintf(out, "Config file: %s\n\n", path)

	fmt.Fprintln(out, "Current Configuration:")
	fmt.Fprintln(out, "----------------------")
	fmt.Fprintf(out, "scanner.facing:               %s\n", cfg.Scanner.Facing)
	fmt.Fprintf(out, "scanner.detection_speed:      %s\n", cfg.Scanner.DetectionSpeed)
	fmt.Fprintf(out, "scanner.detection_timeout_ms: %d\n", cfg.Scanner.DetectionTimeoutMs)
	fmt.Fprintf(out, "scanner.formats:              %s\n", orAll(cfg.Scanner.Formats))
	fmt.Fprintf(out, "scanner.resolution:           %s\n", orDefault(cfg.Scanner.Resolution))
	fmt.Fprintf(out, "scanner.return_image:         %t\n", cfg.Scanner.ReturnImage)
	fmt.Fprintf(out, "scanner.torch_enabled:        %t\n", cfg.Scanner.TorchEnabled)
	fmt.Fprintf(out, "platform.driver:              %s\n", cfg.Platform.Driver)
	switch cfg.Platform.Driver {
	case config.DriverRemote:
		fmt.Fprintf(out, "platform.remote.url:          %s\n", cfg.Platform.Remote.URL)
		fmt.Fprintf(out, "platform.remote.token:        %s\n", mask(cfg.Platform.Remote.Token))
		fmt.Fprintf(out, "platform.remote.dial_timeout: %s\n", cfg.Platform.Remote.DialTimeout)
	default:
		fmt.Fprintf(out, "platform.zbar.cam_command:    %s\n", cfg.Platform.Zbar.CamCommand)
		fmt.Fprintf(out, "platform.zbar.img_command:    %s\n", cfg.Platform.Zbar.ImgCommand)
		fmt.Fprintf(out, "platform.zbar.back_device:    %s\n", orDefault(cfg.Platform.Zbar.BackDevice))
		fmt.Fprintf(out, "platform.zbar.front_device:   %s\n", orDefault(cfg.Platform.Zbar.FrontDevice))
	}
	fmt.Fprintf(out, "history.enabled:              %t\n", cfg.History.Enabled)
	fmt.Fprintf(out, "history.path:                 %s\n", cfg.History.Path)
	fmt.Fprintf(out, "logging.level:                %s\n", cfg.Logging.Level)
	fmt.Fprintf(out, "logging.path:                 %s\n", orDefault(cfg.Logging.Path))

	fmt.Fprintln(out, "\nEnvironment Overrides:")
	fmt.Fprintln(out, "----------------------")
	var overrides []string
	for _, entry := range os.Environ() {
		if strings.HasPrefix(entry, "SCANBRIDGE_") {
			key, value, _ := strings.Cut(entry, "=")
			if strings.HasSuffix(key, "_TOKEN") {
				value = mask(value)
			}
			overrides = append(overrides, key+"="+value)
		}
	}
	if len(overrides) == 0 {
		fmt.Fprintln(out, "(none)")
		return
	}
	sort.Strings(overrides)
	for _, line := range overrides {
		fmt.Fprintln(out, line)
	}
}

func orAll(values []string) string {
	if len(values) == 0 {
		return "(all)"
	}
	return strings.Join(values, ",")
}

func orDefault(value string) string {
	if value == "" {
		return "(default)"
	}
	return value
}

func mask(secret string) string {
	if secret == "" {
		return ""
	}
	return "********"
}
