package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/adrg/xdg"
	"github.com/spf13/viper"

	"scanbridge/internal/domain"
	"scanbridge/internal/usecase"
)

const appName = "scanbridge"

// Platform drivers.
const (
	DriverZbar   = "zbar"
	DriverRemote = "remote"
)

// Config stores runtime configuration for the scanner bridge.
type Config struct {
	Scanner  ScannerConfig  `mapstructure:"scanner"`
	Platform PlatformConfig `mapstructure:"platform"`
	History  HistoryConfig  `mapstructure:"history"`
	Logging  LoggingConfig  `mapstructure:"logging"`
}

type ScannerConfig struct {
	Facing               string   `mapstructure:"facing"`
	DetectionSpeed       string   `mapstructure:"detection_speed"`
	DetectionTimeoutMs   int      `mapstructure:"-"`
	Formats              []string `mapstructure:"formats"`
	ReturnImage          bool     `mapstructure:"return_image"`
	TorchEnabled         bool     `mapstructure:"torch_enabled"`
	UseNewCameraSelector bool     `mapstructure:"use_new_camera_selector"`
	// Resolution is WxH, for example 1280x720. Empty lets the driver pick.
	Resolution string `mapstructure:"resolution"`
}

type PlatformConfig struct {
	Driver string       `mapstructure:"driver"`
	Zbar   ZbarConfig   `mapstructure:"zbar"`
	Remote RemoteConfig `mapstructure:"remote"`
}

type ZbarConfig struct {
	CamCommand   string        `mapstructure:"cam_command"`
	ImgCommand   string        `mapstructure:"img_command"`
	BackDevice   string        `mapstructure:"back_device"`
	FrontDevice  string        `mapstructure:"front_device"`
	StartupGrace time.Duration `mapstructure:"startup_grace"`
}

type RemoteConfig struct {
	URL         string        `mapstructure:"url"`
	Token       string        `mapstructure:"token"`
	DialTimeout time.Duration `mapstructure:"dial_timeout"`
}

type HistoryConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Path    string `mapstructure:"path"`
}

type LoggingConfig struct {
	Level string `mapstructure:"level"`
	Path  string `mapstructure:"path"`
}

// Load resolves configuration from the config file, SCANBRIDGE_* environment
// variables and defaults. An explicit path must exist; the default location
// is optional.
//
// Config file location when path is empty:
//   - $XDG_CONFIG_HOME/scanbridge/config.yaml
func Load(path string) (Config, error) {
	v := viper.New()

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(ConfigDir())
	}

	v.SetEnvPrefix("SCANBRIDGE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return Config{}, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	// Numbers that do not parse fall back to their defaults instead of failing.
	cfg.Scanner.DetectionTimeoutMs = intOrDefault(v.GetString("scanner.detection_timeout_ms"), usecase.DefaultDetectionTimeoutMs)
	if cfg.Scanner.DetectionTimeoutMs < 0 {
		cfg.Scanner.DetectionTimeoutMs = usecase.DefaultDetectionTimeoutMs
	}
	if cfg.Platform.Zbar.StartupGrace <= 0 {
		cfg.Platform.Zbar.StartupGrace = 250 * time.Millisecond
	}
	if cfg.Platform.Remote.DialTimeout <= 0 {
		cfg.Platform.Remote.DialTimeout = 5 * time.Second
	}
	cfg.Platform.Driver = strings.ToLower(strings.TrimSpace(cfg.Platform.Driver))
	cfg.History.Path = expandHome(cfg.History.Path)
	cfg.Logging.Path = expandHome(cfg.Logging.Path)

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("scanner.facing", string(domain.CameraFacingBack))
	v.SetDefault("scanner.detection_speed", string(domain.DetectionSpeedNormal))
	v.SetDefault("scanner.detection_timeout_ms", usecase.DefaultDetectionTimeoutMs)
	v.SetDefault("scanner.formats", []string{})
	v.SetDefault("scanner.return_image", false)
	v.SetDefault("scanner.torch_enabled", false)
	v.SetDefault("scanner.use_new_camera_selector", false)
	v.SetDefault("scanner.resolution", "")

	v.SetDefault("platform.driver", DriverZbar)
	v.SetDefault("platform.zbar.cam_command", "zbarcam")
	v.SetDefault("platform.zbar.img_command", "zbarimg")
	v.SetDefault("platform.zbar.back_device", "/dev/video0")
	v.SetDefault("platform.zbar.front_device", "")
	v.SetDefault("platform.zbar.startup_grace", "250ms")
	v.SetDefault("platform.remote.url", "")
	v.SetDefault("platform.remote.token", "")
	v.SetDefault("platform.remote.dial_timeout", "5s")

	v.SetDefault("history.enabled", true)
	v.SetDefault("history.path", DefaultHistoryPath())

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.path", "")
}

// Validate rejects unknown driver and enum values.
func (c Config) Validate() error {
	switch c.Platform.Driver {
	case DriverZbar:
	case DriverRemote:
		if strings.TrimSpace(c.Platform.Remote.URL) == "" {
			return errors.New("platform.remote.url is required for the remote driver")
		}
	default:
		return fmt.Errorf("unknown platform driver %q", c.Platform.Driver)
	}
	if _, err := c.Scanner.Options(); err != nil {
		return err
	}
	return nil
}

// Options converts the scanner section into controller options.
func (s ScannerConfig) Options() (usecase.Options, error) {
	facing, err := domain.ParseCameraFacing(s.Facing)
	if err != nil {
		return usecase.Options{}, fmt.Errorf("scanner.facing: %w", err)
	}
	speed, err := domain.ParseDetectionSpeed(s.DetectionSpeed)
	if err != nil {
		return usecase.Options{}, fmt.Errorf("scanner.detection_speed: %w", err)
	}

	var formats []domain.BarcodeFormat
	for _, raw := range s.Formats {
		if strings.TrimSpace(raw) == "" {
			continue
		}
		format, err := domain.ParseBarcodeFormat(raw)
		if err != nil {
			return usecase.Options{}, fmt.Errorf("scanner.formats: %w", err)
		}
		formats = append(formats, format)
	}

	resolution, err := ParseResolution(s.Resolution)
	if err != nil {
		return usecase.Options{}, fmt.Errorf("scanner.resolution: %w", err)
	}

	return usecase.Options{
		CameraResolution:     resolution,
		DetectionSpeed:       speed,
		DetectionTimeoutMs:   s.DetectionTimeoutMs,
		Facing:               facing,
		Formats:              formats,
		ReturnImage:          s.ReturnImage,
		TorchEnabled:         s.TorchEnabled,
		UseNewCameraSelector: s.UseNewCameraSelector,
	}, nil
}

// ParseResolution parses WxH. An empty value returns nil.
func ParseResolution(value string) (*domain.Size, error) {
	value = strings.TrimSpace(strings.ToLower(value))
	if value == "" {
		return nil, nil
	}
	w, h, ok := strings.Cut(value, "x")
	if !ok {
		return nil, fmt.Errorf("expected WxH, got %q", value)
	}
	width, err := strconv.Atoi(strings.TrimSpace(w))
	if err != nil || width <= 0 {
		return nil, fmt.Errorf("invalid width in %q", value)
	}
	height, err := strconv.Atoi(strings.TrimSpace(h))
	if err != nil || height <= 0 {
		return nil, fmt.Errorf("invalid height in %q", value)
	}
	return &domain.Size{Width: float64(width), Height: float64(height)}, nil
}

// ConfigDir returns $XDG_CONFIG_HOME/scanbridge.
func ConfigDir() string {
	if xdgConfigHome := strings.TrimSpace(os.Getenv("XDG_CONFIG_HOME")); xdgConfigHome != "" {
		return filepath.Join(xdgConfigHome, appName)
	}
	return filepath.Join(xdg.ConfigHome, appName)
}

// DataDir returns $XDG_DATA_HOME/scanbridge.
func DataDir() string {
	if xdgDataHome := strings.TrimSpace(os.Getenv("XDG_DATA_HOME")); xdgDataHome != "" {
		return filepath.Join(xdgDataHome, appName)
	}
	return filepath.Join(xdg.DataHome, appName)
}

// DefaultHistoryPath returns the default badger directory for captures.
func DefaultHistoryPath() string {
	return filepath.Join(DataDir(), "history")
}

func intOrDefault(value string, fallback int) int {
	value = strings.TrimSpace(value)
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func expandHome(path string) string {
	if !strings.HasPrefix(path, "~") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, path[1:])
}
