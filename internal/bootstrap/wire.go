package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/charmbracelet/log"

	"scanbridge/internal/config"
	"scanbridge/internal/history"
	"scanbridge/internal/logging"
	"scanbridge/internal/platform/remote"
	"scanbridge/internal/platform/zbar"
	"scanbridge/internal/ports"
	"scanbridge/internal/usecase"
)

// Services is the assembled runtime graph.
type Services struct {
	Controller *usecase.ScannerController
	Config     config.Config
	Logger     *log.Logger
	// History is nil when history is disabled or could not be opened.
	History *history.Store

	recorder  *history.Recorder
	logCloser io.Closer
}

// Boot loads configuration from configPath (or the default location), builds
// the root logger and wires everything else.
func Boot(ctx context.Context, configPath string) (*Services, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}

	logger, closer, err := logging.New(logging.Config{Level: cfg.Logging.Level, Path: cfg.Logging.Path})
	if err != nil {
		return nil, err
	}

	services, err := Build(ctx, cfg, logger)
	if err != nil {
		_ = closer.Close()
		return nil, err
	}
	services.logCloser = closer
	return services, nil
}

// Build wires all backend dependencies for cfg.
func Build(ctx context.Context, cfg config.Config, logger *log.Logger) (*Services, error) {
	if logger == nil {
		logger = logging.Discard()
	}

	opts, err := cfg.Scanner.Options()
	if err != nil {
		return nil, err
	}

	platform, err := NewPlatform(ctx, cfg.Platform, logger)
	if err != nil {
		return nil, err
	}

	controller, err := usecase.NewScannerController(platform, opts, logging.Component(logger, "controller"))
	if err != nil {
		_ = platform.Dispose(ctx)
		return nil, err
	}

	services := &Services{Controller: controller, Config: cfg, Logger: logger}

	if cfg.History.Enabled {
		store, err := history.Open(cfg.History.Path)
		if err != nil {
			logger.Warn("capture history disabled", "path", cfg.History.Path, "err", err)
		} else {
			services.History = store
			services.recorder = history.StartRecorder(controller.Subscribe(), store, logging.Component(logger, "history"))
		}
	}

	logger.Info("scanner ready", "driver", cfg.Platform.Driver, "facing", opts.Facing, "history", services.History != nil)
	return services, nil
}

// NewPlatform builds the configured scanner platform driver.
func NewPlatform(ctx context.Context, cfg config.PlatformConfig, logger *log.Logger) (ports.ScannerPlatform, error) {
	switch cfg.Driver {
	case config.DriverZbar, "":
		return zbar.NewPlatform(zbar.Config{
			CamCommand:   cfg.Zbar.CamCommand,
			ImgCommand:   cfg.Zbar.ImgCommand,
			BackDevice:   cfg.Zbar.BackDevice,
			FrontDevice:  cfg.Zbar.FrontDevice,
			StartupGrace: cfg.Zbar.StartupGrace,
		}, logging.Component(logger, "zbar")), nil
	case config.DriverRemote:
		platform, err := remote.Dial(ctx, remote.Config{
			URL:         cfg.Remote.URL,
			Token:       cfg.Remote.Token,
			DialTimeout: cfg.Remote.DialTimeout,
		}, logging.Component(logger, "remote"))
		if err != nil {
			return nil, err
		}
		return platform, nil
	default:
		return nil, fmt.Errorf("unknown platform driver %q", cfg.Driver)
	}
}

// Close disposes the controller, flushes history and closes the log output.
func (s *Services) Close(ctx context.Context) error {
	var errs []error
	if err := s.Controller.Dispose(ctx); err != nil {
		errs = append(errs, err)
	}
	if s.recorder != nil {
		select {
		case <-s.recorder.Done():
		case <-ctx.Done():
			errs = append(errs, ctx.Err())
		}
	}
	if s.History != nil {
		if err := s.History.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if s.logCloser != nil {
		if err := s.logCloser.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
