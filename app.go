package main

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"

	"github.com/wailsapp/wails/v2/pkg/runtime"

	"scanbridge/internal/bootstrap"
	"scanbridge/internal/config"
	"scanbridge/internal/domain"
	"scanbridge/internal/history"
	"scanbridge/internal/usecase"
)

const (
	eventBarcode = "scanbridge:barcode"
	eventState   = "scanbridge:state"
	eventError   = "scanbridge:error"
)

// App is the Wails application root.
type App struct {
	ctx context.Context

	services   *bootstrap.Services
	controller *usecase.ScannerController
	bootErr    error

	// emit defaults to runtime.EventsEmit.
	emit     func(ctx context.Context, name string, data ...interface{})
	forwards sync.WaitGroup
}

func NewApp() *App {
	return &App{}
}

func (a *App) startup(ctx context.Context) {
	a.ctx = ctx

	services, err := bootstrap.Boot(ctx, "")
	if err != nil {
		a.bootErr = err
		a.reportError(err)
		return
	}
	a.attach(services)
}

func (a *App) attach(services *bootstrap.Services) {
	a.services = services
	a.controller = services.Controller

	detections := a.controller.Subscribe()
	states := a.controller.Watch()

	a.forwards.Add(2)
	go func() {
		defer a.forwards.Done()
		for capture := range detections.C {
			a.emitEvent(eventBarcode, capture)
		}
	}()
	go func() {
		defer a.forwards.Done()
		for state := range states.C {
			a.emitEvent(eventState, state)
		}
	}()

	a.emitEvent(eventState, a.controller.State())
}

func (a *App) shutdown(ctx context.Context) {
	if a.services == nil {
		return
	}
	if err := a.services.Close(ctx); err != nil {
		a.services.Logger.Warn("shutdown did not complete cleanly", "err", err)
	}
	a.forwards.Wait()
}

// Start opens the camera. An empty facing uses the configured camera.
// Camera failures are reported in the returned state, not as an error.
func (a *App) Start(facing string) (domain.ScannerState, error) {
	if err := a.requireReady(); err != nil {
		return domain.ScannerState{}, err
	}

	var override *domain.CameraFacing
	if strings.TrimSpace(facing) != "" {
		parsed, err := domain.ParseCameraFacing(facing)
		if err != nil {
			return domain.ScannerState{}, err
		}
		override = &parsed
	}

	if err := a.controller.Start(a.ctx, override); err != nil {
		a.reportError(err)
		return domain.ScannerState{}, err
	}
	state := a.controller.State()
	if state.Error != nil {
		a.reportError(state.Error)
	}
	return state, nil
}

// Stop closes the camera.
func (a *App) Stop() (domain.ScannerState, error) {
	return a.command(a.controller.Stop)
}

// SwitchCamera restarts on the opposite camera.
func (a *App) SwitchCamera() (domain.ScannerState, error) {
	return a.command(a.controller.SwitchCamera)
}

// ToggleTorch flips the torch. The new state arrives as a state event.
func (a *App) ToggleTorch() error {
	_, err := a.command(a.controller.ToggleTorch)
	return err
}

// SetZoomScale sets zoom in [0,1]; out of range values are clamped.
func (a *App) SetZoomScale(scale float64) error {
	_, err := a.command(func(ctx context.Context) error {
		return a.controller.SetZoomScale(ctx, scale)
	})
	return err
}

func (a *App) ResetZoomScale() error {
	_, err := a.command(a.controller.ResetZoomScale)
	return err
}

// AnalyzeImage scans a still image. It returns nil when nothing was found.
func (a *App) AnalyzeImage(path string) (*domain.BarcodeCapture, error) {
	if err := a.requireReady(); err != nil {
		return nil, err
	}
	capture, err := a.controller.AnalyzeImage(a.ctx, path)
	if err != nil {
		a.reportError(err)
		return nil, err
	}
	return capture, nil
}

// GetState returns the current scanner state.
func (a *App) GetState() domain.ScannerState {
	if a.controller == nil {
		state := domain.ScannerState{CameraDirection: domain.CameraFacingBack, TorchState: domain.TorchStateOff}
		if a.bootErr != nil {
			state.Error = domain.WrapScannerError(a.bootErr)
		}
		return state
	}
	return a.controller.State()
}

// GetHistory returns up to limit recent captures, newest first.
func (a *App) GetHistory(limit int) ([]history.Record, error) {
	if err := a.requireReady(); err != nil {
		return nil, err
	}
	if a.services.History == nil {
		return nil, nil
	}
	return a.services.History.Recent(limit)
}

// GetRuntimeInfo returns non-sensitive config for the UI.
func (a *App) GetRuntimeInfo() map[string]string {
	if a.bootErr != nil {
		return map[string]string{"error": a.bootErr.Error()}
	}
	if a.services == nil {
		return map[string]string{}
	}

	cfg := a.services.Config
	opts := a.controller.Options()
	info := map[string]string{
		"driver":         cfg.Platform.Driver,
		"facing":         string(opts.Facing),
		"detectionSpeed": string(opts.DetectionSpeed),
		"timeoutMs":      strconv.Itoa(opts.DetectionTimeoutMs),
		"history":        strconv.FormatBool(a.services.History != nil),
	}
	if opts.CameraResolution != nil {
		info["resolution"] = opts.CameraResolution.String()
	}
	if len(opts.Formats) > 0 {
		names := make([]string, 0, len(opts.Formats))
		for _, format := range opts.Formats {
			names = append(names, string(format))
		}
		info["formats"] = strings.Join(names, ",")
	}
	switch cfg.Platform.Driver {
	case config.DriverRemote:
		info["agent"] = cfg.Platform.Remote.URL
	default:
		info["backDevice"] = cfg.Platform.Zbar.BackDevice
		info["frontDevice"] = cfg.Platform.Zbar.FrontDevice
	}
	return info
}

func (a *App) command(run func(context.Context) error) (domain.ScannerState, error) {
	if err := a.requireReady(); err != nil {
		return domain.ScannerState{}, err
	}
	if err := run(a.ctx); err != nil {
		a.reportError(err)
		return domain.ScannerState{}, err
	}
	return a.controller.State(), nil
}

func (a *App) requireReady() error {
	if a.bootErr != nil {
		return a.bootErr
	}
	if a.controller == nil {
		return fmt.Errorf("application is not initialized")
	}
	return nil
}

// reportError emits backend errors to the UI.
func (a *App) reportError(err error) {
	if err == nil {
		return
	}
	code := domain.ErrorCodeGeneric
	var scannerErr *domain.ScannerError
	if errors.As(err, &scannerErr) {
		code = scannerErr.Code
	}
	a.emitEvent(eventError, map[string]string{
		"code":    string(code),
		"message": errorMessage(code, err.Error()),
		"detail":  err.Error(),
	})
}

func (a *App) emitEvent(name string, data interface{}) {
	if a.ctx == nil {
		return
	}
	if a.emit != nil {
		a.emit(a.ctx, name, data)
		return
	}
	runtime.EventsEmit(a.ctx, name, data)
}

func errorMessage(code domain.ErrorCode, detail string) string {
	switch code {
	case domain.ErrorCodeControllerUninitialized:
		return "Scanner has not been started"
	case domain.ErrorCodeControllerDisposed:
		return "Scanner was shut down"
	case domain.ErrorCodeControllerAlreadyInitialized:
		return "Scanner is already running"
	case domain.ErrorCodePermissionDenied:
		return "Camera permission denied"
	case domain.ErrorCodeUnsupported:
		return "Not supported by this camera"
	default:
		if detail == "" {
			return "Unknown error"
		}
		return detail
	}
}
