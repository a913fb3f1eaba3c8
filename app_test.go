package main

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"scanbridge/internal/bootstrap"
	"scanbridge/internal/config"
	"scanbridge/internal/domain"
	"scanbridge/internal/logging"
	"scanbridge/internal/ports"
	"scanbridge/internal/usecase"
)

func TestErrorMessage(t *testing.T) {
	t.Parallel()

	cases := map[domain.ErrorCode]string{
		domain.ErrorCodeControllerUninitialized:      "Scanner has not been started",
		domain.ErrorCodeControllerDisposed:           "Scanner was shut down",
		domain.ErrorCodeControllerAlreadyInitialized: "Scanner is already running",
		domain.ErrorCodePermissionDenied:             "Camera permission denied",
		domain.ErrorCodeUnsupported:                  "Not supported by this camera",
	}
	for code, want := range cases {
		code, want := code, want
		t.Run(string(code), func(t *testing.T) {
			t.Parallel()
			if got := errorMessage(code, "ignored"); got != want {
				t.Fatalf("unexpected message: %q", got)
			}
		})
	}

	if got := errorMessage(domain.ErrorCodeGeneric, "detail"); got != "detail" {
		t.Fatalf("expected detail fallback, got %q", got)
	}
	if got := errorMessage("unknown", ""); got != "Unknown error" {
		t.Fatalf("expected unknown fallback, got %q", got)
	}
}

func TestRequireReady(t *testing.T) {
	t.Parallel()

	app := &App{}
	if err := app.requireReady(); err == nil {
		t.Fatalf("expected uninitialized error")
	}
	if _, err := app.Stop(); err == nil {
		t.Fatalf("expected stop to fail before startup")
	}

	bootErr := errors.New("boot")
	app.bootErr = bootErr
	if err := app.requireReady(); !errors.Is(err, bootErr) {
		t.Fatalf("expected boot error, got %v", err)
	}
}

func TestGetStateWhenNotInitialized(t *testing.T) {
	t.Parallel()

	app := &App{}
	state := app.GetState()
	if state.IsInitialized || state.IsRunning || state.Error != nil {
		t.Fatalf("unexpected state: %+v", state)
	}

	app.bootErr = errors.New("boot")
	state = app.GetState()
	if state.Error == nil || state.Error.Code != domain.ErrorCodeGeneric {
		t.Fatalf("unexpected boot state: %+v", state)
	}
	if info := app.GetRuntimeInfo(); info["error"] != "boot" {
		t.Fatalf("unexpected runtime info: %v", info)
	}
}

func TestAppForwardsEventsAndCommands(t *testing.T) {
	t.Parallel()

	platform := newStubPlatform()
	app, events := newTestApp(t, platform)

	state, err := app.Start("front")
	if err != nil {
		t.Fatalf("start failed: %v", err)
	}
	if !state.IsRunning || state.CameraDirection != domain.CameraFacingFront {
		t.Fatalf("unexpected state after start: %+v", state)
	}

	platform.barcodes <- &domain.BarcodeCapture{Barcodes: []domain.Barcode{{RawValue: "abc", Format: domain.BarcodeFormatQRCode}}}
	events.waitFor(t, eventBarcode)

	if err := app.SetZoomScale(3); err != nil {
		t.Fatalf("zoom failed: %v", err)
	}
	if got := platform.lastZoom(); got != 1 {
		t.Fatalf("expected clamped zoom 1, got %v", got)
	}

	state, err = app.Stop()
	if err != nil {
		t.Fatalf("stop failed: %v", err)
	}
	if state.IsRunning {
		t.Fatalf("expected stopped state: %+v", state)
	}

	if _, err := app.Start("sideways"); err == nil {
		t.Fatalf("expected invalid facing error")
	}

	app.shutdown(context.Background())
	if !app.GetState().IsDisposed {
		t.Fatalf("expected disposed controller after shutdown")
	}
	if _, err := app.Stop(); !errors.Is(err, domain.ErrControllerDisposed) {
		t.Fatalf("expected disposed error, got %v", err)
	}
	events.waitFor(t, eventError)
	events.waitFor(t, eventState)
}

func TestAppReportsStartFailureAsError(t *testing.T) {
	t.Parallel()

	platform := newStubPlatform()
	platform.startErr = domain.NewScannerError(domain.ErrorCodePermissionDenied, "no camera access")
	app, events := newTestApp(t, platform)

	state, err := app.Start("")
	if err != nil {
		t.Fatalf("start should capture platform failures, got %v", err)
	}
	if state.IsRunning || state.Error == nil || state.Error.Code != domain.ErrorCodePermissionDenied {
		t.Fatalf("unexpected state: %+v", state)
	}
	payload := events.waitFor(t, eventError).(map[string]string)
	if payload["code"] != string(domain.ErrorCodePermissionDenied) || payload["message"] != "Camera permission denied" {
		t.Fatalf("unexpected error payload: %v", payload)
	}
}

func TestGetRuntimeInfo(t *testing.T) {
	t.Parallel()

	app, _ := newTestApp(t, newStubPlatform())
	info := app.GetRuntimeInfo()
	if info["driver"] != config.DriverZbar || info["facing"] != "back" || info["timeoutMs"] != "250" {
		t.Fatalf("unexpected runtime info: %v", info)
	}
	if info["resolution"] != "1280x720" || info["formats"] != "qrCode" {
		t.Fatalf("unexpected runtime info: %v", info)
	}
	if info["history"] != "false" {
		t.Fatalf("expected history disabled: %v", info)
	}
}

func newTestApp(t *testing.T, platform *stubPlatform) (*App, *recordedEvents) {
	t.Helper()

	resolution := domain.Size{Width: 1280, Height: 720}
	controller, err := usecase.NewScannerController(platform, usecase.Options{
		DetectionTimeoutMs: 250,
		CameraResolution:   &resolution,
		Formats:            []domain.BarcodeFormat{domain.BarcodeFormatQRCode},
	}, nil)
	if err != nil {
		t.Fatalf("controller failed: %v", err)
	}

	events := &recordedEvents{}
	app := &App{ctx: context.Background(), emit: events.emit}
	app.attach(&bootstrap.Services{
		Controller: controller,
		Config:     config.Config{Platform: config.PlatformConfig{Driver: config.DriverZbar}},
		Logger:     logging.Discard(),
	})
	t.Cleanup(func() { app.shutdown(context.Background()) })
	return app, events
}

type recordedEvent struct {
	name string
	data interface{}
}

type recordedEvents struct {
	mu     sync.Mutex
	events []recordedEvent
}

func (r *recordedEvents) emit(_ context.Context, name string, data ...interface{}) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var payload interface{}
	if len(data) > 0 {
		payload = data[0]
	}
	r.events = append(r.events, recordedEvent{name: name, data: payload})
}

func (r *recordedEvents) waitFor(t *testing.T, name string) interface{} {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		r.mu.Lock()
		for _, event := range r.events {
			if event.name == name {
				r.mu.Unlock()
				return event.data
			}
		}
		r.mu.Unlock()
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("event %s was not emitted", name)
	return nil
}

type stubPlatform struct {
	mu       sync.Mutex
	startErr error
	zooms    []float64

	barcodes chan *domain.BarcodeCapture
	torch    chan domain.TorchState
	zoom     chan float64
}

func newStubPlatform() *stubPlatform {
	return &stubPlatform{
		barcodes: make(chan *domain.BarcodeCapture, 4),
		torch:    make(chan domain.TorchState, 4),
		zoom:     make(chan float64, 4),
	}
}

func (s *stubPlatform) Start(context.Context, ports.StartOptions) (ports.ViewAttributes, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.startErr != nil {
		return ports.ViewAttributes{}, s.startErr
	}
	return ports.ViewAttributes{Size: domain.Size{Width: 1280, Height: 720}, TorchState: domain.TorchStateOff}, nil
}

func (s *stubPlatform) Stop(context.Context) error                           { return nil }
func (s *stubPlatform) SetTorchState(context.Context, domain.TorchState) error { return nil }
func (s *stubPlatform) ResetZoomScale(context.Context) error                 { return nil }
func (s *stubPlatform) Dispose(context.Context) error                        { return nil }

func (s *stubPlatform) SetZoomScale(_ context.Context, scale float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.zooms = append(s.zooms, scale)
	return nil
}

func (s *stubPlatform) AnalyzeImage(context.Context, string) (*domain.BarcodeCapture, error) {
	return nil, nil
}

func (s *stubPlatform) Barcodes() <-chan *domain.BarcodeCapture { return s.barcodes }
func (s *stubPlatform) TorchStates() <-chan domain.TorchState   { return s.torch }
func (s *stubPlatform) ZoomScales() <-chan float64              { return s.zoom }

func (s *stubPlatform) lastZoom() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.zooms) == 0 {
		return -1
	}
	return s.zooms[len(s.zooms)-1]
}
