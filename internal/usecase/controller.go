package usecase

import (
	"context"
	"fmt"
	"math"
	"sync"

	"github.com/charmbracelet/log"

	"scanbridge/internal/broadcast"
	"scanbridge/internal/domain"
	"scanbridge/internal/logging"
	"scanbridge/internal/ports"
)

// Phase is the controller lifecycle position.
type Phase string

const (
	PhaseUninitialized Phase = "uninitialized"
	PhaseStarting      Phase = "starting"
	PhaseRunning       Phase = "running"
	PhaseStopping      Phase = "stopping"
	PhaseStopped       Phase = "stopped"
	PhaseDisposing     Phase = "disposing"
	PhaseDisposed      Phase = "disposed"
)

// Subscriber channel sizes.
const (
	DetectionBuffer = 32
	StateBuffer     = 16
)

// ScannerController owns one camera scanning session on top of a
// ScannerPlatform and republishes its detections.
//
// Commands are serialized by cmdMu for their whole duration, including the
// platform call. Session state is guarded by mu, which the platform event
// pumps also take.
type ScannerController struct {
	platform ports.ScannerPlatform
	opts     Options
	logger   *log.Logger

	detections *broadcast.Hub[*domain.BarcodeCapture]
	states     *broadcast.Hub[domain.ScannerState]

	cmdMu sync.Mutex
	subs  *inboundSubscriptions

	mu    sync.Mutex
	phase Phase
	state domain.ScannerState
}

// NewScannerController validates opts and returns an uninitialized controller.
func NewScannerController(platform ports.ScannerPlatform, opts Options, logger *log.Logger) (*ScannerController, error) {
	if platform == nil {
		return nil, domain.NewScannerError(domain.ErrorCodeGeneric, "scanner platform is required")
	}
	normalized, err := opts.normalize()
	if err != nil {
		return nil, err
	}
	if logger == nil {
		logger = logging.Discard()
	}

	return &ScannerController{
		platform:   platform,
		opts:       normalized,
		logger:     logger,
		detections: broadcast.NewHub[*domain.BarcodeCapture](),
		states:     broadcast.NewHub[domain.ScannerState](),
		phase:      PhaseUninitialized,
		state: domain.ScannerState{
			CameraDirection: normalized.Facing,
			TorchState:      domain.TorchStateOff,
		},
	}, nil
}

// Options returns the normalized configuration.
func (c *ScannerController) Options() Options {
	opts := c.opts
	opts.Formats = append([]domain.BarcodeFormat(nil), c.opts.Formats...)
	return opts
}

// State returns a snapshot of the session state.
func (c *ScannerController) State() domain.ScannerState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Phase returns the lifecycle position.
func (c *ScannerController) Phase() Phase {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.phase
}

// Subscribe returns a subscription to detections. Empty detections are
// never delivered. The channel closes when the controller is disposed.
func (c *ScannerController) Subscribe() *broadcast.Subscription[*domain.BarcodeCapture] {
	return c.detections.Subscribe(DetectionBuffer)
}

// Watch returns a subscription to state snapshots, published after every
// change.
func (c *ScannerController) Watch() *broadcast.Subscription[domain.ScannerState] {
	return c.states.Subscribe(StateBuffer)
}

// Unsubscribe drops a detection or state subscription by id.
func (c *ScannerController) Unsubscribe(id string) {
	c.detections.Unsubscribe(id)
	c.states.Unsubscribe(id)
}

// Start opens the camera. facing overrides the configured camera for this
// session when non-nil.
//
// A platform failure does not fail Start: the controller becomes
// initialized but not running, and the failure is kept in State().Error.
func (c *ScannerController) Start(ctx context.Context, facing *domain.CameraFacing) error {
	c.cmdMu.Lock()
	defer c.cmdMu.Unlock()

	if c.disposed() {
		return disposedError("start")
	}
	return c.startLocked(ctx, facing)
}

func (c *ScannerController) startLocked(ctx context.Context, facing *domain.CameraFacing) error {
	c.mu.Lock()
	if c.state.IsRunning {
		c.mu.Unlock()
		c.logger.Debug("start ignored, camera already running")
		return nil
	}
	c.phase = PhaseStarting
	c.mu.Unlock()

	target := c.opts.Facing
	if facing != nil {
		target = *facing
	}

	// Listeners go up before the platform starts so no early event is missed.
	// Torch and zoom values left over from the previous session are dropped.
	c.subs.close()
	drainStale(c.platform)
	c.subs = subscribePlatform(c.platform, c.onCapture, c.onTorchState, c.onZoomScale)

	attrs, err := c.platform.Start(ctx, c.opts.startOptions(target))

	c.mu.Lock()
	defer c.mu.Unlock()

	if err != nil {
		scannerErr := domain.WrapScannerError(err)
		c.phase = PhaseStopped
		c.state.IsInitialized = true
		c.state.IsRunning = false
		c.state.CameraDirection = c.opts.Facing
		c.state.Error = scannerErr
		c.publishStateLocked()
		c.logger.Warn("camera start failed", "facing", target, "code", scannerErr.Code, "err", scannerErr.Message)
		return nil
	}

	c.phase = PhaseRunning
	c.state.IsInitialized = true
	c.state.IsRunning = true
	c.state.CameraDirection = target
	c.state.Size = attrs.Size
	if attrs.TorchState != "" {
		c.state.TorchState = attrs.TorchState
	}
	if attrs.NumberOfCameras != nil {
		cameras := *attrs.NumberOfCameras
		c.state.AvailableCameras = &cameras
	}
	c.state.Error = nil
	c.publishStateLocked()
	c.logger.Info("camera started", "facing", target, "size", attrs.Size.String(), "torch", c.state.TorchState)
	return nil
}

// Stop closes the camera. The session can be started again.
func (c *ScannerController) Stop(ctx context.Context) error {
	c.cmdMu.Lock()
	defer c.cmdMu.Unlock()

	if err := c.requireInitialized("stop"); err != nil {
		return err
	}
	return c.stopLocked(ctx)
}

func (c *ScannerController) stopLocked(ctx context.Context) error {
	c.mu.Lock()
	previous := c.phase
	c.phase = PhaseStopping
	c.mu.Unlock()

	c.subs.close()
	c.subs = nil

	if err := c.platform.Stop(ctx); err != nil {
		c.mu.Lock()
		c.phase = previous
		running := c.state.IsRunning
		c.mu.Unlock()
		// The camera is still open, so its events must keep flowing.
		if running {
			c.subs = subscribePlatform(c.platform, c.onCapture, c.onTorchState, c.onZoomScale)
		}
		c.logger.Warn("camera stop failed", "err", err)
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	// Platforms do not reliably report the torch going dark on stop.
	c.phase = PhaseStopped
	c.state.IsRunning = false
	c.state.TorchState = domain.TorchStateOff
	c.publishStateLocked()
	c.logger.Info("camera stopped")
	return nil
}

// SwitchCamera restarts the session on the camera opposite to the one last
// used.
func (c *ScannerController) SwitchCamera(ctx context.Context) error {
	c.cmdMu.Lock()
	defer c.cmdMu.Unlock()

	if err := c.requireInitialized("switch camera"); err != nil {
		return err
	}
	if err := c.stopLocked(ctx); err != nil {
		return err
	}

	c.mu.Lock()
	next := c.state.CameraDirection.Opposite()
	c.mu.Unlock()

	return c.startLocked(ctx, &next)
}

// ToggleTorch flips the torch between on and off. It does nothing when the
// torch is unavailable. The new state arrives through the torch stream.
func (c *ScannerController) ToggleTorch(ctx context.Context) error {
	c.cmdMu.Lock()
	defer c.cmdMu.Unlock()

	if err := c.requireInitialized("toggle torch"); err != nil {
		return err
	}

	c.mu.Lock()
	current := c.state.TorchState
	c.mu.Unlock()

	var next domain.TorchState
	switch current {
	case domain.TorchStateUnavailable:
		return nil
	case domain.TorchStateOn:
		next = domain.TorchStateOff
	default:
		next = domain.TorchStateOn
	}
	return c.platform.SetTorchState(ctx, next)
}

// SetZoomScale sets the zoom, clamping scale into [0, 1].
func (c *ScannerController) SetZoomScale(ctx context.Context, scale float64) error {
	c.cmdMu.Lock()
	defer c.cmdMu.Unlock()

	if err := c.requireInitialized("set zoom scale"); err != nil {
		return err
	}
	return c.platform.SetZoomScale(ctx, clampZoom(scale))
}

// ResetZoomScale returns the zoom to the platform default.
func (c *ScannerController) ResetZoomScale(ctx context.Context) error {
	c.cmdMu.Lock()
	defer c.cmdMu.Unlock()

	if err := c.requireInitialized("reset zoom scale"); err != nil {
		return err
	}
	return c.platform.ResetZoomScale(ctx)
}

// AnalyzeImage scans a still image. It works without a running camera and
// returns nil when no barcode is found.
func (c *ScannerController) AnalyzeImage(ctx context.Context, path string) (*domain.BarcodeCapture, error) {
	c.cmdMu.Lock()
	defer c.cmdMu.Unlock()

	if c.disposed() {
		return nil, disposedError("analyze image")
	}
	capture, err := c.platform.AnalyzeImage(ctx, path)
	if err != nil {
		return nil, err
	}
	if capture.Empty() {
		return nil, nil
	}
	return capture, nil
}

// Dispose releases the platform and closes every subscription. Calling it
// again is a no-op. The controller reads as disposed only once teardown is
// complete.
func (c *ScannerController) Dispose(ctx context.Context) error {
	c.cmdMu.Lock()
	defer c.cmdMu.Unlock()

	if c.disposed() {
		return nil
	}

	c.mu.Lock()
	c.phase = PhaseDisposing
	c.mu.Unlock()

	c.subs.close()
	c.subs = nil

	platformErr := c.platform.Dispose(ctx)
	if platformErr != nil {
		c.logger.Warn("platform dispose failed", "err", platformErr)
	}

	c.detections.Close()

	c.mu.Lock()
	c.phase = PhaseDisposed
	c.state.IsRunning = false
	c.state.IsDisposed = true
	c.publishStateLocked()
	c.mu.Unlock()

	c.states.Close()
	c.logger.Info("controller disposed")

	if platformErr != nil {
		return fmt.Errorf("dispose platform: %w", platformErr)
	}
	return nil
}

func (c *ScannerController) onCapture(capture *domain.BarcodeCapture) {
	c.detections.Publish(capture)
}

func (c *ScannerController) onTorchState(state domain.TorchState) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.state.TorchState = state
	c.publishStateLocked()
}

func (c *ScannerController) onZoomScale(scale float64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.state.ZoomScale = scale
	c.publishStateLocked()
}

// publishStateLocked must be called with mu held.
func (c *ScannerController) publishStateLocked() {
	c.states.Publish(c.state)
}

func (c *ScannerController) disposed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state.IsDisposed
}

// requireInitialized checks disposal first, then initialization.
func (c *ScannerController) requireInitialized(action string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state.IsDisposed {
		return disposedError(action)
	}
	if !c.state.IsInitialized {
		return domain.NewScannerError(
			domain.ErrorCodeControllerUninitialized,
			fmt.Sprintf("cannot %s: the controller has not been started", action),
		)
	}
	return nil
}

func disposedError(action string) error {
	return domain.NewScannerError(
		domain.ErrorCodeControllerDisposed,
		fmt.Sprintf("cannot %s: the controller was already disposed", action),
	)
}

func clampZoom(scale float64) float64 {
	if math.IsNaN(scale) {
		return 0
	}
	return math.Min(1, math.Max(0, scale))
}
