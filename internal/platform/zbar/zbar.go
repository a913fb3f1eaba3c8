// Package zbar drives the zbar command line tools as a scanner platform:
// zbarcam for live camera scanning and zbarimg for still images.
package zbar

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/log"

	"scanbridge/internal/domain"
	"scanbridge/internal/logging"
	"scanbridge/internal/ports"
)

// zbarimg exits with this status when the image holds no barcode.
const exitNoSymbols = 4

// Config locates the zbar binaries and camera devices.
type Config struct {
	CamCommand  string
	ImgCommand  string
	BackDevice  string
	FrontDevice string
	DefaultSize domain.Size
	// StartupGrace is how long zbarcam must stay alive for Start to succeed.
	StartupGrace time.Duration
}

// Platform implements ports.ScannerPlatform on top of zbar.
type Platform struct {
	cfg    Config
	logger *log.Logger

	barcodes chan *domain.BarcodeCapture
	torch    chan domain.TorchState
	zoom     chan float64

	mu       sync.Mutex
	current  *camProcess
	disposed bool
}

func NewPlatform(cfg Config, logger *log.Logger) *Platform {
	if cfg.CamCommand == "" {
		cfg.CamCommand = "zbarcam"
	}
	if cfg.ImgCommand == "" {
		cfg.ImgCommand = "zbarimg"
	}
	if cfg.BackDevice == "" {
		cfg.BackDevice = "/dev/video0"
	}
	if cfg.DefaultSize.IsZero() {
		cfg.DefaultSize = domain.Size{Width: 640, Height: 480}
	}
	if cfg.StartupGrace <= 0 {
		cfg.StartupGrace = 250 * time.Millisecond
	}
	if logger == nil {
		logger = logging.Discard()
	}
	return &Platform{
		cfg:      cfg,
		logger:   logger,
		barcodes: make(chan *domain.BarcodeCapture, 32),
		torch:    make(chan domain.TorchState, 4),
		zoom:     make(chan float64, 4),
	}
}

func (p *Platform) Start(ctx context.Context, opts ports.StartOptions) (ports.ViewAttributes, error) {
	device := p.device(opts.CameraDirection)
	if device == "" {
		return ports.ViewAttributes{}, domain.NewScannerError(
			domain.ErrorCodeUnsupported,
			fmt.Sprintf("no %s camera configured", opts.CameraDirection),
		)
	}

	size := p.cfg.DefaultSize
	if opts.CameraResolution != nil && !opts.CameraResolution.IsZero() {
		size = *opts.CameraResolution
	}

	symbologies, unsupported := symbologyArgs(opts.Formats)
	if len(unsupported) > 0 {
		p.logger.Warn("formats not supported by zbar are ignored", "formats", unsupported)
	}

	args := []string{"--nodisplay", fmt.Sprintf("--prescale=%dx%d", int(size.Width), int(size.Height))}
	args = append(args, symbologies...)
	args = append(args, device)

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.disposed {
		return ports.ViewAttributes{}, errPlatformDisposed
	}
	if p.current != nil {
		if err := p.current.Stop(); err != nil {
			p.logger.Warn("previous zbarcam did not stop cleanly", "err", err)
		}
		p.current = nil
	}

	// The process outlives this call, so it is not bound to ctx.
	process, err := startCamProcess(context.WithoutCancel(ctx), p.cfg.CamCommand, args, p.cfg.StartupGrace)
	if err != nil {
		return ports.ViewAttributes{}, err
	}
	p.current = process

	filter := newDetectionFilter(opts.DetectionSpeed, opts.DetectionTimeoutMs)
	go process.readLines(func(line string) {
		barcode, ok := parseLine(line)
		if !ok || !filter.allow(barcode) {
			return
		}
		p.emitCapture(&domain.BarcodeCapture{Barcodes: []domain.Barcode{barcode}, Size: size})
	})

	p.emitTorch(domain.TorchStateUnavailable)
	p.logger.Debug("zbarcam started", "device", device, "args", strings.Join(args, " "))

	cameras := p.availableCameras()
	return ports.ViewAttributes{
		Size:            size,
		TorchState:      domain.TorchStateUnavailable,
		NumberOfCameras: &cameras,
	}, nil
}

func (p *Platform) Stop(context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.current == nil {
		return nil
	}
	err := p.current.Stop()
	p.current = nil
	return err
}

func (p *Platform) SetTorchState(context.Context, domain.TorchState) error {
	return domain.NewScannerError(domain.ErrorCodeUnsupported, "zbar cameras have no torch control")
}

func (p *Platform) SetZoomScale(context.Context, float64) error {
	return domain.NewScannerError(domain.ErrorCodeUnsupported, "zbar cameras have no zoom control")
}

func (p *Platform) ResetZoomScale(context.Context) error {
	return domain.NewScannerError(domain.ErrorCodeUnsupported, "zbar cameras have no zoom control")
}

// AnalyzeImage runs zbarimg on path. It returns nil when no barcode is found.
func (p *Platform) AnalyzeImage(ctx context.Context, path string) (*domain.BarcodeCapture, error) {
	if strings.TrimSpace(path) == "" {
		return nil, domain.NewScannerError(domain.ErrorCodeGeneric, "image path is required")
	}
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("image not readable: %w", err)
	}

	cmd := exec.CommandContext(ctx, p.cfg.ImgCommand, "-q", path)
	stderr := &lockedBuffer{}
	cmd.Stderr = stderr
	output, err := cmd.Output()
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) && exitErr.ExitCode() == exitNoSymbols {
			return nil, nil
		}
		return nil, fmt.Errorf("zbarimg failed: %w: %s", err, trimSpace(stderr.String()))
	}

	capture := &domain.BarcodeCapture{}
	for _, line := range strings.Split(string(output), "\n") {
		if barcode, ok := parseLine(strings.TrimSpace(line)); ok {
			capture.Barcodes = append(capture.Barcodes, barcode)
		}
	}
	if capture.Empty() {
		return nil, nil
	}
	return capture, nil
}

// Dispose stops zbarcam and closes the event streams.
func (p *Platform) Dispose(context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.disposed {
		return nil
	}
	p.disposed = true

	var err error
	if p.current != nil {
		err = p.current.Stop()
		p.current = nil
	}
	close(p.barcodes)
	close(p.torch)
	close(p.zoom)
	return err
}

func (p *Platform) Barcodes() <-chan *domain.BarcodeCapture { return p.barcodes }
func (p *Platform) TorchStates() <-chan domain.TorchState   { return p.torch }
func (p *Platform) ZoomScales() <-chan float64              { return p.zoom }

var errPlatformDisposed = domain.NewScannerError(domain.ErrorCodeControllerDisposed, "zbar platform was disposed")

func (p *Platform) device(facing domain.CameraFacing) string {
	if facing == domain.CameraFacingFront {
		return p.cfg.FrontDevice
	}
	return p.cfg.BackDevice
}

func (p *Platform) availableCameras() int {
	count := 0
	for _, device := range []string{p.cfg.BackDevice, p.cfg.FrontDevice} {
		if device == "" {
			continue
		}
		if _, err := os.Stat(device); err == nil {
			count++
		}
	}
	return count
}

// emitCapture runs on the reader goroutine; Stop waits for it, and Dispose
// only closes the channel after Stop, so the send never hits a closed channel.
func (p *Platform) emitCapture(capture *domain.BarcodeCapture) {
	select {
	case p.barcodes <- capture:
	default:
		p.logger.Debug("dropping capture, stream full")
	}
}

// emitTorch must be called with mu held.
func (p *Platform) emitTorch(state domain.TorchState) {
	select {
	case p.torch <- state:
	default:
	}
}
