package usecase

import (
	"scanbridge/internal/domain"
	"scanbridge/internal/ports"
)

// DefaultDetectionTimeoutMs is the throttle used for normal detection speed.
const DefaultDetectionTimeoutMs = 250

// Options is the per-controller camera configuration. It does not change
// after the controller is built.
type Options struct {
	CameraResolution     *domain.Size
	DetectionSpeed       domain.DetectionSpeed
	DetectionTimeoutMs   int
	Facing               domain.CameraFacing
	Formats              []domain.BarcodeFormat
	ReturnImage          bool
	TorchEnabled         bool
	UseNewCameraSelector bool
}

// normalize validates opts and applies defaults. The detection timeout only
// applies to normal speed and is zeroed for the others.
func (o Options) normalize() (Options, error) {
	if o.DetectionTimeoutMs < 0 {
		return Options{}, domain.NewScannerError(domain.ErrorCodeGeneric, "detection timeout must be greater than or equal to 0")
	}
	if o.DetectionSpeed == "" {
		o.DetectionSpeed = domain.DetectionSpeedNormal
	}
	if o.Facing == "" {
		o.Facing = domain.CameraFacingBack
	}
	if o.DetectionSpeed != domain.DetectionSpeedNormal {
		o.DetectionTimeoutMs = 0
	}
	if o.CameraResolution != nil {
		resolution := *o.CameraResolution
		o.CameraResolution = &resolution
	}
	o.Formats = append([]domain.BarcodeFormat(nil), o.Formats...)
	return o, nil
}

func (o Options) startOptions(facing domain.CameraFacing) ports.StartOptions {
	return ports.StartOptions{
		CameraDirection:      facing,
		CameraResolution:     o.CameraResolution,
		DetectionSpeed:       o.DetectionSpeed,
		DetectionTimeoutMs:   o.DetectionTimeoutMs,
		Formats:              append([]domain.BarcodeFormat(nil), o.Formats...),
		ReturnImage:          o.ReturnImage,
		TorchEnabled:         o.TorchEnabled,
		UseNewCameraSelector: o.UseNewCameraSelector,
	}
}
