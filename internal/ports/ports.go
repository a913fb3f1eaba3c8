package ports

import (
	"context"

	"scanbridge/internal/domain"
)

// StartOptions describes how the platform should open the camera.
type StartOptions struct {
	CameraDirection      domain.CameraFacing    `json:"cameraDirection"`
	CameraResolution     *domain.Size           `json:"cameraResolution,omitempty"`
	DetectionSpeed       domain.DetectionSpeed  `json:"detectionSpeed"`
	DetectionTimeoutMs   int                    `json:"detectionTimeoutMs"`
	Formats              []domain.BarcodeFormat `json:"formats"`
	ReturnImage          bool                   `json:"returnImage"`
	TorchEnabled         bool                   `json:"torchEnabled"`
	UseNewCameraSelector bool                   `json:"useNewCameraSelector"`
}

// ViewAttributes is what the platform reports once the camera is running.
type ViewAttributes struct {
	Size            domain.Size       `json:"size"`
	TorchState      domain.TorchState `json:"currentTorchState"`
	NumberOfCameras *int              `json:"numberOfCameras,omitempty"`
}

// ScannerPlatform is the camera and barcode engine behind the controller.
//
// The three stream channels live as long as the platform. Implementations
// must not block when nobody is draining them.
type ScannerPlatform interface {
	Start(ctx context.Context, opts StartOptions) (ViewAttributes, error)
	Stop(ctx context.Context) error
	SetTorchState(ctx context.Context, state domain.TorchState) error
	SetZoomScale(ctx context.Context, scale float64) error
	ResetZoomScale(ctx context.Context) error
	AnalyzeImage(ctx context.Context, path string) (*domain.BarcodeCapture, error)
	Dispose(ctx context.Context) error

	Barcodes() <-chan *domain.BarcodeCapture
	TorchStates() <-chan domain.TorchState
	ZoomScales() <-chan float64
}

// CaptureRecorder persists detections.
type CaptureRecorder interface {
	Record(capture *domain.BarcodeCapture) error
}
