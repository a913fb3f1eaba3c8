package domain

import (
	"fmt"
	"strings"
)

// CameraFacing selects which physical camera is used.
type CameraFacing string

const (
	CameraFacingBack  CameraFacing = "back"
	CameraFacingFront CameraFacing = "front"
)

// Opposite returns the other camera.
func (f CameraFacing) Opposite() CameraFacing {
	if f == CameraFacingFront {
		return CameraFacingBack
	}
	return CameraFacingFront
}

// ParseCameraFacing accepts "front" or "back" in any case.
func ParseCameraFacing(value string) (CameraFacing, error) {
	switch CameraFacing(strings.ToLower(strings.TrimSpace(value))) {
	case CameraFacingBack:
		return CameraFacingBack, nil
	case CameraFacingFront:
		return CameraFacingFront, nil
	default:
		return "", fmt.Errorf("unknown camera facing %q", value)
	}
}

// TorchState models the device flashlight.
type TorchState string

const (
	TorchStateOff         TorchState = "off"
	TorchStateOn          TorchState = "on"
	TorchStateUnavailable TorchState = "unavailable"
)

// DetectionSpeed controls how often the platform reports detections.
type DetectionSpeed string

const (
	// DetectionSpeedNormal reports at most one detection per detection timeout.
	DetectionSpeedNormal DetectionSpeed = "normal"
	// DetectionSpeedNoDuplicates suppresses a repeat of the previous payload.
	DetectionSpeedNoDuplicates DetectionSpeed = "noDuplicates"
	// DetectionSpeedUnrestricted reports every frame that contains a barcode.
	DetectionSpeedUnrestricted DetectionSpeed = "unrestricted"
)

// ParseDetectionSpeed accepts the camel-case names as well as snake/kebab forms.
func ParseDetectionSpeed(value string) (DetectionSpeed, error) {
	normalized := strings.NewReplacer("_", "", "-", "").Replace(strings.ToLower(strings.TrimSpace(value)))
	switch normalized {
	case "normal":
		return DetectionSpeedNormal, nil
	case "noduplicates":
		return DetectionSpeedNoDuplicates, nil
	case "unrestricted":
		return DetectionSpeedUnrestricted, nil
	default:
		return "", fmt.Errorf("unknown detection speed %q", value)
	}
}

// BarcodeFormat names a barcode symbology.
type BarcodeFormat string

const (
	BarcodeFormatAll        BarcodeFormat = "all"
	BarcodeFormatCode128    BarcodeFormat = "code128"
	BarcodeFormatCode39     BarcodeFormat = "code39"
	BarcodeFormatCode93     BarcodeFormat = "code93"
	BarcodeFormatCodabar    BarcodeFormat = "codabar"
	BarcodeFormatDataMatrix BarcodeFormat = "dataMatrix"
	BarcodeFormatEAN13      BarcodeFormat = "ean13"
	BarcodeFormatEAN8       BarcodeFormat = "ean8"
	BarcodeFormatITF        BarcodeFormat = "itf"
	BarcodeFormatQRCode     BarcodeFormat = "qrCode"
	BarcodeFormatUPCA       BarcodeFormat = "upcA"
	BarcodeFormatUPCE       BarcodeFormat = "upcE"
	BarcodeFormatPDF417     BarcodeFormat = "pdf417"
	BarcodeFormatAztec      BarcodeFormat = "aztec"
	BarcodeFormatUnknown    BarcodeFormat = "unknown"
)

var knownFormats = []BarcodeFormat{
	BarcodeFormatAll,
	BarcodeFormatCode128,
	BarcodeFormatCode39,
	BarcodeFormatCode93,
	BarcodeFormatCodabar,
	BarcodeFormatDataMatrix,
	BarcodeFormatEAN13,
	BarcodeFormatEAN8,
	BarcodeFormatITF,
	BarcodeFormatQRCode,
	BarcodeFormatUPCA,
	BarcodeFormatUPCE,
	BarcodeFormatPDF417,
	BarcodeFormatAztec,
	BarcodeFormatUnknown,
}

// ParseBarcodeFormat matches a format name case-insensitively.
func ParseBarcodeFormat(value string) (BarcodeFormat, error) {
	trimmed := strings.TrimSpace(value)
	for _, format := range knownFormats {
		if strings.EqualFold(trimmed, string(format)) {
			return format, nil
		}
	}
	return "", fmt.Errorf("unknown barcode format %q", value)
}

// Size is a width/height pair in pixels.
type Size struct {
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

func (s Size) IsZero() bool {
	return s.Width <= 0 || s.Height <= 0
}

func (s Size) String() string {
	return fmt.Sprintf("%gx%g", s.Width, s.Height)
}

// Point is a corner of a detected barcode in image coordinates.
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Barcode is one decoded symbol.
type Barcode struct {
	RawValue     string        `json:"rawValue"`
	DisplayValue string        `json:"displayValue,omitempty"`
	Format       BarcodeFormat `json:"format"`
	Corners      []Point       `json:"corners,omitempty"`
}

// BarcodeCapture is one detection: every barcode found in a frame plus the
// optional frame image.
type BarcodeCapture struct {
	Barcodes []Barcode `json:"barcodes"`
	Image    []byte    `json:"image,omitempty"`
	Size     Size      `json:"size"`
}

// Empty reports whether the capture carries no barcodes.
func (c *BarcodeCapture) Empty() bool {
	return c == nil || len(c.Barcodes) == 0
}

// ScannerState is a snapshot of the controller session.
type ScannerState struct {
	IsInitialized    bool          `json:"isInitialized"`
	IsRunning        bool          `json:"isRunning"`
	IsDisposed       bool          `json:"isDisposed"`
	CameraDirection  CameraFacing  `json:"cameraDirection"`
	TorchState       TorchState    `json:"torchState"`
	ZoomScale        float64       `json:"zoomScale"`
	Size             Size          `json:"size"`
	AvailableCameras *int          `json:"availableCameras,omitempty"`
	Error            *ScannerError `json:"error,omitempty"`
}
