package remote

import (
	"encoding/json"

	"scanbridge/internal/domain"
)

// Methods understood by the device agent.
const (
	methodStart        = "start"
	methodStop         = "stop"
	methodSetTorch     = "setTorch"
	methodSetScale     = "setScale"
	methodResetScale   = "resetScale"
	methodAnalyzeImage = "analyzeImage"
)

// Events pushed by the device agent.
const (
	eventBarcode        = "barcode"
	eventTorchState     = "torchState"
	eventZoomScaleState = "zoomScaleState"
)

type request struct {
	ID     uint64 `json:"id"`
	Method string `json:"method"`
	Params any    `json:"params,omitempty"`
}

// message is either a response (ID set) or an event (Event set).
type message struct {
	ID     uint64          `json:"id,omitempty"`
	Result json.RawMessage `json:"result,omitempty"`
	Error  *remoteError    `json:"error,omitempty"`

	Event string          `json:"event,omitempty"`
	Data  json.RawMessage `json:"data,omitempty"`
}

type remoteError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (e *remoteError) toScannerError() *domain.ScannerError {
	code := domain.ErrorCode(e.Code)
	switch code {
	case domain.ErrorCodePermissionDenied,
		domain.ErrorCodeUnsupported,
		domain.ErrorCodeControllerAlreadyInitialized,
		domain.ErrorCodeGeneric:
	default:
		code = domain.ErrorCodeGeneric
	}
	message := e.Message
	if message == "" {
		message = "device agent returned an error"
	}
	return domain.NewScannerError(code, message)
}

type analyzeParams struct {
	Path string `json:"path"`
}

type torchParams struct {
	State domain.TorchState `json:"state"`
}

type scaleParams struct {
	Scale float64 `json:"scale"`
}
