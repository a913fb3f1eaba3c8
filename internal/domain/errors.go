package domain

import (
	"errors"
	"fmt"
)

// ErrorCode identifies controller and platform failures.
type ErrorCode string

const (
	ErrorCodeControllerUninitialized      ErrorCode = "controllerUninitialized"
	ErrorCodeControllerDisposed           ErrorCode = "controllerDisposed"
	ErrorCodeControllerAlreadyInitialized ErrorCode = "controllerAlreadyInitialized"
	ErrorCodeGeneric                      ErrorCode = "genericError"
	ErrorCodePermissionDenied             ErrorCode = "permissionDenied"
	ErrorCodeUnsupported                  ErrorCode = "unsupported"
)

// ScannerError is the typed error returned by the controller and platforms.
// Two ScannerErrors match with errors.Is when their codes are equal.
type ScannerError struct {
	Code    ErrorCode `json:"code"`
	Message string    `json:"message"`
	Cause   error     `json:"-"`
}

// Sentinels for errors.Is checks.
var (
	ErrControllerUninitialized = &ScannerError{Code: ErrorCodeControllerUninitialized}
	ErrControllerDisposed      = &ScannerError{Code: ErrorCodeControllerDisposed}
	ErrGeneric                 = &ScannerError{Code: ErrorCodeGeneric}
	ErrPermissionDenied        = &ScannerError{Code: ErrorCodePermissionDenied}
	ErrUnsupported             = &ScannerError{Code: ErrorCodeUnsupported}
)

func NewScannerError(code ErrorCode, message string) *ScannerError {
	return &ScannerError{Code: code, Message: message}
}

// WrapScannerError keeps the code of an existing ScannerError in err and
// falls back to genericError otherwise.
func WrapScannerError(err error) *ScannerError {
	if err == nil {
		return nil
	}
	var scannerErr *ScannerError
	if errors.As(err, &scannerErr) {
		return scannerErr
	}
	return &ScannerError{Code: ErrorCodeGeneric, Message: err.Error(), Cause: err}
}

func (e *ScannerError) Error() string {
	if e.Message == "" {
		return string(e.Code)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *ScannerError) Unwrap() error {
	return e.Cause
}

func (e *ScannerError) Is(target error) bool {
	other, ok := target.(*ScannerError)
	if !ok {
		return false
	}
	return other.Code == e.Code
}
