package zbar

import (
	"time"

	"scanbridge/internal/domain"
)

// detectionFilter applies the requested detection speed to zbarcam output,
// which reports every decoded frame.
type detectionFilter struct {
	speed   domain.DetectionSpeed
	timeout time.Duration
	now     func() time.Time

	last   string
	lastAt time.Time
}

func newDetectionFilter(speed domain.DetectionSpeed, timeoutMs int) *detectionFilter {
	return &detectionFilter{
		speed:   speed,
		timeout: time.Duration(timeoutMs) * time.Millisecond,
		now:     time.Now,
	}
}

func (f *detectionFilter) allow(barcode domain.Barcode) bool {
	now := f.now()
	switch f.speed {
	case domain.DetectionSpeedUnrestricted:
	case domain.DetectionSpeedNoDuplicates:
		if barcode.RawValue == f.last {
			return false
		}
	default:
		if !f.lastAt.IsZero() && now.Sub(f.lastAt) < f.timeout {
			return false
		}
	}
	f.last = barcode.RawValue
	f.lastAt = now
	return true
}
