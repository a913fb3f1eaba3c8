package usecase

import (
	"context"
	"sync"

	"scanbridge/internal/domain"
	"scanbridge/internal/ports"
)

// inboundSubscriptions owns the goroutines draining the platform streams
// for one camera session.
type inboundSubscriptions struct {
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func subscribePlatform(
	platform ports.ScannerPlatform,
	onCapture func(*domain.BarcodeCapture),
	onTorch func(domain.TorchState),
	onZoom func(float64),
) *inboundSubscriptions {
	ctx, cancel := context.WithCancel(context.Background())
	subs := &inboundSubscriptions{cancel: cancel}

	subs.wg.Add(3)
	go pump(ctx, platform.Barcodes(), func(capture *domain.BarcodeCapture) {
		if capture.Empty() {
			return
		}
		onCapture(capture)
	}, &subs.wg)
	go pump(ctx, platform.TorchStates(), onTorch, &subs.wg)
	go pump(ctx, platform.ZoomScales(), onZoom, &subs.wg)

	return subs
}

// close cancels the pumps and waits until none of them can run a handler.
func (s *inboundSubscriptions) close() {
	if s == nil {
		return
	}
	s.cancel()
	s.wg.Wait()
}

// drainStale discards torch and zoom values already buffered on the
// platform streams. It must run while no pump is attached.
func drainStale(platform ports.ScannerPlatform) {
	drain(platform.TorchStates())
	drain(platform.ZoomScales())
}

func drain[T any](events <-chan T) {
	for {
		select {
		case _, ok := <-events:
			if !ok {
				return
			}
		default:
			return
		}
	}
}

func pump[T any](ctx context.Context, events <-chan T, handle func(T), wg *sync.WaitGroup) {
	defer wg.Done()

	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-events:
			if !ok {
				return
			}
			// Cancellation wins over an event that raced with it.
			if ctx.Err() != nil {
				return
			}
			handle(event)
		}
	}
}
