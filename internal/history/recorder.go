package history

import (
	"github.com/charmbracelet/log"

	"scanbridge/internal/broadcast"
	"scanbridge/internal/domain"
	"scanbridge/internal/logging"
	"scanbridge/internal/ports"
)

// Recorder persists every capture delivered on a subscription.
type Recorder struct {
	sink   ports.CaptureRecorder
	logger *log.Logger
	done   chan struct{}
}

// StartRecorder drains sub into sink on its own goroutine until the
// subscription channel closes.
func StartRecorder(sub *broadcast.Subscription[*domain.BarcodeCapture], sink ports.CaptureRecorder, logger *log.Logger) *Recorder {
	if logger == nil {
		logger = logging.Discard()
	}
	r := &Recorder{sink: sink, logger: logger, done: make(chan struct{})}
	go r.run(sub)
	return r
}

func (r *Recorder) run(sub *broadcast.Subscription[*domain.BarcodeCapture]) {
	defer close(r.done)
	for capture := range sub.C {
		if err := r.sink.Record(capture); err != nil {
			r.logger.Warn("failed to record capture", "err", err)
		}
	}
	if dropped := sub.Dropped(); dropped > 0 {
		r.logger.Warn("history missed captures", "dropped", dropped)
	}
}

// Done closes once the subscription has been drained.
func (r *Recorder) Done() <-chan struct{} {
	return r.done
}
