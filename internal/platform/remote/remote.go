// Package remote talks to a scanner running on another device (a phone
// agent, a kiosk) over a JSON websocket protocol.
package remote

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/charmbracelet/log"
	"github.com/gorilla/websocket"

	"scanbridge/internal/domain"
	"scanbridge/internal/logging"
	"scanbridge/internal/ports"
)

// Config controls the agent connection.
type Config struct {
	URL         string
	Token       string
	DialTimeout time.Duration
}

var errConnectionClosed = errors.New("device agent connection closed")

// Platform implements ports.ScannerPlatform against a remote device agent.
type Platform struct {
	conn   *websocket.Conn
	logger *log.Logger

	barcodes chan *domain.BarcodeCapture
	torch    chan domain.TorchState
	zoom     chan float64

	nextID atomic.Uint64

	pendingMu sync.Mutex
	pending   map[uint64]chan message

	writeMu sync.Mutex

	done      chan struct{}
	closing   atomic.Bool
	closeOnce sync.Once

	errMu sync.Mutex
	err   error
}

// Dial connects to the agent and starts the read loop.
func Dial(ctx context.Context, cfg Config, logger *log.Logger) (*Platform, error) {
	if strings.TrimSpace(cfg.URL) == "" {
		return nil, errors.New("remote agent url is not configured")
	}
	if cfg.DialTimeout <= 0 {
		cfg.DialTimeout = 5 * time.Second
	}
	if logger == nil {
		logger = logging.Discard()
	}

	headers := http.Header{}
	if cfg.Token != "" {
		headers.Set("Authorization", "Bearer "+cfg.Token)
	}

	dialCtx, cancel := context.WithTimeout(ctx, cfg.DialTimeout)
	defer cancel()

	conn, _, err := websocket.DefaultDialer.DialContext(dialCtx, cfg.URL, headers)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to device agent: %w", err)
	}

	p := &Platform{
		conn:     conn,
		logger:   logger,
		barcodes: make(chan *domain.BarcodeCapture, 32),
		torch:    make(chan domain.TorchState, 8),
		zoom:     make(chan float64, 8),
		pending:  make(map[uint64]chan message),
		done:     make(chan struct{}),
	}
	go p.readLoop()
	return p, nil
}

func (p *Platform) Start(ctx context.Context, opts ports.StartOptions) (ports.ViewAttributes, error) {
	var attrs ports.ViewAttributes
	if err := p.call(ctx, methodStart, opts, &attrs); err != nil {
		return ports.ViewAttributes{}, err
	}
	return attrs, nil
}

func (p *Platform) Stop(ctx context.Context) error {
	return p.call(ctx, methodStop, nil, nil)
}

func (p *Platform) SetTorchState(ctx context.Context, state domain.TorchState) error {
	return p.call(ctx, methodSetTorch, torchParams{State: state}, nil)
}

func (p *Platform) SetZoomScale(ctx context.Context, scale float64) error {
	return p.call(ctx, methodSetScale, scaleParams{Scale: scale}, nil)
}

func (p *Platform) ResetZoomScale(ctx context.Context) error {
	return p.call(ctx, methodResetScale, nil, nil)
}

func (p *Platform) AnalyzeImage(ctx context.Context, path string) (*domain.BarcodeCapture, error) {
	var capture *domain.BarcodeCapture
	if err := p.call(ctx, methodAnalyzeImage, analyzeParams{Path: path}, &capture); err != nil {
		return nil, err
	}
	if capture.Empty() {
		return nil, nil
	}
	return capture, nil
}

// Dispose closes the connection. The streams close once the read loop exits.
func (p *Platform) Dispose(context.Context) error {
	p.closeOnce.Do(func() {
		p.closing.Store(true)
		p.writeMu.Lock()
		_ = p.conn.WriteControl(
			websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second),
		)
		p.writeMu.Unlock()
		_ = p.conn.Close()
	})
	<-p.done
	return p.waitErr()
}

func (p *Platform) Barcodes() <-chan *domain.BarcodeCapture { return p.barcodes }
func (p *Platform) TorchStates() <-chan domain.TorchState   { return p.torch }
func (p *Platform) ZoomScales() <-chan float64              { return p.zoom }

func (p *Platform) call(ctx context.Context, method string, params any, result any) error {
	id := p.nextID.Add(1)
	reply := make(chan message, 1)

	p.pendingMu.Lock()
	select {
	case <-p.done:
		p.pendingMu.Unlock()
		return p.closedErr()
	default:
	}
	p.pending[id] = reply
	p.pendingMu.Unlock()

	defer func() {
		p.pendingMu.Lock()
		delete(p.pending, id)
		p.pendingMu.Unlock()
	}()

	p.writeMu.Lock()
	err := p.conn.WriteJSON(request{ID: id, Method: method, Params: params})
	p.writeMu.Unlock()
	if err != nil {
		return fmt.Errorf("failed to send %s: %w", method, err)
	}

	select {
	case msg := <-reply:
		if msg.Error != nil {
			return msg.Error.toScannerError()
		}
		if result != nil && len(msg.Result) > 0 {
			if err := json.Unmarshal(msg.Result, result); err != nil {
				return fmt.Errorf("invalid %s result: %w", method, err)
			}
		}
		return nil
	case <-p.done:
		return p.closedErr()
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (p *Platform) readLoop() {
	defer func() {
		p.pendingMu.Lock()
		close(p.done)
		p.pendingMu.Unlock()
		close(p.barcodes)
		close(p.torch)
		close(p.zoom)
	}()

	for {
		_, payload, err := p.conn.ReadMessage()
		if err != nil {
			p.setErr(err)
			return
		}

		var msg message
		if err := json.Unmarshal(payload, &msg); err != nil {
			p.logger.Debug("ignoring malformed agent message", "err", err)
			continue
		}

		if msg.Event != "" {
			p.dispatchEvent(msg)
			continue
		}

		p.pendingMu.Lock()
		reply, ok := p.pending[msg.ID]
		p.pendingMu.Unlock()
		if ok {
			select {
			case reply <- msg:
			default:
			}
		}
	}
}

func (p *Platform) dispatchEvent(msg message) {
	switch msg.Event {
	case eventBarcode:
		var capture *domain.BarcodeCapture
		if err := json.Unmarshal(msg.Data, &capture); err != nil || capture == nil {
			return
		}
		emit(p.barcodes, capture)
	case eventTorchState:
		var state domain.TorchState
		if err := json.Unmarshal(msg.Data, &state); err != nil {
			return
		}
		emit(p.torch, state)
	case eventZoomScaleState:
		var scale float64
		if err := json.Unmarshal(msg.Data, &scale); err != nil {
			return
		}
		emit(p.zoom, scale)
	default:
		p.logger.Debug("ignoring unknown agent event", "event", msg.Event)
	}
}

func emit[T any](ch chan T, value T) {
	select {
	case ch <- value:
	default:
	}
}

func (p *Platform) closedErr() error {
	if err := p.waitErr(); err != nil {
		return fmt.Errorf("%w: %v", errConnectionClosed, err)
	}
	return errConnectionClosed
}

func (p *Platform) waitErr() error {
	p.errMu.Lock()
	defer p.errMu.Unlock()
	return p.err
}

func (p *Platform) setErr(err error) {
	if err == nil || p.closing.Load() {
		return
	}
	if websocket.IsCloseError(err,
		websocket.CloseNormalClosure,
		websocket.CloseGoingAway,
		websocket.CloseNoStatusReceived,
	) || errors.Is(err, websocket.ErrCloseSent) {
		return
	}

	select {
	case <-p.done:
		return
	default:
	}

	p.errMu.Lock()
	defer p.errMu.Unlock()
	if p.err == nil {
		p.err = err
	}
}
