package remote

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"scanbridge/internal/domain"
	"scanbridge/internal/ports"
)

func TestPlatformStartRoundTrip(t *testing.T) {
	t.Parallel()

	agent := newFakeAgent(t)
	agent.handle(methodStart, func(params json.RawMessage) (any, *remoteError) {
		var opts ports.StartOptions
		require.NoError(t, json.Unmarshal(params, &opts))
		assert.Equal(t, domain.CameraFacingFront, opts.CameraDirection)
		assert.Equal(t, []domain.BarcodeFormat{domain.BarcodeFormatQRCode}, opts.Formats)
		cameras := 2
		return ports.ViewAttributes{
			Size:            domain.Size{Width: 1080, Height: 1920},
			TorchState:      domain.TorchStateOff,
			NumberOfCameras: &cameras,
		}, nil
	})
	platform := agent.dial(t)

	attrs, err := platform.Start(context.Background(), ports.StartOptions{
		CameraDirection: domain.CameraFacingFront,
		Formats:         []domain.BarcodeFormat{domain.BarcodeFormatQRCode},
	})
	require.NoError(t, err)
	assert.Equal(t, domain.Size{Width: 1080, Height: 1920}, attrs.Size)
	assert.Equal(t, domain.TorchStateOff, attrs.TorchState)
	require.NotNil(t, attrs.NumberOfCameras)
	assert.Equal(t, 2, *attrs.NumberOfCameras)
	assert.Equal(t, "Bearer secret", agent.authorization())
}

func TestPlatformMapsAgentErrors(t *testing.T) {
	t.Parallel()

	agent := newFakeAgent(t)
	agent.handle(methodStart, func(json.RawMessage) (any, *remoteError) {
		return nil, &remoteError{Code: "permissionDenied", Message: "user declined"}
	})
	agent.handle(methodSetTorch, func(json.RawMessage) (any, *remoteError) {
		return nil, &remoteError{Code: "somethingOdd"}
	})
	platform := agent.dial(t)

	_, err := platform.Start(context.Background(), ports.StartOptions{})
	assert.ErrorIs(t, err, domain.ErrPermissionDenied)
	assert.Contains(t, err.Error(), "user declined")

	err = platform.SetTorchState(context.Background(), domain.TorchStateOn)
	assert.ErrorIs(t, err, domain.ErrGeneric)
}

func TestPlatformForwardsCommandParams(t *testing.T) {
	t.Parallel()

	agent := newFakeAgent(t)
	platform := agent.dial(t)
	ctx := context.Background()

	require.NoError(t, platform.SetTorchState(ctx, domain.TorchStateOn))
	require.NoError(t, platform.SetZoomScale(ctx, 0.75))
	require.NoError(t, platform.ResetZoomScale(ctx))
	require.NoError(t, platform.Stop(ctx))

	calls := agent.snapshotCalls()
	require.Len(t, calls, 4)
	assert.Equal(t, methodSetTorch, calls[0].Method)
	assert.JSONEq(t, `{"state":"on"}`, string(calls[0].Params))
	assert.Equal(t, methodSetScale, calls[1].Method)
	assert.JSONEq(t, `{"scale":0.75}`, string(calls[1].Params))
	assert.Equal(t, methodResetScale, calls[2].Method)
	assert.Equal(t, methodStop, calls[3].Method)
}

func TestPlatformAnalyzeImage(t *testing.T) {
	t.Parallel()

	agent := newFakeAgent(t)
	agent.handle(methodAnalyzeImage, func(params json.RawMessage) (any, *remoteError) {
		var p analyzeParams
		require.NoError(t, json.Unmarshal(params, &p))
		if p.Path == "/img/empty.png" {
			return nil, nil
		}
		return domain.BarcodeCapture{Barcodes: []domain.Barcode{{RawValue: "hello", Format: domain.BarcodeFormatQRCode}}}, nil
	})
	platform := agent.dial(t)

	capture, err := platform.AnalyzeImage(context.Background(), "/img/code.png")
	require.NoError(t, err)
	require.NotNil(t, capture)
	assert.Equal(t, "hello", capture.Barcodes[0].RawValue)

	capture, err = platform.AnalyzeImage(context.Background(), "/img/empty.png")
	require.NoError(t, err)
	assert.Nil(t, capture)
}

func TestPlatformRoutesEvents(t *testing.T) {
	t.Parallel()

	agent := newFakeAgent(t)
	platform := agent.dial(t)

	agent.push(eventBarcode, domain.BarcodeCapture{Barcodes: []domain.Barcode{{RawValue: "4006381333931", Format: domain.BarcodeFormatEAN13}}})
	agent.push(eventTorchState, domain.TorchStateOn)
	agent.push(eventZoomScaleState, 0.5)
	agent.push("mystery", "ignored")

	select {
	case capture := <-platform.Barcodes():
		assert.Equal(t, "4006381333931", capture.Barcodes[0].RawValue)
	case <-time.After(time.Second):
		t.Fatal("expected barcode event")
	}
	select {
	case state := <-platform.TorchStates():
		assert.Equal(t, domain.TorchStateOn, state)
	case <-time.After(time.Second):
		t.Fatal("expected torch event")
	}
	select {
	case scale := <-platform.ZoomScales():
		assert.Equal(t, 0.5, scale)
	case <-time.After(time.Second):
		t.Fatal("expected zoom event")
	}
}

func TestPlatformCallHonorsContext(t *testing.T) {
	t.Parallel()

	agent := newFakeAgent(t)
	agent.silent(methodStop)
	platform := agent.dial(t)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	err := platform.Stop(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestPlatformDisposeClosesStreams(t *testing.T) {
	t.Parallel()

	agent := newFakeAgent(t)
	platform := agent.dial(t)

	require.NoError(t, platform.Dispose(context.Background()))
	require.NoError(t, platform.Dispose(context.Background()))

	_, ok := <-platform.Barcodes()
	assert.False(t, ok)
	_, ok = <-platform.TorchStates()
	assert.False(t, ok)
	_, ok = <-platform.ZoomScales()
	assert.False(t, ok)

	err := platform.Stop(context.Background())
	assert.ErrorIs(t, err, errConnectionClosed)
}

func TestDialRequiresURL(t *testing.T) {
	t.Parallel()

	_, err := Dial(context.Background(), Config{}, nil)
	assert.Error(t, err)
}

func TestRemoteErrorDefaults(t *testing.T) {
	t.Parallel()

	err := (&remoteError{Code: "unsupported"}).toScannerError()
	assert.Equal(t, domain.ErrorCodeUnsupported, err.Code)
	assert.Equal(t, "device agent returned an error", err.Message)
}

type recordedCall struct {
	Method string
	Params json.RawMessage
}

type fakeAgent struct {
	t      *testing.T
	server *httptest.Server

	mu       sync.Mutex
	handlers map[string]func(json.RawMessage) (any, *remoteError)
	mute     map[string]bool
	calls    []recordedCall
	auth     string
	conn     *websocket.Conn
	ready    chan struct{}
	writeMu  sync.Mutex
}

func newFakeAgent(t *testing.T) *fakeAgent {
	agent := &fakeAgent{
		t:        t,
		handlers: make(map[string]func(json.RawMessage) (any, *remoteError)),
		mute:     make(map[string]bool),
		ready:    make(chan struct{}),
	}
	upgrader := websocket.Upgrader{}
	agent.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		agent.mu.Lock()
		agent.auth = r.Header.Get("Authorization")
		agent.conn = conn
		agent.mu.Unlock()
		close(agent.ready)
		agent.serve(conn)
	}))
	t.Cleanup(agent.server.Close)
	return agent
}

func (a *fakeAgent) dial(t *testing.T) *Platform {
	t.Helper()
	url := "ws" + strings.TrimPrefix(a.server.URL, "http")
	platform, err := Dial(context.Background(), Config{URL: url, Token: "secret"}, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = platform.Dispose(context.Background()) })
	<-a.ready
	return platform
}

func (a *fakeAgent) handle(method string, fn func(json.RawMessage) (any, *remoteError)) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.handlers[method] = fn
}

func (a *fakeAgent) silent(method string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.mute[method] = true
}

func (a *fakeAgent) serve(conn *websocket.Conn) {
	defer conn.Close()
	for {
		var req struct {
			ID     uint64          `json:"id"`
			Method string          `json:"method"`
			Params json.RawMessage `json:"params"`
		}
		if err := conn.ReadJSON(&req); err != nil {
			return
		}

		a.mu.Lock()
		a.calls = append(a.calls, recordedCall{Method: req.Method, Params: req.Params})
		handler := a.handlers[req.Method]
		muted := a.mute[req.Method]
		a.mu.Unlock()

		if muted {
			continue
		}

		reply := map[string]any{"id": req.ID}
		if handler != nil {
			result, rerr := handler(req.Params)
			if rerr != nil {
				reply["error"] = rerr
			} else if result != nil {
				reply["result"] = result
			}
		}
		a.write(reply)
	}
}

func (a *fakeAgent) push(event string, data any) {
	a.write(map[string]any{"event": event, "data": data})
}

func (a *fakeAgent) write(v any) {
	a.mu.Lock()
	conn := a.conn
	a.mu.Unlock()

	a.writeMu.Lock()
	defer a.writeMu.Unlock()
	_ = conn.WriteJSON(v)
}

func (a *fakeAgent) authorization() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.auth
}

func (a *fakeAgent) snapshotCalls() []recordedCall {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]recordedCall(nil), a.calls...)
}
