package chatws

import (
	"encoding/json"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type fakeTransport struct {
	mu      sync.Mutex
	reads   chan []byte
	written [][]byte
	pings   int
	closed  bool
	pong    func(string) error
	onClose func()
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{reads: make(chan []byte, 16)}
}

func (f *fakeTransport) ReadMessage() (int, []byte, error) {
	payload, ok := <-f.reads
	if !ok {
		return 0, nil, io.EOF
	}
	return 1, payload, nil
}

func (f *fakeTransport) WriteMessage(_ int, data []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.written = append(f.written, data)
	return nil
}

func (f *fakeTransport) WriteControl(_ int, _ []byte, _ time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.pings++
	return nil
}

func (f *fakeTransport) SetPongHandler(h func(string) error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.pong = h
}

func (f *fakeTransport) Close() error {
	f.mu.Lock()
	f.closed = true
	onClose := f.onClose
	f.mu.Unlock()

	if onClose != nil {
		onClose()
	}
	return nil
}

func (f *fakeTransport) pingCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.pings
}

func (f *fakeTransport) isClosed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestConn() (*Conn, *fakeTransport) {
	transport := newFakeTransport()
	return NewConn(transport, 8), transport
}

// queued drains whatever the router pushed to conn without running a write pump.
func queued(t *testing.T, conn *Conn) []MessagePush {
	t.Helper()

	var pushes []MessagePush
	for {
		select {
		case payload := <-conn.send:
			var push MessagePush
			require.NoError(t, json.Unmarshal(payload, &push))
			pushes = append(pushes, push)
		default:
			return pushes
		}
	}
}
