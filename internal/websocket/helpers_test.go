package websocket

import (
	"context"
	"encoding/binary"
	"fmt"
	"net"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/luciancaetano/wspipe"
)

type testMsg struct {
	N int `json:"n"`
}

func textFrame(n int) []byte {
	return []byte(fmt.Sprintf(`{"n":%d}`, n))
}

type frame struct {
	messageType int
	data        []byte
	err         error
}

type closeFrame struct {
	code   int
	reason string
}

// fakeConn is a scripted stand-in for *websocket.Conn.
type fakeConn struct {
	frames    chan frame
	closed    chan struct{}
	closeOnce sync.Once

	mu       sync.Mutex
	controls []closeFrame
	written  [][]byte
}

func newFakeConn() *fakeConn {
	return &fakeConn{
		frames: make(chan frame, 64),
		closed: make(chan struct{}),
	}
}

func (c *fakeConn) sendText(data []byte) {
	c.frames <- frame{messageType: websocket.TextMessage, data: data}
}

func (c *fakeConn) peerClose(code int) {
	c.frames <- frame{err: &websocket.CloseError{Code: code}}
}

func (c *fakeConn) ReadMessage() (int, []byte, error) {
	select {
	case <-c.closed:
		return 0, nil, net.ErrClosed
	default:
	}

	select {
	case f := <-c.frames:
		if f.err != nil {
			return 0, nil, f.err
		}
		return f.messageType, f.data, nil
	case <-c.closed:
		return 0, nil, net.ErrClosed
	}
}

func (c *fakeConn) WriteMessage(messageType int, data []byte) error {
	if c.isClosed() {
		return net.ErrClosed
	}
	if messageType == websocket.TextMessage {
		c.mu.Lock()
		c.written = append(c.written, data)
		c.mu.Unlock()
	}
	return nil
}

func (c *fakeConn) WriteControl(messageType int, data []byte, _ time.Time) error {
	if messageType != websocket.CloseMessage {
		return nil
	}
	cf := closeFrame{code: websocket.CloseNoStatusReceived}
	if len(data) >= 2 {
		cf.code = int(binary.BigEndian.Uint16(data[:2]))
		cf.reason = string(data[2:])
	}
	c.mu.Lock()
	c.controls = append(c.controls, cf)
	c.mu.Unlock()
	return nil
}

func (c *fakeConn) SetReadDeadline(time.Time) error { return nil }

func (c *fakeConn) SetWriteDeadline(time.Time) error { return nil }

func (c *fakeConn) SetReadLimit(int64) {}

func (c *fakeConn) SetPongHandler(func(appData string) error) {}

func (c *fakeConn) Close() error {
	c.closeOnce.Do(func() { close(c.closed) })
	return nil
}

func (c *fakeConn) isClosed() bool {
	select {
	case <-c.closed:
		return true
	default:
		return false
	}
}

func (c *fakeConn) closeFrames() []closeFrame {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]closeFrame(nil), c.controls...)
}

func (c *fakeConn) messages() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, 0, len(c.written))
	for _, m := range c.written {
		out = append(out, string(m))
	}
	return out
}

// newTestBus builds a Server/Listener pair with a test logger.
func newTestBus(t *testing.T, cfg *Config) (*Server[testMsg, testMsg], *Listener[testMsg, testMsg]) {
	t.Helper()
	if cfg.Logger == nil {
		cfg.Logger = zaptest.NewLogger(t)
	}
	s, l, err := New[testMsg, testMsg](cfg, nil)
	require.NoError(t, err)
	return s, l
}

// startTestServer serves the listener's upgrade endpoint on an httptest server.
func startTestServer(t *testing.T, cfg *Config) (*Server[testMsg, testMsg], *Listener[testMsg, testMsg], string) {
	t.Helper()
	s, l := newTestBus(t, cfg)
	srv := httptest.NewServer(l.Handler())
	t.Cleanup(func() {
		l.Shutdown(context.Background())
		srv.Close()
	})
	return s, l, "ws" + strings.TrimPrefix(srv.URL, "http")
}

func dial(t *testing.T, url string) *websocket.Conn {
	t.Helper()
	dialer := &websocket.Dialer{HandshakeTimeout: 5 * time.Second}
	conn, _, err := dialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

// readClose reads until the server's close frame arrives and returns its code.
func readClose(t *testing.T, conn *websocket.Conn) *websocket.CloseError {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	for {
		_, _, err := conn.ReadMessage()
		if err == nil {
			continue
		}
		var closeErr *websocket.CloseError
		require.ErrorAs(t, err, &closeErr)
		return closeErr
	}
}

// queuedInbound sums the inbound messages waiting across live handlers.
func queuedInbound(l *Listener[testMsg, testMsg]) int {
	total := 0
	l.conns.Range(func(_, value any) bool {
		total += value.(*handler[testMsg, testMsg]).pipe.Len()
		return true
	})
	return total
}

func liveConns(l *Listener[testMsg, testMsg]) int {
	n := 0
	l.conns.Range(func(_, _ any) bool {
		n++
		return true
	})
	return n
}

func collect(s *Server[testMsg, testMsg]) map[wspipe.ClientID][]int {
	out := make(map[wspipe.ClientID][]int)
	for id, msg := range s.Poll() {
		out[id] = append(out[id], msg.N)
	}
	return out
}
