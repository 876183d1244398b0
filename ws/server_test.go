package ws_test

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/luciancaetano/wspipe"
	"github.com/luciancaetano/wspipe/ws"
)

type chatMessage struct {
	Username string `json:"username"`
	Message  string `json:"message"`
}

// Helper function to create a WebSocket dialer
func newDialer() *websocket.Dialer {
	return &websocket.Dialer{
		HandshakeTimeout: 5 * time.Second,
	}
}

func TestNewRejectsInvalidCapacity(t *testing.T) {
	t.Parallel()

	_, _, err := ws.New[chatMessage, chatMessage](ws.NewConfig(":0", 0))
	assert.True(t, errors.Is(err, wspipe.ErrInvalidConfig))
}

func TestBasicEcho(t *testing.T) {
	t.Parallel()

	cfg := ws.NewConfig("127.0.0.1:0", 4)
	cfg.CheckOrigin = ws.AllOrigins()
	cfg.RateLimitConfig = ws.DefaultRateLimitConfig()

	var bus wspipe.Bus[chatMessage, chatMessage]
	server, listener, err := ws.New[chatMessage, chatMessage](cfg)
	require.NoError(t, err)
	bus = server

	require.NoError(t, listener.Listen(""))
	defer func() {
		stopCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		listener.Shutdown(stopCtx)
	}()

	conn, _, err := newDialer().Dial(fmt.Sprintf("ws://%s/ws", listener.Addr()), nil)
	require.NoError(t, err)
	defer conn.Close()

	require.NoError(t, conn.WriteJSON(chatMessage{Username: "alice", Message: "Hello!"}))

	require.Eventually(t, func() bool {
		for _, env := range bus.Collect() {
			assert.NoError(t, bus.Send(env.Client, env.Message))
			return true
		}
		return false
	}, 5*time.Second, 10*time.Millisecond)

	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	var reply chatMessage
	require.NoError(t, conn.ReadJSON(&reply))
	assert.Equal(t, chatMessage{Username: "alice", Message: "Hello!"}, reply)
}

func TestTextCodec(t *testing.T) {
	t.Parallel()

	cfg := ws.NewConfig("127.0.0.1:0", 2)
	cfg.RateLimitConfig = ws.NoRateLimit()

	server, listener, err := ws.NewWithCodec(cfg, ws.TextCodec())
	require.NoError(t, err)
	require.NoError(t, listener.Listen(""))
	defer listener.Shutdown(context.Background())

	conn, _, err := newDialer().Dial(fmt.Sprintf("ws://%s/ws", listener.Addr()), nil)
	require.NoError(t, err)
	defer conn.Close()

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte("plain text")))

	var got []string
	require.Eventually(t, func() bool {
		for _, msg := range server.Poll() {
			got = append(got, msg)
		}
		return len(got) == 1
	}, 5*time.Second, 10*time.Millisecond)
	assert.Equal(t, []string{"plain text"}, got)
}
