package ws

import (
	"net/http"

	"github.com/luciancaetano/wspipe/internal/codec"
	"github.com/luciancaetano/wspipe/internal/websocket"
)

type Config = websocket.Config
type RateLimitConfig = websocket.RateLimitConfig
type CheckOriginFn = websocket.CheckOriginFn
type OnConnectFn = websocket.OnConnectFn
type OnDisconnectFn = websocket.OnDisconnectFn

type Server[I, O any] = websocket.Server[I, O]
type Listener[I, O any] = websocket.Listener[I, O]

type Codec[I, O any] = codec.Codec[I, O]
type CodecFuncs[I, O any] = codec.Funcs[I, O]

// New creates a Server and its Listener, decoding and encoding frames as JSON.
//
// The Server is the application side: call Poll from your loop. The Listener
// is the network side: call Listen to start accepting connections.
//
// Example:
//
//	bus, listener, err := ws.New[Input, Output](ws.NewConfig(":3000", 4))
//	if err != nil {
//	    log.Fatal(err)
//	}
//	if err := listener.Listen(""); err != nil {
//	    log.Fatal(err)
//	}
func New[I, O any](cfg *Config) (*Server[I, O], *Listener[I, O], error) {
	return websocket.New[I, O](cfg, codec.JSON[I, O]())
}

// NewWithCodec is New with a custom frame codec.
func NewWithCodec[I, O any](cfg *Config, c Codec[I, O]) (*Server[I, O], *Listener[I, O], error) {
	return websocket.New(cfg, c)
}

// NewConfig returns a configuration for addr with per-client queues of the
// given capacity. Everything else uses defaults: registration depth 4,
// endpoint /ws, no rate limit. Set RateLimitConfig to DefaultRateLimitConfig()
// to enable it.
func NewConfig(addr string, capacity int) *Config {
	return &Config{
		Addr:     addr,
		Capacity: capacity,
	}
}

// JSONCodec returns the default codec.
func JSONCodec[I, O any]() Codec[I, O] {
	return codec.JSON[I, O]()
}

// TextCodec passes frame text through unchanged.
func TextCodec() Codec[string, string] {
	return codec.Text()
}

// AllOrigins returns a checkOrigin function that allows all origins
func AllOrigins() CheckOriginFn {
	return func(r *http.Request) bool {
		return true
	}
}

// DefaultRateLimitConfig returns the default rate limit configuration
func DefaultRateLimitConfig() *RateLimitConfig {
	return websocket.DefaultRateLimitConfig()
}

// NoRateLimit returns a configuration with rate limiting disabled
func NoRateLimit() *RateLimitConfig {
	return websocket.NoRateLimit()
}
