package websocket

import (
	"net/http"
	"time"

	"github.com/cockroachdb/errors"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/luciancaetano/wspipe"
)

// Connection timing, following the gorilla chat example.
const (
	// Time allowed to write a message to the peer
	writeWait = 10 * time.Second

	// Time allowed to read the next frame or pong from the peer
	pongWait = 60 * time.Second

	// Send pings to peer with this period (must be less than pongWait)
	pingPeriod = 54 * time.Second
)

const (
	DefaultPath                 = "/ws"
	DefaultRegistrationCapacity = 4
	DefaultOutboundStrikes      = 3
	DefaultMaxMessageSize       = 1024 * 1024
)

// CheckOriginFn is a function that validates the origin of a WebSocket connection request.
// It receives the HTTP request and returns true if the origin is allowed, false otherwise.
type CheckOriginFn = func(r *http.Request) bool

// OnConnectFn is called on the connection's goroutine after the client was
// registered and before its first frame is read.
//
// Note: the callback runs on the network side. It must not touch the Bus.
type OnConnectFn = func(id wspipe.ClientID, remoteAddr string)

// OnDisconnectFn is called on the connection's goroutine once the connection
// has ended. code is the close code sent by the peer, or by the server when
// it initiated the close. voluntary is true when the peer closed the
// connection with 1000 or 1001.
type OnDisconnectFn = func(id wspipe.ClientID, code int, voluntary bool)

// RateLimitConfig defines rate limiting configuration for clients
type RateLimitConfig struct {
	// MessagesPerSecond defines how many frames a client can send per second
	MessagesPerSecond rate.Limit
	// Burst defines the maximum burst size (token bucket capacity)
	Burst int
	// Enabled determines if rate limiting is active
	Enabled bool
}

// DefaultRateLimitConfig returns the default rate limit configuration
// Allows 100 messages per second with burst of 200
func DefaultRateLimitConfig() *RateLimitConfig {
	return &RateLimitConfig{
		MessagesPerSecond: 100,
		Burst:             200,
		Enabled:           true,
	}
}

// NoRateLimit returns a configuration with rate limiting disabled
func NoRateLimit() *RateLimitConfig {
	return &RateLimitConfig{
		Enabled: false,
	}
}

// newLimiter returns nil when rate limiting is disabled.
func (c *RateLimitConfig) newLimiter() *rate.Limiter {
	if c == nil || !c.Enabled {
		return nil
	}
	return rate.NewLimiter(c.MessagesPerSecond, c.Burst)
}

// Config holds everything fixed at construction time.
type Config struct {
	// Addr is used by Listen when it is called with an empty address.
	Addr string
	// Path is the upgrade endpoint served by Listen. Defaults to /ws.
	Path string

	// Capacity is the depth of each client's inbound and outbound queue.
	Capacity int
	// RegistrationCapacity bounds how many accepted connections may wait for
	// the next Poll. Defaults to 4.
	RegistrationCapacity int
	// OutboundStrikes is the number of consecutive saturated sends after
	// which a connection is closed. Defaults to 3.
	OutboundStrikes int
	// MaxMessageSize is the read limit per frame. Defaults to 1MB.
	MaxMessageSize int64

	// RateLimitConfig defaults to NoRateLimit when nil.
	RateLimitConfig *RateLimitConfig
	CheckOrigin     CheckOriginFn
	OnConnect       OnConnectFn
	OnDisconnect    OnDisconnectFn

	// Logger defaults to a no-op logger.
	Logger *zap.Logger
}

// withDefaults returns a copy of c with zero values replaced by defaults.
func (c Config) withDefaults() *Config {
	if c.Path == "" {
		c.Path = DefaultPath
	}
	if c.RegistrationCapacity == 0 {
		c.RegistrationCapacity = DefaultRegistrationCapacity
	}
	if c.OutboundStrikes == 0 {
		c.OutboundStrikes = DefaultOutboundStrikes
	}
	if c.MaxMessageSize == 0 {
		c.MaxMessageSize = DefaultMaxMessageSize
	}
	if c.RateLimitConfig == nil {
		c.RateLimitConfig = NoRateLimit()
	}
	if c.Logger == nil {
		c.Logger = zap.NewNop()
	}
	return &c
}

// Validate reports the first invalid field.
func (c *Config) Validate() error {
	switch {
	case c.Capacity <= 0:
		return errors.Wrapf(wspipe.ErrInvalidConfig, "capacity must be positive, got %d", c.Capacity)
	case c.RegistrationCapacity <= 0:
		return errors.Wrapf(wspipe.ErrInvalidConfig, "registration capacity must be positive, got %d", c.RegistrationCapacity)
	case c.OutboundStrikes <= 0:
		return errors.Wrapf(wspipe.ErrInvalidConfig, "outbound strikes must be positive, got %d", c.OutboundStrikes)
	case c.MaxMessageSize <= 0:
		return errors.Wrapf(wspipe.ErrInvalidConfig, "max message size must be positive, got %d", c.MaxMessageSize)
	case c.RateLimitConfig != nil && c.RateLimitConfig.Enabled && (c.RateLimitConfig.MessagesPerSecond <= 0 || c.RateLimitConfig.Burst <= 0):
		return errors.Wrap(wspipe.ErrInvalidConfig, "rate limit needs a positive rate and burst when enabled")
	}
	return nil
}
