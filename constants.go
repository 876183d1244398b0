package wspipe

import "github.com/cockroachdb/errors"

// Sentinel errors. Match them with errors.Is; returned values are wrapped
// with the client id or address involved.
var (
	ErrClientNotFound   = errors.New("client not found")
	ErrConnectionClosed = errors.New("client connection is closed")
	ErrOutboundFull     = errors.New("outbound queue full")
	ErrAlreadyListening = errors.New("listener already started")
	ErrInvalidConfig    = errors.New("invalid configuration")
	ErrPayloadTooLarge  = errors.New("payload too large")
)

// Close reasons sent to peers alongside the close code.
const (
	ReasonRegistrationFull  = "registration queue full"
	ReasonInboundFull       = "inbound queue full"
	ReasonRateLimited       = "rate limit exceeded"
	ReasonOutboundSaturated = "outbound queue saturated"
	ReasonServerShutdown    = "server shutting down"
	ReasonDisconnected      = "disconnected by server"
	ReasonWriteFailed       = "write failed"
)
