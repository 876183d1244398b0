// Package wspipe connects a WebSocket listener to a synchronous application loop.
//
// The network side accepts connections and reads frames on its own goroutines.
// The application side owns a registry of clients and polls it without ever
// blocking. The two sides only meet through bounded channels, so neither can
// stall the other and no lock guards the registry.
//
// # Architecture
//
// Every accepted connection gets a client pipe: an inbound queue (network to
// application) and an outbound queue (application to network), both with the
// same fixed capacity. The pipe is handed to the application exactly once
// through a small registration channel.
//
//	listener ──accept──> (id, pipe) ──registration channel──> bus registry
//	handler  ──decode──> pipe.inbound  ──Poll──> application
//	handler  <──encode── pipe.outbound <──Send── application
//
// # Quick Start
//
//	import "github.com/luciancaetano/wspipe/ws"
//
//	type Input struct {
//	    Join     *string   `json:"Join,omitempty"`
//	    Position *Position `json:"Position,omitempty"`
//	}
//
//	bus, listener, err := ws.New[Input, Output](ws.NewConfig("127.0.0.1:3000", 4))
//	if err != nil {
//	    log.Fatal(err)
//	}
//	if err := listener.Listen(""); err != nil {
//	    log.Fatal(err)
//	}
//	defer listener.Shutdown(context.Background())
//
//	for {
//	    for id, msg := range bus.Poll() {
//	        fmt.Printf("From %d: %+v\n", id, msg)
//	    }
//	    time.Sleep(100 * time.Millisecond)
//	}
//
// # Backpressure
//
// Buffers are bounded and overflow is turned into disconnection:
//
//   - Inbound queue full: the connection is closed with 1002 (Protocol Error).
//     Messages already queued are still delivered by Poll.
//   - Registration channel full: the new connection is closed with 1013
//     (Try Again Later) before any handler runs. It never appears in Poll.
//   - Outbound queue full: Send returns ErrOutboundFull. After
//     Config.OutboundStrikes consecutive failures the connection is closed
//     with 1008 (Policy Violation).
//   - Rate limit exceeded (only when Config.RateLimitConfig enables it): the
//     connection is closed with 1008.
//   - Frame larger than Config.MaxMessageSize: the connection is closed with
//     1009 (Message Too Big).
//
// Only text frames are decoded and counted against the rate limit. Other
// frames are ignored and payloads that fail to decode are dropped without
// affecting the connection.
//
// # Concurrency
//
// A Bus must be used from one goroutine. A client id reaches the registry at
// the first Poll after its registration was enqueued. Messages from one
// client are delivered in order; there is no ordering across clients.
package wspipe
