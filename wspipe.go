package wspipe

import (
	"context"
	"iter"
	"net"
	"net/http"
)

// ClientID identifies a connection for the lifetime of the process.
//
// IDs are assigned by the Listener when a connection is accepted, starting at
// 0 and increasing by one for every accepted connection. An ID is never
// reused, even after its client disconnects.
type ClientID uint64

// Envelope pairs an inbound message with the client that sent it.
type Envelope[I any] struct {
	Client  ClientID
	Message I
}

// Bus is the application-side view of the message pipes.
//
// A Bus is owned by a single goroutine (the application loop). None of its
// methods block and none of them are safe for concurrent use.
//
// Example usage:
//
//	bus, listener, err := ws.New[Input, Output](ws.NewConfig(":3000", 4))
//	if err != nil {
//	    return err
//	}
//	if err := listener.Listen(""); err != nil {
//	    return err
//	}
//
//	for {
//	    for id, msg := range bus.Poll() {
//	        log.Printf("from %d: %+v", id, msg)
//	        bus.Send(id, Output{Ack: true})
//	    }
//	    time.Sleep(100 * time.Millisecond)
//	}
type Bus[I, O any] interface {
	// Poll registers every client accepted since the previous call and returns
	// a one-shot sequence yielding at most one message per known client.
	//
	// Clients with nothing queued are skipped. Clients whose connection has
	// ended and whose queue is drained are removed from the registry while
	// the sequence is consumed. Cross-client order is unspecified; per-client
	// order is FIFO.
	Poll() iter.Seq2[ClientID, I]

	// Collect consumes one Poll cycle into a slice.
	Collect() []Envelope[I]

	// Send queues an outbound message for a client without blocking.
	//
	// Returns ErrClientNotFound for an unknown id, ErrConnectionClosed when
	// the connection has ended, and ErrOutboundFull when the client's
	// outbound queue is saturated. Repeated saturation terminates the
	// connection.
	Send(id ClientID, msg O) error

	// Broadcast sends msg to every registered client and returns the number
	// of clients that accepted it.
	Broadcast(msg O) int

	// Disconnect asks the network side to close a client's connection.
	Disconnect(id ClientID) error

	// Clients returns the registered client ids in ascending order.
	Clients() []ClientID

	// Len returns the number of registered clients.
	Len() int
}

// Listener is the network-side half: it accepts WebSocket connections and
// hands each one to the Bus through the registration channel.
type Listener interface {
	// Listen binds addr and serves connections in the background.
	//
	// Bind failures are returned before any goroutine is started. An empty
	// addr falls back to the configured address.
	Listen(addr string) error

	// Shutdown stops accepting connections and closes every live connection
	// with 1001 (Going Away).
	Shutdown(ctx context.Context) error

	// Done is closed when the accept loop has exited.
	Done() <-chan struct{}

	// Err reports why the accept loop exited. It is nil after a clean
	// Shutdown and must only be read once Done is closed.
	Err() error

	// Addr returns the bound address, or nil before Listen.
	Addr() net.Addr

	// Handler returns the WebSocket upgrade endpoint so it can be mounted on
	// an existing mux.
	Handler() http.Handler
}
