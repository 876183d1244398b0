// Package pipe holds the per-client pair of bounded queues shared by a
// connection handler and the application-side registry.
//
// Each queue has one writer and one reader. Every operation is a
// non-blocking attempt whose outcome is reported as a Result.
package pipe

import "sync"

// Result is the outcome of a non-blocking queue operation.
type Result int

const (
	// OK means the message was queued or dequeued.
	OK Result = iota
	// Empty means there was nothing to dequeue.
	Empty
	// Full means the queue is at capacity; the message was not queued.
	Full
	// Closed means the connection has ended. For the inbound queue it is
	// only reported once every buffered message has been dequeued.
	Closed
)

func (r Result) String() string {
	switch r {
	case OK:
		return "ok"
	case Empty:
		return "empty"
	case Full:
		return "full"
	case Closed:
		return "closed"
	default:
		return "unknown"
	}
}

// Pipe carries messages for one client.
//
// Inbound is written by the connection handler and read by the registry.
// Outbound is written by the registry and read by the handler's write pump.
type Pipe[I, O any] struct {
	inbound  chan I
	outbound chan O

	done      chan struct{}
	closeOnce sync.Once

	aborted     chan struct{}
	abortOnce   sync.Once
	abortCode   int
	abortReason string
}

// New creates a pipe whose queues each hold capacity messages.
// Capacity must be positive.
func New[I, O any](capacity int) *Pipe[I, O] {
	return &Pipe[I, O]{
		inbound:  make(chan I, capacity),
		outbound: make(chan O, capacity),
		done:     make(chan struct{}),
		aborted:  make(chan struct{}),
	}
}

// Cap returns the capacity of each queue.
func (p *Pipe[I, O]) Cap() int {
	return cap(p.inbound)
}

// Len returns the number of inbound messages waiting.
func (p *Pipe[I, O]) Len() int {
	return len(p.inbound)
}

// TryPush queues an inbound message. Only the connection handler calls it,
// and never after Close.
func (p *Pipe[I, O]) TryPush(msg I) Result {
	select {
	case p.inbound <- msg:
		return OK
	default:
		return Full
	}
}

// TryPop dequeues the oldest inbound message.
func (p *Pipe[I, O]) TryPop() (I, Result) {
	select {
	case msg, ok := <-p.inbound:
		if !ok {
			var zero I
			return zero, Closed
		}
		return msg, OK
	default:
		var zero I
		return zero, Empty
	}
}

// TryPushOutbound queues an outbound message unless the connection has
// ended or termination was requested.
func (p *Pipe[I, O]) TryPushOutbound(msg O) Result {
	select {
	case <-p.done:
		return Closed
	case <-p.aborted:
		return Closed
	default:
	}

	select {
	case p.outbound <- msg:
		return OK
	default:
		return Full
	}
}

// Outbound is the channel drained by the write pump.
func (p *Pipe[I, O]) Outbound() <-chan O {
	return p.outbound
}

// Close marks the connection as ended and closes the inbound queue so the
// reader sees Closed after draining it. It must be called by the inbound
// writer.
func (p *Pipe[I, O]) Close() {
	p.closeOnce.Do(func() {
		close(p.inbound)
		close(p.done)
	})
}

// Done is closed once the connection has ended.
func (p *Pipe[I, O]) Done() <-chan struct{} {
	return p.done
}

// Abort asks the connection handler to close the connection with code and
// reason. Only the first request is kept.
func (p *Pipe[I, O]) Abort(code int, reason string) {
	p.abortOnce.Do(func() {
		p.abortCode = code
		p.abortReason = reason
		close(p.aborted)
	})
}

// Aborted is closed once Abort has been called.
func (p *Pipe[I, O]) Aborted() <-chan struct{} {
	return p.aborted
}

// AbortReason returns the close code and reason passed to Abort. It must
// only be called after Aborted is closed.
func (p *Pipe[I, O]) AbortReason() (int, string) {
	return p.abortCode, p.abortReason
}
