package websocket

import (
	"iter"
	"maps"
	"slices"

	"github.com/cockroachdb/errors"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/luciancaetano/wspipe"
	"github.com/luciancaetano/wspipe/internal/codec"
	"github.com/luciancaetano/wspipe/internal/pipe"
)

type registryEntry[I, O any] struct {
	pipe *pipe.Pipe[I, O]
	// strikes counts consecutive sends that found the outbound queue full.
	strikes int
}

// Server is the application-side half. It owns the registry and must be
// used from a single goroutine; it takes no locks.
type Server[I, O any] struct {
	registrations <-chan registration[I, O]
	clients       map[wspipe.ClientID]*registryEntry[I, O]
	strikeLimit   int
	logger        *zap.Logger
}

// New creates a connected Server and Listener pair. A nil codec selects
// codec.JSON.
func New[I, O any](cfg *Config, c codec.Codec[I, O]) (*Server[I, O], *Listener[I, O], error) {
	if cfg == nil {
		return nil, nil, errors.Wrap(wspipe.ErrInvalidConfig, "nil config")
	}
	cfg = cfg.withDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, nil, err
	}
	if c == nil {
		c = codec.JSON[I, O]()
	}

	registrations := make(chan registration[I, O], cfg.RegistrationCapacity)

	server := &Server[I, O]{
		registrations: registrations,
		clients:       make(map[wspipe.ClientID]*registryEntry[I, O]),
		strikeLimit:   cfg.OutboundStrikes,
		logger:        cfg.Logger,
	}
	return server, newListener(cfg, c, registrations), nil
}

// drainRegistrations moves every pending registration into the registry.
func (s *Server[I, O]) drainRegistrations() {
	for {
		select {
		case reg := <-s.registrations:
			s.clients[reg.id] = &registryEntry[I, O]{pipe: reg.pipe}
			s.logger.Debug("client added to registry", zap.Uint64("client_id", uint64(reg.id)))
		default:
			return
		}
	}
}

// Poll drains pending registrations, then returns a sequence that tries
// one receive per registered client. The sequence can be consumed once.
func (s *Server[I, O]) Poll() iter.Seq2[wspipe.ClientID, I] {
	s.drainRegistrations()

	used := false
	return func(yield func(wspipe.ClientID, I) bool) {
		if used {
			return
		}
		used = true

		for id, entry := range s.clients {
			msg, res := entry.pipe.TryPop()
			switch res {
			case pipe.OK:
				if !yield(id, msg) {
					return
				}
			case pipe.Closed:
				delete(s.clients, id)
				s.logger.Debug("client removed from registry", zap.Uint64("client_id", uint64(id)))
			}
		}
	}
}

// Collect consumes one poll cycle.
func (s *Server[I, O]) Collect() []wspipe.Envelope[I] {
	var out []wspipe.Envelope[I]
	for id, msg := range s.Poll() {
		out = append(out, wspipe.Envelope[I]{Client: id, Message: msg})
	}
	return out
}

// Send queues msg for client id without blocking.
func (s *Server[I, O]) Send(id wspipe.ClientID, msg O) error {
	entry, ok := s.clients[id]
	if !ok {
		return errors.Wrapf(wspipe.ErrClientNotFound, "send to client %d", id)
	}

	switch entry.pipe.TryPushOutbound(msg) {
	case pipe.OK:
		entry.strikes = 0
		return nil
	case pipe.Closed:
		// The entry stays until Poll has drained its inbound queue.
		return errors.Wrapf(wspipe.ErrConnectionClosed, "send to client %d", id)
	default:
		entry.strikes++
		if entry.strikes >= s.strikeLimit {
			s.logger.Warn("outbound queue saturated, closing connection",
				zap.Uint64("client_id", uint64(id)),
				zap.Int("strikes", entry.strikes))
			entry.pipe.Abort(websocket.ClosePolicyViolation, wspipe.ReasonOutboundSaturated)
		}
		return errors.WithDetailf(
			errors.Wrapf(wspipe.ErrOutboundFull, "send to client %d", id),
			"strike %d of %d", entry.strikes, s.strikeLimit)
	}
}

// Broadcast sends msg to every registered client and returns how many
// accepted it.
func (s *Server[I, O]) Broadcast(msg O) int {
	sent := 0
	for id := range s.clients {
		if err := s.Send(id, msg); err == nil {
			sent++
		}
	}
	return sent
}

// Disconnect closes a client's connection with 1000 (Normal Closure).
// Messages it already queued are still delivered by Poll.
func (s *Server[I, O]) Disconnect(id wspipe.ClientID) error {
	entry, ok := s.clients[id]
	if !ok {
		return errors.Wrapf(wspipe.ErrClientNotFound, "disconnect client %d", id)
	}
	entry.pipe.Abort(websocket.CloseNormalClosure, wspipe.ReasonDisconnected)
	return nil
}

// Clients returns the registered ids in ascending order.
func (s *Server[I, O]) Clients() []wspipe.ClientID {
	return slices.Sorted(maps.Keys(s.clients))
}

// Len returns the number of registered clients.
func (s *Server[I, O]) Len() int {
	return len(s.clients)
}

var (
	_ wspipe.Bus[int, int] = (*Server[int, int])(nil)
	_ wspipe.Listener      = (*Listener[int, int])(nil)
)
