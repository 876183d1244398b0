package websocket

import (
	"context"
	"net"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/luciancaetano/wspipe"
	"github.com/luciancaetano/wspipe/internal/codec"
	"github.com/luciancaetano/wspipe/internal/pipe"
)

// registration hands a new client's pipe to the Server exactly once.
type registration[I, O any] struct {
	id   wspipe.ClientID
	pipe *pipe.Pipe[I, O]
}

// Listener accepts connections on the network side.
//
// Admission is decided by the registration channel alone: when it is full the
// new connection is rejected instead of waiting for the application to poll.
type Listener[I, O any] struct {
	cfg           *Config
	codec         codec.Codec[I, O]
	registrations chan<- registration[I, O]
	upgrader      websocket.Upgrader
	logger        *zap.Logger

	// nextID is only used to derive client ids.
	nextID atomic.Uint64

	// conns tracks live handlers so Shutdown can close hijacked connections.
	conns   sync.Map // map[wspipe.ClientID]*handler[I, O]
	closing atomic.Bool

	mu      sync.RWMutex
	started bool
	server  *http.Server
	addr    net.Addr
	err     error
	done    chan struct{}
}

func newListener[I, O any](cfg *Config, c codec.Codec[I, O], registrations chan<- registration[I, O]) *Listener[I, O] {
	return &Listener[I, O]{
		cfg:           cfg,
		codec:         c,
		registrations: registrations,
		logger:        cfg.Logger.With(zap.String("listener", uuid.NewString())),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     cfg.CheckOrigin,
		},
		done: make(chan struct{}),
	}
}

// Listen binds addr and serves the upgrade endpoint in the background.
// A Listener can only be started once.
func (l *Listener[I, O]) Listen(addr string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.started {
		return errors.Wrapf(wspipe.ErrAlreadyListening, "listen %s", addr)
	}
	if addr == "" {
		addr = l.cfg.Addr
	}

	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return errors.Wrapf(err, "bind %s", addr)
	}

	mux := http.NewServeMux()
	mux.Handle(l.cfg.Path, l.Handler())

	l.server = &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: writeWait,
	}
	l.addr = ln.Addr()
	l.started = true

	l.logger.Info("listening", zap.Stringer("addr", l.addr), zap.String("path", l.cfg.Path))
	go l.serve(l.server, ln)
	return nil
}

// serve runs the accept loop until the server is shut down or fails.
func (l *Listener[I, O]) serve(server *http.Server, ln net.Listener) {
	defer close(l.done)

	if err := server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		l.logger.Error("accept loop failed", zap.Error(err))
		l.mu.Lock()
		l.err = errors.Wrap(err, "accept loop")
		l.mu.Unlock()
	}
}

// Shutdown stops accepting connections and closes every live connection.
func (l *Listener[I, O]) Shutdown(ctx context.Context) error {
	l.mu.RLock()
	server := l.server
	l.mu.RUnlock()

	l.closing.Store(true)

	var err error
	if server != nil {
		err = server.Shutdown(ctx)
	}

	// Upgraded connections are hijacked and not tracked by http.Server.
	l.conns.Range(func(_, value any) bool {
		if h, ok := value.(*handler[I, O]); ok {
			h.closeWithCode(websocket.CloseGoingAway, wspipe.ReasonServerShutdown)
		}
		return true
	})

	if server == nil {
		return nil
	}

	select {
	case <-l.done:
	case <-ctx.Done():
		return errors.Wrap(ctx.Err(), "wait for accept loop")
	}
	return errors.Wrap(err, "shutdown listener")
}

// Done is closed when the accept loop has exited.
func (l *Listener[I, O]) Done() <-chan struct{} {
	return l.done
}

// Err reports why the accept loop exited.
func (l *Listener[I, O]) Err() error {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.err
}

// Addr returns the bound address, or nil before Listen.
func (l *Listener[I, O]) Addr() net.Addr {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.addr
}

// Handler returns the WebSocket upgrade endpoint.
func (l *Listener[I, O]) Handler() http.Handler {
	return http.HandlerFunc(l.handleWebSocket)
}

// handleWebSocket upgrades the request and serves the connection on the
// request's goroutine.
func (l *Listener[I, O]) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	if l.closing.Load() {
		http.Error(w, "server shutting down", http.StatusServiceUnavailable)
		return
	}

	// Upgrade replies to the client itself on failure.
	conn, err := l.upgrader.Upgrade(w, r, nil)
	if err != nil {
		l.logger.Debug("upgrade failed", zap.String("remote_addr", r.RemoteAddr), zap.Error(err))
		return
	}

	l.accept(conn, r.RemoteAddr)
}

// accept allocates an id and a pipe for conn and registers them. A
// connection that cannot be registered is closed with 1013 and gets no
// handler.
func (l *Listener[I, O]) accept(conn wsConn, remoteAddr string) {
	id := wspipe.ClientID(l.nextID.Add(1) - 1)
	p := pipe.New[I, O](l.cfg.Capacity)

	log := l.logger.With(
		zap.Uint64("client_id", uint64(id)),
		zap.String("remote_addr", remoteAddr),
		zap.String("session", uuid.NewString()),
	)

	select {
	case l.registrations <- registration[I, O]{id: id, pipe: p}:
	default:
		log.Warn("registration queue full, rejecting connection", zap.Int("queued", len(l.registrations)))
		reject(conn, websocket.CloseTryAgainLater, wspipe.ReasonRegistrationFull)
		return
	}

	log.Debug("client registered")

	h := newHandler(id, conn, remoteAddr, p, l.codec, l.cfg, log)
	l.conns.Store(id, h)
	defer l.conns.Delete(id)

	// Shutdown may have swept conns before this handler was stored.
	if l.closing.Load() {
		h.closeWithCode(websocket.CloseGoingAway, wspipe.ReasonServerShutdown)
	}

	h.run()
}

func reject(conn wsConn, code int, reason string) {
	message := websocket.FormatCloseMessage(code, reason)
	conn.WriteControl(websocket.CloseMessage, message, time.Now().Add(writeWait))
	conn.Close()
}
