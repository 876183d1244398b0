package websocket

import (
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/luciancaetano/wspipe"
	"github.com/luciancaetano/wspipe/internal/codec"
	"github.com/luciancaetano/wspipe/internal/pipe"
)

// wsConn is the subset of *websocket.Conn used by a handler.
type wsConn interface {
	ReadMessage() (messageType int, p []byte, err error)
	WriteMessage(messageType int, data []byte) error
	WriteControl(messageType int, data []byte, deadline time.Time) error
	SetReadDeadline(t time.Time) error
	SetWriteDeadline(t time.Time) error
	SetReadLimit(limit int64)
	SetPongHandler(h func(appData string) error)
	Close() error
}

// handler serves one accepted connection. Its read loop is the only writer
// of the pipe's inbound queue and its write pump the only reader of the
// outbound queue.
type handler[I, O any] struct {
	id         wspipe.ClientID
	conn       wsConn
	remoteAddr string
	pipe       *pipe.Pipe[I, O]
	codec      codec.Codec[I, O]
	cfg        *Config
	logger     *zap.Logger

	rateLimiter *rate.Limiter // nil when disabled

	closeOnce sync.Once
	closeCode int  // set inside closeOnce
	peerClose bool // set by the read loop before finish

	pumpDone chan struct{}
}

func newHandler[I, O any](id wspipe.ClientID, conn wsConn, remoteAddr string, p *pipe.Pipe[I, O], c codec.Codec[I, O], cfg *Config, logger *zap.Logger) *handler[I, O] {
	return &handler[I, O]{
		id:          id,
		conn:        conn,
		remoteAddr:  remoteAddr,
		pipe:        p,
		codec:       c,
		cfg:         cfg,
		logger:      logger,
		rateLimiter: cfg.RateLimitConfig.newLimiter(),
		pumpDone:    make(chan struct{}),
	}
}

// run reads frames until the connection ends. It blocks.
func (h *handler[I, O]) run() {
	defer h.finish()

	h.conn.SetReadLimit(h.cfg.MaxMessageSize)
	h.conn.SetReadDeadline(time.Now().Add(pongWait))
	h.conn.SetPongHandler(func(string) error {
		return h.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	if h.cfg.OnConnect != nil {
		h.cfg.OnConnect(h.id, h.remoteAddr)
	}

	go h.writePump()

	for {
		messageType, data, err := h.conn.ReadMessage()
		if err != nil {
			h.readFailed(err)
			return
		}

		h.conn.SetReadDeadline(time.Now().Add(pongWait))

		if !h.onFrame(messageType, data) {
			return
		}
	}
}

// onFrame handles one inbound frame and reports whether the connection
// should stay open.
func (h *handler[I, O]) onFrame(messageType int, data []byte) bool {
	if messageType != websocket.TextMessage {
		return true
	}

	if h.rateLimiter != nil && !h.rateLimiter.Allow() {
		h.logger.Warn("rate limit exceeded, closing connection")
		h.closeWithCode(websocket.ClosePolicyViolation, wspipe.ReasonRateLimited)
		return false
	}

	msg, err := h.codec.Decode(string(data))
	if err != nil {
		h.logger.Debug("dropping undecodable message", zap.Error(err))
		return true
	}

	if h.pipe.TryPush(msg) == pipe.Full {
		h.logger.Warn("inbound queue full, closing connection", zap.Int("capacity", h.pipe.Cap()))
		h.closeWithCode(websocket.CloseProtocolError, wspipe.ReasonInboundFull)
		return false
	}
	return true
}

// readFailed records how the peer went away.
func (h *handler[I, O]) readFailed(err error) {
	var closeErr *websocket.CloseError
	if errors.As(err, &closeErr) {
		h.peerClose = h.closeWithCode(closeErr.Code, "")
		return
	}
	if errors.Is(err, websocket.ErrReadLimit) {
		// The connection has already sent 1009 to the peer.
		h.logger.Warn("frame exceeds read limit, closing connection", zap.Int64("limit", h.cfg.MaxMessageSize))
		h.close(websocket.CloseMessageTooBig, "", false)
		return
	}
	h.logger.Debug("read failed", zap.Error(err))
	h.closeWithCode(websocket.CloseAbnormalClosure, "")
}

// writePump drains the outbound queue onto the connection and keeps it
// alive with pings.
func (h *handler[I, O]) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		close(h.pumpDone)
	}()

	for {
		select {
		case msg := <-h.pipe.Outbound():
			data, err := h.codec.Encode(msg)
			if err != nil {
				h.logger.Error("dropping unencodable message", zap.Error(err))
				continue
			}

			h.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := h.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				h.logger.Debug("write failed", zap.Error(err))
				h.closeWithCode(websocket.CloseAbnormalClosure, wspipe.ReasonWriteFailed)
				return
			}

		case <-ticker.C:
			h.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := h.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				h.closeWithCode(websocket.CloseAbnormalClosure, wspipe.ReasonWriteFailed)
				return
			}

		case <-h.pipe.Aborted():
			code, reason := h.pipe.AbortReason()
			h.closeWithCode(code, reason)
			return

		case <-h.pipe.Done():
			return
		}
	}
}

// closeWithCode sends a close frame (unless code is 1006, which must never be
// sent) and closes the socket. Only the first call has an effect; it reports
// whether this call was the one that closed the connection.
func (h *handler[I, O]) closeWithCode(code int, reason string) bool {
	return h.close(code, reason, code != websocket.CloseAbnormalClosure)
}

// close records code as the connection's close code and closes the socket,
// writing a close frame first when sendFrame is set.
func (h *handler[I, O]) close(code int, reason string, sendFrame bool) bool {
	closed := false
	h.closeOnce.Do(func() {
		closed = true
		h.closeCode = code
		if sendFrame {
			message := websocket.FormatCloseMessage(code, reason)
			h.conn.WriteControl(websocket.CloseMessage, message, time.Now().Add(writeWait))
		}
		h.conn.Close()
	})
	return closed
}

// finish runs on the read loop's goroutine after its last push.
func (h *handler[I, O]) finish() {
	h.closeWithCode(websocket.CloseNormalClosure, "")
	h.pipe.Close()
	<-h.pumpDone

	code := h.closeCode
	voluntary := h.peerClose && (code == websocket.CloseNormalClosure || code == websocket.CloseGoingAway)
	h.logClose(code)

	if h.cfg.OnDisconnect != nil {
		h.cfg.OnDisconnect(h.id, code, voluntary)
	}
}

func (h *handler[I, O]) logClose(code int) {
	log := h.logger.With(zap.Int("code", code), zap.Bool("by_peer", h.peerClose))
	switch code {
	case websocket.CloseNormalClosure:
		log.Info("connection closed")
	case websocket.CloseGoingAway:
		log.Info("client left")
	case websocket.CloseAbnormalClosure:
		log.Info("connection dropped without closing handshake")
	case websocket.CloseProtocolError, websocket.ClosePolicyViolation, websocket.CloseMessageTooBig, websocket.CloseTryAgainLater:
		log.Warn("connection closed by server")
	default:
		log.Warn("connection closed with error code")
	}
}
