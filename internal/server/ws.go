package server

import (
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/roach88/famshelf/internal/protocol"
)

var (
	errConnClosed = errors.New("connection closed")
	errSendFull   = errors.New("send buffer full")
)

// wsConn adapts a websocket to hub.Conn. Frames are queued on a bounded
// channel and written by a single writer goroutine.
type wsConn struct {
	id     string
	ws     *websocket.Conn
	codec  protocol.Codec
	send   chan []byte
	done   chan struct{}
	once   sync.Once
	logger *slog.Logger

	writeTimeout time.Duration
	pingInterval time.Duration
}

func newWSConn(id string, ws *websocket.Conn, codec protocol.Codec, buffer int, writeTimeout, pingInterval time.Duration, logger *slog.Logger) *wsConn {
	return &wsConn{
		id:           id,
		ws:           ws,
		codec:        codec,
		send:         make(chan []byte, buffer),
		done:         make(chan struct{}),
		logger:       logger,
		writeTimeout: writeTimeout,
		pingInterval: pingInterval,
	}
}

func (c *wsConn) ID() string { return c.id }

func (c *wsConn) Codec() protocol.Codec { return c.codec }

// Send queues frame without blocking.
func (c *wsConn) Send(frame []byte) error {
	select {
	case <-c.done:
		return errConnClosed
	default:
	}
	select {
	case c.send <- frame:
		return nil
	case <-c.done:
		return errConnClosed
	default:
		return errSendFull
	}
}

// Close stops the writer, which sends a close frame and tears down the
// socket. The read loop then observes the error and ends.
func (c *wsConn) Close() error {
	c.once.Do(func() { close(c.done) })
	return nil
}

// writeLoop owns every write to the socket.
func (c *wsConn) writeLoop() {
	var ping <-chan time.Time
	if c.pingInterval > 0 {
		ticker := time.NewTicker(c.pingInterval)
		defer ticker.Stop()
		ping = ticker.C
	}
	defer c.ws.Close()

	msgType := websocket.TextMessage
	if c.codec.Binary() {
		msgType = websocket.BinaryMessage
	}

	for {
		select {
		case <-c.done:
			deadline := time.Now().Add(c.writeTimeout)
			msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
			_ = c.ws.WriteControl(websocket.CloseMessage, msg, deadline)
			return
		case frame := <-c.send:
			_ = c.ws.SetWriteDeadline(time.Now().Add(c.writeTimeout))
			if err := c.ws.WriteMessage(msgType, frame); err != nil {
				c.logger.Debug("websocket write failed", "conn", c.id, "error", err)
				c.Close()
				return
			}
		case <-ping:
			deadline := time.Now().Add(c.writeTimeout)
			if err := c.ws.WriteControl(websocket.PingMessage, nil, deadline); err != nil {
				c.logger.Debug("websocket ping failed", "conn", c.id, "error", err)
				c.Close()
				return
			}
		}
	}
}

// handleWebSocket upgrades the request and runs the connection until the
// peer goes away or the hub drops it.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	codec, err := protocol.Lookup(r.URL.Query().Get("encoding"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: badRequest("encoding", err.Error())})
		return
	}

	ws, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already replied.
		s.logger.Debug("websocket upgrade failed", "error", err)
		return
	}

	wsCfg := s.cfg.WebSocket
	conn := newWSConn(s.connIDs.Generate(), ws, codec, wsCfg.SendBuffer, wsCfg.WriteTimeout, wsCfg.PingInterval, s.logger)
	ws.SetReadLimit(wsCfg.ReadLimit)

	go conn.writeLoop()
	s.logger.Debug("websocket connected", "conn", conn.id, "encoding", codec.Encoding(), "remote", r.RemoteAddr)

	sess := newSession(s, conn)
	ctx := r.Context()
	for {
		_, frame, err := ws.ReadMessage()
		if err != nil {
			break
		}
		sess.handle(ctx, frame)
	}

	s.hub.Leave(ctx, conn)
	conn.Close()
	s.logger.Debug("websocket disconnected", "conn", conn.id)
}
