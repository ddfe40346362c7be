package server

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/minaorangina/uno/game"
	uuid "github.com/satori/go.uuid"
	"go.uber.org/zap"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer.
	maxMessageSize = 4096

	defaultSendBuffer = 16
)

// NewID constructs a connection ID
func NewID() string {
	return uuid.NewV4().String()
}

// MessageHandler receives every frame read from a connection and is told
// once when the connection goes away
type MessageHandler interface {
	HandleMessage(conn game.Conn, data []byte) error
	HandleClose(conn game.Conn)
}

// WSConn is a websocket client. Sends are queued and written by a single
// goroutine, so Send never blocks the caller.
type WSConn struct {
	id   string
	ws   *websocket.Conn
	send chan []byte
	done chan struct{}
	quit <-chan struct{}

	closeOnce sync.Once
	logger    *zap.Logger
}

type WSConnOpts struct {
	SendBuffer int
	// Quit closes the connection when it is closed
	Quit   <-chan struct{}
	Logger *zap.Logger
}

func NewWSConn(ws *websocket.Conn, opts WSConnOpts) *WSConn {
	if opts.SendBuffer <= 0 {
		opts.SendBuffer = defaultSendBuffer
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}

	id := NewID()
	return &WSConn{
		id:     id,
		ws:     ws,
		send:   make(chan []byte, opts.SendBuffer),
		done:   make(chan struct{}),
		quit:   opts.Quit,
		logger: opts.Logger.With(zap.String("conn_id", id)),
	}
}

func (c *WSConn) ID() string {
	return c.id
}

// Send queues data for the peer. It drops the message if the connection
// is closed or the peer isn't keeping up.
func (c *WSConn) Send(data []byte) {
	select {
	case <-c.done:
		return
	default:
	}

	select {
	case c.send <- data:
	case <-c.done:
	default:
		c.logger.Warn("send buffer full, dropping message")
	}
}

// Close stops the connection. It is safe to call more than once.
func (c *WSConn) Close() {
	c.closeOnce.Do(func() {
		close(c.done)
	})
}

// Serve pumps messages until the peer goes away, then tells h.
// It blocks for the lifetime of the connection.
func (c *WSConn) Serve(h MessageHandler) {
	written := make(chan struct{})
	go func() {
		c.writePump()
		close(written)
	}()

	c.readPump(h)
	c.Close()
	<-written

	h.HandleClose(c)
}

func (c *WSConn) readPump(h MessageHandler) {
	c.ws.SetReadLimit(maxMessageSize)
	c.ws.SetReadDeadline(time.Now().Add(pongWait))
	c.ws.SetPongHandler(func(string) error {
		c.ws.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, data, err := c.ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.logger.Info("connection lost", zap.Error(err))
			}
			return
		}

		// errors are logged by the handler and never end the connection
		_ = h.HandleMessage(c, data)
	}
}

func (c *WSConn) writePump() {
	ticker := time.NewTicker(pingPeriod)

	defer func() {
		ticker.Stop()
		c.ws.Close()
	}()

	for {
		select {
		case msg := <-c.send:
			c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}

		case <-ticker.C:
			c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}

		case <-c.quit:
			c.writeClose(websocket.CloseGoingAway)
			return

		case <-c.done:
			c.writeClose(websocket.CloseNormalClosure)
			return
		}
	}
}

func (c *WSConn) writeClose(code int) {
	c.ws.SetWriteDeadline(time.Now().Add(writeWait))
	c.ws.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(code, ""))
}
