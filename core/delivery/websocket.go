package delivery

import (
	"errors"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

var (
	ErrConnClosed  = errors.New("connection closed")
	ErrOutboxFull  = errors.New("connection outbox full")
	maxInboundSize = int64(4096)
)

type WSOptions struct {
	OutboxSize   int
	WriteTimeout time.Duration
	PingInterval time.Duration
}

// WSConn adapts a websocket connection to Conn. Writes happen on WritePump's goroutine only.
type WSConn struct {
	ws   *websocket.Conn
	opts WSOptions

	outbox    chan Message
	done      chan struct{}
	closeOnce sync.Once
	reason    string
}

var _ Conn = (*WSConn)(nil)

func NewWSConn(ws *websocket.Conn, opts WSOptions) *WSConn {
	if opts.OutboxSize <= 0 {
		opts.OutboxSize = 32
	}
	if opts.WriteTimeout <= 0 {
		opts.WriteTimeout = 10 * time.Second
	}
	if opts.PingInterval <= 0 {
		opts.PingInterval = 30 * time.Second
	}
	return &WSConn{
		ws:     ws,
		opts:   opts,
		outbox: make(chan Message, opts.OutboxSize),
		done:   make(chan struct{}),
	}
}

func (c *WSConn) Send(msg Message) error {
	select {
	case <-c.done:
		return ErrConnClosed
	default:
	}
	select {
	case c.outbox <- msg:
		return nil
	default:
		return ErrOutboxFull
	}
}

// Close asks the writer to send a close frame carrying reason. Safe to call many times.
func (c *WSConn) Close(reason string) {
	c.closeOnce.Do(func() {
		c.reason = reason
		close(c.done)
	})
}

func (c *WSConn) Done() <-chan struct{} { return c.done }

// WritePump drains the outbox until the connection is closed.
func (c *WSConn) WritePump() {
	ticker := time.NewTicker(c.opts.PingInterval)
	defer func() {
		ticker.Stop()
		_ = c.ws.Close()
	}()

	for {
		select {
		case msg := <-c.outbox:
			_ = c.ws.SetWriteDeadline(time.Now().Add(c.opts.WriteTimeout))
			if err := c.ws.WriteJSON(msg); err != nil {
				c.Close(ReasonSendFailed)
				return
			}
		case <-ticker.C:
			deadline := time.Now().Add(c.opts.WriteTimeout)
			if err := c.ws.WriteControl(websocket.PingMessage, nil, deadline); err != nil {
				c.Close(ReasonDisconnected)
				return
			}
		case <-c.done:
			deadline := time.Now().Add(c.opts.WriteTimeout)
			frame := websocket.FormatCloseMessage(websocket.CloseNormalClosure, c.reason)
			_ = c.ws.WriteControl(websocket.CloseMessage, frame, deadline)
			return
		}
	}
}

// ReadPump hands every inbound text frame to onMessage until the peer goes away.
func (c *WSConn) ReadPump(onMessage func(data []byte)) error {
	pongWait := 2 * c.opts.PingInterval
	c.ws.SetReadLimit(maxInboundSize)
	_ = c.ws.SetReadDeadline(time.Now().Add(pongWait))
	c.ws.SetPongHandler(func(string) error {
		return c.ws.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := c.ws.ReadMessage()
		if err != nil {
			return err
		}
		_ = c.ws.SetReadDeadline(time.Now().Add(pongWait))
		onMessage(data)
	}
}
