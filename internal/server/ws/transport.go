package ws

import (
	"time"

	"github.com/gorilla/websocket"
)

// FrameKind classifies inbound traffic for the session's read pump.
type FrameKind int

const (
	FrameData FrameKind = iota
	FrameClose
	FrameOther
)

// Transport is the minimal surface a session needs from an underlying
// connection. The production implementation wraps gorilla/websocket;
// tests substitute in-memory fakes.
type Transport interface {
	// WriteFrame sends a data frame. Only the session's outbound duty
	// calls it (single writer).
	WriteFrame(payload []byte) error

	// WritePing sends a liveness probe.
	WritePing() error

	// ReadFrame blocks until the next inbound frame and classifies it.
	// A closed connection surfaces as an error.
	ReadFrame() (FrameKind, []byte, error)

	// OnPong registers the callback invoked for each liveness
	// acknowledgment. It is invoked from the read pump's goroutine.
	OnPong(fn func())

	// Close tears down the connection. Idempotent, best effort.
	Close() error
}

const writeTimeout = 10 * time.Second

// Conn adapts a gorilla websocket connection to Transport. Pings and
// data frames share the session's single writer; pong control frames
// are surfaced through the registered handler during reads.
type Conn struct {
	WS *websocket.Conn
}

func NewConn(ws *websocket.Conn) *Conn {
	return &Conn{WS: ws}
}

func (c *Conn) WriteFrame(payload []byte) error {
	_ = c.WS.SetWriteDeadline(time.Now().Add(writeTimeout))
	return c.WS.WriteMessage(websocket.TextMessage, payload)
}

func (c *Conn) WritePing() error {
	// WriteControl is safe alongside the write pump's WriteMessage.
	return c.WS.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeTimeout))
}

func (c *Conn) ReadFrame() (FrameKind, []byte, error) {
	kind, payload, err := c.WS.ReadMessage()
	if err != nil {
		if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway, websocket.CloseNoStatusReceived) {
			return FrameClose, nil, err
		}
		return FrameOther, nil, err
	}
	switch kind {
	case websocket.TextMessage, websocket.BinaryMessage:
		return FrameData, payload, nil
	default:
		return FrameOther, payload, nil
	}
}

func (c *Conn) OnPong(fn func()) {
	c.WS.SetPongHandler(func(string) error {
		fn()
		return nil
	})
}

func (c *Conn) Close() error {
	return c.WS.Close()
}
