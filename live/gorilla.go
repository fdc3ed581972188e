package live

import (
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	writeWait      = 10 * time.Second
	maxMessageSize = 64 * 1024
)

// GorillaConn adapts a gorilla websocket to Conn. Control frames from the
// peer are surfaced as frames instead of being answered automatically.
type GorillaConn struct {
	ws *websocket.Conn

	frames  chan Frame
	readErr error

	// writeLock serializes data frames; gorilla allows one concurrent writer.
	writeLock sync.Mutex

	closing   chan struct{}
	closeOnce sync.Once
	closeErr  error
}

// NewGorillaConn starts reading from ws in the background.
func NewGorillaConn(ws *websocket.Conn) *GorillaConn {
	c := &GorillaConn{
		ws:      ws,
		frames:  make(chan Frame, 16),
		closing: make(chan struct{}),
	}
	ws.SetReadLimit(maxMessageSize)
	ws.SetPingHandler(func(data string) error {
		c.push(Frame{Kind: PingFrame, Payload: []byte(data)})
		return nil
	})
	ws.SetPongHandler(func(data string) error {
		c.push(Frame{Kind: PongFrame, Payload: []byte(data)})
		return nil
	})
	ws.SetCloseHandler(func(code int, text string) error {
		c.push(Frame{Kind: CloseFrame, Payload: websocket.FormatCloseMessage(code, text)})
		return nil
	})
	go c.readLoop()
	return c
}

func (c *GorillaConn) readLoop() {
	defer close(c.frames)
	for {
		mt, data, err := c.ws.ReadMessage()
		if err != nil {
			var closeErr *websocket.CloseError
			if errors.As(err, &closeErr) {
				err = io.EOF
			}
			c.readErr = err
			return
		}
		kind := BinaryFrame
		if mt == websocket.TextMessage {
			kind = TextFrame
		}
		if !c.push(Frame{Kind: kind, Payload: data}) {
			c.readErr = io.EOF
			return
		}
	}
}

func (c *GorillaConn) push(f Frame) bool {
	select {
	case c.frames <- f:
		return true
	case <-c.closing:
		return false
	}
}

func (c *GorillaConn) ReadFrame() (Frame, error) {
	f, ok := <-c.frames
	if !ok {
		return Frame{}, c.readErr
	}
	return f, nil
}

func (c *GorillaConn) WriteFrame(f Frame) error {
	switch f.Kind {
	case TextFrame, BinaryFrame:
		mt := websocket.BinaryMessage
		if f.Kind == TextFrame {
			mt = websocket.TextMessage
		}
		c.writeLock.Lock()
		defer c.writeLock.Unlock()
		if err := c.ws.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
			return err
		}
		return c.ws.WriteMessage(mt, f.Payload)
	case PingFrame:
		return c.ws.WriteControl(websocket.PingMessage, f.Payload, time.Now().Add(writeWait))
	case PongFrame:
		return c.ws.WriteControl(websocket.PongMessage, f.Payload, time.Now().Add(writeWait))
	case CloseFrame:
		return c.ws.WriteControl(websocket.CloseMessage, f.Payload, time.Now().Add(writeWait))
	}
	return fmt.Errorf("live: unsupported frame kind %v", f.Kind)
}

// Close sends a normal closure frame and closes the socket. Later calls
// return the first result.
func (c *GorillaConn) Close() error {
	c.closeOnce.Do(func() {
		close(c.closing)
		msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
		// Best effort; the peer may already be gone.
		_ = c.ws.WriteControl(websocket.CloseMessage, msg, time.Now().Add(writeWait))
		c.closeErr = c.ws.Close()
	})
	return c.closeErr
}
