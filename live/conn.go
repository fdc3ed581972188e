// Package live relays board events to connected viewers.
package live

// FrameKind identifies the type of a Frame.
type FrameKind int

const (
	TextFrame FrameKind = iota + 1
	BinaryFrame
	PingFrame
	PongFrame
	CloseFrame
)

func (k FrameKind) String() string {
	switch k {
	case TextFrame:
		return "text"
	case BinaryFrame:
		return "binary"
	case PingFrame:
		return "ping"
	case PongFrame:
		return "pong"
	case CloseFrame:
		return "close"
	}
	return "unknown"
}

// Frame is a single message on a viewer's connection.
type Frame struct {
	Kind    FrameKind
	Payload []byte
}

// Conn is a bidirectional viewer session. ReadFrame is only called from one
// goroutine; WriteFrame and Close may be called concurrently with it.
// ReadFrame returns io.EOF once the peer is gone.
type Conn interface {
	ReadFrame() (Frame, error)
	WriteFrame(Frame) error
	Close() error
}
