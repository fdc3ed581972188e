package live

import (
	"context"
	"errors"
	"io"
	"time"

	log "github.com/sirupsen/logrus"

	"board-service/domain"
	"board-service/eventbus"
)

// Handler runs viewer sessions against a bus.
type Handler struct {
	bus    *eventbus.Bus
	logger *log.Logger

	// PingInterval, when positive, makes the server ping idle viewers.
	PingInterval time.Duration
}

func NewHandler(bus *eventbus.Bus, logger *log.Logger) *Handler {
	if logger == nil {
		logger = log.StandardLogger()
	}
	return &Handler{bus: bus, logger: logger}
}

type inbound struct {
	frame Frame
	err   error
}

// Serve relays events of boardID to conn until the viewer leaves, a write
// fails or ctx is cancelled. On return the subscription is released, the
// board topic is cleaned up and conn is closed.
func (h *Handler) Serve(ctx context.Context, boardID, userID string, conn Conn) {
	logger := h.logger.WithFields(log.Fields{"board": boardID, "user": userID})
	sub := h.bus.Subscribe(boardID)
	logger.Info("viewer connected")

	done := make(chan struct{})
	defer func() {
		close(done)
		sub.Close()
		h.bus.CleanupBoard(boardID)
		if err := conn.Close(); err != nil {
			logger.WithError(err).Debug("close connection")
		}
		logger.Info("viewer disconnected")
	}()

	frames := make(chan inbound)
	go readPump(conn, frames, done)

	var ping <-chan time.Time
	if h.PingInterval > 0 {
		ticker := time.NewTicker(h.PingInterval)
		defer ticker.Stop()
		ping = ticker.C
	}

	for {
		select {
		case <-ctx.Done():
			logger.Debug("session cancelled")
			return

		case ev, ok := <-sub.Events():
			if !ok {
				return
			}
			if lag := sub.Lagged(); lag != nil {
				logger.WithError(lag).WithField("missed", lag.Missed).Warn("viewer lagged behind")
			}
			data, err := domain.EncodeEvent(ev)
			if err != nil {
				logger.WithError(err).WithField("type", ev.Type).Error("encode event")
				continue
			}
			if err := conn.WriteFrame(Frame{Kind: TextFrame, Payload: data}); err != nil {
				logger.WithError(err).Debug("write event")
				return
			}

		case in := <-frames:
			if in.err != nil {
				if !errors.Is(in.err, io.EOF) {
					logger.WithError(in.err).Warn("read frame")
				}
				return
			}
			switch in.frame.Kind {
			case PingFrame:
				if err := conn.WriteFrame(Frame{Kind: PongFrame, Payload: in.frame.Payload}); err != nil {
					logger.WithError(err).Debug("write pong")
					return
				}
			case CloseFrame:
				return
			case PongFrame:
			default:
				logger.WithField("kind", in.frame.Kind).Debug("ignoring viewer message")
			}

		case <-ping:
			if err := conn.WriteFrame(Frame{Kind: PingFrame}); err != nil {
				logger.WithError(err).Debug("write ping")
				return
			}
		}
	}
}

// readPump forwards frames until the connection fails or the session ends.
func readPump(conn Conn, out chan<- inbound, done <-chan struct{}) {
	for {
		f, err := conn.ReadFrame()
		select {
		case out <- inbound{frame: f, err: err}:
		case <-done:
			return
		}
		if err != nil {
			return
		}
	}
}
