// Package ws accepts websocket connections and runs the per-session
// receive loop. Each connection gets a writer goroutine draining an
// outbox channel; inbound frames are decoded into protocol envelopes and
// dispatched to the session.
package ws

import (
	"context"
	"net/http"
	"time"

	"github.com/coder/websocket"
	"go.uber.org/zap"

	"github.com/fwiko/multiplayer-quiz/internal/protocol"
	"github.com/fwiko/multiplayer-quiz/internal/registry"
	"github.com/fwiko/multiplayer-quiz/internal/session"
)

const (
	writeTimeout = 3 * time.Second
	outboxSize   = 32
)

// Handler upgrades the request and services the connection until the
// peer disconnects. A connection fault is fatal to this session only.
func Handler(reg *registry.Registry, log *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := websocket.Accept(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close(websocket.StatusNormalClosure, "bye")

		out := newOutbox(r.Context(), conn, log)
		defer out.stop()

		s := session.New(reg, out, log)
		defer reg.OnSessionDisconnected(s)

		for {
			_, data, err := conn.Read(r.Context())
			if err != nil {
				// Clean close or read fault, either way this session
				// is done; cleanup runs in the deferred disconnect.
				return
			}
			env, err := protocol.Decode(data)
			if err != nil {
				// Malformed frames are dropped; the loop continues.
				log.Debug("dropped malformed frame", zap.Error(err))
				continue
			}
			s.HandleEnvelope(env)
		}
	}
}

// outbox serializes writes to one connection. Send never blocks the
// caller: when the channel is full the notification is dropped.
type outbox struct {
	conn   *websocket.Conn
	frames chan []byte
	ctx    context.Context
	cancel context.CancelFunc
	log    *zap.Logger
}

func newOutbox(parent context.Context, conn *websocket.Conn, log *zap.Logger) *outbox {
	ctx, cancel := context.WithCancel(parent)
	o := &outbox{
		conn:   conn,
		frames: make(chan []byte, outboxSize),
		ctx:    ctx,
		cancel: cancel,
		log:    log,
	}
	go o.writeLoop()
	return o
}

// Send implements session.Sender.
func (o *outbox) Send(header string, data any) {
	frame, err := protocol.Encode(header, data)
	if err != nil {
		o.log.Error("encode frame", zap.String("header", header), zap.Error(err))
		return
	}
	select {
	case o.frames <- frame:
	default:
		o.log.Warn("outbox full, dropping frame", zap.String("header", header))
	}
}

func (o *outbox) stop() { o.cancel() }

func (o *outbox) writeLoop() {
	for {
		select {
		case <-o.ctx.Done():
			return
		case frame := <-o.frames:
			ctx, cancel := context.WithTimeout(o.ctx, writeTimeout)
			err := o.conn.Write(ctx, websocket.MessageText, frame)
			cancel()
			if err != nil {
				return
			}
		}
	}
}
