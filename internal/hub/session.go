package hub

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	logx "newswire/pkg/logx"
)

// Keepalive settings mirror the upstream protocol: ping every 20s, peer has
// another ping interval to answer before the read deadline trips.
const (
	pingInterval = 20 * time.Second
	pongWait     = 2 * pingInterval
	writeWait    = 10 * time.Second
	maxFrameSize = 1 << 20
)

// session is the server side of one subscriber connection.
// Lifecycle: connecting -> active (registered, history page 1 sent) -> closed.
type session struct {
	hub    *Hub
	conn   *websocket.Conn
	log    logx.Logger
	remote string

	// writeMu serializes outbound frames: broadcasts, history replies and
	// pings race on the same connection.
	writeMu sync.Mutex

	closeOnce sync.Once
}

func newSession(h *Hub, conn *websocket.Conn, log logx.Logger) *session {
	remote := conn.RemoteAddr().String()
	return &session{
		hub:    h,
		conn:   conn,
		log:    log.With(logx.String("remote", remote)),
		remote: remote,
	}
}

// run drives the session until the connection dies or ctx is cancelled.
// It always leaves the session unregistered and the connection closed.
func (s *session) run(ctx context.Context) {
	defer s.close()
	defer s.hub.unregister(s)

	if !s.hub.register(s) {
		return
	}
	s.log.Info("subscriber connected")

	// Hand the newest history page to the client immediately; a failure here
	// means the connection is already broken.
	hctx, cancel := context.WithTimeout(ctx, writeWait)
	msg, err := s.hub.History(hctx, 1)
	cancel()
	if err == nil {
		err = s.send(msg)
	}
	if err != nil {
		s.log.Warn("initial history failed", logx.Err(err))
		return
	}

	stopPing := s.startPing(ctx)
	defer stopPing()

	s.readLoop(ctx)
	s.log.Info("subscriber disconnected")
}

func (s *session) readLoop(ctx context.Context) {
	s.conn.SetReadLimit(maxFrameSize)
	_ = s.conn.SetReadDeadline(time.Now().Add(pongWait))
	s.conn.SetPongHandler(func(string) error {
		return s.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		if ctx.Err() != nil {
			return
		}
		_, data, err := s.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				s.log.Debug("read failed", logx.Err(err))
			}
			return
		}
		s.handleCommand(ctx, data)
	}
}

// handleCommand dispatches one inbound control frame. Malformed frames are
// logged and ignored; the connection stays open.
func (s *session) handleCommand(ctx context.Context, data []byte) {
	var cmd ClientCommand
	if err := json.Unmarshal(data, &cmd); err != nil {
		s.log.Warn("malformed client message", logx.Err(err))
		return
	}

	switch cmd.Action {
	case ActionGetPage:
		page := cmd.Page
		if page < 1 {
			page = 1
		}
		hctx, cancel := context.WithTimeout(ctx, writeWait)
		msg, err := s.hub.History(hctx, page)
		cancel()
		if err != nil {
			// The client can simply re-request; never kill the session here.
			s.log.Warn("history lookup failed", logx.Int("page", page), logx.Err(err))
			return
		}
		if err := s.send(msg); err != nil {
			s.log.Debug("history send failed", logx.Err(err))
			s.close()
			return
		}
		s.log.Debug("history page served", logx.Int("page", page))

	case ActionReload:
		s.log.Info("out-of-band cycle requested")
		if s.hub.runNow != nil {
			s.hub.runNow()
		}

	default:
		s.log.Warn("unknown client action", logx.String("action", cmd.Action))
	}
}

func (s *session) startPing(ctx context.Context) (stop func()) {
	done := make(chan struct{})
	go func() {
		t := time.NewTicker(pingInterval)
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-done:
				return
			case <-t.C:
				s.writeMu.Lock()
				_ = s.conn.SetWriteDeadline(time.Now().Add(writeWait))
				err := s.conn.WriteMessage(websocket.PingMessage, nil)
				s.writeMu.Unlock()
				if err != nil {
					s.close()
					return
				}
			}
		}
	}()
	var once sync.Once
	return func() { once.Do(func() { close(done) }) }
}

func (s *session) send(v any) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	_ = s.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return s.conn.WriteJSON(v)
}

func (s *session) close() {
	s.closeOnce.Do(func() {
		_ = s.conn.Close()
	})
}
