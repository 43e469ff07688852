package hub

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	logx "newswire/pkg/logx"
)

// Server exposes the hub over a websocket endpoint at "/".
type Server struct {
	hub *Hub
	log logx.Logger

	upgrader websocket.Upgrader
	srv      *http.Server
}

func NewServer(h *Hub, log logx.Logger) *Server {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Server{
		hub: h,
		log: log,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			// Consumers are trusted headless clients, not browsers.
			CheckOrigin: func(*http.Request) bool { return true },
		},
	}
}

// ListenAndServe blocks until ctx is done, then shuts the listener down and
// evicts all sessions.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		conn, err := s.upgrader.Upgrade(w, r, nil)
		if err != nil {
			s.log.Warn("websocket upgrade failed", logx.Err(err), logx.String("remote", r.RemoteAddr))
			return
		}
		newSession(s.hub, conn, s.log).run(ctx)
	})

	s.srv = &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() { errCh <- s.srv.ListenAndServe() }()
	s.log.Info("websocket server listening", logx.String("addr", addr))

	select {
	case <-ctx.Done():
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.srv.Shutdown(sctx)
		s.hub.Close()
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}
