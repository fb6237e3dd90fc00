// Package server exposes the websocket streaming endpoint along with the
// health and metrics surface, all behind shared request instrumentation.
package server

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/coder/websocket"

	"github.com/hearsay-live/hearsay/internal/health"
	"github.com/hearsay-live/hearsay/internal/observe"
	"github.com/hearsay-live/hearsay/internal/session"
)

// maxFrameBytes raises the read limit above the library default: clients
// that buffer a second of PCM or ship a WAV header frame exceed 32 KiB.
const maxFrameBytes = 1 << 20

// invalidTokenStatus is the application close code for failed stream auth.
const invalidTokenStatus = websocket.StatusCode(4001)

// Config assembles the server's collaborators.
type Config struct {
	// Sessions builds and tracks per-connection sessions. Required.
	Sessions *session.Manager

	// JWTSecret verifies stream tokens. Required.
	JWTSecret string

	// Health serves the liveness and readiness probes. Optional.
	Health *health.Handler

	// Metrics serves GET /metrics. Optional.
	Metrics http.Handler

	// Logger for connection diagnostics. Defaults to slog.Default().
	Logger *slog.Logger
}

// Server terminates websocket connections and hands their traffic to
// sessions.
type Server struct {
	cfg     Config
	log     *slog.Logger
	metrics *observe.Metrics
}

// New validates cfg and returns the server.
func New(cfg Config) (*Server, error) {
	if cfg.Sessions == nil {
		return nil, errors.New("server: config needs a session manager")
	}
	if cfg.JWTSecret == "" {
		return nil, errors.New("server: config needs a jwt secret")
	}
	log := cfg.Logger
	if log == nil {
		log = slog.Default()
	}
	return &Server{
		cfg:     cfg,
		log:     log.With("component", "server"),
		metrics: observe.DefaultMetrics(),
	}, nil
}

// Handler returns the full HTTP surface wrapped in request instrumentation.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /ws/stream/{token}", s.handleStream)
	if s.cfg.Health != nil {
		s.cfg.Health.Register(mux)
	}
	if s.cfg.Metrics != nil {
		mux.Handle("GET /metrics", s.cfg.Metrics)
	}
	return observe.Middleware(s.metrics)(mux)
}

// handleStream upgrades the connection, authenticates the path token, and
// runs the read loop until the peer goes away. Auth happens after the
// upgrade so the failure reaches the client as a proper close frame.
func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		// The token in the path is the whole auth story; an Origin check
		// would only lock out the desktop clients.
		InsecureSkipVerify: true,
	})
	if err != nil {
		s.log.Warn("websocket accept failed", "remote", r.RemoteAddr, "error", err)
		return
	}
	conn.SetReadLimit(maxFrameBytes)

	userID, err := authenticate(r.PathValue("token"), s.cfg.JWTSecret)
	if err != nil {
		s.log.Warn("stream auth failed", "remote", r.RemoteAddr, "error", err)
		conn.Close(invalidTokenStatus, "Invalid token")
		return
	}

	sess := s.cfg.Sessions.Open(userID, newWSClient(conn))
	s.log.Info("stream connected", "user_id", userID, "remote", r.RemoteAddr)
	defer func() {
		// The session finishes persistence on its own clock; a vanished
		// client never cancels translations or the audio save.
		s.cfg.Sessions.Release(context.Background(), sess)
		conn.Close(websocket.StatusNormalClosure, "session closed")
		s.log.Info("stream disconnected", "user_id", userID)
	}()

	ctx := r.Context()
	for {
		typ, data, err := conn.Read(ctx)
		if err != nil {
			if status := websocket.CloseStatus(err); status == websocket.StatusNormalClosure || status == websocket.StatusGoingAway {
				s.log.Debug("stream closed by peer", "user_id", userID, "status", status)
			} else {
				s.log.Info("stream read ended", "user_id", userID, "error", err)
			}
			return
		}
		s.metrics.RecordWSMessage(ctx, "in")

		switch typ {
		case websocket.MessageBinary:
			sess.HandleBinary(data)
		case websocket.MessageText:
			sess.HandleText(ctx, data)
		}
	}
}
