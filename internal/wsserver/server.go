// Package wsserver implements the WebSocket command server: one HTTP
// upgrade endpoint, an origin allow-list policy, and a per-connection
// read-dispatch-reply loop covering the nine inbound command types.
package wsserver

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

// MaxFrameBytes bounds a single inbound WebSocket frame. Spec 9 leaves this
// unbounded in the source and flags it as an open resource-exhaustion
// question; 8 MiB comfortably covers a full-page raster print job's base64
// payload while capping what one malicious or buggy peer can force onto the
// heap per frame.
const MaxFrameBytes = 8 << 20

// Server upgrades HTTP connections to WebSocket and runs one dispatch loop
// per accepted connection.
type Server struct {
	AllowedOrigins []string
	log            zerolog.Logger
	dispatcher     *Dispatcher

	upgrader websocket.Upgrader
}

// New builds a Server. allowedOrigins may be empty, meaning "accept any
// origin" — each connection accepted this way logs a warning.
func New(allowedOrigins []string, dispatcher *Dispatcher, log zerolog.Logger) *Server {
	s := &Server{
		AllowedOrigins: allowedOrigins,
		log:            log.With().Str("component", "wsserver").Logger(),
		dispatcher:     dispatcher,
	}
	s.upgrader = websocket.Upgrader{
		ReadBufferSize:  4096,
		WriteBufferSize: 4096,
		CheckOrigin:     s.checkOrigin,
	}
	return s
}

// checkOrigin always accepts localhost/127.0.0.1, otherwise accepts only
// origins in the configured allow-list, or everything when the allow-list
// is empty.
func (s *Server) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if strings.HasPrefix(origin, "http://localhost:") || strings.HasPrefix(origin, "http://127.0.0.1:") {
		return true
	}
	if len(s.AllowedOrigins) == 0 {
		s.log.Warn().Str("origin", origin).Msg("no allowed-origins configured, accepting connection")
		return true
	}
	for _, allowed := range s.AllowedOrigins {
		if allowed == origin {
			return true
		}
	}
	s.log.Warn().Str("origin", origin).Msg("rejected connection: origin not in allow-list")
	return false
}

// ServeHTTP upgrades the request and runs the connection's read loop until
// it closes, matching http.Handler so callers mount it with net/http's
// ServeMux the way the rest of the ambient stack expects.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Debug().Err(err).Msg("upgrade failed")
		return
	}
	conn.SetReadLimit(MaxFrameBytes)

	sessionID := uuid.NewString()
	log := s.log.With().Str("session", sessionID).Logger()
	log.Info().Str("remote", r.RemoteAddr).Msg("connection accepted")

	s.handleConnection(r.Context(), conn, log)
}

func (s *Server) handleConnection(ctx context.Context, conn *websocket.Conn, log zerolog.Logger) {
	defer conn.Close()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			log.Debug().Err(err).Msg("connection closed")
			return
		}

		reply, ok := s.dispatcher.Dispatch(ctx, data, log)
		if !ok {
			// Malformed frame or missing integer id: silently dropped
			// rather than answered, since there's no id to reply against.
			continue
		}

		conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
		if err := conn.WriteJSON(reply); err != nil {
			log.Debug().Err(err).Msg("write reply failed")
			return
		}
	}
}
