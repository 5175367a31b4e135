// Package server is the transport adapter: it accepts WebSocket connections,
// splits inbound frames into JSON control messages and binary PCM audio, and
// wires each connection into the room fabric and the speaker stream manager.
//
// Each connection runs one reader task and, once it has joined a session, one
// writer task draining its room listener's outbound queue. Protocol errors
// drop the offending frame and keep the connection alive; the connection only
// dies on transport errors, session teardown, or client close.
package server

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/coder/websocket"
	"github.com/google/uuid"

	"github.com/lingostream/lingostream/internal/meeting"
	"github.com/lingostream/lingostream/internal/pipeline"
	"github.com/lingostream/lingostream/internal/room"
)

// DefaultReadLimit caps a single inbound frame at 10 MB. Oversized frames
// are dropped like any other protocol error; the connection stays open.
const DefaultReadLimit = 10 << 20

// readLimitSlack is the transport's headroom above the frame cap, letting an
// oversized frame be read and discarded instead of failing the read.
const readLimitSlack = 1 << 20

// writeTimeout bounds a single outbound frame write.
const writeTimeout = 10 * time.Second

// Config wires a Server to its collaborators.
type Config struct {
	// Registry is the room fabric connections join and broadcasts flow
	// through.
	Registry *room.Registry

	// Directory resolves sessions and participants for joins, bindings, and
	// audio authorization.
	Directory meeting.Directory

	// Streams owns the speaker streams audio frames are written to.
	Streams *pipeline.Manager

	// Limiter rate-caps binary ingress per participant. Nil constructs one
	// with the default frame gap.
	Limiter *room.IngressLimiter

	// Logger receives structured events. Nil falls back to slog.Default.
	Logger *slog.Logger

	// ReadLimit is the maximum inbound frame size in bytes. Non-positive
	// falls back to DefaultReadLimit.
	ReadLimit int64

	// SendBuffer is the per-listener outbound queue depth. Non-positive
	// falls back to room.DefaultSendBuffer.
	SendBuffer int

	// OriginPatterns is passed to the WebSocket accept handshake. Empty
	// restricts connections to same-origin clients.
	OriginPatterns []string
}

// Server accepts duplex connections at a single endpoint. It implements
// http.Handler.
type Server struct {
	cfg    Config
	logger *slog.Logger
}

// Compile-time interface check.
var _ http.Handler = (*Server)(nil)

// New validates cfg and constructs a Server.
func New(cfg Config) (*Server, error) {
	if cfg.Registry == nil {
		return nil, errors.New("server: Registry must not be nil")
	}
	if cfg.Directory == nil {
		return nil, errors.New("server: Directory must not be nil")
	}
	if cfg.Streams == nil {
		return nil, errors.New("server: Streams must not be nil")
	}
	if cfg.Limiter == nil {
		cfg.Limiter = room.NewIngressLimiter(0)
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.ReadLimit <= 0 {
		cfg.ReadLimit = DefaultReadLimit
	}
	return &Server{cfg: cfg, logger: cfg.Logger}, nil
}

// ServeHTTP upgrades the request to a WebSocket and services it until the
// connection dies.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ws, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: s.cfg.OriginPatterns,
	})
	if err != nil {
		s.logger.Warn("websocket accept failed", "error", err)
		return
	}
	ws.SetReadLimit(s.cfg.ReadLimit + readLimitSlack)

	c := &conn{
		srv:    s,
		ws:     ws,
		logger: s.logger.With("conn_id", uuid.NewString()),
	}
	c.run(r.Context())
}
