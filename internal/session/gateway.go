package session

import (
	"context"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/google/uuid"

	"github.com/navai/interview-server/internal/identity"
)

const (
	// maxMessageBytes bounds one inbound frame. Screen-share frames
	// arrive base64-encoded and routinely run into the megabytes.
	maxMessageBytes = 8 << 20

	sendQueueSize = 256
)

// GatewayConfig tunes the WebSocket endpoint.
type GatewayConfig struct {
	// AllowedOrigin is the browser origin allowed to connect. "*"
	// allows any.
	AllowedOrigin string
	// DevMode skips origin checks entirely.
	DevMode bool
	// KeepaliveInterval spaces server keepalive events while the
	// connection idles. Zero disables them.
	KeepaliveInterval time.Duration
	// Session carries the per-session tunables.
	Session Options
}

// Gateway terminates interview WebSocket connections: one accepted
// connection becomes one Session, with a single writer goroutine
// preserving the order events were submitted in.
type Gateway struct {
	deps     Deps
	cfg      GatewayConfig
	registry *Registry
	logger   *slog.Logger
}

// NewGateway creates the WebSocket handler.
func NewGateway(deps Deps, cfg GatewayConfig, registry *Registry, logger *slog.Logger) *Gateway {
	if logger == nil {
		logger = slog.Default()
	}
	return &Gateway{
		deps:     deps,
		cfg:      cfg,
		registry: registry,
		logger:   logger,
	}
}

// ServeHTTP upgrades the connection and runs the session until either
// side goes away.
func (g *Gateway) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ownerID := identity.OwnerIDFromContext(r.Context())

	if !g.checkOrigin(r) {
		http.Error(w, "origin not allowed", http.StatusForbidden)
		return
	}

	ws, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: []string{"*"},
	})
	if err != nil {
		g.logger.Error("[GATEWAY] failed to accept websocket", "error", err, "ip", identity.IPFromRequest(r))
		return
	}
	ws.SetReadLimit(maxMessageBytes)

	id := uuid.NewString()
	logger := g.logger.With("session_id", id)
	logger.Info("[GATEWAY] connection accepted", "owner_id", ownerID, "ip", identity.IPFromRequest(r))

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	out := make(chan Event, sendQueueSize)
	sess := New(ctx, id, ownerID, g.deps, g.cfg.Session, func(ev Event) {
		enqueueEvent(out, ev, logger)
	})

	g.registry.Add(sess)
	defer g.registry.Remove(id, sess)

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		defer cancel()
		g.writeLoop(ctx, ws, out, logger)
	}()
	go func() {
		defer wg.Done()
		sess.Run()
	}()

	// Read loop: client -> session. A read error is the one fatal
	// error class; everything else the session absorbs.
	g.readLoop(ctx, ws, sess, logger)

	cancel()
	sess.Close()
	wg.Wait()

	if err := ws.Close(websocket.StatusNormalClosure, "session ended"); err != nil {
		logger.Debug("[GATEWAY] websocket close", "error", err)
	}
	logger.Info("[GATEWAY] connection closed")
}

func (g *Gateway) checkOrigin(r *http.Request) bool {
	if g.cfg.DevMode {
		return true
	}
	origin := r.Header.Get("Origin")
	if origin == "" || g.cfg.AllowedOrigin == "*" {
		return true
	}
	if origin == g.cfg.AllowedOrigin {
		return true
	}
	g.logger.Warn("[GATEWAY] origin rejected", "origin", origin, "allowed", g.cfg.AllowedOrigin)
	return false
}

func (g *Gateway) readLoop(ctx context.Context, ws *websocket.Conn, sess *Session, logger *slog.Logger) {
	for {
		_, raw, err := ws.Read(ctx)
		if err != nil {
			if websocket.CloseStatus(err) != -1 {
				logger.Debug("[GATEWAY] closed by client")
			} else if ctx.Err() == nil {
				logger.Warn("[GATEWAY] read error", "error", err)
			}
			return
		}

		msg, err := DecodeInbound(raw)
		if err != nil {
			// Bad input never crashes the session.
			logger.Warn("[GATEWAY] dropping message", "error", err, "bytes", len(raw))
			continue
		}
		sess.Deliver(msg)
	}
}

// writeLoop is the only goroutine writing to the socket. It drains the
// send queue in order and interleaves keepalives while idle.
func (g *Gateway) writeLoop(ctx context.Context, ws *websocket.Conn, out <-chan Event, logger *slog.Logger) {
	var keepalive <-chan time.Time
	if g.cfg.KeepaliveInterval > 0 {
		ticker := time.NewTicker(g.cfg.KeepaliveInterval)
		defer ticker.Stop()
		keepalive = ticker.C
	}

	for {
		select {
		case <-ctx.Done():
			return
		case ev := <-out:
			if !g.writeEvent(ctx, ws, ev, logger) {
				return
			}
		case <-keepalive:
			if !g.writeEvent(ctx, ws, Event{Type: EventKeepalive}, logger) {
				return
			}
		}
	}
}

func (g *Gateway) writeEvent(ctx context.Context, ws *websocket.Conn, ev Event, logger *slog.Logger) bool {
	data, err := encodeEvent(ev)
	if err != nil {
		logger.Error("[GATEWAY] encode event failed", "type", ev.Type, "error", err)
		return true
	}
	if err := ws.Write(ctx, websocket.MessageText, data); err != nil {
		if ctx.Err() == nil {
			logger.Debug("[GATEWAY] write failed", "type", ev.Type, "error", err)
		}
		return false
	}
	return true
}

// enqueueEvent adds to the send queue without ever blocking the session
// loop. A full queue means the client is not draining; the oldest event
// is dropped to keep the stream moving. Delivered events stay in order.
func enqueueEvent(out chan Event, ev Event, logger *slog.Logger) {
	select {
	case out <- ev:
		return
	default:
	}

	select {
	case dropped := <-out:
		logger.Warn("[GATEWAY] send queue full, dropped oldest event", "dropped_type", dropped.Type)
	default:
	}

	select {
	case out <- ev:
	default:
		logger.Warn("[GATEWAY] send queue still full, dropped event", "type", ev.Type)
	}
}
