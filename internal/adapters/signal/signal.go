package signal

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/Parley/internal/app"
	"github.com/dkeye/Parley/internal/config"
	"github.com/dkeye/Parley/internal/core"
	"github.com/dkeye/Parley/internal/domain"
)

type Options struct {
	AuthTimeout  time.Duration
	ReadLimit    int64
	PingPeriod   time.Duration
	SendBuffer   int
	WriteTimeout time.Duration
	OpTimeout    time.Duration
}

func OptionsFromConfig(cfg *config.Config) Options {
	return Options{
		AuthTimeout:  cfg.Auth.Timeout,
		ReadLimit:    cfg.WS.ReadLimit,
		PingPeriod:   cfg.WS.PingPeriod,
		SendBuffer:   cfg.WS.SendBuffer,
		WriteTimeout: cfg.WS.WriteTimeout,
		OpTimeout:    cfg.WS.OpTimeout,
	}
}

func (o Options) pongWait() time.Duration { return o.PingPeriod * 10 / 9 }

type SignalWSController struct {
	Verifier core.CredentialVerifier
	Registry *app.Registry
	Pipeline *app.Pipeline
	opts     Options
}

func NewSignalWSController(verifier core.CredentialVerifier, registry *app.Registry, pipeline *app.Pipeline, opts Options) *SignalWSController {
	return &SignalWSController{
		Verifier: verifier,
		Registry: registry,
		Pipeline: pipeline,
		opts:     opts,
	}
}

// WsSignalConn queues outbound frames for a single writer goroutine.
type WsSignalConn struct {
	conn *websocket.Conn
	send chan core.Frame

	mu     sync.RWMutex
	closed bool
}

func newWsSignalConn(ws *websocket.Conn, buffer int) *WsSignalConn {
	return &WsSignalConn{conn: ws, send: make(chan core.Frame, buffer)}
}

func (c *WsSignalConn) TrySend(f core.Frame) error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return core.ErrConnClosed
	}
	select {
	case c.send <- f:
	default:
		return core.ErrBackpressure
	}
	return nil
}

func (c *WsSignalConn) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	close(c.send)
	_ = c.conn.Close()
	c.mu.Unlock()
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// BearerToken extracts the token from an Authorization header value.
func BearerToken(header string) string {
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}

// HandleSignal upgrades the request. A token in the Authorization header or
// the token query parameter is verified before the upgrade; without one the
// client must send an auth frame within the auth timeout.
func (ctl *SignalWSController) HandleSignal(ctx context.Context, c *gin.Context) {
	var identity *domain.Identity
	token := BearerToken(c.GetHeader("Authorization"))
	if token == "" {
		token = c.Query("token")
	}
	if token != "" {
		id, err := ctl.Verifier.Verify(c.Request.Context(), token)
		if err != nil {
			log.Info().Str("module", "signal").Str("remote", c.ClientIP()).Msg("ws handshake rejected")
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": domain.CodeUnauthenticated})
			return
		}
		identity = &id
	}

	ws, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("ws upgrade")
		return
	}
	go ctl.serve(ctx, ws, identity)
}

func (ctl *SignalWSController) serve(ctx context.Context, ws *websocket.Conn, identity *domain.Identity) {
	ws.SetReadLimit(ctl.opts.ReadLimit)
	if identity == nil {
		id, ok := ctl.awaitAuth(ctx, ws)
		if !ok {
			return
		}
		identity = &id
	}

	conn := newWsSignalConn(ws, ctl.opts.SendBuffer)
	connID := core.ConnID(uuid.NewString())
	if _, err := ctl.Registry.Bind(connID, *identity, conn); err != nil {
		log.Error().Err(err).Str("module", "signal").Str("conn", string(connID)).Msg("bind failed")
		conn.Close()
		return
	}
	log.Info().
		Str("module", "signal").
		Str("conn", string(connID)).
		Int64("user", int64(identity.UserID)).
		Msg("new WS connection")

	ctx, cancel := context.WithCancel(ctx)
	go ctl.writePump(ctx, connID, conn)
	ctl.sendJSON(conn, authenticatedEvent{
		Type:     "authenticated",
		UserID:   identity.UserID,
		Username: identity.DisplayName,
	})
	ctl.readPump(ctx, cancel, connID, *identity, conn)
}

// awaitAuth reads the first frame, which must be an auth event carrying a
// valid token. Anything else within the window closes the connection.
func (ctl *SignalWSController) awaitAuth(ctx context.Context, ws *websocket.Conn) (domain.Identity, bool) {
	_ = ws.SetReadDeadline(time.Now().Add(ctl.opts.AuthTimeout))
	_, data, err := ws.ReadMessage()
	if err != nil {
		log.Info().Err(err).Str("module", "signal").Msg("no auth frame before timeout")
		ctl.reject(ws, "", domain.ErrUnauthenticated)
		return domain.Identity{}, false
	}
	var p authPayload
	if err := json.Unmarshal(data, &p); err != nil || p.Type != "auth" {
		ctl.reject(ws, p.Ref, domain.ErrUnauthenticated)
		return domain.Identity{}, false
	}

	vctx, cancel := context.WithTimeout(ctx, ctl.opts.OpTimeout)
	defer cancel()
	id, err := ctl.Verifier.Verify(vctx, p.Token)
	if err != nil {
		ctl.reject(ws, p.Ref, domain.ErrUnauthenticated)
		return domain.Identity{}, false
	}
	_ = ws.SetReadDeadline(time.Time{})
	return id, true
}

// reject writes an error and closes. Only valid before the write pump runs.
func (ctl *SignalWSController) reject(ws *websocket.Conn, ref string, err error) {
	_ = ws.SetWriteDeadline(time.Now().Add(ctl.opts.WriteTimeout))
	_ = ws.WriteJSON(newErrorEvent(ref, err))
	_ = ws.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.ClosePolicyViolation, domain.CodeUnauthenticated))
	_ = ws.Close()
}
