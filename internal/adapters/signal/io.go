package signal

import (
	"context"
	"encoding/json"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/Parley/internal/core"
	"github.com/dkeye/Parley/internal/domain"
)

func (ctl *SignalWSController) writePump(ctx context.Context, connID core.ConnID, c *WsSignalConn) {
	ticker := time.NewTicker(ctl.opts.PingPeriod)
	defer func() {
		ticker.Stop()
		c.Close()
	}()
	for {
		select {
		case <-ctx.Done():
			log.Debug().Str("module", "signal").Str("conn", string(connID)).Msg("writePump ctx done")
			return
		case data, ok := <-c.send:
			if !ok {
				log.Debug().Str("module", "signal").Str("conn", string(connID)).Msg("writePump channel closed")
				return
			}
			if err := c.conn.SetWriteDeadline(time.Now().Add(ctl.opts.WriteTimeout)); err != nil {
				log.Error().Err(err).Str("module", "signal").Msg("writePump set deadline")
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				log.Warn().Err(err).Str("module", "signal").Str("conn", string(connID)).Msg("writePump write error")
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(ctl.opts.WriteTimeout))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				log.Warn().Err(err).Str("module", "signal").Str("conn", string(connID)).Msg("writePump ping failed")
				return
			}
		}
	}
}

func (ctl *SignalWSController) readPump(
	ctx context.Context,
	cancel context.CancelFunc,
	connID core.ConnID,
	identity domain.Identity,
	c *WsSignalConn,
) {
	defer func() {
		cancel()
		ctl.Registry.Unbind(connID)
		c.Close()
		log.Info().Str("module", "signal").Str("conn", string(connID)).Msg("readPump closing")
	}()

	pongWait := ctl.opts.pongWait()
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Warn().Err(err).Str("module", "signal").Str("conn", string(connID)).Msg("readPump read error")
			}
			return
		}
		if ctx.Err() != nil {
			return
		}
		_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
		ctl.handleSignal(ctx, connID, identity, c, data)
	}
}

// handleSignal runs one client event to completion before the next frame
// is read, so events from a single connection are applied in order.
func (ctl *SignalWSController) handleSignal(ctx context.Context, connID core.ConnID, identity domain.Identity, c *WsSignalConn, data []byte) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		log.Debug().Err(err).Str("module", "signal").Msg("bad json")
		ctl.sendError(c, "", domain.ErrInvalidRequest.WithMessage("malformed payload"))
		return
	}

	// Operations run to completion even if the client goes away mid-way.
	opCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), ctl.opts.OpTimeout)
	defer cancel()

	switch env.Type {
	case "joinRoom":
		ctl.handleJoin(opCtx, connID, c, data)
	case "leaveRoom":
		ctl.handleLeave(connID, c, data)
	case "sendMessage":
		ctl.handleSend(opCtx, identity, c, data)
	case "ping":
		ctl.handlePing(c)
	case "auth":
		ctl.sendError(c, env.Ref, domain.ErrInvalidRequest.WithMessage("already authenticated"))
	default:
		log.Debug().Str("module", "signal").Str("type", env.Type).Msg("unknown signal")
		ctl.sendError(c, env.Ref, domain.ErrInvalidRequest.WithMessage("unknown event type"))
	}
}

func (ctl *SignalWSController) sendJSON(c *WsSignalConn, v any) {
	b, err := json.Marshal(v)
	if err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("sendJSON marshal")
		return
	}
	_ = c.TrySend(b)
}

func (ctl *SignalWSController) sendError(c *WsSignalConn, ref string, err error) {
	ctl.sendJSON(c, newErrorEvent(ref, err))
}
