package signal

import (
	"context"
	"encoding/json"

	"github.com/rs/zerolog/log"

	"github.com/dkeye/Parley/internal/app"
	"github.com/dkeye/Parley/internal/core"
	"github.com/dkeye/Parley/internal/domain"
)

func (ctl *SignalWSController) handleJoin(ctx context.Context, connID core.ConnID, conn *WsSignalConn, data []byte) {
	var p roomPayload
	if err := json.Unmarshal(data, &p); err != nil {
		ctl.sendError(conn, p.Ref, asInvalid(err))
		return
	}
	gid := domain.GroupID(p.GroupID)
	if gid <= 0 {
		ctl.sendError(conn, p.Ref, domain.ErrInvalidRequest.WithMessage("groupId is required"))
		return
	}
	if err := ctl.Registry.Subscribe(ctx, connID, gid); err != nil {
		log.Info().Str("module", "signal").Str("conn", string(connID)).Int64("group", int64(gid)).Str("code", domain.CodeOf(err)).Msg("join refused")
		ctl.sendError(conn, p.Ref, err)
		return
	}
	ctl.sendJSON(conn, roomEvent{Type: "joined", Ref: p.Ref, GroupID: gid})
}

// handleLeave drops one room subscription; the connection stays open.
func (ctl *SignalWSController) handleLeave(connID core.ConnID, conn *WsSignalConn, data []byte) {
	var p roomPayload
	if err := json.Unmarshal(data, &p); err != nil {
		ctl.sendError(conn, p.Ref, asInvalid(err))
		return
	}
	gid := domain.GroupID(p.GroupID)
	ctl.Registry.Unsubscribe(connID, gid)
	ctl.sendJSON(conn, roomEvent{Type: app.EventLeft, Ref: p.Ref, GroupID: gid, Reason: app.LeftByRequest})
}

func asInvalid(err error) error {
	if domain.CodeOf(err) == domain.CodeInvalidRequest {
		return err
	}
	return domain.ErrInvalidRequest.WithMessage("malformed payload")
}
