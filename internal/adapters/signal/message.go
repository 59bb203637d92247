package signal

import (
	"context"
	"encoding/json"

	"github.com/dkeye/Parley/internal/domain"
)

// handleSend acknowledges a stored message with "sent". The message event
// itself arrives through the room broadcast like for every other member.
func (ctl *SignalWSController) handleSend(ctx context.Context, identity domain.Identity, conn *WsSignalConn, data []byte) {
	var p sendPayload
	if err := json.Unmarshal(data, &p); err != nil {
		ctl.sendError(conn, p.Ref, asInvalid(err))
		return
	}
	msg, err := ctl.Pipeline.Send(ctx, identity, domain.GroupID(p.GroupID), p.Text)
	if err != nil {
		ctl.sendError(conn, p.Ref, err)
		return
	}
	ctl.sendJSON(conn, sentEvent{
		Type:      "sent",
		Ref:       p.Ref,
		ID:        msg.ID,
		GroupID:   msg.GroupID,
		CreatedAt: msg.CreatedAt,
	})
}
