package chat

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/rs/zerolog/log"

	"github.com/banterhq/banter/internal/app"
	"github.com/banterhq/banter/internal/core"
	"github.com/banterhq/banter/internal/domain"
)

func (ctl *ChatWSController) handleMarkRead(
	ctx context.Context,
	sid core.SessionID,
	conn *WsChatConn,
	data []byte,
) {
	type markReadPayload struct {
		Type           string `json:"type"`
		ConversationID uint   `json:"conversation_id"`
	}
	var p markReadPayload
	if err := json.Unmarshal(data, &p); err != nil {
		log.Warn().Err(err).Str("module", "chat").Msg("bad mark_conversation_read payload")
		ctl.sendJSON(conn, app.SendRejectedEvent{Type: "send_rejected", Error: "bad_payload"})
		return
	}

	sess, ok := ctl.Orch.Registry.Session(sid)
	if !ok {
		return
	}
	conv := domain.ConversationID(p.ConversationID)
	summary, err := ctl.Orch.Delivery.MarkConversationRead(ctx, sess.User(), conv)
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrNotParticipant):
			ctl.sendJSON(conn, app.SendRejectedEvent{Type: "send_rejected", Error: "not a participant"})
		default:
			log.Error().Err(err).Str("module", "chat").Str("sid", string(sid)).Msg("mark read failed")
			ctl.sendJSON(conn, app.SendRejectedEvent{Type: "send_rejected", Error: "mark read failed"})
		}
		return
	}

	resp := app.ReadSummaryEvent{
		Type:           "conversation_read",
		ConversationID: conv,
		Updated:        summary.Updated,
		MessageIDs:     summary.MessageIDs,
	}
	if summary.Updated > 0 {
		at := summary.ReadAt
		resp.ReadAt = &at
	}
	ctl.sendJSON(conn, resp)
}
