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

// sendMessagePayload is the unified inbound message shape: room text and
// stickers ("message"/"sticker") plus direct ones ("private"/"private_sticker").
type sendMessagePayload struct {
	Type    string        `json:"type"`
	Kind    string        `json:"kind"` // message | sticker | private | private_sticker
	Room    string        `json:"room,omitempty"`
	Body    string        `json:"body,omitempty"`
	File    string        `json:"file,omitempty"`
	Target  string        `json:"target,omitempty"`
	ReplyTo *app.ReplyRef `json:"reply_to,omitempty"`
}

func (ctl *ChatWSController) handleSendMessage(
	ctx context.Context,
	sid core.SessionID,
	conn *WsChatConn,
	data []byte,
) {
	var p sendMessagePayload
	if err := json.Unmarshal(data, &p); err != nil {
		log.Warn().Err(err).Str("module", "chat").Msg("bad send_message payload")
		ctl.sendJSON(conn, app.SendRejectedEvent{Type: "send_rejected", Error: "bad_payload"})
		return
	}

	switch p.Kind {
	case "", "message":
		ctl.roomMessage(sid, conn, p, false)
	case "sticker":
		ctl.roomMessage(sid, conn, p, true)
	case "private":
		ctl.directMessage(ctx, sid, conn, p, domain.TypePrivate)
	case "private_sticker":
		ctl.directMessage(ctx, sid, conn, p, domain.TypePrivateSticker)
	default:
		ctl.sendJSON(conn, app.SendRejectedEvent{Type: "send_rejected", Error: "unknown message kind"})
	}
}

func (ctl *ChatWSController) roomMessage(
	sid core.SessionID,
	conn *WsChatConn,
	p sendMessagePayload,
	sticker bool,
) {
	name, err := domain.NormalizeRoomName(p.Room)
	if err != nil {
		ctl.sendJSON(conn, app.SendRejectedEvent{Type: "send_rejected", Error: err.Error()})
		return
	}
	req := app.RoomMessageRequest{Room: name, ReplyTo: p.ReplyTo}
	if sticker {
		req.File = p.File
	} else {
		req.Body = p.Body
	}
	if _, err := ctl.Orch.RoomBroadcast(sid, req); err != nil {
		ctl.rejectRoomError(conn, name, err)
	}
}

func (ctl *ChatWSController) directMessage(
	ctx context.Context,
	sid core.SessionID,
	conn *WsChatConn,
	p sendMessagePayload,
	kind domain.MessageType,
) {
	sess, ok := ctl.Orch.Registry.Session(sid)
	if !ok {
		return
	}
	ev, err := ctl.Orch.Delivery.SendDirect(ctx, sess.User(), app.DirectSendRequest{
		Target:  p.Target,
		Kind:    kind,
		Body:    p.Body,
		File:    p.File,
		ReplyTo: p.ReplyTo,
	})
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrIdentityNotFound):
			ctl.sendJSON(conn, app.SendRejectedEvent{Type: "send_rejected", Error: "user not found"})
		case errors.Is(err, domain.ErrEmptyMessage):
			// Silent drop, matching room-message behavior for empty bodies.
		default:
			log.Error().Err(err).Str("module", "chat").Str("sid", string(sid)).Msg("direct send failed")
			ctl.sendJSON(conn, app.SendRejectedEvent{Type: "send_rejected", Error: "delivery failed"})
		}
		return
	}
	// Echo to the sender so its own thread view updates with id and status.
	ctl.sendJSON(conn, ev)
}
