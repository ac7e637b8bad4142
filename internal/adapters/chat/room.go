package chat

import (
	"encoding/json"
	"errors"

	"github.com/rs/zerolog/log"

	"github.com/banterhq/banter/internal/app"
	"github.com/banterhq/banter/internal/core"
	"github.com/banterhq/banter/internal/domain"
)

func (ctl *ChatWSController) handleJoin(
	sid core.SessionID,
	conn *WsChatConn,
	data []byte,
) {
	type joinPayload struct {
		Type string `json:"type"`
		Room string `json:"room"`
	}
	var p joinPayload
	if err := json.Unmarshal(data, &p); err != nil {
		log.Warn().Err(err).Str("module", "chat").Msg("bad join payload")
		ctl.sendJSON(conn, app.SendRejectedEvent{Type: "send_rejected", Error: "bad_payload"})
		return
	}

	name, err := domain.NormalizeRoomName(p.Room)
	if err != nil {
		ctl.sendJSON(conn, app.SendRejectedEvent{Type: "send_rejected", Error: err.Error()})
		return
	}

	log.Info().Str("module", "chat").Str("sid", string(sid)).Str("room", string(name)).Msg("join")
	state, err := ctl.Orch.Join(sid, name)
	if err != nil {
		ctl.rejectRoomError(conn, name, err)
		return
	}
	if state == nil {
		return
	}
	ctl.sendJSON(conn, state)
}

func (ctl *ChatWSController) handleLeave(
	sid core.SessionID,
	conn *WsChatConn,
) {
	log.Info().Str("module", "chat").Str("sid", string(sid)).Msg("leave")
	room, ok := ctl.Orch.Leave(sid)
	resp := struct {
		Type string          `json:"type"`
		Room domain.RoomName `json:"room,omitempty"`
	}{Type: "left"}
	if ok {
		resp.Room = room
	}
	ctl.sendJSON(conn, resp)
}

// rejectRoomError maps the room-error taxonomy to wire events: an expired
// room gets its own notification, everything else a named rejection.
func (ctl *ChatWSController) rejectRoomError(conn *WsChatConn, room domain.RoomName, err error) {
	switch {
	case errors.Is(err, domain.ErrRoomExpired):
		ctl.sendJSON(conn, app.RoomExpiredEvent{Type: "room_expired", Room: room})
	case errors.Is(err, domain.ErrRoomNotFound):
		ctl.sendJSON(conn, app.SendRejectedEvent{Type: "send_rejected", Error: "unknown room", Room: room})
	case errors.Is(err, domain.ErrNotPermitted):
		ctl.sendJSON(conn, app.SendRejectedEvent{Type: "send_rejected", Error: err.Error(), Room: room})
	default:
		ctl.sendJSON(conn, app.SendRejectedEvent{Type: "send_rejected", Error: err.Error(), Room: room})
	}
}
