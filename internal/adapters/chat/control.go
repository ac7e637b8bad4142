package chat

import (
	"github.com/banterhq/banter/internal/core"
	"github.com/banterhq/banter/internal/domain"
)

func (ctl *ChatWSController) handlePing(
	conn *WsChatConn,
) {
	resp := struct {
		Type string `json:"type"`
	}{
		Type: "pong",
	}
	ctl.sendJSON(conn, resp)
}

func (ctl *ChatWSController) handleWhoAmI(
	sid core.SessionID,
	conn *WsChatConn,
) {
	sess, ok := ctl.Orch.Registry.Session(sid)
	if !ok {
		return
	}
	user := sess.User()

	resp := struct {
		Type     string          `json:"type"`
		Username string          `json:"username"`
		Guest    bool            `json:"guest"`
		Room     domain.RoomName `json:"room,omitempty"`
	}{
		Type:     "whoami",
		Username: user.Username,
		Guest:    user.IsGuest(),
	}
	if room, _, inRoom := ctl.Orch.Registry.RoomOf(sid); inRoom {
		resp.Room = room
	}
	ctl.sendJSON(conn, resp)
}
