package app

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/banterhq/banter/internal/core"
	"github.com/banterhq/banter/internal/domain"
)

// Orchestrator glues the registries, the policy guard and the delivery
// engine behind the connection-event surface the adapters drive.
type Orchestrator struct {
	Registry *Registry
	Rooms    *RoomRegistry
	Policy   SendPolicy
	Delivery *DeliveryEngine

	clock func() time.Time
}

func NewOrchestrator(reg *Registry, rooms *RoomRegistry, policy SendPolicy, delivery *DeliveryEngine) *Orchestrator {
	return &Orchestrator{
		Registry: reg,
		Rooms:    rooms,
		Policy:   policy,
		Delivery: delivery,
		clock:    time.Now,
	}
}

// OnConnect refreshes the active-identity list for everyone and replays any
// queued direct messages to the new connection.
func (o *Orchestrator) OnConnect(ctx context.Context, sid core.SessionID) {
	sess, ok := o.Registry.Session(sid)
	if !ok {
		return
	}
	o.broadcastActiveIdentities()
	if err := o.Delivery.CatchUp(ctx, sid, sess.User()); err != nil {
		log.Error().Err(err).Str("module", "app.orchestrator").Str("sid", string(sid)).Msg("catch-up failed")
	}
}

// OnDisconnect unconditionally removes the presence entry and its reverse
// mapping. In-flight operations for the connection become benign no-ops.
func (o *Orchestrator) OnDisconnect(sid core.SessionID) {
	if room, ok := o.Registry.ClearRoom(sid); ok {
		if sess, found := o.Registry.Session(sid); found {
			o.broadcastStatus(room, sess.User().Username, "leave")
		}
	}
	o.Registry.Unbind(sid)
	o.broadcastActiveIdentities()
}

// Join subscribes the connection to a room, implicitly leaving the previous
// one, and returns the state the client needs to render the policy banner.
// A session that disappeared mid-flight yields nil, nil: nobody is left to
// answer, so there is nothing to do and nothing to reject.
func (o *Orchestrator) Join(sid core.SessionID, name domain.RoomName) (*RoomStateEvent, error) {
	removed := o.SweepAndNotify()

	sess, ok := o.Registry.Session(sid)
	if !ok {
		return nil, nil
	}
	room, ok := o.Rooms.Get(name)
	if !ok {
		for _, r := range removed {
			if r.Name == name {
				return nil, domain.ErrRoomExpired
			}
		}
		return nil, domain.ErrRoomNotFound
	}

	if prev, left := o.Registry.ClearRoom(sid); left && prev != name {
		o.broadcastStatus(prev, sess.User().Username, "leave")
	}
	o.Registry.SetRoom(sid, name)
	o.broadcastStatus(name, sess.User().Username, "join")

	members := make([]core.IdentityDTO, 0)
	for _, snap := range o.Registry.MembersOfRoom(name) {
		u := snap.Session.User()
		members = append(members, core.IdentityDTO{Name: u.Username, Avatar: u.AvatarURL})
	}
	return &RoomStateEvent{
		Type:    "room_state",
		Room:    room.Name,
		Policy:  room.Policy,
		CanSend: o.Policy.CanSend(room, sess.User().Username, o.Registry.IsModerator(sid)),
		Members: members,
		Count:   len(members),
	}, nil
}

// Leave drops the subscription; the connection stays open.
func (o *Orchestrator) Leave(sid core.SessionID) (domain.RoomName, bool) {
	room, ok := o.Registry.ClearRoom(sid)
	if !ok {
		return "", false
	}
	if sess, found := o.Registry.Session(sid); found {
		o.broadcastStatus(room, sess.User().Username, "leave")
	}
	return room, true
}

// RoomMessageRequest is a validated inbound room message.
type RoomMessageRequest struct {
	Room    domain.RoomName
	Body    string
	File    string // sticker reference; exclusive with Body
	ReplyTo *ReplyRef
}

// RoomBroadcast validates room state and permission, fans the envelope out
// to every subscriber (sender included) and bumps room activity.
// Room broadcasts are fire-and-forget: nothing is persisted.
func (o *Orchestrator) RoomBroadcast(sid core.SessionID, req RoomMessageRequest) (*RoomMessageEvent, error) {
	// Benign no-op when the connection raced a disconnect.
	sess, ok := o.Registry.Session(sid)
	if !ok {
		return nil, nil
	}

	removed := o.SweepAndNotify()
	room, ok := o.Rooms.Get(req.Room)
	if !ok {
		for _, r := range removed {
			if r.Name == req.Room {
				return nil, domain.ErrRoomExpired
			}
		}
		return nil, domain.ErrRoomNotFound
	}

	user := sess.User()
	if !o.Policy.CanSend(room, user.Username, o.Registry.IsModerator(sid)) {
		return nil, fmt.Errorf("%w: policy %s in room %s", domain.ErrNotPermitted, room.Policy, room.Name)
	}

	body := strings.TrimSpace(req.Body)
	if body == "" && req.File == "" {
		return nil, domain.ErrEmptyMessage
	}

	ev := &RoomMessageEvent{
		Type:      "room_message",
		ID:        uuid.NewString(),
		Sender:    user.Username,
		Avatar:    user.AvatarURL,
		Room:      room.Name,
		Body:      body,
		File:      req.File,
		ReplyTo:   req.ReplyTo,
		Timestamp: o.clock(),
	}
	for _, snap := range o.Registry.MembersOfRoom(room.Name) {
		emit(snap.Session.Signal(), ev)
	}
	o.Rooms.TouchActivity(room.Name)

	log.Info().Str("module", "app.orchestrator").Str("room", string(room.Name)).Str("sender", user.Username).Msg("room message")
	return ev, nil
}

// PromoteModerator grants posting rights in host_mods_only rooms. Only the
// creator may promote. A live connection of the promoted identity gets its
// presence flag set immediately.
func (o *Orchestrator) PromoteModerator(ctx context.Context, name domain.RoomName, requester, username string) error {
	room, ok := o.Rooms.Get(name)
	if !ok {
		return domain.ErrRoomNotFound
	}
	// An anonymous caller has the empty identity and must never match a
	// creator field, empty or not.
	if requester == "" || room.Creator != requester {
		return fmt.Errorf("%w: only the creator may promote in room %s", domain.ErrNotPermitted, name)
	}
	o.Rooms.AddModerator(name, username)
	if user, err := o.Delivery.Directory.ByUsername(ctx, username); err == nil {
		if sid, _, live := o.Registry.ResolveConnection(user.ID); live {
			o.Registry.SetModerator(sid, true)
		}
	}
	log.Info().Str("module", "app.orchestrator").Str("room", string(name)).Str("moderator", username).Msg("moderator promoted")
	return nil
}

// RemoveRoom deletes a room on behalf of its creator.
func (o *Orchestrator) RemoveRoom(name domain.RoomName, requester string) error {
	room, ok := o.Rooms.Get(name)
	if !ok {
		return domain.ErrRoomNotFound
	}
	if requester == "" || room.Creator != requester {
		return fmt.Errorf("%w: only the creator may delete room %s", domain.ErrNotPermitted, name)
	}
	o.notifyExpired([]domain.Room{room})
	o.Rooms.Remove(name)
	return nil
}

// SweepAndNotify runs the lazy expiry sweep and tells affected subscribers.
// Also driven periodically from main as a safety net under clock skew.
func (o *Orchestrator) SweepAndNotify() []domain.Room {
	removed := o.Rooms.Sweep()
	o.notifyExpired(removed)
	return removed
}

func (o *Orchestrator) notifyExpired(rooms []domain.Room) {
	for _, room := range rooms {
		ev := RoomExpiredEvent{Type: "room_expired", Room: room.Name}
		for _, snap := range o.Registry.MembersOfRoom(room.Name) {
			emit(snap.Session.Signal(), ev)
			o.Registry.ClearRoom(snap.SID)
		}
		log.Info().Str("module", "app.orchestrator").Str("room", string(room.Name)).Msg("room expired")
	}
}

func (o *Orchestrator) broadcastActiveIdentities() {
	ev := ActiveIdentitiesEvent{
		Type:       "active_identities",
		Identities: o.Registry.ActiveIdentities(),
	}
	for _, snap := range o.Registry.Snapshot() {
		emit(snap.Session.Signal(), ev)
	}
}

func (o *Orchestrator) broadcastStatus(room domain.RoomName, username, kind string) {
	verb := "joined"
	if kind == "leave" {
		verb = "left"
	}
	ev := StatusEvent{
		Type:      "status",
		Msg:       fmt.Sprintf("%s has %s the room.", username, verb),
		Kind:      kind,
		Timestamp: o.clock(),
	}
	for _, snap := range o.Registry.MembersOfRoom(room) {
		emit(snap.Session.Signal(), ev)
	}
}
