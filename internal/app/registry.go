package app

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/banterhq/banter/internal/core"
	"github.com/banterhq/banter/internal/domain"
)

// presenceEntry is the live state of one connection.
type presenceEntry struct {
	Session     core.MemberSession
	Room        domain.RoomName // "" = not subscribed
	ConnectedAt time.Time
	Moderator   bool
	Cancel      context.CancelFunc
}

// Registry tracks live connections and the reverse identity → connection
// mapping used for direct delivery. Guests never enter the reverse index.
type Registry struct {
	mu       sync.RWMutex
	sessions map[core.SessionID]*presenceEntry
	users    map[domain.UserID]core.SessionID
}

func NewRegistry() *Registry {
	return &Registry{
		sessions: make(map[core.SessionID]*presenceEntry),
		users:    make(map[domain.UserID]core.SessionID),
	}
}

// Bind registers a connection. A persistent identity that already holds a
// mapping is silently superseded (last writer wins); the older raw
// connection stays open but loses direct-delivery routing.
func (r *Registry) Bind(sid core.SessionID, sess core.MemberSession, cancel context.CancelFunc) {
	u := sess.User()
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sessions[sid] = &presenceEntry{
		Session:     sess,
		ConnectedAt: time.Now(),
		Cancel:      cancel,
	}
	if !u.IsGuest() {
		r.users[u.ID] = sid
	}
	log.Info().Str("module", "app.registry").Str("sid", string(sid)).Str("user", u.Username).Msg("bound session")
}

// Unbind removes a connection and fires its context cancel so the pumps and
// any in-flight work observe the disconnect. The reverse mapping is pruned
// only when it still points at the closing session, so a superseding login
// survives the old connection's teardown. Unknown sids are a no-op.
func (r *Registry) Unbind(sid core.SessionID) {
	r.mu.Lock()
	e, ok := r.sessions[sid]
	if !ok {
		r.mu.Unlock()
		return
	}
	delete(r.sessions, sid)
	for uid, owner := range r.users {
		if owner == sid {
			delete(r.users, uid)
		}
	}
	r.mu.Unlock()

	if e.Cancel != nil {
		e.Cancel()
	}
	log.Info().Str("module", "app.registry").Str("sid", string(sid)).Msg("unbound session")
}

// Session returns the live session for a connection id.
func (r *Registry) Session(sid core.SessionID) (core.MemberSession, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if e, ok := r.sessions[sid]; ok {
		return e.Session, true
	}
	return nil, false
}

// SetRoom subscribes the connection to a room (one at a time).
func (r *Registry) SetRoom(sid core.SessionID, room domain.RoomName) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.sessions[sid]
	if !ok {
		return false
	}
	e.Room = room
	log.Info().Str("module", "app.registry").Str("sid", string(sid)).Str("room", string(room)).Msg("joined room")
	return true
}

// ClearRoom drops the connection's room subscription, if any.
// Returns the room it was subscribed to.
func (r *Registry) ClearRoom(sid core.SessionID) (domain.RoomName, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.sessions[sid]
	if !ok || e.Room == "" {
		return "", false
	}
	room := e.Room
	e.Room = ""
	log.Info().Str("module", "app.registry").Str("sid", string(sid)).Str("room", string(room)).Msg("left room")
	return room, true
}

// RoomOf reports the room the connection is currently subscribed to.
func (r *Registry) RoomOf(sid core.SessionID) (domain.RoomName, core.MemberSession, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.sessions[sid]
	if !ok || e.Room == "" {
		return "", nil, false
	}
	return e.Room, e.Session, true
}

// SetModerator flags the connection's presence entry as moderator.
func (r *Registry) SetModerator(sid core.SessionID, mod bool) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.sessions[sid]
	if !ok {
		return false
	}
	e.Moderator = mod
	return true
}

func (r *Registry) IsModerator(sid core.SessionID) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.sessions[sid]
	return ok && e.Moderator
}

// ResolveConnection returns the authoritative connection of a persistent
// identity. Guests are not resolvable for direct delivery.
func (r *Registry) ResolveConnection(uid domain.UserID) (core.SessionID, core.MemberSession, bool) {
	if uid == 0 {
		return "", nil, false
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	sid, ok := r.users[uid]
	if !ok {
		return "", nil, false
	}
	e, ok := r.sessions[sid]
	if !ok {
		return "", nil, false
	}
	return sid, e.Session, true
}

// ActiveIdentities lists the distinct live identities with avatar.
// Duplicates (one user, several raw connections) collapse by username.
func (r *Registry) ActiveIdentities() []core.IdentityDTO {
	r.mu.RLock()
	defer r.mu.RUnlock()
	seen := make(map[string]struct{}, len(r.sessions))
	out := make([]core.IdentityDTO, 0, len(r.sessions))
	for _, e := range r.sessions {
		u := e.Session.User()
		if _, dup := seen[u.Username]; dup {
			continue
		}
		seen[u.Username] = struct{}{}
		out = append(out, core.IdentityDTO{Name: u.Username, Avatar: u.AvatarURL})
	}
	return out
}

type regSnap struct {
	SID     core.SessionID
	Session core.MemberSession
}

// MembersOfRoom snapshots the subscribers of a room for fan-out.
func (r *Registry) MembersOfRoom(name domain.RoomName) []regSnap {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]regSnap, 0, len(r.sessions))
	for sid, e := range r.sessions {
		if e.Room == name {
			out = append(out, regSnap{SID: sid, Session: e.Session})
		}
	}
	return out
}

// Snapshot lists every live session, for registry-wide broadcasts.
func (r *Registry) Snapshot() []regSnap {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]regSnap, 0, len(r.sessions))
	for sid, e := range r.sessions {
		out = append(out, regSnap{SID: sid, Session: e.Session})
	}
	return out
}
