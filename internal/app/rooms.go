package app

import (
	"crypto/rand"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/banterhq/banter/internal/domain"
)

// Code alphabet skips visually ambiguous characters (0/O, 1/I).
const (
	codeAlphabet    = "23456789ABCDEFGHJKLMNPQRSTUVWXYZ"
	codeLength      = 6
	codeMaxAttempts = 10
)

// RoomRegistry is the in-memory room directory: name index plus a secondary
// join-code index. Expiry is lazy; every read path sweeps first so no caller
// ever observes a logically-expired room as alive.
type RoomRegistry struct {
	mu     sync.RWMutex
	byName map[domain.RoomName]*domain.Room
	byCode map[domain.RoomCode]domain.RoomName
	clock  func() time.Time
}

func NewRoomRegistry() *RoomRegistry {
	return &RoomRegistry{
		byName: make(map[domain.RoomName]*domain.Room),
		byCode: make(map[domain.RoomCode]domain.RoomName),
		clock:  time.Now,
	}
}

// CreateOrGet is idempotent by normalized name: an existing room keeps its
// code and attributes no matter what the second caller asked for.
func (r *RoomRegistry) CreateOrGet(
	rawName string,
	visibility domain.Visibility,
	creator string,
	policy domain.MessagePolicy,
	expiry domain.ExpiryOption,
	inactivity domain.InactivityOption,
) (domain.Room, error) {
	name, err := domain.NormalizeRoomName(rawName)
	if err != nil {
		return domain.Room{}, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.sweepLocked()

	if room, ok := r.byName[name]; ok {
		return *room, nil
	}

	code, err := r.generateCodeLocked()
	if err != nil {
		return domain.Room{}, err
	}

	now := r.clock()
	room := &domain.Room{
		Name:           name,
		Code:           code,
		Visibility:     visibility,
		Creator:        creator,
		Policy:         policy,
		CreatedAt:      now,
		LastActivityAt: now,
	}
	if d, ok := expiry.Duration(); ok {
		at := now.Add(d)
		room.ExpiresAt = &at
	}
	if w, ok := inactivity.Window(); ok {
		room.InactivityWindow = w
	}

	r.byName[name] = room
	r.byCode[code] = name
	log.Info().Str("module", "app.rooms").Str("room", string(name)).Str("code", string(code)).Str("creator", creator).Msg("room created")
	return *room, nil
}

// Get returns a copy of the room, treating an expired one as absent.
func (r *RoomRegistry) Get(name domain.RoomName) (domain.Room, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	room, ok := r.byName[name]
	if !ok {
		return domain.Room{}, false
	}
	if room.Expired(r.clock()) {
		r.removeLocked(name)
		return domain.Room{}, false
	}
	return *room, true
}

// LookupByCode resolves a join code to a live room name.
func (r *RoomRegistry) LookupByCode(code domain.RoomCode) (domain.RoomName, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sweepLocked()
	name, ok := r.byCode[code]
	return name, ok
}

// IsExpired reports expiry without mutating; absent rooms count as expired.
func (r *RoomRegistry) IsExpired(name domain.RoomName) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	room, ok := r.byName[name]
	return !ok || room.Expired(r.clock())
}

// Sweep removes every expired room from both indices and returns the
// removed rooms so the caller can notify their subscribers.
func (r *RoomRegistry) Sweep() []domain.Room {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.sweepLocked()
}

func (r *RoomRegistry) sweepLocked() []domain.Room {
	now := r.clock()
	var removed []domain.Room
	for name, room := range r.byName {
		if room.Expired(now) {
			removed = append(removed, *room)
			r.removeLocked(name)
		}
	}
	return removed
}

// Remove deletes a room from both indices. Creator-only authorization is the
// caller's concern. Returns false for an unknown name.
func (r *RoomRegistry) Remove(name domain.RoomName) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.byName[name]; !ok {
		return false
	}
	r.removeLocked(name)
	log.Info().Str("module", "app.rooms").Str("room", string(name)).Msg("room removed")
	return true
}

func (r *RoomRegistry) removeLocked(name domain.RoomName) {
	room, ok := r.byName[name]
	if !ok {
		return
	}
	delete(r.byName, name)
	delete(r.byCode, room.Code)
}

// TouchActivity bumps last_activity_at; called after every fanned-out
// room message.
func (r *RoomRegistry) TouchActivity(name domain.RoomName) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	room, ok := r.byName[name]
	if !ok {
		return false
	}
	room.Touch(r.clock())
	return true
}

// AddModerator appends an identity to the room's moderator set.
func (r *RoomRegistry) AddModerator(name domain.RoomName, username string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	room, ok := r.byName[name]
	if !ok {
		return false
	}
	if !room.IsModerator(username) {
		room.Moderators = append(room.Moderators, username)
	}
	return true
}

// List snapshots the live rooms after a sweep.
func (r *RoomRegistry) List() []domain.Room {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sweepLocked()
	out := make([]domain.Room, 0, len(r.byName))
	for _, room := range r.byName {
		out = append(out, *room)
	}
	return out
}

// generateCodeLocked allocates a collision-free code against the live index.
func (r *RoomRegistry) generateCodeLocked() (domain.RoomCode, error) {
	b := make([]byte, codeLength)
	for attempt := 0; attempt < codeMaxAttempts; attempt++ {
		if _, err := rand.Read(b); err != nil {
			return "", fmt.Errorf("generate room code: %w", err)
		}
		for i := range b {
			b[i] = codeAlphabet[int(b[i])%len(codeAlphabet)]
		}
		code := domain.RoomCode(b)
		if _, taken := r.byCode[code]; !taken {
			return code, nil
		}
		log.Warn().Str("module", "app.rooms").Str("code", string(code)).Int("attempt", attempt+1).Msg("room code collision, retrying")
	}
	return "", fmt.Errorf("no unique room code after %d attempts", codeMaxAttempts)
}
