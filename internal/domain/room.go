package domain

import (
	"errors"
	"strings"
	"time"
)

const MaxRoomNameLen = 60

var (
	ErrRoomNameEmpty           = errors.New("room name empty")
	ErrRoomNameTooLong         = errors.New("room name too long")
	ErrRoomNotFound            = errors.New("room not found")
	ErrRoomExpired             = errors.New("room expired")
	ErrNotPermitted            = errors.New("not permitted")
	ErrUnknownVisibility       = errors.New("unknown visibility")
	ErrUnknownMessagePolicy    = errors.New("unknown message policy")
	ErrUnknownExpiryOption     = errors.New("unknown expiry option")
	ErrUnknownInactivityOption = errors.New("unknown inactivity option")
)

type (
	RoomName string
	RoomCode string
)

type Visibility string

const (
	VisibilityPublic  Visibility = "public"
	VisibilityPrivate Visibility = "private"
)

func ParseVisibility(s string) (Visibility, error) {
	switch Visibility(s) {
	case VisibilityPublic, VisibilityPrivate:
		return Visibility(s), nil
	case "":
		return VisibilityPublic, nil
	}
	return "", ErrUnknownVisibility
}

// MessagePolicy restricts who may post in a room.
type MessagePolicy string

const (
	PolicyEveryone     MessagePolicy = "everyone"
	PolicyHostModsOnly MessagePolicy = "host_mods_only"
)

func ParseMessagePolicy(s string) (MessagePolicy, error) {
	switch MessagePolicy(s) {
	case PolicyEveryone, PolicyHostModsOnly:
		return MessagePolicy(s), nil
	case "":
		return PolicyEveryone, nil
	}
	return "", ErrUnknownMessagePolicy
}

// ExpiryOption is the absolute-expiry choice offered at room creation.
type ExpiryOption string

const (
	ExpiryNever  ExpiryOption = "never"
	Expiry1Day   ExpiryOption = "1_day"
	Expiry7Days  ExpiryOption = "7_days"
	Expiry30Days ExpiryOption = "30_days"
)

// Duration returns the lifetime the option stands for; ok is false for "never".
func (o ExpiryOption) Duration() (time.Duration, bool) {
	switch o {
	case Expiry1Day:
		return 24 * time.Hour, true
	case Expiry7Days:
		return 7 * 24 * time.Hour, true
	case Expiry30Days:
		return 30 * 24 * time.Hour, true
	}
	return 0, false
}

func ParseExpiryOption(s string) (ExpiryOption, error) {
	switch ExpiryOption(s) {
	case ExpiryNever, Expiry1Day, Expiry7Days, Expiry30Days:
		return ExpiryOption(s), nil
	case "":
		return ExpiryNever, nil
	}
	return "", ErrUnknownExpiryOption
}

// InactivityOption archives a room after a quiet period.
type InactivityOption string

const (
	InactivityNone   InactivityOption = "none"
	Inactivity1Day   InactivityOption = "1_day"
	Inactivity7Days  InactivityOption = "7_days"
	Inactivity30Days InactivityOption = "30_days"
)

// Window returns the allowed quiet period; ok is false for "none".
func (o InactivityOption) Window() (time.Duration, bool) {
	switch o {
	case Inactivity1Day:
		return 24 * time.Hour, true
	case Inactivity7Days:
		return 7 * 24 * time.Hour, true
	case Inactivity30Days:
		return 30 * 24 * time.Hour, true
	}
	return 0, false
}

func ParseInactivityOption(s string) (InactivityOption, error) {
	switch InactivityOption(s) {
	case InactivityNone, Inactivity1Day, Inactivity7Days, Inactivity30Days:
		return InactivityOption(s), nil
	case "":
		return InactivityNone, nil
	}
	return "", ErrUnknownInactivityOption
}

// Room is a named broadcast channel, also reachable by a short join code.
// Rooms live in memory only; the registry owns the lifecycle.
type Room struct {
	Name             RoomName
	Code             RoomCode
	Visibility       Visibility
	Creator          string // username of the creating identity
	Policy           MessagePolicy
	Moderators       []string
	CreatedAt        time.Time
	ExpiresAt        *time.Time    // nil = never
	InactivityWindow time.Duration // 0 = disabled
	LastActivityAt   time.Time
}

// NormalizeRoomName trims and validates a raw room name.
func NormalizeRoomName(raw string) (RoomName, error) {
	name := strings.TrimSpace(raw)
	if name == "" {
		return "", ErrRoomNameEmpty
	}
	if len(name) > MaxRoomNameLen {
		return "", ErrRoomNameTooLong
	}
	return RoomName(name), nil
}

// Expired reports whether the room is logically dead at the given instant.
func (r *Room) Expired(now time.Time) bool {
	if r.ExpiresAt != nil && !now.Before(*r.ExpiresAt) {
		return true
	}
	if r.InactivityWindow > 0 && !now.Before(r.LastActivityAt.Add(r.InactivityWindow)) {
		return true
	}
	return false
}

// Touch bumps the activity timestamp; called on every fanned-out room message.
func (r *Room) Touch(now time.Time) { r.LastActivityAt = now }

func (r *Room) IsModerator(username string) bool {
	for _, m := range r.Moderators {
		if m == username {
			return true
		}
	}
	return false
}
