package app

import "github.com/banterhq/banter/internal/domain"

// SendPolicy evaluates room-level message permission.
type SendPolicy interface {
	CanSend(room domain.Room, username string, presenceModerator bool) bool
}

// PolicyGuard is the default guard: "everyone" always permits; otherwise
// only the creator, a listed moderator, or a connection flagged moderator
// in its presence entry may post.
type PolicyGuard struct{}

func (PolicyGuard) CanSend(room domain.Room, username string, presenceModerator bool) bool {
	if room.Policy == domain.PolicyEveryone {
		return true
	}
	if room.Creator == username {
		return true
	}
	if room.IsModerator(username) {
		return true
	}
	return presenceModerator
}
