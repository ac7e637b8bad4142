// Package domain contains entity without logic, just meta-data
package domain

import (
	"errors"
	"fmt"
	"math/rand/v2"
	"time"
)

const MaxUsernameLen = 80

// SystemIdentity owns bootstrap rooms. It never corresponds to a session
// identity, so system rooms cannot be deleted or reassigned over the API.
const SystemIdentity = "system"

var (
	ErrUsernameTooLong  = errors.New("username too long")
	ErrUsernameEmpty    = errors.New("username empty")
	ErrIdentityNotFound = errors.New("identity not found")
)

// UserID is the durable identifier of a registered account.
// Guests have no durable id and carry the zero value.
type UserID uint

type User struct {
	ID          UserID    `json:"id" gorm:"primaryKey;autoIncrement"`
	Username    string    `json:"username" gorm:"size:80;uniqueIndex;not null"`
	DisplayName string    `json:"display_name,omitempty" gorm:"size:80"`
	AvatarURL   string    `json:"avatar_url,omitempty" gorm:"size:255"`
	CreatedAt   time.Time `json:"-"`
}

func (User) TableName() string { return "users" }

// NewUser is a tiny helper to avoid ad-hoc struct literals in adapters.
func NewUser(id UserID, username string) (*User, error) {
	if len(username) == 0 {
		return nil, ErrUsernameEmpty
	}
	if len(username) > MaxUsernameLen {
		return nil, ErrUsernameTooLong
	}
	return &User{ID: id, Username: username}, nil
}

// NewGuest builds an ephemeral identity that is never persisted.
func NewGuest(username string) *User {
	return &User{ID: 0, Username: username}
}

// IsGuest reports whether the identity has no durable account behind it.
func (u *User) IsGuest() bool { return u.ID == 0 }

// GuestName generates a throwaway username, e.g. "Guest14297431".
// The clock component keeps collisions unlikely across reconnect storms.
func GuestName(now time.Time) string {
	return fmt.Sprintf("Guest%s%04d", now.Format("1504"), rand.IntN(10000))
}
