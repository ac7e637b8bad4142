package core

import "github.com/banterhq/banter/internal/domain"

// Frame is a serialized event payload.
type Frame []byte

// SessionID identifies one live connection.
type SessionID string

// SignalConnection abstracts the system messaging transport.
// Owned by the adapter; the adapter must Close() it.
type SignalConnection interface {
	TrySend(Frame) error
	Close()
}

// MemberSession binds a resolved identity and its transport endpoint.
// This is what the presence registry stores and fans out to.
type MemberSession interface {
	User() *domain.User
	Signal() SignalConnection
}

// IdentityDTO is a read-only presence view for clients (no transport fields).
type IdentityDTO struct {
	Name   string `json:"name"`
	Avatar string `json:"avatar,omitempty"`
}
