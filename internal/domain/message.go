package domain

import (
	"errors"
	"fmt"
	"time"
)

var (
	ErrConversationNotFound = errors.New("conversation not found")
	ErrNotParticipant       = errors.New("not a conversation participant")
	ErrSelfConversation     = errors.New("conversation requires two distinct identities")
	ErrEmptyMessage         = errors.New("empty message")
)

type (
	ConversationID uint
	MessageID      uint
)

// MessageType distinguishes persisted direct payloads. Room broadcasts
// ("message", "sticker") never reach the store.
type MessageType string

const (
	TypePrivate        MessageType = "private"
	TypePrivateSticker MessageType = "private_sticker"
)

// DeliveryStatus is the monotonic sent → delivered → read machine.
type DeliveryStatus string

const (
	StatusSent      DeliveryStatus = "sent"
	StatusDelivered DeliveryStatus = "delivered"
	StatusRead      DeliveryStatus = "read"
)

// Conversation is a durable two-party thread. PairKey is the normalized
// "direct:<min>:<max>" participant pair; its unique index is what makes
// first-contact races collapse to a single row.
type Conversation struct {
	ID        ConversationID `gorm:"primaryKey;autoIncrement"`
	PairKey   string         `gorm:"size:64;uniqueIndex:uq_conversation_pair;not null"`
	Metadata  string         `gorm:"column:metadata"`
	CreatedAt time.Time      `gorm:"not null"`
}

func (Conversation) TableName() string { return "conversations" }

// DirectPairKey is order-independent over the two participant ids.
func DirectPairKey(a, b UserID) string {
	if b < a {
		a, b = b, a
	}
	return fmt.Sprintf("direct:%d:%d", a, b)
}

type ConversationParticipant struct {
	ID             uint           `gorm:"primaryKey;autoIncrement"`
	ConversationID ConversationID `gorm:"index;uniqueIndex:uq_conversation_user;not null"`
	UserID         UserID         `gorm:"index;uniqueIndex:uq_conversation_user;not null"`
	JoinedAt       time.Time      `gorm:"not null"`
}

func (ConversationParticipant) TableName() string { return "conversation_participants" }

// Message is a durable direct message.
type Message struct {
	ID             MessageID      `gorm:"primaryKey;autoIncrement"`
	ConversationID ConversationID `gorm:"index:ix_message_conversation_created;not null"`
	SenderID       UserID         `gorm:"not null"`
	RecipientID    UserID         `gorm:"index:ix_message_recipient_read"`
	Body           string         `gorm:"type:text"`
	Type           MessageType    `gorm:"column:message_type;size:32;not null;default:private"`
	StickerFile    string         `gorm:"size:255"`
	CreatedAt      time.Time      `gorm:"index:ix_message_conversation_created;not null"`
	DeliveredAt    *time.Time
	ReadAt         *time.Time `gorm:"index:ix_message_recipient_read"`
}

func (Message) TableName() string { return "messages" }

func (m *Message) Status() DeliveryStatus {
	switch {
	case m.ReadAt != nil:
		return StatusRead
	case m.DeliveredAt != nil:
		return StatusDelivered
	}
	return StatusSent
}

// MarkDelivered is an idempotent no-op once set; reports whether it changed.
func (m *Message) MarkDelivered(now time.Time) bool {
	if m.DeliveredAt != nil {
		return false
	}
	m.DeliveredAt = &now
	return true
}

// MarkRead back-fills the delivered timestamp so read_at never precedes it.
func (m *Message) MarkRead(now time.Time) bool {
	if m.ReadAt != nil {
		return false
	}
	if m.DeliveredAt == nil {
		m.DeliveredAt = &now
	}
	m.ReadAt = &now
	return true
}
