package app

import (
	"encoding/json"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/banterhq/banter/internal/core"
	"github.com/banterhq/banter/internal/domain"
)

// Outbound event envelopes. The Type field is the wire discriminator.

type ActiveIdentitiesEvent struct {
	Type       string             `json:"type"`
	Identities []core.IdentityDTO `json:"identities"`
}

// ReplyRef carries only id/sender/body of the quoted original.
type ReplyRef struct {
	ID     string `json:"id"`
	Sender string `json:"sender"`
	Body   string `json:"body,omitempty"`
}

type RoomMessageEvent struct {
	Type      string          `json:"type"`
	ID        string          `json:"id"`
	Sender    string          `json:"sender"`
	Avatar    string          `json:"avatar,omitempty"`
	Room      domain.RoomName `json:"room"`
	Body      string          `json:"body,omitempty"`
	File      string          `json:"file,omitempty"`
	ReplyTo   *ReplyRef       `json:"reply_to,omitempty"`
	Timestamp time.Time       `json:"timestamp"`
}

type DirectMessageEvent struct {
	Type           string                `json:"type"`
	ID             domain.MessageID      `json:"id"`
	ConversationID domain.ConversationID `json:"conversation_id"`
	Sender         string                `json:"sender"`
	Recipient      string                `json:"recipient"`
	Avatar         string                `json:"avatar,omitempty"`
	Body           string                `json:"body,omitempty"`
	File           string                `json:"file,omitempty"`
	Kind           domain.MessageType    `json:"kind"`
	Status         domain.DeliveryStatus `json:"status"`
	ReplyTo        *ReplyRef             `json:"reply_to,omitempty"`
	Timestamp      time.Time             `json:"timestamp"`
	DeliveredAt    *time.Time            `json:"delivered_at,omitempty"`
	ReadAt         *time.Time            `json:"read_at,omitempty"`
}

type DirectMessageBatchEvent struct {
	Type     string               `json:"type"`
	Messages []DirectMessageEvent `json:"messages"`
}

type ReadReceiptEvent struct {
	Type           string                `json:"type"`
	ConversationID domain.ConversationID `json:"conversation_id"`
	Reader         string                `json:"reader"`
	MessageIDs     []domain.MessageID    `json:"message_ids"`
	ReadAt         time.Time             `json:"read_at"`
}

type ReadSummaryEvent struct {
	Type           string                `json:"type"`
	ConversationID domain.ConversationID `json:"conversation_id"`
	Updated        int                   `json:"updated"`
	MessageIDs     []domain.MessageID    `json:"message_ids,omitempty"`
	ReadAt         *time.Time            `json:"read_at,omitempty"`
}

type RoomStateEvent struct {
	Type    string               `json:"type"`
	Room    domain.RoomName      `json:"room"`
	Policy  domain.MessagePolicy `json:"message_policy"`
	CanSend bool                 `json:"can_send"`
	Members []core.IdentityDTO   `json:"members"`
	Count   int                  `json:"count"`
}

type StatusEvent struct {
	Type      string    `json:"type"`
	Msg       string    `json:"msg"`
	Kind      string    `json:"status"` // "join" | "leave"
	Timestamp time.Time `json:"timestamp"`
}

type RoomExpiredEvent struct {
	Type string          `json:"type"`
	Room domain.RoomName `json:"room"`
}

type SendRejectedEvent struct {
	Type  string          `json:"type"`
	Error string          `json:"error"`
	Room  domain.RoomName `json:"room,omitempty"`
}

// emit marshals and pushes one event; backpressure drops are logged, never fatal.
func emit(conn core.SignalConnection, v any) {
	b, err := json.Marshal(v)
	if err != nil {
		log.Error().Err(err).Str("module", "app.events").Msg("emit marshal")
		return
	}
	if err := conn.TrySend(b); err != nil {
		log.Warn().Err(err).Str("module", "app.events").Msg("emit dropped")
	}
}
