package app

import (
	"context"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/banterhq/banter/internal/core"
	"github.com/banterhq/banter/internal/domain"
)

// MessageStore is the durable message surface the engine depends on.
// Implementations must keep MarkRead atomic per batch.
type MessageStore interface {
	Insert(ctx context.Context, m *domain.Message) error
	Undelivered(ctx context.Context, recipient domain.UserID) ([]domain.Message, error)
	MarkDelivered(ctx context.Context, ids []domain.MessageID, at time.Time) error
	UnreadInConversation(ctx context.Context, conv domain.ConversationID, recipient domain.UserID) ([]domain.Message, error)
	MarkRead(ctx context.Context, ids []domain.MessageID, at time.Time) error
}

// ConversationStore resolves the unique two-party thread for a pair.
type ConversationStore interface {
	ResolveDirect(ctx context.Context, a, b domain.UserID) (*domain.Conversation, error)
	IsParticipant(ctx context.Context, conv domain.ConversationID, user domain.UserID) (bool, error)
}

// IdentityDirectory is the external user-identity collaborator.
type IdentityDirectory interface {
	ByUsername(ctx context.Context, username string) (*domain.User, error)
	ByID(ctx context.Context, id domain.UserID) (*domain.User, error)
}

// DeliveryEngine owns direct-message construction, fan-out and the
// sent → delivered → read state machine. Store calls are never made while
// a registry lock is held; the registry hands out snapshots.
type DeliveryEngine struct {
	Registry  *Registry
	Store     MessageStore
	Convos    ConversationStore
	Directory IdentityDirectory

	clock func() time.Time
}

func NewDeliveryEngine(reg *Registry, store MessageStore, convos ConversationStore, dir IdentityDirectory) *DeliveryEngine {
	return &DeliveryEngine{
		Registry:  reg,
		Store:     store,
		Convos:    convos,
		Directory: dir,
		clock:     time.Now,
	}
}

// DirectSendRequest is a validated inbound direct message.
type DirectSendRequest struct {
	Target  string
	Kind    domain.MessageType
	Body    string
	File    string
	ReplyTo *ReplyRef
}

// SendDirect persists the message in sent state and, when the recipient has
// a live connection, records delivery before pushing. The returned event is
// the sender's echo.
func (e *DeliveryEngine) SendDirect(ctx context.Context, sender *domain.User, req DirectSendRequest) (*DirectMessageEvent, error) {
	if sender.IsGuest() {
		return nil, domain.ErrIdentityNotFound
	}
	body := strings.TrimSpace(req.Body)
	switch req.Kind {
	case domain.TypePrivate:
		if body == "" {
			return nil, domain.ErrEmptyMessage
		}
	case domain.TypePrivateSticker:
		if req.File == "" {
			return nil, domain.ErrEmptyMessage
		}
	default:
		return nil, domain.ErrEmptyMessage
	}

	recipient, err := e.Directory.ByUsername(ctx, req.Target)
	if err != nil {
		return nil, err
	}

	conv, err := e.Convos.ResolveDirect(ctx, sender.ID, recipient.ID)
	if err != nil {
		return nil, err
	}

	msg := &domain.Message{
		ConversationID: conv.ID,
		SenderID:       sender.ID,
		RecipientID:    recipient.ID,
		Body:           body,
		Type:           req.Kind,
		StickerFile:    req.File,
		CreatedAt:      e.clock(),
	}
	if err := e.Store.Insert(ctx, msg); err != nil {
		return nil, err
	}

	// Delivery is recorded before the push is attempted: the transport gives
	// no acknowledgement beyond "pushed to an open connection".
	if _, sess, ok := e.Registry.ResolveConnection(recipient.ID); ok {
		now := e.clock()
		if err := e.Store.MarkDelivered(ctx, []domain.MessageID{msg.ID}, now); err != nil {
			log.Error().Err(err).Str("module", "app.delivery").Uint("msg", uint(msg.ID)).Msg("mark delivered")
		} else {
			msg.MarkDelivered(now)
		}
		emit(sess.Signal(), e.directEvent(msg, sender, recipient, req.ReplyTo))
	}

	log.Info().Str("module", "app.delivery").Str("from", sender.Username).Str("to", recipient.Username).Str("status", string(msg.Status())).Msg("direct message")
	return e.directEvent(msg, sender, recipient, req.ReplyTo), nil
}

// CatchUp delivers everything still queued for a freshly connected
// persistent identity: one batch emission, one delivered timestamp.
// This is the only offline-delivery mechanism; there is no retry loop.
func (e *DeliveryEngine) CatchUp(ctx context.Context, sid core.SessionID, user *domain.User) error {
	if user.IsGuest() {
		return nil
	}
	sess, ok := e.Registry.Session(sid)
	if !ok {
		return nil
	}

	queued, err := e.Store.Undelivered(ctx, user.ID)
	if err != nil {
		return err
	}
	if len(queued) == 0 {
		return nil
	}

	now := e.clock()
	ids := make([]domain.MessageID, 0, len(queued))
	for i := range queued {
		ids = append(ids, queued[i].ID)
	}
	if err := e.Store.MarkDelivered(ctx, ids, now); err != nil {
		return err
	}

	batch := DirectMessageBatchEvent{Type: "direct_message_batch"}
	for i := range queued {
		m := &queued[i]
		m.MarkDelivered(now)
		sender, err := e.Directory.ByID(ctx, m.SenderID)
		if err != nil {
			log.Warn().Err(err).Str("module", "app.delivery").Uint("sender", uint(m.SenderID)).Msg("catch-up sender lookup")
			sender = domain.NewGuest("unknown")
		}
		batch.Messages = append(batch.Messages, *e.directEvent(m, sender, user, nil))
	}
	emit(sess.Signal(), batch)

	log.Info().Str("module", "app.delivery").Str("user", user.Username).Int("count", len(queued)).Msg("catch-up delivered")
	return nil
}

// ReadSummary reports one MarkConversationRead outcome.
type ReadSummary struct {
	Updated    int
	MessageIDs []domain.MessageID
	ReadAt     time.Time
}

// MarkConversationRead marks every unread message addressed to the reader in
// the conversation, back-filling missing delivered timestamps with the same
// instant, then pushes receipts to each distinct sender's live connection.
// Zero updates is a valid, non-error outcome; the call is idempotent.
func (e *DeliveryEngine) MarkConversationRead(ctx context.Context, reader *domain.User, conv domain.ConversationID) (ReadSummary, error) {
	if reader.IsGuest() {
		return ReadSummary{}, domain.ErrNotParticipant
	}
	member, err := e.Convos.IsParticipant(ctx, conv, reader.ID)
	if err != nil {
		return ReadSummary{}, err
	}
	if !member {
		return ReadSummary{}, domain.ErrNotParticipant
	}

	unread, err := e.Store.UnreadInConversation(ctx, conv, reader.ID)
	if err != nil {
		return ReadSummary{}, err
	}
	if len(unread) == 0 {
		return ReadSummary{}, nil
	}

	now := e.clock()
	ids := make([]domain.MessageID, 0, len(unread))
	bySender := make(map[domain.UserID][]domain.MessageID)
	for i := range unread {
		m := &unread[i]
		ids = append(ids, m.ID)
		bySender[m.SenderID] = append(bySender[m.SenderID], m.ID)
	}
	if err := e.Store.MarkRead(ctx, ids, now); err != nil {
		return ReadSummary{}, err
	}

	for senderID, senderIDs := range bySender {
		_, sess, ok := e.Registry.ResolveConnection(senderID)
		if !ok {
			continue
		}
		emit(sess.Signal(), ReadReceiptEvent{
			Type:           "read_receipt",
			ConversationID: conv,
			Reader:         reader.Username,
			MessageIDs:     senderIDs,
			ReadAt:         now,
		})
	}

	log.Info().Str("module", "app.delivery").Str("reader", reader.Username).Uint("conversation", uint(conv)).Int("count", len(ids)).Msg("conversation read")
	return ReadSummary{Updated: len(ids), MessageIDs: ids, ReadAt: now}, nil
}

func (e *DeliveryEngine) directEvent(m *domain.Message, sender, recipient *domain.User, reply *ReplyRef) *DirectMessageEvent {
	return &DirectMessageEvent{
		Type:           "direct_message",
		ID:             m.ID,
		ConversationID: m.ConversationID,
		Sender:         sender.Username,
		Recipient:      recipient.Username,
		Avatar:         sender.AvatarURL,
		Body:           m.Body,
		File:           m.StickerFile,
		Kind:           m.Type,
		Status:         m.Status(),
		ReplyTo:        reply,
		Timestamp:      m.CreatedAt,
		DeliveredAt:    m.DeliveredAt,
		ReadAt:         m.ReadAt,
	}
}
