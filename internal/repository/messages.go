package repository

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/banterhq/banter/internal/domain"
)

// MessageRepository persists direct messages and advances the
// sent → delivered → read machine. All timestamp updates are guarded with
// IS NULL predicates so re-invocation never regresses or duplicates state.
type MessageRepository struct {
	db *gorm.DB
}

func NewMessageRepository(db *gorm.DB) *MessageRepository {
	return &MessageRepository{db: db}
}

func (r *MessageRepository) Insert(ctx context.Context, m *domain.Message) error {
	if err := r.db.WithContext(ctx).Create(m).Error; err != nil {
		return fmt.Errorf("insert message: %w", err)
	}
	return nil
}

// Undelivered returns queued messages for a recipient, oldest first.
func (r *MessageRepository) Undelivered(ctx context.Context, recipient domain.UserID) ([]domain.Message, error) {
	var out []domain.Message
	err := r.db.WithContext(ctx).
		Where("recipient_id = ? AND delivered_at IS NULL", recipient).
		Order("created_at ASC, id ASC").
		Find(&out).Error
	if err != nil {
		return nil, fmt.Errorf("load undelivered: %w", err)
	}
	return out, nil
}

// MarkDelivered stamps the batch with one timestamp; already-delivered rows
// are left untouched.
func (r *MessageRepository) MarkDelivered(ctx context.Context, ids []domain.MessageID, at time.Time) error {
	if len(ids) == 0 {
		return nil
	}
	err := r.db.WithContext(ctx).
		Model(&domain.Message{}).
		Where("id IN ? AND delivered_at IS NULL", ids).
		Update("delivered_at", at).Error
	if err != nil {
		return fmt.Errorf("mark delivered: %w", err)
	}
	return nil
}

// UnreadInConversation returns messages addressed to the reader that still
// lack a read timestamp.
func (r *MessageRepository) UnreadInConversation(ctx context.Context, conv domain.ConversationID, recipient domain.UserID) ([]domain.Message, error) {
	var out []domain.Message
	err := r.db.WithContext(ctx).
		Where("conversation_id = ? AND recipient_id = ? AND read_at IS NULL", conv, recipient).
		Order("created_at ASC, id ASC").
		Find(&out).Error
	if err != nil {
		return nil, fmt.Errorf("load unread: %w", err)
	}
	return out, nil
}

// MarkRead sets read_at and back-fills any missing delivered_at with the
// same timestamp, as one transaction. read_at never precedes delivered_at.
func (r *MessageRepository) MarkRead(ctx context.Context, ids []domain.MessageID, at time.Time) error {
	if len(ids) == 0 {
		return nil
	}
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&domain.Message{}).
			Where("id IN ? AND delivered_at IS NULL", ids).
			Update("delivered_at", at).Error; err != nil {
			return err
		}
		return tx.Model(&domain.Message{}).
			Where("id IN ? AND read_at IS NULL", ids).
			Update("read_at", at).Error
	})
	if err != nil {
		return fmt.Errorf("mark read: %w", err)
	}
	return nil
}

// InConversation lists a conversation's history, oldest first.
func (r *MessageRepository) InConversation(ctx context.Context, conv domain.ConversationID, limit int) ([]domain.Message, error) {
	q := r.db.WithContext(ctx).
		Where("conversation_id = ?", conv).
		Order("created_at ASC, id ASC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	var out []domain.Message
	if err := q.Find(&out).Error; err != nil {
		return nil, fmt.Errorf("load conversation: %w", err)
	}
	return out, nil
}
