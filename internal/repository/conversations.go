package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog/log"
	"gorm.io/gorm"

	"github.com/banterhq/banter/internal/domain"
)

// ConversationRepository upholds the pair-uniqueness invariant: for any
// unordered pair of persistent identities at most one direct conversation
// exists, even under concurrent first contact.
type ConversationRepository struct {
	db *gorm.DB
}

func NewConversationRepository(db *gorm.DB) *ConversationRepository {
	return &ConversationRepository{db: db}
}

// ResolveDirect finds or creates the conversation for the unordered pair.
// The insert path races through the unique pair-key index: a loser catches
// gorm.ErrDuplicatedKey and retries the lookup once.
func (r *ConversationRepository) ResolveDirect(ctx context.Context, a, b domain.UserID) (*domain.Conversation, error) {
	if a == 0 || b == 0 {
		return nil, domain.ErrIdentityNotFound
	}
	if a == b {
		return nil, domain.ErrSelfConversation
	}

	if conv, err := r.findPair(ctx, a, b); err == nil {
		return conv, nil
	} else if !errors.Is(err, domain.ErrConversationNotFound) {
		return nil, err
	}

	conv, err := r.createPair(ctx, a, b)
	if err == nil {
		return conv, nil
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		log.Info().Str("module", "repository.conversations").Uint("a", uint(a)).Uint("b", uint(b)).Msg("lost first-contact race, re-resolving")
		return r.findPair(ctx, a, b)
	}
	return nil, err
}

// findPair keeps only conversations whose participant set is exactly the
// pair: size two, no extras. The count revalidation guards against a
// partially-inserted third participant from an unrelated group thread.
func (r *ConversationRepository) findPair(ctx context.Context, a, b domain.UserID) (*domain.Conversation, error) {
	var conv domain.Conversation
	err := r.db.WithContext(ctx).
		Where("pair_key = ?", domain.DirectPairKey(a, b)).
		First(&conv).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.ErrConversationNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find conversation: %w", err)
	}

	var count int64
	err = r.db.WithContext(ctx).
		Model(&domain.ConversationParticipant{}).
		Where("conversation_id = ? AND user_id IN ?", conv.ID, []domain.UserID{a, b}).
		Count(&count).Error
	if err != nil {
		return nil, fmt.Errorf("count participants: %w", err)
	}
	if count != 2 {
		return nil, domain.ErrConversationNotFound
	}
	return &conv, nil
}

// createPair inserts the conversation row plus both participant rows in one
// atomic unit.
func (r *ConversationRepository) createPair(ctx context.Context, a, b domain.UserID) (*domain.Conversation, error) {
	lo, hi := a, b
	if hi < lo {
		lo, hi = hi, lo
	}
	now := r.db.NowFunc()
	conv := domain.Conversation{
		PairKey:   domain.DirectPairKey(a, b),
		Metadata:  fmt.Sprintf(`{"kind":"direct","participants":[%d,%d]}`, lo, hi),
		CreatedAt: now,
	}
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&conv).Error; err != nil {
			return err
		}
		participants := []domain.ConversationParticipant{
			{ConversationID: conv.ID, UserID: lo, JoinedAt: now},
			{ConversationID: conv.ID, UserID: hi, JoinedAt: now},
		}
		return tx.Create(&participants).Error
	})
	if err != nil {
		return nil, err
	}
	log.Info().Str("module", "repository.conversations").Uint("conversation", uint(conv.ID)).Str("pair", conv.PairKey).Msg("conversation created")
	return &conv, nil
}

// IsParticipant reports membership of a user in a conversation.
func (r *ConversationRepository) IsParticipant(ctx context.Context, conv domain.ConversationID, user domain.UserID) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&domain.ConversationParticipant{}).
		Where("conversation_id = ? AND user_id = ?", conv, user).
		Count(&count).Error
	if err != nil {
		return false, fmt.Errorf("participant check: %w", err)
	}
	return count > 0, nil
}
