package repository

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/RxJP/StreetSource/internal/dbmysql"
)

type ConversationRepository interface {
	GetOrCreate(ctx context.Context, userA, userB string) (*dbmysql.Conversation, error)
	ByID(ctx context.Context, id string) (*dbmysql.Conversation, error)
	ListForUser(ctx context.Context, userID string) ([]*dbmysql.Conversation, error)
}

type conversationRepo struct {
	db *gorm.DB
}

func NewConversationRepository(db *gorm.DB) ConversationRepository {
	return &conversationRepo{db: db}
}

// GetOrCreate resolves the canonical conversation for a pair of users,
// creating it on first contact. A concurrent create loses on the pair's
// unique index and falls back to re-reading the winner's row, so callers
// never observe a duplicate.
func (r *conversationRepo) GetOrCreate(ctx context.Context, userA, userB string) (*dbmysql.Conversation, error) {
	low, high := dbmysql.CanonicalPair(userA, userB)

	conv, err := r.findByPair(ctx, low, high)
	if err == nil {
		return conv, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	now := time.Now().UTC()
	created := &dbmysql.Conversation{
		ID:              uuid.NewString(),
		ParticipantLow:  low,
		ParticipantHigh: high,
		LastActivityAt:  now,
	}
	err = r.db.WithContext(ctx).Create(created).Error
	if err == nil {
		return created, nil
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		// lost the creation race, the winner's row is authoritative
		return r.findByPair(ctx, low, high)
	}
	return nil, err
}

func (r *conversationRepo) findByPair(ctx context.Context, low, high string) (*dbmysql.Conversation, error) {
	var conv dbmysql.Conversation
	err := r.db.WithContext(ctx).
		Where("participant_low = ? AND participant_high = ?", low, high).
		First(&conv).Error
	if err != nil {
		return nil, err
	}
	return &conv, nil
}

func (r *conversationRepo) ByID(ctx context.Context, id string) (*dbmysql.Conversation, error) {
	var conv dbmysql.Conversation
	err := r.db.WithContext(ctx).First(&conv, "id = ?", id).Error
	if err != nil {
		return nil, err
	}
	return &conv, nil
}

func (r *conversationRepo) ListForUser(ctx context.Context, userID string) ([]*dbmysql.Conversation, error) {
	var conversations []*dbmysql.Conversation
	err := r.db.WithContext(ctx).
		Where("participant_low = ? OR participant_high = ?", userID, userID).
		Order("last_activity_at DESC").
		Find(&conversations).Error
	return conversations, err
}
