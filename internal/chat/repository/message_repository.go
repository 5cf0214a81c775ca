package repository

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/RxJP/StreetSource/internal/dbmysql"
)

// OfferDecision is evaluated by the service layer inside the resolve
// transaction, with the offer row locked. Returning an error aborts the
// transaction; returning an empty newStatus commits without writing
// (idempotent repeat of an existing terminal state).
type OfferDecision func(msg *dbmysql.Message, conv *dbmysql.Conversation) (newStatus string, orderID *string, err error)

type MessageRepository interface {
	Append(ctx context.Context, msg *dbmysql.Message) error
	ListSince(ctx context.Context, conversationID string, afterSeq uint64, limit int) ([]*dbmysql.Message, error)
	ByID(ctx context.Context, id string) (*dbmysql.Message, error)
	Latest(ctx context.Context, conversationID string) (*dbmysql.Message, error)
	ResolveOffer(ctx context.Context, messageID string, decide OfferDecision) (*dbmysql.Message, error)
	ExpireStaleOffers(ctx context.Context, cutoff time.Time) (int64, error)
}

type messageRepo struct {
	db *gorm.DB
}

func NewMessageRepository(db *gorm.DB) MessageRepository {
	return &messageRepo{db: db}
}

// Append inserts the message and advances the conversation's sequence and
// last_activity_at in one transaction. The conversation row is locked for
// update first, which serializes concurrent submissions to the same
// conversation; every committed message gets a unique, strictly increasing
// Seq and failed writes leave no gap behind.
func (r *messageRepo) Append(ctx context.Context, msg *dbmysql.Message) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var conv dbmysql.Conversation
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			First(&conv, "id = ?", msg.ConversationID).Error
		if err != nil {
			return err
		}

		msg.Seq = conv.LastSeq + 1
		if err := tx.Create(msg).Error; err != nil {
			return err
		}

		return tx.Model(&dbmysql.Conversation{}).
			Where("id = ?", conv.ID).
			Updates(map[string]interface{}{
				"last_seq":         msg.Seq,
				"last_activity_at": msg.SentAt,
			}).Error
	})
}

func (r *messageRepo) ListSince(ctx context.Context, conversationID string, afterSeq uint64, limit int) ([]*dbmysql.Message, error) {
	var messages []*dbmysql.Message
	err := r.db.WithContext(ctx).
		Where("conversation_id = ? AND seq > ?", conversationID, afterSeq).
		Order("seq ASC").
		Limit(limit).
		Find(&messages).Error
	return messages, err
}

func (r *messageRepo) ByID(ctx context.Context, id string) (*dbmysql.Message, error) {
	var msg dbmysql.Message
	err := r.db.WithContext(ctx).First(&msg, "id = ?", id).Error
	if err != nil {
		return nil, err
	}
	return &msg, nil
}

// Latest returns the newest message of a conversation, used for list previews.
func (r *messageRepo) Latest(ctx context.Context, conversationID string) (*dbmysql.Message, error) {
	var msg dbmysql.Message
	err := r.db.WithContext(ctx).
		Where("conversation_id = ?", conversationID).
		Order("seq DESC").
		First(&msg).Error
	if err != nil {
		return nil, err
	}
	return &msg, nil
}

// ResolveOffer runs decide against the current offer state under a row lock
// and, if decide asks for a transition, commits it with a proposed-guarded
// conditional update. Order creation runs inside decide, so an order failure
// rolls the whole transaction back and the offer stays proposed.
func (r *messageRepo) ResolveOffer(ctx context.Context, messageID string, decide OfferDecision) (*dbmysql.Message, error) {
	var resolved *dbmysql.Message

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var msg dbmysql.Message
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			First(&msg, "id = ?", messageID).Error
		if err != nil {
			return err
		}

		var conv dbmysql.Conversation
		if err := tx.First(&conv, "id = ?", msg.ConversationID).Error; err != nil {
			return err
		}

		newStatus, orderID, err := decide(&msg, &conv)
		if err != nil {
			return err
		}
		if newStatus == "" {
			resolved = &msg
			return nil
		}

		res := tx.Model(&dbmysql.Message{}).
			Where("id = ? AND offer_status = ?", msg.ID, dbmysql.OfferProposed).
			Updates(map[string]interface{}{
				"offer_status":   newStatus,
				"offer_order_id": orderID,
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected != 1 {
			// cannot happen while the row lock is held
			return fmt.Errorf("offer %s transition to %s affected %d rows", msg.ID, newStatus, res.RowsAffected)
		}

		msg.OfferStatus = newStatus
		msg.OfferOrderID = orderID
		resolved = &msg
		return nil
	})
	if err != nil {
		return nil, err
	}
	return resolved, nil
}

// ExpireStaleOffers sweeps proposed offers older than cutoff to expired.
// The proposed guard means a resolution that committed a moment earlier is
// never overwritten.
func (r *messageRepo) ExpireStaleOffers(ctx context.Context, cutoff time.Time) (int64, error) {
	res := r.db.WithContext(ctx).Model(&dbmysql.Message{}).
		Where("kind = ? AND offer_status = ? AND sent_at < ?", dbmysql.KindOffer, dbmysql.OfferProposed, cutoff).
		Update("offer_status", dbmysql.OfferExpired)
	return res.RowsAffected, res.Error
}
