package service

import (
	"context"
	"fmt"
	"time"

	"github.com/RxJP/StreetSource/internal/chat/repository"
	"github.com/RxJP/StreetSource/internal/common"
	"github.com/RxJP/StreetSource/internal/dbmysql"
)

// Decision is a user-requested terminal state for a proposed offer.
type Decision string

const (
	DecisionAccept  Decision = dbmysql.OfferAccepted
	DecisionDecline Decision = dbmysql.OfferDeclined
)

// OfferResolution is the outcome of a resolve call. AlreadyResolved marks an
// idempotent repeat: the offer was already in the requested terminal state
// and nothing was written.
type OfferResolution struct {
	MessageID       string
	ConversationID  string
	Status          string
	OrderID         *string
	ProposerID      string
	ResolverID      string
	AlreadyResolved bool
}

// OfferService owns the offer lifecycle: proposed -> accepted | declined |
// expired, exactly one terminal state per offer.
type OfferService interface {
	Resolve(ctx context.Context, messageID, actingUserID string, decision Decision) (*OfferResolution, error)
	ExpireStale(ctx context.Context) (int64, error)
}

type offerService struct {
	messages repository.MessageRepository
	orders   common.OrderService
	ttl      time.Duration
}

func NewOfferService(messages repository.MessageRepository, orders common.OrderService, ttl time.Duration) OfferService {
	return &offerService{
		messages: messages,
		orders:   orders,
		ttl:      ttl,
	}
}

// Resolve applies a terminal decision to an offer on behalf of its recipient.
// The status check, the order creation (on accept) and the status write all
// happen inside one repository transaction with the offer row locked, so two
// concurrent resolutions serialize: the first commits, the second observes
// the terminal state and gets either an idempotent resolution or
// ErrConflictingResolution. A createOrder failure aborts the transaction and
// the offer stays proposed, safe to retry.
func (s *offerService) Resolve(ctx context.Context, messageID, actingUserID string, decision Decision) (*OfferResolution, error) {
	if decision != DecisionAccept && decision != DecisionDecline {
		return nil, ErrUnknownDecision
	}

	idempotent := false

	msg, err := s.messages.ResolveOffer(ctx, messageID,
		func(msg *dbmysql.Message, conv *dbmysql.Conversation) (string, *string, error) {
			if !msg.IsOffer() {
				return "", nil, ErrNotAnOffer
			}
			if !conv.HasParticipant(actingUserID) {
				return "", nil, ErrNotAParticipant
			}
			if msg.SenderID == actingUserID {
				return "", nil, ErrNotRecipient
			}

			if msg.OfferTerminal() {
				if msg.OfferStatus == string(decision) {
					idempotent = true
					return "", nil, nil
				}
				return "", nil, ErrConflictingResolution
			}

			if decision == DecisionDecline {
				return dbmysql.OfferDeclined, nil, nil
			}

			// Accept: the proposer is recorded as the buyer, the resolver as
			// the seller. Order creation runs inside the transaction so a
			// failure here rolls the transition back.
			orderID, err := s.orders.CreateOrder(ctx, msg.SenderID, actingUserID, msg.OfferProductID, msg.OfferQty, msg.OfferPrice)
			if err != nil {
				return "", nil, fmt.Errorf("%w: %v", ErrOrderCreationFailed, err)
			}
			return dbmysql.OfferAccepted, &orderID, nil
		})
	if err != nil {
		return nil, err
	}

	return &OfferResolution{
		MessageID:       msg.ID,
		ConversationID:  msg.ConversationID,
		Status:          msg.OfferStatus,
		OrderID:         msg.OfferOrderID,
		ProposerID:      msg.SenderID,
		ResolverID:      actingUserID,
		AlreadyResolved: idempotent,
	}, nil
}

// ExpireStale sweeps proposed offers past their TTL to expired. Runs on a
// timer, not at read time; a reader may briefly observe a proposed offer
// past TTL until the next sweep.
func (s *offerService) ExpireStale(ctx context.Context) (int64, error) {
	cutoff := time.Now().UTC().Add(-s.ttl)
	return s.messages.ExpireStaleOffers(ctx, cutoff)
}
