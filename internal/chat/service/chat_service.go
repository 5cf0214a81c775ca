package service

import (
	"context"
	"log"
	"math"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/RxJP/StreetSource/internal/chat/repository"
	"github.com/RxJP/StreetSource/internal/common"
	"github.com/RxJP/StreetSource/internal/dbmysql"
)

// OfferTerms is the structured payload of a special-offer message.
type OfferTerms struct {
	PricePerUnit float64
	Quantity     int
	ProductID    *string
}

// SendResult carries the persisted message plus the counterpart the delivery
// layer fans out to.
type SendResult struct {
	Message   *dbmysql.Message
	Recipient string
}

// ConversationSummary is a conversation-list entry enriched for the UI.
type ConversationSummary struct {
	Conversation    *dbmysql.Conversation
	CounterpartID   string
	CounterpartName string
	LastMessage     *dbmysql.Message
}

// ChatService defines the interface exposed to the delivery and HTTP layers
type ChatService interface {
	StartConversation(ctx context.Context, userA, userB string) (*dbmysql.Conversation, error)
	GetConversation(ctx context.Context, conversationID string) (*dbmysql.Conversation, error)
	ListConversations(ctx context.Context, userID string) ([]*ConversationSummary, error)
	SendMessage(ctx context.Context, conversationID, senderID, content string) (*SendResult, error)
	SendOffer(ctx context.Context, conversationID, senderID string, terms OfferTerms) (*SendResult, error)
	ListSince(ctx context.Context, conversationID, requesterID string, afterSeq uint64, limit int) ([]*dbmysql.Message, error)
}

type chatService struct {
	conversations repository.ConversationRepository
	messages      repository.MessageRepository
	users         common.UserDirectory
	maxBody       int
	backfillLimit int
}

// Constructor used in DI/wire
func NewChatService(
	conversations repository.ConversationRepository,
	messages repository.MessageRepository,
	users common.UserDirectory,
	maxBody int,
	backfillLimit int,
) ChatService {
	return &chatService{
		conversations: conversations,
		messages:      messages,
		users:         users,
		maxBody:       maxBody,
		backfillLimit: backfillLimit,
	}
}

func (s *chatService) StartConversation(ctx context.Context, userA, userB string) (*dbmysql.Conversation, error) {
	if userA == "" || userB == "" || userA == userB {
		return nil, ErrInvalidParticipants
	}
	return s.conversations.GetOrCreate(ctx, userA, userB)
}

func (s *chatService) GetConversation(ctx context.Context, conversationID string) (*dbmysql.Conversation, error) {
	return s.conversations.ByID(ctx, conversationID)
}

func (s *chatService) ListConversations(ctx context.Context, userID string) ([]*ConversationSummary, error) {
	conversations, err := s.conversations.ListForUser(ctx, userID)
	if err != nil {
		return nil, err
	}

	summaries := make([]*ConversationSummary, 0, len(conversations))
	for _, conv := range conversations {
		counterpart := conv.Counterpart(userID)

		name, err := s.users.DisplayName(ctx, counterpart)
		if err != nil {
			// directory is UI-only enrichment, degrade to an empty name
			log.Printf("user directory lookup failed for %s: %v", counterpart, err)
			name = ""
		}

		last, err := s.messages.Latest(ctx, conv.ID)
		if err != nil {
			last = nil
		}

		summaries = append(summaries, &ConversationSummary{
			Conversation:    conv,
			CounterpartID:   counterpart,
			CounterpartName: name,
			LastMessage:     last,
		})
	}
	return summaries, nil
}

// SendMessage validates and persists a plain chat message
func (s *chatService) SendMessage(ctx context.Context, conversationID, senderID, content string) (*SendResult, error) {
	if strings.TrimSpace(content) == "" {
		return nil, ErrEmptyBody
	}
	if len(content) > s.maxBody {
		return nil, ErrPayloadTooLarge
	}

	return s.submit(ctx, conversationID, senderID, &dbmysql.Message{
		Kind:    dbmysql.KindPlain,
		Content: content,
	})
}

// SendOffer validates and persists a special-offer message in proposed state
func (s *chatService) SendOffer(ctx context.Context, conversationID, senderID string, terms OfferTerms) (*SendResult, error) {
	if terms.PricePerUnit <= 0 || math.IsInf(terms.PricePerUnit, 0) || math.IsNaN(terms.PricePerUnit) {
		return nil, ErrInvalidOfferTerms
	}
	if terms.Quantity <= 0 {
		return nil, ErrInvalidOfferTerms
	}

	return s.submit(ctx, conversationID, senderID, &dbmysql.Message{
		Kind:           dbmysql.KindOffer,
		OfferPrice:     terms.PricePerUnit,
		OfferQty:       terms.Quantity,
		OfferProductID: terms.ProductID,
		OfferStatus:    dbmysql.OfferProposed,
	})
}

func (s *chatService) submit(ctx context.Context, conversationID, senderID string, msg *dbmysql.Message) (*SendResult, error) {
	conv, err := s.conversations.ByID(ctx, conversationID)
	if err != nil {
		return nil, err
	}
	if !conv.HasParticipant(senderID) {
		return nil, ErrNotAParticipant
	}

	msg.ID = uuid.NewString()
	msg.ConversationID = conv.ID
	msg.SenderID = senderID
	// Server-assigned timestamp; client clocks are advisory only
	msg.SentAt = time.Now().UTC()

	if err := s.messages.Append(ctx, msg); err != nil {
		return nil, err
	}

	return &SendResult{Message: msg, Recipient: conv.Counterpart(senderID)}, nil
}

// ListSince returns messages after a sequence value, oldest first. Used for
// initial history load and reconnect backfill.
func (s *chatService) ListSince(ctx context.Context, conversationID, requesterID string, afterSeq uint64, limit int) ([]*dbmysql.Message, error) {
	conv, err := s.conversations.ByID(ctx, conversationID)
	if err != nil {
		return nil, err
	}
	if !conv.HasParticipant(requesterID) {
		return nil, ErrNotAParticipant
	}

	if limit <= 0 || limit > s.backfillLimit {
		limit = s.backfillLimit
	}
	return s.messages.ListSince(ctx, conversationID, afterSeq, limit)
}
