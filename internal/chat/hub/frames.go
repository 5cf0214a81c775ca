package hub

import (
	"encoding/json"
	"time"

	"github.com/RxJP/StreetSource/internal/dbmysql"
)

// Inbound frame types
const (
	FrameSendMessage  = "send_message"
	FrameSendOffer    = "send_offer"
	FrameResolveOffer = "resolve_offer"
)

// Outbound frame types
const (
	FrameMessageAck       = "message_ack"
	FrameMessageDelivered = "message_delivered"
	FrameOfferResolved    = "offer_resolved"
	FrameOrderCreated     = "order_created"
	FramePresence         = "presence"
	FrameError            = "error"
)

// InboundFrame is the envelope every client frame arrives in. The
// correlation id is client-chosen and echoed back on the ack or error so the
// client can reconcile optimistic pending messages.
type InboundFrame struct {
	Type          string          `json:"type"`
	CorrelationID string          `json:"correlation_id,omitempty"`
	Data          json.RawMessage `json:"data"`
}

type SendMessageFrame struct {
	ConversationID string `json:"conversation_id"`
	Content        string `json:"content"`
}

type SendOfferFrame struct {
	ConversationID string  `json:"conversation_id"`
	PricePerUnit   float64 `json:"price_per_unit"`
	Quantity       int     `json:"quantity"`
	ProductID      *string `json:"product_id,omitempty"`
}

type ResolveOfferFrame struct {
	MessageID string `json:"message_id"`
	Decision  string `json:"decision"`
}

type OutboundFrame struct {
	Type          string      `json:"type"`
	CorrelationID string      `json:"correlation_id,omitempty"`
	Data          interface{} `json:"data,omitempty"`
}

type MessageAck struct {
	MessageID string    `json:"message_id"`
	Sequence  uint64    `json:"sequence"`
	SentAt    time.Time `json:"sent_at"`
}

// MessagePayload is the delivered representation of a message. Offer fields
// are present only on offer-kind messages; offer status is the state at
// delivery time, current state is read via the REST backfill.
type MessagePayload struct {
	ID             string    `json:"id"`
	ConversationID string    `json:"conversation_id"`
	SenderID       string    `json:"sender_id"`
	SenderName     string    `json:"sender_name,omitempty"`
	Kind           string    `json:"kind"`
	Content        string    `json:"content,omitempty"`
	Sequence       uint64    `json:"sequence"`
	SentAt         time.Time `json:"sent_at"`

	PricePerUnit float64 `json:"price_per_unit,omitempty"`
	Quantity     int     `json:"quantity,omitempty"`
	ProductID    *string `json:"product_id,omitempty"`
	OfferStatus  string  `json:"offer_status,omitempty"`
}

type OfferResolvedPayload struct {
	MessageID       string  `json:"message_id"`
	Status          string  `json:"status"`
	OrderID         *string `json:"order_id,omitempty"`
	AlreadyResolved bool    `json:"already_resolved,omitempty"`
}

type OrderCreatedPayload struct {
	OrderID   string `json:"order_id"`
	MessageID string `json:"message_id"`
}

type PresencePayload struct {
	UserID string `json:"user_id"`
	Online bool   `json:"online"`
}

type ErrorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func messagePayload(msg *dbmysql.Message, senderName string) MessagePayload {
	p := MessagePayload{
		ID:             msg.ID,
		ConversationID: msg.ConversationID,
		SenderID:       msg.SenderID,
		SenderName:     senderName,
		Kind:           msg.Kind,
		Content:        msg.Content,
		Sequence:       msg.Seq,
		SentAt:         msg.SentAt,
	}
	if msg.IsOffer() {
		p.PricePerUnit = msg.OfferPrice
		p.Quantity = msg.OfferQty
		p.ProductID = msg.OfferProductID
		p.OfferStatus = msg.OfferStatus
	}
	return p
}
