package hub

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"gorm.io/gorm"

	"github.com/RxJP/StreetSource/internal/chat/service"
	"github.com/RxJP/StreetSource/internal/common"
)

const (
	writeWait     = 10 * time.Second
	sendQueueSize = 64
)

// Coordinator turns inbound frames into pipeline calls and pipeline outputs
// into outbound frames. One Client (and one reader goroutine) exists per live
// connection, so frames from a single connection are processed in order;
// work across connections runs concurrently.
type Coordinator struct {
	registry    *Registry
	chat        service.ChatService
	offers      service.OfferService
	users       common.UserDirectory
	idleTimeout time.Duration
	maxFrame    int64
}

func NewCoordinator(
	registry *Registry,
	chat service.ChatService,
	offers service.OfferService,
	users common.UserDirectory,
	idleTimeout time.Duration,
	maxMessageSize int,
) *Coordinator {
	c := &Coordinator{
		registry:    registry,
		chat:        chat,
		offers:      offers,
		users:       users,
		idleTimeout: idleTimeout,
		// envelope overhead on top of the body limit
		maxFrame: int64(maxMessageSize) + 1024,
	}
	registry.Subscribe(c)
	return c
}

// Client is one live connection of one user.
type Client struct {
	coordinator *Coordinator
	registry    *Registry
	conn        *websocket.Conn
	send        chan []byte
	userID      string
	connectedAt time.Time

	mu     sync.Mutex
	closed bool
}

// ServeConnection registers the upgraded connection and starts its pumps.
func (h *Coordinator) ServeConnection(conn *websocket.Conn, userID string) {
	client := &Client{
		coordinator: h,
		registry:    h.registry,
		conn:        conn,
		send:        make(chan []byte, sendQueueSize),
		userID:      userID,
		connectedAt: time.Now(),
	}
	h.registry.Register(client)

	go client.writePump(h.idleTimeout)
	go client.readPump(h.idleTimeout, h.maxFrame)
}

// PresenceChanged pushes online/offline transitions to everyone currently
// connected. Presence is ephemeral; nothing is persisted.
func (h *Coordinator) PresenceChanged(userID string, online bool) {
	frame := OutboundFrame{
		Type: FramePresence,
		Data: PresencePayload{UserID: userID, Online: online},
	}
	for _, other := range h.registry.OnlineUsers() {
		if other == userID {
			continue
		}
		h.registry.Push(other, frame, nil)
	}
}

func (h *Coordinator) Name() string {
	return "delivery_coordinator"
}

func (c *Client) readPump(idleTimeout time.Duration, maxFrame int64) {
	defer func() {
		// persistence happens before any push, so nothing is lost here;
		// the client reconciles via backfill on reconnect
		c.registry.Unregister(c)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxFrame)
	c.conn.SetReadDeadline(time.Now().Add(idleTimeout))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(idleTimeout))
		return nil
	})

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Printf("read error for user %s: %v", c.userID, err)
			}
			return
		}
		c.coordinator.dispatch(c, raw)
	}
}

func (c *Client) writePump(idleTimeout time.Duration) {
	ticker := time.NewTicker(idleTimeout * 9 / 10)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case payload, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				log.Printf("write error for user %s: %v", c.userID, err)
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// enqueue hands a payload to the write pump without blocking. Reports false
// when the send buffer is full; the caller decides what to do with the slow
// session. Payloads for an already-closed session are dropped.
func (c *Client) enqueue(payload []byte) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return true
	}
	select {
	case c.send <- payload:
		return true
	default:
		return false
	}
}

func (c *Client) enqueueFrame(frame OutboundFrame) {
	payload, err := json.Marshal(frame)
	if err != nil {
		log.Printf("failed to marshal %s frame: %v", frame.Type, err)
		return
	}
	if !c.enqueue(payload) {
		c.closeSend()
	}
}

// closeSend stops the write pump; the read pump then unregisters the session.
func (c *Client) closeSend() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.closed {
		c.closed = true
		close(c.send)
	}
}

func (c *Client) sendError(correlationID, code, message string) {
	c.enqueueFrame(OutboundFrame{
		Type:          FrameError,
		CorrelationID: correlationID,
		Data:          ErrorPayload{Code: code, Message: message},
	})
}

func (h *Coordinator) dispatch(c *Client, raw []byte) {
	var frame InboundFrame
	if err := json.Unmarshal(raw, &frame); err != nil {
		c.sendError("", "invalid_payload", "malformed frame")
		return
	}

	ctx := context.Background()

	switch frame.Type {
	case FrameSendMessage:
		h.handleSendMessage(ctx, c, frame)
	case FrameSendOffer:
		h.handleSendOffer(ctx, c, frame)
	case FrameResolveOffer:
		h.handleResolveOffer(ctx, c, frame)
	default:
		c.sendError(frame.CorrelationID, "invalid_payload", "unknown frame type: "+frame.Type)
	}
}

func (h *Coordinator) handleSendMessage(ctx context.Context, c *Client, frame InboundFrame) {
	var req SendMessageFrame
	if err := json.Unmarshal(frame.Data, &req); err != nil {
		c.sendError(frame.CorrelationID, "invalid_payload", "malformed send_message frame")
		return
	}

	res, err := h.chat.SendMessage(ctx, req.ConversationID, c.userID, req.Content)
	if err != nil {
		c.sendError(frame.CorrelationID, errorCode(err), err.Error())
		return
	}
	h.ackAndDeliver(ctx, c, frame.CorrelationID, res)
}

func (h *Coordinator) handleSendOffer(ctx context.Context, c *Client, frame InboundFrame) {
	var req SendOfferFrame
	if err := json.Unmarshal(frame.Data, &req); err != nil {
		c.sendError(frame.CorrelationID, "invalid_payload", "malformed send_offer frame")
		return
	}

	res, err := h.chat.SendOffer(ctx, req.ConversationID, c.userID, service.OfferTerms{
		PricePerUnit: req.PricePerUnit,
		Quantity:     req.Quantity,
		ProductID:    req.ProductID,
	})
	if err != nil {
		c.sendError(frame.CorrelationID, errorCode(err), err.Error())
		return
	}
	h.ackAndDeliver(ctx, c, frame.CorrelationID, res)
}

// ackAndDeliver acknowledges the submitting connection, then fans the
// persisted message out: to every session of the recipient, and to the
// sender's other sessions so all devices converge without a refetch. A
// recipient with zero sessions gets nothing pushed; the message is already
// durable and is picked up by the next backfill.
func (h *Coordinator) ackAndDeliver(ctx context.Context, c *Client, correlationID string, res *service.SendResult) {
	msg := res.Message

	c.enqueueFrame(OutboundFrame{
		Type:          FrameMessageAck,
		CorrelationID: correlationID,
		Data: MessageAck{
			MessageID: msg.ID,
			Sequence:  msg.Seq,
			SentAt:    msg.SentAt,
		},
	})

	senderName, err := h.users.DisplayName(ctx, msg.SenderID)
	if err != nil {
		senderName = ""
	}
	delivered := OutboundFrame{
		Type: FrameMessageDelivered,
		Data: messagePayload(msg, senderName),
	}

	h.registry.Push(res.Recipient, delivered, nil)
	h.registry.Push(c.userID, delivered, c)
}

func (h *Coordinator) handleResolveOffer(ctx context.Context, c *Client, frame InboundFrame) {
	var req ResolveOfferFrame
	if err := json.Unmarshal(frame.Data, &req); err != nil {
		c.sendError(frame.CorrelationID, "invalid_payload", "malformed resolve_offer frame")
		return
	}

	resolution, err := h.offers.Resolve(ctx, req.MessageID, c.userID, service.Decision(req.Decision))
	if err != nil {
		c.sendError(frame.CorrelationID, errorCode(err), err.Error())
		return
	}

	c.enqueueFrame(OutboundFrame{
		Type:          FrameOfferResolved,
		CorrelationID: frame.CorrelationID,
		Data: OfferResolvedPayload{
			MessageID:       resolution.MessageID,
			Status:          resolution.Status,
			OrderID:         resolution.OrderID,
			AlreadyResolved: resolution.AlreadyResolved,
		},
	})

	resolvedPush := OutboundFrame{
		Type: FrameOfferResolved,
		Data: OfferResolvedPayload{
			MessageID: resolution.MessageID,
			Status:    resolution.Status,
			OrderID:   resolution.OrderID,
		},
	}
	h.registry.Push(resolution.ProposerID, resolvedPush, c)
	h.registry.Push(resolution.ResolverID, resolvedPush, c)

	if resolution.Status == string(service.DecisionAccept) && resolution.OrderID != nil && !resolution.AlreadyResolved {
		orderCreated := OutboundFrame{
			Type: FrameOrderCreated,
			Data: OrderCreatedPayload{OrderID: *resolution.OrderID, MessageID: resolution.MessageID},
		}
		h.registry.Push(resolution.ProposerID, orderCreated, nil)
		h.registry.Push(resolution.ResolverID, orderCreated, nil)
	}
}

func errorCode(err error) string {
	switch {
	case errors.Is(err, service.ErrEmptyBody):
		return "empty_body"
	case errors.Is(err, service.ErrPayloadTooLarge):
		return "payload_too_large"
	case errors.Is(err, service.ErrInvalidOfferTerms):
		return "invalid_offer_terms"
	case errors.Is(err, service.ErrInvalidParticipants):
		return "invalid_participants"
	case errors.Is(err, service.ErrNotAParticipant):
		return "not_participant"
	case errors.Is(err, service.ErrNotAnOffer):
		return "not_an_offer"
	case errors.Is(err, service.ErrNotRecipient):
		return "not_recipient"
	case errors.Is(err, service.ErrConflictingResolution):
		return "conflicting_resolution"
	case errors.Is(err, service.ErrOrderCreationFailed):
		return "order_creation_failed"
	case errors.Is(err, service.ErrUnknownDecision):
		return "invalid_payload"
	case errors.Is(err, gorm.ErrRecordNotFound):
		return "not_found"
	default:
		return "internal"
	}
}
