package hub

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/RxJP/StreetSource/internal/chat/service"
	"github.com/RxJP/StreetSource/internal/chat/service/mocks"
	"github.com/RxJP/StreetSource/internal/dbmysql"
)

type coordinatorFixture struct {
	coordinator *Coordinator
	registry    *Registry
	chat        *mocks.MockChatService
	offers      *mocks.MockOfferService
	users       *mocks.MockUserDirectory
}

func newCoordinatorFixture(t *testing.T) *coordinatorFixture {
	ctrl := gomock.NewController(t)
	registry := NewRegistry()
	chat := mocks.NewMockChatService(ctrl)
	offers := mocks.NewMockOfferService(ctrl)
	users := mocks.NewMockUserDirectory(ctrl)

	return &coordinatorFixture{
		coordinator: NewCoordinator(registry, chat, offers, users, 60*time.Second, 4096),
		registry:    registry,
		chat:        chat,
		offers:      offers,
		users:       users,
	}
}

type decodedFrame struct {
	Type          string          `json:"type"`
	CorrelationID string          `json:"correlation_id"`
	Data          json.RawMessage `json:"data"`
}

// nextFrameOfType reads frames off a session's send queue until one of the
// wanted type shows up. Presence frames from concurrent registrations are
// skipped along the way.
func nextFrameOfType(t *testing.T, c *Client, frameType string) decodedFrame {
	t.Helper()
	deadline := time.After(time.Second)
	for {
		select {
		case payload := <-c.send:
			var frame decodedFrame
			require.NoError(t, json.Unmarshal(payload, &frame))
			if frame.Type == frameType {
				return frame
			}
		case <-deadline:
			t.Fatalf("timed out waiting for a %s frame", frameType)
		}
	}
}

func assertNoFrameOfType(t *testing.T, c *Client, frameType string) {
	t.Helper()
	deadline := time.After(50 * time.Millisecond)
	for {
		select {
		case payload := <-c.send:
			var frame decodedFrame
			require.NoError(t, json.Unmarshal(payload, &frame))
			if frame.Type == frameType {
				t.Fatalf("unexpected %s frame: %s", frameType, string(frame.Data))
			}
		case <-deadline:
			return
		}
	}
}

func inbound(t *testing.T, frameType, correlationID string, data interface{}) []byte {
	t.Helper()
	raw, err := json.Marshal(data)
	require.NoError(t, err)
	payload, err := json.Marshal(InboundFrame{Type: frameType, CorrelationID: correlationID, Data: raw})
	require.NoError(t, err)
	return payload
}

func persistedMessage() *dbmysql.Message {
	return &dbmysql.Message{
		ID:             "msg-1",
		ConversationID: "conv-1",
		Seq:            5,
		SenderID:       "buyer-1",
		Kind:           dbmysql.KindPlain,
		Content:        "hello",
		SentAt:         time.Now().UTC(),
	}
}

func TestCoordinator_SendMessage_AcksAndDelivers(t *testing.T) {
	f := newCoordinatorFixture(t)

	senderPhone := newTestClient("buyer-1")
	senderLaptop := newTestClient("buyer-1")
	recipient := newTestClient("seller-1")
	f.registry.Register(senderPhone)
	f.registry.Register(senderLaptop)
	f.registry.Register(recipient)

	f.chat.EXPECT().
		SendMessage(gomock.Any(), "conv-1", "buyer-1", "hello").
		Return(&service.SendResult{Message: persistedMessage(), Recipient: "seller-1"}, nil)
	f.users.EXPECT().DisplayName(gomock.Any(), "buyer-1").Return("Buyer One", nil)

	f.coordinator.dispatch(senderPhone, inbound(t, FrameSendMessage, "corr-1", SendMessageFrame{
		ConversationID: "conv-1",
		Content:        "hello",
	}))

	// the submitting connection gets the ack with its correlation id
	ack := nextFrameOfType(t, senderPhone, FrameMessageAck)
	assert.Equal(t, "corr-1", ack.CorrelationID)
	var ackData MessageAck
	require.NoError(t, json.Unmarshal(ack.Data, &ackData))
	assert.Equal(t, "msg-1", ackData.MessageID)
	assert.Equal(t, uint64(5), ackData.Sequence)

	// every recipient session gets the delivery
	delivered := nextFrameOfType(t, recipient, FrameMessageDelivered)
	var payload MessagePayload
	require.NoError(t, json.Unmarshal(delivered.Data, &payload))
	assert.Equal(t, "msg-1", payload.ID)
	assert.Equal(t, "Buyer One", payload.SenderName)
	assert.Equal(t, uint64(5), payload.Sequence)

	// the sender's other devices converge too, but the submitting one only
	// ever sees the ack
	nextFrameOfType(t, senderLaptop, FrameMessageDelivered)
	assertNoFrameOfType(t, senderPhone, FrameMessageDelivered)
}

func TestCoordinator_SendMessage_ServiceErrorBecomesErrorFrame(t *testing.T) {
	f := newCoordinatorFixture(t)
	sender := newTestClient("buyer-1")
	f.registry.Register(sender)

	f.chat.EXPECT().
		SendMessage(gomock.Any(), "conv-1", "buyer-1", "").
		Return(nil, service.ErrEmptyBody)

	f.coordinator.dispatch(sender, inbound(t, FrameSendMessage, "corr-2", SendMessageFrame{
		ConversationID: "conv-1",
	}))

	frame := nextFrameOfType(t, sender, FrameError)
	assert.Equal(t, "corr-2", frame.CorrelationID)
	var errData ErrorPayload
	require.NoError(t, json.Unmarshal(frame.Data, &errData))
	assert.Equal(t, "empty_body", errData.Code)
}

func TestCoordinator_SendOffer_DeliversOfferFields(t *testing.T) {
	f := newCoordinatorFixture(t)
	sender := newTestClient("buyer-1")
	recipient := newTestClient("seller-1")
	f.registry.Register(sender)
	f.registry.Register(recipient)

	productID := "prod-9"
	offer := persistedMessage()
	offer.Kind = dbmysql.KindOffer
	offer.Content = ""
	offer.OfferPrice = 80
	offer.OfferQty = 50
	offer.OfferProductID = &productID
	offer.OfferStatus = dbmysql.OfferProposed

	f.chat.EXPECT().
		SendOffer(gomock.Any(), "conv-1", "buyer-1", service.OfferTerms{PricePerUnit: 80, Quantity: 50, ProductID: &productID}).
		Return(&service.SendResult{Message: offer, Recipient: "seller-1"}, nil)
	f.users.EXPECT().DisplayName(gomock.Any(), "buyer-1").Return("Buyer One", nil)

	f.coordinator.dispatch(sender, inbound(t, FrameSendOffer, "corr-3", SendOfferFrame{
		ConversationID: "conv-1",
		PricePerUnit:   80,
		Quantity:       50,
		ProductID:      &productID,
	}))

	nextFrameOfType(t, sender, FrameMessageAck)

	delivered := nextFrameOfType(t, recipient, FrameMessageDelivered)
	var payload MessagePayload
	require.NoError(t, json.Unmarshal(delivered.Data, &payload))
	assert.Equal(t, dbmysql.KindOffer, payload.Kind)
	assert.Equal(t, float64(80), payload.PricePerUnit)
	assert.Equal(t, 50, payload.Quantity)
	assert.Equal(t, dbmysql.OfferProposed, payload.OfferStatus)
}

func TestCoordinator_ResolveOffer_AcceptNotifiesBothSides(t *testing.T) {
	f := newCoordinatorFixture(t)
	resolver := newTestClient("seller-1")
	proposer := newTestClient("buyer-1")
	f.registry.Register(resolver)
	f.registry.Register(proposer)

	orderID := "order-77"
	f.offers.EXPECT().
		Resolve(gomock.Any(), "offer-1", "seller-1", service.DecisionAccept).
		Return(&service.OfferResolution{
			MessageID:      "offer-1",
			ConversationID: "conv-1",
			Status:         dbmysql.OfferAccepted,
			OrderID:        &orderID,
			ProposerID:     "buyer-1",
			ResolverID:     "seller-1",
		}, nil)

	f.coordinator.dispatch(resolver, inbound(t, FrameResolveOffer, "corr-4", ResolveOfferFrame{
		MessageID: "offer-1",
		Decision:  "accepted",
	}))

	reply := nextFrameOfType(t, resolver, FrameOfferResolved)
	assert.Equal(t, "corr-4", reply.CorrelationID)
	var resolved OfferResolvedPayload
	require.NoError(t, json.Unmarshal(reply.Data, &resolved))
	assert.Equal(t, dbmysql.OfferAccepted, resolved.Status)
	assert.False(t, resolved.AlreadyResolved)

	nextFrameOfType(t, proposer, FrameOfferResolved)

	// both participants learn about the new order
	var order OrderCreatedPayload
	frame := nextFrameOfType(t, proposer, FrameOrderCreated)
	require.NoError(t, json.Unmarshal(frame.Data, &order))
	assert.Equal(t, "order-77", order.OrderID)
	assert.Equal(t, "offer-1", order.MessageID)
	nextFrameOfType(t, resolver, FrameOrderCreated)
}

func TestCoordinator_ResolveOffer_IdempotentRepeatSkipsOrderFrame(t *testing.T) {
	f := newCoordinatorFixture(t)
	resolver := newTestClient("seller-1")
	f.registry.Register(resolver)

	orderID := "order-77"
	f.offers.EXPECT().
		Resolve(gomock.Any(), "offer-1", "seller-1", service.DecisionAccept).
		Return(&service.OfferResolution{
			MessageID:       "offer-1",
			Status:          dbmysql.OfferAccepted,
			OrderID:         &orderID,
			ProposerID:      "buyer-1",
			ResolverID:      "seller-1",
			AlreadyResolved: true,
		}, nil)

	f.coordinator.dispatch(resolver, inbound(t, FrameResolveOffer, "corr-5", ResolveOfferFrame{
		MessageID: "offer-1",
		Decision:  "accepted",
	}))

	reply := nextFrameOfType(t, resolver, FrameOfferResolved)
	var resolved OfferResolvedPayload
	require.NoError(t, json.Unmarshal(reply.Data, &resolved))
	assert.True(t, resolved.AlreadyResolved)
	assert.Equal(t, "order-77", *resolved.OrderID)

	assertNoFrameOfType(t, resolver, FrameOrderCreated)
}

func TestCoordinator_ResolveOffer_ConflictBecomesErrorFrame(t *testing.T) {
	f := newCoordinatorFixture(t)
	resolver := newTestClient("seller-1")
	f.registry.Register(resolver)

	f.offers.EXPECT().
		Resolve(gomock.Any(), "offer-1", "seller-1", service.DecisionAccept).
		Return(nil, service.ErrConflictingResolution)

	f.coordinator.dispatch(resolver, inbound(t, FrameResolveOffer, "corr-6", ResolveOfferFrame{
		MessageID: "offer-1",
		Decision:  "accepted",
	}))

	frame := nextFrameOfType(t, resolver, FrameError)
	var errData ErrorPayload
	require.NoError(t, json.Unmarshal(frame.Data, &errData))
	assert.Equal(t, "conflicting_resolution", errData.Code)
}

func TestCoordinator_Dispatch_MalformedFrames(t *testing.T) {
	f := newCoordinatorFixture(t)
	client := newTestClient("user-1")
	f.registry.Register(client)

	f.coordinator.dispatch(client, []byte("not json"))
	frame := nextFrameOfType(t, client, FrameError)
	var errData ErrorPayload
	require.NoError(t, json.Unmarshal(frame.Data, &errData))
	assert.Equal(t, "invalid_payload", errData.Code)

	f.coordinator.dispatch(client, inbound(t, "teleport", "corr-7", struct{}{}))
	frame = nextFrameOfType(t, client, FrameError)
	assert.Equal(t, "corr-7", frame.CorrelationID)
}

func TestCoordinator_PresenceChanged_NotifiesOtherUsers(t *testing.T) {
	f := newCoordinatorFixture(t)
	watcher := newTestClient("user-1")
	f.registry.Register(watcher)

	// a second user coming online is pushed to everyone already connected
	f.registry.Register(newTestClient("user-2"))

	frame := nextFrameOfType(t, watcher, FramePresence)
	var presence PresencePayload
	require.NoError(t, json.Unmarshal(frame.Data, &presence))
	assert.Equal(t, "user-2", presence.UserID)
	assert.True(t, presence.Online)
}
