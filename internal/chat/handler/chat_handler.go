// Package handler exposes the negotiation subsystem over HTTP: REST queries
// for conversation listing and backfill, plus the WebSocket connect endpoint.
package handler

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"gorm.io/gorm"

	"github.com/RxJP/StreetSource/internal/chat/hub"
	"github.com/RxJP/StreetSource/internal/chat/service"
	"github.com/RxJP/StreetSource/internal/common"
)

type ChatHandler struct {
	chat        service.ChatService
	coordinator *hub.Coordinator
	jwtSecret   []byte
	upgrader    websocket.Upgrader
}

func NewChatHandler(chat service.ChatService, coordinator *hub.Coordinator, jwtSecret []byte) *ChatHandler {
	return &ChatHandler{
		chat:        chat,
		coordinator: coordinator,
		jwtSecret:   jwtSecret,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				// TODO: restrict to the frontend origin in production
				return true
			},
		},
	}
}

// Router builds the service's route table.
func (h *ChatHandler) Router() *mux.Router {
	router := mux.NewRouter()
	router.HandleFunc("/health", h.health).Methods("GET")

	authed := router.NewRoute().Subrouter()
	authed.Use(common.AuthMiddleware(h.jwtSecret))
	authed.HandleFunc("/ws", h.serveWs).Methods("GET")
	authed.HandleFunc("/api/conversations", h.listConversations).Methods("GET")
	authed.HandleFunc("/api/conversations", h.startConversation).Methods("POST")
	authed.HandleFunc("/api/conversations/{id}/messages", h.listMessages).Methods("GET")

	return router
}

func (h *ChatHandler) health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// serveWs upgrades the connection and hands it to the delivery coordinator.
func (h *ChatHandler) serveWs(w http.ResponseWriter, r *http.Request) {
	userID, ok := common.UserIDFromContext(r.Context())
	if !ok {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("websocket upgrade failed for user %s: %v", userID, err)
		return
	}

	h.coordinator.ServeConnection(conn, userID)
}

type conversationResponse struct {
	ID              string    `json:"id"`
	CounterpartID   string    `json:"other_user_id"`
	CounterpartName string    `json:"other_user_name,omitempty"`
	LastMessage     string    `json:"last_message,omitempty"`
	LastSequence    uint64    `json:"last_sequence"`
	LastActivityAt  time.Time `json:"last_activity_at"`
}

func (h *ChatHandler) listConversations(w http.ResponseWriter, r *http.Request) {
	userID, _ := common.UserIDFromContext(r.Context())

	summaries, err := h.chat.ListConversations(r.Context(), userID)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	conversations := make([]conversationResponse, 0, len(summaries))
	for _, s := range summaries {
		resp := conversationResponse{
			ID:              s.Conversation.ID,
			CounterpartID:   s.CounterpartID,
			CounterpartName: s.CounterpartName,
			LastSequence:    s.Conversation.LastSeq,
			LastActivityAt:  s.Conversation.LastActivityAt,
		}
		if s.LastMessage != nil {
			resp.LastMessage = previewText(s.LastMessage.Kind, s.LastMessage.Content)
		}
		conversations = append(conversations, resp)
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{"conversations": conversations})
}

type startConversationRequest struct {
	PartnerID string `json:"partner_id"`
}

// startConversation resolves (or lazily creates) the canonical conversation
// with a partner, so the client has a conversation id before the first frame.
func (h *ChatHandler) startConversation(w http.ResponseWriter, r *http.Request) {
	userID, _ := common.UserIDFromContext(r.Context())

	var req startConversationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.PartnerID == "" {
		http.Error(w, "partner_id is required", http.StatusBadRequest)
		return
	}

	conv, err := h.chat.StartConversation(r.Context(), userID, req.PartnerID)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"id":               conv.ID,
		"other_user_id":    conv.Counterpart(userID),
		"last_sequence":    conv.LastSeq,
		"last_activity_at": conv.LastActivityAt,
	})
}

type messageResponse struct {
	ID             string    `json:"id"`
	ConversationID string    `json:"conversation_id"`
	SenderID       string    `json:"sender_id"`
	Kind           string    `json:"kind"`
	Content        string    `json:"content,omitempty"`
	Sequence       uint64    `json:"sequence"`
	SentAt         time.Time `json:"sent_at"`

	PricePerUnit float64 `json:"price_per_unit,omitempty"`
	Quantity     int     `json:"quantity,omitempty"`
	ProductID    *string `json:"product_id,omitempty"`
	OfferStatus  string  `json:"offer_status,omitempty"`
	OrderID      *string `json:"order_id,omitempty"`
}

// listMessages serves history and reconnect backfill: messages with a
// sequence greater than ?after, oldest first.
func (h *ChatHandler) listMessages(w http.ResponseWriter, r *http.Request) {
	userID, _ := common.UserIDFromContext(r.Context())
	conversationID := mux.Vars(r)["id"]

	afterSeq, err := parseUintParam(r, "after", 0)
	if err != nil {
		http.Error(w, "invalid after parameter", http.StatusBadRequest)
		return
	}
	limit, err := parseUintParam(r, "limit", 0)
	if err != nil {
		http.Error(w, "invalid limit parameter", http.StatusBadRequest)
		return
	}

	messages, err := h.chat.ListSince(r.Context(), conversationID, userID, afterSeq, int(limit))
	if err != nil {
		writeServiceError(w, err)
		return
	}

	out := make([]messageResponse, 0, len(messages))
	for _, m := range messages {
		resp := messageResponse{
			ID:             m.ID,
			ConversationID: m.ConversationID,
			SenderID:       m.SenderID,
			Kind:           m.Kind,
			Content:        m.Content,
			Sequence:       m.Seq,
			SentAt:         m.SentAt,
		}
		if m.IsOffer() {
			resp.PricePerUnit = m.OfferPrice
			resp.Quantity = m.OfferQty
			resp.ProductID = m.OfferProductID
			resp.OfferStatus = m.OfferStatus
			resp.OrderID = m.OfferOrderID
		}
		out = append(out, resp)
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{"messages": out})
}

func previewText(kind, content string) string {
	if kind == "offer" {
		return "Special offer"
	}
	return content
}

func parseUintParam(r *http.Request, name string, def uint64) (uint64, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def, nil
	}
	return strconv.ParseUint(raw, 10, 64)
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		log.Printf("failed to encode response: %v", err)
	}
}

func writeServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, service.ErrInvalidParticipants),
		errors.Is(err, service.ErrEmptyBody),
		errors.Is(err, service.ErrPayloadTooLarge),
		errors.Is(err, service.ErrInvalidOfferTerms):
		http.Error(w, err.Error(), http.StatusBadRequest)
	case errors.Is(err, service.ErrNotAParticipant), errors.Is(err, service.ErrNotRecipient):
		http.Error(w, err.Error(), http.StatusForbidden)
	case errors.Is(err, service.ErrConflictingResolution):
		http.Error(w, err.Error(), http.StatusConflict)
	case errors.Is(err, gorm.ErrRecordNotFound):
		http.Error(w, "not found", http.StatusNotFound)
	default:
		log.Printf("internal error: %v", err)
		http.Error(w, "internal server error", http.StatusInternalServerError)
	}
}
