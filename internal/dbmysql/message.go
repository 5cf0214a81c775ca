package dbmysql

import (
	"time"
)

// Message kinds
const (
	KindPlain = "plain"
	KindOffer = "offer"
)

// Offer statuses. Proposed is the only non-terminal state.
const (
	OfferProposed = "proposed"
	OfferAccepted = "accepted"
	OfferDeclined = "declined"
	OfferExpired  = "expired"
)

// Message is an immutable chat entry. Seq is assigned server-side inside the
// append transaction and is strictly increasing per conversation; the
// composite unique index makes a duplicate assignment impossible. The only
// mutable columns are OfferStatus and OfferOrderID, and only through the
// proposed-guarded conditional update in the repository.
type Message struct {
	ID             string `gorm:"primaryKey;size:36"`
	ConversationID string `gorm:"size:36;not null;uniqueIndex:idx_conversation_seq,priority:1"`
	Seq            uint64 `gorm:"not null;uniqueIndex:idx_conversation_seq,priority:2"`
	SenderID       string `gorm:"index;size:36;not null"`
	Kind           string `gorm:"size:8;not null"`
	Content        string `gorm:"type:text"`

	// Offer payload, populated only for KindOffer rows
	OfferPrice     float64
	OfferQty       int
	OfferProductID *string `gorm:"size:36"`
	OfferStatus    string  `gorm:"size:16;index"`
	OfferOrderID   *string `gorm:"size:36"`

	SentAt    time.Time `gorm:"not null"`
	CreatedAt time.Time
	UpdatedAt time.Time
}

func (m *Message) IsOffer() bool {
	return m.Kind == KindOffer
}

// OfferTerminal reports whether the offer reached a final state.
func (m *Message) OfferTerminal() bool {
	switch m.OfferStatus {
	case OfferAccepted, OfferDeclined, OfferExpired:
		return true
	}
	return false
}
