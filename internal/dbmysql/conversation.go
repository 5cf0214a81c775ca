package dbmysql

import (
	"time"
)

// Conversation is the single canonical thread between a pair of users.
// ParticipantLow/ParticipantHigh hold the pair in lexicographic order so
// that {A,B} and {B,A} map to the same row; the composite unique index
// enforces at-most-one conversation per pair.
type Conversation struct {
	ID              string    `gorm:"primaryKey;size:36"`
	ParticipantLow  string    `gorm:"size:36;not null;uniqueIndex:idx_conversation_pair,priority:1"`
	ParticipantHigh string    `gorm:"size:36;not null;uniqueIndex:idx_conversation_pair,priority:2"`
	LastSeq         uint64    `gorm:"not null;default:0"`
	LastActivityAt  time.Time `gorm:"index"`
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// CanonicalPair orders two participant ids so lookups are direction-independent.
func CanonicalPair(a, b string) (low, high string) {
	if a < b {
		return a, b
	}
	return b, a
}

func (c *Conversation) HasParticipant(userID string) bool {
	return c.ParticipantLow == userID || c.ParticipantHigh == userID
}

// Counterpart returns the other participant of the conversation.
func (c *Conversation) Counterpart(userID string) string {
	if c.ParticipantLow == userID {
		return c.ParticipantHigh
	}
	return c.ParticipantLow
}
