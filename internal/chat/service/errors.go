package service

import "errors"

// Validation and authorization failures are rejected synchronously; the
// connection stays open. State-conflict errors are informational, callers
// refresh the offer status. ErrOrderCreationFailed is retryable: the offer
// stays proposed.
var (
	ErrInvalidParticipants   = errors.New("participants must be two distinct users")
	ErrNotAParticipant       = errors.New("user is not a participant of this conversation")
	ErrEmptyBody             = errors.New("message content cannot be empty")
	ErrPayloadTooLarge       = errors.New("message content exceeds the size limit")
	ErrInvalidOfferTerms     = errors.New("offer price and quantity must be positive")
	ErrNotAnOffer            = errors.New("message is not a special offer")
	ErrNotRecipient          = errors.New("only the offer recipient can resolve it")
	ErrConflictingResolution = errors.New("offer already resolved with a different outcome")
	ErrOrderCreationFailed   = errors.New("order creation failed, offer remains proposed")
	ErrUnknownDecision       = errors.New("unknown offer decision")
)
