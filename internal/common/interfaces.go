package common

import (
	"context"
)

// OrderService is the external order system. CreateOrder is called only from
// the offer-accept path; a failure there must abort the accept transaction.
type OrderService interface {
	CreateOrder(ctx context.Context, buyerID, sellerID string, productID *string, quantity int, unitPrice float64) (string, error)
}

// UserDirectory resolves display names for conversation listings. UI
// enrichment only; no invariant depends on it.
type UserDirectory interface {
	DisplayName(ctx context.Context, userID string) (string, error)
}
