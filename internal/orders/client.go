// Package orders is the client for the external order service. The
// negotiation subsystem calls it from exactly one place: the offer-accept
// transaction.
package orders

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"
)

const defaultTimeout = 10 * time.Second

type Client struct {
	baseURL    string
	httpClient *http.Client
}

func NewClient(baseURL string) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: defaultTimeout},
	}
}

type createOrderRequest struct {
	BuyerID   string  `json:"buyer_id"`
	SellerID  string  `json:"seller_id"`
	ProductID *string `json:"product_id,omitempty"`
	Quantity  int     `json:"quantity"`
	UnitPrice float64 `json:"unit_price"`
}

type createOrderResponse struct {
	OrderID string `json:"order_id"`
}

// CreateOrder places an order for the accepted offer terms and returns the
// new order id. Any failure is propagated so the caller can roll back the
// offer transition.
func (c *Client) CreateOrder(ctx context.Context, buyerID, sellerID string, productID *string, quantity int, unitPrice float64) (string, error) {
	body, err := json.Marshal(createOrderRequest{
		BuyerID:   buyerID,
		SellerID:  sellerID,
		ProductID: productID,
		Quantity:  quantity,
		UnitPrice: unitPrice,
	})
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/orders", bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("order service unreachable: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusCreated && resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("order service returned status %d", resp.StatusCode)
	}

	var out createOrderResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("order service returned malformed response: %w", err)
	}
	if out.OrderID == "" {
		return "", fmt.Errorf("order service returned empty order id")
	}
	return out.OrderID, nil
}
