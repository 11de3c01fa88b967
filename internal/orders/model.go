// Package orders persists confirmed checkouts. It is the boundary the chat
// engine hands a finished cart to, and it also backs the order-creation
// endpoint used by external callers.
package orders

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/wolfman30/medorder-assistant/internal/catalog"
)

// DefaultPaymentMethod is used when neither the payload nor config sets one.
const DefaultPaymentMethod = "cash_on_delivery"

// Status is the lifecycle state owned by the fulfilment system.
type Status string

const StatusPending Status = "pending"

// Item is one frozen order line.
type Item struct {
	ProductID   string        `json:"productId"`
	ProductName string        `json:"productName"`
	Quantity    int           `json:"quantity"`
	UnitPrice   catalog.Money `json:"unitPrice"`
}

// LineTotal is quantity times unit price.
func (i Item) LineTotal() catalog.Money {
	return i.UnitPrice * catalog.Money(i.Quantity)
}

// Payload is the order-creation request.
type Payload struct {
	SessionID       string `json:"sessionId,omitempty"`
	CustomerName    string `json:"customerName"`
	CustomerPhone   string `json:"customerPhone"`
	DeliveryAddress string `json:"deliveryAddress"`
	DeliveryCity    string `json:"deliveryCity,omitempty"`
	PaymentMethod   string `json:"paymentMethod,omitempty"`
	Items           []Item `json:"orderItems"`
	IdempotencyKey  string `json:"idempotencyKey,omitempty"`
}

// Validate checks the fields every order must carry.
func (p *Payload) Validate() error {
	if p == nil {
		return fmt.Errorf("%w: payload required", ErrInvalidOrder)
	}
	if strings.TrimSpace(p.CustomerName) == "" {
		return fmt.Errorf("%w: customer name is required", ErrInvalidOrder)
	}
	if strings.TrimSpace(p.CustomerPhone) == "" {
		return fmt.Errorf("%w: customer phone is required", ErrInvalidOrder)
	}
	if strings.TrimSpace(p.DeliveryAddress) == "" {
		return fmt.Errorf("%w: delivery address is required", ErrInvalidOrder)
	}
	if len(p.Items) == 0 {
		return fmt.Errorf("%w: at least one item is required", ErrInvalidOrder)
	}
	seen := make(map[string]struct{}, len(p.Items))
	for i, item := range p.Items {
		if strings.TrimSpace(item.ProductID) == "" {
			return fmt.Errorf("%w: item %d has no product id", ErrInvalidOrder, i+1)
		}
		if item.Quantity < 1 {
			return fmt.Errorf("%w: item %s has quantity %d", ErrInvalidOrder, item.ProductID, item.Quantity)
		}
		if item.UnitPrice < 0 {
			return fmt.Errorf("%w: item %s has a negative price", ErrInvalidOrder, item.ProductID)
		}
		if _, dup := seen[item.ProductID]; dup {
			return fmt.Errorf("%w: item %s listed twice", ErrInvalidOrder, item.ProductID)
		}
		seen[item.ProductID] = struct{}{}
	}
	return nil
}

// Total sums every line.
func (p *Payload) Total() catalog.Money {
	var total catalog.Money
	for _, item := range p.Items {
		total += item.LineTotal()
	}
	return total
}

// Order is a persisted order. Items are a frozen copy of the cart.
type Order struct {
	ID              string        `json:"orderId"`
	SessionID       string        `json:"sessionId,omitempty"`
	CustomerName    string        `json:"customerName"`
	CustomerPhone   string        `json:"customerPhone"`
	DeliveryAddress string        `json:"deliveryAddress"`
	DeliveryCity    string        `json:"deliveryCity,omitempty"`
	Items           []Item        `json:"orderItems"`
	PaymentMethod   string        `json:"paymentMethod"`
	Status          Status        `json:"status"`
	Total           catalog.Money `json:"total"`
	CreatedAt       time.Time     `json:"createdAt"`
}

// Receipt is what Submit returns to callers.
type Receipt struct {
	OrderID   string        `json:"orderId"`
	Status    Status        `json:"status"`
	Total     catalog.Money `json:"total"`
	CreatedAt time.Time     `json:"createdAt,omitempty"`
	Replayed  bool          `json:"replayed,omitempty"`
}

func receiptFor(o *Order, replayed bool) *Receipt {
	return &Receipt{OrderID: o.ID, Status: o.Status, Total: o.Total, CreatedAt: o.CreatedAt, Replayed: replayed}
}

// IdempotencyKey derives a stable key from the session, the customer details
// and the frozen lines, so a replayed confirmation maps to the same order.
// previousOrderID is the last order placed in the session; it separates a
// genuine reorder of the same cart from a replay.
func IdempotencyKey(p Payload, previousOrderID string) string {
	h := sha256.New()
	write := func(parts ...string) {
		for _, part := range parts {
			h.Write([]byte(strings.ToLower(strings.TrimSpace(part))))
			h.Write([]byte{0})
		}
	}
	write(previousOrderID, p.SessionID, p.CustomerName, p.CustomerPhone, p.DeliveryAddress, p.DeliveryCity)
	for _, item := range p.Items {
		write(item.ProductID, strconv.Itoa(item.Quantity), strconv.FormatInt(int64(item.UnitPrice), 10))
	}
	return "ord_" + hex.EncodeToString(h.Sum(nil))[:32]
}

func newOrder(id string, p *Payload, createdAt time.Time) *Order {
	items := make([]Item, len(p.Items))
	copy(items, p.Items)
	return &Order{
		ID:              id,
		SessionID:       p.SessionID,
		CustomerName:    strings.TrimSpace(p.CustomerName),
		CustomerPhone:   strings.TrimSpace(p.CustomerPhone),
		DeliveryAddress: strings.TrimSpace(p.DeliveryAddress),
		DeliveryCity:    strings.TrimSpace(p.DeliveryCity),
		Items:           items,
		PaymentMethod:   p.PaymentMethod,
		Status:          StatusPending,
		Total:           p.Total(),
		CreatedAt:       createdAt,
	}
}
