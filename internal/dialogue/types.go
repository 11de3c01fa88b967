// Package dialogue is the turn engine of the ordering assistant. Each turn
// takes the caller's SessionContext, reads the catalog live, and returns the
// complete next context. Nothing survives between turns inside the engine.
package dialogue

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/wolfman30/medorder-assistant/internal/catalog"
	"github.com/wolfman30/medorder-assistant/internal/match"
)

// CartItem is one cart line. UnitPrice is the price seen when the line was
// last added or re-validated.
type CartItem struct {
	ProductID   string        `json:"productId"`
	ProductName string        `json:"productName"`
	Quantity    int           `json:"quantity"`
	UnitPrice   catalog.Money `json:"unitPrice"`
}

// LineTotal is quantity times unit price.
func (c CartItem) LineTotal() catalog.Money {
	return c.UnitPrice * catalog.Money(c.Quantity)
}

func cartTotal(cart []CartItem) catalog.Money {
	var total catalog.Money
	for _, item := range cart {
		total += item.LineTotal()
	}
	return total
}

func cartQuantity(cart []CartItem, productID string) int {
	for _, item := range cart {
		if item.ProductID == productID {
			return item.Quantity
		}
	}
	return 0
}

// Slot is one checkout field.
type Slot string

const (
	SlotName    Slot = "name"
	SlotPhone   Slot = "phone"
	SlotAddress Slot = "address"
	SlotCity    Slot = "city"
)

var slotOrder = []Slot{SlotName, SlotPhone, SlotAddress, SlotCity}

// CustomerDetails are the checkout slots collected so far.
type CustomerDetails struct {
	Name        string `json:"name,omitempty"`
	Phone       string `json:"phone,omitempty"`
	Address     string `json:"address,omitempty"`
	City        string `json:"city,omitempty"`
	CitySkipped bool   `json:"citySkipped,omitempty"`
}

func (c CustomerDetails) has(slot Slot) bool {
	switch slot {
	case SlotName:
		return c.Name != ""
	case SlotPhone:
		return c.Phone != ""
	case SlotAddress:
		return c.Address != ""
	case SlotCity:
		return c.City != "" || c.CitySkipped
	}
	return false
}

// NextSlot returns the first slot still missing.
func (c CustomerDetails) NextSlot() (Slot, bool) {
	for _, slot := range slotOrder {
		if !c.has(slot) {
			return slot, true
		}
	}
	return "", false
}

// Complete reports whether confirmation may be offered.
func (c CustomerDetails) Complete() bool {
	_, missing := c.NextSlot()
	return !missing
}

// OrderDraft is the summary presented for confirmation.
type OrderDraft struct {
	Customer      CustomerDetails `json:"customer"`
	Items         []CartItem      `json:"items"`
	Total         catalog.Money   `json:"total"`
	PaymentMethod string          `json:"paymentMethod"`
}

// StockOffer is an outstanding reduced-quantity offer. It is only ever set
// while no order is pending.
type StockOffer struct {
	ProductID   string `json:"productId"`
	ProductName string `json:"productName"`
	Quantity    int    `json:"quantity"`
	Requested   int    `json:"requested"`
}

// PendingKind tags a PendingOrder variant on the wire.
type PendingKind string

const (
	KindAwaitingQuantity     PendingKind = "awaiting_quantity"
	KindAwaitingSelection    PendingKind = "awaiting_selection"
	KindAwaitingCheckoutSlot PendingKind = "awaiting_checkout_slot"
	KindAwaitingConfirmation PendingKind = "awaiting_confirmation"
)

// PendingOrder is what the dialogue is waiting for. The set of variants is
// closed; a nil PendingOrder means the dialogue is idle.
type PendingOrder interface {
	Kind() PendingKind
	isPending()
}

// AwaitingQuantity holds a resolved product until the user says how many.
type AwaitingQuantity struct {
	Candidate match.Candidate `json:"candidate"`
}

// AwaitingSelection holds the options offered for an ambiguous phrase.
// OriginalQuantity is 0 when none was given.
type AwaitingSelection struct {
	Candidates       []match.Candidate `json:"candidates"`
	OriginalQuantity int               `json:"originalQuantity"`
}

// AwaitingCheckoutSlot is the checkout form in progress.
type AwaitingCheckoutSlot struct {
	Slot      Slot            `json:"slot"`
	Collected CustomerDetails `json:"collected"`
}

// AwaitingConfirmation holds the draft shown to the user.
type AwaitingConfirmation struct {
	Order OrderDraft `json:"order"`
}

func (AwaitingQuantity) Kind() PendingKind     { return KindAwaitingQuantity }
func (AwaitingSelection) Kind() PendingKind    { return KindAwaitingSelection }
func (AwaitingCheckoutSlot) Kind() PendingKind { return KindAwaitingCheckoutSlot }
func (AwaitingConfirmation) Kind() PendingKind { return KindAwaitingConfirmation }

func (AwaitingQuantity) isPending()     {}
func (AwaitingSelection) isPending()    {}
func (AwaitingCheckoutSlot) isPending() {}
func (AwaitingConfirmation) isPending() {}

// MarshalPending encodes p as {"kind": ..., <variant fields>}; nil encodes as null.
func MarshalPending(p PendingOrder) ([]byte, error) {
	if p == nil {
		return []byte("null"), nil
	}
	body, err := json.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("dialogue: marshal pending order: %w", err)
	}
	fields := map[string]json.RawMessage{}
	if err := json.Unmarshal(body, &fields); err != nil {
		return nil, fmt.Errorf("dialogue: marshal pending order: %w", err)
	}
	kind, _ := json.Marshal(p.Kind())
	fields["kind"] = kind
	return json.Marshal(fields)
}

// UnmarshalPending decodes the envelope written by MarshalPending.
func UnmarshalPending(data []byte) (PendingOrder, error) {
	if len(data) == 0 || string(data) == "null" {
		return nil, nil
	}
	var head struct {
		Kind PendingKind `json:"kind"`
	}
	if err := json.Unmarshal(data, &head); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidContext, err)
	}

	var (
		p   PendingOrder
		err error
	)
	switch head.Kind {
	case KindAwaitingQuantity:
		var v AwaitingQuantity
		err = json.Unmarshal(data, &v)
		p = v
	case KindAwaitingSelection:
		var v AwaitingSelection
		err = json.Unmarshal(data, &v)
		if err == nil && len(v.Candidates) == 0 {
			err = fmt.Errorf("selection has no candidates")
		}
		p = v
	case KindAwaitingCheckoutSlot:
		var v AwaitingCheckoutSlot
		err = json.Unmarshal(data, &v)
		if err == nil && !validSlot(v.Slot) {
			err = fmt.Errorf("unknown slot %q", v.Slot)
		}
		p = v
	case KindAwaitingConfirmation:
		var v AwaitingConfirmation
		err = json.Unmarshal(data, &v)
		p = v
	case "":
		return nil, nil
	default:
		return nil, fmt.Errorf("%w: unknown pending kind %q", ErrInvalidContext, head.Kind)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidContext, err)
	}
	return p, nil
}

func validSlot(s Slot) bool {
	for _, slot := range slotOrder {
		if slot == s {
			return true
		}
	}
	return false
}

// SessionContext is the whole conversational state. The caller owns it and
// sends it back on every turn.
type SessionContext struct {
	SessionID    string
	Cart         []CartItem
	PendingOrder PendingOrder
	LastQuery    string
	StockOffer   *StockOffer
	Customer     *CustomerDetails
	LastOrderID  string
}

type sessionContextJSON struct {
	SessionID    string           `json:"sessionId"`
	Cart         []CartItem       `json:"cart"`
	PendingOrder json.RawMessage  `json:"pendingOrder"`
	LastQuery    string           `json:"lastQuery,omitempty"`
	StockOffer   *StockOffer      `json:"stockOffer,omitempty"`
	Customer     *CustomerDetails `json:"customer,omitempty"`
	LastOrderID  string           `json:"lastOrderId,omitempty"`
}

func (s SessionContext) MarshalJSON() ([]byte, error) {
	pending, err := MarshalPending(s.PendingOrder)
	if err != nil {
		return nil, err
	}
	cart := s.Cart
	if cart == nil {
		cart = []CartItem{}
	}
	return json.Marshal(sessionContextJSON{
		SessionID:    s.SessionID,
		Cart:         cart,
		PendingOrder: pending,
		LastQuery:    s.LastQuery,
		StockOffer:   s.StockOffer,
		Customer:     s.Customer,
		LastOrderID:  s.LastOrderID,
	})
}

func (s *SessionContext) UnmarshalJSON(data []byte) error {
	var raw sessionContextJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidContext, err)
	}
	pending, err := UnmarshalPending(raw.PendingOrder)
	if err != nil {
		return err
	}
	cart, err := normalizeCart(raw.Cart)
	if err != nil {
		return err
	}
	*s = SessionContext{
		SessionID:    raw.SessionID,
		Cart:         cart,
		PendingOrder: pending,
		LastQuery:    raw.LastQuery,
		StockOffer:   raw.StockOffer,
		Customer:     raw.Customer,
		LastOrderID:  raw.LastOrderID,
	}
	return nil
}

// normalizeCart merges repeated lines for one product and drops lines with
// nothing left to order. A line without a product id invalidates the context.
func normalizeCart(cart []CartItem) ([]CartItem, error) {
	out := make([]CartItem, 0, len(cart))
	seen := make(map[string]int, len(cart))
	for _, line := range cart {
		if strings.TrimSpace(line.ProductID) == "" {
			return nil, fmt.Errorf("%w: cart line without productId", ErrInvalidContext)
		}
		if line.Quantity < 1 {
			continue
		}
		if i, ok := seen[line.ProductID]; ok {
			out[i].Quantity += line.Quantity
			continue
		}
		seen[line.ProductID] = len(out)
		out = append(out, line)
	}
	return out, nil
}

// clone returns a copy whose cart and sidecars can be changed without
// touching the caller's value. Pending variants are immutable and shared.
func (s SessionContext) clone() SessionContext {
	out := s
	out.Cart = append([]CartItem{}, s.Cart...)
	if s.StockOffer != nil {
		offer := *s.StockOffer
		out.StockOffer = &offer
	}
	if s.Customer != nil {
		customer := *s.Customer
		out.Customer = &customer
	}
	return out
}
