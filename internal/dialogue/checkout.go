package dialogue

import (
	"errors"
	"fmt"
	"strings"
	"unicode"

	"github.com/wolfman30/medorder-assistant/internal/catalog"
	"github.com/wolfman30/medorder-assistant/internal/orders"
)

// startCheckout opens the slot sequence, resuming from details saved by an
// earlier attempt.
func (e *Engine) startCheckout(t *turn) {
	if len(t.sc.Cart) == 0 {
		t.note(OutcomeEmptyCart)
		t.say(msgCheckoutEmptyCart)
		return
	}

	collected := CustomerDetails{}
	switch p := t.sc.PendingOrder.(type) {
	case AwaitingCheckoutSlot:
		collected = p.Collected
	case AwaitingConfirmation:
		collected = p.Order.Customer
	default:
		if t.sc.Customer != nil {
			collected = *t.sc.Customer
		}
	}
	t.sc.Customer = nil
	t.note(OutcomeOK)
	e.advanceCheckout(t, collected)
}

func (e *Engine) advanceCheckout(t *turn, collected CustomerDetails) {
	slot, missing := collected.NextSlot()
	if !missing {
		draft := e.draft(t.sc.Cart, collected)
		t.sc.PendingOrder = AwaitingConfirmation{Order: draft}
		t.say(e.confirmationPrompt(draft))
		return
	}
	t.sc.PendingOrder = AwaitingCheckoutSlot{Slot: slot, Collected: collected}
	t.say(slotPrompt(slot))
}

func (e *Engine) slotReply(t *turn, text string) {
	pending, ok := t.sc.PendingOrder.(AwaitingCheckoutSlot)
	if !ok {
		return
	}
	collected, problem := fillSlot(pending.Collected, pending.Slot, text)
	if problem != "" {
		t.note(OutcomeInvalidSlot)
		t.say(problem)
		t.say(slotPrompt(pending.Slot))
		return
	}
	t.note(OutcomeOK)
	e.advanceCheckout(t, collected)
}

// fillSlot validates value for slot and returns the updated details, or a
// user-facing problem.
func fillSlot(c CustomerDetails, slot Slot, value string) (CustomerDetails, string) {
	value = strings.Join(strings.Fields(value), " ")
	switch slot {
	case SlotName:
		if countLetters(value) < 2 || len(value) > 80 {
			return c, msgInvalidName
		}
		c.Name = value
	case SlotPhone:
		phone, ok := normalizePhone(value)
		if !ok {
			return c, msgInvalidPhone
		}
		c.Phone = phone
	case SlotAddress:
		if len(value) < 5 || countLetters(value) == 0 {
			return c, msgInvalidAddress
		}
		c.Address = value
	case SlotCity:
		switch strings.ToLower(strings.TrimRight(value, ".! ")) {
		case "skip", "none", "no", "n/a", "na":
			c.City = ""
			c.CitySkipped = true
			return c, ""
		}
		if countLetters(value) < 2 {
			return c, msgInvalidCity
		}
		c.City = value
		c.CitySkipped = false
	}
	return c, ""
}

func countLetters(s string) int {
	n := 0
	for _, r := range s {
		if unicode.IsLetter(r) {
			n++
		}
	}
	return n
}

// normalizePhone keeps a leading + and the digits. Separators are allowed;
// anything else is rejected.
func normalizePhone(raw string) (string, bool) {
	var b strings.Builder
	digits := 0
	for i, r := range strings.TrimSpace(raw) {
		switch {
		case unicode.IsDigit(r):
			b.WriteRune(r)
			digits++
		case r == '+' && i == 0:
			b.WriteRune(r)
		case r == ' ' || r == '-' || r == '(' || r == ')' || r == '.':
		default:
			return "", false
		}
	}
	if digits < 7 || digits > 15 {
		return "", false
	}
	return b.String(), true
}

func (e *Engine) draft(cart []CartItem, customer CustomerDetails) OrderDraft {
	return OrderDraft{
		Customer:      customer,
		Items:         append([]CartItem{}, cart...),
		Total:         cartTotal(cart),
		PaymentMethod: e.opts.PaymentMethod,
	}
}

func (e *Engine) declineConfirmation(t *turn) {
	t.sc.PendingOrder = nil
	t.sc.Customer = nil
	t.note(OutcomeOK)
	t.say(msgConfirmationDeclined)
}

type lineFailure struct {
	name    string
	outcome Outcome
	reason  string
}

// confirm re-reads every cart line, then submits. Lines that can no longer
// be sold stop the submission and are reported; price moves re-present the
// summary so the user confirms the real total.
func (e *Engine) confirm(t *turn) error {
	pending := t.sc.PendingOrder.(AwaitingConfirmation)
	customer := pending.Order.Customer
	if len(t.sc.Cart) == 0 {
		t.sc.PendingOrder = nil
		t.note(OutcomeEmptyCart)
		t.say(msgCheckoutEmptyCart)
		return nil
	}

	var (
		failures []lineFailure
		changes  []string
	)
	for i, line := range t.sc.Cart {
		p, found, err := e.product(t, line.ProductID)
		if err != nil {
			return err
		}
		switch {
		case !found:
			failures = append(failures, lineFailure{line.ProductName, OutcomeNoMatch, msgFailNoLongerListed})
		case !p.Orderable():
			failures = append(failures, lineFailure{line.ProductName, OutcomeUnavailable, statusPhrase(p)})
		case p.Stock < line.Quantity:
			failures = append(failures, lineFailure{line.ProductName, OutcomeInsufficientStock,
				fmt.Sprintf(msgFailShortStock, p.Stock, line.Quantity)})
		case p.Price != line.UnitPrice:
			changes = append(changes, fmt.Sprintf(msgPriceMoved, line.ProductName, e.money(p.Price), e.money(line.UnitPrice)))
			t.sc.Cart[i].UnitPrice = p.Price
		}
	}

	if len(failures) > 0 {
		t.sc.PendingOrder = nil
		t.sc.Customer = &customer
		t.note(failures[0].outcome)
		t.say(msgFinalCheckFailed)
		for _, f := range failures {
			t.say(fmt.Sprintf("- %s: %s", f.name, f.reason))
		}
		if len(changes) > 0 {
			t.say(strings.Join(changes, "\n"))
		}
		t.say(msgFinalCheckKeep)
		return nil
	}
	if len(changes) > 0 {
		draft := e.draft(t.sc.Cart, customer)
		t.sc.PendingOrder = AwaitingConfirmation{Order: draft}
		t.note(OutcomePriceChanged)
		t.say(msgPricesChanged)
		t.say(strings.Join(changes, "\n"))
		t.say(e.confirmationPrompt(draft))
		return nil
	}

	data := e.orderData(t.sc.Cart, customer)
	if e.orders != nil {
		payload := orders.Payload{
			SessionID:       t.sc.SessionID,
			CustomerName:    customer.Name,
			CustomerPhone:   customer.Phone,
			DeliveryAddress: customer.Address,
			DeliveryCity:    customer.City,
			PaymentMethod:   e.opts.PaymentMethod,
			Items:           orderItems(t.sc.Cart),
		}
		payload.IdempotencyKey = orders.IdempotencyKey(payload, t.sc.LastOrderID)

		receipt, err := e.orders.Submit(t.ctx, payload)
		if err != nil {
			e.submissionFailed(t, err)
			return nil
		}
		data.OrderID = receipt.OrderID
		data.Total = receipt.Total
		t.sc.LastOrderID = receipt.OrderID
		t.logger.Info("order submitted", "order_id", receipt.OrderID, "replayed", receipt.Replayed)
	}

	t.sc.Cart = []CartItem{}
	t.sc.PendingOrder = nil
	t.sc.Customer = nil
	t.sc.StockOffer = nil
	t.reply.Type = ReplyTypeOrderReady
	t.reply.OrderData = data
	t.note(OutcomeOK)
	if data.OrderID != "" {
		t.say(fmt.Sprintf(msgOrderPlaced, data.OrderID, e.money(data.Total), paymentLabel(data.PaymentMethod)))
	} else {
		t.say(fmt.Sprintf(msgOrderReady, e.money(data.Total), paymentLabel(data.PaymentMethod)))
	}
	return nil
}

// submissionFailed leaves the confirmation open so the user can simply
// reply yes again, unless the order itself was rejected as invalid.
func (e *Engine) submissionFailed(t *turn, err error) {
	t.logger.Error("order submission failed", "error", err)
	t.note(OutcomeSubmissionError)
	switch {
	case errors.Is(err, orders.ErrStockChanged):
		t.say(msgSubmitStockChanged)
	case errors.Is(err, orders.ErrSubmissionInFlight):
		t.say(msgSubmitInFlight)
	case errors.Is(err, orders.ErrInvalidOrder):
		// Retrying the same payload cannot succeed; collect the details again.
		t.sc.PendingOrder = nil
		t.sc.Customer = nil
		t.say(msgSubmitInvalid)
	default:
		t.say(msgSubmitFailed)
	}
}

func (e *Engine) orderData(cart []CartItem, c CustomerDetails) *OrderData {
	return &OrderData{
		CustomerName:    c.Name,
		CustomerPhone:   c.Phone,
		DeliveryAddress: c.Address,
		DeliveryCity:    c.City,
		PaymentMethod:   e.opts.PaymentMethod,
		OrderItems:      append([]CartItem{}, cart...),
		Total:           cartTotal(cart),
	}
}

func orderItems(cart []CartItem) []orders.Item {
	items := make([]orders.Item, 0, len(cart))
	for _, line := range cart {
		items = append(items, orders.Item{
			ProductID:   line.ProductID,
			ProductName: line.ProductName,
			Quantity:    line.Quantity,
			UnitPrice:   line.UnitPrice,
		})
	}
	return items
}

func statusPhrase(p catalog.Product) string {
	if p.EffectiveStatus() == catalog.StatusOutOfStock {
		return msgFailOutOfStock
	}
	return msgFailUnavailable
}
