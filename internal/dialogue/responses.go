package dialogue

import (
	"fmt"
	"strings"

	"github.com/wolfman30/medorder-assistant/internal/catalog"
	"github.com/wolfman30/medorder-assistant/internal/extract"
	"github.com/wolfman30/medorder-assistant/internal/match"
)

const (
	msgCatalogUnavailable = "Sorry, I can't reach our product catalog right now. Please try again in a moment."
	msgHelp               = "You can ask me to add products (\"add 2 Panadol\"), check a price, remove items, view your cart or check out."
	msgGreeting           = "Hello! I can help you order medicines. Tell me what you need, for example \"add 2 Panadol Advance\"."
	msgClarify            = "Sorry, I didn't understand that. You can say things like \"add 2 Panadol\", \"how much is Brufen?\" or \"checkout\"."
	msgDidNotUnderstand   = "Sorry, I didn't understand that."
	msgWhichProduct       = "Which product do you mean?"

	msgNotFound          = "I couldn't find %q in our catalog."
	msgNoLongerListed    = "%s is no longer in our catalog."
	msgNothingMatches    = "I couldn't find anything matching %q."
	msgDeferredAmbiguous = "%q matches several products. Ask me about it again once we've finished the question above."
	msgDeferredQuantity  = "How many %s do you need? Tell me once we've finished the question above."
	msgAskQuantity       = "How many %s would you like? They are %s each."
	msgQuantityRetry     = "Please tell me how many %s you'd like as a number."
	msgQuantityLimit     = "I can take at most %d of %s on one order line."
	msgAdded             = "Added %d x %s (%s each) to your cart."

	msgShortStock         = "Sorry, we only have %d of %s in stock right now, so I can't add %d. Would you like %d instead? (yes/no)"
	msgShortStockMore     = "Sorry, only %d more of %s are available (you already have %d in your cart). Would you like %d more? (yes/no)"
	msgShortStockDeferred = "Only %d of %s are available right now; ask for that amount if you'd like them."
	msgAllStockInCart     = "You already have all %d of %s that we have in stock in your cart."
	msgOfferDeclined      = "Okay, I've left your cart as it was."
	msgSoldOutSinceOffer  = "Sorry, %s has sold out since I offered it."
	msgOfferShrunk        = "Stock moved again; only %d of %s are left."

	msgSelectionRetry = "I didn't catch which one you meant. Please reply with the option number:"
	msgInquiryHeader  = "Here's what I found for %q:"
	msgInquiryFooter  = "Reply with a number to add one to your cart."

	msgInquiryDuringCheckout = "You can add one by name once your checkout is finished or cancelled."

	msgNothingToCancel   = "There's nothing to cancel."
	msgCancelled         = "Okay, cancelled."
	msgCheckoutCancelled = "Okay, I've stopped the checkout. Your cart is still here."

	msgNothingRemoved       = "I couldn't find %q in your cart, so nothing was removed."
	msgRemoved              = "Removed %s from your cart."
	msgDecremented          = "Removed %d x %s; %d left in your cart."
	msgCleared              = "Your cart is now empty."
	msgAlreadyEmpty         = "Your cart is already empty."
	msgCartEmpty            = "Your cart is empty."
	msgCheckoutStoppedEmpty = "Your cart is empty now, so I've stopped the checkout."

	msgCheckoutEmptyCart = "Your cart is empty. Add something before checking out."
	msgInvalidName       = "That doesn't look like a name."
	msgInvalidPhone      = "That doesn't look like a valid phone number; it should have 7 to 15 digits."
	msgInvalidAddress    = "Please give a full delivery address (street and number or a landmark)."
	msgInvalidCity       = "That doesn't look like a city name."

	msgConfirmationDeclined = "Okay, I haven't placed the order. Your cart is still here."
	msgFinalCheckFailed     = "I couldn't place your order because some items changed:"
	msgFinalCheckKeep       = "The rest of your cart is kept. Adjust it and say \"checkout\" when you're ready; I've kept your delivery details."
	msgFailNoLongerListed   = "no longer in our catalog"
	msgFailOutOfStock       = "now out of stock"
	msgFailUnavailable      = "no longer available"
	msgFailShortStock       = "only %d left, you have %d in your cart"
	msgPricesChanged        = "Some prices changed since you added them:"
	msgPriceMoved           = "- %s is now %s (was %s)"

	msgOrderPlaced        = "Your order has been placed! Order number: %s. Total: %s, paid by %s."
	msgOrderReady         = "Your order is ready to be placed. Total: %s, paid by %s."
	msgSubmitStockChanged = "Stock changed while I was placing your order. Reply \"yes\" to re-check your cart and try again."
	msgSubmitInFlight     = "Your order is still being processed. Reply \"yes\" again in a moment."
	msgSubmitInvalid      = "I couldn't place this order because some of its details were rejected. Your cart is saved; say \"checkout\" to enter your details again."
	msgSubmitFailed       = "Sorry, I couldn't place your order right now. Your cart and details are saved; reply \"yes\" to try again."
)

var currencySymbols = map[string]string{
	"USD": "$",
	"EUR": "€",
	"GBP": "£",
}

func (e *Engine) money(m catalog.Money) string {
	code := strings.ToUpper(e.opts.Currency)
	if sym, ok := currencySymbols[code]; ok {
		if m < 0 {
			return "-" + sym + (-m).String()
		}
		return sym + m.String()
	}
	return code + " " + m.String()
}

func paymentLabel(method string) string {
	return strings.ReplaceAll(method, "_", " ")
}

func unavailableLine(p catalog.Product) string {
	if p.EffectiveStatus() == catalog.StatusOutOfStock {
		return fmt.Sprintf("Sorry, %s is out of stock at the moment.", p.DisplayName())
	}
	return fmt.Sprintf("Sorry, %s is currently unavailable.", p.DisplayName())
}

func (e *Engine) availabilityLine(p catalog.Product) string {
	switch p.EffectiveStatus() {
	case catalog.StatusAvailable:
		return fmt.Sprintf("%s: %s, in stock", p.DisplayName(), e.money(p.Price))
	case catalog.StatusOutOfStock:
		return fmt.Sprintf("%s: %s, out of stock", p.DisplayName(), e.money(p.Price))
	default:
		return fmt.Sprintf("%s: currently unavailable", p.DisplayName())
	}
}

func (e *Engine) priceLine(p catalog.Product, item extract.Item) string {
	line := fmt.Sprintf("%s costs %s", p.DisplayName(), e.money(p.Price))
	if item.HasQuantity && item.Quantity > 1 {
		line += fmt.Sprintf(" each (%d for %s)", item.Quantity, e.money(p.Price*catalog.Money(item.Quantity)))
	}
	switch p.EffectiveStatus() {
	case catalog.StatusOutOfStock:
		line += ", but it is out of stock right now"
	case catalog.StatusUnavailable:
		line += ", but it is currently unavailable"
	}
	return line + "."
}

func (e *Engine) optionList(cands []match.Candidate) string {
	lines := make([]string, 0, len(cands))
	for i, c := range cands {
		lines = append(lines, fmt.Sprintf("%d. %s", i+1, c.DisplayName))
	}
	return strings.Join(lines, "\n")
}

func (e *Engine) selectionPrompt(phrase string, cands []match.Candidate) string {
	return fmt.Sprintf("I found several products matching %q. Which one would you like?\n%s\nReply with the option number.", phrase, e.optionList(cands))
}

func (e *Engine) cartSummary(cart []CartItem) string {
	var b strings.Builder
	b.WriteString("Your cart:")
	for i, item := range cart {
		fmt.Fprintf(&b, "\n%d. %s x %d @ %s = %s", i+1, item.ProductName, item.Quantity, e.money(item.UnitPrice), e.money(item.LineTotal()))
	}
	fmt.Fprintf(&b, "\nTotal: %s", e.money(cartTotal(cart)))
	return b.String()
}

func slotPrompt(slot Slot) string {
	switch slot {
	case SlotName:
		return "What name should the order be under?"
	case SlotPhone:
		return "What phone number can we reach you on for the delivery?"
	case SlotAddress:
		return "What's the delivery address?"
	case SlotCity:
		return "Which city is that in? (reply \"skip\" to leave it out)"
	}
	return ""
}

func (e *Engine) confirmationPrompt(d OrderDraft) string {
	var b strings.Builder
	b.WriteString("Please confirm your order:")
	for i, item := range d.Items {
		fmt.Fprintf(&b, "\n%d. %s x %d @ %s = %s", i+1, item.ProductName, item.Quantity, e.money(item.UnitPrice), e.money(item.LineTotal()))
	}
	fmt.Fprintf(&b, "\nTotal: %s", e.money(d.Total))
	address := d.Customer.Address
	if d.Customer.City != "" {
		address += ", " + d.Customer.City
	}
	fmt.Fprintf(&b, "\nDeliver to: %s, %s", d.Customer.Name, address)
	fmt.Fprintf(&b, "\nPhone: %s", d.Customer.Phone)
	fmt.Fprintf(&b, "\nPayment: %s", paymentLabel(d.PaymentMethod))
	b.WriteString("\nReply \"yes\" to place the order or \"no\" to cancel.")
	return b.String()
}

// reprompt restates whatever the dialogue is waiting for, or "" when idle.
func (e *Engine) reprompt(sc SessionContext) string {
	switch p := sc.PendingOrder.(type) {
	case AwaitingQuantity:
		return fmt.Sprintf("How many %s would you like?", p.Candidate.DisplayName)
	case AwaitingSelection:
		return "Which one would you like? Reply with a number:\n" + e.optionList(p.Candidates)
	case AwaitingCheckoutSlot:
		return slotPrompt(p.Slot)
	case AwaitingConfirmation:
		return "Reply \"yes\" to place your order or \"no\" to cancel."
	}
	if sc.StockOffer != nil {
		return fmt.Sprintf("Would you like %d of %s instead? (yes/no)", sc.StockOffer.Quantity, sc.StockOffer.ProductName)
	}
	return ""
}
