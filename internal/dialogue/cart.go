package dialogue

import (
	"fmt"
	"strings"

	"github.com/wolfman30/medorder-assistant/internal/catalog"
	"github.com/wolfman30/medorder-assistant/internal/extract"
	"github.com/wolfman30/medorder-assistant/internal/intent"
	"github.com/wolfman30/medorder-assistant/internal/match"
)

// add handles a possibly multi-item add. Each item is matched and checked
// against the live catalog on its own; at most one of them may open a
// follow-up question.
func (e *Engine) add(t *turn, text string) error {
	var items []extract.Item
	for _, phrase := range extract.SplitItems(text) {
		if item := extract.ParseItem(phrase); item.Phrase != "" {
			items = append(items, item)
		}
	}
	if len(items) == 0 {
		t.sc.LastQuery = text
		t.note(OutcomeParseAmbiguous)
		t.say(msgWhichProduct)
		return nil
	}

	t.leaveCheckout()
	t.sc.PendingOrder = nil

	for _, item := range items {
		res, err := e.resolve(t, item.Phrase, t.mode)
		if err != nil {
			return err
		}
		quantity := 0
		if item.HasQuantity {
			quantity = item.Quantity
		}
		if err := e.addResult(t, item.Phrase, res, quantity); err != nil {
			return err
		}
	}
	return nil
}

func (e *Engine) addResult(t *turn, phrase string, res match.Result, quantity int) error {
	switch res.Outcome {
	case match.OutcomeNotFound:
		t.sc.LastQuery = phrase
		t.note(OutcomeNoMatch)
		t.say(fmt.Sprintf(msgNotFound, phrase))
		return nil
	case match.OutcomeAmbiguous:
		if t.followUp {
			t.say(fmt.Sprintf(msgDeferredAmbiguous, phrase))
			return nil
		}
		t.followUp = true
		t.sc.PendingOrder = AwaitingSelection{Candidates: res.Candidates, OriginalQuantity: quantity}
		t.note(OutcomeNeedsSelection)
		t.say(e.selectionPrompt(phrase, res.Candidates))
		return nil
	}

	cand, _ := res.Best()
	if quantity <= 0 {
		return e.askQuantity(t, cand)
	}
	return e.addProduct(t, cand.ProductID, cand.DisplayName, quantity)
}

// askQuantity opens AwaitingQuantity, unless the product cannot be sold now.
func (e *Engine) askQuantity(t *turn, cand match.Candidate) error {
	p, found, err := e.product(t, cand.ProductID)
	if err != nil {
		return err
	}
	if !found {
		t.note(OutcomeNoMatch)
		t.say(fmt.Sprintf(msgNoLongerListed, cand.DisplayName))
		return nil
	}
	if !p.Orderable() {
		t.note(OutcomeUnavailable)
		t.say(unavailableLine(p))
		return nil
	}
	if t.followUp {
		t.say(fmt.Sprintf(msgDeferredQuantity, p.DisplayName()))
		return nil
	}
	t.followUp = true
	t.sc.PendingOrder = AwaitingQuantity{Candidate: cand}
	t.note(OutcomeNeedsQuantity)
	t.say(fmt.Sprintf(msgAskQuantity, p.DisplayName(), e.money(p.Price)))
	return nil
}

// addProduct is the live availability check shared by every path that puts
// a product in the cart.
func (e *Engine) addProduct(t *turn, productID, displayName string, quantity int) error {
	if quantity > e.opts.MaxQuantityPerLine {
		t.note(OutcomeQuantityLimit)
		t.say(fmt.Sprintf(msgQuantityLimit, e.opts.MaxQuantityPerLine, displayName))
		return nil
	}
	p, found, err := e.product(t, productID)
	if err != nil {
		return err
	}
	if !found {
		t.note(OutcomeNoMatch)
		t.say(fmt.Sprintf(msgNoLongerListed, displayName))
		return nil
	}
	if !p.Orderable() {
		t.note(OutcomeUnavailable)
		t.say(unavailableLine(p))
		return nil
	}

	inCart := cartQuantity(t.sc.Cart, p.ID)
	available := p.Stock - inCart
	if available <= 0 {
		t.note(OutcomeInsufficientStock)
		t.say(fmt.Sprintf(msgAllStockInCart, inCart, p.DisplayName()))
		return nil
	}
	if quantity > available {
		t.note(OutcomeInsufficientStock)
		if t.followUp {
			t.say(fmt.Sprintf(msgShortStockDeferred, available, p.DisplayName()))
			return nil
		}
		t.followUp = true
		t.sc.StockOffer = &StockOffer{
			ProductID:   p.ID,
			ProductName: p.DisplayName(),
			Quantity:    available,
			Requested:   quantity,
		}
		if inCart > 0 {
			t.say(fmt.Sprintf(msgShortStockMore, available, p.DisplayName(), inCart, available))
		} else {
			t.say(fmt.Sprintf(msgShortStock, available, p.DisplayName(), quantity, available))
		}
		return nil
	}

	t.putInCart(p, quantity)
	t.note(OutcomeOK)
	t.say(fmt.Sprintf(msgAdded, quantity, p.DisplayName(), e.money(p.Price)))
	return nil
}

// putInCart merges into an existing line or appends a new one. The line's
// price is refreshed to the live price.
func (t *turn) putInCart(p catalog.Product, quantity int) {
	for i := range t.sc.Cart {
		if t.sc.Cart[i].ProductID == p.ID {
			t.sc.Cart[i].Quantity += quantity
			t.sc.Cart[i].UnitPrice = p.Price
			t.sc.Cart[i].ProductName = p.DisplayName()
			return
		}
	}
	t.sc.Cart = append(t.sc.Cart, CartItem{
		ProductID:   p.ID,
		ProductName: p.DisplayName(),
		Quantity:    quantity,
		UnitPrice:   p.Price,
	})
}

func (e *Engine) quantityReply(t *turn, in intent.Intent) error {
	pending, ok := t.sc.PendingOrder.(AwaitingQuantity)
	if !ok {
		return e.unknown(t, in.Text)
	}
	if !in.HasQuantity || in.Quantity <= 0 {
		t.note(OutcomeParseAmbiguous)
		t.say(fmt.Sprintf(msgQuantityRetry, pending.Candidate.DisplayName))
		return nil
	}
	t.sc.PendingOrder = nil
	return e.addProduct(t, pending.Candidate.ProductID, pending.Candidate.DisplayName, in.Quantity)
}

func (e *Engine) selectionReply(t *turn, in intent.Intent) error {
	pending, ok := t.sc.PendingOrder.(AwaitingSelection)
	if !ok {
		return e.unknown(t, in.Text)
	}
	cand, ok := pickCandidate(pending.Candidates, in)
	if !ok {
		t.note(OutcomeParseAmbiguous)
		t.say(msgSelectionRetry)
		t.say(e.optionList(pending.Candidates))
		return nil
	}
	t.sc.PendingOrder = nil
	if pending.OriginalQuantity <= 0 {
		return e.askQuantity(t, cand)
	}
	return e.addProduct(t, cand.ProductID, cand.DisplayName, pending.OriginalQuantity)
}

// selectionFiller are words in a pick-by-name reply that never name a product.
var selectionFiller = map[string]struct{}{
	"one": {}, "ones": {}, "option": {}, "choice": {}, "that": {}, "this": {},
	"take": {}, "ll": {}, "go": {}, "let": {}, "s": {},
}

// pickCandidate resolves an ordinal or a name fragment against the offered
// options. A name must single out exactly one option.
func pickCandidate(cands []match.Candidate, in intent.Intent) (match.Candidate, bool) {
	switch {
	case in.Ordinal == -1:
		return cands[len(cands)-1], true
	case in.Ordinal >= 1 && in.Ordinal <= len(cands):
		return cands[in.Ordinal-1], true
	case in.Ordinal != 0:
		return match.Candidate{}, false
	}

	var tokens []string
	for _, tok := range match.ContentTokens(extract.CleanPhrase(in.Text)) {
		if _, filler := selectionFiller[tok]; !filler {
			tokens = append(tokens, tok)
		}
	}
	if len(tokens) == 0 {
		return match.Candidate{}, false
	}
	var hits []match.Candidate
	for _, c := range cands {
		name := match.Normalize(c.DisplayName)
		all := true
		for _, tok := range tokens {
			if !strings.Contains(name, tok) {
				all = false
				break
			}
		}
		if all {
			hits = append(hits, c)
		}
	}
	if len(hits) != 1 {
		return match.Candidate{}, false
	}
	return hits[0], true
}

// acceptOffer re-reads stock before adding the offered quantity, since it
// may have moved since the offer was made.
func (e *Engine) acceptOffer(t *turn) error {
	offer := *t.sc.StockOffer
	t.sc.StockOffer = nil

	p, found, err := e.product(t, offer.ProductID)
	if err != nil {
		return err
	}
	if !found {
		t.note(OutcomeNoMatch)
		t.say(fmt.Sprintf(msgNoLongerListed, offer.ProductName))
		return nil
	}
	if !p.Orderable() {
		t.note(OutcomeUnavailable)
		t.say(unavailableLine(p))
		return nil
	}
	available := p.Stock - cartQuantity(t.sc.Cart, p.ID)
	if available <= 0 {
		t.note(OutcomeInsufficientStock)
		t.say(fmt.Sprintf(msgSoldOutSinceOffer, p.DisplayName()))
		return nil
	}
	quantity := min(offer.Quantity, available)
	t.putInCart(p, quantity)
	t.note(OutcomeOK)
	if quantity < offer.Quantity {
		t.say(fmt.Sprintf(msgOfferShrunk, quantity, p.DisplayName()))
	}
	t.say(fmt.Sprintf(msgAdded, quantity, p.DisplayName(), e.money(p.Price)))
	return nil
}

func (e *Engine) remove(t *turn, in intent.Intent) {
	fragment := strings.ToLower(strings.TrimSpace(in.Text))
	idx := -1
	for i, item := range t.sc.Cart {
		if strings.Contains(strings.ToLower(item.ProductName), fragment) {
			idx = i
			break
		}
	}
	if idx < 0 && fragment != "" {
		norm := match.Normalize(fragment)
		for i, item := range t.sc.Cart {
			if norm != "" && strings.Contains(match.Normalize(item.ProductName), norm) {
				idx = i
				break
			}
		}
	}
	if idx < 0 {
		t.note(OutcomeNoMatch)
		t.say(fmt.Sprintf(msgNothingRemoved, in.Text))
		t.say(e.reprompt(t.sc))
		return
	}

	item := t.sc.Cart[idx]
	if in.HasQuantity && in.Quantity > 0 && in.Quantity < item.Quantity {
		t.sc.Cart[idx].Quantity -= in.Quantity
		t.say(fmt.Sprintf(msgDecremented, in.Quantity, item.ProductName, item.Quantity-in.Quantity))
	} else {
		t.sc.Cart = append(t.sc.Cart[:idx:idx], t.sc.Cart[idx+1:]...)
		t.say(fmt.Sprintf(msgRemoved, item.ProductName))
	}
	t.note(OutcomeOK)
	e.cartChanged(t)
}

func (e *Engine) clear(t *turn) {
	if len(t.sc.Cart) == 0 {
		t.say(msgAlreadyEmpty)
	} else {
		t.say(msgCleared)
	}
	t.sc.Cart = []CartItem{}
	switch t.sc.PendingOrder.(type) {
	case AwaitingCheckoutSlot, AwaitingConfirmation:
		t.leaveCheckout()
		t.sc.PendingOrder = nil
	}
	t.note(OutcomeOK)
	t.say(e.reprompt(t.sc))
}

// cartChanged keeps checkout state consistent after a cart edit made while
// checkout is open.
func (e *Engine) cartChanged(t *turn) {
	switch p := t.sc.PendingOrder.(type) {
	case AwaitingCheckoutSlot:
		if len(t.sc.Cart) == 0 {
			t.leaveCheckout()
			t.sc.PendingOrder = nil
			t.say(msgCheckoutStoppedEmpty)
			return
		}
	case AwaitingConfirmation:
		if len(t.sc.Cart) == 0 {
			t.leaveCheckout()
			t.sc.PendingOrder = nil
			t.say(msgCheckoutStoppedEmpty)
			return
		}
		draft := e.draft(t.sc.Cart, p.Order.Customer)
		t.sc.PendingOrder = AwaitingConfirmation{Order: draft}
		t.say(e.confirmationPrompt(draft))
		return
	}
	t.say(e.reprompt(t.sc))
}

func (e *Engine) viewCart(t *turn) {
	t.note(OutcomeOK)
	if len(t.sc.Cart) == 0 {
		t.say(msgCartEmpty)
	} else {
		t.say(e.cartSummary(t.sc.Cart))
	}
	t.say(e.reprompt(t.sc))
}

// price answers from a live read and never changes the cart or pending state.
func (e *Engine) price(t *turn, text string) error {
	var items []extract.Item
	for _, phrase := range extract.SplitItems(text) {
		if item := extract.ParseItem(phrase); item.Phrase != "" {
			items = append(items, item)
		}
	}
	if len(items) == 0 {
		t.note(OutcomeParseAmbiguous)
		t.say(msgWhichProduct)
		return nil
	}

	for _, item := range items {
		res, err := e.resolve(t, item.Phrase, t.mode)
		if err != nil {
			return err
		}
		if res.Outcome == match.OutcomeNotFound {
			t.note(OutcomeNoMatch)
			t.say(fmt.Sprintf(msgNotFound, item.Phrase))
			continue
		}
		for _, cand := range res.Candidates {
			p, found, err := e.product(t, cand.ProductID)
			if err != nil {
				return err
			}
			if !found {
				continue
			}
			t.say(e.priceLine(p, item))
		}
		t.note(OutcomeOK)
	}
	t.say(e.reprompt(t.sc))
	return nil
}

// inquiry lists what matched with live price and availability and lets the
// user pick one by number, unless a checkout is in progress.
func (e *Engine) inquiry(t *turn, text string) error {
	phrase := extract.CleanPhrase(text)
	if phrase == "" {
		t.note(OutcomeParseAmbiguous)
		t.say(msgWhichProduct)
		return nil
	}
	res, err := e.resolve(t, phrase, match.ModeRetrieval)
	if err != nil {
		return err
	}
	if res.Outcome == match.OutcomeNotFound {
		t.sc.LastQuery = phrase
		t.note(OutcomeNoMatch)
		t.say(fmt.Sprintf(msgNothingMatches, phrase))
		t.say(e.reprompt(t.sc))
		return nil
	}

	var (
		offered []match.Candidate
		lines   []string
	)
	for _, cand := range res.Candidates {
		p, found, err := e.product(t, cand.ProductID)
		if err != nil {
			return err
		}
		if !found {
			continue
		}
		offered = append(offered, cand)
		lines = append(lines, fmt.Sprintf("%d. %s", len(offered), e.availabilityLine(p)))
	}
	if len(offered) == 0 {
		t.note(OutcomeNoMatch)
		t.say(fmt.Sprintf(msgNothingMatches, phrase))
		return nil
	}

	t.say(fmt.Sprintf(msgInquiryHeader, phrase))
	t.say(strings.Join(lines, "\n"))

	// An open checkout stays open; the list is informational only.
	switch t.sc.PendingOrder.(type) {
	case AwaitingCheckoutSlot, AwaitingConfirmation:
		t.say(msgInquiryDuringCheckout)
		t.say(e.reprompt(t.sc))
		return nil
	}
	t.sc.PendingOrder = AwaitingSelection{Candidates: offered}
	t.note(OutcomeNeedsSelection)
	t.say(msgInquiryFooter)
	return nil
}
