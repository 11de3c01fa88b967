// Package intent tags a chat turn with the cart or checkout operation it asks
// for. Classification is a small ordered rule table; the first rule that
// fires wins, and what the dialogue is currently waiting for decides which
// rules are consulted first.
package intent

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/wolfman30/medorder-assistant/internal/extract"
)

// Kind is the operation a turn asks for.
type Kind string

const (
	KindAdd       Kind = "add"
	KindRemove    Kind = "remove"
	KindClear     Kind = "clear"
	KindPrice     Kind = "price"
	KindViewCart  Kind = "view_cart"
	KindCheckout  Kind = "checkout"
	KindConfirm   Kind = "confirm"
	KindDecline   Kind = "decline"
	KindCancel    Kind = "cancel"
	KindSlotReply Kind = "slot_reply"
	KindSelection Kind = "selection"
	KindQuantity  Kind = "quantity"
	KindInquiry   Kind = "inquiry"
	KindGreeting  Kind = "greeting"
	KindUnknown   Kind = "unknown"
)

// Expectation is what the dialogue is waiting for, derived from the pending
// order. It changes which readings of an ambiguous reply are preferred.
type Expectation int

const (
	ExpectNothing Expectation = iota
	ExpectQuantity
	ExpectSelection
	ExpectSlot
	ExpectConfirmation
	ExpectStockOffer
)

// Intent is a classified turn.
type Intent struct {
	Kind Kind
	// Text is the payload: product phrase for add/remove/price/inquiry, the
	// raw reply for slot and selection replies.
	Text        string
	Quantity    int
	HasQuantity bool
	// Ordinal is the 1-based choice for a selection reply, 0 when the reply
	// named an option instead.
	Ordinal int
}

var (
	priceRE      = regexp.MustCompile(`(?i)^(?:(?:and\s+)?what(?:'s|\s+is|\s+are)\s+the\s+(?:price|cost)s?\s+(?:of|for)|(?:what(?:'s|\s+is)\s+the\s+)?(?:price|cost)\s+(?:of|for)|how\s+much\s+(?:is|are|does|do|for)(?:\s+(?:a|an|the|one))?|price\s+check(?:\s+on)?|price|how\s+much)\s+(.+?)(?:\s+(?:cost|costs|go\s+for|sell\s+for))?$`)
	viewCartRE   = regexp.MustCompile(`(?i)^(?:(?:what(?:'s|\s+is)\s+in|show(?:\s+me)?|view|see|check|display)(?:\s+(?:my|the))?\s+(?:cart|basket|order)|(?:my\s+)?(?:cart|basket)|what\s+have\s+i\s+(?:got|added|ordered))$`)
	clearRE      = regexp.MustCompile(`(?i)^(?:(?:please\s+)?(?:clear|empty|reset)(?:\s+(?:my|the))?(?:\s+(?:cart|basket|order))?|(?:remove|delete)\s+(?:everything|all(?:\s+items)?)(?:\s+from\s+(?:my|the)\s+(?:cart|basket))?|start\s+over)$`)
	removeRE     = regexp.MustCompile(`(?i)^(?:please\s+)?(?:remove|delete|drop|take\s+out|take\s+off)\s+(?:the\s+)?(.+?)(?:\s+(?:from|off|out\s+of)\s+(?:my|the)\s+(?:cart|basket|order))?$`)
	checkoutRE   = regexp.MustCompile(`(?i)\b(?:check\s*out|place\s+(?:my|the|an)?\s*order|proceed\s+to\s+(?:checkout|payment)|complete\s+(?:my|the)?\s*order|that'?s\s+all|i'?m\s+done|ready\s+to\s+order|finish\s+(?:my\s+)?order)\b`)
	cancelRE     = regexp.MustCompile(`(?i)^(?:cancel|stop|abort|never\s*mind|forget\s+it|exit)\b`)
	affirmRE     = regexp.MustCompile(`(?i)^(?:yes|yeah|yep|yup|y|sure|ok|okay|confirm(?:ed)?|correct|go\s+ahead|please\s+do|do\s+it|that'?s\s+(?:right|correct)|sounds\s+good|place\s+(?:the|my)?\s*order|submit|fine)\b`)
	negateRE     = regexp.MustCompile(`(?i)^(?:no|nope|nah|n|don'?t|do\s+not|not\s+now|no\s+thanks)\b`)
	slotCancelRE = regexp.MustCompile(`(?i)^(?:cancel|stop|abort|exit|never\s*mind|forget\s+it)(?:\s+(?:it|that|checkout|(?:the|my)\s+order|the\s+checkout))?(?:\s+please)?$`)
	greetingRE   = regexp.MustCompile(`(?i)^(?:hi|hello|hey|good\s+(?:morning|afternoon|evening)|help)\b[\s!.]*$`)
	inquiryRE    = regexp.MustCompile(`(?i)^(?:do\s+you\s+(?:have|sell|stock|carry)|have\s+you\s+got|is\s+there|are\s+there|(?:i\s+need\s+|i'?m\s+looking\s+for\s+|looking\s+for\s+)?(?:something|anything|a\s+medicine|medicine)\s+(?:for|to\s+help\s+with)|what\s+(?:do\s+you\s+have|can\s+i\s+take|is\s+good)\s+for|can\s+you\s+recommend|recommend|search(?:\s+for)?|find)\s+(.+?)$`)
	addRE        = regexp.MustCompile(`(?i)^(?:please\s+)?(?:add|order|buy|get\s+me|put|i\s+want|i\s+need|i'?d\s+like|i\s+would\s+like|can\s+i\s+(?:get|have|order)|could\s+i\s+(?:get|have)|give\s+me|i'?ll\s+take)\b`)
	leadingQtyRE = regexp.MustCompile(`^\d{1,3}\s+\S`)
)

// Classify tags message given what the dialogue expects next.
func Classify(message string, exp Expectation) Intent {
	text := strings.TrimSpace(message)
	bare := strings.TrimRight(text, "?!. ")
	if bare == "" {
		return Intent{Kind: KindUnknown}
	}

	switch exp {
	case ExpectConfirmation, ExpectStockOffer:
		if affirmRE.MatchString(bare) {
			return Intent{Kind: KindConfirm, Text: bare}
		}
		if negateRE.MatchString(bare) {
			return Intent{Kind: KindDecline, Text: bare}
		}
	case ExpectSelection:
		if cancelRE.MatchString(bare) || negateRE.MatchString(bare) {
			return Intent{Kind: KindCancel, Text: bare}
		}
		if n, ok := ParseOrdinal(bare); ok {
			return Intent{Kind: KindSelection, Text: bare, Ordinal: n}
		}
	case ExpectSlot:
		return classifySlotReply(text, bare)
	case ExpectQuantity:
		if cancelRE.MatchString(bare) || negateRE.MatchString(bare) {
			return Intent{Kind: KindCancel, Text: bare}
		}
		if n, ok := extract.ParseQuantity(bare); ok {
			return Intent{Kind: KindQuantity, Text: bare, Quantity: n, HasQuantity: true}
		}
	}

	if cancelRE.MatchString(bare) && exp != ExpectNothing {
		return Intent{Kind: KindCancel, Text: bare}
	}
	if in, ok := classifyGlobal(bare); ok {
		return in
	}

	if exp == ExpectSelection {
		if checkoutRE.MatchString(bare) {
			return Intent{Kind: KindCheckout, Text: bare}
		}
		if addRE.MatchString(bare) || leadingQtyRE.MatchString(bare) {
			return Intent{Kind: KindAdd, Text: bare}
		}
		return Intent{Kind: KindSelection, Text: bare}
	}

	if checkoutRE.MatchString(bare) {
		return Intent{Kind: KindCheckout, Text: bare}
	}
	if m := inquiryRE.FindStringSubmatch(bare); m != nil {
		return Intent{Kind: KindInquiry, Text: strings.TrimSpace(m[1])}
	}
	if addRE.MatchString(bare) || leadingQtyRE.MatchString(bare) {
		return Intent{Kind: KindAdd, Text: bare}
	}
	if greetingRE.MatchString(bare) {
		return Intent{Kind: KindGreeting, Text: bare}
	}
	if cancelRE.MatchString(bare) {
		return Intent{Kind: KindCancel, Text: bare}
	}
	return Intent{Kind: KindUnknown, Text: bare}
}

// classifySlotReply treats checkout input as a slot value unless the whole
// reply is a cancel, view-cart or clear keyword. Names and addresses often
// start with words like "Price" or "Exit", so prefix rules never apply here.
func classifySlotReply(text, bare string) Intent {
	switch {
	case slotCancelRE.MatchString(bare):
		return Intent{Kind: KindCancel, Text: bare}
	case viewCartRE.MatchString(bare):
		return Intent{Kind: KindViewCart, Text: bare}
	case clearRE.MatchString(bare):
		return Intent{Kind: KindClear, Text: bare}
	}
	return Intent{Kind: KindSlotReply, Text: text}
}

// classifyGlobal recognises the intents that are served from any state.
// Price is checked first so "what is the price of X" never reads as an add.
func classifyGlobal(bare string) (Intent, bool) {
	if m := priceRE.FindStringSubmatch(bare); m != nil {
		return Intent{Kind: KindPrice, Text: strings.TrimSpace(m[1])}, true
	}
	if viewCartRE.MatchString(bare) {
		return Intent{Kind: KindViewCart, Text: bare}, true
	}
	if clearRE.MatchString(bare) {
		return Intent{Kind: KindClear, Text: bare}, true
	}
	if m := removeRE.FindStringSubmatch(bare); m != nil {
		item := extract.ParseItem(m[1])
		if item.Phrase == "" {
			return Intent{}, false
		}
		return Intent{Kind: KindRemove, Text: item.Phrase, Quantity: item.Quantity, HasQuantity: item.HasQuantity}, true
	}
	return Intent{}, false
}

// ordinalWords maps spoken choices to positions.
var ordinalWords = map[string]int{
	"first": 1, "second": 2, "third": 3, "fourth": 4, "fifth": 5,
	"sixth": 6, "seventh": 7, "eighth": 8, "ninth": 9, "tenth": 10,
	"1st": 1, "2nd": 2, "3rd": 3, "4th": 4, "5th": 5,
	"6th": 6, "7th": 7, "8th": 8, "9th": 9, "10th": 10,
	"one": 1, "two": 2, "three": 3, "four": 4, "five": 5,
}

var (
	optionRE      = regexp.MustCompile(`(?i)^(?:(?:option|number|no\.?|#|choice|item)\s*)?(\d{1,2})$`)
	ordinalWordRE = regexp.MustCompile(`(?i)^(?:the\s+|number\s+|option\s+)?(\w+)(?:\s+(?:one|option|choice|item))?(?:\s+please)?$`)
	pickRE        = regexp.MustCompile(`(?i)^(?:i'?ll\s+take|i\s+want|give\s+me|let'?s\s+go\s+with|go\s+with|pick|choose)\s+`)
)

// ParseOrdinal reads "1", "number 1", "#2", "option 3", "the first one",
// "second" and "last". "last" is returned as -1.
func ParseOrdinal(reply string) (int, bool) {
	text := strings.ToLower(strings.TrimSpace(strings.TrimRight(reply, "?!. ")))
	text = pickRE.ReplaceAllString(text, "")
	if m := optionRE.FindStringSubmatch(text); m != nil {
		n, err := strconv.Atoi(m[1])
		if err == nil && n >= 1 {
			return n, true
		}
		return 0, false
	}
	if m := ordinalWordRE.FindStringSubmatch(text); m != nil {
		if m[1] == "last" {
			return -1, true
		}
		if n, ok := ordinalWords[m[1]]; ok {
			return n, true
		}
	}
	return 0, false
}
