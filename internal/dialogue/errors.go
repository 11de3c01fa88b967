package dialogue

import "errors"

var (
	// ErrEmptyMessage and ErrInvalidContext are the only errors HandleTurn
	// returns; every other failure is answered conversationally.
	ErrEmptyMessage = errors.New("dialogue: message is empty")

	// ErrInvalidContext is returned when a context cannot be decoded or holds
	// a cart line without a product id.
	ErrInvalidContext = errors.New("dialogue: invalid session context")
)

// Outcome records how a turn ended, for metrics and callers.
type Outcome string

const (
	OutcomeOK                 Outcome = "ok"
	OutcomeParseAmbiguous     Outcome = "parse_ambiguous"
	OutcomeNoMatch            Outcome = "no_match"
	OutcomeUnavailable        Outcome = "unavailable"
	OutcomeInsufficientStock  Outcome = "insufficient_stock"
	OutcomeInvalidSlot        Outcome = "invalid_slot"
	OutcomeSubmissionError    Outcome = "submission_error"
	OutcomeCatalogUnavailable Outcome = "catalog_unavailable"
	OutcomeEmptyCart          Outcome = "empty_cart"
	OutcomePriceChanged       Outcome = "price_changed"
	OutcomeQuantityLimit      Outcome = "quantity_limit"
	OutcomeNeedsQuantity      Outcome = "needs_quantity"
	OutcomeNeedsSelection     Outcome = "needs_selection"
)
