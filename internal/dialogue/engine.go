package dialogue

import (
	"context"
	"errors"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/wolfman30/medorder-assistant/internal/catalog"
	"github.com/wolfman30/medorder-assistant/internal/intent"
	"github.com/wolfman30/medorder-assistant/internal/match"
	"github.com/wolfman30/medorder-assistant/internal/observability/metrics"
	"github.com/wolfman30/medorder-assistant/internal/orders"
	"github.com/wolfman30/medorder-assistant/pkg/logging"
)

var dialogueTracer = otel.Tracer("medorder.internal.dialogue")

// Resolver maps a product phrase to candidates. *match.Matcher implements it.
type Resolver interface {
	Resolve(ctx context.Context, phrase string, mode match.Mode) (match.Result, error)
}

// OrderSubmitter persists a confirmed order. *orders.Service implements it.
type OrderSubmitter interface {
	Submit(ctx context.Context, p orders.Payload) (*orders.Receipt, error)
}

// Options are the engine tunables.
type Options struct {
	MaxQuantityPerLine int
	PaymentMethod      string
	Currency           string
}

func (o Options) withDefaults() Options {
	if o.MaxQuantityPerLine <= 0 {
		o.MaxQuantityPerLine = 999
	}
	if strings.TrimSpace(o.PaymentMethod) == "" {
		o.PaymentMethod = orders.DefaultPaymentMethod
	}
	if strings.TrimSpace(o.Currency) == "" {
		o.Currency = "USD"
	}
	return o
}

// Deps are the collaborators of an Engine. Orders and Metrics are optional;
// without Orders a confirmed checkout is handed back as order_ready data for
// the caller to submit.
type Deps struct {
	Catalog catalog.Reader
	Matcher Resolver
	Orders  OrderSubmitter
	Metrics *metrics.TurnMetrics
	Logger  *logging.Logger
}

// Engine runs chat turns. It is safe for concurrent use; it holds no session state.
type Engine struct {
	catalog catalog.Reader
	matcher Resolver
	orders  OrderSubmitter
	metrics *metrics.TurnMetrics
	logger  *logging.Logger
	opts    Options
}

func NewEngine(deps Deps, opts Options) *Engine {
	if deps.Catalog == nil {
		panic("dialogue: catalog reader required")
	}
	if deps.Matcher == nil {
		panic("dialogue: matcher required")
	}
	if deps.Logger == nil {
		deps.Logger = logging.Default()
	}
	return &Engine{
		catalog: deps.Catalog,
		matcher: deps.Matcher,
		orders:  deps.Orders,
		metrics: deps.Metrics,
		logger:  deps.Logger,
		opts:    opts.withDefaults(),
	}
}

// Request is one inbound turn.
type Request struct {
	Message   string
	SessionID string
	Context   SessionContext
	Mode      match.Mode
}

// OrderData is handed to the caller when an order is ready.
type OrderData struct {
	OrderID         string        `json:"orderId,omitempty"`
	CustomerName    string        `json:"customerName"`
	CustomerPhone   string        `json:"customerPhone"`
	DeliveryAddress string        `json:"deliveryAddress"`
	DeliveryCity    string        `json:"deliveryCity,omitempty"`
	PaymentMethod   string        `json:"paymentMethod"`
	OrderItems      []CartItem    `json:"orderItems"`
	Total           catalog.Money `json:"total"`
}

// ReplyTypeOrderReady marks the turn that completed checkout.
const ReplyTypeOrderReady = "order_ready"

// Reply is the outcome of a turn. UpdatedContext is always complete.
type Reply struct {
	Response       string
	UpdatedContext SessionContext
	Type           string
	OrderData      *OrderData
	Outcome        Outcome
	Intent         intent.Kind
}

// turn carries the working copy of the context through one request.
type turn struct {
	ctx    context.Context
	sc     SessionContext
	mode   match.Mode
	logger *logging.Logger

	// followUp is set once this turn has asked the user something; only one
	// question may be open at a time.
	followUp bool
	outcome  Outcome
	lines    []string
	reply    Reply
}

func (t *turn) say(line string) {
	if line = strings.TrimSpace(line); line != "" {
		t.lines = append(t.lines, line)
	}
}

// note keeps the first non-ok outcome of the turn.
func (t *turn) note(o Outcome) {
	if t.outcome == "" || t.outcome == OutcomeOK {
		t.outcome = o
	}
}

// HandleTurn processes one message against the supplied context.
func (e *Engine) HandleTurn(ctx context.Context, req Request) (Reply, error) {
	message := strings.TrimSpace(req.Message)
	if message == "" {
		return Reply{}, ErrEmptyMessage
	}
	start := time.Now()

	sc := req.Context.clone()
	cart, err := normalizeCart(sc.Cart)
	if err != nil {
		return Reply{}, err
	}
	sc.Cart = cart
	if sc.SessionID == "" {
		sc.SessionID = req.SessionID
	}
	logger := e.logger.WithSession(sc.SessionID)

	in := intent.Classify(message, expectationFor(sc))
	ctx, span := dialogueTracer.Start(ctx, "dialogue.turn", trace.WithAttributes(
		attribute.String("dialogue.intent", string(in.Kind)),
		attribute.Bool("dialogue.retrieval", req.Mode == match.ModeRetrieval),
	))
	defer span.End()

	t := &turn{ctx: ctx, sc: sc, mode: req.Mode, logger: logger}
	err = e.dispatch(t, in, message)

	var reply Reply
	if err != nil {
		span.RecordError(err)
		logger.Warn("turn failed on a catalog read", "error", err, "intent", in.Kind)
		original := req.Context
		if original.SessionID == "" {
			original.SessionID = req.SessionID
		}
		reply = Reply{
			Response:       msgCatalogUnavailable,
			UpdatedContext: original,
			Outcome:        OutcomeCatalogUnavailable,
		}
	} else {
		reply = t.reply
		reply.Response = strings.Join(t.lines, "\n")
		reply.UpdatedContext = t.sc
		reply.Outcome = t.outcome
		if reply.Outcome == "" {
			reply.Outcome = OutcomeOK
		}
	}
	if reply.UpdatedContext.Cart == nil {
		reply.UpdatedContext.Cart = []CartItem{}
	}
	reply.Intent = in.Kind

	span.SetAttributes(attribute.String("dialogue.outcome", string(reply.Outcome)))
	e.metrics.ObserveTurn(modeLabel(req.Mode), string(in.Kind), string(reply.Outcome), time.Since(start).Seconds())
	logger.Debug("turn handled", "intent", in.Kind, "outcome", reply.Outcome, "pending", pendingLabel(reply.UpdatedContext.PendingOrder))
	return reply, nil
}

func modeLabel(m match.Mode) string {
	if m == match.ModeRetrieval {
		return "retrieval"
	}
	return "chat"
}

func pendingLabel(p PendingOrder) string {
	if p == nil {
		return "idle"
	}
	return string(p.Kind())
}

func expectationFor(sc SessionContext) intent.Expectation {
	switch sc.PendingOrder.(type) {
	case AwaitingQuantity:
		return intent.ExpectQuantity
	case AwaitingSelection:
		return intent.ExpectSelection
	case AwaitingCheckoutSlot:
		return intent.ExpectSlot
	case AwaitingConfirmation:
		return intent.ExpectConfirmation
	}
	if sc.StockOffer != nil {
		return intent.ExpectStockOffer
	}
	return intent.ExpectNothing
}

func (e *Engine) dispatch(t *turn, in intent.Intent, message string) error {
	switch in.Kind {
	case intent.KindConfirm, intent.KindDecline, intent.KindUnknown:
	default:
		// Any other recognised request withdraws an outstanding stock offer.
		t.sc.StockOffer = nil
	}

	switch in.Kind {
	case intent.KindConfirm:
		if _, ok := t.sc.PendingOrder.(AwaitingConfirmation); ok {
			return e.confirm(t)
		}
		if t.sc.StockOffer != nil {
			return e.acceptOffer(t)
		}
		e.help(t)
	case intent.KindDecline:
		if _, ok := t.sc.PendingOrder.(AwaitingConfirmation); ok {
			e.declineConfirmation(t)
			return nil
		}
		if t.sc.StockOffer != nil {
			t.sc.StockOffer = nil
			t.say(msgOfferDeclined)
			return nil
		}
		e.help(t)
	case intent.KindCancel:
		e.cancel(t)
	case intent.KindQuantity:
		return e.quantityReply(t, in)
	case intent.KindSelection:
		return e.selectionReply(t, in)
	case intent.KindSlotReply:
		e.slotReply(t, in.Text)
	case intent.KindAdd:
		return e.add(t, in.Text)
	case intent.KindRemove:
		e.remove(t, in)
	case intent.KindClear:
		e.clear(t)
	case intent.KindPrice:
		return e.price(t, in.Text)
	case intent.KindViewCart:
		e.viewCart(t)
	case intent.KindCheckout:
		e.startCheckout(t)
	case intent.KindInquiry:
		return e.inquiry(t, in.Text)
	case intent.KindGreeting:
		e.greet(t)
	default:
		return e.unknown(t, message)
	}
	return nil
}

// resolve runs the matcher and records the strategy that answered.
func (e *Engine) resolve(t *turn, phrase string, mode match.Mode) (match.Result, error) {
	res, err := e.matcher.Resolve(t.ctx, phrase, mode)
	if err != nil {
		return match.Result{}, err
	}
	e.metrics.ObserveMatch(string(res.Strategy), string(res.Outcome))
	return res, nil
}

// product reads one product live. found is false when the id no longer exists.
func (e *Engine) product(t *turn, id string) (catalog.Product, bool, error) {
	p, err := e.catalog.GetByID(t.ctx, id)
	if errors.Is(err, catalog.ErrProductNotFound) {
		return catalog.Product{}, false, nil
	}
	if err != nil {
		return catalog.Product{}, false, err
	}
	return p, true, nil
}

// leaveCheckout parks any collected checkout details in the Customer sidecar
// so the next checkout can resume without asking again.
func (t *turn) leaveCheckout() {
	switch p := t.sc.PendingOrder.(type) {
	case AwaitingCheckoutSlot:
		collected := p.Collected
		t.sc.Customer = &collected
	case AwaitingConfirmation:
		customer := p.Order.Customer
		t.sc.Customer = &customer
	}
}

func (e *Engine) cancel(t *turn) {
	switch t.sc.PendingOrder.(type) {
	case nil:
		t.say(msgNothingToCancel)
	case AwaitingCheckoutSlot, AwaitingConfirmation:
		t.leaveCheckout()
		t.sc.PendingOrder = nil
		t.say(msgCheckoutCancelled)
	default:
		t.sc.PendingOrder = nil
		t.say(msgCancelled)
	}
	if len(t.sc.Cart) > 0 {
		t.say(e.cartSummary(t.sc.Cart))
	}
}

func (e *Engine) help(t *turn) {
	t.say(msgHelp)
	t.say(e.reprompt(t.sc))
}

func (e *Engine) greet(t *turn) {
	t.say(msgGreeting)
	t.say(e.reprompt(t.sc))
}

func (e *Engine) unknown(t *turn, message string) error {
	if t.mode == match.ModeRetrieval && t.sc.PendingOrder == nil {
		return e.inquiry(t, message)
	}
	t.sc.LastQuery = message
	t.note(OutcomeParseAmbiguous)
	if t.sc.PendingOrder != nil || t.sc.StockOffer != nil {
		t.say(msgDidNotUnderstand)
		t.say(e.reprompt(t.sc))
		return nil
	}
	t.say(msgClarify)
	return nil
}
