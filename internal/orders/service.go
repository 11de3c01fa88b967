package orders

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/wolfman30/medorder-assistant/internal/catalog"
	"github.com/wolfman30/medorder-assistant/internal/observability/metrics"
	"github.com/wolfman30/medorder-assistant/pkg/logging"
)

var ordersTracer = otel.Tracer("medorder.internal.orders")

// ServiceOptions configures a Service. Catalog, Idempotency and Metrics are
// optional.
type ServiceOptions struct {
	Catalog        catalog.Reader
	Idempotency    IdempotencyStore
	IdempotencyTTL time.Duration
	PaymentMethod  string
	Metrics        *metrics.TurnMetrics
	Logger         *logging.Logger
}

// Service validates and persists orders.
type Service struct {
	repo          Repository
	catalog       catalog.Reader
	idem          IdempotencyStore
	ttl           time.Duration
	paymentMethod string
	metrics       *metrics.TurnMetrics
	logger        *logging.Logger
}

func NewService(repo Repository, opts ServiceOptions) *Service {
	if repo == nil {
		panic("orders: repository required")
	}
	if opts.Logger == nil {
		opts.Logger = logging.Default()
	}
	if opts.IdempotencyTTL <= 0 {
		opts.IdempotencyTTL = 24 * time.Hour
	}
	if strings.TrimSpace(opts.PaymentMethod) == "" {
		opts.PaymentMethod = DefaultPaymentMethod
	}
	return &Service{
		repo:          repo,
		catalog:       opts.Catalog,
		idem:          opts.Idempotency,
		ttl:           opts.IdempotencyTTL,
		paymentMethod: opts.PaymentMethod,
		metrics:       opts.Metrics,
		logger:        opts.Logger,
	}
}

// Submit persists p and returns the new order id. A payload whose
// idempotency key already produced an order returns that order instead.
// Store failures are reported as *SubmissionError.
func (s *Service) Submit(ctx context.Context, p Payload) (*Receipt, error) {
	ctx, span := ordersTracer.Start(ctx, "orders.submit", trace.WithAttributes(
		attribute.Int("orders.items", len(p.Items)),
	))
	defer span.End()

	receipt, status, err := s.submit(ctx, &p)
	s.metrics.ObserveOrder(status)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	span.SetAttributes(attribute.String("orders.order_id", receipt.OrderID), attribute.Bool("orders.replayed", receipt.Replayed))
	return receipt, nil
}

func (s *Service) submit(ctx context.Context, p *Payload) (*Receipt, string, error) {
	p.Items = append([]Item(nil), p.Items...)
	if strings.TrimSpace(p.PaymentMethod) == "" {
		p.PaymentMethod = s.paymentMethod
	}
	if err := p.Validate(); err != nil {
		return nil, "invalid", err
	}

	key := strings.TrimSpace(p.IdempotencyKey)
	reserved := false
	if key != "" && s.idem != nil {
		existing, ok, err := s.idem.Reserve(ctx, key, s.ttl)
		switch {
		case errors.Is(err, ErrSubmissionInFlight):
			return nil, "in_flight", err
		case err != nil:
			s.logger.Warn("idempotency store unavailable, submitting without dedupe", "error", err)
		case !ok:
			return s.replay(ctx, existing), "replayed", nil
		default:
			reserved = true
		}
	}

	order, err := s.create(ctx, p)
	if err != nil {
		if reserved {
			if relErr := s.idem.Release(ctx, key); relErr != nil {
				s.logger.Warn("failed to release idempotency key", "error", relErr)
			}
		}
		switch {
		case errors.Is(err, ErrInvalidOrder), errors.Is(err, ErrStockChanged):
			return nil, "rejected", err
		default:
			return nil, "failed", err
		}
	}

	if reserved {
		if err := s.idem.Complete(ctx, key, order.ID, s.ttl); err != nil {
			s.logger.Warn("failed to record idempotency key", "error", err, "order_id", order.ID)
		}
	}
	s.logger.Info("order created",
		"order_id", order.ID,
		"session_id", order.SessionID,
		"items", len(order.Items),
		"total", order.Total.String(),
	)
	return receiptFor(order, false), "created", nil
}

func (s *Service) create(ctx context.Context, p *Payload) (*Order, error) {
	if err := s.reprice(ctx, p); err != nil {
		return nil, err
	}
	order, err := s.repo.Create(ctx, p)
	if err == nil {
		return order, nil
	}
	var subErr *SubmissionError
	if errors.Is(err, ErrInvalidOrder) || errors.Is(err, ErrStockChanged) || errors.As(err, &subErr) {
		return nil, err
	}
	return nil, &SubmissionError{Op: "create order", Err: err}
}

// reprice refreshes every line from the live catalog when one is configured.
// The catalog is authoritative for name and price; lines that cannot be sold
// now fail with ErrStockChanged.
func (s *Service) reprice(ctx context.Context, p *Payload) error {
	if s.catalog == nil {
		return nil
	}
	var failed []string
	for i, item := range p.Items {
		product, err := s.catalog.GetByID(ctx, item.ProductID)
		if errors.Is(err, catalog.ErrProductNotFound) {
			failed = append(failed, item.ProductID)
			continue
		}
		if err != nil {
			return &SubmissionError{Op: "read catalog", Err: err}
		}
		if !product.Orderable() || product.Stock < item.Quantity {
			failed = append(failed, item.ProductID)
			continue
		}
		p.Items[i].ProductName = product.DisplayName()
		p.Items[i].UnitPrice = product.Price
	}
	if len(failed) > 0 {
		return fmt.Errorf("%w: %s", ErrStockChanged, strings.Join(failed, ", "))
	}
	return nil
}

func (s *Service) replay(ctx context.Context, orderID string) *Receipt {
	order, err := s.repo.GetByID(ctx, orderID)
	if err != nil {
		s.logger.Warn("replayed order could not be loaded", "error", err, "order_id", orderID)
		return &Receipt{OrderID: orderID, Status: StatusPending, Replayed: true}
	}
	return receiptFor(order, true)
}

// Get returns a stored order.
func (s *Service) Get(ctx context.Context, id string) (*Order, error) {
	order, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, ErrOrderNotFound) {
			return nil, err
		}
		return nil, &SubmissionError{Op: "get order", Err: err}
	}
	return order, nil
}
