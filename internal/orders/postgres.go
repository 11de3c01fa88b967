package orders

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/wolfman30/medorder-assistant/internal/catalog"
	"github.com/wolfman30/medorder-assistant/internal/events"
)

type txBeginner interface {
	Begin(ctx context.Context) (pgx.Tx, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

// PostgresRepository records orders, their lines and an order-created
// outbox event in one transaction. Stock is re-checked and decremented under
// row locks, so an order is never written for stock that is gone.
type PostgresRepository struct {
	db  txBeginner
	now func() time.Time
}

func NewPostgresRepository(pool *pgxpool.Pool) *PostgresRepository {
	if pool == nil {
		panic("orders: pgx pool required")
	}
	return newPostgresRepositoryWithDB(pool)
}

func newPostgresRepositoryWithDB(db txBeginner) *PostgresRepository {
	return &PostgresRepository{db: db, now: time.Now}
}

func (r *PostgresRepository) Create(ctx context.Context, p *Payload) (*Order, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}

	tx, err := r.db.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("orders: begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	for _, item := range p.Items {
		if err := reserveStock(ctx, tx, item); err != nil {
			return nil, err
		}
	}

	id := uuid.New()
	order := newOrder(id.String(), p, r.now().UTC())

	var createdAt time.Time
	if err := tx.QueryRow(ctx, `
		INSERT INTO orders (id, session_id, customer_name, customer_phone, delivery_address, delivery_city, payment_method, status, total_cents, idempotency_key)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING created_at
	`,
		id,
		order.SessionID,
		order.CustomerName,
		order.CustomerPhone,
		order.DeliveryAddress,
		order.DeliveryCity,
		order.PaymentMethod,
		string(order.Status),
		int64(order.Total),
		p.IdempotencyKey,
	).Scan(&createdAt); err != nil {
		return nil, fmt.Errorf("orders: insert order: %w", err)
	}
	order.CreatedAt = createdAt.UTC()

	for i, item := range order.Items {
		if _, err := tx.Exec(ctx, `
			INSERT INTO order_items (order_id, line_no, product_id, product_name, quantity, unit_price_cents)
			VALUES ($1, $2, $3, $4, $5, $6)
		`, id, i+1, item.ProductID, item.ProductName, item.Quantity, int64(item.UnitPrice)); err != nil {
			return nil, fmt.Errorf("orders: insert item %s: %w", item.ProductID, err)
		}
	}

	if _, err := events.Record(ctx, tx, "", order.SessionID, orderCreatedEvent(order)); err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("orders: commit: %w", err)
	}
	return order, nil
}

func reserveStock(ctx context.Context, tx pgx.Tx, item Item) error {
	var (
		stock  int
		status string
	)
	err := tx.QueryRow(ctx, `SELECT stock, status FROM products WHERE id = $1 FOR UPDATE`, item.ProductID).Scan(&stock, &status)
	if errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("%w: %s no longer exists", ErrStockChanged, item.ProductID)
	}
	if err != nil {
		return fmt.Errorf("orders: lock product %s: %w", item.ProductID, err)
	}
	parsed, err := catalog.ParseStatus(status)
	if err != nil {
		return fmt.Errorf("orders: product %s: %w", item.ProductID, err)
	}
	live := catalog.Product{ID: item.ProductID, Stock: stock, Status: parsed}
	if !live.Orderable() || stock < item.Quantity {
		return fmt.Errorf("%w: %s has %d left", ErrStockChanged, item.ProductID, max(stock, 0))
	}
	if _, err := tx.Exec(ctx, `UPDATE products SET stock = stock - $2, updated_at = now() WHERE id = $1`, item.ProductID, item.Quantity); err != nil {
		return fmt.Errorf("orders: decrement stock %s: %w", item.ProductID, err)
	}
	return nil
}

func orderCreatedEvent(o *Order) events.OrderCreatedV1 {
	lines := make([]events.OrderLineV1, 0, len(o.Items))
	for _, item := range o.Items {
		lines = append(lines, events.OrderLineV1{
			ProductID:      item.ProductID,
			ProductName:    item.ProductName,
			Quantity:       item.Quantity,
			UnitPriceCents: int64(item.UnitPrice),
		})
	}
	return events.OrderCreatedV1{
		OrderID:         o.ID,
		SessionID:       o.SessionID,
		CustomerName:    o.CustomerName,
		CustomerPhone:   o.CustomerPhone,
		DeliveryAddress: o.DeliveryAddress,
		DeliveryCity:    o.DeliveryCity,
		PaymentMethod:   o.PaymentMethod,
		TotalCents:      int64(o.Total),
		Lines:           lines,
		CreatedAt:       o.CreatedAt,
	}
}

func (r *PostgresRepository) GetByID(ctx context.Context, id string) (*Order, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, ErrOrderNotFound
	}

	var (
		order      Order
		status     string
		totalCents int64
	)
	err := r.db.QueryRow(ctx, `
		SELECT id::text, session_id, customer_name, customer_phone, delivery_address, delivery_city, payment_method, status, total_cents, created_at
		FROM orders
		WHERE id = $1
	`, id).Scan(
		&order.ID,
		&order.SessionID,
		&order.CustomerName,
		&order.CustomerPhone,
		&order.DeliveryAddress,
		&order.DeliveryCity,
		&order.PaymentMethod,
		&status,
		&totalCents,
		&order.CreatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrOrderNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("orders: get order: %w", err)
	}
	order.Status = Status(status)
	order.Total = catalog.Money(totalCents)

	rows, err := r.db.Query(ctx, `
		SELECT product_id, product_name, quantity, unit_price_cents
		FROM order_items
		WHERE order_id = $1
		ORDER BY line_no
	`, id)
	if err != nil {
		return nil, fmt.Errorf("orders: get items: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var (
			item  Item
			cents int64
		)
		if err := rows.Scan(&item.ProductID, &item.ProductName, &item.Quantity, &cents); err != nil {
			return nil, fmt.Errorf("orders: scan item: %w", err)
		}
		item.UnitPrice = catalog.Money(cents)
		order.Items = append(order.Items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("orders: iterate items: %w", err)
	}
	return &order, nil
}
