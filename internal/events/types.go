package events

import "time"

// OrderLineV1 is one frozen cart line inside an order event.
type OrderLineV1 struct {
	ProductID      string `json:"product_id"`
	ProductName    string `json:"product_name"`
	Quantity       int    `json:"quantity"`
	UnitPriceCents int64  `json:"unit_price_cents"`
}

// OrderCreatedV1 is emitted in the same transaction that records an order.
type OrderCreatedV1 struct {
	OrderID         string        `json:"order_id"`
	SessionID       string        `json:"session_id,omitempty"`
	CustomerName    string        `json:"customer_name"`
	CustomerPhone   string        `json:"customer_phone"`
	DeliveryAddress string        `json:"delivery_address"`
	DeliveryCity    string        `json:"delivery_city,omitempty"`
	PaymentMethod   string        `json:"payment_method"`
	TotalCents      int64         `json:"total_cents"`
	Lines           []OrderLineV1 `json:"lines"`
	CreatedAt       time.Time     `json:"created_at"`
}

func (OrderCreatedV1) EventType() string { return "orders.order.created.v1" }

func (e OrderCreatedV1) AggregateKey() string { return OrderAggregate(e.OrderID) }

// CatalogReindexedV1 records an admin-triggered rebuild of the match index.
type CatalogReindexedV1 struct {
	Products  int       `json:"products"`
	Vectors   int       `json:"vectors"`
	BuiltAt   time.Time `json:"built_at"`
	Requester string    `json:"requester,omitempty"`
}

func (CatalogReindexedV1) EventType() string { return "catalog.index.rebuilt.v1" }

func (CatalogReindexedV1) AggregateKey() string { return CatalogIndexAggregate }
