package orders

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Repository persists orders. Create must be atomic: either the order and
// all its lines are recorded or nothing is.
type Repository interface {
	Create(ctx context.Context, p *Payload) (*Order, error)
	GetByID(ctx context.Context, id string) (*Order, error)
}

// InMemoryRepository keeps orders in a map. Used for development and tests.
type InMemoryRepository struct {
	mu      sync.RWMutex
	orders  map[string]*Order
	failure error
}

func NewInMemoryRepository() *InMemoryRepository {
	return &InMemoryRepository{
		orders: make(map[string]*Order),
	}
}

// SetFailure makes every Create fail with err until cleared with nil.
func (r *InMemoryRepository) SetFailure(err error) {
	r.mu.Lock()
	r.failure = err
	r.mu.Unlock()
}

func (r *InMemoryRepository) Create(ctx context.Context, p *Payload) (*Order, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failure != nil {
		return nil, r.failure
	}
	order := newOrder(uuid.New().String(), p, time.Now().UTC())
	r.orders[order.ID] = order
	return order, nil
}

func (r *InMemoryRepository) GetByID(ctx context.Context, id string) (*Order, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	order, ok := r.orders[id]
	if !ok {
		return nil, ErrOrderNotFound
	}
	return order, nil
}

// Count returns the number of stored orders.
func (r *InMemoryRepository) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.orders)
}
