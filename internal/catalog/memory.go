package catalog

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
)

// MemoryStore is an in-process catalog used for development and tests. The
// admin methods stand in for edits made by other actors between chat turns.
type MemoryStore struct {
	mu       sync.RWMutex
	products map[string]Product
	failure  error
}

// NewMemoryStore seeds a store with the given products.
func NewMemoryStore(products ...Product) *MemoryStore {
	s := &MemoryStore{products: make(map[string]Product, len(products))}
	for _, p := range products {
		s.products[p.ID] = p
	}
	return s
}

// Search implements Reader.
func (s *MemoryStore) Search(ctx context.Context, query string) ([]Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.failure != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, s.failure)
	}

	q := strings.ToLower(strings.TrimSpace(query))
	if q == "" {
		return nil, nil
	}
	var out []Product
	for _, p := range s.products {
		if strings.Contains(strings.ToLower(p.Name), q) || strings.Contains(strings.ToLower(p.GenericName), q) {
			out = append(out, p)
		}
	}
	sortByName(out)
	return out, nil
}

// GetByID implements Reader.
func (s *MemoryStore) GetByID(ctx context.Context, id string) (Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.failure != nil {
		return Product{}, fmt.Errorf("%w: %v", ErrUnavailable, s.failure)
	}
	p, ok := s.products[id]
	if !ok {
		return Product{}, ErrProductNotFound
	}
	return p, nil
}

// List implements Reader.
func (s *MemoryStore) List(ctx context.Context) ([]Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.failure != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, s.failure)
	}
	out := make([]Product, 0, len(s.products))
	for _, p := range s.products {
		out = append(out, p)
	}
	sortByName(out)
	return out, nil
}

// Upsert inserts or replaces a product.
func (s *MemoryStore) Upsert(p Product) {
	s.mu.Lock()
	s.products[p.ID] = p
	s.mu.Unlock()
}

// SetPrice changes the live price of a product.
func (s *MemoryStore) SetPrice(id string, price Money) error {
	return s.update(id, func(p *Product) { p.Price = price })
}

// SetStock changes the live stock count of a product.
func (s *MemoryStore) SetStock(id string, stock int) error {
	return s.update(id, func(p *Product) { p.Stock = stock })
}

// SetStatus changes the availability status of a product.
func (s *MemoryStore) SetStatus(id string, status Status) error {
	return s.update(id, func(p *Product) { p.Status = status })
}

// SetFailure makes every read fail with ErrUnavailable until cleared with nil.
func (s *MemoryStore) SetFailure(err error) {
	s.mu.Lock()
	s.failure = err
	s.mu.Unlock()
}

func (s *MemoryStore) update(id string, fn func(*Product)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.products[id]
	if !ok {
		return ErrProductNotFound
	}
	fn(&p)
	s.products[id] = p
	return nil
}

func sortByName(products []Product) {
	sort.Slice(products, func(i, j int) bool {
		if products[i].Name == products[j].Name {
			return products[i].ID < products[j].ID
		}
		return products[i].Name < products[j].Name
	})
}
