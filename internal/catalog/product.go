// Package catalog is the read-side adapter over the distributor's product and
// inventory store. Price, stock and status returned here are always as-of-now;
// callers must not hold them across chat turns.
package catalog

import (
	"context"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Status is the availability state of a product.
type Status string

const (
	StatusAvailable   Status = "available"
	StatusOutOfStock  Status = "out_of_stock"
	StatusUnavailable Status = "unavailable"
)

// ParseStatus accepts the stored spelling plus a few human variants.
func ParseStatus(raw string) (Status, error) {
	switch strings.ToLower(strings.TrimSpace(strings.ReplaceAll(raw, " ", "_"))) {
	case "available", "in_stock", "":
		return StatusAvailable, nil
	case "out_of_stock", "outofstock":
		return StatusOutOfStock, nil
	case "unavailable", "discontinued":
		return StatusUnavailable, nil
	default:
		return "", fmt.Errorf("catalog: unknown status %q", raw)
	}
}

// Money is an amount in minor units (cents).
type Money int64

// MoneyFromFloat rounds a decimal amount to the nearest cent.
func MoneyFromFloat(f float64) Money {
	return Money(math.Round(f * 100))
}

// Float returns the decimal value.
func (m Money) Float() float64 {
	return float64(m) / 100
}

// String renders the amount with two decimals, e.g. "12.50".
func (m Money) String() string {
	sign := ""
	v := int64(m)
	if v < 0 {
		sign = "-"
		v = -v
	}
	return fmt.Sprintf("%s%d.%02d", sign, v/100, v%100)
}

// MarshalJSON encodes the amount as a decimal JSON number.
func (m Money) MarshalJSON() ([]byte, error) {
	return []byte(m.String()), nil
}

// UnmarshalJSON accepts a decimal number or a quoted decimal string.
func (m *Money) UnmarshalJSON(data []byte) error {
	raw := strings.Trim(strings.TrimSpace(string(data)), `"`)
	if raw == "" || raw == "null" {
		*m = 0
		return nil
	}
	f, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return fmt.Errorf("catalog: invalid money %q: %w", raw, err)
	}
	*m = MoneyFromFloat(f)
	return nil
}

// Product is one catalog record. It is owned by the external catalog.
type Product struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	GenericName string `json:"genericName"`
	Form        string `json:"form"`
	PackSize    string `json:"packSize,omitempty"`
	Description string `json:"description,omitempty"`
	Price       Money  `json:"price"`
	Stock       int    `json:"stock"`
	Status      Status `json:"status"`
}

// EffectiveStatus folds a zero stock count into OutOfStock.
func (p Product) EffectiveStatus() Status {
	if p.Status == StatusAvailable && p.Stock <= 0 {
		return StatusOutOfStock
	}
	if p.Status == "" {
		return StatusAvailable
	}
	return p.Status
}

// Orderable reports whether at least one unit can be sold right now.
func (p Product) Orderable() bool {
	return p.EffectiveStatus() == StatusAvailable
}

// DisplayName is the name shown to users and snapshotted into carts.
func (p Product) DisplayName() string {
	if p.PackSize == "" {
		return p.Name
	}
	return p.Name + " (" + p.PackSize + ")"
}

// SearchText is the text the embedding index represents for this product.
func (p Product) SearchText() string {
	parts := []string{p.Name, p.GenericName, p.Form, p.Description}
	var b strings.Builder
	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		if b.Len() > 0 {
			b.WriteString(". ")
		}
		b.WriteString(part)
	}
	return b.String()
}

// Reader is the catalog contract the ordering engine consumes. Every call is a
// live read; implementations must reflect writes on the next read.
type Reader interface {
	// Search returns products whose name or generic name contains query,
	// case-insensitively.
	Search(ctx context.Context, query string) ([]Product, error)
	// GetByID returns one product or ErrProductNotFound.
	GetByID(ctx context.Context, id string) (Product, error)
	// List returns the whole catalog; used to build the match index.
	List(ctx context.Context) ([]Product, error)
}
