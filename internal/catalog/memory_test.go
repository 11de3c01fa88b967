package catalog

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStoreSearch(t *testing.T) {
	store := NewMemoryStore(
		Product{ID: "b", Name: "Panadol Extra", GenericName: "paracetamol"},
		Product{ID: "a", Name: "Panadol Advance", GenericName: "paracetamol"},
		Product{ID: "c", Name: "Brufen 400mg", GenericName: "ibuprofen"},
	)
	ctx := context.Background()

	got, err := store.Search(ctx, "PANADOL")
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "a", got[0].ID)

	got, err = store.Search(ctx, "ibupro")
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "c", got[0].ID)

	got, err = store.Search(ctx, "  ")
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestMemoryStoreWritesVisibleOnNextRead(t *testing.T) {
	store := NewMemoryStore(Product{ID: "p", Name: "Panadol", Price: 450, Stock: 10, Status: StatusAvailable})
	ctx := context.Background()

	require.NoError(t, store.SetPrice("p", 520))
	require.NoError(t, store.SetStock("p", 2))
	require.NoError(t, store.SetStatus("p", StatusUnavailable))

	p, err := store.GetByID(ctx, "p")
	require.NoError(t, err)
	assert.Equal(t, Money(520), p.Price)
	assert.Equal(t, 2, p.Stock)
	assert.Equal(t, StatusUnavailable, p.Status)

	assert.ErrorIs(t, store.SetStock("missing", 1), ErrProductNotFound)
	_, err = store.GetByID(ctx, "missing")
	assert.ErrorIs(t, err, ErrProductNotFound)
}

func TestMemoryStoreFailure(t *testing.T) {
	store := NewMemoryStore(Product{ID: "p", Name: "Panadol"})
	store.SetFailure(errors.New("connection reset"))

	_, err := store.Search(context.Background(), "panadol")
	assert.ErrorIs(t, err, ErrUnavailable)
	_, err = store.List(context.Background())
	assert.ErrorIs(t, err, ErrUnavailable)

	store.SetFailure(nil)
	list, err := store.List(context.Background())
	require.NoError(t, err)
	assert.Len(t, list, 1)
}
