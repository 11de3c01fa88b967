package orders

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	pgxmock "github.com/pashagolub/pgxmock/v4"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return mr, client
}

func exerciseIdempotencyStore(t *testing.T, store IdempotencyStore) {
	ctx := context.Background()

	id, reserved, err := store.Reserve(ctx, "k1", time.Hour)
	require.NoError(t, err)
	assert.True(t, reserved)
	assert.Empty(t, id)

	_, _, err = store.Reserve(ctx, "k1", time.Hour)
	assert.ErrorIs(t, err, ErrSubmissionInFlight)

	require.NoError(t, store.Complete(ctx, "k1", "order-1", time.Hour))
	id, reserved, err = store.Reserve(ctx, "k1", time.Hour)
	require.NoError(t, err)
	assert.False(t, reserved)
	assert.Equal(t, "order-1", id)

	_, reserved, err = store.Reserve(ctx, "k2", time.Hour)
	require.NoError(t, err)
	require.True(t, reserved)
	require.NoError(t, store.Release(ctx, "k2"))
	_, reserved, err = store.Reserve(ctx, "k2", time.Hour)
	require.NoError(t, err)
	assert.True(t, reserved, "released key can be reserved again")
}

func TestRedisIdempotencyStore(t *testing.T) {
	mr, client := newTestRedis(t)
	store := NewRedisIdempotencyStore(client)
	exerciseIdempotencyStore(t, store)

	assert.True(t, mr.Exists("medorder:idem:k1"))
	ttl := mr.TTL("medorder:idem:k1")
	assert.Greater(t, ttl, time.Duration(0))

	mr.FastForward(2 * time.Hour)
	_, reserved, err := store.Reserve(context.Background(), "k1", time.Hour)
	require.NoError(t, err)
	assert.True(t, reserved, "expired key is reclaimed")
}

func TestRedisIdempotencyStoreUnavailable(t *testing.T) {
	mr, client := newTestRedis(t)
	store := NewRedisIdempotencyStore(client)
	mr.SetError("ERR injected failure")

	_, _, err := store.Reserve(context.Background(), "k", time.Minute)
	assert.Error(t, err)
	assert.NotErrorIs(t, err, ErrSubmissionInFlight)
}

func TestMemoryIdempotencyStore(t *testing.T) {
	store := NewMemoryIdempotencyStore()
	exerciseIdempotencyStore(t, store)

	now := time.Now()
	store.now = func() time.Time { return now.Add(48 * time.Hour) }
	_, reserved, err := store.Reserve(context.Background(), "k1", time.Hour)
	require.NoError(t, err)
	assert.True(t, reserved)
}

func TestPostgresIdempotencyStore(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store := newPostgresIdempotencyStoreWithDB(mock)
	ctx := context.Background()

	mock.ExpectExec("INSERT INTO order_idempotency").
		WithArgs("k1", float64(3600)).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	_, reserved, err := store.Reserve(ctx, "k1", time.Hour)
	require.NoError(t, err)
	assert.True(t, reserved)

	mock.ExpectExec("UPDATE order_idempotency").
		WithArgs("k1", "order-1", float64(3600)).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	require.NoError(t, store.Complete(ctx, "k1", "order-1", time.Hour))

	mock.ExpectExec("INSERT INTO order_idempotency").
		WithArgs("k1", float64(3600)).
		WillReturnResult(pgxmock.NewResult("INSERT", 0))
	mock.ExpectQuery("SELECT order_id FROM order_idempotency").
		WithArgs("k1").
		WillReturnRows(pgxmock.NewRows([]string{"order_id"}).AddRow("order-1"))
	id, reserved, err := store.Reserve(ctx, "k1", time.Hour)
	require.NoError(t, err)
	assert.False(t, reserved)
	assert.Equal(t, "order-1", id)

	mock.ExpectExec("INSERT INTO order_idempotency").
		WithArgs("k2", float64(3600)).
		WillReturnResult(pgxmock.NewResult("INSERT", 0))
	mock.ExpectQuery("SELECT order_id FROM order_idempotency").
		WithArgs("k2").
		WillReturnRows(pgxmock.NewRows([]string{"order_id"}).AddRow(""))
	_, _, err = store.Reserve(ctx, "k2", time.Hour)
	assert.ErrorIs(t, err, ErrSubmissionInFlight)

	mock.ExpectExec("DELETE FROM order_idempotency").
		WithArgs("k2").
		WillReturnResult(pgxmock.NewResult("DELETE", 1))
	require.NoError(t, store.Release(ctx, "k2"))

	require.NoError(t, mock.ExpectationsWereMet())
}
