package orders

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
)

// IdempotencyStore remembers which order a submission key produced.
//
// Reserve claims key for ttl. When the key already maps to a finished order
// its id is returned with reserved=false; when another submission holds it,
// ErrSubmissionInFlight is returned.
type IdempotencyStore interface {
	Reserve(ctx context.Context, key string, ttl time.Duration) (orderID string, reserved bool, err error)
	Complete(ctx context.Context, key, orderID string, ttl time.Duration) error
	Release(ctx context.Context, key string) error
}

const (
	idempotencyKeyPrefix = "medorder:idem:"
	pendingMarker        = "pending"
)

// RedisIdempotencyStore uses SETNX so concurrent API replicas agree on the
// first writer.
type RedisIdempotencyStore struct {
	client *redis.Client
}

func NewRedisIdempotencyStore(client *redis.Client) *RedisIdempotencyStore {
	if client == nil {
		panic("orders: redis client required")
	}
	return &RedisIdempotencyStore{client: client}
}

func (s *RedisIdempotencyStore) Reserve(ctx context.Context, key string, ttl time.Duration) (string, bool, error) {
	ok, err := s.client.SetNX(ctx, idempotencyKeyPrefix+key, pendingMarker, ttl).Result()
	if err != nil {
		return "", false, fmt.Errorf("orders: reserve idempotency key: %w", err)
	}
	if ok {
		return "", true, nil
	}
	val, err := s.client.Get(ctx, idempotencyKeyPrefix+key).Result()
	if errors.Is(err, redis.Nil) {
		// Expired between the two calls; try once more.
		ok, err = s.client.SetNX(ctx, idempotencyKeyPrefix+key, pendingMarker, ttl).Result()
		if err != nil {
			return "", false, fmt.Errorf("orders: reserve idempotency key: %w", err)
		}
		if ok {
			return "", true, nil
		}
		return "", false, ErrSubmissionInFlight
	}
	if err != nil {
		return "", false, fmt.Errorf("orders: read idempotency key: %w", err)
	}
	if val == pendingMarker {
		return "", false, ErrSubmissionInFlight
	}
	return val, false, nil
}

func (s *RedisIdempotencyStore) Complete(ctx context.Context, key, orderID string, ttl time.Duration) error {
	if err := s.client.Set(ctx, idempotencyKeyPrefix+key, orderID, ttl).Err(); err != nil {
		return fmt.Errorf("orders: complete idempotency key: %w", err)
	}
	return nil
}

func (s *RedisIdempotencyStore) Release(ctx context.Context, key string) error {
	if err := s.client.Del(ctx, idempotencyKeyPrefix+key).Err(); err != nil {
		return fmt.Errorf("orders: release idempotency key: %w", err)
	}
	return nil
}

type memoryIdem struct {
	orderID   string
	expiresAt time.Time
}

// MemoryIdempotencyStore is the single-process variant.
type MemoryIdempotencyStore struct {
	mu   sync.Mutex
	keys map[string]memoryIdem
	now  func() time.Time
}

func NewMemoryIdempotencyStore() *MemoryIdempotencyStore {
	return &MemoryIdempotencyStore{keys: make(map[string]memoryIdem), now: time.Now}
}

func (s *MemoryIdempotencyStore) Reserve(_ context.Context, key string, ttl time.Duration) (string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	if entry, ok := s.keys[key]; ok && now.Before(entry.expiresAt) {
		if entry.orderID == pendingMarker {
			return "", false, ErrSubmissionInFlight
		}
		return entry.orderID, false, nil
	}
	s.keys[key] = memoryIdem{orderID: pendingMarker, expiresAt: now.Add(ttl)}
	return "", true, nil
}

func (s *MemoryIdempotencyStore) Complete(_ context.Context, key, orderID string, ttl time.Duration) error {
	s.mu.Lock()
	s.keys[key] = memoryIdem{orderID: orderID, expiresAt: s.now().Add(ttl)}
	s.mu.Unlock()
	return nil
}

func (s *MemoryIdempotencyStore) Release(_ context.Context, key string) error {
	s.mu.Lock()
	delete(s.keys, key)
	s.mu.Unlock()
	return nil
}

type idemDB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PostgresIdempotencyStore keeps keys in the order_idempotency table for
// deployments without Redis. Expired rows are reclaimed on conflict.
type PostgresIdempotencyStore struct {
	db idemDB
}

func NewPostgresIdempotencyStore(pool *pgxpool.Pool) *PostgresIdempotencyStore {
	if pool == nil {
		panic("orders: pgx pool required")
	}
	return &PostgresIdempotencyStore{db: pool}
}

func newPostgresIdempotencyStoreWithDB(db idemDB) *PostgresIdempotencyStore {
	return &PostgresIdempotencyStore{db: db}
}

func (s *PostgresIdempotencyStore) Reserve(ctx context.Context, key string, ttl time.Duration) (string, bool, error) {
	query := `
		INSERT INTO order_idempotency (key, order_id, expires_at)
		VALUES ($1, '', now() + make_interval(secs => $2))
		ON CONFLICT (key) DO UPDATE
		SET order_id = '', expires_at = EXCLUDED.expires_at
		WHERE order_idempotency.expires_at < now()
	`
	ct, err := s.db.Exec(ctx, query, key, ttl.Seconds())
	if err != nil {
		return "", false, fmt.Errorf("orders: reserve idempotency key: %w", err)
	}
	if ct.RowsAffected() == 1 {
		return "", true, nil
	}

	var orderID string
	err = s.db.QueryRow(ctx, `SELECT order_id FROM order_idempotency WHERE key = $1`, key).Scan(&orderID)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", false, ErrSubmissionInFlight
	}
	if err != nil {
		return "", false, fmt.Errorf("orders: read idempotency key: %w", err)
	}
	if orderID == "" {
		return "", false, ErrSubmissionInFlight
	}
	return orderID, false, nil
}

func (s *PostgresIdempotencyStore) Complete(ctx context.Context, key, orderID string, ttl time.Duration) error {
	query := `
		UPDATE order_idempotency
		SET order_id = $2, expires_at = now() + make_interval(secs => $3)
		WHERE key = $1
	`
	if _, err := s.db.Exec(ctx, query, key, orderID, ttl.Seconds()); err != nil {
		return fmt.Errorf("orders: complete idempotency key: %w", err)
	}
	return nil
}

func (s *PostgresIdempotencyStore) Release(ctx context.Context, key string) error {
	if _, err := s.db.Exec(ctx, `DELETE FROM order_idempotency WHERE key = $1 AND order_id = ''`, key); err != nil {
		return fmt.Errorf("orders: release idempotency key: %w", err)
	}
	return nil
}
