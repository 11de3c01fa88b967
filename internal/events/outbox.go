package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/wolfman30/medorder-assistant/pkg/logging"
)

// OutboxEntry is one claimed, undelivered envelope.
type OutboxEntry struct {
	ID        uuid.UUID
	Aggregate string
	EventType string
	Payload   json.RawMessage
	CreatedAt time.Time
	// Attempts counts claims, including the current one.
	Attempts int
}

// DeliveryHandler emits events to downstream transports.
type DeliveryHandler interface {
	Handle(ctx context.Context, entry OutboxEntry) error
}

// PendingStore is what the Deliverer needs from the outbox. Claim hands out
// rows under a lease so several relays can poll the same table; a row whose
// delivery fails is offered again once its lease runs out.
type PendingStore interface {
	Claim(ctx context.Context, limit int32, lease time.Duration) ([]OutboxEntry, error)
	MarkDelivered(ctx context.Context, id uuid.UUID) (bool, error)
}

type outboxDB interface {
	execer
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

// OutboxStore is the Postgres outbox table.
type OutboxStore struct {
	db outboxDB
}

func NewOutboxStore(pool *pgxpool.Pool) *OutboxStore {
	if pool == nil {
		panic("events: pgx pool required")
	}
	return &OutboxStore{db: pool}
}

func newOutboxStoreWithExec(db outboxDB) *OutboxStore {
	return &OutboxStore{db: db}
}

// Append records evt outside of any caller transaction.
func (s *OutboxStore) Append(ctx context.Context, aggregate, correlationID string, evt Event, opts ...EnvelopeOption) (Envelope, error) {
	return Record(ctx, s.db, aggregate, correlationID, evt, opts...)
}

func (s *OutboxStore) Claim(ctx context.Context, limit int32, lease time.Duration) ([]OutboxEntry, error) {
	rows, err := s.db.Query(ctx, `
		UPDATE outbox
		SET claimed_until = now() + make_interval(secs => $2), attempts = attempts + 1
		WHERE id IN (
			SELECT id FROM outbox
			WHERE delivered_at IS NULL
			  AND (claimed_until IS NULL OR claimed_until < now())
			ORDER BY created_at
			LIMIT $1
			FOR UPDATE SKIP LOCKED
		)
		RETURNING id, aggregate, event_type, payload, created_at, attempts
	`, limit, lease.Seconds())
	if err != nil {
		return nil, fmt.Errorf("events: claim outbox rows: %w", err)
	}
	defer rows.Close()

	var entries []OutboxEntry
	for rows.Next() {
		var (
			entry   OutboxEntry
			payload []byte
		)
		if err := rows.Scan(&entry.ID, &entry.Aggregate, &entry.EventType, &payload, &entry.CreatedAt, &entry.Attempts); err != nil {
			return nil, fmt.Errorf("events: scan outbox: %w", err)
		}
		entry.Payload = append([]byte(nil), payload...)
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("events: read outbox: %w", err)
	}
	return entries, nil
}

// MarkDelivered reports false when another relay got there first.
func (s *OutboxStore) MarkDelivered(ctx context.Context, id uuid.UUID) (bool, error) {
	ct, err := s.db.Exec(ctx, `
		UPDATE outbox
		SET delivered_at = now(), claimed_until = NULL
		WHERE id = $1 AND delivered_at IS NULL
	`, id)
	if err != nil {
		return false, fmt.Errorf("events: mark delivered: %w", err)
	}
	return ct.RowsAffected() == 1, nil
}

// Deliverer is the outbox relay. Delivery is at least once: consumers
// dedupe on the envelope's event_id.
type Deliverer struct {
	store     PendingStore
	handler   DeliveryHandler
	logger    *logging.Logger
	batchSize int32
	interval  time.Duration
	lease     time.Duration
	onResult  func(delivered bool)
}

func NewDeliverer(store PendingStore, handler DeliveryHandler, logger *logging.Logger) *Deliverer {
	if logger == nil {
		logger = logging.Default()
	}
	return &Deliverer{
		store:     store,
		handler:   handler,
		logger:    logger,
		batchSize: 25,
		interval:  2 * time.Second,
		lease:     30 * time.Second,
	}
}

func (d *Deliverer) WithBatchSize(size int32) *Deliverer {
	if size > 0 {
		d.batchSize = size
	}
	return d
}

func (d *Deliverer) WithInterval(interval time.Duration) *Deliverer {
	if interval > 0 {
		d.interval = interval
	}
	return d
}

// WithLease sets how long a claimed row is hidden from other relays.
func (d *Deliverer) WithLease(lease time.Duration) *Deliverer {
	if lease > 0 {
		d.lease = lease
	}
	return d
}

// WithResultHook registers a callback fired after each delivery attempt.
func (d *Deliverer) WithResultHook(fn func(delivered bool)) *Deliverer {
	d.onResult = fn
	return d
}

// Start polls until ctx is cancelled.
func (d *Deliverer) Start(ctx context.Context) {
	if d.store == nil || d.handler == nil {
		return
	}
	ticker := time.NewTicker(d.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			d.Drain(ctx)
		}
	}
}

// Drain claims one batch and returns how many rows were acknowledged.
func (d *Deliverer) Drain(ctx context.Context) int {
	entries, err := d.store.Claim(ctx, d.batchSize, d.lease)
	if err != nil {
		d.logger.Error("outbox claim failed", "error", err)
		return 0
	}
	delivered := 0
	for _, entry := range entries {
		log := d.logger.With("event_id", entry.ID, "type", entry.EventType, "attempt", entry.Attempts)
		if err := d.handler.Handle(ctx, entry); err != nil {
			log.Error("outbox delivery failed; retrying after lease", "error", err, "lease", d.lease.String())
			d.report(false)
			continue
		}
		ok, err := d.store.MarkDelivered(ctx, entry.ID)
		if err != nil {
			log.Error("failed to mark outbox delivered", "error", err)
			d.report(false)
			continue
		}
		if ok {
			delivered++
			log.Debug("outbox delivered")
		}
		d.report(true)
	}
	return delivered
}

func (d *Deliverer) report(ok bool) {
	if d.onResult != nil {
		d.onResult(ok)
	}
}
