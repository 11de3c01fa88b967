package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
)

// Event is a domain event. Its type must end in a schema version such as
// "orders.order.created.v1".
type Event interface {
	EventType() string
}

// Keyed events know which aggregate they belong to, so callers may leave the
// aggregate blank when recording them.
type Keyed interface {
	AggregateKey() string
}

// Envelope is the outbox row body and the message published to the queue.
type Envelope struct {
	EventID       uuid.UUID       `json:"event_id"`
	EventType     string          `json:"event_type"`
	Version       int             `json:"version"`
	Aggregate     string          `json:"aggregate"`
	OccurredAt    time.Time       `json:"occurred_at"`
	CorrelationID string          `json:"correlation_id,omitempty"`
	Payload       json.RawMessage `json:"payload"`
}

type EnvelopeOption func(*Envelope)

// WithEventID pins the event id. uuid.Nil is ignored.
func WithEventID(id uuid.UUID) EnvelopeOption {
	return func(e *Envelope) {
		if id != uuid.Nil {
			e.EventID = id
		}
	}
}

// WithOccurredAt pins the event time. The zero time is ignored.
func WithOccurredAt(ts time.Time) EnvelopeOption {
	return func(e *Envelope) {
		if !ts.IsZero() {
			e.OccurredAt = ts.UTC()
		}
	}
}

var (
	ErrMissingAggregate = errors.New("events: aggregate is required")
	ErrInvalidEvent     = errors.New("events: invalid event")

	versionRE = regexp.MustCompile(`\.v([1-9][0-9]*)$`)
	clock     = time.Now
)

// OrderAggregate is the aggregate key used for order events.
func OrderAggregate(orderID string) string {
	return "order:" + orderID
}

// CatalogIndexAggregate groups index rebuild events.
const CatalogIndexAggregate = "catalog:index"

// schemaVersion reads the trailing ".vN" of an event type.
func schemaVersion(eventType string) (int, bool) {
	m := versionRE.FindStringSubmatch(eventType)
	if m == nil {
		return 0, false
	}
	n, err := strconv.Atoi(m[1])
	return n, err == nil
}

// Seal validates evt and wraps it in an envelope without writing it anywhere.
func Seal(aggregate, correlationID string, evt Event, opts ...EnvelopeOption) (Envelope, error) {
	if evt == nil {
		return Envelope{}, fmt.Errorf("%w: nil event", ErrInvalidEvent)
	}
	aggregate = strings.TrimSpace(aggregate)
	if aggregate == "" {
		if k, ok := evt.(Keyed); ok {
			aggregate = strings.TrimSpace(k.AggregateKey())
		}
	}
	if aggregate == "" {
		return Envelope{}, ErrMissingAggregate
	}
	eventType := strings.TrimSpace(evt.EventType())
	version, ok := schemaVersion(eventType)
	if !ok {
		return Envelope{}, fmt.Errorf("%w: type %q carries no .vN version", ErrInvalidEvent, eventType)
	}
	payload, err := json.Marshal(evt)
	if err != nil {
		return Envelope{}, fmt.Errorf("events: marshal %s: %w", eventType, err)
	}

	env := Envelope{
		EventID:       uuid.New(),
		EventType:     eventType,
		Version:       version,
		Aggregate:     aggregate,
		OccurredAt:    clock().UTC(),
		CorrelationID: strings.TrimSpace(correlationID),
		Payload:       payload,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(&env)
		}
	}
	return env, nil
}

type execer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// Record seals evt and inserts it into the outbox through exec. Passing a
// pgx.Tx makes the event commit or roll back with the caller's writes.
func Record(ctx context.Context, exec execer, aggregate, correlationID string, evt Event, opts ...EnvelopeOption) (Envelope, error) {
	if exec == nil {
		return Envelope{}, errors.New("events: outbox executor required")
	}
	env, err := Seal(aggregate, correlationID, evt, opts...)
	if err != nil {
		return Envelope{}, err
	}
	body, err := json.Marshal(env)
	if err != nil {
		return Envelope{}, fmt.Errorf("events: marshal envelope: %w", err)
	}
	if _, err := exec.Exec(ctx, `
		INSERT INTO outbox (id, aggregate, event_type, payload, created_at)
		VALUES ($1, $2, $3, $4, $5)
	`, env.EventID, env.Aggregate, env.EventType, body, env.OccurredAt); err != nil {
		return Envelope{}, fmt.Errorf("events: record %s: %w", env.EventType, err)
	}
	return env, nil
}
