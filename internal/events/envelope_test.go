package events

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubExec struct {
	sql  string
	args []any
	err  error
}

func (s *stubExec) Exec(_ context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	s.sql = sql
	s.args = args
	return pgconn.NewCommandTag("INSERT 0 1"), s.err
}

type unversioned struct{}

func (unversioned) EventType() string { return "orders.order.created" }

func sampleOrderEvent(at time.Time) OrderCreatedV1 {
	return OrderCreatedV1{
		OrderID:         "ord-1",
		SessionID:       "sess-1",
		CustomerName:    "Ama Mensah",
		CustomerPhone:   "0244123456",
		DeliveryAddress: "12 Ring Road",
		PaymentMethod:   "cash_on_delivery",
		TotalCents:      900,
		Lines: []OrderLineV1{
			{ProductID: "panadol-advance-24", ProductName: "Panadol Advance", Quantity: 2, UnitPriceCents: 450},
		},
		CreatedAt: at,
	}
}

func withClock(t *testing.T, at time.Time) {
	t.Helper()
	prev := clock
	clock = func() time.Time { return at }
	t.Cleanup(func() { clock = prev })
}

func TestSealDerivesAggregateAndVersion(t *testing.T) {
	at := time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)
	withClock(t, at)

	env, err := Seal("", " corr-1 ", sampleOrderEvent(at))
	require.NoError(t, err)
	assert.Equal(t, "order:ord-1", env.Aggregate)
	assert.Equal(t, "orders.order.created.v1", env.EventType)
	assert.Equal(t, 1, env.Version)
	assert.Equal(t, at, env.OccurredAt)
	assert.Equal(t, "corr-1", env.CorrelationID)
	assert.NotEqual(t, uuid.Nil, env.EventID)

	var payload OrderCreatedV1
	require.NoError(t, json.Unmarshal(env.Payload, &payload))
	assert.Equal(t, int64(900), payload.TotalCents)
}

func TestSealExplicitAggregateWins(t *testing.T) {
	env, err := Seal("order:override", "", sampleOrderEvent(time.Now()))
	require.NoError(t, err)
	assert.Equal(t, "order:override", env.Aggregate)

	env, err = Seal("", "", CatalogReindexedV1{Products: 3})
	require.NoError(t, err)
	assert.Equal(t, CatalogIndexAggregate, env.Aggregate)
}

func TestSealOptions(t *testing.T) {
	id := uuid.New()
	ts := time.Date(2025, 12, 31, 23, 0, 0, 0, time.FixedZone("GMT+1", 3600))

	env, err := Seal("order:x", "", sampleOrderEvent(ts), WithEventID(id), WithOccurredAt(ts))
	require.NoError(t, err)
	assert.Equal(t, id, env.EventID)
	assert.Equal(t, ts.UTC(), env.OccurredAt)

	env, err = Seal("order:x", "", sampleOrderEvent(ts), WithEventID(uuid.Nil), WithOccurredAt(time.Time{}), nil)
	require.NoError(t, err)
	assert.NotEqual(t, uuid.Nil, env.EventID)
	assert.False(t, env.OccurredAt.IsZero())
}

func TestSealRejectsBadEvents(t *testing.T) {
	_, err := Seal("order:1", "", nil)
	require.ErrorIs(t, err, ErrInvalidEvent)

	_, err = Seal("order:1", "", unversioned{})
	require.ErrorIs(t, err, ErrInvalidEvent)

	_, err = Seal("  ", "", unversioned{})
	require.ErrorIs(t, err, ErrMissingAggregate)
}

func TestSchemaVersion(t *testing.T) {
	tests := map[string]int{
		"orders.order.created.v1":   1,
		"catalog.index.rebuilt.v12": 12,
	}
	for eventType, want := range tests {
		got, ok := schemaVersion(eventType)
		require.True(t, ok, eventType)
		assert.Equal(t, want, got)
	}
	for _, bad := range []string{"", "orders.v0", "orders.created", "orders.vx"} {
		_, ok := schemaVersion(bad)
		assert.False(t, ok, bad)
	}
}

func TestRecordWritesEnvelope(t *testing.T) {
	exec := &stubExec{}
	env, err := Record(context.Background(), exec, "", "sess-1", sampleOrderEvent(time.Unix(100, 0).UTC()))
	require.NoError(t, err)

	require.Len(t, exec.args, 5)
	assert.Equal(t, env.EventID, exec.args[0])
	assert.Equal(t, "order:ord-1", exec.args[1])
	assert.Equal(t, "orders.order.created.v1", exec.args[2])
	assert.Equal(t, env.OccurredAt, exec.args[4])

	raw, ok := exec.args[3].([]byte)
	require.True(t, ok)
	var stored Envelope
	require.NoError(t, json.Unmarshal(raw, &stored))
	assert.Equal(t, env.EventID, stored.EventID)
	assert.Equal(t, "sess-1", stored.CorrelationID)
	assert.Equal(t, 1, stored.Version)
}

func TestRecordErrors(t *testing.T) {
	_, err := Record(context.Background(), nil, "order:1", "", sampleOrderEvent(time.Now()))
	require.Error(t, err)

	exec := &stubExec{}
	_, err = Record(context.Background(), exec, "order:1", "", unversioned{})
	require.ErrorIs(t, err, ErrInvalidEvent)
	assert.Nil(t, exec.args, "invalid events never reach the outbox")

	exec.err = errors.New("relation outbox does not exist")
	_, err = Record(context.Background(), exec, "order:1", "", sampleOrderEvent(time.Now()))
	require.ErrorContains(t, err, "orders.order.created.v1")
}
