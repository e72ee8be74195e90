package outbox

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/mmararief/dante-propolis/pkg/db/dbtest"
	"github.com/mmararief/dante-propolis/pkg/db/models"
	"github.com/mmararief/dante-propolis/pkg/enums"
)

var fixedNow = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

func newService(t *testing.T) (*Service, *gorm.DB) {
	t.Helper()
	conn := dbtest.Open(t)
	repo := NewRepository(conn)
	repo.now = func() time.Time { return fixedNow }
	svc := NewService(repo, nil)
	svc.now = func() time.Time { return fixedNow }
	return svc, conn
}

func TestEmitWritesEnvelopeInCallerTx(t *testing.T) {
	svc, conn := newService(t)
	orderID := uuid.New()

	err := conn.Transaction(func(tx *gorm.DB) error {
		return svc.Emit(context.Background(), tx, DomainEvent{
			EventType:   enums.EventOrderPlaced,
			AggregateID: orderID,
			Actor:       SystemActor(),
			Data:        map[string]string{"orderId": orderID.String()},
		})
	})
	require.NoError(t, err)

	var row models.OutboxEvent
	require.NoError(t, conn.First(&row).Error)
	assert.Equal(t, enums.AggregateOrder, row.AggregateType)
	assert.Equal(t, orderID, row.AggregateID)
	assert.Nil(t, row.PublishedAt)

	var env PayloadEnvelope
	require.NoError(t, json.Unmarshal(row.Payload, &env))
	assert.Equal(t, currentVersion, env.Version)
	assert.True(t, env.OccurredAt.Equal(fixedNow))
	assert.NotEmpty(t, env.EventID)
	assert.Equal(t, "system", env.Actor.Role)
	assert.JSONEq(t, `{"orderId":"`+orderID.String()+`"}`, string(env.Data))
}

func TestEmitRollsBackWithCallerTx(t *testing.T) {
	svc, conn := newService(t)
	boom := errors.New("state change failed")

	err := conn.Transaction(func(tx *gorm.DB) error {
		require.NoError(t, svc.Emit(context.Background(), tx, DomainEvent{
			EventType:   enums.EventBatchRestocked,
			AggregateID: uuid.New(),
			Data:        map[string]int{"delta": 5},
		}))
		return boom
	})
	require.ErrorIs(t, err, boom)

	var count int64
	require.NoError(t, conn.Model(&models.OutboxEvent{}).Count(&count).Error)
	assert.Zero(t, count)
}

func TestEmitRejectsMalformedEvents(t *testing.T) {
	svc, conn := newService(t)
	ctx := context.Background()

	cases := map[string]DomainEvent{
		"unknown type":       {EventType: "order.teleported", AggregateID: uuid.New()},
		"aggregate mismatch": {EventType: enums.EventOrderShipped, AggregateType: enums.AggregateBatch, AggregateID: uuid.New()},
		"missing aggregate":  {EventType: enums.EventOrderShipped},
		"unencodable data":   {EventType: enums.EventOrderShipped, AggregateID: uuid.New(), Data: make(chan int)},
	}
	for name, event := range cases {
		err := conn.Transaction(func(tx *gorm.DB) error { return svc.Emit(ctx, tx, event) })
		assert.Error(t, err, name)
	}
	assert.ErrorIs(t, svc.Emit(ctx, nil, DomainEvent{EventType: enums.EventOrderShipped, AggregateID: uuid.New()}), errNoTx)
}

func TestClaimPendingOrdersAndSkipsExhaustedRows(t *testing.T) {
	conn := dbtest.Open(t)
	repo := NewRepository(conn)
	published := fixedNow

	oldest := seedEvent(t, conn, fixedNow.Add(-3*time.Hour), 0, nil)
	newest := seedEvent(t, conn, fixedNow.Add(-1*time.Hour), 2, nil)
	seedEvent(t, conn, fixedNow.Add(-2*time.Hour), 5, nil)
	seedEvent(t, conn, fixedNow.Add(-4*time.Hour), 0, &published)

	var claimed []models.OutboxEvent
	require.NoError(t, conn.Transaction(func(tx *gorm.DB) error {
		var err error
		claimed, err = repo.ClaimPending(tx, 10, 5)
		return err
	}))
	require.Len(t, claimed, 2)
	assert.Equal(t, oldest.ID, claimed[0].ID)
	assert.Equal(t, newest.ID, claimed[1].ID)

	require.NoError(t, conn.Transaction(func(tx *gorm.DB) error {
		var err error
		claimed, err = repo.ClaimPending(tx, 1, 5)
		return err
	}))
	assert.Len(t, claimed, 1)
}

func TestMarkTransitions(t *testing.T) {
	conn := dbtest.Open(t)
	repo := NewRepository(conn)
	repo.now = func() time.Time { return fixedNow }

	ok := seedEvent(t, conn, fixedNow.Add(-time.Minute), 0, nil)
	retry := seedEvent(t, conn, fixedNow.Add(-time.Minute), 1, nil)
	dead := seedEvent(t, conn, fixedNow.Add(-time.Minute), 1, nil)

	require.NoError(t, conn.Transaction(func(tx *gorm.DB) error {
		if err := repo.MarkPublished(tx, ok.ID); err != nil {
			return err
		}
		if err := repo.MarkFailed(tx, retry.ID, errors.New(strings.Repeat("x", 2*maxLastErrorLen))); err != nil {
			return err
		}
		return repo.MarkTerminal(tx, dead.ID, errors.New("rejected by broker"), 10)
	}))

	got := reload(t, conn, ok.ID)
	require.NotNil(t, got.PublishedAt)
	assert.True(t, got.PublishedAt.Equal(fixedNow))

	got = reload(t, conn, retry.ID)
	assert.Equal(t, 2, got.AttemptCount)
	require.NotNil(t, got.LastError)
	assert.Len(t, *got.LastError, maxLastErrorLen)

	got = reload(t, conn, dead.ID)
	assert.Equal(t, 10, got.AttemptCount)
	assert.Nil(t, got.PublishedAt)
}

func TestPruneAndBacklog(t *testing.T) {
	conn := dbtest.Open(t)
	repo := NewRepository(conn)
	cutoff := fixedNow.AddDate(0, 0, -30)
	longAgo := cutoff.Add(-time.Hour)
	recent := cutoff.Add(time.Hour)

	seedEvent(t, conn, longAgo, 0, &longAgo)
	seedEvent(t, conn, longAgo, 10, nil)
	keepPublished := seedEvent(t, conn, longAgo, 0, &recent)
	pending := seedEvent(t, conn, longAgo, 3, nil)
	fresh := seedEvent(t, conn, recent, 0, nil)

	backlog, err := repo.Backlog(context.Background(), 10)
	require.NoError(t, err)
	assert.EqualValues(t, 2, backlog.Pending)
	require.NotNil(t, backlog.Oldest)
	assert.True(t, backlog.Oldest.Equal(longAgo))

	var deleted int64
	require.NoError(t, conn.Transaction(func(tx *gorm.DB) error {
		var err error
		deleted, err = repo.Prune(context.Background(), tx, cutoff, 10)
		return err
	}))
	assert.EqualValues(t, 2, deleted)

	var remaining []uuid.UUID
	require.NoError(t, conn.Model(&models.OutboxEvent{}).Order("created_at ASC").Pluck("id", &remaining).Error)
	assert.ElementsMatch(t, []uuid.UUID{keepPublished.ID, pending.ID, fresh.ID}, remaining)
}

func TestBacklogEmpty(t *testing.T) {
	repo := NewRepository(dbtest.Open(t))
	backlog, err := repo.Backlog(context.Background(), 10)
	require.NoError(t, err)
	assert.Zero(t, backlog.Pending)
	assert.Nil(t, backlog.Oldest)
}

func TestDLQParkAndPrune(t *testing.T) {
	conn := dbtest.Open(t)
	dlq := NewDLQRepository(conn)
	long := strings.Repeat("e", maxLastErrorLen+10)
	cutoff := fixedNow.AddDate(0, 0, -90)

	park := func(failedAt time.Time) {
		t.Helper()
		require.NoError(t, conn.Transaction(func(tx *gorm.DB) error {
			return dlq.Park(tx, models.OutboxDLQ{
				EventID:       uuid.New(),
				EventType:     enums.EventOrderPlaced,
				AggregateType: enums.AggregateOrder,
				AggregateID:   uuid.New(),
				Payload:       json.RawMessage(`{}`),
				ErrorReason:   enums.OutboxDLQReasonMaxAttempts,
				ErrorMessage:  &long,
				AttemptCount:  10,
				FailedAt:      failedAt,
			})
		}))
	}
	park(cutoff.Add(-time.Hour))
	park(cutoff.Add(time.Hour))

	var entries []models.OutboxDLQ
	require.NoError(t, conn.Find(&entries).Error)
	require.Len(t, entries, 2)
	assert.Len(t, *entries[0].ErrorMessage, maxLastErrorLen)

	var deleted int64
	require.NoError(t, conn.Transaction(func(tx *gorm.DB) error {
		var err error
		deleted, err = dlq.Prune(context.Background(), tx, cutoff)
		return err
	}))
	assert.EqualValues(t, 1, deleted)
}

func seedEvent(t *testing.T, conn *gorm.DB, createdAt time.Time, attempts int, publishedAt *time.Time) models.OutboxEvent {
	t.Helper()
	row := models.OutboxEvent{
		EventType:     enums.EventOrderPlaced,
		AggregateType: enums.AggregateOrder,
		AggregateID:   uuid.New(),
		Payload:       json.RawMessage(`{"version":1,"data":{}}`),
		CreatedAt:     createdAt,
		PublishedAt:   publishedAt,
		AttemptCount:  attempts,
	}
	require.NoError(t, conn.Create(&row).Error)
	return row
}

func reload(t *testing.T, conn *gorm.DB, id uuid.UUID) models.OutboxEvent {
	t.Helper()
	var row models.OutboxEvent
	require.NoError(t, conn.First(&row, "id = ?", id).Error)
	return row
}

func TestDecodeEnvelope(t *testing.T) {
	ok, err := json.Marshal(PayloadEnvelope{Version: currentVersion, EventID: "e-1", Data: json.RawMessage(` {"a":1} `)})
	require.NoError(t, err)
	env, err := DecodeEnvelope(ok)
	require.NoError(t, err)
	assert.Equal(t, `{"a":1}`, string(env.Data))
	assert.True(t, env.Actor.IsSystem())

	future, err := json.Marshal(PayloadEnvelope{Version: currentVersion + 1, Data: json.RawMessage(`{}`)})
	require.NoError(t, err)
	_, err = DecodeEnvelope(future)
	assert.ErrorContains(t, err, "unsupported envelope version")

	empty, err := json.Marshal(PayloadEnvelope{Version: currentVersion, Data: json.RawMessage(`null`)})
	require.NoError(t, err)
	_, err = DecodeEnvelope(empty)
	assert.ErrorIs(t, err, errEmptyData)

	_, err = DecodeEnvelope([]byte("{"))
	assert.Error(t, err)
}

func TestSystemActor(t *testing.T) {
	assert.True(t, SystemActor().IsSystem())
	assert.False(t, (&ActorRef{UserID: uuid.New(), Role: "customer"}).IsSystem())
}
