package outbox

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/angelmondragon/packfinderz-payouts/pkg/db/models"
	"github.com/angelmondragon/packfinderz-payouts/pkg/enums"
)

type recordingRepo struct {
	rows    []models.OutboxEvent
	pending bool
}

func (r *recordingRepo) Insert(_ *gorm.DB, event models.OutboxEvent) error {
	r.rows = append(r.rows, event)
	return nil
}

func (r *recordingRepo) ExistsPendingTx(*gorm.DB, enums.OutboxEventType, uuid.UUID) (bool, error) {
	return r.pending, nil
}

func newTestOutbox(repo *recordingRepo) *Service {
	svc := NewService(repo, nil, "worker")
	svc.now = func() time.Time { return time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC) }
	return svc
}

func TestEmitFillsAggregateAndEnvelope(t *testing.T) {
	repo := &recordingRepo{}
	orderID := uuid.New()

	err := newTestOutbox(repo).Emit(context.Background(), &gorm.DB{}, DomainEvent{
		EventType:   enums.EventPayoutFailed,
		AggregateID: orderID,
		Data:        map[string]string{"order_id": orderID.String()},
		Delay:       time.Minute,
	})
	require.NoError(t, err)
	require.Len(t, repo.rows, 1)

	row := repo.rows[0]
	assert.Equal(t, enums.AggregateOrder, row.AggregateType)
	assert.Equal(t, time.Date(2026, 3, 2, 9, 1, 0, 0, time.UTC), row.AvailableAt)

	var env PayloadEnvelope
	require.NoError(t, json.Unmarshal(row.Payload, &env))
	assert.Equal(t, 1, env.Version)
	assert.Equal(t, "worker", env.Source)
	assert.NotEmpty(t, env.EventID)
}

func TestEmitRejectsMismatchedAggregate(t *testing.T) {
	repo := &recordingRepo{}
	err := newTestOutbox(repo).Emit(context.Background(), &gorm.DB{}, DomainEvent{
		EventType:     enums.EventPayoutSucceeded,
		AggregateType: enums.AggregateTransfer,
		AggregateID:   uuid.New(),
		Data:          struct{}{},
	})
	assert.ErrorContains(t, err, "keyed by order")
	assert.Empty(t, repo.rows)

	err = newTestOutbox(repo).Emit(context.Background(), &gorm.DB{}, DomainEvent{
		EventType:   enums.OutboxEventType("order.created"),
		AggregateID: uuid.New(),
	})
	assert.Error(t, err)
	assert.Error(t, newTestOutbox(repo).Emit(context.Background(), nil, DomainEvent{EventType: enums.EventPayoutRequested}))
}

func TestEmitUnlessPendingSkipsQueuedRequest(t *testing.T) {
	repo := &recordingRepo{pending: true}
	written, err := newTestOutbox(repo).EmitUnlessPending(context.Background(), &gorm.DB{}, DomainEvent{
		EventType:   enums.EventPayoutRequested,
		AggregateID: uuid.New(),
		Data:        struct{}{},
	})
	require.NoError(t, err)
	assert.False(t, written)
	assert.Empty(t, repo.rows)

	repo.pending = false
	written, err = newTestOutbox(repo).EmitUnlessPending(context.Background(), &gorm.DB{}, DomainEvent{
		EventType:   enums.EventPayoutRequested,
		AggregateID: uuid.New(),
		Data:        struct{}{},
	})
	require.NoError(t, err)
	assert.True(t, written)
	assert.Len(t, repo.rows, 1)
}
