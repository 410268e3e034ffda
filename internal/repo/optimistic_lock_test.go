package repo

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/Palaxis/MTUCI-EDA/internal/lifecycle"
	"github.com/Palaxis/MTUCI-EDA/internal/model"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

func newTestRepo(t *testing.T) (*Repository, *gorm.DB) {
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	assert.NoError(t, err)
	assert.NoError(t, db.AutoMigrate(&model.Order{}, &model.OutboxEvent{}, &model.ProcessedEvent{}))
	return NewRepository(db, nil, zap.NewNop().Sugar()), db
}

func TestUpdateOrderState_OptimisticLock(t *testing.T) {
	r, db := newTestRepo(t)
	ctx := context.Background()

	db.Create(&model.Order{
		ID: 1, CustomerID: 10, RestaurantID: 20,
		State: lifecycle.StatePlaced, Total: decimal.NewFromInt(30), Version: 2,
	})

	// two writers read version 2; only the first compare-and-swap commits
	err := r.UpdateOrderState(ctx, db, 1, lifecycle.StateAccepted, 2)
	assert.NoError(t, err)

	err = r.UpdateOrderState(ctx, db, 1, lifecycle.StateRejected, 2)
	assert.ErrorIs(t, err, ErrVersionConflict)

	var final model.Order
	assert.NoError(t, db.First(&final, 1).Error)
	assert.Equal(t, lifecycle.StateAccepted, final.State)
	assert.Equal(t, uint64(3), final.Version)

	// the loser retries against the fresh version and succeeds
	err = r.UpdateOrderState(ctx, db, 1, lifecycle.StateCancelled, 3)
	assert.NoError(t, err)
}

func TestMarkOutboxPublished_Idempotent(t *testing.T) {
	r, db := newTestRepo(t)
	ctx := context.Background()

	evt := &model.OutboxEvent{
		EventID: "evt-1", OrderID: 1, OrderVersion: 1,
		EventType: lifecycle.EventOrderPlaced, Payload: "{}",
	}
	assert.NoError(t, db.Create(evt).Error)

	assert.NoError(t, r.MarkOutboxPublished(ctx, evt.ID))
	assert.NoError(t, r.MarkOutboxPublished(ctx, evt.ID)) // retry is a no-op

	var rows []model.OutboxEvent
	assert.NoError(t, db.Find(&rows).Error)
	assert.Len(t, rows, 1)
	assert.True(t, rows[0].Published)
	assert.NotNil(t, rows[0].PublishedAt)
}

func TestPollOutbox_OrderedPerOrder(t *testing.T) {
	r, db := newTestRepo(t)
	ctx := context.Background()

	// inserted deliberately out of order
	db.Create(&model.OutboxEvent{EventID: "b", OrderID: 1, OrderVersion: 2, EventType: lifecycle.EventOrderAccepted, Payload: "{}"})
	db.Create(&model.OutboxEvent{EventID: "c", OrderID: 2, OrderVersion: 1, EventType: lifecycle.EventOrderPlaced, Payload: "{}"})
	db.Create(&model.OutboxEvent{EventID: "a", OrderID: 1, OrderVersion: 1, EventType: lifecycle.EventOrderPlaced, Payload: "{}"})

	evts, err := r.PollOutbox(ctx, 10)
	assert.NoError(t, err)
	assert.Len(t, evts, 3)
	assert.Equal(t, "a", evts[0].EventID)
	assert.Equal(t, "b", evts[1].EventID)
	assert.Equal(t, "c", evts[2].EventID)
}

func TestProcessedEventLedger(t *testing.T) {
	r, db := newTestRepo(t)
	ctx := context.Background()

	done, err := r.EventProcessed(ctx, db, "evt-1", "restaurant-consumer")
	assert.NoError(t, err)
	assert.False(t, done)

	rec := &model.ProcessedEvent{EventID: "evt-1", ConsumerName: "restaurant-consumer"}
	assert.NoError(t, r.RecordProcessedEvent(ctx, db, rec))

	done, err = r.EventProcessed(ctx, db, "evt-1", "restaurant-consumer")
	assert.NoError(t, err)
	assert.True(t, done)

	// same event under another consumer name is independent
	done, err = r.EventProcessed(ctx, db, "evt-1", "notification-dispatcher")
	assert.NoError(t, err)
	assert.False(t, done)

	// double insert trips the composite primary key
	err = r.RecordProcessedEvent(ctx, db, &model.ProcessedEvent{EventID: "evt-1", ConsumerName: "restaurant-consumer"})
	assert.True(t, IsDuplicateKey(err))
}

func TestCountStuckOutbox(t *testing.T) {
	r, db := newTestRepo(t)
	ctx := context.Background()

	db.Create(&model.OutboxEvent{EventID: "old", OrderID: 1, OrderVersion: 1,
		EventType: lifecycle.EventOrderPlaced, Payload: "{}",
		CreatedAt: time.Now().Add(-2 * time.Minute)})
	db.Create(&model.OutboxEvent{EventID: "new", OrderID: 2, OrderVersion: 1,
		EventType: lifecycle.EventOrderPlaced, Payload: "{}"})

	n, err := r.CountStuckOutbox(ctx, time.Minute)
	assert.NoError(t, err)
	assert.Equal(t, int64(1), n)
}
