package service

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/Palaxis/MTUCI-EDA/internal/catalog"
	"github.com/Palaxis/MTUCI-EDA/internal/event"
	"github.com/Palaxis/MTUCI-EDA/internal/lifecycle"
	"github.com/Palaxis/MTUCI-EDA/internal/model"
	"github.com/Palaxis/MTUCI-EDA/internal/repo"
)

type fakeCatalog struct {
	restaurants map[uint64]*catalog.Restaurant
	err         error
}

func (f *fakeCatalog) Restaurant(_ context.Context, id uint64) (*catalog.Restaurant, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.restaurants[id], nil
}

func newTestRestaurantService(t *testing.T, cat catalog.Catalog) (*RestaurantService, *gorm.DB) {
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	assert.NoError(t, err)
	assert.NoError(t, db.AutoMigrate(
		&model.Order{}, &model.OutboxEvent{}, &model.ProcessedEvent{}, &model.RestaurantTicket{},
	))
	repository := repo.NewRepository(db, nil, zap.NewNop().Sugar())
	return NewRestaurantService(repository, cat, zap.NewNop().Sugar()), db
}

func seedPlacedOrder(t *testing.T, db *gorm.DB, id, restaurantID uint64, total int64) *model.Order {
	o := &model.Order{
		ID: id, CustomerID: 10, RestaurantID: restaurantID,
		State: lifecycle.StatePlaced, Total: decimal.NewFromInt(total), Version: 1,
	}
	assert.NoError(t, db.Create(o).Error)
	return o
}

func placedEnvelope(o *model.Order, eventID string) event.Envelope {
	payload, _ := json.Marshal(event.OrderSnapshot{
		OrderID: o.ID, CustomerID: o.CustomerID, RestaurantID: o.RestaurantID,
		State: string(o.State), Total: o.Total.String(),
	})
	return event.Envelope{
		EventID:      eventID,
		OrderID:      o.ID,
		OrderVersion: o.Version,
		EventType:    lifecycle.EventOrderPlaced,
		Payload:      payload,
	}
}

func TestHandleLifecycleEvent_Accept(t *testing.T) {
	cat := &fakeCatalog{restaurants: map[uint64]*catalog.Restaurant{
		20: {ID: 20, Name: "Pied Piper Pizza", IsActive: true, MinOrderAmount: "10"},
	}}
	svc, db := newTestRestaurantService(t, cat)
	ctx := context.Background()

	o := seedPlacedOrder(t, db, 1, 20, 30)
	assert.NoError(t, svc.HandleLifecycleEvent(ctx, placedEnvelope(o, "evt-1")))

	var final model.Order
	assert.NoError(t, db.First(&final, o.ID).Error)
	assert.Equal(t, lifecycle.StateAccepted, final.State)
	assert.Equal(t, uint64(2), final.Version)

	var ticket model.RestaurantTicket
	assert.NoError(t, db.Where("order_id = ?", o.ID).First(&ticket).Error)
	assert.Equal(t, model.TicketAccepted, ticket.Status)

	var out model.OutboxEvent
	assert.NoError(t, db.Where("order_id = ? AND order_version = ?", o.ID, 2).First(&out).Error)
	assert.Equal(t, lifecycle.EventOrderAccepted, out.EventType)

	var rec model.ProcessedEvent
	assert.NoError(t, db.Where("event_id = ? AND consumer_name = ?", "evt-1", RestaurantConsumerName).First(&rec).Error)
}

func TestHandleLifecycleEvent_Duplicate(t *testing.T) {
	cat := &fakeCatalog{restaurants: map[uint64]*catalog.Restaurant{
		20: {ID: 20, IsActive: true, MinOrderAmount: "10"},
	}}
	svc, db := newTestRestaurantService(t, cat)
	ctx := context.Background()

	o := seedPlacedOrder(t, db, 1, 20, 30)
	env := placedEnvelope(o, "evt-1")
	assert.NoError(t, svc.HandleLifecycleEvent(ctx, env))
	// redelivery of the same event id must not decide again
	assert.NoError(t, svc.HandleLifecycleEvent(ctx, env))

	var tickets []model.RestaurantTicket
	assert.NoError(t, db.Find(&tickets).Error)
	assert.Len(t, tickets, 1)

	var final model.Order
	assert.NoError(t, db.First(&final, o.ID).Error)
	assert.Equal(t, uint64(2), final.Version)
}

func TestHandleLifecycleEvent_OutOfOrder(t *testing.T) {
	svc, db := newTestRestaurantService(t, &fakeCatalog{})
	ctx := context.Background()

	o := seedPlacedOrder(t, db, 1, 20, 30)
	env := placedEnvelope(o, "evt-ahead")
	env.OrderVersion = 5 // event from a future the store has not seen

	err := svc.HandleLifecycleEvent(ctx, env)
	assert.ErrorIs(t, err, ErrOutOfOrder)
	assert.True(t, IsTransient(err))

	var count int64
	db.Model(&model.ProcessedEvent{}).Count(&count)
	assert.Zero(t, count, "deferred event must stay unrecorded")
}

func TestHandleLifecycleEvent_RejectInactive(t *testing.T) {
	cat := &fakeCatalog{restaurants: map[uint64]*catalog.Restaurant{
		20: {ID: 20, IsActive: false, MinOrderAmount: "10"},
	}}
	svc, db := newTestRestaurantService(t, cat)
	ctx := context.Background()

	o := seedPlacedOrder(t, db, 1, 20, 30)
	assert.NoError(t, svc.HandleLifecycleEvent(ctx, placedEnvelope(o, "evt-1")))

	var final model.Order
	assert.NoError(t, db.First(&final, o.ID).Error)
	assert.Equal(t, lifecycle.StateRejected, final.State)

	var ticket model.RestaurantTicket
	assert.NoError(t, db.Where("order_id = ?", o.ID).First(&ticket).Error)
	assert.Equal(t, model.TicketRejected, ticket.Status)
	assert.Equal(t, "restaurant inactive", ticket.Reason)

	var out model.OutboxEvent
	assert.NoError(t, db.Where("order_id = ? AND order_version = ?", o.ID, 2).First(&out).Error)
	assert.Equal(t, lifecycle.EventOrderRejected, out.EventType)
}

func TestHandleLifecycleEvent_RejectUnknownRestaurant(t *testing.T) {
	svc, db := newTestRestaurantService(t, &fakeCatalog{})
	ctx := context.Background()

	o := seedPlacedOrder(t, db, 1, 99, 30)
	assert.NoError(t, svc.HandleLifecycleEvent(ctx, placedEnvelope(o, "evt-1")))

	var ticket model.RestaurantTicket
	assert.NoError(t, db.Where("order_id = ?", o.ID).First(&ticket).Error)
	assert.Equal(t, model.TicketRejected, ticket.Status)
	assert.Equal(t, "unknown restaurant", ticket.Reason)
}

func TestHandleLifecycleEvent_RejectBelowMinimum(t *testing.T) {
	cat := &fakeCatalog{restaurants: map[uint64]*catalog.Restaurant{
		20: {ID: 20, IsActive: true, MinOrderAmount: "50"},
	}}
	svc, db := newTestRestaurantService(t, cat)
	ctx := context.Background()

	o := seedPlacedOrder(t, db, 1, 20, 30)
	assert.NoError(t, svc.HandleLifecycleEvent(ctx, placedEnvelope(o, "evt-1")))

	var ticket model.RestaurantTicket
	assert.NoError(t, db.Where("order_id = ?", o.ID).First(&ticket).Error)
	assert.Equal(t, model.TicketRejected, ticket.Status)
	assert.Contains(t, ticket.Reason, "below minimum")
}

func TestHandleLifecycleEvent_CatalogUnavailable(t *testing.T) {
	svc, db := newTestRestaurantService(t, &fakeCatalog{err: catalog.ErrUnavailable})
	ctx := context.Background()

	o := seedPlacedOrder(t, db, 1, 20, 30)
	err := svc.HandleLifecycleEvent(ctx, placedEnvelope(o, "evt-1"))
	assert.ErrorIs(t, err, catalog.ErrUnavailable)
	assert.True(t, IsTransient(err))

	// nothing committed; the retry starts clean
	var count int64
	db.Model(&model.RestaurantTicket{}).Count(&count)
	assert.Zero(t, count)
	db.Model(&model.ProcessedEvent{}).Count(&count)
	assert.Zero(t, count)
}

func TestHandleLifecycleEvent_Cancelled(t *testing.T) {
	cat := &fakeCatalog{restaurants: map[uint64]*catalog.Restaurant{
		20: {ID: 20, IsActive: true, MinOrderAmount: "10"},
	}}
	svc, db := newTestRestaurantService(t, cat)
	ctx := context.Background()

	o := seedPlacedOrder(t, db, 1, 20, 30)
	assert.NoError(t, svc.HandleLifecycleEvent(ctx, placedEnvelope(o, "evt-1")))

	// customer cancels after acceptance
	assert.NoError(t, db.Model(&model.Order{}).Where("id = ?", o.ID).
		Updates(map[string]interface{}{"state": lifecycle.StateCancelled, "version": 3}).Error)

	cancel := event.Envelope{
		EventID:      "evt-2",
		OrderID:      o.ID,
		OrderVersion: 3,
		EventType:    lifecycle.EventOrderCancelled,
		Payload:      json.RawMessage(`{}`),
	}
	assert.NoError(t, svc.HandleLifecycleEvent(ctx, cancel))

	var ticket model.RestaurantTicket
	assert.NoError(t, db.Where("order_id = ?", o.ID).First(&ticket).Error)
	assert.Equal(t, model.TicketCancelled, ticket.Status)
}

func TestHandleLifecycleEvent_CancelledBeforeDecision(t *testing.T) {
	svc, db := newTestRestaurantService(t, &fakeCatalog{})
	ctx := context.Background()

	o := seedPlacedOrder(t, db, 1, 20, 30)
	assert.NoError(t, db.Model(&model.Order{}).Where("id = ?", o.ID).
		Updates(map[string]interface{}{"state": lifecycle.StateCancelled, "version": 2}).Error)

	cancel := event.Envelope{
		EventID:      "evt-1",
		OrderID:      o.ID,
		OrderVersion: 2,
		EventType:    lifecycle.EventOrderCancelled,
		Payload:      json.RawMessage(`{}`),
	}
	assert.NoError(t, svc.HandleLifecycleEvent(ctx, cancel))

	// no ticket ever existed; only the ledger entry lands
	var count int64
	db.Model(&model.RestaurantTicket{}).Count(&count)
	assert.Zero(t, count)
	db.Model(&model.ProcessedEvent{}).Count(&count)
	assert.Equal(t, int64(1), count)
}

func TestHandleLifecycleEvent_ProgressEventsRecordOnly(t *testing.T) {
	svc, db := newTestRestaurantService(t, &fakeCatalog{})
	ctx := context.Background()

	o := seedPlacedOrder(t, db, 1, 20, 30)
	env := placedEnvelope(o, "evt-progress")
	env.EventType = lifecycle.EventOrderStateChanged

	assert.NoError(t, svc.HandleLifecycleEvent(ctx, env))

	var count int64
	db.Model(&model.RestaurantTicket{}).Count(&count)
	assert.Zero(t, count)
	db.Model(&model.ProcessedEvent{}).Count(&count)
	assert.Equal(t, int64(1), count)
}
