package repo

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/Palaxis/MTUCI-EDA/internal/lifecycle"
	"github.com/Palaxis/MTUCI-EDA/internal/model"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// ErrVersionConflict is returned when a compare-and-swap update finds the
// stored version differs from the expected one. Callers re-read and retry.
var ErrVersionConflict = errors.New("order version conflict")

// ErrOrderNotFound is returned when no order row exists for the id.
var ErrOrderNotFound = errors.New("order not found")

const stateCacheTTL = 5 * time.Minute

// RepositoryInterface restricts Repo methods (unit-test mocks).
type RepositoryInterface interface {
	DB(ctx context.Context) *gorm.DB
	GetOrder(ctx context.Context, tx *gorm.DB, orderID uint64) (*model.Order, error)
	CreateOrder(ctx context.Context, tx *gorm.DB, o *model.Order) error
	UpdateOrderState(ctx context.Context, tx *gorm.DB, orderID uint64, next lifecycle.State, oldVersion uint64) error
	CreateOutboxEvent(ctx context.Context, tx *gorm.DB, evt *model.OutboxEvent) error
	PollOutbox(ctx context.Context, limit int) ([]model.OutboxEvent, error)
	MarkOutboxPublished(ctx context.Context, id uint64) error
	CountStuckOutbox(ctx context.Context, olderThan time.Duration) (int64, error)
	EventProcessed(ctx context.Context, tx *gorm.DB, eventID, consumer string) (bool, error)
	RecordProcessedEvent(ctx context.Context, tx *gorm.DB, rec *model.ProcessedEvent) error
	GetTicket(ctx context.Context, tx *gorm.DB, orderID uint64) (*model.RestaurantTicket, error)
	CreateTicket(ctx context.Context, tx *gorm.DB, t *model.RestaurantTicket) error
	UpdateTicketStatus(ctx context.Context, tx *gorm.DB, orderID uint64, status, reason string) error
	CreateNotification(ctx context.Context, tx *gorm.DB, n *model.Notification) error
	CacheOrderState(ctx context.Context, orderID uint64, state lifecycle.State, version uint64) error
	GetCachedOrderState(ctx context.Context, orderID uint64) (lifecycle.State, uint64, error)
}

// Repository implements RepositoryInterface.
type Repository struct {
	db  *gorm.DB
	rdb *redis.Client
	log *zap.SugaredLogger
}

// NewRepository constructs repo.
func NewRepository(db *gorm.DB, rdb *redis.Client, logger *zap.SugaredLogger) *Repository {
	return &Repository{db: db, rdb: rdb, log: logger}
}

// DB returns underlying *gorm.DB
func (r *Repository) DB(ctx context.Context) *gorm.DB { return r.db.WithContext(ctx) }

// GetOrder reads one order row.
func (r *Repository) GetOrder(ctx context.Context, tx *gorm.DB, orderID uint64) (*model.Order, error) {
	var o model.Order
	if err := tx.WithContext(ctx).Where("id = ?", orderID).First(&o).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrOrderNotFound
		}
		return nil, err
	}
	return &o, nil
}

// CreateOrder inserts a new order row.
func (r *Repository) CreateOrder(ctx context.Context, tx *gorm.DB, o *model.Order) error {
	return tx.WithContext(ctx).Create(o).Error
}

// UpdateOrderState moves the order to next with an optimistic version check.
// RowsAffected == 0 means another writer committed from oldVersion first.
func (r *Repository) UpdateOrderState(ctx context.Context, tx *gorm.DB, orderID uint64, next lifecycle.State, oldVersion uint64) error {
	res := tx.WithContext(ctx).
		Model(&model.Order{}).
		Where("id = ? AND version = ?", orderID, oldVersion).
		Updates(map[string]interface{}{
			"state":      next,
			"version":    oldVersion + 1,
			"updated_at": time.Now(),
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrVersionConflict
	}
	return nil
}

// CreateOutboxEvent writes event in the caller's transaction.
func (r *Repository) CreateOutboxEvent(ctx context.Context, tx *gorm.DB, evt *model.OutboxEvent) error {
	return tx.WithContext(ctx).Create(evt).Error
}

// PollOutbox pulls unpublished events ordered by (order_id, order_version) so a
// partitioned stream keeps per-order ordering.
func (r *Repository) PollOutbox(ctx context.Context, limit int) ([]model.OutboxEvent, error) {
	var evts []model.OutboxEvent
	err := r.db.WithContext(ctx).
		Where("published = false").
		Order("order_id, order_version").
		Limit(limit).
		Find(&evts).Error
	return evts, err
}

// MarkOutboxPublished flips the published flag. Idempotent: re-marking an
// already published row is a no-op.
func (r *Repository) MarkOutboxPublished(ctx context.Context, id uint64) error {
	now := time.Now()
	return r.db.WithContext(ctx).Model(&model.OutboxEvent{}).Where("id = ?", id).
		Updates(map[string]interface{}{"published": true, "published_at": &now}).Error
}

// CountStuckOutbox counts unpublished rows older than the threshold; nonzero is
// an operational alert, not a silent drop.
func (r *Repository) CountStuckOutbox(ctx context.Context, olderThan time.Duration) (int64, error) {
	var n int64
	err := r.db.WithContext(ctx).Model(&model.OutboxEvent{}).
		Where("published = false AND created_at < ?", time.Now().Add(-olderThan)).
		Count(&n).Error
	return n, err
}

// EventProcessed checks the dedup ledger.
func (r *Repository) EventProcessed(ctx context.Context, tx *gorm.DB, eventID, consumer string) (bool, error) {
	var rec model.ProcessedEvent
	err := tx.WithContext(ctx).
		Where("event_id = ? AND consumer_name = ?", eventID, consumer).
		First(&rec).Error
	if err == nil {
		return true, nil
	}
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return false, nil
	}
	return false, err
}

// RecordProcessedEvent inserts the ledger row. The composite primary key makes
// a concurrent double-insert fail, which callers treat as a duplicate.
func (r *Repository) RecordProcessedEvent(ctx context.Context, tx *gorm.DB, rec *model.ProcessedEvent) error {
	return tx.WithContext(ctx).Create(rec).Error
}

// IsDuplicateKey reports whether err is a unique/primary key violation.
func IsDuplicateKey(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "UNIQUE constraint") || strings.Contains(msg, "duplicate key")
}

// GetTicket reads the restaurant's local projection for an order.
func (r *Repository) GetTicket(ctx context.Context, tx *gorm.DB, orderID uint64) (*model.RestaurantTicket, error) {
	var t model.RestaurantTicket
	err := tx.WithContext(ctx).Where("order_id = ?", orderID).First(&t).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &t, nil
}

// CreateTicket inserts the restaurant decision row.
func (r *Repository) CreateTicket(ctx context.Context, tx *gorm.DB, t *model.RestaurantTicket) error {
	return tx.WithContext(ctx).Create(t).Error
}

// UpdateTicketStatus updates the local decision row.
func (r *Repository) UpdateTicketStatus(ctx context.Context, tx *gorm.DB, orderID uint64, status, reason string) error {
	return tx.WithContext(ctx).Model(&model.RestaurantTicket{}).
		Where("order_id = ?", orderID).
		Updates(map[string]interface{}{"status": status, "reason": reason, "updated_at": time.Now()}).Error
}

// CreateNotification inserts an audit row.
func (r *Repository) CreateNotification(ctx context.Context, tx *gorm.DB, n *model.Notification) error {
	return tx.WithContext(ctx).Create(n).Error
}

// CacheOrderState writes the state:version pair to Redis.
func (r *Repository) CacheOrderState(ctx context.Context, orderID uint64, state lifecycle.State, version uint64) error {
	if r.rdb == nil {
		return nil
	}
	val := fmt.Sprintf("%s:%d", state, version)
	return r.rdb.Set(ctx, fmt.Sprintf("order_state:%d", orderID), val, stateCacheTTL).Err()
}

// GetCachedOrderState reads the state:version pair from Redis.
func (r *Repository) GetCachedOrderState(ctx context.Context, orderID uint64) (lifecycle.State, uint64, error) {
	if r.rdb == nil {
		return "", 0, redis.Nil
	}
	str, err := r.rdb.Get(ctx, fmt.Sprintf("order_state:%d", orderID)).Result()
	if err != nil {
		return "", 0, err
	}
	i := strings.LastIndex(str, ":")
	if i <= 0 {
		return "", 0, fmt.Errorf("malformed cached state %q", str)
	}
	version, err := strconv.ParseUint(str[i+1:], 10, 64)
	if err != nil {
		return "", 0, fmt.Errorf("malformed cached state %q: %w", str, err)
	}
	return lifecycle.State(str[:i]), version, nil
}
