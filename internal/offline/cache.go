// Package offline keeps orders created while the cloud is unreachable, plus
// the sync map that records which local orders already exist in the cloud.
package offline

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"

	"pos-edge/internal/db"
	"pos-edge/internal/model"
)

// ErrNotFound is returned for an unknown local id.
var ErrNotFound = errors.New("offline order not found")

// LocalIDPrefix marks ids minted on the client.
const LocalIDPrefix = "local-"

// Models lists the tables owned by the cache.
func Models() []any {
	return []any{&model.OfflineOrder{}, &model.SyncRecord{}}
}

// Cache is the gorm backed offline order store.
type Cache struct {
	db  *gorm.DB
	now func() time.Time
}

// NewCache wraps an already migrated database.
func NewCache(gdb *gorm.DB) *Cache {
	return &Cache{db: gdb, now: time.Now}
}

// Open connects to dsn (a sqlite path or a postgres URL) and migrates the
// cache tables.
func Open(dsn string) (*Cache, error) {
	gdb, err := db.Open(dsn, db.Options{}, Models()...)
	if err != nil {
		return nil, err
	}
	return NewCache(gdb), nil
}

// Close releases the database.
func (c *Cache) Close() error {
	return db.Close(c.db)
}

// UpsertInput describes an order to store. Zero fields are filled in: a
// missing LocalID is generated, and on replace a missing Status, Payment or
// CreatedAt carries the stored value forward.
type UpsertInput struct {
	LocalID         string
	Payload         model.OrderRequest
	Status          model.OrderStatus
	Payment         *model.Payment
	CreatedByUserID string
	CreatedAt       time.Time
}

// NewLocalID mints a fresh client-side order id.
func NewLocalID() string {
	return LocalIDPrefix + uuid.NewString()
}

// Upsert inserts or replaces an offline order.
func (c *Cache) Upsert(ctx context.Context, in UpsertInput) (*model.OfflineOrder, error) {
	if in.Status != "" && !in.Status.Valid() {
		return nil, fmt.Errorf("invalid order status %q", in.Status)
	}
	localID := strings.TrimSpace(in.LocalID)
	if localID == "" {
		localID = NewLocalID()
	}

	var out model.OfflineOrder
	err := c.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var existing model.OfflineOrder
		err := tx.Where("local_id = ?", localID).First(&existing).Error
		switch {
		case errors.Is(err, gorm.ErrRecordNotFound):
			out = model.OfflineOrder{
				LocalID:         localID,
				RestaurantID:    in.Payload.RestaurantID,
				CreatedByUserID: in.CreatedByUserID,
				CreatedAt:       in.CreatedAt,
				Status:          in.Status,
				Payload:         in.Payload,
				Payment:         in.Payment,
			}
			if out.CreatedAt.IsZero() {
				out.CreatedAt = c.now()
			}
			if out.Status == "" {
				out.Status = model.OrderStatusOpen
			}
			return tx.Create(&out).Error
		case err != nil:
			return err
		}

		out = existing
		out.Payload = in.Payload
		out.RestaurantID = in.Payload.RestaurantID
		if in.CreatedByUserID != "" {
			out.CreatedByUserID = in.CreatedByUserID
		}
		if in.Status != "" {
			out.Status = in.Status
		}
		if in.Payment != nil {
			out.Payment = in.Payment
		}
		return tx.Save(&out).Error
	})
	if err != nil {
		return nil, fmt.Errorf("failed to upsert offline order %s: %w", localID, err)
	}

	log.Debug().Str("local_id", localID).Str("status", string(out.Status)).Msg("offline order stored")
	return &out, nil
}

// Remove deletes an order. Removing an unknown id is not an error.
func (c *Cache) Remove(ctx context.Context, localID string) error {
	err := c.db.WithContext(ctx).Where("local_id = ?", localID).Delete(&model.OfflineOrder{}).Error
	if err != nil {
		return fmt.Errorf("failed to remove offline order %s: %w", localID, err)
	}
	return nil
}

// Get returns one order or ErrNotFound.
func (c *Cache) Get(ctx context.Context, localID string) (*model.OfflineOrder, error) {
	var o model.OfflineOrder
	err := c.db.WithContext(ctx).Where("local_id = ?", localID).First(&o).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load offline order %s: %w", localID, err)
	}
	return &o, nil
}

// List returns every cached order, oldest first.
func (c *Cache) List(ctx context.Context) ([]model.OfflineOrder, error) {
	var orders []model.OfflineOrder
	if err := c.db.WithContext(ctx).Order("created_at asc, local_id asc").Find(&orders).Error; err != nil {
		return nil, fmt.Errorf("failed to list offline orders: %w", err)
	}
	return orders, nil
}

// ListSummaries projects the cache into the cloud order list shape.
func (c *Cache) ListSummaries(ctx context.Context) ([]model.OrderSummary, error) {
	orders, err := c.List(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]model.OrderSummary, 0, len(orders))
	for _, o := range orders {
		out = append(out, o.Summary())
	}
	return out, nil
}
