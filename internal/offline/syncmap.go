package offline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"pos-edge/internal/model"
)

// MarkSynced records that localID now exists in the cloud as cloudOrderID.
// Progress timestamps of an existing record are kept.
func (c *Cache) MarkSynced(ctx context.Context, localID, cloudOrderID string) error {
	rec := model.SyncRecord{LocalID: localID, CloudOrderID: cloudOrderID, SyncedAt: c.now()}
	err := c.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "local_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"cloud_order_id", "synced_at"}),
	}).Create(&rec).Error
	if err != nil {
		return fmt.Errorf("failed to record sync of %s: %w", localID, err)
	}
	return nil
}

// SyncRecord returns the sync map entry for localID, or nil when the order
// has never been pushed.
func (c *Cache) SyncRecord(ctx context.Context, localID string) (*model.SyncRecord, error) {
	var rec model.SyncRecord
	err := c.db.WithContext(ctx).Where("local_id = ?", localID).First(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load sync record %s: %w", localID, err)
	}
	return &rec, nil
}

// SyncedCloudOrderID returns the cloud id recorded for localID, or "".
func (c *Cache) SyncedCloudOrderID(ctx context.Context, localID string) (string, error) {
	rec, err := c.SyncRecord(ctx, localID)
	if err != nil || rec == nil {
		return "", err
	}
	return rec.CloudOrderID, nil
}

// MarkPaidPushed stamps the moment the payment reached the cloud.
func (c *Cache) MarkPaidPushed(ctx context.Context, localID string, at time.Time) error {
	return c.stamp(ctx, localID, "paid_pushed_at", at)
}

// MarkInventoryApplied stamps the moment the stock decrement was applied.
func (c *Cache) MarkInventoryApplied(ctx context.Context, localID string, at time.Time) error {
	return c.stamp(ctx, localID, "inventory_applied_at", at)
}

func (c *Cache) stamp(ctx context.Context, localID, column string, at time.Time) error {
	res := c.db.WithContext(ctx).Model(&model.SyncRecord{}).Where("local_id = ?", localID).Update(column, at)
	if res.Error != nil {
		return fmt.Errorf("failed to update %s of %s: %w", column, localID, res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}
