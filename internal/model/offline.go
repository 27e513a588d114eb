package model

import "time"

// OfflineOrder is an order created while the cloud was unreachable.
type OfflineOrder struct {
	LocalID         string       `gorm:"primaryKey;size:64" json:"local_id"`
	RestaurantID    string       `gorm:"index;size:64;not null" json:"restaurant_id"`
	CreatedByUserID string       `gorm:"size:64" json:"created_by_user_id"`
	CreatedAt       time.Time    `gorm:"not null;index" json:"created_at"`
	UpdatedAt       time.Time    `json:"updated_at"`
	Status          OrderStatus  `gorm:"size:16;not null" json:"status"`
	Payload         OrderRequest `gorm:"serializer:json;not null" json:"payload"`
	Payment         *Payment     `gorm:"serializer:json" json:"payment"`
}

// Summary projects the offline order into the cloud list shape.
func (o OfflineOrder) Summary() OrderSummary {
	return OrderSummary{
		ID:           o.LocalID,
		LocalID:      o.LocalID,
		RestaurantID: o.RestaurantID,
		Status:       o.Status,
		OrderType:    o.Payload.OrderType,
		Total:        o.Payload.Total,
		ItemCount:    o.Payload.ItemCount(),
		CreatedAt:    o.CreatedAt,
		Offline:      true,
	}
}

// SyncRecord maps a local order id to the cloud order it became.
type SyncRecord struct {
	LocalID            string     `gorm:"primaryKey;size:64"`
	CloudOrderID       string     `gorm:"size:64;not null;index"`
	SyncedAt           time.Time  `gorm:"not null"`
	PaidPushedAt       *time.Time
	InventoryAppliedAt *time.Time
}
