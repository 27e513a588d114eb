// Package reconcile replays offline orders against the cloud once it is
// reachable again, and routes new orders to the offline cache while it is not.
package reconcile

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"pos-edge/internal/model"
	"pos-edge/internal/offline"
)

// ErrSyncInProgress is returned when a sync is requested while one runs.
var ErrSyncInProgress = errors.New("sync already in progress")

// CloudOrders is the slice of the cloud order API the reconciler drives.
type CloudOrders interface {
	CreateOrder(ctx context.Context, req model.OrderRequest, localID string) (*model.OrderSummary, error)
	FindOrderByLocalID(ctx context.Context, localID string) (*model.OrderSummary, error)
	MarkOrderPaid(ctx context.Context, orderID string, p model.Payment) error
}

// Inventory applies the stock effects of a paid order.
type Inventory interface {
	ApplySale(ctx context.Context, orderID string, items []model.OrderItem) error
}

// GatewayNotifier tells the edge gateway an offline order reached the cloud.
type GatewayNotifier interface {
	NotifySynced(ctx context.Context, localID, cloudOrderID string) error
}

// OrderCache is the offline order store plus its sync map.
type OrderCache interface {
	Upsert(ctx context.Context, in offline.UpsertInput) (*model.OfflineOrder, error)
	Get(ctx context.Context, localID string) (*model.OfflineOrder, error)
	List(ctx context.Context) ([]model.OfflineOrder, error)
	Remove(ctx context.Context, localID string) error
	MarkSynced(ctx context.Context, localID, cloudOrderID string) error
	SyncRecord(ctx context.Context, localID string) (*model.SyncRecord, error)
	MarkPaidPushed(ctx context.Context, localID string, at time.Time) error
	MarkInventoryApplied(ctx context.Context, localID string, at time.Time) error
}

// SyncedOrder pairs a local id with the cloud order it became.
type SyncedOrder struct {
	LocalID      string `json:"local_id"`
	CloudOrderID string `json:"cloud_order_id"`
	Adopted      bool   `json:"adopted"`
}

// Report summarises one reconciler run.
type Report struct {
	Synced  []SyncedOrder `json:"synced"`
	Skipped int           `json:"skipped"`
}

// Reconciler pushes queued offline orders to the cloud, one at a time and
// oldest first.
type Reconciler struct {
	cache     OrderCache
	orders    CloudOrders
	inventory Inventory
	notifier  GatewayNotifier
	now       func() time.Time

	mu sync.Mutex
}

// NewReconciler builds a reconciler. inventory and notifier may be nil.
func NewReconciler(cache OrderCache, orders CloudOrders, inventory Inventory, notifier GatewayNotifier) *Reconciler {
	return &Reconciler{
		cache:     cache,
		orders:    orders,
		inventory: inventory,
		notifier:  notifier,
		now:       time.Now,
	}
}

// Pending counts the cached orders a run would sync.
func (r *Reconciler) Pending(ctx context.Context) (int, error) {
	orders, err := r.cache.List(ctx)
	if err != nil {
		return 0, err
	}
	n := 0
	for _, o := range orders {
		if syncable(o.Status) {
			n++
		}
	}
	return n, nil
}

func syncable(s model.OrderStatus) bool {
	return s == model.OrderStatusOpen || s == model.OrderStatusPaid
}

// Run syncs every open or paid order. The first failure aborts the batch;
// orders already processed stay synced and a later run resumes safely.
func (r *Reconciler) Run(ctx context.Context) (Report, error) {
	if !r.mu.TryLock() {
		return Report{}, ErrSyncInProgress
	}
	defer r.mu.Unlock()

	var report Report
	orders, err := r.cache.List(ctx)
	if err != nil {
		return report, err
	}
	if len(orders) == 0 {
		return report, nil
	}

	log.Info().Int("count", len(orders)).Msg("syncing offline orders")
	for _, o := range orders {
		if !syncable(o.Status) {
			report.Skipped++
			continue
		}
		synced, err := r.syncOrder(ctx, o)
		if err != nil {
			log.Error().Err(err).Str("local_id", o.LocalID).Int("synced", len(report.Synced)).Msg("offline sync aborted")
			return report, fmt.Errorf("sync of %s failed: %w", o.LocalID, err)
		}
		report.Synced = append(report.Synced, synced)
	}

	log.Info().Int("synced", len(report.Synced)).Int("skipped", report.Skipped).Msg("offline sync finished")
	return report, nil
}

func (r *Reconciler) syncOrder(ctx context.Context, o model.OfflineOrder) (SyncedOrder, error) {
	out := SyncedOrder{LocalID: o.LocalID}

	rec, err := r.cache.SyncRecord(ctx, o.LocalID)
	if err != nil {
		return out, err
	}
	if rec != nil {
		out.CloudOrderID = rec.CloudOrderID
	} else {
		existing, err := r.orders.FindOrderByLocalID(ctx, o.LocalID)
		if err != nil {
			return out, fmt.Errorf("lookup by local id: %w", err)
		}
		if existing != nil {
			out.CloudOrderID = existing.ID
			out.Adopted = true
		} else {
			created, err := r.orders.CreateOrder(ctx, o.Payload, o.LocalID)
			if err != nil {
				return out, fmt.Errorf("create cloud order: %w", err)
			}
			out.CloudOrderID = created.ID
		}
		if err := r.cache.MarkSynced(ctx, o.LocalID, out.CloudOrderID); err != nil {
			return out, err
		}
		rec = &model.SyncRecord{LocalID: o.LocalID, CloudOrderID: out.CloudOrderID}
	}

	if o.Status == model.OrderStatusPaid {
		if err := r.settle(ctx, o, rec); err != nil {
			return out, err
		}
	}

	if r.notifier != nil {
		if err := r.notifier.NotifySynced(ctx, o.LocalID, out.CloudOrderID); err != nil {
			log.Warn().Err(err).Str("local_id", o.LocalID).Msg("failed to notify gateway of synced order")
		}
	}

	if err := r.cache.Remove(ctx, o.LocalID); err != nil {
		return out, err
	}
	log.Debug().Str("local_id", o.LocalID).Str("cloud_order_id", out.CloudOrderID).Bool("adopted", out.Adopted).Msg("offline order synced")
	return out, nil
}

// settle pushes the payment and applies inventory, each at most once per
// local order.
func (r *Reconciler) settle(ctx context.Context, o model.OfflineOrder, rec *model.SyncRecord) error {
	if rec.PaidPushedAt == nil {
		p := model.Payment{Method: "unknown", PaidAt: o.UpdatedAt}
		if o.Payment != nil {
			p = *o.Payment
		}
		if err := r.orders.MarkOrderPaid(ctx, rec.CloudOrderID, p); err != nil {
			return fmt.Errorf("mark cloud order paid: %w", err)
		}
		if err := r.cache.MarkPaidPushed(ctx, o.LocalID, r.now()); err != nil {
			return err
		}
	}

	if r.inventory != nil && rec.InventoryAppliedAt == nil {
		if err := r.inventory.ApplySale(ctx, rec.CloudOrderID, o.Payload.Items); err != nil {
			return fmt.Errorf("apply inventory: %w", err)
		}
		if err := r.cache.MarkInventoryApplied(ctx, o.LocalID, r.now()); err != nil {
			return err
		}
	}
	return nil
}
