package reconcile

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"pos-edge/internal/cloud"
	"pos-edge/internal/model"
	"pos-edge/internal/offline"
)

// Submitter creates and settles orders for a POS terminal, diverting to the
// offline cache when the cloud cannot be reached.
type Submitter struct {
	orders CloudOrders
	cache  OrderCache
	userID string
	now    func() time.Time
}

// NewSubmitter builds a submitter acting as userID.
func NewSubmitter(orders CloudOrders, cache OrderCache, userID string) *Submitter {
	return &Submitter{orders: orders, cache: cache, userID: userID, now: time.Now}
}

// CreateOrder validates req and creates it in the cloud. Only network-shaped
// failures fall back to the offline cache; a rejection by the cloud is
// returned as is. The local id is minted before the first attempt, so an
// order the cloud committed but never acknowledged is adopted by the next
// sync instead of created twice.
func (s *Submitter) CreateOrder(ctx context.Context, req model.OrderRequest) (*model.OrderSummary, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	localID := offline.NewLocalID()
	created, err := s.orders.CreateOrder(ctx, req, localID)
	if err == nil {
		return created, nil
	}
	if !cloud.IsNetworkError(err) && !errors.Is(err, cloud.ErrNoBaseURL) {
		return nil, err
	}

	log.Warn().Err(err).Str("local_id", localID).Float64("total", req.Total).Msg("cloud unreachable, storing order offline")
	o, cerr := s.cache.Upsert(ctx, offline.UpsertInput{
		LocalID:         localID,
		Payload:         req,
		Status:          model.OrderStatusOpen,
		CreatedByUserID: s.userID,
	})
	if cerr != nil {
		return nil, fmt.Errorf("failed to store order offline after %v: %w", err, cerr)
	}
	summary := o.Summary()
	return &summary, nil
}

// PayOrder settles an order. Offline orders are settled locally and pushed by
// the next sync.
func (s *Submitter) PayOrder(ctx context.Context, orderID string, p model.Payment) error {
	if p.PaidAt.IsZero() {
		p.PaidAt = s.now().UTC()
	}
	if !strings.HasPrefix(orderID, offline.LocalIDPrefix) {
		return s.orders.MarkOrderPaid(ctx, orderID, p)
	}

	o, err := s.cache.Get(ctx, orderID)
	if err != nil {
		return err
	}
	if o.Status == model.OrderStatusCanceled {
		return fmt.Errorf("order %s is canceled", orderID)
	}
	_, err = s.cache.Upsert(ctx, offline.UpsertInput{
		LocalID: o.LocalID,
		Payload: o.Payload,
		Status:  model.OrderStatusPaid,
		Payment: &p,
	})
	return err
}

// CancelOrder marks an offline order canceled; it is then never synced.
func (s *Submitter) CancelOrder(ctx context.Context, localID string) error {
	o, err := s.cache.Get(ctx, localID)
	if err != nil {
		return err
	}
	_, err = s.cache.Upsert(ctx, offline.UpsertInput{
		LocalID: o.LocalID,
		Payload: o.Payload,
		Status:  model.OrderStatusCanceled,
	})
	return err
}
