// Package edgesync forwards the gateway outbox to the cloud ingestion endpoint.
package edgesync

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"pos-edge/internal/cloud"
	"pos-edge/internal/metrics"
	"pos-edge/internal/model"
	"pos-edge/internal/store"
)

// MaxBatch is the most events sent in one push.
const MaxBatch = 500

// EventPusher delivers a batch of events to the cloud.
type EventPusher interface {
	PushEvents(ctx context.Context, baseURL, gatewayID, secret string, events []model.OutboxEvent) (*cloud.PushResult, error)
}

// Result describes one push.
type Result struct {
	Sent      int `json:"sent"`
	Accepted  int `json:"accepted"`
	Duplicate int `json:"duplicate"`
	Dropped   int `json:"dropped"`
	Remaining int `json:"remaining"`
}

// Pusher drains the outbox front to back.
type Pusher struct {
	store     store.Store
	cloud     EventPusher
	override  string
	batchSize int

	// mu keeps the loop and the HTTP trigger from acknowledging the same
	// prefix twice.
	mu sync.Mutex
}

// NewPusher builds a pusher. override, when set, replaces the cloud URL stored
// at pairing time.
func NewPusher(st store.Store, c EventPusher, override string, batchSize int) *Pusher {
	if batchSize <= 0 || batchSize > MaxBatch {
		batchSize = MaxBatch
	}
	return &Pusher{store: st, cloud: c, override: override, batchSize: batchSize}
}

// BaseURL resolves the cloud URL in effect for cfg.
func (p *Pusher) BaseURL(cfg *model.GatewayConfig) string {
	stored := ""
	if cfg != nil {
		stored = cfg.CloudBaseURL
	}
	return cloud.ResolveBaseURL(p.override, stored)
}

// PushOnce sends up to one batch and drops accepted+duplicate events from the
// front of the outbox. Duplicates count as acknowledged.
func (p *Pusher) PushOnce(ctx context.Context) (Result, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	var res Result
	cfg := p.store.ReadConfig()
	if !cfg.Bound() {
		return res, store.ErrNotPaired
	}
	baseURL := p.BaseURL(cfg)
	if baseURL == "" {
		return res, cloud.ErrNoBaseURL
	}

	events, err := p.store.ReadOutboxEvents(p.batchSize)
	if err != nil {
		return res, err
	}
	if len(events) == 0 {
		return res, nil
	}
	res.Sent = len(events)

	ack, err := p.cloud.PushEvents(ctx, baseURL, cfg.GatewayID, cfg.Secret, events)
	if err != nil {
		metrics.OutboxEventsPushed.WithLabelValues("error").Add(float64(len(events)))
		return res, err
	}
	res.Accepted = ack.Accepted
	res.Duplicate = ack.Duplicate
	res.Dropped = min(max(ack.Accepted+ack.Duplicate, 0), len(events))

	if err := p.store.DropOutboxEvents(res.Dropped); err != nil {
		return res, err
	}
	metrics.OutboxEventsPushed.WithLabelValues("accepted").Add(float64(ack.Accepted))
	metrics.OutboxEventsPushed.WithLabelValues("duplicate").Add(float64(ack.Duplicate))

	if res.Remaining, err = p.store.OutboxLen(); err != nil {
		log.Warn().Err(err).Msg("could not count remaining outbox events")
	}
	log.Info().
		Int("sent", res.Sent).
		Int("accepted", res.Accepted).
		Int("duplicate", res.Duplicate).
		Int("remaining", res.Remaining).
		Msg("outbox pushed")
	return res, nil
}

// Run pushes every interval until ctx is done. Unpaired gateways and empty
// outboxes are skipped quietly.
func (p *Pusher) Run(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		log.Info().Msg("outbox auto-push is disabled")
		return
	}
	log.Info().Dur("interval", interval).Msg("starting outbox push loop")

	timer := time.NewTimer(interval)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("outbox push loop shutting down")
			return
		case <-timer.C:
			p.tick(ctx)
			timer.Reset(interval)
		}
	}
}

func (p *Pusher) tick(ctx context.Context) {
	_, err := p.PushOnce(ctx)
	switch {
	case err == nil:
	case errors.Is(err, store.ErrNotPaired), errors.Is(err, cloud.ErrNoBaseURL):
		log.Debug().Err(err).Msg("skipping outbox push")
	default:
		log.Warn().Err(err).Msg("outbox push failed")
	}
}
