package reconcile

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog/log"
)

// HealthChecker reports whether the cloud currently answers.
type HealthChecker interface {
	Health(ctx context.Context) error
}

// Watcher polls cloud health and runs the reconciler each time the cloud
// comes back, and on later healthy probes while orders are still pending.
type Watcher struct {
	health   HealthChecker
	rec      *Reconciler
	interval time.Duration
	online   bool
}

// NewWatcher builds a watcher. The cloud is assumed offline until the first
// probe succeeds, so orders left from an earlier session are synced at start.
func NewWatcher(health HealthChecker, rec *Reconciler, interval time.Duration) *Watcher {
	if interval <= 0 {
		interval = 15 * time.Second
	}
	return &Watcher{health: health, rec: rec, interval: interval}
}

// Run probes until ctx is done.
func (w *Watcher) Run(ctx context.Context) {
	log.Info().Dur("interval", w.interval).Msg("starting connectivity watcher")

	w.CheckOnce(ctx)

	timer := time.NewTimer(w.interval)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("connectivity watcher shutting down")
			return
		case <-timer.C:
			w.CheckOnce(ctx)
			timer.Reset(w.interval)
		}
	}
}

// CheckOnce probes once and syncs on an offline to online transition, or
// on any successful probe while orders are still pending. It reports whether
// a sync ran.
func (w *Watcher) CheckOnce(ctx context.Context) bool {
	err := w.health.Health(ctx)
	wasOnline := w.online
	w.online = err == nil

	if err != nil {
		if wasOnline {
			log.Warn().Err(err).Msg("cloud went offline")
		}
		return false
	}

	if wasOnline {
		pending, perr := w.rec.Pending(ctx)
		if perr != nil {
			log.Error().Err(perr).Msg("failed to count pending offline orders")
			return false
		}
		if pending == 0 {
			return false
		}
		log.Info().Int("pending", pending).Msg("offline orders pending, syncing")
	} else {
		log.Info().Msg("cloud is reachable, syncing offline orders")
	}

	if _, err := w.rec.Run(ctx); err != nil && !errors.Is(err, ErrSyncInProgress) {
		log.Error().Err(err).Msg("offline sync failed")
	}
	return true
}
