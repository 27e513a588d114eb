package printq

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"pos-edge/internal/metrics"
	"pos-edge/internal/model"
	"pos-edge/internal/printer"
	"pos-edge/internal/store"
	"pos-edge/internal/ticket"
)

// PrinterLookup resolves a printer id.
type PrinterLookup interface {
	Printer(id string) (model.Printer, error)
}

// Options tunes the worker pool.
type Options struct {
	Workers      int
	PollInterval time.Duration
	SendTimeout  time.Duration
	Retention    time.Duration
}

// WorkerPool drains the queue with a fixed number of workers.
type WorkerPool struct {
	size     int
	jobs     chan model.PrintJob
	wake     chan struct{}
	queue    *Queue
	printers PrinterLookup
	sender   printer.Sender
	opts     Options
}

// NewWorkerPool creates a new worker pool.
func NewWorkerPool(q *Queue, printers PrinterLookup, sender printer.Sender, opts Options) *WorkerPool {
	if opts.Workers <= 0 {
		opts.Workers = 1
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = 2 * time.Second
	}
	if opts.Retention <= 0 {
		opts.Retention = 72 * time.Hour
	}
	return &WorkerPool{
		size:     opts.Workers,
		jobs:     make(chan model.PrintJob, opts.Workers),
		wake:     make(chan struct{}, 1),
		queue:    q,
		printers: printers,
		sender:   sender,
		opts:     opts,
	}
}

// Start requeues jobs interrupted by a restart, then launches the workers and
// the dispatcher.
func (wp *WorkerPool) Start(ctx context.Context) {
	if n, err := wp.queue.RequeueInterrupted(ctx); err != nil {
		log.Error().Err(err).Msg("failed to requeue interrupted print jobs")
	} else if n > 0 {
		log.Info().Int64("count", n).Msg("requeued interrupted print jobs")
	}

	for i := 0; i < wp.size; i++ {
		go wp.worker(ctx, i)
	}
	go wp.dispatch(ctx)
}

// Notify wakes the dispatcher, e.g. right after an enqueue.
func (wp *WorkerPool) Notify() {
	select {
	case wp.wake <- struct{}{}:
	default:
	}
}

func (wp *WorkerPool) dispatch(ctx context.Context) {
	ticker := time.NewTicker(wp.opts.PollInterval)
	defer ticker.Stop()
	lastPrune := time.Time{}

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		case <-wp.wake:
		}

		jobs, err := wp.queue.ClaimDue(ctx, cap(wp.jobs)-len(wp.jobs))
		if err != nil {
			log.Error().Err(err).Msg("failed to claim print jobs")
		}
		for _, job := range jobs {
			select {
			case wp.jobs <- job:
			case <-ctx.Done():
				return
			}
		}

		if depth, err := wp.queue.Depth(ctx); err == nil {
			metrics.PrintQueueDepth.Set(float64(depth))
		}
		if time.Since(lastPrune) > 10*time.Minute {
			lastPrune = time.Now()
			if n, err := wp.queue.Prune(ctx, wp.opts.Retention); err != nil {
				log.Warn().Err(err).Msg("failed to prune print jobs")
			} else if n > 0 {
				log.Info().Int64("count", n).Msg("pruned finished print jobs")
			}
		}
	}
}

func (wp *WorkerPool) worker(ctx context.Context, id int) {
	log.Debug().Int("worker", id).Msg("print worker started")
	for {
		select {
		case job := <-wp.jobs:
			wp.Process(ctx, job)
		case <-ctx.Done():
			log.Debug().Int("worker", id).Msg("print worker shutting down")
			return
		}
	}
}

// Process runs one claimed attempt of job and records the outcome.
func (wp *WorkerPool) Process(ctx context.Context, job model.PrintJob) model.PrintJobStatus {
	logger := log.With().Str("job_id", job.ID).Str("printer_id", job.PrinterID).Int("attempt", job.Attempts).Logger()

	err := wp.print(ctx, job)
	if err == nil {
		if err := wp.queue.MarkSucceeded(ctx, job.ID); err != nil {
			logger.Error().Err(err).Msg("failed to record printed job")
		}
		metrics.PrintJobsTotal.WithLabelValues(job.Dialect, "queue", "ok").Inc()
		logger.Info().Msg("print job printed")
		return model.PrintJobSucceeded
	}

	// Unknown printers and bad dialects will not fix themselves.
	if !errors.Is(err, printer.ErrUnreachable) {
		job.Attempts = job.MaxAttempts
	}
	status, merr := wp.queue.MarkFailed(ctx, job, err)
	if merr != nil {
		logger.Error().Err(merr).Msg("failed to record print failure")
	}
	metrics.PrintJobsTotal.WithLabelValues(job.Dialect, "queue", "error").Inc()
	logger.Warn().Err(err).Str("status", string(status)).Msg("print attempt failed")
	return status
}

func (wp *WorkerPool) print(ctx context.Context, job model.PrintJob) error {
	p, err := wp.printers.Printer(job.PrinterID)
	if err != nil {
		if errors.Is(err, store.ErrPrinterNotFound) {
			return fmt.Errorf("printer %s no longer exists", job.PrinterID)
		}
		return err
	}
	d, err := ticket.ParseDialect(job.Dialect)
	if err != nil {
		return err
	}
	data, err := ticket.Encode(d, ticket.Ticket{Title: job.Title, Subtitle: job.Subtitle, Lines: job.Lines})
	if err != nil {
		return err
	}
	return wp.sender.Send(ctx, p.IP, p.Port, data, wp.opts.SendTimeout)
}
