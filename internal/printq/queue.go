// Package printq is the durable print-job queue of the gateway: jobs are
// stored in SQL, claimed by a worker pool and retried with backoff.
package printq

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"pos-edge/internal/db"
	"pos-edge/internal/model"
	"pos-edge/internal/ticket"
)

var (
	// ErrJobNotFound is returned for an unknown job id.
	ErrJobNotFound = errors.New("print job not found")
	// ErrNotCancelable is returned when a job already left the queue.
	ErrNotCancelable = errors.New("print job is no longer queued")
)

const (
	BackoffBase = 2 * time.Second
	BackoffMax  = 60 * time.Second
)

// Backoff is the delay before retry number attempt (1-based).
func Backoff(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	if attempt > 6 {
		return BackoffMax
	}
	return min(BackoffBase<<(attempt-1), BackoffMax)
}

// Queue stores print jobs.
type Queue struct {
	db  *gorm.DB
	now func() time.Time
}

// NewQueue wraps a migrated database.
func NewQueue(gdb *gorm.DB) *Queue {
	return &Queue{db: gdb, now: time.Now}
}

// Open connects to dsn and migrates the job table.
func Open(dsn string) (*Queue, error) {
	gdb, err := db.Open(dsn, db.Options{MaxOpenConns: 1}, &model.PrintJob{})
	if err != nil {
		return nil, err
	}
	return NewQueue(gdb), nil
}

// Close releases the database.
func (q *Queue) Close() error {
	return db.Close(q.db)
}

// EnqueueInput is a new job request.
type EnqueueInput struct {
	PrinterID   string
	Dialect     ticket.Dialect
	Ticket      ticket.Ticket
	MaxAttempts int
}

// Enqueue stores a job due immediately.
func (q *Queue) Enqueue(ctx context.Context, in EnqueueInput) (*model.PrintJob, error) {
	if strings.TrimSpace(in.PrinterID) == "" {
		return nil, errors.New("printerId is required")
	}
	if in.MaxAttempts <= 0 {
		in.MaxAttempts = 5
	}
	now := q.now().UTC()
	job := model.PrintJob{
		ID:            uuid.NewString(),
		PrinterID:     in.PrinterID,
		Dialect:       string(in.Dialect),
		Title:         in.Ticket.Title,
		Subtitle:      in.Ticket.Subtitle,
		Lines:         in.Ticket.Lines,
		Status:        model.PrintJobQueued,
		MaxAttempts:   in.MaxAttempts,
		NextAttemptAt: now,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if job.Lines == nil {
		job.Lines = []string{}
	}
	if err := q.db.WithContext(ctx).Create(&job).Error; err != nil {
		return nil, fmt.Errorf("failed to enqueue print job: %w", err)
	}
	return &job, nil
}

// Get loads one job.
func (q *Queue) Get(ctx context.Context, id string) (*model.PrintJob, error) {
	var job model.PrintJob
	err := q.db.WithContext(ctx).Where("id = ?", id).First(&job).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrJobNotFound
	}
	if err != nil {
		return nil, err
	}
	return &job, nil
}

// List returns the newest jobs first, optionally filtered by status.
func (q *Queue) List(ctx context.Context, status model.PrintJobStatus, limit int) ([]model.PrintJob, error) {
	tx := q.db.WithContext(ctx).Order("created_at desc").Limit(limit)
	if status != "" {
		tx = tx.Where("status = ?", status)
	}
	var jobs []model.PrintJob
	if err := tx.Find(&jobs).Error; err != nil {
		return nil, err
	}
	return jobs, nil
}

// Cancel stops a queued job.
func (q *Queue) Cancel(ctx context.Context, id string) (*model.PrintJob, error) {
	now := q.now().UTC()
	res := q.db.WithContext(ctx).Model(&model.PrintJob{}).
		Where("id = ? AND status = ?", id, model.PrintJobQueued).
		Updates(map[string]any{"status": model.PrintJobCanceled, "finished_at": now, "updated_at": now})
	if res.Error != nil {
		return nil, res.Error
	}
	job, err := q.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if res.RowsAffected == 0 {
		return job, ErrNotCancelable
	}
	return job, nil
}

// ClaimDue moves up to limit due jobs from queued to printing and returns
// them. A job is claimed by exactly one caller.
func (q *Queue) ClaimDue(ctx context.Context, limit int) ([]model.PrintJob, error) {
	if limit <= 0 {
		return nil, nil
	}
	now := q.now().UTC()

	var due []model.PrintJob
	err := q.db.WithContext(ctx).
		Where("status = ? AND next_attempt_at <= ?", model.PrintJobQueued, now).
		Order("next_attempt_at asc, created_at asc").
		Limit(limit).
		Find(&due).Error
	if err != nil {
		return nil, err
	}

	claimed := due[:0]
	for _, job := range due {
		res := q.db.WithContext(ctx).Model(&model.PrintJob{}).
			Where("id = ? AND status = ?", job.ID, model.PrintJobQueued).
			Updates(map[string]any{
				"status":     model.PrintJobPrinting,
				"attempts":   gorm.Expr("attempts + 1"),
				"updated_at": now,
			})
		if res.Error != nil {
			return claimed, res.Error
		}
		if res.RowsAffected == 1 {
			job.Status = model.PrintJobPrinting
			job.Attempts++
			claimed = append(claimed, job)
		}
	}
	return claimed, nil
}

// MarkSucceeded finishes a job.
func (q *Queue) MarkSucceeded(ctx context.Context, id string) error {
	now := q.now().UTC()
	return q.db.WithContext(ctx).Model(&model.PrintJob{}).Where("id = ?", id).
		Updates(map[string]any{
			"status":      model.PrintJobSucceeded,
			"last_error":  "",
			"finished_at": now,
			"updated_at":  now,
		}).Error
}

// MarkFailed records a failed attempt. The job is requeued with backoff until
// it has used all its attempts, then it is failed for good. It returns the
// resulting status.
func (q *Queue) MarkFailed(ctx context.Context, job model.PrintJob, cause error) (model.PrintJobStatus, error) {
	now := q.now().UTC()
	msg := cause.Error()
	if len(msg) > 512 {
		msg = msg[:512]
	}
	updates := map[string]any{"last_error": msg, "updated_at": now}

	status := model.PrintJobQueued
	if job.Attempts >= job.MaxAttempts {
		status = model.PrintJobFailed
		updates["finished_at"] = now
	} else {
		updates["next_attempt_at"] = now.Add(Backoff(job.Attempts))
	}
	updates["status"] = status

	if err := q.db.WithContext(ctx).Model(&model.PrintJob{}).Where("id = ?", job.ID).Updates(updates).Error; err != nil {
		return "", err
	}
	return status, nil
}

// RequeueInterrupted returns jobs left printing by a previous process to the
// queue.
func (q *Queue) RequeueInterrupted(ctx context.Context) (int64, error) {
	res := q.db.WithContext(ctx).Model(&model.PrintJob{}).
		Where("status = ?", model.PrintJobPrinting).
		Updates(map[string]any{"status": model.PrintJobQueued, "next_attempt_at": q.now().UTC()})
	return res.RowsAffected, res.Error
}

// Prune deletes finished jobs older than retention.
func (q *Queue) Prune(ctx context.Context, retention time.Duration) (int64, error) {
	cutoff := q.now().UTC().Add(-retention)
	res := q.db.WithContext(ctx).
		Where("status IN ? AND finished_at < ?", []model.PrintJobStatus{model.PrintJobSucceeded, model.PrintJobFailed, model.PrintJobCanceled}, cutoff).
		Delete(&model.PrintJob{})
	return res.RowsAffected, res.Error
}

// Depth counts jobs not yet finished.
func (q *Queue) Depth(ctx context.Context) (int64, error) {
	var n int64
	err := q.db.WithContext(ctx).Model(&model.PrintJob{}).
		Where("status IN ?", []model.PrintJobStatus{model.PrintJobQueued, model.PrintJobPrinting}).
		Count(&n).Error
	return n, err
}
