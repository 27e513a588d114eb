package model

import "time"

// PrintJobStatus is the lifecycle state of a queued print job.
type PrintJobStatus string

const (
	PrintJobQueued    PrintJobStatus = "queued"
	PrintJobPrinting  PrintJobStatus = "printing"
	PrintJobSucceeded PrintJobStatus = "succeeded"
	PrintJobFailed    PrintJobStatus = "failed"
	PrintJobCanceled  PrintJobStatus = "canceled"
)

// Finished reports whether the job reached a terminal state.
func (s PrintJobStatus) Finished() bool {
	return s == PrintJobSucceeded || s == PrintJobFailed || s == PrintJobCanceled
}

// PrintJob is a durable, retried print request.
type PrintJob struct {
	ID            string         `gorm:"primaryKey;size:64" json:"id"`
	PrinterID     string         `gorm:"index;size:64;not null" json:"printerId"`
	Dialect       string         `gorm:"size:16;not null" json:"dialect"`
	Title         string         `gorm:"size:256" json:"title"`
	Subtitle      string         `gorm:"size:256" json:"subtitle,omitempty"`
	Lines         []string       `gorm:"serializer:json" json:"lines"`
	Status        PrintJobStatus `gorm:"index;size:16;not null" json:"status"`
	Attempts      int            `gorm:"not null;default:0" json:"attempts"`
	MaxAttempts   int            `gorm:"not null" json:"maxAttempts"`
	LastError     string         `gorm:"size:512" json:"lastError,omitempty"`
	NextAttemptAt time.Time      `gorm:"index" json:"nextAttemptAt"`
	CreatedAt     time.Time      `json:"createdAt"`
	UpdatedAt     time.Time      `json:"updatedAt"`
	FinishedAt    *time.Time     `json:"finishedAt,omitempty"`
}
