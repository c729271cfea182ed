package db

import (
	"time"
)

const (
	StatusSucceeded = "succeeded"
	StatusFailed    = "failed"
)

type JobRecord struct {
	ID           int64     `json:"id"`
	InstanceID   string    `json:"instance_id"`
	JobID        int64     `json:"job_id"`
	BatchID      string    `json:"batch_id,omitempty"`
	BatchStart   int64     `json:"batch_start,omitempty"`
	BatchEnd     int64     `json:"batch_end,omitempty"`
	Standalone   bool      `json:"standalone"`
	SourceURL    string    `json:"source_url"`
	EffectiveURL string    `json:"effective_url"`
	Filename     string    `json:"filename"`
	Pages        string    `json:"pages"`
	Orientation  string    `json:"orientation"`
	PaperSize    string    `json:"paper_size"`
	Printer      string    `json:"printer"`
	Status       string    `json:"status"`
	ErrorMessage string    `json:"error_message,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
	StartedAt    time.Time `json:"started_at"`
	CompletedAt  time.Time `json:"completed_at"`
	DurationMs   int64     `json:"duration_ms"`
}

type JobFilter struct {
	Status   string
	BatchID  string
	FromDate *time.Time
	ToDate   *time.Time
	OrderDir string
	Limit    int
	Offset   int
}

type JobStats struct {
	Total         int64 `json:"total"`
	Succeeded     int64 `json:"succeeded"`
	Failed        int64 `json:"failed"`
	AvgDurationMs int64 `json:"avg_duration_ms"`
}
