package db

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/orrn/fileprint/internal/core"
)

const recordTimeout = 5 * time.Second

// AuditObserver writes one history row per finished job.
type AuditObserver struct {
	jobs       *JobOperations
	instanceID string
	logger     *zap.Logger
}

func NewAuditObserver(store *Store, instanceID string, logger *zap.Logger) *AuditObserver {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AuditObserver{
		jobs:       store.Jobs,
		instanceID: instanceID,
		logger:     logger.Named("audit"),
	}
}

func (a *AuditObserver) OnJobFinished(job *core.Job, result core.Result, startedAt, finishedAt time.Time) {
	rec := RecordFromJob(a.instanceID, job, result, startedAt, finishedAt)

	ctx, cancel := context.WithTimeout(context.Background(), recordTimeout)
	defer cancel()

	if err := a.jobs.RecordJob(ctx, rec); err != nil {
		a.logger.Error("failed to record job history", zap.Int64("job_id", job.ID), zap.Error(err))
	}
}

func RecordFromJob(instanceID string, job *core.Job, result core.Result, startedAt, finishedAt time.Time) *JobRecord {
	status := StatusSucceeded
	if !result.Succeeded {
		status = StatusFailed
	}
	return &JobRecord{
		InstanceID:   instanceID,
		JobID:        job.ID,
		BatchID:      job.BatchID,
		BatchStart:   job.BatchStart,
		BatchEnd:     job.BatchEnd,
		Standalone:   job.Standalone,
		SourceURL:    job.SourceURL,
		EffectiveURL: job.EffectiveURL(),
		Filename:     result.Filename,
		Pages:        job.Options.Pages,
		Orientation:  job.Options.Orientation,
		PaperSize:    job.Options.PaperSize,
		Printer:      job.Options.Printer,
		Status:       status,
		ErrorMessage: result.Error,
		CreatedAt:    job.CreatedAt,
		StartedAt:    startedAt,
		CompletedAt:  finishedAt,
		DurationMs:   finishedAt.Sub(startedAt).Milliseconds(),
	}
}

var _ core.Observer = (*AuditObserver)(nil)
